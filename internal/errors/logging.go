package errors

import (
	"github.com/sirupsen/logrus"
)

// Fields returns the structured logrus fields carried by an AppError
func Fields(err error) logrus.Fields {
	fields := logrus.Fields{}
	appErr, ok := As(err)
	if !ok {
		return fields
	}

	fields["error_code"] = appErr.Code
	fields["retryable"] = appErr.Retryable
	for k, v := range appErr.Context {
		fields[k] = v
	}
	return fields
}

// LogError logs an error with structured context at error level
func LogError(logger logrus.FieldLogger, err error, message string) {
	logger.WithError(err).WithFields(Fields(err)).Error(message)
}

// LogWarn logs an error with structured context at warn level
func LogWarn(logger logrus.FieldLogger, err error, message string) {
	logger.WithError(err).WithFields(Fields(err)).Warn(message)
}

// LogRetryableError logs a retryable error at warn level, non-retryable at error level
func LogRetryableError(logger logrus.FieldLogger, err error, message string) {
	if IsRetryable(err) {
		LogWarn(logger, err, message)
	} else {
		LogError(logger, err, message)
	}
}
