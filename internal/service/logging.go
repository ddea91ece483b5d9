package service

import (
	"context"

	"swimnotify/internal/privacy"

	"github.com/sirupsen/logrus"
)

// ContextKey is a package-local type to prevent context key collisions
type ContextKey string

// VerboseContextKey carries the verbose logging flag
const VerboseContextKey ContextKey = "verbose"

func WithVerbose(ctx context.Context, verbose bool) context.Context {
	return context.WithValue(ctx, VerboseContextKey, verbose)
}

// IsVerboseLogging checks if verbose logging is enabled from context
func IsVerboseLogging(ctx context.Context) bool {
	if verbose, ok := ctx.Value(VerboseContextKey).(bool); ok {
		return verbose
	}
	return false
}

// SafeFields masks personal data unless ctx asks for verbose logging
func SafeFields(ctx context.Context, fields logrus.Fields) logrus.Fields {
	if IsVerboseLogging(ctx) {
		return fields
	}
	return privacy.MaskFields(fields)
}

// LogSend records the outcome of one producer send
func LogSend(ctx context.Context, logger logrus.FieldLogger, job, recipient, name string, err error) {
	entry := logger.WithFields(SafeFields(ctx, logrus.Fields{
		LogFieldJob:       job,
		LogFieldRecipient: recipient,
		"recipient_name":  name,
	}))
	if err != nil {
		entry.WithError(err).Warn("Failed to send scheduled message")
		return
	}
	entry.Debug("Scheduled message sent")
}
