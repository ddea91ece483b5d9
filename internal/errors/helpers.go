package errors

import (
	"fmt"
	"net/http"
)

// NewValidationError creates a validation error with field context
func NewValidationError(field, value, message string) *AppError {
	return New(ErrCodeValidationFailed, message).
		WithContext("field", field).
		WithContext("value", value).
		WithUserMessage(fmt.Sprintf("Invalid %s: %s", field, message))
}

// NewConfigError creates a configuration error
func NewConfigError(key, message string) *AppError {
	return New(ErrCodeInvalidConfig, message).
		WithContext("config_key", key).
		WithUserMessage("Configuration error")
}

// NewDatabaseError creates a database error with operation context
func NewDatabaseError(operation string, err error) *AppError {
	return Wrap(err, ErrCodeDatabaseQuery, fmt.Sprintf("database %s failed", operation)).
		WithContext("operation", operation).
		WithUserMessage("Database operation failed")
}

// NewLogWriteError marks a failed message log write. It is reported, never
// propagated into a send that already reached the transport.
func NewLogWriteError(operation string, err error) *AppError {
	return Wrap(err, ErrCodeLogWrite, fmt.Sprintf("message log %s failed", operation)).
		WithContext("operation", operation)
}

// NewNotReadyError creates the error returned when a provider cannot transmit
func NewNotReadyError(provider, reason string) *AppError {
	return New(ErrCodeNotReady, reason).
		WithContext("provider", provider).
		WithUserMessage(fmt.Sprintf("WhatsApp provider %s is not ready: %s", provider, reason))
}

// NewTransportRejectedError keeps the transport's diagnostic verbatim in the
// user message so operators see exactly what the remote side said.
func NewTransportRejectedError(provider string, statusCode int, diagnostic string) *AppError {
	return New(ErrCodeTransportRejected, "transport rejected the message").
		WithContext("provider", provider).
		WithContext("status_code", statusCode).
		WithUserMessage(diagnostic)
}

// NewAPIError creates an API error for external service calls
func NewAPIError(service, endpoint string, statusCode int, err error) *AppError {
	retryable := statusCode == 0 || statusCode >= 500 || statusCode == 429 || statusCode == 408

	appErr := Wrap(err, ErrCodeWhatsAppAPI, fmt.Sprintf("%s API call failed", service)).
		WithContext("service", service).
		WithContext("endpoint", endpoint).
		WithContext("status_code", statusCode)
	appErr.Retryable = retryable

	return appErr
}

// IsNotReady reports whether err is a NOT_READY error
func IsNotReady(err error) bool {
	return HasCode(err, ErrCodeNotReady)
}

// IsTransportRejected reports whether err is a TRANSPORT_REJECTED error
func IsTransportRejected(err error) bool {
	return HasCode(err, ErrCodeTransportRejected)
}

// IsConfigError reports whether err is a configuration error
func IsConfigError(err error) bool {
	code := GetCode(err)
	return err != nil && (code == ErrCodeInvalidConfig || code == ErrCodeMissingConfig)
}

// HTTPStatusCode maps error codes to appropriate HTTP status codes
func HTTPStatusCode(err error) int {
	switch GetCode(err) {
	case ErrCodeValidationFailed, ErrCodeInvalidInput:
		return http.StatusBadRequest
	case ErrCodeAuthentication:
		return http.StatusUnauthorized
	case ErrCodeNotFound:
		return http.StatusNotFound
	case ErrCodeTimeout:
		return http.StatusRequestTimeout
	case ErrCodeNotReady, ErrCodeInvalidConfig, ErrCodeMissingConfig:
		return http.StatusServiceUnavailable
	case ErrCodeTransportRejected, ErrCodeWhatsAppAPI:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// HTTPErrorResponse is the standardized HTTP error body
type HTTPErrorResponse struct {
	Error struct {
		Code    ErrorCode   `json:"code"`
		Message string      `json:"message"`
		Context interface{} `json:"context,omitempty"`
	} `json:"error"`
	RequestID string `json:"request_id,omitempty"`
}

// ToHTTPResponse converts an error to a standardized HTTP response
func ToHTTPResponse(err error, requestID string) HTTPErrorResponse {
	response := HTTPErrorResponse{
		RequestID: requestID,
	}

	appErr, ok := As(err)
	if !ok {
		response.Error.Code = ErrCodeInternalError
		response.Error.Message = GetUserMessage(err)
		return response
	}

	response.Error.Code = appErr.Code
	response.Error.Message = GetUserMessage(err)
	if len(appErr.Context) > 0 {
		publicContext := make(map[string]interface{})
		for k, v := range appErr.Context {
			if k != "password" && k != "token" && k != "secret" {
				publicContext[k] = v
			}
		}
		if len(publicContext) > 0 {
			response.Error.Context = publicContext
		}
	}

	return response
}
