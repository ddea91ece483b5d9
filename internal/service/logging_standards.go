package service

// Standard log field names. Use these keys so log queries work across
// producers, the gateway and the HTTP layer.
const (
	LogFieldProvider    = "provider"
	LogFieldRecipient   = "recipient"
	LogFieldTransportID = "transport_id"
	LogFieldLogID       = "log_id"
	LogFieldCategory    = "category"
	LogFieldState       = "state"

	LogFieldJob       = "job"
	LogFieldOperation = "operation"
	LogFieldComponent = "component"
	LogFieldAttempted = "attempted"
	LogFieldSent      = "sent"
	LogFieldFailed    = "failed"
	LogFieldChunks    = "chunks"

	LogFieldRequestID  = "request_id"
	LogFieldTraceID    = "trace_id"
	LogFieldMethod     = "method"
	LogFieldURL        = "url"
	LogFieldStatusCode = "status_code"
	LogFieldRemoteIP   = "remote_ip"
	LogFieldUserAgent  = "user_agent"
	LogFieldDuration   = "duration_ms"
	LogFieldSize       = "size_bytes"
	LogFieldCount      = "count"

	LogFieldError     = "error"
	LogFieldErrorCode = "error_code"
	LogFieldAttempt   = "attempt"
)

// Log levels
//
// DEBUG: per-message detail, raw payloads (verbose mode only).
// INFO: startup, provider state changes, job summaries.
// WARN: retryable failures, fallbacks, skipped job runs.
// ERROR: failed sends, failed jobs, storage errors.
// FATAL: startup configuration or database failures.
//
// Messages follow "Starting X", "Completed X", "Failed to X" and
// "Skipping X: reason".
