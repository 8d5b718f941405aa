package logger

const (
	FieldError     = "error"
	FieldSender    = "sender"
	FieldRecipient = "recipient"
	FieldPreview   = "preview"
	FieldState     = "state"
	FieldCause     = "cause"
	FieldAttempt   = "attempt"
	FieldURL       = "url"
	FieldStatus    = "status"

	FieldMethod     = "method"
	FieldPath       = "path"
	FieldDurationMS = "duration_ms"
	FieldBytes      = "bytes"
)
