package types

import "fmt"

// ErrorCode represents a unified error code across the hive.
type ErrorCode string

// Error codes exposed through the API envelope. The set is closed; boundary
// code maps internal failures onto one of these before they leave the
// process.
const (
	ErrAgentNotFound      ErrorCode = "AGENT_NOT_FOUND"
	ErrAgentCreation      ErrorCode = "AGENT_CREATION_FAILED"
	ErrTaskNotFound       ErrorCode = "TASK_NOT_FOUND"
	ErrTaskCreation       ErrorCode = "TASK_CREATION_FAILED"
	ErrValidation         ErrorCode = "VALIDATION_ERROR"
	ErrResourceExhausted  ErrorCode = "RESOURCE_EXHAUSTED"
	ErrSystemOverloaded   ErrorCode = "SYSTEM_OVERLOADED"
	ErrConfiguration      ErrorCode = "CONFIGURATION_ERROR"
	ErrTimeout            ErrorCode = "TIMEOUT_ERROR"
	ErrCircuitBreakerOpen ErrorCode = "CIRCUIT_BREAKER_OPEN"
	ErrInternal           ErrorCode = "INTERNAL_ERROR"
)

// FieldError describes a single invalid field in a request payload.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// Error represents a structured error with code, message, and metadata.
type Error struct {
	Code        ErrorCode    `json:"code"`
	Message     string       `json:"message"`
	FieldErrors []FieldError `json:"field_errors,omitempty"`
	HTTPStatus  int          `json:"http_status,omitempty"`
	Retryable   bool         `json:"retryable"`
	Resource    string       `json:"resource,omitempty"`
	Cause       error        `json:"-"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Cause
}

// NewError creates a new Error with the given code and message.
func NewError(code ErrorCode, message string) *Error {
	return &Error{Code: code, Message: message}
}

// NewValidationError creates a VALIDATION_ERROR carrying field details.
func NewValidationError(message string, fields ...FieldError) *Error {
	return &Error{Code: ErrValidation, Message: message, FieldErrors: fields}
}

// NewResourceExhausted creates a RESOURCE_EXHAUSTED error naming the
// exhausted resource ("agents", "task_queue", "connections").
func NewResourceExhausted(resource string) *Error {
	return &Error{
		Code:      ErrResourceExhausted,
		Message:   fmt.Sprintf("resource exhausted: %s", resource),
		Resource:  resource,
		Retryable: true,
	}
}

// WithCause adds a cause to the error.
func (e *Error) WithCause(cause error) *Error {
	e.Cause = cause
	return e
}

// WithHTTPStatus sets the HTTP status code.
func (e *Error) WithHTTPStatus(status int) *Error {
	e.HTTPStatus = status
	return e
}

// WithRetryable marks the error as retryable.
func (e *Error) WithRetryable(retryable bool) *Error {
	e.Retryable = retryable
	return e
}

// WithField appends a field error.
func (e *Error) WithField(field, message string) *Error {
	e.FieldErrors = append(e.FieldErrors, FieldError{Field: field, Message: message})
	return e
}

// GetErrorCode extracts the error code from an error, or "" for plain errors.
func GetErrorCode(err error) ErrorCode {
	if e, ok := err.(*Error); ok {
		return e.Code
	}
	return ""
}

// IsCode reports whether err is a *Error with the given code.
func IsCode(err error, code ErrorCode) bool {
	e, ok := err.(*Error)
	return ok && e.Code == code
}
