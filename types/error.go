package types

import "fmt"

// ErrorCode represents a unified error code across the bridge.
type ErrorCode string

// Call lifecycle error codes
const (
	ErrConnectionFailed ErrorCode = "CONNECTION_FAILED" // agent unreachable at session start, call never becomes active
	ErrTransportFailed  ErrorCode = "TRANSPORT_FAILED"  // agent connection dropped mid-call
	ErrCallNotFound     ErrorCode = "CALL_NOT_FOUND"
	ErrCallEnded        ErrorCode = "CALL_ENDED"
	ErrInvalidState     ErrorCode = "INVALID_STATE"
)

// Contained error codes — never change session state
const (
	ErrFunctionExecution ErrorCode = "FUNCTION_EXECUTION" // dispatched function failed, reported back to the agent
	ErrUnknownFunction   ErrorCode = "UNKNOWN_FUNCTION"
	ErrTransientAnalysis ErrorCode = "TRANSIENT_ANALYSIS" // sentiment scoring failed or was cancelled
	ErrProtocolViolation ErrorCode = "PROTOCOL_VIOLATION" // unrecognized event or frame type
	ErrInjectionRefused  ErrorCode = "INJECTION_REFUSED"
)

// Configuration and auth error codes
const (
	ErrInvalidConfig      ErrorCode = "INVALID_CONFIG"
	ErrMissingCredentials ErrorCode = "MISSING_CREDENTIALS"
	ErrUnauthorized       ErrorCode = "UNAUTHORIZED"
)

// Error represents a structured error with code, message, and metadata.
type Error struct {
	Code      ErrorCode `json:"code"`
	Message   string    `json:"message"`
	CallSID   string    `json:"call_sid,omitempty"`
	Retryable bool      `json:"retryable"`
	Cause     error     `json:"-"`
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

// WithCause adds a cause to the error.
func (e *Error) WithCause(cause error) *Error {
	e.Cause = cause
	return e
}

// WithCallSID tags the error with the call it belongs to.
func (e *Error) WithCallSID(sid string) *Error {
	e.CallSID = sid
	return e
}

// WithRetryable marks the error as retryable.
func (e *Error) WithRetryable(retryable bool) *Error {
	e.Retryable = retryable
	return e
}

// IsRetryable checks if an error is retryable.
func IsRetryable(err error) bool {
	if e, ok := err.(*Error); ok {
		return e.Retryable
	}
	return false
}

// GetErrorCode extracts the error code from an error.
func GetErrorCode(err error) ErrorCode {
	if e, ok := err.(*Error); ok {
		return e.Code
	}
	return ""
}

// IsFatal reports whether the error must force the call into teardown.
// Only connection and transport failures qualify; everything else is
// contained at the component where it occurred.
func IsFatal(err error) bool {
	switch GetErrorCode(err) {
	case ErrConnectionFailed, ErrTransportFailed:
		return true
	}
	return false
}
