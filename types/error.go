package types

import (
	"errors"
	"fmt"
)

// ErrorCode represents a unified error code across the invocation core.
type ErrorCode string

// Invocation error codes. The set is closed: IsRecoverable is defined over
// every code listed here.
const (
	ErrMissingVariable   ErrorCode = "MISSING_VARIABLE"
	ErrMalformedJSON     ErrorCode = "MALFORMED_JSON"
	ErrEmptyOutput       ErrorCode = "EMPTY_OUTPUT"
	ErrValidatorRejected ErrorCode = "VALIDATOR_REJECTED"
	ErrBackendTransport  ErrorCode = "BACKEND_TRANSPORT"
	ErrTimeout           ErrorCode = "TIMEOUT"
	ErrRetriesExhausted  ErrorCode = "RETRIES_EXHAUSTED"
)

// Registry and configuration error codes
const (
	ErrAgentNotFound  ErrorCode = "AGENT_NOT_FOUND"
	ErrInvalidConfig  ErrorCode = "INVALID_CONFIG"
	ErrProviderNotSet ErrorCode = "PROVIDER_NOT_SET"
)

// Error represents a structured error with code, message, and metadata.
type Error struct {
	Code       ErrorCode `json:"code"`
	Message    string    `json:"message"`
	HTTPStatus int       `json:"http_status,omitempty"`
	Retryable  bool      `json:"retryable"`
	Provider   string    `json:"provider,omitempty"`
	Agent      string    `json:"agent,omitempty"`
	Attempts   int       `json:"attempts,omitempty"`
	Cause      error     `json:"-"`
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

// WithHTTPStatus sets the HTTP status code.
func (e *Error) WithHTTPStatus(status int) *Error {
	e.HTTPStatus = status
	return e
}

// WithRetryable marks the error as retryable at the transport level.
func (e *Error) WithRetryable(retryable bool) *Error {
	e.Retryable = retryable
	return e
}

// WithProvider sets the provider name.
func (e *Error) WithProvider(provider string) *Error {
	e.Provider = provider
	return e
}

// WithAgent sets the agent name.
func (e *Error) WithAgent(agent string) *Error {
	e.Agent = agent
	return e
}

// MissingVariable reports a prompt placeholder with no input value.
func MissingVariable(name string) *Error {
	return NewError(ErrMissingVariable, fmt.Sprintf("missing prompt variable %q", name))
}

// MalformedJSON reports model output that did not parse as JSON.
func MalformedJSON(cause error) *Error {
	return NewError(ErrMalformedJSON, "model output is not valid JSON").WithCause(cause)
}

// EmptyOutput reports an empty model response where JSON was expected.
func EmptyOutput() *Error {
	return NewError(ErrEmptyOutput, "model returned empty output")
}

// ValidatorRejected reports well-formed output that failed a semantic check.
func ValidatorRejected(reason string) *Error {
	return NewError(ErrValidatorRejected, reason)
}

// BackendTransport wraps a network, auth or rate-limit failure of a backend.
func BackendTransport(provider string, cause error) *Error {
	return NewError(ErrBackendTransport, "backend call failed").WithProvider(provider).WithCause(cause)
}

// Timeout reports a backend call that exceeded its per-call deadline.
func Timeout(provider string, cause error) *Error {
	return NewError(ErrTimeout, "backend call timed out").WithProvider(provider).WithCause(cause)
}

// RetriesExhausted wraps the last recoverable cause after all attempts failed.
func RetriesExhausted(agent string, attempts int, last error) *Error {
	return &Error{
		Code:     ErrRetriesExhausted,
		Message:  fmt.Sprintf("agent %s failed after %d attempts", agent, attempts),
		Agent:    agent,
		Attempts: attempts,
		Cause:    last,
	}
}

// IsRecoverable reports whether err may be retried by the invocation loop.
// Content-shape failures and per-call timeouts are recoverable; missing
// variables, transport failures and exhausted retries are not. Errors outside
// the taxonomy are treated as unrecoverable.
func IsRecoverable(err error) bool {
	switch GetErrorCode(err) {
	case ErrMalformedJSON, ErrEmptyOutput, ErrValidatorRejected, ErrTimeout:
		return true
	default:
		return false
	}
}

// IsRetryable checks if an error is retryable at the transport level.
func IsRetryable(err error) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Retryable
	}
	return false
}

// GetErrorCode extracts the error code from an error chain.
func GetErrorCode(err error) ErrorCode {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// IsErrorCode reports whether err carries the given code.
func IsErrorCode(err error, code ErrorCode) bool {
	return err != nil && GetErrorCode(err) == code
}
