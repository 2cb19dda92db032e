package types

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

// ErrorKind is the closed set of failure classes every terminal result carries.
type ErrorKind string

const (
	KindValidation ErrorKind = "validation_error"
	KindTimeout    ErrorKind = "timeout_error"
	KindTransient  ErrorKind = "transient_error"
	KindPermanent  ErrorKind = "permanent_error"
	KindCancelled  ErrorKind = "cancelled_error"
	KindInternal   ErrorKind = "internal_error"
)

// ErrorCode is a finer-grained, machine readable reason within a kind.
type ErrorCode string

const (
	ErrInvalidInput       ErrorCode = "INVALID_INPUT"
	ErrUnknownAgent       ErrorCode = "UNKNOWN_AGENT"
	ErrDuplicateRequest   ErrorCode = "DUPLICATE_REQUEST"
	ErrDeadlineExceeded   ErrorCode = "DEADLINE_EXCEEDED"
	ErrRateLimited        ErrorCode = "RATE_LIMITED"
	ErrUpstreamError      ErrorCode = "UPSTREAM_ERROR"
	ErrServiceUnavailable ErrorCode = "SERVICE_UNAVAILABLE"
	ErrGenerationFailed   ErrorCode = "AI_GENERATION_FAILED"
	ErrRequestCancelled   ErrorCode = "REQUEST_CANCELLED"
	ErrOrchestratorClosed ErrorCode = "ORCHESTRATOR_CLOSED"
	ErrInternalError      ErrorCode = "INTERNAL_ERROR"
)

// StatusClientClosedRequest is the non-standard status used for cancelled requests.
const StatusClientClosedRequest = 499

// Error represents a classified failure.
type Error struct {
	Kind       ErrorKind `json:"kind"`
	Code       ErrorCode `json:"code,omitempty"`
	Message    string    `json:"message"`
	Retryable  bool      `json:"retryable"`
	HTTPStatus int       `json:"-"`
	Cause      error     `json:"-"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Kind, e.Message)
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Cause
}

// NewError creates an Error with the defaults of its kind.
func NewError(kind ErrorKind, message string) *Error {
	return &Error{
		Kind:       kind,
		Message:    message,
		Retryable:  kind.DefaultRetryable(),
		HTTPStatus: kind.HTTPStatus(),
	}
}

// WithCause adds a cause to the error.
func (e *Error) WithCause(cause error) *Error {
	e.Cause = cause
	return e
}

// WithCode sets the error code.
func (e *Error) WithCode(code ErrorCode) *Error {
	e.Code = code
	return e
}

// WithHTTPStatus sets the HTTP status code.
func (e *Error) WithHTTPStatus(status int) *Error {
	e.HTTPStatus = status
	return e
}

// WithRetryable overrides the retry hint of the kind.
func (e *Error) WithRetryable(retryable bool) *Error {
	e.Retryable = retryable
	return e
}

// DefaultRetryable reports the retry hint a kind carries unless overridden.
func (k ErrorKind) DefaultRetryable() bool {
	switch k {
	case KindTimeout, KindTransient:
		return true
	default:
		return false
	}
}

// HTTPStatus maps a kind to the status the HTTP surface reports.
func (k ErrorKind) HTTPStatus() int {
	switch k {
	case KindValidation:
		return http.StatusBadRequest
	case KindTimeout:
		return http.StatusGatewayTimeout
	case KindTransient:
		return http.StatusServiceUnavailable
	case KindPermanent:
		return http.StatusUnprocessableEntity
	case KindCancelled:
		return StatusClientClosedRequest
	default:
		return http.StatusInternalServerError
	}
}

// NewValidationError creates a non-retryable input error.
func NewValidationError(message string) *Error {
	return NewError(KindValidation, message).WithCode(ErrInvalidInput)
}

// NewTimeoutError creates a deadline error.
func NewTimeoutError(message string) *Error {
	return NewError(KindTimeout, message).WithCode(ErrDeadlineExceeded)
}

// NewTransientError creates a retry-amenable error.
func NewTransientError(message string) *Error {
	return NewError(KindTransient, message).WithCode(ErrServiceUnavailable)
}

// NewPermanentError creates an error that retrying cannot fix.
func NewPermanentError(message string) *Error {
	return NewError(KindPermanent, message).WithCode(ErrGenerationFailed)
}

// NewCancelledError creates a cancellation error.
func NewCancelledError(message string) *Error {
	return NewError(KindCancelled, message).WithCode(ErrRequestCancelled)
}

// NewInternalError creates a catch-all error.
func NewInternalError(message string) *Error {
	return NewError(KindInternal, message).WithCode(ErrInternalError)
}

// AsError extracts an *Error from the chain.
func AsError(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// IsRetryable checks if an error is retryable.
func IsRetryable(err error) bool {
	if e, ok := AsError(err); ok {
		return e.Retryable
	}
	return false
}

// KindOf returns the kind of a classified error, or KindInternal.
func KindOf(err error) ErrorKind {
	if e, ok := AsError(err); ok {
		return e.Kind
	}
	return KindInternal
}

// Translate classifies any error into exactly one kind. Unclassified errors
// become Internal with a generic message; the original stays reachable via Cause.
func Translate(err error) *Error {
	if err == nil {
		return nil
	}
	if e, ok := AsError(err); ok {
		return e
	}
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return NewTimeoutError("deadline exceeded").WithCause(err)
	case errors.Is(err, context.Canceled):
		return NewCancelledError("request cancelled").WithCause(err)
	default:
		return NewInternalError("internal error").WithCause(err)
	}
}
