package errors

import (
	"fmt"
	"time"
)

type baseError struct {
	message string
}

func (e *baseError) Error() string {
	return e.message
}

// ThrottledError signals that the provider asked the caller to slow down.
// RetryAfter carries the provider-specified delay.
type ThrottledError struct {
	baseError
	RetryAfter time.Duration
}

func NewThrottledError(retryAfter time.Duration) *ThrottledError {
	return &ThrottledError{
		baseError:  baseError{message: fmt.Sprintf("provider throttled, retry after %s", retryAfter)},
		RetryAfter: retryAfter,
	}
}

// ValidationError represents rejected caller input (bad phone, bad code,
// unknown account); never retried automatically
type ValidationError struct {
	baseError
}

func NewValidationError(message string) *ValidationError {
	return &ValidationError{baseError{message: message}}
}

func NewValidationErrorf(format string, args ...interface{}) *ValidationError {
	return &ValidationError{baseError{message: fmt.Sprintf(format, args...)}}
}

// AuthLostError means the provider rejected a stored session as invalid.
// The caller must re-login; the stale credential is never retried.
type AuthLostError struct {
	baseError
}

func NewAuthLostError(message string) *AuthLostError {
	return &AuthLostError{baseError{message: message}}
}

// TransientError is a temporary I/O failure worth a bounded number of retries
type TransientError struct {
	baseError
}

func NewTransientError(message string) *TransientError {
	return &TransientError{baseError{message: message}}
}

func NewTransientErrorf(format string, args ...interface{}) *TransientError {
	return &TransientError{baseError{message: fmt.Sprintf(format, args...)}}
}

// InternalError is an unexpected failure; logged with full context but
// surfaced to callers without internal detail. Non-retryable by default.
type InternalError struct {
	baseError
}

func NewInternalError(message string) *InternalError {
	return &InternalError{baseError{message: message}}
}

func NewInternalErrorf(format string, args ...interface{}) *InternalError {
	return &InternalError{baseError{message: fmt.Sprintf(format, args...)}}
}
