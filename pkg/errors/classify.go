package errors

import (
	"errors"
	"time"
)

// RetryAfter extracts the provider-specified backoff from an error chain.
// Returns false when the error is not a throttling signal.
func RetryAfter(err error) (time.Duration, bool) {
	var throttled *ThrottledError
	if errors.As(err, &throttled) {
		return throttled.RetryAfter, true
	}
	return 0, false
}

// IsRetryable reports whether an error may be retried at all.
// Throttled and transient errors are retryable; validation, auth-lost and
// internal errors are not.
func IsRetryable(err error) bool {
	var (
		throttled *ThrottledError
		transient *TransientError
	)
	return errors.As(err, &throttled) || errors.As(err, &transient)
}

// IsAuthLost reports whether the stored credential was rejected and the
// account must log in again
func IsAuthLost(err error) bool {
	var authLost *AuthLostError
	return errors.As(err, &authLost)
}
