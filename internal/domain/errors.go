package domain

import "errors"

var (
	// ErrInvalidPhoneFormat is returned when a phone number does not match
	// the required international format
	ErrInvalidPhoneFormat = errors.New("invalid phone number format")

	// ErrInvalidCode is returned when the provider rejects a verification code
	ErrInvalidCode = errors.New("invalid verification code")

	// ErrInvalidPassword is returned when the provider rejects a 2FA password
	ErrInvalidPassword = errors.New("invalid 2FA password")

	// ErrPasswordNeeded is returned by SignIn when the account requires a
	// second factor after code verification
	ErrPasswordNeeded = errors.New("2FA password required")

	// ErrLoginAlreadyInProgress is returned when a second login is started
	// for a user whose previous login session is still active
	ErrLoginAlreadyInProgress = errors.New("login already in progress")

	// ErrNoLoginInProgress is returned when a code or password is submitted
	// for a user with no login session
	ErrNoLoginInProgress = errors.New("no login in progress")

	// ErrInvalidTransition is returned when an operation is not legal in the
	// current login state; the state is left unchanged
	ErrInvalidTransition = errors.New("operation not allowed in current state")

	// ErrTooManyAttempts is returned when the bounded retry counter for
	// codes or passwords is exhausted; the login session is terminated
	ErrTooManyAttempts = errors.New("too many failed attempts")

	// ErrUnknownAccount is returned when an account_id is not registered
	// for the given user
	ErrUnknownAccount = errors.New("unknown account")

	// ErrNoActiveAccounts is returned when the user has no connected accounts
	ErrNoActiveAccounts = errors.New("no active accounts available")

	// ErrSessionNotFound is returned when no stored session record exists
	// or the record has expired
	ErrSessionNotFound = errors.New("session record not found")

	// ErrDecryptionFailed is returned on tampered ciphertext, wrong master
	// key, or a corrupt record; no partial plaintext is ever returned
	ErrDecryptionFailed = errors.New("session record decryption failed")

	// ErrNeedsRelogin is returned when the provider rejects the stored
	// session; the account has been deregistered and must log in again
	ErrNeedsRelogin = errors.New("stored session is no longer valid, re-login required")

	// ErrNotConnected is returned when an operation requires a live connection
	ErrNotConnected = errors.New("not connected to provider")

	// ErrTaskNotFound is returned for an unknown transfer task ID
	ErrTaskNotFound = errors.New("transfer task not found")

	// ErrTaskNotCancellable is returned when cancelling a task that already
	// reached a terminal state
	ErrTaskNotCancellable = errors.New("task already finished")

	// ErrOrchestratorClosed is returned when submitting to a stopped orchestrator
	ErrOrchestratorClosed = errors.New("orchestrator is shut down")
)
