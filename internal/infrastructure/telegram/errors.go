package telegram

import (
	"context"
	"errors"

	"github.com/gotd/td/telegram/auth"
	"github.com/gotd/td/tgerr"

	"github.com/Conte777/TeleVault/internal/domain"
	pkgerrors "github.com/Conte777/TeleVault/pkg/errors"
)

// authLostCodes are RPC errors meaning the session is dead and the account
// needs a fresh login
var authLostCodes = []string{
	"AUTH_KEY_UNREGISTERED",
	"AUTH_KEY_INVALID",
	"SESSION_REVOKED",
	"SESSION_EXPIRED",
	"USER_DEACTIVATED",
}

// transientCodes are RPC errors worth retrying as-is
var transientCodes = []string{
	"TIMEOUT",
	"RPC_CALL_FAIL",
	"RPC_MCGET_FAIL",
	"CONNECTION_NOT_INITED",
}

// mapRPCError translates a gotd error into the engine's error taxonomy.
// Flood waits become throttled errors carrying the server-mandated delay;
// dead-session errors become auth-lost; known transient failures become
// retryable. Anything else passes through untouched.
func mapRPCError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}

	if wait, ok := tgerr.AsFloodWait(err); ok {
		return pkgerrors.NewThrottledError(wait)
	}
	for _, code := range authLostCodes {
		if tgerr.Is(err, code) {
			return pkgerrors.NewAuthLostError(code)
		}
	}
	for _, code := range transientCodes {
		if tgerr.Is(err, code) {
			return pkgerrors.NewTransientError(code)
		}
	}
	return err
}

// mapAuthError additionally translates login-flow rejections onto the
// domain sentinels the state machine switches on
func mapAuthError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, auth.ErrPasswordAuthNeeded) || tgerr.Is(err, "SESSION_PASSWORD_NEEDED") {
		return domain.ErrPasswordNeeded
	}
	if tgerr.Is(err, "PHONE_CODE_INVALID") || tgerr.Is(err, "PHONE_CODE_EXPIRED") || tgerr.Is(err, "PHONE_CODE_EMPTY") {
		return domain.ErrInvalidCode
	}
	if tgerr.Is(err, "PASSWORD_HASH_INVALID") {
		return domain.ErrInvalidPassword
	}
	if tgerr.Is(err, "PHONE_NUMBER_INVALID") || tgerr.Is(err, "PHONE_NUMBER_BANNED") {
		return domain.ErrInvalidPhoneFormat
	}
	return mapRPCError(err)
}
