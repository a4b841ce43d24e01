package usecase

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/Conte777/TeleVault/internal/domain"
	"github.com/Conte777/TeleVault/internal/infrastructure/metrics"
	"github.com/Conte777/TeleVault/internal/utils"
)

// AuthFlow is the slice of the login manager the engine drives
type AuthFlow interface {
	State(userID int64) domain.AuthState
	BeginLogin(ctx context.Context, userID int64, phone string) (domain.AuthState, error)
	SubmitCode(ctx context.Context, userID int64, code string) (domain.AuthState, error)
	SubmitPassword(ctx context.Context, userID int64, password string) (domain.AuthState, error)
	CancelLogin(userID int64) error
	Logout(ctx context.Context, userID int64, accountID string) error
	LogoutAll(ctx context.Context, userID int64) error
	RestoreAccounts(ctx context.Context, userID int64) (int, error)
}

// Engine is the single entry point callers use: it ties the login flow,
// the account registry and the transfer orchestrator together. All
// per-user state lives in the collaborators; the engine itself is
// stateless and safe for concurrent use.
type Engine struct {
	auth         AuthFlow
	registry     domain.AccountRegistry
	orchestrator domain.TaskOrchestrator
	accounts     domain.AccountRepository
	logger       zerolog.Logger
	metrics      *metrics.Metrics
}

// NewEngine creates the engine facade. The account repository may be nil
// when the database is disabled; account listings then come from the
// registry alone.
func NewEngine(
	auth AuthFlow,
	registry domain.AccountRegistry,
	orchestrator domain.TaskOrchestrator,
	accounts domain.AccountRepository,
	logger zerolog.Logger,
	m *metrics.Metrics,
) *Engine {
	return &Engine{
		auth:         auth,
		registry:     registry,
		orchestrator: orchestrator,
		accounts:     accounts,
		logger:       logger.With().Str("component", "engine").Logger(),
		metrics:      m,
	}
}

// AuthState reports where the user currently is in the login state machine
func (e *Engine) AuthState(userID int64) domain.AuthState {
	return e.auth.State(userID)
}

// BeginLogin starts a login flow for a new account
func (e *Engine) BeginLogin(ctx context.Context, userID int64, phone string) (domain.AuthState, error) {
	return e.auth.BeginLogin(ctx, userID, phone)
}

// SubmitCode advances a login flow with a verification code
func (e *Engine) SubmitCode(ctx context.Context, userID int64, code string) (domain.AuthState, error) {
	return e.auth.SubmitCode(ctx, userID, code)
}

// SubmitPassword advances a login flow with the 2FA password
func (e *Engine) SubmitPassword(ctx context.Context, userID int64, password string) (domain.AuthState, error) {
	return e.auth.SubmitPassword(ctx, userID, password)
}

// CancelLogin abandons an in-progress login flow
func (e *Engine) CancelLogin(userID int64) error {
	return e.auth.CancelLogin(userID)
}

// Logout disconnects one account and invalidates its stored session
func (e *Engine) Logout(ctx context.Context, userID int64, accountID string) error {
	return e.auth.Logout(ctx, userID, accountID)
}

// LogoutAll disconnects every account of a user and wipes their sessions
func (e *Engine) LogoutAll(ctx context.Context, userID int64) error {
	return e.auth.LogoutAll(ctx, userID)
}

// RestoreAccounts reconnects a user's persisted sessions and returns how
// many came back
func (e *Engine) RestoreAccounts(ctx context.Context, userID int64) (int, error) {
	return e.auth.RestoreAccounts(ctx, userID)
}

// ListAccounts returns the user's accounts with live connection state.
// Persisted records are the baseline when the repository is available;
// accounts only known to the registry are included either way.
func (e *Engine) ListAccounts(ctx context.Context, userID int64) ([]domain.UserAccount, error) {
	registered := e.registry.ListAccounts(userID)
	live := make(map[string]bool, len(registered))
	for _, id := range registered {
		live[id] = true
	}

	primary := ""
	if id, _, err := e.registry.GetActive(userID); err == nil {
		primary = id
	}

	if e.accounts == nil {
		accounts := make([]domain.UserAccount, 0, len(registered))
		for _, id := range registered {
			accounts = append(accounts, domain.UserAccount{
				UserID:      userID,
				AccountID:   id,
				PhoneNumber: id,
				IsPrimary:   id == primary,
				IsActive:    true,
			})
		}
		return accounts, nil
	}

	persisted, err := e.accounts.ListForUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list accounts: %w", err)
	}

	seen := make(map[string]bool, len(persisted))
	accounts := make([]domain.UserAccount, 0, len(persisted)+len(registered))
	for _, acc := range persisted {
		acc.IsActive = live[acc.AccountID]
		seen[acc.AccountID] = true
		accounts = append(accounts, acc)
	}
	for _, id := range registered {
		if seen[id] {
			continue
		}
		accounts = append(accounts, domain.UserAccount{
			UserID:      userID,
			AccountID:   id,
			PhoneNumber: id,
			IsPrimary:   id == primary,
			IsActive:    true,
		})
	}
	return accounts, nil
}

// SwitchAccount makes an already-connected account the user's primary.
// The choice is persisted when the repository is available; a persistence
// failure does not undo the in-memory switch.
func (e *Engine) SwitchAccount(ctx context.Context, userID int64, accountID string) error {
	if err := e.registry.Switch(userID, accountID); err != nil {
		return err
	}
	e.metrics.AccountSwitches.Inc()

	if e.accounts != nil {
		if err := e.accounts.SetPrimary(ctx, userID, accountID); err != nil {
			e.logger.Warn().Err(err).
				Int64("user_id", userID).
				Str("account_id", utils.MaskPhoneNumber(accountID)).
				Msg("failed to persist primary account choice")
		}
	}

	e.logger.Info().
		Int64("user_id", userID).
		Str("account_id", utils.MaskPhoneNumber(accountID)).
		Msg("switched primary account")
	return nil
}

// SubmitTransfer enqueues a transfer task and returns its ID
func (e *Engine) SubmitTransfer(ctx context.Context, spec domain.TransferSpec) (string, error) {
	taskID, err := e.orchestrator.Submit(spec)
	if err != nil {
		return "", err
	}

	if e.accounts != nil && spec.AccountID != "" {
		if err := e.accounts.Touch(ctx, spec.UserID, spec.AccountID, time.Now().UTC()); err != nil {
			e.logger.Debug().Err(err).Msg("failed to touch account usage")
		}
	}
	return taskID, nil
}

// CancelTask cancels a pending or running transfer
func (e *Engine) CancelTask(taskID string) error {
	return e.orchestrator.Cancel(taskID)
}

// TaskStatus returns a snapshot of a transfer task
func (e *Engine) TaskStatus(taskID string) (domain.TransferTask, error) {
	return e.orchestrator.Task(taskID)
}

// SubscribeProgress streams progress events for a transfer task
func (e *Engine) SubscribeProgress(taskID string) (<-chan domain.ProgressEvent, error) {
	return e.orchestrator.SubscribeProgress(taskID)
}
