// Package auth drives the per-user login state machine:
// disconnected -> code_sent -> password_needed -> connected, with a bounded
// number of invalid-credential attempts before the flow fails.
package auth

import (
	"context"
	"errors"
	"regexp"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/Conte777/TeleVault/config"
	"github.com/Conte777/TeleVault/internal/domain"
	"github.com/Conte777/TeleVault/internal/infrastructure/metrics"
	"github.com/Conte777/TeleVault/internal/utils"
	pkgerrors "github.com/Conte777/TeleVault/pkg/errors"
)

// phoneRegex accepts E.164 numbers: leading +, 8 to 15 digits total
var phoneRegex = regexp.MustCompile(`^\+[1-9][0-9]{7,14}$`)

// loginSession tracks one in-flight login flow. At most one exists per user.
type loginSession struct {
	phone     string
	transport domain.Transport
	codeHash  string
	state     domain.AuthState
	attempts  int
	busy      bool // a transition holds the flow between take and release
	updatedAt time.Time
}

func (s *loginSession) terminal() bool {
	return s.state == domain.AuthStateConnected || s.state == domain.AuthStateFailed
}

// Manager owns all login flows and the commit of completed ones into the
// vault, session store and account registry
type Manager struct {
	mu       sync.Mutex
	sessions map[int64]*loginSession

	factory  domain.TransportFactory
	vault    domain.Vault
	store    domain.SessionStore
	registry domain.AccountRegistry
	accounts domain.AccountRepository
	gate     domain.CallGate

	maxAttempts  int
	staleTimeout time.Duration
	sessionTTL   time.Duration

	logger  zerolog.Logger
	metrics *metrics.Metrics
	now     func() time.Time

	sweepCancel context.CancelFunc
	sweepDone   chan struct{}
}

// New creates a login manager. The accounts repository may be nil when the
// database is disabled; the persisted account list is then skipped.
func New(
	factory domain.TransportFactory,
	vault domain.Vault,
	store domain.SessionStore,
	registry domain.AccountRegistry,
	accounts domain.AccountRepository,
	gate domain.CallGate,
	authCfg *config.AuthConfig,
	sessionsCfg *config.SessionStoreConfig,
	logger zerolog.Logger,
	m *metrics.Metrics,
) *Manager {
	return &Manager{
		sessions:     make(map[int64]*loginSession),
		factory:      factory,
		vault:        vault,
		store:        store,
		registry:     registry,
		accounts:     accounts,
		gate:         gate,
		maxAttempts:  authCfg.MaxAttempts,
		staleTimeout: authCfg.SessionTimeout,
		sessionTTL:   sessionsCfg.TTL,
		logger:       logger.With().Str("component", "auth_manager").Logger(),
		metrics:      m,
		now:          time.Now,
	}
}

// State returns the current login state for a user. Users with no flow and no
// connected accounts are disconnected.
func (m *Manager) State(userID int64) domain.AuthState {
	m.mu.Lock()
	defer m.mu.Unlock()

	if s, ok := m.sessions[userID]; ok {
		return s.state
	}
	if len(m.registry.ListAccounts(userID)) > 0 {
		return domain.AuthStateConnected
	}
	return domain.AuthStateDisconnected
}

// BeginLogin starts a login flow: dials a fresh connection and requests a
// verification code. Returns ErrLoginAlreadyInProgress when a non-terminal
// flow already exists for the user.
func (m *Manager) BeginLogin(ctx context.Context, userID int64, phone string) (domain.AuthState, error) {
	if !phoneRegex.MatchString(phone) {
		return domain.AuthStateDisconnected, domain.ErrInvalidPhoneFormat
	}

	m.mu.Lock()
	if existing, ok := m.sessions[userID]; ok {
		if existing.busy || (!existing.terminal() && m.now().Sub(existing.updatedAt) < m.staleTimeout) {
			m.mu.Unlock()
			return existing.state, domain.ErrLoginAlreadyInProgress
		}
		// Stale or finished flow: evict before starting over
		m.evictLocked(userID, existing)
	}
	// Reserve the slot before releasing the lock so concurrent BeginLogin
	// calls for the same user cannot both dial
	placeholder := &loginSession{phone: phone, state: domain.AuthStateDisconnected, updatedAt: m.now()}
	m.sessions[userID] = placeholder
	m.mu.Unlock()

	m.metrics.LoginsStarted.Inc()
	m.metrics.ActiveLoginFlows.Inc()

	fail := func(err error) (domain.AuthState, error) {
		m.mu.Lock()
		delete(m.sessions, userID)
		m.mu.Unlock()
		m.metrics.ActiveLoginFlows.Dec()
		return domain.AuthStateDisconnected, err
	}

	transport, err := m.factory.Connect(ctx, phone)
	if err != nil {
		return fail(err)
	}

	if err := m.gate.Acquire(ctx); err != nil {
		m.disconnect(transport)
		return fail(err)
	}
	codeHash, err := transport.SendCode(ctx)
	if err != nil {
		m.disconnect(transport)
		if retryAfter, ok := pkgerrors.RetryAfter(err); ok {
			m.metrics.FloodWaitsTotal.Inc()
			m.metrics.FloodWaitSeconds.Observe(retryAfter.Seconds())
		}
		return fail(err)
	}

	m.mu.Lock()
	placeholder.transport = transport
	placeholder.codeHash = codeHash
	placeholder.state = domain.AuthStateCodeSent
	placeholder.updatedAt = m.now()
	m.mu.Unlock()

	m.logger.Info().
		Int64("user_id", userID).
		Str("phone", utils.MaskPhoneNumber(phone)).
		Msg("verification code sent")
	return domain.AuthStateCodeSent, nil
}

// SubmitCode advances a flow in code_sent with a verification code.
// An invalid code leaves the flow in code_sent until the attempt bound is
// exhausted, at which point the flow fails and is torn down.
func (m *Manager) SubmitCode(ctx context.Context, userID int64, code string) (domain.AuthState, error) {
	s, err := m.take(userID, domain.AuthStateCodeSent)
	if err != nil {
		return m.State(userID), err
	}
	defer m.release(s)

	if err := m.gate.Acquire(ctx); err != nil {
		return domain.AuthStateCodeSent, err
	}
	err = s.transport.SignIn(ctx, code, s.codeHash)
	switch {
	case err == nil:
		return m.commit(ctx, userID, s)

	case errors.Is(err, domain.ErrPasswordNeeded):
		m.transition(userID, s, domain.AuthStatePasswordNeeded)
		m.logger.Info().Int64("user_id", userID).Msg("two-factor password required")
		return domain.AuthStatePasswordNeeded, nil

	case errors.Is(err, domain.ErrInvalidCode):
		return m.recordBadAttempt(userID, s, err)

	default:
		return m.abort(userID, s, err)
	}
}

// SubmitPassword advances a flow in password_needed with the 2FA password
func (m *Manager) SubmitPassword(ctx context.Context, userID int64, password string) (domain.AuthState, error) {
	s, err := m.take(userID, domain.AuthStatePasswordNeeded)
	if err != nil {
		return m.State(userID), err
	}
	defer m.release(s)

	if err := m.gate.Acquire(ctx); err != nil {
		return domain.AuthStatePasswordNeeded, err
	}
	err = s.transport.CheckPassword(ctx, password)
	switch {
	case err == nil:
		return m.commit(ctx, userID, s)

	case errors.Is(err, domain.ErrInvalidPassword):
		return m.recordBadAttempt(userID, s, err)

	default:
		return m.abort(userID, s, err)
	}
}

// CancelLogin tears down an in-flight flow. The user's connected accounts are
// untouched.
func (m *Manager) CancelLogin(userID int64) error {
	m.mu.Lock()
	s, ok := m.sessions[userID]
	if !ok {
		m.mu.Unlock()
		return domain.ErrNoLoginInProgress
	}
	if s.busy {
		m.mu.Unlock()
		return domain.ErrLoginAlreadyInProgress
	}
	m.evictLocked(userID, s)
	m.mu.Unlock()

	m.metrics.ActiveLoginFlows.Dec()
	m.logger.Info().Int64("user_id", userID).Msg("login flow cancelled")
	return nil
}

// Logout disconnects one account and invalidates its persisted session
func (m *Manager) Logout(ctx context.Context, userID int64, accountID string) error {
	if err := m.registry.Deregister(ctx, userID, accountID); err != nil {
		m.logger.Warn().Int64("user_id", userID).Err(err).Msg("deregister failed during logout")
	}
	if err := m.store.Invalidate(ctx, userID, accountID); err != nil && !errors.Is(err, domain.ErrSessionNotFound) {
		return err
	}
	m.metrics.SessionsInvalidated.Inc()

	if m.accounts != nil {
		if err := m.accounts.Delete(ctx, userID, accountID); err != nil {
			m.logger.Warn().Int64("user_id", userID).Err(err).Msg("account record delete failed")
		}
	}

	m.logger.Info().
		Int64("user_id", userID).
		Str("account", utils.MaskPhoneNumber(accountID)).
		Msg("account logged out")
	return nil
}

// LogoutAll disconnects every account for a user and wipes their sessions
func (m *Manager) LogoutAll(ctx context.Context, userID int64) error {
	if err := m.registry.DeregisterAll(ctx, userID); err != nil {
		m.logger.Warn().Int64("user_id", userID).Err(err).Msg("deregister all failed during logout")
	}
	if err := m.store.InvalidateAll(ctx, userID); err != nil {
		return err
	}
	if m.accounts != nil {
		if err := m.accounts.DeleteAll(ctx, userID); err != nil {
			m.logger.Warn().Int64("user_id", userID).Err(err).Msg("account records delete failed")
		}
	}
	return nil
}

// RestoreAccounts reconnects a user's accounts from persisted sessions.
// Records that no longer decrypt or whose sessions the provider rejects are
// invalidated; the account then needs a fresh login. Returns the number of
// accounts restored.
func (m *Manager) RestoreAccounts(ctx context.Context, userID int64) (int, error) {
	records, err := m.store.ListForUser(ctx, userID)
	if err != nil {
		return 0, err
	}

	restored := 0
	for _, record := range records {
		if _, err := m.registry.Get(userID, record.AccountID); err == nil {
			continue // already connected
		}

		plaintext, err := m.vault.Decrypt(record)
		if err != nil {
			m.logger.Warn().
				Int64("user_id", userID).
				Str("account", utils.MaskPhoneNumber(record.AccountID)).
				Msg("stored session no longer decrypts, invalidating")
			m.store.Invalidate(ctx, userID, record.AccountID)
			m.metrics.SessionsInvalidated.Inc()
			continue
		}

		if err := m.gate.Acquire(ctx); err != nil {
			return restored, err
		}
		transport, err := m.factory.Restore(ctx, record.AccountID, plaintext)
		if err != nil {
			if pkgerrors.IsAuthLost(err) {
				m.logger.Warn().
					Int64("user_id", userID).
					Str("account", utils.MaskPhoneNumber(record.AccountID)).
					Msg("stored session rejected by provider, relogin required")
				m.store.Invalidate(ctx, userID, record.AccountID)
				m.metrics.SessionsInvalidated.Inc()
				continue
			}
			m.logger.Error().Int64("user_id", userID).Err(err).Msg("session restore failed")
			continue
		}

		if err := m.registry.Register(ctx, userID, record.AccountID, transport); err != nil {
			m.disconnect(transport)
			continue
		}
		restored++
		m.metrics.SessionsRestored.Inc()
	}

	if m.accounts != nil && restored > 0 {
		m.restorePrimary(ctx, userID)
	}
	return restored, nil
}

// restorePrimary reapplies the persisted primary flag after a restore
func (m *Manager) restorePrimary(ctx context.Context, userID int64) {
	list, err := m.accounts.ListForUser(ctx, userID)
	if err != nil {
		return
	}
	for _, acct := range list {
		if acct.IsPrimary {
			if err := m.registry.Switch(userID, acct.AccountID); err == nil {
				return
			}
		}
	}
}

// take fetches the user's flow, checks it is in the expected state and marks
// it busy. At most one transition runs per user at a time; a flow taken here
// must be handed back through release.
func (m *Manager) take(userID int64, want domain.AuthState) (*loginSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[userID]
	if !ok {
		return nil, domain.ErrNoLoginInProgress
	}
	if s.busy {
		return nil, domain.ErrLoginAlreadyInProgress
	}
	if s.state != want {
		return nil, domain.ErrInvalidTransition
	}
	if m.now().Sub(s.updatedAt) >= m.staleTimeout {
		m.evictLocked(userID, s)
		return nil, domain.ErrNoLoginInProgress
	}
	s.busy = true
	return s, nil
}

// release clears the busy mark set by take. Harmless on flows that the
// transition already evicted.
func (m *Manager) release(s *loginSession) {
	m.mu.Lock()
	s.busy = false
	m.mu.Unlock()
}

func (m *Manager) transition(userID int64, s *loginSession, state domain.AuthState) {
	m.mu.Lock()
	s.state = state
	s.updatedAt = m.now()
	m.mu.Unlock()
}

// recordBadAttempt counts an invalid credential. The flow survives until the
// attempt bound, then fails and is torn down.
func (m *Manager) recordBadAttempt(userID int64, s *loginSession, cause error) (domain.AuthState, error) {
	m.mu.Lock()
	s.attempts++
	s.updatedAt = m.now()
	attempts := s.attempts
	exhausted := attempts >= m.maxAttempts
	state := s.state
	if exhausted {
		s.state = domain.AuthStateFailed
		m.evictLocked(userID, s)
	}
	m.mu.Unlock()

	if exhausted {
		m.metrics.ActiveLoginFlows.Dec()
		m.metrics.LoginsFailed.WithLabelValues("too_many_attempts").Inc()
		m.logger.Warn().
			Int64("user_id", userID).
			Int("attempts", attempts).
			Msg("login failed, attempt bound exhausted")
		return domain.AuthStateFailed, domain.ErrTooManyAttempts
	}
	return state, cause
}

// abort tears down a flow on an unexpected provider error. Throttled errors
// do NOT abort: the flow state is preserved so the caller can retry after the
// mandated wait.
func (m *Manager) abort(userID int64, s *loginSession, cause error) (domain.AuthState, error) {
	if retryAfter, ok := pkgerrors.RetryAfter(cause); ok {
		m.metrics.FloodWaitsTotal.Inc()
		m.metrics.FloodWaitSeconds.Observe(retryAfter.Seconds())
		m.mu.Lock()
		state := s.state
		s.updatedAt = m.now()
		m.mu.Unlock()
		return state, cause
	}

	m.mu.Lock()
	s.state = domain.AuthStateFailed
	m.evictLocked(userID, s)
	m.mu.Unlock()

	m.metrics.ActiveLoginFlows.Dec()
	m.metrics.LoginsFailed.WithLabelValues("provider_error").Inc()
	m.logger.Error().Int64("user_id", userID).Err(cause).Msg("login flow aborted")
	return domain.AuthStateFailed, cause
}

// commit finalizes an authorized flow: export, encrypt, persist, register.
// A persistence failure rolls the whole flow back to failed; a connected
// handle is never left unregistered or unpersisted.
func (m *Manager) commit(ctx context.Context, userID int64, s *loginSession) (domain.AuthState, error) {
	rollback := func(err error) (domain.AuthState, error) {
		m.mu.Lock()
		s.state = domain.AuthStateFailed
		m.evictLocked(userID, s)
		m.mu.Unlock()
		m.metrics.ActiveLoginFlows.Dec()
		m.metrics.LoginsFailed.WithLabelValues("commit").Inc()
		return domain.AuthStateFailed, err
	}

	if err := m.gate.Acquire(ctx); err != nil {
		return rollback(err)
	}
	sessionString, err := s.transport.ExportSession(ctx)
	if err != nil {
		return rollback(err)
	}

	record, err := m.vault.Encrypt(sessionString, userID, s.phone)
	if err != nil {
		return rollback(err)
	}
	if err := m.store.Put(ctx, record, m.sessionTTL); err != nil {
		return rollback(err)
	}

	if err := m.registry.Register(ctx, userID, s.phone, s.transport); err != nil {
		m.store.Invalidate(ctx, userID, s.phone)
		return rollback(err)
	}

	// Registry now owns the transport; drop the flow without disconnecting
	m.mu.Lock()
	s.state = domain.AuthStateConnected
	delete(m.sessions, userID)
	m.mu.Unlock()

	if m.accounts != nil {
		acct := &domain.UserAccount{
			UserID:      userID,
			AccountID:   s.phone,
			PhoneNumber: s.phone,
			IsActive:    true,
			LastUsed:    m.now(),
			CreatedAt:   m.now(),
		}
		if err := m.accounts.Upsert(ctx, acct); err != nil {
			m.logger.Warn().Int64("user_id", userID).Err(err).Msg("account record upsert failed")
		}
	}

	m.metrics.ActiveLoginFlows.Dec()
	m.metrics.LoginsCompleted.Inc()
	m.logger.Info().
		Int64("user_id", userID).
		Str("account", utils.MaskPhoneNumber(s.phone)).
		Msg("login completed, account connected")
	return domain.AuthStateConnected, nil
}

// evictLocked removes a flow and disconnects its transport. Caller holds mu.
func (m *Manager) evictLocked(userID int64, s *loginSession) {
	delete(m.sessions, userID)
	if s.transport != nil && s.state != domain.AuthStateConnected {
		m.disconnect(s.transport)
	}
}

func (m *Manager) disconnect(t domain.Transport) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := t.Disconnect(ctx); err != nil {
		m.logger.Warn().Err(err).Msg("transport disconnect failed")
	}
}

// StartSweeper evicts flows that outlived the staleness timeout
func (m *Manager) StartSweeper(interval time.Duration) {
	ctx, cancel := context.WithCancel(context.Background())
	m.sweepCancel = cancel
	m.sweepDone = make(chan struct{})

	go func() {
		defer close(m.sweepDone)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				m.sweepStale()
			}
		}
	}()
}

// StopSweeper stops the background sweep and waits for it to exit
func (m *Manager) StopSweeper() {
	if m.sweepCancel == nil {
		return
	}
	m.sweepCancel()
	<-m.sweepDone
	m.sweepCancel = nil
}

func (m *Manager) sweepStale() {
	m.mu.Lock()
	var evicted int
	for userID, s := range m.sessions {
		if s.busy {
			continue // an in-flight transition owns the flow
		}
		if m.now().Sub(s.updatedAt) >= m.staleTimeout {
			m.evictLocked(userID, s)
			evicted++
		}
	}
	m.mu.Unlock()

	if evicted > 0 {
		m.metrics.ActiveLoginFlows.Sub(float64(evicted))
		m.logger.Info().Int("evicted", evicted).Msg("evicted stale login flows")
	}
}
