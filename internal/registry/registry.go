// Package registry is the in-memory source of truth for which accounts are
// currently connected. Handles are owned exclusively by the registry and are
// never serialized; mutation is serialized per user.
package registry

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/Conte777/TeleVault/internal/domain"
	"github.com/Conte777/TeleVault/internal/utils"
)

const disconnectTimeout = 5 * time.Second

// userAccounts holds one user's connected handles. Its mutex serializes all
// mutation for that user while leaving other users unblocked.
type userAccounts struct {
	mu      sync.Mutex
	handles map[string]domain.Transport
	order   []string // registration order, for the no-primary fallback
	primary string
}

// Registry implements domain.AccountRegistry
type Registry struct {
	mu     sync.RWMutex
	users  map[int64]*userAccounts
	logger zerolog.Logger
}

// New creates an empty account registry
func New(logger zerolog.Logger) *Registry {
	return &Registry{
		users:  make(map[int64]*userAccounts),
		logger: logger.With().Str("component", "account_registry").Logger(),
	}
}

func (r *Registry) user(userID int64, create bool) *userAccounts {
	r.mu.RLock()
	ua, ok := r.users[userID]
	r.mu.RUnlock()
	if ok || !create {
		return ua
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if ua, ok = r.users[userID]; ok {
		return ua
	}
	ua = &userAccounts{handles: make(map[string]domain.Transport)}
	r.users[userID] = ua
	return ua
}

// Register stores a live handle. Idempotent: an existing handle for the same
// key is disconnected before being replaced.
func (r *Registry) Register(ctx context.Context, userID int64, accountID string, handle domain.Transport) error {
	if handle == nil {
		return domain.ErrNotConnected
	}

	ua := r.user(userID, true)
	ua.mu.Lock()
	defer ua.mu.Unlock()

	if old, ok := ua.handles[accountID]; ok {
		r.disconnect(old, userID, accountID)
	} else {
		ua.order = append(ua.order, accountID)
	}
	ua.handles[accountID] = handle

	r.logger.Info().
		Int64("user_id", userID).
		Str("account", utils.MaskPhoneNumber(accountID)).
		Msg("registered account handle")
	return nil
}

// Get returns the handle for a specific account
func (r *Registry) Get(userID int64, accountID string) (domain.Transport, error) {
	ua := r.user(userID, false)
	if ua == nil {
		return nil, domain.ErrUnknownAccount
	}

	ua.mu.Lock()
	defer ua.mu.Unlock()

	handle, ok := ua.handles[accountID]
	if !ok {
		return nil, domain.ErrUnknownAccount
	}
	return handle, nil
}

// GetActive returns the primary account's handle, falling back to the first
// registered account when no primary is flagged
func (r *Registry) GetActive(userID int64) (string, domain.Transport, error) {
	ua := r.user(userID, false)
	if ua == nil {
		return "", nil, domain.ErrNoActiveAccounts
	}

	ua.mu.Lock()
	defer ua.mu.Unlock()

	if ua.primary != "" {
		if handle, ok := ua.handles[ua.primary]; ok {
			return ua.primary, handle, nil
		}
	}
	if len(ua.order) > 0 {
		first := ua.order[0]
		return first, ua.handles[first], nil
	}
	return "", nil, domain.ErrNoActiveAccounts
}

// Switch marks a registered account as the user's primary
func (r *Registry) Switch(userID int64, accountID string) error {
	ua := r.user(userID, false)
	if ua == nil {
		return domain.ErrUnknownAccount
	}

	ua.mu.Lock()
	defer ua.mu.Unlock()

	if _, ok := ua.handles[accountID]; !ok {
		return domain.ErrUnknownAccount
	}
	ua.primary = accountID

	r.logger.Info().
		Int64("user_id", userID).
		Str("account", utils.MaskPhoneNumber(accountID)).
		Msg("switched active account")
	return nil
}

// Deregister disconnects and removes one handle. Removing an unknown or
// already-disconnected handle is not an error.
func (r *Registry) Deregister(ctx context.Context, userID int64, accountID string) error {
	ua := r.user(userID, false)
	if ua == nil {
		return nil
	}

	ua.mu.Lock()
	defer ua.mu.Unlock()

	handle, ok := ua.handles[accountID]
	if !ok {
		return nil
	}

	r.disconnect(handle, userID, accountID)
	delete(ua.handles, accountID)
	for i, id := range ua.order {
		if id == accountID {
			ua.order = append(ua.order[:i], ua.order[i+1:]...)
			break
		}
	}
	if ua.primary == accountID {
		ua.primary = ""
	}
	return nil
}

// DeregisterAll disconnects and removes all handles for a user
func (r *Registry) DeregisterAll(ctx context.Context, userID int64) error {
	ua := r.user(userID, false)
	if ua == nil {
		return nil
	}

	ua.mu.Lock()
	defer ua.mu.Unlock()

	for accountID, handle := range ua.handles {
		r.disconnect(handle, userID, accountID)
		delete(ua.handles, accountID)
	}
	ua.order = nil
	ua.primary = ""
	return nil
}

// ListAccounts returns the account IDs registered for a user in
// registration order
func (r *Registry) ListAccounts(userID int64) []string {
	ua := r.user(userID, false)
	if ua == nil {
		return nil
	}

	ua.mu.Lock()
	defer ua.mu.Unlock()

	ids := make([]string, len(ua.order))
	copy(ids, ua.order)
	return ids
}

// ActiveCount returns the number of connected handles across all users
func (r *Registry) ActiveCount() int {
	r.mu.RLock()
	users := make([]*userAccounts, 0, len(r.users))
	for _, ua := range r.users {
		users = append(users, ua)
	}
	r.mu.RUnlock()

	count := 0
	for _, ua := range users {
		ua.mu.Lock()
		for _, handle := range ua.handles {
			if handle.IsConnected() {
				count++
			}
		}
		ua.mu.Unlock()
	}
	return count
}

// Shutdown disconnects every handle and returns how many were closed
func (r *Registry) Shutdown(ctx context.Context) int {
	r.mu.Lock()
	users := r.users
	r.users = make(map[int64]*userAccounts)
	r.mu.Unlock()

	closed := 0
	for userID, ua := range users {
		ua.mu.Lock()
		for accountID, handle := range ua.handles {
			r.disconnect(handle, userID, accountID)
			closed++
		}
		ua.mu.Unlock()
	}

	r.logger.Info().Int("disconnected", closed).Msg("account registry shutdown completed")
	return closed
}

// disconnect closes a handle with a bounded timeout; failures are logged,
// never propagated (the handle may already be dead)
func (r *Registry) disconnect(handle domain.Transport, userID int64, accountID string) {
	ctx, cancel := context.WithTimeout(context.Background(), disconnectTimeout)
	defer cancel()

	if err := handle.Disconnect(ctx); err != nil {
		r.logger.Warn().
			Int64("user_id", userID).
			Str("account", utils.MaskPhoneNumber(accountID)).
			Err(err).
			Msg("failed to disconnect handle")
	}
}

// Ensure Registry implements domain.AccountRegistry interface
var _ domain.AccountRegistry = (*Registry)(nil)
