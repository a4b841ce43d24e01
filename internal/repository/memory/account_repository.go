package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/Conte777/TeleVault/internal/domain"
)

type accountKey struct {
	userID    int64
	accountID string
}

// accountRepository implements domain.AccountRepository using in-memory
// storage. It is the fallback when no database is configured: the account
// list and primary-account choice then survive only until restart.
type accountRepository struct {
	mu       sync.RWMutex
	accounts map[accountKey]*domain.UserAccount
}

// NewAccountRepository creates a new in-memory account repository
func NewAccountRepository() domain.AccountRepository {
	return &accountRepository{
		accounts: make(map[accountKey]*domain.UserAccount),
	}
}

// Upsert inserts or refreshes an account record
func (r *accountRepository) Upsert(ctx context.Context, account *domain.UserAccount) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := accountKey{userID: account.UserID, accountID: account.AccountID}
	if existing, ok := r.accounts[key]; ok {
		existing.PhoneNumber = account.PhoneNumber
		existing.IsActive = account.IsActive
		existing.LastUsed = account.LastUsed
		return nil
	}

	stored := *account
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = time.Now().UTC()
	}
	r.accounts[key] = &stored
	return nil
}

// ListForUser returns the user's accounts ordered by creation time
func (r *accountRepository) ListForUser(ctx context.Context, userID int64) ([]domain.UserAccount, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	accounts := make([]domain.UserAccount, 0)
	for key, account := range r.accounts {
		if key.userID == userID {
			accounts = append(accounts, *account)
		}
	}

	sort.Slice(accounts, func(i, j int) bool {
		return accounts[i].CreatedAt.Before(accounts[j].CreatedAt)
	})
	return accounts, nil
}

// SetPrimary marks one account as the user's primary and clears the rest
func (r *accountRepository) SetPrimary(ctx context.Context, userID int64, accountID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	target, ok := r.accounts[accountKey{userID: userID, accountID: accountID}]
	if !ok {
		return domain.ErrUnknownAccount
	}

	for key, account := range r.accounts {
		if key.userID == userID {
			account.IsPrimary = false
		}
	}
	target.IsPrimary = true
	return nil
}

// Touch updates an account's last-used timestamp
func (r *accountRepository) Touch(ctx context.Context, userID int64, accountID string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	account, ok := r.accounts[accountKey{userID: userID, accountID: accountID}]
	if !ok {
		return domain.ErrUnknownAccount
	}
	account.LastUsed = at
	return nil
}

// Delete removes one account record
func (r *accountRepository) Delete(ctx context.Context, userID int64, accountID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.accounts, accountKey{userID: userID, accountID: accountID})
	return nil
}

// DeleteAll removes every account record of a user
func (r *accountRepository) DeleteAll(ctx context.Context, userID int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for key := range r.accounts {
		if key.userID == userID {
			delete(r.accounts, key)
		}
	}
	return nil
}
