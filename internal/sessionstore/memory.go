// Package sessionstore persists encrypted session records with a TTL behind
// one interface. The redis backend relies on native key expiry; the local
// in-memory backend evicts lazily on read and sweeps periodically.
package sessionstore

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/Conte777/TeleVault/internal/domain"
)

type storeKey struct {
	userID    int64
	accountID string
}

type memoryEntry struct {
	record    *domain.EncryptedSessionRecord
	expiresAt time.Time
}

// MemoryStore is the local fallback backend used when no networked cache
// is configured
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[storeKey]*memoryEntry
	logger  zerolog.Logger

	sweepCancel context.CancelFunc
	sweepDone   chan struct{}

	// now is overridable for expiry tests
	now func() time.Time
}

// NewMemoryStore creates an in-memory session store
func NewMemoryStore(logger zerolog.Logger) *MemoryStore {
	return &MemoryStore{
		entries: make(map[storeKey]*memoryEntry),
		logger:  logger.With().Str("component", "session_store_memory").Logger(),
		now:     time.Now,
	}
}

// Put stores or overwrites a record, resetting its expiry
func (s *MemoryStore) Put(ctx context.Context, record *domain.EncryptedSessionRecord, ttl time.Duration) error {
	expiresAt := s.now().Add(ttl)

	// Stamp expiry on the stored copy so callers see it too
	stored := *record
	stored.ExpiresAt = expiresAt

	s.mu.Lock()
	defer s.mu.Unlock()

	s.entries[storeKey{record.UserID, record.AccountID}] = &memoryEntry{
		record:    &stored,
		expiresAt: expiresAt,
	}
	return nil
}

// Get returns the record if present and unexpired, lazily evicting expired
// entries
func (s *MemoryStore) Get(ctx context.Context, userID int64, accountID string) (*domain.EncryptedSessionRecord, error) {
	key := storeKey{userID, accountID}

	s.mu.RLock()
	entry, ok := s.entries[key]
	s.mu.RUnlock()

	if !ok {
		return nil, domain.ErrSessionNotFound
	}

	if s.now().After(entry.expiresAt) {
		s.mu.Lock()
		// Re-check under the write lock; a concurrent Put may have renewed it
		if current, ok := s.entries[key]; ok && s.now().After(current.expiresAt) {
			delete(s.entries, key)
		}
		s.mu.Unlock()
		return nil, domain.ErrSessionNotFound
	}

	return entry.record, nil
}

// ListForUser returns all unexpired records for a user
func (s *MemoryStore) ListForUser(ctx context.Context, userID int64) ([]*domain.EncryptedSessionRecord, error) {
	now := s.now()

	s.mu.RLock()
	defer s.mu.RUnlock()

	var records []*domain.EncryptedSessionRecord
	for key, entry := range s.entries {
		if key.userID == userID && now.Before(entry.expiresAt) {
			records = append(records, entry.record)
		}
	}
	return records, nil
}

// Invalidate removes one record
func (s *MemoryStore) Invalidate(ctx context.Context, userID int64, accountID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.entries, storeKey{userID, accountID})
	return nil
}

// InvalidateAll removes all records for a user
func (s *MemoryStore) InvalidateAll(ctx context.Context, userID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for key := range s.entries {
		if key.userID == userID {
			delete(s.entries, key)
		}
	}
	return nil
}

// SweepExpired removes every expired entry and returns how many were evicted.
// Safe to call concurrently with Get/Put.
func (s *MemoryStore) SweepExpired() int {
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()

	evicted := 0
	for key, entry := range s.entries {
		if now.After(entry.expiresAt) {
			delete(s.entries, key)
			evicted++
		}
	}
	return evicted
}

// StartSweeper launches the periodic cleanup pass. Stop with StopSweeper.
func (s *MemoryStore) StartSweeper(interval time.Duration) {
	ctx, cancel := context.WithCancel(context.Background())
	s.sweepCancel = cancel
	s.sweepDone = make(chan struct{})

	go func() {
		defer close(s.sweepDone)

		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				if evicted := s.SweepExpired(); evicted > 0 {
					s.logger.Debug().Int("evicted", evicted).Msg("swept expired session records")
				}
			case <-ctx.Done():
				return
			}
		}
	}()
}

// StopSweeper stops the periodic cleanup pass and waits for it to exit
func (s *MemoryStore) StopSweeper() {
	if s.sweepCancel != nil {
		s.sweepCancel()
		<-s.sweepDone
		s.sweepCancel = nil
	}
}

// Ensure MemoryStore implements domain.SessionStore interface
var _ domain.SessionStore = (*MemoryStore)(nil)
