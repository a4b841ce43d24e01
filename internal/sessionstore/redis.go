package sessionstore

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/Conte777/TeleVault/internal/domain"
)

// RedisStore is the networked backend. Expiry is delegated to redis itself,
// so no sweeper runs for this backend.
type RedisStore struct {
	client *redis.Client
	logger zerolog.Logger
}

// NewRedisStore creates a redis-backed session store
func NewRedisStore(client *redis.Client, logger zerolog.Logger) *RedisStore {
	return &RedisStore{
		client: client,
		logger: logger.With().Str("component", "session_store_redis").Logger(),
	}
}

func recordKey(userID int64, accountID string) string {
	return fmt.Sprintf("session:%d:%s", userID, accountID)
}

func userPattern(userID int64) string {
	return fmt.Sprintf("session:%d:*", userID)
}

// Put stores or overwrites a record, resetting its expiry
func (s *RedisStore) Put(ctx context.Context, record *domain.EncryptedSessionRecord, ttl time.Duration) error {
	stored := *record
	stored.ExpiresAt = time.Now().UTC().Add(ttl)

	data, err := json.Marshal(&stored)
	if err != nil {
		return fmt.Errorf("failed to marshal session record: %w", err)
	}

	if err := s.client.Set(ctx, recordKey(record.UserID, record.AccountID), data, ttl).Err(); err != nil {
		return fmt.Errorf("failed to store session record: %w", err)
	}
	return nil
}

// Get returns the record if redis still holds it
func (s *RedisStore) Get(ctx context.Context, userID int64, accountID string) (*domain.EncryptedSessionRecord, error) {
	data, err := s.client.Get(ctx, recordKey(userID, accountID)).Bytes()
	if err == redis.Nil {
		return nil, domain.ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load session record: %w", err)
	}

	var record domain.EncryptedSessionRecord
	if err := json.Unmarshal(data, &record); err != nil {
		return nil, fmt.Errorf("failed to unmarshal session record: %w", err)
	}
	return &record, nil
}

// ListForUser scans all record keys belonging to a user
func (s *RedisStore) ListForUser(ctx context.Context, userID int64) ([]*domain.EncryptedSessionRecord, error) {
	var records []*domain.EncryptedSessionRecord

	iter := s.client.Scan(ctx, 0, userPattern(userID), 0).Iterator()
	for iter.Next(ctx) {
		data, err := s.client.Get(ctx, iter.Val()).Bytes()
		if err == redis.Nil {
			// Expired between SCAN and GET
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("failed to load session record %s: %w", iter.Val(), err)
		}

		var record domain.EncryptedSessionRecord
		if err := json.Unmarshal(data, &record); err != nil {
			s.logger.Warn().Str("key", iter.Val()).Err(err).Msg("skipping corrupt session record")
			continue
		}
		records = append(records, &record)
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("failed to scan session records: %w", err)
	}

	return records, nil
}

// Invalidate removes one record
func (s *RedisStore) Invalidate(ctx context.Context, userID int64, accountID string) error {
	if err := s.client.Del(ctx, recordKey(userID, accountID)).Err(); err != nil {
		return fmt.Errorf("failed to delete session record: %w", err)
	}
	return nil
}

// InvalidateAll removes all records for a user
func (s *RedisStore) InvalidateAll(ctx context.Context, userID int64) error {
	iter := s.client.Scan(ctx, 0, userPattern(userID), 0).Iterator()
	for iter.Next(ctx) {
		if err := s.client.Del(ctx, iter.Val()).Err(); err != nil {
			return fmt.Errorf("failed to delete session record %s: %w", iter.Val(), err)
		}
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("failed to scan session records: %w", err)
	}
	return nil
}

// Ensure RedisStore implements domain.SessionStore interface
var _ domain.SessionStore = (*RedisStore)(nil)
