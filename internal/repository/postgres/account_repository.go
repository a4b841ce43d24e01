// Package postgres persists the per-user account list so the primary-account
// choice survives restarts.
package postgres

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/Conte777/TeleVault/internal/domain"
)

// AccountRepository implements domain.AccountRepository on PostgreSQL
type AccountRepository struct {
	db     *gorm.DB
	logger zerolog.Logger
}

// NewAccountRepository creates a PostgreSQL-backed account repository
func NewAccountRepository(db *gorm.DB, logger zerolog.Logger) *AccountRepository {
	return &AccountRepository{
		db:     db,
		logger: logger.With().Str("component", "account_repository").Logger(),
	}
}

// Upsert inserts or refreshes one account row keyed by (user_id, account_id)
func (r *AccountRepository) Upsert(ctx context.Context, account *domain.UserAccount) error {
	model := UserAccountModel{
		UserID:      account.UserID,
		AccountID:   account.AccountID,
		PhoneNumber: account.PhoneNumber,
		IsPrimary:   account.IsPrimary,
		IsActive:    account.IsActive,
		LastUsedAt:  account.LastUsed,
	}
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "user_id"}, {Name: "account_id"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"phone_number", "is_active", "last_used_at", "updated_at",
			}),
		}).
		Create(&model).Error
}

// ListForUser returns a user's accounts ordered by creation time
func (r *AccountRepository) ListForUser(ctx context.Context, userID int64) ([]domain.UserAccount, error) {
	var models []UserAccountModel
	err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at ASC").
		Find(&models).Error
	if err != nil {
		return nil, err
	}

	accounts := make([]domain.UserAccount, 0, len(models))
	for _, m := range models {
		accounts = append(accounts, domain.UserAccount{
			UserID:      m.UserID,
			AccountID:   m.AccountID,
			PhoneNumber: m.PhoneNumber,
			IsPrimary:   m.IsPrimary,
			IsActive:    m.IsActive,
			LastUsed:    m.LastUsedAt,
			CreatedAt:   m.CreatedAt,
		})
	}
	return accounts, nil
}

// SetPrimary flags one account as primary and clears the flag on the rest
func (r *AccountRepository) SetPrimary(ctx context.Context, userID int64, accountID string) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&UserAccountModel{}).
			Where("user_id = ?", userID).
			Update("is_primary", false).Error; err != nil {
			return err
		}

		result := tx.Model(&UserAccountModel{}).
			Where("user_id = ? AND account_id = ?", userID, accountID).
			Update("is_primary", true)
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return domain.ErrUnknownAccount
		}
		return nil
	})
}

// Touch stamps the account's last-used time
func (r *AccountRepository) Touch(ctx context.Context, userID int64, accountID string, at time.Time) error {
	return r.db.WithContext(ctx).Model(&UserAccountModel{}).
		Where("user_id = ? AND account_id = ?", userID, accountID).
		Update("last_used_at", at).Error
}

// Delete removes one account row
func (r *AccountRepository) Delete(ctx context.Context, userID int64, accountID string) error {
	return r.db.WithContext(ctx).
		Where("user_id = ? AND account_id = ?", userID, accountID).
		Delete(&UserAccountModel{}).Error
}

// DeleteAll removes every account row for a user
func (r *AccountRepository) DeleteAll(ctx context.Context, userID int64) error {
	return r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Delete(&UserAccountModel{}).Error
}

// Ensure AccountRepository implements domain.AccountRepository interface
var _ domain.AccountRepository = (*AccountRepository)(nil)
