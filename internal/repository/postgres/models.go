package postgres

import "time"

// UserAccountModel is the database row for one linked account
type UserAccountModel struct {
	ID          uint      `gorm:"primaryKey"`
	UserID      int64     `gorm:"uniqueIndex:idx_user_account;not null"`
	AccountID   string    `gorm:"uniqueIndex:idx_user_account;not null;size:32"`
	PhoneNumber string    `gorm:"not null;size:32"`
	IsPrimary   bool      `gorm:"not null;default:false"`
	IsActive    bool      `gorm:"not null;default:true"`
	LastUsedAt  time.Time `gorm:""`
	CreatedAt   time.Time `gorm:"autoCreateTime"`
	UpdatedAt   time.Time `gorm:"autoUpdateTime"`
}

// TableName returns the table name for UserAccountModel
func (UserAccountModel) TableName() string {
	return "user_accounts"
}
