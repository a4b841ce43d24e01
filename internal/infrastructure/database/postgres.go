// Package database owns the PostgreSQL connection and schema migration
package database

import (
	"fmt"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/Conte777/TeleVault/config"
	repo "github.com/Conte777/TeleVault/internal/repository/postgres"
)

// NewPostgresDB opens a PostgreSQL connection from config
func NewPostgresDB(cfg *config.DatabaseConfig) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.Open(cfg.GetDSN()), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to postgres: %w", err)
	}
	return db, nil
}

// Migrate applies the schema for all persisted models
func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&repo.UserAccountModel{},
	)
}
