package postgres

import (
	"github.com/rs/zerolog"
	"go.uber.org/fx"
	"gorm.io/gorm"

	"github.com/Conte777/TeleVault/internal/domain"
	"github.com/Conte777/TeleVault/internal/repository/memory"
)

// Module provides the account repository. When the database is disabled the
// in-memory fallback keeps the account list for the process lifetime.
var Module = fx.Module("account_repository",
	fx.Provide(func(db *gorm.DB, logger zerolog.Logger) domain.AccountRepository {
		if db == nil {
			logger.Info().Msg("database disabled, using in-memory account repository")
			return memory.NewAccountRepository()
		}
		return NewAccountRepository(db, logger)
	}),
)
