package app

import (
	"go.uber.org/fx"

	"github.com/Conte777/TeleVault/config"
	"github.com/Conte777/TeleVault/internal/auth"
	"github.com/Conte777/TeleVault/internal/infrastructure"
	"github.com/Conte777/TeleVault/internal/ratelimit"
	"github.com/Conte777/TeleVault/internal/registry"
	"github.com/Conte777/TeleVault/internal/repository/postgres"
	"github.com/Conte777/TeleVault/internal/sessionstore"
	"github.com/Conte777/TeleVault/internal/transfer"
	"github.com/Conte777/TeleVault/internal/usecase"
	"github.com/Conte777/TeleVault/internal/vault"
)

// CreateApp creates the fx application options
func CreateApp() fx.Option {
	return fx.Options(
		fx.Provide(config.Out),
		infrastructure.Module,
		// Core modules
		vault.Module,
		sessionstore.Module,
		postgres.Module,
		ratelimit.Module,
		registry.Module,
		auth.Module,
		transfer.Module,
		usecase.Module,
	)
}
