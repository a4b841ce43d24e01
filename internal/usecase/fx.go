package usecase

import (
	"github.com/rs/zerolog"
	"go.uber.org/fx"

	"github.com/Conte777/TeleVault/internal/auth"
	"github.com/Conte777/TeleVault/internal/domain"
	"github.com/Conte777/TeleVault/internal/infrastructure/metrics"
)

// Params collects the engine's dependencies
type Params struct {
	fx.In

	Auth         *auth.Manager
	Registry     domain.AccountRegistry
	Orchestrator domain.TaskOrchestrator
	Accounts     domain.AccountRepository `optional:"true"`
	Logger       zerolog.Logger
	Metrics      *metrics.Metrics
}

// Module provides the engine facade. The invoke builds it eagerly: the
// engine is the surface outer layers attach to, so a broken dependency
// graph should fail at startup, not on first use.
var Module = fx.Module("usecase",
	fx.Provide(func(p Params) *Engine {
		return NewEngine(p.Auth, p.Registry, p.Orchestrator, p.Accounts, p.Logger, p.Metrics)
	}),
	fx.Invoke(func(e *Engine, logger zerolog.Logger) {
		logger.Info().Msg("engine ready")
	}),
)
