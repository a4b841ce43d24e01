package transfer

import (
	"context"

	"github.com/rs/zerolog"
	"go.uber.org/fx"

	"github.com/Conte777/TeleVault/config"
	"github.com/Conte777/TeleVault/internal/domain"
	"github.com/Conte777/TeleVault/internal/infrastructure/metrics"
)

// Params collects the orchestrator's dependencies. The publisher and archiver
// are optional: their backends can be disabled by configuration.
type Params struct {
	fx.In

	Registry  domain.AccountRegistry
	Gate      domain.CallGate
	Publisher domain.EventPublisher `optional:"true"`
	Archiver  domain.MediaArchiver  `optional:"true"`
	Sessions  domain.SessionStore
	Cfg       *config.TransferConfig
	Logger    zerolog.Logger
	Metrics   *metrics.Metrics
}

// Module provides the transfer orchestrator bound to the application lifecycle
var Module = fx.Module("transfer",
	fx.Provide(
		func(p Params) *Orchestrator {
			return New(p.Registry, p.Gate, p.Publisher, p.Archiver, p.Sessions, p.Cfg, p.Logger, p.Metrics)
		},
		func(o *Orchestrator) domain.TaskOrchestrator { return o },
	),
	fx.Invoke(func(lc fx.Lifecycle, o *Orchestrator, svc *config.ServiceConfig) {
		lc.Append(fx.Hook{
			OnStop: func(ctx context.Context) error {
				shutdownCtx, cancel := context.WithTimeout(ctx, svc.ShutdownTimeout)
				defer cancel()
				o.Shutdown(shutdownCtx)
				return nil
			},
		})
	}),
)
