package auth

import (
	"context"

	"go.uber.org/fx"

	"github.com/Conte777/TeleVault/config"
)

// Module provides the login manager with its stale-flow sweeper bound to the
// application lifecycle
var Module = fx.Module("auth",
	fx.Provide(New),
	fx.Invoke(func(lc fx.Lifecycle, m *Manager, cfg *config.SessionStoreConfig) {
		lc.Append(fx.Hook{
			OnStart: func(ctx context.Context) error {
				m.StartSweeper(cfg.SweepInterval)
				return nil
			},
			OnStop: func(ctx context.Context) error {
				m.StopSweeper()
				return nil
			},
		})
	}),
)
