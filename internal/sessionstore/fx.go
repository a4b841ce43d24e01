package sessionstore

import (
	"context"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"go.uber.org/fx"

	"github.com/Conte777/TeleVault/config"
	"github.com/Conte777/TeleVault/internal/domain"
)

// Module provides the session store for fx DI
var Module = fx.Module("sessionstore",
	fx.Provide(NewSessionStoreFx),
)

// NewSessionStoreFx selects the backend at construction time: redis when a
// client is available, the in-memory fallback otherwise. Callers depend only
// on domain.SessionStore.
func NewSessionStoreFx(
	lc fx.Lifecycle,
	cfg *config.SessionStoreConfig,
	client *redis.Client,
	logger zerolog.Logger,
) domain.SessionStore {
	if client != nil {
		logger.Info().Msg("using redis session store backend")
		return NewRedisStore(client, logger)
	}

	logger.Info().Msg("redis unavailable, using in-memory session store backend")
	store := NewMemoryStore(logger)

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			store.StartSweeper(cfg.SweepInterval)
			return nil
		},
		OnStop: func(ctx context.Context) error {
			store.StopSweeper()
			return nil
		},
	})

	return store
}
