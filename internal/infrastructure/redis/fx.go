package redis

import (
	"context"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"go.uber.org/fx"

	"github.com/Conte777/TeleVault/config"
)

// Module provides the Redis client. An empty address disables Redis; an
// unreachable server degrades to the in-memory session store instead of
// failing startup.
var Module = fx.Module("redis",
	fx.Provide(NewClientFx),
)

// NewClientFx creates the Redis client with fx lifecycle management
func NewClientFx(lc fx.Lifecycle, cfg *config.RedisConfig, logger zerolog.Logger) *redis.Client {
	if cfg.Addr == "" {
		logger.Info().Msg("redis not configured, using in-memory session store")
		return nil
	}

	client, err := NewClient(cfg)
	if err != nil {
		logger.Warn().Err(err).Str("addr", cfg.Addr).Msg("redis unreachable, falling back to in-memory session store")
		return nil
	}

	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			logger.Info().Msg("Closing redis connection")
			return client.Close()
		},
	})

	logger.Info().Str("addr", cfg.Addr).Msg("Redis connected successfully")
	return client
}
