// Package redis owns the Redis connection used by the session store
package redis

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/Conte777/TeleVault/config"
)

const pingTimeout = 5 * time.Second

// NewClient connects to Redis and verifies the connection with a ping
func NewClient(cfg *config.RedisConfig) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), pingTimeout)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, err
	}
	return client, nil
}
