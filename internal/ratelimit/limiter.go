// Package ratelimit provides the single token-bucket gate shared by every
// outbound provider call. It models the provider-side global throttling
// constraint: capacity N, refilled continuously at the configured rate.
package ratelimit

import (
	"context"

	"golang.org/x/time/rate"

	"github.com/Conte777/TeleVault/config"
	"github.com/Conte777/TeleVault/internal/domain"
)

// Gate wraps a token bucket. Acquire blocks until a token is available;
// requests are never dropped or rejected, only delayed.
type Gate struct {
	limiter *rate.Limiter
}

// New creates a gate with the given bucket capacity and refill rate
func New(capacity, refillPerSec int) *Gate {
	return &Gate{
		limiter: rate.NewLimiter(rate.Limit(refillPerSec), capacity),
	}
}

// NewFromConfig creates the shared gate from configuration
func NewFromConfig(cfg *config.RateLimitConfig) *Gate {
	return New(cfg.Capacity, cfg.RefillPerSec)
}

// Acquire takes one token, suspending the caller until one is available
// or the context is cancelled
func (g *Gate) Acquire(ctx context.Context) error {
	return g.limiter.Wait(ctx)
}

// Ensure Gate implements domain.CallGate interface
var _ domain.CallGate = (*Gate)(nil)
