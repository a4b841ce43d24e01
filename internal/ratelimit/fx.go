package ratelimit

import (
	"go.uber.org/fx"

	"github.com/Conte777/TeleVault/internal/domain"
)

// Module provides the shared call gate for fx DI
var Module = fx.Module("ratelimit",
	fx.Provide(func(g *Gate) domain.CallGate { return g }),
	fx.Provide(NewFromConfig),
)
