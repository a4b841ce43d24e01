package registry

import (
	"go.uber.org/fx"

	"github.com/Conte777/TeleVault/internal/domain"
)

// Module provides the account registry
var Module = fx.Module("registry",
	fx.Provide(
		New,
		func(r *Registry) domain.AccountRegistry { return r },
	),
)
