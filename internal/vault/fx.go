package vault

import (
	"go.uber.org/fx"

	"github.com/Conte777/TeleVault/internal/domain"
)

// Module provides the session vault for fx DI
var Module = fx.Module("vault",
	fx.Provide(
		New,
		func(v *Vault) domain.Vault { return v },
	),
)
