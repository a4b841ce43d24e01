package telegram

import (
	"go.uber.org/fx"

	"github.com/Conte777/TeleVault/internal/domain"
)

// Module provides the MTProto transport factory
var Module = fx.Module("telegram",
	fx.Provide(
		NewFactory,
		func(f *Factory) domain.TransportFactory { return f },
	),
)
