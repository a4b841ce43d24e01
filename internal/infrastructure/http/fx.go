package http

import (
	"context"

	"github.com/rs/zerolog"
	"go.uber.org/fx"

	"github.com/Conte777/TeleVault/config"
	deliveryhttp "github.com/Conte777/TeleVault/internal/delivery/http"
	"github.com/Conte777/TeleVault/internal/domain"
	"github.com/Conte777/TeleVault/internal/infrastructure/http/server"
	"github.com/Conte777/TeleVault/internal/registry"
	"github.com/Conte777/TeleVault/internal/transfer"
)

// Module provides HTTP server for fx DI
var Module = fx.Module("http",
	fx.Provide(NewServerFx),
	fx.Invoke(registerRoutes),
)

// NewServerFx creates HTTP server with lifecycle hooks for fx DI
func NewServerFx(
	lc fx.Lifecycle,
	serviceCfg *config.ServiceConfig,
	logger zerolog.Logger,
) *server.Server {
	srv := server.NewServer(serviceCfg.Port, logger)

	srv.RegisterMetrics()

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			return srv.Start()
		},
		OnStop: func(ctx context.Context) error {
			return srv.Shutdown(ctx)
		},
	})

	return srv
}

// RouteParams collects the components the HTTP endpoints report on.
// The publisher binding is nil when event publishing is disabled; the
// health report then leaves that component out.
type RouteParams struct {
	fx.In

	Server       *server.Server
	Registry     *registry.Registry
	Orchestrator *transfer.Orchestrator
	Publisher    domain.EventPublisher `optional:"true"`
	Logger       zerolog.Logger
}

func registerRoutes(p RouteParams) {
	var publisher deliveryhttp.PublisherHealthChecker
	if hc, ok := p.Publisher.(deliveryhttp.PublisherHealthChecker); ok {
		publisher = hc
	}
	p.Server.RegisterHealth(deliveryhttp.NewHealthHandler(p.Registry, p.Orchestrator, publisher, p.Logger))
}
