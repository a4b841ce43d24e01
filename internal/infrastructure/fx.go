package infrastructure

import (
	"go.uber.org/fx"

	"github.com/Conte777/TeleVault/internal/infrastructure/database"
	httpfx "github.com/Conte777/TeleVault/internal/infrastructure/http"
	"github.com/Conte777/TeleVault/internal/infrastructure/kafka"
	"github.com/Conte777/TeleVault/internal/infrastructure/logger"
	"github.com/Conte777/TeleVault/internal/infrastructure/metrics"
	"github.com/Conte777/TeleVault/internal/infrastructure/redis"
	"github.com/Conte777/TeleVault/internal/infrastructure/s3"
	"github.com/Conte777/TeleVault/internal/infrastructure/telegram"
)

// Module aggregates all infrastructure modules
var Module = fx.Module("infrastructure",
	logger.Module,
	metrics.Module,
	database.Module,
	redis.Module,
	telegram.Module,
	kafka.Module,
	s3.Module,
	httpfx.Module,
)
