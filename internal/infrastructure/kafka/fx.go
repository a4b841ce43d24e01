package kafka

import (
	"context"

	"github.com/rs/zerolog"
	"go.uber.org/fx"

	"github.com/Conte777/TeleVault/config"
	"github.com/Conte777/TeleVault/internal/domain"
	"github.com/Conte777/TeleVault/internal/infrastructure/metrics"
)

// Module provides the task event publisher. Without configured brokers the
// binding resolves to nil and task events stay internal.
var Module = fx.Module("kafka",
	fx.Provide(NewTaskEventProducerFx),
)

// NewTaskEventProducerFx creates the producer with fx lifecycle management
func NewTaskEventProducerFx(
	lc fx.Lifecycle,
	cfg *config.KafkaConfig,
	logger zerolog.Logger,
	m *metrics.Metrics,
) (domain.EventPublisher, error) {
	if len(cfg.Brokers) == 0 {
		logger.Info().Msg("kafka not configured, task events will not be published")
		return nil, nil
	}

	producer, err := NewTaskEventProducer(ProducerConfig{
		Brokers: cfg.Brokers,
		Topic:   cfg.TopicTasks,
		Logger:  logger,
		Metrics: m,
	})
	if err != nil {
		return nil, err
	}

	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			return producer.Close()
		},
	})
	return producer, nil
}
