package s3

import (
	"context"

	"github.com/rs/zerolog"
	"go.uber.org/fx"

	"github.com/Conte777/TeleVault/config"
	"github.com/Conte777/TeleVault/internal/domain"
)

// Module provides the media archiver. Without a configured endpoint the
// binding resolves to nil and downloads stay local only.
var Module = fx.Module("s3",
	fx.Provide(NewArchiverFx),
)

// NewArchiverFx creates the archiver and verifies the bucket on startup
func NewArchiverFx(lc fx.Lifecycle, cfg *config.S3Config, logger zerolog.Logger) (domain.MediaArchiver, error) {
	if cfg.Endpoint == "" {
		logger.Info().Msg("s3 not configured, downloads will not be archived")
		return nil, nil
	}

	archiver, err := NewArchiver(cfg, logger)
	if err != nil {
		return nil, err
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			return archiver.EnsureBucket(ctx)
		},
	})
	return archiver, nil
}
