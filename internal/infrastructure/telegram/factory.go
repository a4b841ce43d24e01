package telegram

import (
	"context"
	"encoding/base64"
	"fmt"

	"github.com/gotd/td/session"
	"github.com/rs/zerolog"

	"github.com/Conte777/TeleVault/config"
	"github.com/Conte777/TeleVault/internal/domain"
	"github.com/Conte777/TeleVault/internal/utils"
	pkgerrors "github.com/Conte777/TeleVault/pkg/errors"
)

// Factory creates MTProto transports. Each transport gets its own
// in-memory session storage; nothing is written to disk.
type Factory struct {
	apiID   int
	apiHash string
	logger  zerolog.Logger
}

var _ domain.TransportFactory = (*Factory)(nil)

func NewFactory(cfg *config.TelegramConfig, logger zerolog.Logger) *Factory {
	return &Factory{
		apiID:   cfg.APIID,
		apiHash: cfg.APIHash,
		logger:  logger,
	}
}

// Connect dials a fresh, unauthorized connection for a login flow
func (f *Factory) Connect(ctx context.Context, phone string) (domain.Transport, error) {
	storage := &session.StorageMemory{}
	transport := newTransport(f.apiID, f.apiHash, phone, storage, f.logger)

	if err := transport.connect(ctx); err != nil {
		return nil, err
	}
	return transport, nil
}

// Restore dials a connection seeded with a previously exported session
// and verifies the authorization is still valid. A dead session comes
// back as an auth-lost error so the caller can invalidate the record.
func (f *Factory) Restore(ctx context.Context, phone, sessionString string) (domain.Transport, error) {
	data, err := base64.StdEncoding.DecodeString(sessionString)
	if err != nil {
		return nil, pkgerrors.NewValidationErrorf("malformed session string: %v", err)
	}

	storage := &session.StorageMemory{}
	if err := storage.StoreSession(ctx, data); err != nil {
		return nil, fmt.Errorf("failed to seed session storage: %w", err)
	}

	transport := newTransport(f.apiID, f.apiHash, phone, storage, f.logger)
	if err := transport.connect(ctx); err != nil {
		return nil, err
	}

	authorized, err := transport.isAuthorized(ctx)
	if err != nil {
		_ = transport.Disconnect(ctx)
		return nil, err
	}
	if !authorized {
		_ = transport.Disconnect(ctx)
		f.logger.Warn().
			Str("phone", utils.MaskPhoneNumber(phone)).
			Msg("stored session is no longer authorized")
		return nil, pkgerrors.NewAuthLostError("session is no longer authorized")
	}

	return transport, nil
}
