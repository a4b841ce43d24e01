package telegram

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"sync"

	"github.com/gotd/td/session"
	"github.com/gotd/td/telegram"
	"github.com/gotd/td/telegram/auth"
	"github.com/gotd/td/tg"
	"github.com/rs/zerolog"

	"github.com/Conte777/TeleVault/internal/domain"
	"github.com/Conte777/TeleVault/internal/utils"
	pkgerrors "github.com/Conte777/TeleVault/pkg/errors"
)

// Transport is an MTProto-backed connection for a single account.
// One Transport owns one gotd client and its run goroutine; all state
// transitions happen under mu.
type Transport struct {
	phone   string
	apiID   int
	apiHash string

	mu            sync.RWMutex
	client        *telegram.Client
	api           *tg.Client
	storage       *session.StorageMemory
	connected     bool
	disconnecting bool
	cancel        context.CancelFunc
	runDone       chan struct{}

	peers     map[string]tg.InputPeerClass
	locations map[mediaKey]resolvedMedia

	logger zerolog.Logger
}

type mediaKey struct {
	peer      string
	messageID int
}

type resolvedMedia struct {
	location tg.InputFileLocationClass
	info     domain.MediaInfo
}

var _ domain.Transport = (*Transport)(nil)

func newTransport(apiID int, apiHash, phone string, storage *session.StorageMemory, logger zerolog.Logger) *Transport {
	return &Transport{
		phone:     phone,
		apiID:     apiID,
		apiHash:   apiHash,
		storage:   storage,
		peers:     make(map[string]tg.InputPeerClass),
		locations: make(map[mediaKey]resolvedMedia),
		logger:    logger.With().Str("component", "mtproto_transport").Str("phone", utils.MaskPhoneNumber(phone)).Logger(),
	}
}

// connect dials the client and blocks until the run loop reports ready.
// The run goroutine stays alive until Disconnect cancels its context.
func (t *Transport) connect(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.connected {
		return nil
	}

	client := telegram.NewClient(t.apiID, t.apiHash, telegram.Options{
		SessionStorage: t.storage,
	})

	clientCtx, cancel := context.WithCancel(context.Background())
	readyChan := make(chan struct{})
	errChan := make(chan error, 1)
	runDone := make(chan struct{})

	go func() {
		defer close(runDone)
		err := client.Run(clientCtx, func(runCtx context.Context) error {
			close(readyChan)
			// Keep the connection alive until disconnect
			<-runCtx.Done()
			return runCtx.Err()
		})
		if err != nil && !errors.Is(err, context.Canceled) {
			select {
			case errChan <- err:
			default:
			}
			t.logger.Error().Err(err).Msg("client run loop exited with error")
		}
	}()

	select {
	case <-readyChan:
	case err := <-errChan:
		cancel()
		return fmt.Errorf("failed to connect: %w", mapRPCError(err))
	case <-ctx.Done():
		cancel()
		return ctx.Err()
	}

	t.client = client
	t.api = client.API()
	t.cancel = cancel
	t.runDone = runDone
	t.connected = true

	t.logger.Info().Msg("connected to telegram")
	return nil
}

// Disconnect stops the run loop and waits for it to exit. Waiting is
// bounded by the caller's context; state is cleaned up either way.
func (t *Transport) Disconnect(ctx context.Context) error {
	t.mu.Lock()
	if !t.connected || t.disconnecting {
		t.mu.Unlock()
		return nil
	}
	t.disconnecting = true
	cancel := t.cancel
	runDone := t.runDone
	t.mu.Unlock()

	cancel()

	select {
	case <-runDone:
	case <-ctx.Done():
		t.logger.Warn().Msg("timeout waiting for run loop to stop")
	}

	t.mu.Lock()
	t.client = nil
	t.api = nil
	t.cancel = nil
	t.runDone = nil
	t.connected = false
	t.disconnecting = false
	t.mu.Unlock()

	t.logger.Info().Msg("disconnected from telegram")
	return nil
}

func (t *Transport) IsConnected() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.connected
}

// AccountID is the account's stable identifier; the phone number serves
// as the key everywhere in the engine.
func (t *Transport) AccountID() string {
	return t.phone
}

func (t *Transport) PhoneNumber() string {
	return t.phone
}

// authClient returns the auth flow client, guarding against use before
// connect or after disconnect
func (t *Transport) authClient() (*auth.Client, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if !t.connected || t.client == nil {
		return nil, domain.ErrNotConnected
	}
	return t.client.Auth(), nil
}

func (t *Transport) apiClient() (*tg.Client, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if !t.connected || t.api == nil {
		return nil, domain.ErrNotConnected
	}
	return t.api, nil
}

// SendCode requests a login code for the transport's phone number and
// returns the phone_code_hash the provider issued for this attempt
func (t *Transport) SendCode(ctx context.Context) (string, error) {
	authC, err := t.authClient()
	if err != nil {
		return "", err
	}

	sent, err := authC.SendCode(ctx, t.phone, auth.SendCodeOptions{})
	if err != nil {
		return "", mapAuthError(err)
	}

	code, ok := sent.(*tg.AuthSentCode)
	if !ok {
		return "", pkgerrors.NewInternalErrorf("unexpected sent code type %T", sent)
	}

	t.logger.Debug().Msg("verification code sent")
	return code.PhoneCodeHash, nil
}

// SignIn submits the verification code for the pending login
func (t *Transport) SignIn(ctx context.Context, code, codeHash string) error {
	authC, err := t.authClient()
	if err != nil {
		return err
	}

	if _, err := authC.SignIn(ctx, t.phone, code, codeHash); err != nil {
		return mapAuthError(err)
	}

	t.logger.Info().Msg("signed in")
	return nil
}

// CheckPassword submits the 2FA password for an account with cloud
// password protection enabled
func (t *Transport) CheckPassword(ctx context.Context, password string) error {
	authC, err := t.authClient()
	if err != nil {
		return err
	}

	if _, err := authC.Password(ctx, password); err != nil {
		return mapAuthError(err)
	}

	t.logger.Info().Msg("2FA password accepted")
	return nil
}

// ExportSession serializes the in-memory session so the caller can
// encrypt and persist it. The raw bytes never leave this method
// unencoded.
func (t *Transport) ExportSession(ctx context.Context) (string, error) {
	t.mu.RLock()
	storage := t.storage
	connected := t.connected
	t.mu.RUnlock()

	if !connected || storage == nil {
		return "", domain.ErrNotConnected
	}

	data, err := storage.LoadSession(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to load session: %w", err)
	}
	if len(data) == 0 {
		return "", pkgerrors.NewInternalError("session storage is empty")
	}

	return base64.StdEncoding.EncodeToString(data), nil
}

// isAuthorized reports whether the current session holds a valid
// authorization
func (t *Transport) isAuthorized(ctx context.Context) (bool, error) {
	authC, err := t.authClient()
	if err != nil {
		return false, err
	}

	status, err := authC.Status(ctx)
	if err != nil {
		return false, mapRPCError(err)
	}
	return status.Authorized, nil
}
