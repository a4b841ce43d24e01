package domain

import (
	"context"
	"time"
)

// Transport is one live MTProto connection for a single account.
// Implementations wrap the provider client; the engine core never touches
// the wire protocol directly.
type Transport interface {
	// SendCode requests a verification code for the phone number the
	// transport was created with and returns the opaque phone_code_hash.
	SendCode(ctx context.Context) (string, error)

	// SignIn submits a verification code. Returns ErrPasswordNeeded when the
	// account requires a second factor, ErrInvalidCode on rejection.
	SignIn(ctx context.Context, code, codeHash string) error

	// CheckPassword submits the 2FA password. Returns ErrInvalidPassword
	// on rejection.
	CheckPassword(ctx context.Context, password string) error

	// ExportSession returns the opaque session string for the authorized
	// connection so it can be encrypted and persisted.
	ExportSession(ctx context.Context) (string, error)

	// ResolveMedia resolves a media reference to its size and filename
	ResolveMedia(ctx context.Context, ref MediaRef) (MediaInfo, error)

	// DownloadChunk fetches up to limit bytes of the referenced media
	// starting at offset. ResolveMedia must be called first.
	DownloadChunk(ctx context.Context, ref MediaRef, offset int64, limit int) ([]byte, error)

	// BeginUpload starts a multipart upload and returns its provider-side ID
	BeginUpload(ctx context.Context, size int64) (int64, error)

	// UploadPart sends one file part of an upload started with BeginUpload
	UploadPart(ctx context.Context, uploadID int64, part int, data []byte) error

	// FinishUpload commits the uploaded parts as a document message to peer
	FinishUpload(ctx context.Context, uploadID int64, parts int, peer, filename, caption string, size int64) error

	// SendChatAction reports an ongoing action (e.g. uploading a document)
	SendChatAction(ctx context.Context, peer string, progress int) error

	Disconnect(ctx context.Context) error
	IsConnected() bool
	AccountID() string
	PhoneNumber() string
}

// TransportFactory creates live transports. Connect dials a fresh,
// unauthorized connection for a login flow; Restore dials using a previously
// exported session string.
type TransportFactory interface {
	Connect(ctx context.Context, phone string) (Transport, error)
	Restore(ctx context.Context, phone, sessionString string) (Transport, error)
}

// Vault encrypts session strings for storage and decrypts stored records.
// The master key lives only in process memory.
type Vault interface {
	Encrypt(plaintext string, userID int64, accountID string) (*EncryptedSessionRecord, error)
	Decrypt(record *EncryptedSessionRecord) (string, error)
}

// SessionStore persists encrypted session records with a TTL. Backends are
// interchangeable; callers never know which one is active.
type SessionStore interface {
	Put(ctx context.Context, record *EncryptedSessionRecord, ttl time.Duration) error
	Get(ctx context.Context, userID int64, accountID string) (*EncryptedSessionRecord, error)
	ListForUser(ctx context.Context, userID int64) ([]*EncryptedSessionRecord, error)
	Invalidate(ctx context.Context, userID int64, accountID string) error
	InvalidateAll(ctx context.Context, userID int64) error
}

// AccountRegistry is the in-memory source of truth for connected accounts.
// All access goes through this interface; the underlying map is never shared.
type AccountRegistry interface {
	// Register stores a live handle, replacing and disconnecting any
	// existing handle for the same (user, account) key
	Register(ctx context.Context, userID int64, accountID string, handle Transport) error

	// Get returns the handle for a specific account
	Get(userID int64, accountID string) (Transport, error)

	// GetActive returns the primary account's handle, or the first
	// registered one if no primary is set
	GetActive(userID int64) (string, Transport, error)

	// Switch marks an already-registered account as the user's primary
	Switch(userID int64, accountID string) error

	// Deregister disconnects and removes one handle; it does not fail when
	// the handle is already disconnected
	Deregister(ctx context.Context, userID int64, accountID string) error

	// DeregisterAll disconnects and removes all handles for a user
	DeregisterAll(ctx context.Context, userID int64) error

	// ListAccounts returns the account IDs currently registered for a user
	ListAccounts(userID int64) []string

	// Shutdown disconnects everything and returns the number of handles closed
	Shutdown(ctx context.Context) int
}

// CallGate is the shared token-bucket gate placed in front of every outbound
// provider call. Acquire blocks until a token is available; it never rejects.
type CallGate interface {
	Acquire(ctx context.Context) error
}

// AccountRepository persists the per-user account list
type AccountRepository interface {
	Upsert(ctx context.Context, account *UserAccount) error
	ListForUser(ctx context.Context, userID int64) ([]UserAccount, error)
	SetPrimary(ctx context.Context, userID int64, accountID string) error
	Touch(ctx context.Context, userID int64, accountID string, at time.Time) error
	Delete(ctx context.Context, userID int64, accountID string) error
	DeleteAll(ctx context.Context, userID int64) error
}

// TaskOrchestrator executes transfer tasks with bounded concurrency
type TaskOrchestrator interface {
	Submit(spec TransferSpec) (string, error)
	Cancel(taskID string) error
	Task(taskID string) (TransferTask, error)
	SubscribeProgress(taskID string) (<-chan ProgressEvent, error)
	Shutdown(ctx context.Context)
}

// EventPublisher pushes task lifecycle events to external collaborators.
// Implementations must be safe for concurrent use and must never block the
// transfer loop for long.
type EventPublisher interface {
	PublishTaskEvent(event TaskEvent)
	IsHealthy() bool
	Close() error
}

// MediaArchiver copies completed downloads to long-term storage
type MediaArchiver interface {
	Archive(ctx context.Context, taskID, path, filename string) (string, error)
}
