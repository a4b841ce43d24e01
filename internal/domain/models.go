package domain

import "time"

// AuthState represents the state of a per-user login flow
type AuthState string

const (
	AuthStateDisconnected   AuthState = "disconnected"
	AuthStateCodeSent       AuthState = "code_sent"
	AuthStatePasswordNeeded AuthState = "password_needed"
	AuthStateConnected      AuthState = "connected"
	AuthStateFailed         AuthState = "failed"
)

// UserAccount describes one external-network account owned by a bot user.
// Live connections are tracked separately by the account registry; this
// record survives restarts so the primary-account choice is not lost.
type UserAccount struct {
	UserID      int64
	AccountID   string
	PhoneNumber string
	IsPrimary   bool
	IsActive    bool
	LastUsed    time.Time
	CreatedAt   time.Time
}

// EncryptedSessionRecord is the at-rest form of a session string.
// The plaintext session is never persisted; the ciphertext is useless
// without the process-wide master key.
type EncryptedSessionRecord struct {
	UserID        int64     `json:"user_id"`
	AccountID     string    `json:"account_id"`
	Ciphertext    []byte    `json:"ciphertext"`
	Salt          []byte    `json:"salt"`
	KDFIterations int       `json:"kdf_iterations"`
	FormatVersion string    `json:"format_version"`
	CreatedAt     time.Time `json:"created_at"`
	ExpiresAt     time.Time `json:"expires_at"`
}

// TransferDirection is the direction of a transfer task
type TransferDirection string

const (
	DirectionDownload TransferDirection = "download"
	DirectionUpload   TransferDirection = "upload"
)

// TaskStatus represents the lifecycle state of a transfer task
type TaskStatus string

const (
	TaskStatusPending   TaskStatus = "pending"
	TaskStatusRunning   TaskStatus = "running"
	TaskStatusCompleted TaskStatus = "completed"
	TaskStatusFailed    TaskStatus = "failed"
	TaskStatusCancelled TaskStatus = "cancelled"
)

// MediaRef identifies a piece of media on the provider side.
// Peer is a @username reference; MessageID is the message carrying the media.
type MediaRef struct {
	Peer      string `json:"peer"`
	MessageID int    `json:"message_id"`
}

// MediaInfo describes resolved media before a download starts
type MediaInfo struct {
	Size     int64
	Filename string
	MimeType string
}

// RelaySpec describes an upload chained after a successful download
type RelaySpec struct {
	Peer    string `json:"peer"`
	Caption string `json:"caption,omitempty"`
}

// TransferSpec is a transfer request as submitted by a caller
type TransferSpec struct {
	UserID    int64             `json:"user_id"`
	AccountID string            `json:"account_id"`
	Direction TransferDirection `json:"direction"`

	// Download: Source is the media to fetch, DestPath the local target.
	Source MediaRef `json:"source"`

	// Upload: DestPath is the local file to send, Relay.Peer the target chat.
	DestPath string `json:"dest_path"`
	Filename string `json:"filename,omitempty"`

	// Relay, when set on a download, schedules an upload of the fetched file
	// after the download completes. A failed or cancelled download never
	// schedules the relay.
	Relay *RelaySpec `json:"relay,omitempty"`
}

// TransferTask is the orchestrator's view of one in-flight transfer
type TransferTask struct {
	TaskID      string            `json:"task_id"`
	UserID      int64             `json:"user_id"`
	AccountID   string            `json:"account_id"`
	Direction   TransferDirection `json:"direction"`
	Source      MediaRef          `json:"source"`
	DestPath    string            `json:"dest_path"`
	Filename    string            `json:"filename"`
	Status      TaskStatus        `json:"status"`
	BytesDone   int64             `json:"bytes_done"`
	BytesTotal  int64             `json:"bytes_total"`
	StartedAt   time.Time         `json:"started_at,omitempty"`
	CompletedAt time.Time         `json:"completed_at,omitempty"`
	Error       string            `json:"error,omitempty"`

	// ChainedTaskID is set once a relay upload has been scheduled
	ChainedTaskID string `json:"chained_task_id,omitempty"`
}

// ProgressEvent is delivered to progress subscribers at a bounded frequency.
// Events for a given task carry non-decreasing BytesDone.
type ProgressEvent struct {
	TaskID           string  `json:"task_id"`
	ProgressPercent  float64 `json:"progress_percent"`
	BytesDone        int64   `json:"bytes_done"`
	BytesTotal       int64   `json:"bytes_total"`
	SpeedBytesPerSec float64 `json:"speed_bytes_per_sec"`
	ETASeconds       float64 `json:"eta_seconds"`
	Filename         string  `json:"filename"`
}

// TaskEvent is published to external collaborators on task state changes
type TaskEvent struct {
	TaskID     string            `json:"task_id"`
	UserID     int64             `json:"user_id"`
	AccountID  string            `json:"account_id"`
	Direction  TransferDirection `json:"direction"`
	Status     TaskStatus        `json:"status"`
	BytesDone  int64             `json:"bytes_done"`
	BytesTotal int64             `json:"bytes_total"`
	Error      string            `json:"error,omitempty"`
	OccurredAt time.Time         `json:"occurred_at"`
}
