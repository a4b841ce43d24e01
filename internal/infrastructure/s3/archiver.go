// Package s3 copies completed downloads to MinIO/S3 long-term storage
package s3

import (
	"context"
	"fmt"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/rs/zerolog"

	"github.com/Conte777/TeleVault/config"
	"github.com/Conte777/TeleVault/internal/domain"
)

// Archiver implements domain.MediaArchiver on a MinIO-compatible store
type Archiver struct {
	client *minio.Client
	bucket string
	logger zerolog.Logger
}

// NewArchiver creates an S3/MinIO archiver
func NewArchiver(cfg *config.S3Config, logger zerolog.Logger) (*Archiver, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create MinIO client: %w", err)
	}

	return &Archiver{
		client: client,
		bucket: cfg.Bucket,
		logger: logger.With().Str("component", "media_archiver").Logger(),
	}, nil
}

// EnsureBucket creates the archive bucket if it doesn't exist
func (a *Archiver) EnsureBucket(ctx context.Context) error {
	exists, err := a.client.BucketExists(ctx, a.bucket)
	if err != nil {
		return fmt.Errorf("failed to check bucket existence: %w", err)
	}
	if !exists {
		if err := a.client.MakeBucket(ctx, a.bucket, minio.MakeBucketOptions{}); err != nil {
			return fmt.Errorf("failed to create bucket: %w", err)
		}
		a.logger.Info().Str("bucket", a.bucket).Msg("created archive bucket")
	}
	return nil
}

// Archive copies a downloaded file into the archive bucket and returns the
// object key. Path structure: transfers/{YYYY}/{MM}/{DD}/{task_id}_{filename}
func (a *Archiver) Archive(ctx context.Context, taskID, path, filename string) (string, error) {
	now := time.Now().UTC()
	objectKey := fmt.Sprintf(
		"transfers/%d/%02d/%02d/%s_%s",
		now.Year(),
		now.Month(),
		now.Day(),
		taskID,
		filename,
	)

	_, err := a.client.FPutObject(ctx, a.bucket, objectKey, path, minio.PutObjectOptions{})
	if err != nil {
		return "", fmt.Errorf("failed to archive file to S3: %w", err)
	}

	a.logger.Debug().
		Str("task_id", taskID).
		Str("object_key", objectKey).
		Msg("archived download to S3")
	return objectKey, nil
}

// Ensure Archiver implements domain.MediaArchiver interface
var _ domain.MediaArchiver = (*Archiver)(nil)
