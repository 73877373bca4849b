// Package archive persists raw webhook payloads to object storage. The
// archive is the forensic record for disputed deliveries: the audit trail
// stores what we did, the archive stores what we received.
package archive

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"crm_bridge_backend/platform/config"
	"crm_bridge_backend/platform/logger"
)

// Store writes webhook payloads to a MinIO bucket. A nil *Store disables
// archiving, deployments without object storage keep working.
type Store struct {
	client *minio.Client
	bucket string
	log    *logger.Logger
}

// New creates the archive store. Returns nil when MinIO is not configured.
func New(cfg config.MinIOConfig, log *logger.Logger) (*Store, error) {
	if !cfg.IsMinIOEnabled() {
		return nil, nil
	}

	client, err := minio.New(cfg.GetMinIOEndpoint(), &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.GetMinIOAccessKey(), cfg.GetMinIOSecretKey(), ""),
		Secure: cfg.GetMinIOUseSSL(),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create MinIO client: %w", err)
	}

	return &Store{
		client: client,
		bucket: cfg.GetMinioBucketWebhookArchive(),
		log:    log,
	}, nil
}

// EnsureBucketExists creates the archive bucket if it doesn't exist.
func (s *Store) EnsureBucketExists(ctx context.Context) error {
	if s == nil {
		return nil
	}

	exists, err := s.client.BucketExists(ctx, s.bucket)
	if err != nil {
		return fmt.Errorf("failed to check bucket existence: %w", err)
	}
	if !exists {
		if err := s.client.MakeBucket(ctx, s.bucket, minio.MakeBucketOptions{}); err != nil {
			return fmt.Errorf("failed to create bucket %s: %w", s.bucket, err)
		}
	}
	return nil
}

// Store uploads one payload keyed by receive date and webhook id.
func (s *Store) Store(ctx context.Context, webhookID string, payload []byte) error {
	if s == nil {
		return nil
	}

	key := fmt.Sprintf("%s/%s.json", time.Now().UTC().Format("2006/01/02"), webhookID)
	_, err := s.client.PutObject(ctx, s.bucket, key, bytes.NewReader(payload), int64(len(payload)), minio.PutObjectOptions{
		ContentType: "application/json",
	})
	if err != nil {
		return fmt.Errorf("failed to archive payload %s: %w", key, err)
	}

	s.log.Debug("webhook payload archived", "key", key, "bytes", len(payload))
	return nil
}
