package services

import (
	"context"
	"time"

	"cloud.google.com/go/storage"

	"github.com/freightflow/docsplitter/internal/gcp"
)

// gcsObjectStore adapts the Cloud Storage client to the orchestrator's
// objectStore seam.
type gcsObjectStore struct {
	client         *storage.Client
	attemptTimeout time.Duration
}

func (s *gcsObjectStore) Download(ctx context.Context, bucket, object, destPath string) error {
	return gcp.DownloadObject(ctx, s.client, bucket, object, destPath)
}

func (s *gcsObjectStore) Upload(ctx context.Context, bucket, object, localPath string) error {
	return gcp.UploadFile(ctx, s.client, bucket, object, localPath, s.attemptTimeout)
}
