package gcp

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"cloud.google.com/go/storage"
)

// StorageDomain is the public hostname suffix for Cloud Storage objects.
// Source URLs in inbound work items must resolve under this domain.
const StorageDomain = "storage.googleapis.com"

// GetEnv is a helper to read an environment variable or return a default value.
func GetEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

// ObjectURL returns the canonical https URL for a bucket/object pair.
func ObjectURL(bucket, object string) string {
	return fmt.Sprintf("https://%s/%s/%s", StorageDomain, bucket, object)
}

// DownloadObject streams a storage object to a local file.
func DownloadObject(ctx context.Context, client *storage.Client, bucket, object, destPath string) error {
	reader, err := client.Bucket(bucket).Object(object).NewReader(ctx)
	if err != nil {
		return fmt.Errorf("failed to get object reader for gs://%s/%s: %w", bucket, object, err)
	}
	defer reader.Close()
	localFile, err := os.Create(destPath)
	if err != nil {
		return fmt.Errorf("failed to create local file at %s: %w", destPath, err)
	}
	defer localFile.Close()
	if _, err := io.Copy(localFile, reader); err != nil {
		return fmt.Errorf("failed to copy object to local file: %w", err)
	}
	return nil
}

// UploadFile writes a local file to a storage object with bounded retries.
// Each attempt carries its own write timeout so one stuck stream cannot
// hold the invocation.
func UploadFile(ctx context.Context, client *storage.Client, bucket, destObject, localPath string, attemptTimeout time.Duration) error {
	const maxRetries = 4
	backoff := 1 * time.Second
	var lastErr error

	for i := 0; i < maxRetries; i++ {
		err := func() error {
			localFileReader, err := os.Open(localPath)
			if err != nil {
				return fmt.Errorf("could not open local file %s: %w", localPath, err)
			}
			defer localFileReader.Close()

			writeCtx, cancel := context.WithTimeout(ctx, attemptTimeout)
			defer cancel()

			writer := client.Bucket(bucket).Object(destObject).NewWriter(writeCtx)
			if _, err := io.Copy(writer, localFileReader); err != nil {
				_ = writer.Close()
				return fmt.Errorf("io.Copy to storage failed: %w", err)
			}
			if err := writer.Close(); err != nil {
				return fmt.Errorf("failed to close storage writer (finalize upload): %w", err)
			}
			return nil
		}()

		if err == nil {
			return nil
		}

		lastErr = err
		slog.Warn(
			"Upload failed, will retry.",
			"object", destObject,
			"attempt", i+1,
			"maxRetries", maxRetries,
			"backoff", backoff.String(),
			"error", err,
		)

		select {
		case <-time.After(backoff):
			backoff *= 2
		case <-ctx.Done():
			slog.Error("Context cancelled during backoff. Aborting retries.", "object", destObject, "error", ctx.Err())
			return ctx.Err()
		}
	}
	return fmt.Errorf("upload for %s failed after all retries: %w", destObject, lastErr)
}
