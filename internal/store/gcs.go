package store

import (
	"context"
	"errors"
	"fmt"
	"io"

	"cloud.google.com/go/storage"
	"github.com/joshdurbin/garmin-wrapped/internal/logging"
)

// GCSBackend stores blobs as objects in a Google Cloud Storage bucket.
// Keys map directly to object names, so the store's namespace prefixes
// become bucket "directories".
type GCSBackend struct {
	client *storage.Client
	bucket *storage.BucketHandle
}

// OpenGCS creates a GCS-backed store using ambient credentials
func OpenGCS(ctx context.Context, bucketName string) (*GCSBackend, error) {
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("creating storage client: %w", err)
	}

	logging.Logger.Info().Str("bucket", bucketName).Msg("using cloud storage backend")
	return &GCSBackend{
		client: client,
		bucket: client.Bucket(bucketName),
	}, nil
}

// Save writes the payload to the object named by key
func (b *GCSBackend) Save(ctx context.Context, key string, payload []byte) error {
	w := b.bucket.Object(key).NewWriter(ctx)
	w.ContentType = "application/json"
	if _, err := w.Write(payload); err != nil {
		w.Close()
		return fmt.Errorf("writing %s: %w", key, err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("finalizing %s: %w", key, err)
	}
	return nil
}

// Load reads the object named by key, or returns ErrNotFound
func (b *GCSBackend) Load(ctx context.Context, key string) ([]byte, error) {
	r, err := b.bucket.Object(key).NewReader(ctx)
	if errors.Is(err, storage.ErrObjectNotExist) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", key, err)
	}
	defer r.Close()

	payload, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", key, err)
	}
	return payload, nil
}

// Delete removes the object named by key. Missing objects are not an error.
func (b *GCSBackend) Delete(ctx context.Context, key string) error {
	err := b.bucket.Object(key).Delete(ctx)
	if errors.Is(err, storage.ErrObjectNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("deleting %s: %w", key, err)
	}
	return nil
}

// Close releases the underlying client
func (b *GCSBackend) Close() error {
	return b.client.Close()
}
