// Package gcs keeps the listing snapshot as an object in Google Cloud Storage.
package gcs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"cloud.google.com/go/storage"

	"github.com/JakeFAU/depop-feed/internal/listing"
	feedstorage "github.com/JakeFAU/depop-feed/internal/storage"
)

// Config captures the bucket and object holding the snapshot.
type Config struct {
	Bucket string
	Object string
}

// SnapshotStore reads and replaces a snapshot object.
type SnapshotStore struct {
	client *storage.Client
	bucket string
	object string
}

var _ feedstorage.SnapshotStore = (*SnapshotStore)(nil)

// New creates a GCS-backed snapshot store.
func New(client *storage.Client, cfg Config) (*SnapshotStore, error) {
	if client == nil {
		return nil, fmt.Errorf("storage client is required")
	}
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("bucket name is required")
	}
	if strings.TrimSpace(cfg.Object) == "" {
		return nil, fmt.Errorf("object name is required")
	}
	return &SnapshotStore{
		client: client,
		bucket: cfg.Bucket,
		object: cfg.Object,
	}, nil
}

// Load downloads the snapshot. A missing object is reported as not found.
func (s *SnapshotStore) Load(ctx context.Context) ([]listing.Listing, bool, error) {
	reader, err := s.client.Bucket(s.bucket).Object(s.object).NewReader(ctx)
	if errors.Is(err, storage.ErrObjectNotExist) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("open snapshot object: %w", err)
	}
	defer reader.Close() //nolint:errcheck // read-only handle

	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, false, fmt.Errorf("read snapshot object: %w", err)
	}
	listings, err := feedstorage.Decode(data)
	if err != nil {
		return nil, false, err
	}
	return listings, len(listings) > 0, nil
}

// Save uploads the batch in a single object write, which GCS applies
// atomically, and returns a gs:// URI.
func (s *SnapshotStore) Save(ctx context.Context, listings []listing.Listing) (string, error) {
	data, err := feedstorage.Encode(listings)
	if err != nil {
		return "", err
	}
	writer := s.client.Bucket(s.bucket).Object(s.object).NewWriter(ctx)
	writer.ContentType = feedstorage.ContentType
	if _, err := writer.Write(data); err != nil {
		closeErr := writer.Close()
		if closeErr != nil {
			return "", fmt.Errorf("write object: %w (close writer: %v)", err, closeErr)
		}
		return "", fmt.Errorf("write object: %w", err)
	}
	if err := writer.Close(); err != nil {
		return "", fmt.Errorf("close writer: %w", err)
	}
	return fmt.Sprintf("gs://%s/%s", s.bucket, s.object), nil
}
