// Package local keeps the listing snapshot in a file on disk.
package local

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"strings"

	"github.com/spf13/afero"

	"github.com/JakeFAU/depop-feed/internal/listing"
	"github.com/JakeFAU/depop-feed/internal/storage"
)

// Config captures the parameters for the local snapshot store.
type Config struct {
	// Path is the snapshot file, e.g. data/products.json.
	Path string `mapstructure:"path" yaml:"path"`
}

// SnapshotStore reads and atomically replaces a JSON snapshot file.
type SnapshotStore struct {
	fs   afero.Fs
	path string
}

var _ storage.SnapshotStore = (*SnapshotStore)(nil)

// New creates a snapshot store. A nil fs means the OS filesystem.
func New(fsys afero.Fs, cfg Config) (*SnapshotStore, error) {
	if strings.TrimSpace(cfg.Path) == "" {
		return nil, fmt.Errorf("snapshot path is required")
	}
	if fsys == nil {
		fsys = afero.NewOsFs()
	}
	info, err := fsys.Stat(cfg.Path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
	case err != nil:
		return nil, fmt.Errorf("stat snapshot path: %w", err)
	case info.IsDir():
		return nil, fmt.Errorf("snapshot path %s is a directory", cfg.Path)
	}
	return &SnapshotStore{fs: fsys, path: filepath.Clean(cfg.Path)}, nil
}

// Load reads the snapshot. A missing or blank file is reported as not found.
func (s *SnapshotStore) Load(_ context.Context) ([]listing.Listing, bool, error) {
	data, err := afero.ReadFile(s.fs, s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("read snapshot: %w", err)
	}
	listings, err := storage.Decode(data)
	if err != nil {
		return nil, false, err
	}
	return listings, len(listings) > 0, nil
}

// Save writes the batch to a temp file beside the snapshot and renames it
// into place, so readers see either the old feed or the new one.
func (s *SnapshotStore) Save(_ context.Context, listings []listing.Listing) (string, error) {
	data, err := storage.Encode(listings)
	if err != nil {
		return "", err
	}

	dir := filepath.Dir(s.path)
	if err := s.fs.MkdirAll(dir, 0o750); err != nil {
		return "", fmt.Errorf("failed to create parent directories: %w", err)
	}

	tmp, err := afero.TempFile(s.fs, dir, "."+filepath.Base(s.path)+".*.tmp")
	if err != nil {
		return "", fmt.Errorf("create temp snapshot: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = s.fs.Remove(tmpName)
		return "", fmt.Errorf("write temp snapshot: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = s.fs.Remove(tmpName)
		return "", fmt.Errorf("close temp snapshot: %w", err)
	}
	if err := s.fs.Rename(tmpName, s.path); err != nil {
		_ = s.fs.Remove(tmpName)
		return "", fmt.Errorf("replace snapshot: %w", err)
	}
	return fmt.Sprintf("file://%s", s.path), nil
}
