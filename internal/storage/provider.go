// Package storage defines where the published listing feed lives. The
// pipeline only ever replaces the whole snapshot or leaves it untouched.
package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/JakeFAU/depop-feed/internal/listing"
)

// ErrEmptySnapshot is returned when a caller tries to publish zero listings.
var ErrEmptySnapshot = errors.New("refusing to write an empty snapshot")

// SnapshotStore reads and replaces the published feed.
type SnapshotStore interface {
	// Load returns the current snapshot. found is false when none exists.
	Load(ctx context.Context) (listings []listing.Listing, found bool, err error)
	// Save replaces the snapshot and returns a URI describing where it went.
	Save(ctx context.Context, listings []listing.Listing) (string, error)
}

// ContentType is the media type of an encoded snapshot.
const ContentType = "application/json"

// Encode renders listings the way the storefront expects: a two-space
// indented JSON array with HTML characters left unescaped.
func Encode(listings []listing.Listing) ([]byte, error) {
	if len(listings) == 0 {
		return nil, ErrEmptySnapshot
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(listings); err != nil {
		return nil, fmt.Errorf("encode snapshot: %w", err)
	}
	return buf.Bytes(), nil
}

// Decode parses a snapshot written by Encode.
func Decode(data []byte) ([]listing.Listing, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, nil
	}
	var listings []listing.Listing
	if err := json.Unmarshal(data, &listings); err != nil {
		return nil, fmt.Errorf("decode snapshot: %w", err)
	}
	return listings, nil
}
