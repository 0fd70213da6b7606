package ingest

import (
	"context"
	"io"
	"time"
)

// ObjectInfo describes one stored object.
type ObjectInfo struct {
	Key        string
	Size       int64
	ModifiedAt time.Time
}

// ObjectStore provides an interface for key-addressed blob storage backends.
// Operations stream through io.Reader/io.Writer so large resources are never
// held in memory twice.
type ObjectStore interface {
	// Put stores size bytes read from r under key and returns a URL for the
	// object. Storing the same key twice overwrites it.
	Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) (string, error)

	// Get writes the object stored under key to w.
	// Returns an error wrapping ErrNotFound if the key does not exist.
	Get(ctx context.Context, key string, w io.Writer) error

	// Exists reports whether an object is stored under key.
	Exists(ctx context.Context, key string) (bool, error)

	// Delete removes the object under key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error

	// List returns all objects whose key starts with prefix, ordered by key.
	List(ctx context.Context, prefix string) ([]ObjectInfo, error)

	// PresignURL returns a time-limited download URL for key.
	PresignURL(ctx context.Context, key string, expiry time.Duration) (string, error)

	// ValidateSetup verifies that the store is accessible and properly configured.
	ValidateSetup(ctx context.Context) error
}
