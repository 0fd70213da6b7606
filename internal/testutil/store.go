package testutil

import (
	"context"
	"errors"
	"io"
	"strings"

	"coursesync/internal/ingest"
	"coursesync/internal/objectstore"
	"coursesync/internal/spool"
)

// NewTestStore creates a new in-memory object store for testing.
func NewTestStore() *objectstore.MemoryStore {
	return objectstore.NewMemoryStore("test-store")
}

// NewTestSpool creates a new in-memory spool for testing.
func NewTestSpool() *spool.MemorySpool {
	return spool.NewMemorySpool()
}

// ErrInjected is returned by FlakyStore for keys it is told to fail.
var ErrInjected = errors.New("injected failure")

// FlakyStore wraps an ObjectStore and fails Put for keys containing any of
// FailPut.
type FlakyStore struct {
	ingest.ObjectStore
	FailPut []string
}

func (f *FlakyStore) Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) (string, error) {
	for _, s := range f.FailPut {
		if strings.Contains(key, s) {
			return "", ErrInjected
		}
	}
	return f.ObjectStore.Put(ctx, key, r, size, contentType)
}
