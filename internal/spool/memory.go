package spool

import (
	"bytes"
	"fmt"
	"io"
	"sync"

	"coursesync/internal/ingest"
)

// MemorySpool is an in-memory implementation of the Spool interface,
// useful for testing. It is safe for concurrent use.
type MemorySpool struct {
	mu      sync.RWMutex
	entries map[string][]byte
}

// NewMemorySpool creates an empty in-memory spool.
func NewMemorySpool() *MemorySpool {
	return &MemorySpool{entries: make(map[string][]byte)}
}

func (m *MemorySpool) Put(courseID, filename string, r io.Reader) (string, int64, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return "", 0, fmt.Errorf("failed to read content: %w", err)
	}

	location := "mem:" + courseID + "/" + filename

	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[location] = data
	return location, int64(len(data)), nil
}

func (m *MemorySpool) Open(location string) (io.ReadCloser, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	data, ok := m.entries[location]
	if !ok {
		return nil, fmt.Errorf("spooled content %s: %w", location, ingest.ErrNotFound)
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (m *MemorySpool) Remove(location string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, location)
	return nil
}

// Len returns the number of spooled entries.
func (m *MemorySpool) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}

// Compile-time check that MemorySpool implements ingest.Spool interface
var _ ingest.Spool = (*MemorySpool)(nil)
