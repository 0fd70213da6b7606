package objectstore

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
	"time"

	"coursesync/internal/ingest"
)

type memoryObject struct {
	data        []byte
	contentType string
	modifiedAt  time.Time
}

// MemoryStore is an in-memory implementation of the ObjectStore interface.
// It is useful for testing and is safe for concurrent use.
type MemoryStore struct {
	name    string
	objects map[string]memoryObject
	mu      sync.RWMutex
}

// NewMemoryStore creates a new in-memory store with the given name.
func NewMemoryStore(name string) *MemoryStore {
	return &MemoryStore{
		name:    name,
		objects: make(map[string]memoryObject),
	}
}

func (m *MemoryStore) url(key string) string {
	return "memory://" + m.name + "/" + key
}

// Put stores size bytes from r under key.
func (m *MemoryStore) Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) (string, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return "", fmt.Errorf("failed to read content: %w", err)
	}
	if int64(len(data)) != size {
		return "", fmt.Errorf("size mismatch: expected %d bytes, got %d", size, len(data))
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.objects[key] = memoryObject{data: data, contentType: contentType, modifiedAt: time.Now().UTC()}
	return m.url(key), nil
}

func (m *MemoryStore) Get(ctx context.Context, key string, w io.Writer) error {
	m.mu.RLock()
	obj, ok := m.objects[key]
	m.mu.RUnlock()

	if !ok {
		return fmt.Errorf("object %s: %w", key, ingest.ErrNotFound)
	}
	if _, err := io.Copy(w, bytes.NewReader(obj.data)); err != nil {
		return fmt.Errorf("failed to write content: %w", err)
	}
	return nil
}

func (m *MemoryStore) Exists(ctx context.Context, key string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	_, ok := m.objects[key]
	return ok, nil
}

func (m *MemoryStore) Delete(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.objects, key)
	return nil
}

func (m *MemoryStore) List(ctx context.Context, prefix string) ([]ingest.ObjectInfo, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []ingest.ObjectInfo
	for key, obj := range m.objects {
		if strings.HasPrefix(key, prefix) {
			result = append(result, ingest.ObjectInfo{Key: key, Size: int64(len(obj.data)), ModifiedAt: obj.modifiedAt})
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Key < result[j].Key })
	return result, nil
}

// PresignURL returns a memory:// URL carrying the expiry time. Nothing enforces it.
func (m *MemoryStore) PresignURL(ctx context.Context, key string, expiry time.Duration) (string, error) {
	if ok, _ := m.Exists(ctx, key); !ok {
		return "", fmt.Errorf("object %s: %w", key, ingest.ErrNotFound)
	}
	return fmt.Sprintf("%s?expires=%d", m.url(key), time.Now().Add(expiry).Unix()), nil
}

// ContentType returns the content type an object was stored with.
func (m *MemoryStore) ContentType(key string) string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.objects[key].contentType
}

// ValidateSetup always succeeds for the in-memory store.
func (m *MemoryStore) ValidateSetup(ctx context.Context) error {
	return nil
}

// Compile-time check that MemoryStore implements ingest.ObjectStore interface
var _ ingest.ObjectStore = (*MemoryStore)(nil)
