package objectstore

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"coursesync/internal/config"
	"coursesync/internal/ingest"
)

// storeTests runs the behavior every ObjectStore must share.
func storeTests(t *testing.T, newStore func(t *testing.T) ingest.ObjectStore) {
	ctx := context.Background()
	const key = "courses/CS101/Week 1/slides.pdf"

	t.Run("put then get", func(t *testing.T) {
		s := newStore(t)

		url, err := s.Put(ctx, key, strings.NewReader("%PDF-1.4"), 8, "application/pdf")
		if err != nil {
			t.Fatalf("Put() error = %v", err)
		}
		if url == "" {
			t.Error("Put() returned empty url")
		}

		var buf bytes.Buffer
		if err := s.Get(ctx, key, &buf); err != nil {
			t.Fatalf("Get() error = %v", err)
		}
		if buf.String() != "%PDF-1.4" {
			t.Errorf("Get() = %q, want %q", buf.String(), "%PDF-1.4")
		}
	})

	t.Run("put overwrites", func(t *testing.T) {
		s := newStore(t)

		if _, err := s.Put(ctx, key, strings.NewReader("one"), 3, ""); err != nil {
			t.Fatalf("Put() error = %v", err)
		}
		if _, err := s.Put(ctx, key, strings.NewReader("second"), 6, ""); err != nil {
			t.Fatalf("second Put() error = %v", err)
		}

		var buf bytes.Buffer
		if err := s.Get(ctx, key, &buf); err != nil {
			t.Fatalf("Get() error = %v", err)
		}
		if buf.String() != "second" {
			t.Errorf("Get() = %q, want %q", buf.String(), "second")
		}
	})

	t.Run("size mismatch", func(t *testing.T) {
		s := newStore(t)

		if _, err := s.Put(ctx, key, strings.NewReader("short"), 100, ""); err == nil {
			t.Fatal("Put() expected size mismatch error")
		}
		if ok, _ := s.Exists(ctx, key); ok {
			t.Error("object exists after failed Put()")
		}
	})

	t.Run("get missing", func(t *testing.T) {
		s := newStore(t)

		err := s.Get(ctx, "courses/none", &bytes.Buffer{})
		if !errors.Is(err, ingest.ErrNotFound) {
			t.Errorf("Get() error = %v, want ErrNotFound", err)
		}
	})

	t.Run("exists and delete", func(t *testing.T) {
		s := newStore(t)

		if ok, err := s.Exists(ctx, key); err != nil || ok {
			t.Fatalf("Exists() before put = %v, %v", ok, err)
		}
		if _, err := s.Put(ctx, key, strings.NewReader("x"), 1, ""); err != nil {
			t.Fatalf("Put() error = %v", err)
		}
		if ok, err := s.Exists(ctx, key); err != nil || !ok {
			t.Fatalf("Exists() after put = %v, %v", ok, err)
		}
		if err := s.Delete(ctx, key); err != nil {
			t.Fatalf("Delete() error = %v", err)
		}
		if ok, _ := s.Exists(ctx, key); ok {
			t.Error("Exists() after delete = true")
		}
		if err := s.Delete(ctx, key); err != nil {
			t.Errorf("Delete() of missing key error = %v", err)
		}
	})

	t.Run("list by prefix", func(t *testing.T) {
		s := newStore(t)

		for _, k := range []string{
			"courses/CS101/Week 2/b.pdf",
			"courses/CS101/Week 1/a.pdf",
			"courses/CS102/Week 1/c.pdf",
		} {
			if _, err := s.Put(ctx, k, strings.NewReader("abc"), 3, ""); err != nil {
				t.Fatalf("Put(%q) error = %v", k, err)
			}
		}

		got, err := s.List(ctx, "courses/CS101/")
		if err != nil {
			t.Fatalf("List() error = %v", err)
		}
		want := []string{"courses/CS101/Week 1/a.pdf", "courses/CS101/Week 2/b.pdf"}
		if len(got) != len(want) {
			t.Fatalf("List() = %v, want keys %v", got, want)
		}
		for i, info := range got {
			if info.Key != want[i] {
				t.Errorf("List()[%d].Key = %q, want %q", i, info.Key, want[i])
			}
			if info.Size != 3 {
				t.Errorf("List()[%d].Size = %d, want 3", i, info.Size)
			}
			if info.ModifiedAt.IsZero() {
				t.Errorf("List()[%d].ModifiedAt is zero", i)
			}
		}
	})

	t.Run("presign", func(t *testing.T) {
		s := newStore(t)

		if _, err := s.PresignURL(ctx, key, time.Hour); !errors.Is(err, ingest.ErrNotFound) {
			t.Errorf("PresignURL() of missing key error = %v, want ErrNotFound", err)
		}
		if _, err := s.Put(ctx, key, strings.NewReader("x"), 1, ""); err != nil {
			t.Fatalf("Put() error = %v", err)
		}
		url, err := s.PresignURL(ctx, key, time.Hour)
		if err != nil {
			t.Fatalf("PresignURL() error = %v", err)
		}
		if url == "" {
			t.Error("PresignURL() returned empty url")
		}
	})

	t.Run("validate setup", func(t *testing.T) {
		if err := newStore(t).ValidateSetup(ctx); err != nil {
			t.Errorf("ValidateSetup() error = %v", err)
		}
	})
}

func TestMemoryStore(t *testing.T) {
	storeTests(t, func(t *testing.T) ingest.ObjectStore {
		return NewMemoryStore("test")
	})
}

func TestFileSystemStore(t *testing.T) {
	storeTests(t, func(t *testing.T) ingest.ObjectStore {
		s, err := NewFileSystemStore("test", t.TempDir())
		if err != nil {
			t.Fatalf("NewFileSystemStore() error = %v", err)
		}
		return s
	})
}

func TestMemoryStore_ContentType(t *testing.T) {
	s := NewMemoryStore("test")
	if _, err := s.Put(context.Background(), "k", strings.NewReader("x"), 1, "application/pdf"); err != nil {
		t.Fatalf("Put() error = %v", err)
	}
	if got := s.ContentType("k"); got != "application/pdf" {
		t.Errorf("ContentType() = %q, want %q", got, "application/pdf")
	}
}

func TestFileSystemStore_Layout(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()
	s, err := NewFileSystemStore("test", root)
	if err != nil {
		t.Fatalf("NewFileSystemStore() error = %v", err)
	}

	if _, err := s.Put(ctx, "courses/CS101/Week 1/slides.pdf", strings.NewReader("pdf"), 3, ""); err != nil {
		t.Fatalf("Put() error = %v", err)
	}

	data, err := os.ReadFile(filepath.Join(root, "courses", "CS101", "Week 1", "slides.pdf"))
	if err != nil {
		t.Fatalf("object file not at key path: %v", err)
	}
	if string(data) != "pdf" {
		t.Errorf("object file = %q, want %q", data, "pdf")
	}

	entries, _ := os.ReadDir(filepath.Join(root, "courses", "CS101", "Week 1"))
	for _, e := range entries {
		if strings.HasPrefix(e.Name(), tempPrefix) {
			t.Errorf("temp file left behind: %s", e.Name())
		}
	}
}

func TestFileSystemStore_RejectsEscapingKeys(t *testing.T) {
	ctx := context.Background()
	s, err := NewFileSystemStore("test", t.TempDir())
	if err != nil {
		t.Fatalf("NewFileSystemStore() error = %v", err)
	}

	for _, key := range []string{"../outside", "courses/../../x", "/etc/passwd"} {
		if _, err := s.Put(ctx, key, strings.NewReader("x"), 1, ""); err == nil {
			t.Errorf("Put(%q) expected error", key)
		}
	}
}

func TestNewStoreFromConfig(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name    string
		cfg     config.StoreConfig
		wantErr bool
	}{
		{"memory", config.StoreConfig{Type: "memory", Name: "m"}, false},
		{"filesystem", config.StoreConfig{Type: "filesystem", Name: "fs", FSRoot: t.TempDir()}, false},
		{"filesystem without root", config.StoreConfig{Type: "filesystem"}, true},
		{"s3 without bucket", config.StoreConfig{Type: "s3"}, true},
		{"unknown", config.StoreConfig{Type: "ftp"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := NewStoreFromConfig(ctx, tt.cfg)
			if (err != nil) != tt.wantErr {
				t.Fatalf("NewStoreFromConfig() error = %v, wantErr %v", err, tt.wantErr)
			}
			if !tt.wantErr && got == nil {
				t.Error("NewStoreFromConfig() returned nil")
			}
		})
	}
}
