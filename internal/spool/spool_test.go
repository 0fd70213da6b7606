package spool

import (
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"coursesync/internal/config"
	"coursesync/internal/ingest"
)

func spoolTests(t *testing.T, newSpool func(t *testing.T) ingest.Spool) {
	t.Run("put open remove", func(t *testing.T) {
		s := newSpool(t)

		loc, size, err := s.Put("CS101", "1a2b3c4d_slides.pdf", strings.NewReader("pdf bytes"))
		if err != nil {
			t.Fatalf("Put() error = %v", err)
		}
		if size != 9 {
			t.Errorf("Put() size = %d, want 9", size)
		}

		r, err := s.Open(loc)
		if err != nil {
			t.Fatalf("Open() error = %v", err)
		}
		data, _ := io.ReadAll(r)
		r.Close()
		if string(data) != "pdf bytes" {
			t.Errorf("Open() content = %q, want %q", data, "pdf bytes")
		}

		if err := s.Remove(loc); err != nil {
			t.Fatalf("Remove() error = %v", err)
		}
		if _, err := s.Open(loc); !errors.Is(err, ingest.ErrNotFound) {
			t.Errorf("Open() after Remove() error = %v, want ErrNotFound", err)
		}
		if err := s.Remove(loc); err != nil {
			t.Errorf("second Remove() error = %v", err)
		}
	})

	t.Run("same name overwrites", func(t *testing.T) {
		s := newSpool(t)

		loc1, _, err := s.Put("CS101", "a.pdf", strings.NewReader("one"))
		if err != nil {
			t.Fatalf("Put() error = %v", err)
		}
		loc2, _, err := s.Put("CS101", "a.pdf", strings.NewReader("two"))
		if err != nil {
			t.Fatalf("Put() error = %v", err)
		}
		if loc1 != loc2 {
			t.Errorf("locations differ: %q vs %q", loc1, loc2)
		}

		r, err := s.Open(loc2)
		if err != nil {
			t.Fatalf("Open() error = %v", err)
		}
		defer r.Close()
		data, _ := io.ReadAll(r)
		if string(data) != "two" {
			t.Errorf("content = %q, want %q", data, "two")
		}
	})

	t.Run("courses are separate", func(t *testing.T) {
		s := newSpool(t)

		loc1, _, _ := s.Put("CS101", "a.pdf", strings.NewReader("one"))
		loc2, _, _ := s.Put("CS102", "a.pdf", strings.NewReader("two"))
		if loc1 == loc2 {
			t.Errorf("different courses share location %q", loc1)
		}
	})
}

func TestMemorySpool(t *testing.T) {
	spoolTests(t, func(t *testing.T) ingest.Spool { return NewMemorySpool() })
}

func TestFileSystemSpool(t *testing.T) {
	spoolTests(t, func(t *testing.T) ingest.Spool {
		s, err := NewFileSystemSpool(t.TempDir())
		if err != nil {
			t.Fatalf("NewFileSystemSpool() error = %v", err)
		}
		return s
	})
}

func TestFileSystemSpool_SanitizesNames(t *testing.T) {
	dir := t.TempDir()
	s, err := NewFileSystemSpool(dir)
	if err != nil {
		t.Fatalf("NewFileSystemSpool() error = %v", err)
	}

	loc, _, err := s.Put("CS101", "../../etc/pass:wd?.txt", strings.NewReader("x"))
	if err != nil {
		t.Fatalf("Put() error = %v", err)
	}
	if filepath.Dir(loc) != filepath.Join(dir, "CS101") {
		t.Errorf("Put() location = %q, want inside %q", loc, filepath.Join(dir, "CS101"))
	}
	if filepath.Base(loc) != "....etcpasswd.txt" {
		t.Errorf("Put() name = %q, want %q", filepath.Base(loc), "....etcpasswd.txt")
	}

	if _, _, err := s.Put("CS101", "..", strings.NewReader("x")); err == nil {
		t.Error("Put() with dot-only name expected error")
	}
}

func TestFileSystemSpool_RejectsOutsideLocations(t *testing.T) {
	s, err := NewFileSystemSpool(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileSystemSpool() error = %v", err)
	}

	outside := filepath.Join(t.TempDir(), "secret")
	if err := os.WriteFile(outside, []byte("x"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Open(outside); err == nil {
		t.Error("Open() outside spool expected error")
	}
	if err := s.Remove(outside); err == nil {
		t.Error("Remove() outside spool expected error")
	}
	if _, err := os.Stat(outside); err != nil {
		t.Errorf("file outside spool was removed: %v", err)
	}
}

func TestNewSpoolFromConfig(t *testing.T) {
	tests := []struct {
		name    string
		cfg     config.SpoolConfig
		wantErr bool
	}{
		{"memory", config.SpoolConfig{Type: "memory"}, false},
		{"filesystem", config.SpoolConfig{Type: "filesystem", SpoolDir: t.TempDir()}, false},
		{"filesystem without dir", config.SpoolConfig{Type: "filesystem"}, true},
		{"unknown", config.SpoolConfig{Type: "tape"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := NewSpoolFromConfig(tt.cfg)
			if (err != nil) != tt.wantErr {
				t.Fatalf("NewSpoolFromConfig() error = %v, wantErr %v", err, tt.wantErr)
			}
			if !tt.wantErr && got == nil {
				t.Error("NewSpoolFromConfig() returned nil")
			}
		})
	}
}
