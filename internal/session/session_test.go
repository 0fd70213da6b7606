package session

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"coursesync/internal/config"
	"coursesync/internal/model"
)

const testExport = `[
  // exported from the browser
  {name: "MoodleSession", value: "abc123", domain: "moodle.example.edu", path: "/", httpOnly: true},
  {name: "MOODLEID1_", value: "xyz", domain: ".example.edu", path: "/", secure: true,},
]`

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s := NewStore(config.SessionConfig{Path: filepath.Join(t.TempDir(), "state", "session.age")})
	// Keep scrypt cheap in tests.
	s.workFactor = 10
	return s
}

func TestParseCookies(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		input   string
		want    []model.Cookie
		wantErr bool
	}{
		{
			name:  "json5 array with extra fields",
			input: testExport,
			want: []model.Cookie{
				{Name: "MoodleSession", Value: "abc123", Domain: "moodle.example.edu", Path: "/"},
				{Name: "MOODLEID1_", Value: "xyz", Domain: ".example.edu", Path: "/"},
			},
		},
		{
			name:  "envelope",
			input: `{"cookies": [{"name": "a", "value": "1", "domain": "d"}]}`,
			want:  []model.Cookie{{Name: "a", Value: "1", Domain: "d", Path: "/"}},
		},
		{
			name:  "records without a name are dropped",
			input: `[{"name": "", "value": "x"}, {"name": "b", "value": "2", "path": "/moodle"}]`,
			want:  []model.Cookie{{Name: "b", Value: "2", Path: "/moodle"}},
		},
		{name: "empty", input: "  ", wantErr: true},
		{name: "no cookies", input: "[]", wantErr: true},
		{name: "malformed", input: "[{name: }", wantErr: true},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := ParseCookies([]byte(tt.input))
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseCookies() error = %v, wantErr %v", err, tt.wantErr)
			}
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("ParseCookies() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestStore_ImportLoadRoundTrip(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)

	if s.Exists() {
		t.Fatal("Exists() = true before Import")
	}

	n, err := s.Import(strings.NewReader(testExport), "hunter2")
	if err != nil {
		t.Fatalf("Import() error = %v", err)
	}
	if n != 2 {
		t.Errorf("Import() = %d, want 2", n)
	}
	if !s.Exists() {
		t.Error("Exists() = false after Import")
	}

	info, err := os.Stat(s.Path())
	if err != nil {
		t.Fatal(err)
	}
	if info.Mode().Perm() != 0600 {
		t.Errorf("session file mode = %o, want 600", info.Mode().Perm())
	}

	raw, err := os.ReadFile(s.Path())
	if err != nil {
		t.Fatal(err)
	}
	if bytes.Contains(raw, []byte("abc123")) {
		t.Error("session file contains a plaintext cookie value")
	}

	cookies, err := s.Load("hunter2")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if len(cookies) != 2 || cookies[0].Value != "abc123" {
		t.Errorf("Load() = %+v", cookies)
	}
}

func TestStore_LoadWrongPassphrase(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)

	if _, err := s.Import(strings.NewReader(testExport), "right"); err != nil {
		t.Fatalf("Import() error = %v", err)
	}
	if _, err := s.Load("wrong"); err == nil {
		t.Fatal("Load() with wrong passphrase succeeded")
	}
}

func TestStore_LoadMissing(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)

	_, err := s.Load("anything")
	if !errors.Is(err, ErrNoSession) {
		t.Fatalf("Load() error = %v, want ErrNoSession", err)
	}
}

func TestStore_ImportRejectsBadInput(t *testing.T) {
	t.Parallel()

	t.Run("empty passphrase", func(t *testing.T) {
		t.Parallel()
		s := newTestStore(t)
		if _, err := s.Import(strings.NewReader(testExport), ""); err == nil {
			t.Fatal("Import() with empty passphrase succeeded")
		}
	})

	t.Run("invalid export keeps previous session", func(t *testing.T) {
		t.Parallel()
		s := newTestStore(t)
		if _, err := s.Import(strings.NewReader(testExport), "pw"); err != nil {
			t.Fatalf("Import() error = %v", err)
		}
		if _, err := s.Import(strings.NewReader("[]"), "pw"); err == nil {
			t.Fatal("Import() of empty export succeeded")
		}
		cookies, err := s.Load("pw")
		if err != nil {
			t.Fatalf("Load() error = %v", err)
		}
		if len(cookies) != 2 {
			t.Errorf("Load() returned %d cookies, want 2", len(cookies))
		}
	})
}

func TestLoadFile(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "cookies.json")
	if err := os.WriteFile(path, []byte(testExport), 0600); err != nil {
		t.Fatal(err)
	}

	cookies, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile() error = %v", err)
	}
	if len(cookies) != 2 {
		t.Errorf("LoadFile() returned %d cookies, want 2", len(cookies))
	}
}
