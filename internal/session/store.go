package session

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"filippo.io/age"

	"coursesync/internal/config"
	"coursesync/internal/model"
)

// ErrNoSession is returned by Load when no cookie export has been imported.
var ErrNoSession = errors.New("no session imported")

// Store keeps the cookie export between crawls. The export is encrypted at
// rest with age's scrypt-based passphrase encryption.
type Store struct {
	path string

	// workFactor overrides the scrypt work factor when non-zero.
	workFactor int
}

// NewStore creates a Store from configuration.
func NewStore(cfg config.SessionConfig) *Store {
	return &Store{path: cfg.Path}
}

// Path returns the location of the encrypted export.
func (s *Store) Path() string {
	return s.path
}

// Exists reports whether an export has been imported.
func (s *Store) Exists() bool {
	_, err := os.Stat(s.path)
	return err == nil
}

// Import parses a cookie export from r, encrypts it with the passphrase and
// replaces any previously imported export. It returns the number of cookies
// stored.
func (s *Store) Import(r io.Reader, passphrase string) (int, error) {
	if passphrase == "" {
		return 0, fmt.Errorf("passphrase must not be empty")
	}

	data, err := io.ReadAll(r)
	if err != nil {
		return 0, fmt.Errorf("reading cookie export: %w", err)
	}
	cookies, err := ParseCookies(data)
	if err != nil {
		return 0, err
	}

	if err := os.MkdirAll(filepath.Dir(s.path), 0700); err != nil {
		return 0, fmt.Errorf("creating session directory: %w", err)
	}

	recipient, err := age.NewScryptRecipient(passphrase)
	if err != nil {
		return 0, fmt.Errorf("creating scrypt recipient: %w", err)
	}
	if s.workFactor > 0 {
		recipient.SetWorkFactor(s.workFactor)
	}

	tmp, err := os.CreateTemp(filepath.Dir(s.path), ".session-*")
	if err != nil {
		return 0, fmt.Errorf("creating session file: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	w, err := age.Encrypt(tmp, recipient)
	if err != nil {
		tmp.Close()
		return 0, fmt.Errorf("creating encrypted writer: %w", err)
	}
	if _, err := w.Write(data); err != nil {
		tmp.Close()
		return 0, fmt.Errorf("writing encrypted session: %w", err)
	}
	if err := w.Close(); err != nil {
		tmp.Close()
		return 0, fmt.Errorf("finalizing encrypted session: %w", err)
	}
	if err := tmp.Chmod(0600); err != nil {
		tmp.Close()
		return 0, fmt.Errorf("setting session file mode: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return 0, fmt.Errorf("closing session file: %w", err)
	}
	if err := os.Rename(tmpPath, s.path); err != nil {
		return 0, fmt.Errorf("replacing session file: %w", err)
	}

	return len(cookies), nil
}

// Load decrypts the imported export with the passphrase and returns its
// cookies.
func (s *Store) Load(passphrase string) ([]model.Cookie, error) {
	encrypted, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, ErrNoSession
		}
		return nil, fmt.Errorf("reading session file: %w", err)
	}

	identity, err := age.NewScryptIdentity(passphrase)
	if err != nil {
		return nil, fmt.Errorf("creating scrypt identity: %w", err)
	}

	r, err := age.Decrypt(bytes.NewReader(encrypted), identity)
	if err != nil {
		return nil, fmt.Errorf("decrypting session: %w", err)
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("reading decrypted session: %w", err)
	}

	return ParseCookies(data)
}

// LoadFile reads a plaintext cookie export, bypassing the store.
func LoadFile(path string) ([]model.Cookie, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading cookie export: %w", err)
	}
	return ParseCookies(data)
}
