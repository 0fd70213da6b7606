package spool

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"coursesync/internal/ingest"
)

// FileSystemSpool keeps downloaded resources on local disk until they are
// uploaded. Entries that could not be uploaded stay here and are referenced
// by their absolute path.
//
// Directory structure:
//
//	<spool_dir>/
//	  <course_id>/
//	    <name>    (one file per downloaded resource)
type FileSystemSpool struct {
	dir string
}

// NewFileSystemSpool creates a new filesystem spool rooted at dir.
func NewFileSystemSpool(dir string) (*FileSystemSpool, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("resolving spool directory: %w", err)
	}
	if err := os.MkdirAll(abs, 0755); err != nil {
		return nil, fmt.Errorf("failed to create spool directory: %w", err)
	}
	return &FileSystemSpool{dir: abs}, nil
}

// Put writes r to <dir>/<course_id>/<filename> via a temp file and rename.
// Both path elements are sanitized first.
func (s *FileSystemSpool) Put(courseID, filename string, r io.Reader) (string, int64, error) {
	course := ingest.SanitizeFilename(courseID)
	name := ingest.SanitizeFilename(filename)
	if course == "" || strings.Trim(course, ".") == "" || name == "" || strings.Trim(name, ".") == "" {
		return "", 0, fmt.Errorf("invalid spool name %q/%q", courseID, filename)
	}

	courseDir := filepath.Join(s.dir, course)
	if err := os.MkdirAll(courseDir, 0755); err != nil {
		return "", 0, fmt.Errorf("failed to create course spool directory: %w", err)
	}

	tmp, err := os.CreateTemp(courseDir, ".tmp-*")
	if err != nil {
		return "", 0, fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmp.Name()

	size, err := io.Copy(tmp, r)
	if err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return "", 0, fmt.Errorf("failed to write spool file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return "", 0, fmt.Errorf("failed to close spool file: %w", err)
	}

	location := filepath.Join(courseDir, name)
	if err := os.Rename(tmpPath, location); err != nil {
		os.Remove(tmpPath)
		return "", 0, fmt.Errorf("failed to rename spool file: %w", err)
	}
	return location, size, nil
}

// contains reports whether location lies inside the spool directory.
func (s *FileSystemSpool) contains(location string) bool {
	rel, err := filepath.Rel(s.dir, location)
	return err == nil && filepath.IsLocal(rel)
}

func (s *FileSystemSpool) Open(location string) (io.ReadCloser, error) {
	if !s.contains(location) {
		return nil, fmt.Errorf("location outside spool: %s", location)
	}
	f, err := os.Open(location)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("spooled content %s: %w", location, ingest.ErrNotFound)
		}
		return nil, fmt.Errorf("opening spool file: %w", err)
	}
	return f, nil
}

func (s *FileSystemSpool) Remove(location string) error {
	if !s.contains(location) {
		return fmt.Errorf("location outside spool: %s", location)
	}
	if err := os.Remove(location); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("removing spool file: %w", err)
	}
	return nil
}

// Compile-time check that FileSystemSpool implements ingest.Spool interface
var _ ingest.Spool = (*FileSystemSpool)(nil)
