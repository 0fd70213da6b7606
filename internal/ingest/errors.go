package ingest

import "errors"

var (
	// ErrSessionExpired means the content site redirected to its login page.
	// It is the one extraction failure that aborts a whole crawl.
	ErrSessionExpired = errors.New("site session is not authenticated")

	// ErrDuplicate is returned when a write violates a uniqueness constraint.
	ErrDuplicate = errors.New("duplicate key")

	// ErrNotFound is returned when a requested row or object does not exist.
	ErrNotFound = errors.New("not found")

	// ErrUnbacked is returned when a download URL is requested for a file
	// whose bytes never reached the object store.
	ErrUnbacked = errors.New("file is not backed by object storage")
)
