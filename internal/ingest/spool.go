package ingest

import "io"

// Spool holds downloaded resource bytes locally between the fetch step and
// the upload step of a course sync. Entries that could not be uploaded stay
// in the spool and are referenced by a local:// file path.
type Spool interface {
	// Put stores the content read from r for a course's resource and returns
	// its location and size. Storing the same course/filename twice overwrites.
	Put(courseID, filename string, r io.Reader) (location string, size int64, err error)

	// Open returns a reader for a previously stored location.
	Open(location string) (io.ReadCloser, error)

	// Remove deletes a stored location (best-effort).
	Remove(location string) error
}
