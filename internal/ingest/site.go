package ingest

import (
	"context"
	"io"

	"coursesync/internal/model"
)

// Extractor drives the content site page by page and parses its DOM into
// course trees. It owns its page exclusively for the duration of a crawl.
type Extractor interface {
	// ListCourses returns the course URLs visible to the session, in page order.
	ListCourses(ctx context.Context) ([]string, error)

	// ExtractCourse parses one course page. It never fails: a navigation
	// failure yields a stub tree with Failed set.
	ExtractCourse(ctx context.Context, courseURL string) *model.CourseTree
}

// Download is the body of one successfully fetched resource.
// The caller must close Body.
type Download struct {
	Body        io.ReadCloser
	ContentType string
}

// Blob is one fetched resource after it has been spooled locally.
type Blob struct {
	Location    string
	Size        int64
	ContentType string
}

// Fetcher downloads resource bytes with the session's credentials.
// Implementations must be safe for concurrent use and must not share the
// extractor's page.
type Fetcher interface {
	Fetch(ctx context.Context, res model.Resource) (*Download, error)
}

// SiteSession is an authenticated session against the content site.
type SiteSession interface {
	Extractor
	Fetcher
	Close() error
}

// SessionOpener creates a SiteSession from the cookie records supplied by
// the authentication step.
type SessionOpener interface {
	Open(ctx context.Context, cookies []model.Cookie) (SiteSession, error)
}
