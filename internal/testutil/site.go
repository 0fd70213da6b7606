package testutil

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"coursesync/internal/ingest"
	"coursesync/internal/model"
)

// FakeSite is an in-memory content site. It implements both
// ingest.SessionOpener and ingest.SiteSession; Open returns the site itself.
type FakeSite struct {
	// CourseURLs is what ListCourses returns.
	CourseURLs []string
	// Trees maps a course URL to its extracted tree. Unknown URLs yield a
	// failed stub.
	Trees map[string]*model.CourseTree
	// Files maps a resource source URL to its bytes. Unknown URLs fail.
	Files map[string][]byte

	ListErr error
	OpenErr error

	// FetchDelay holds every Fetch open for this long, so overlapping
	// downloads can be observed.
	FetchDelay time.Duration

	mu       sync.Mutex
	opened   [][]model.Cookie
	fetched  []string
	closed   int
	inflight int
	peak     int
}

// NewFakeSite creates an empty FakeSite.
func NewFakeSite() *FakeSite {
	return &FakeSite{
		Trees: make(map[string]*model.CourseTree),
		Files: make(map[string][]byte),
	}
}

// AddCourse registers a course tree under url and lists it.
func (f *FakeSite) AddCourse(url string, tree *model.CourseTree) {
	f.CourseURLs = append(f.CourseURLs, url)
	f.Trees[url] = tree
}

func (f *FakeSite) Open(ctx context.Context, cookies []model.Cookie) (ingest.SiteSession, error) {
	if f.OpenErr != nil {
		return nil, f.OpenErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.opened = append(f.opened, cookies)
	return f, nil
}

func (f *FakeSite) ListCourses(ctx context.Context) ([]string, error) {
	if f.ListErr != nil {
		return nil, f.ListErr
	}
	return append([]string(nil), f.CourseURLs...), nil
}

func (f *FakeSite) ExtractCourse(ctx context.Context, courseURL string) *model.CourseTree {
	tree, ok := f.Trees[courseURL]
	if !ok {
		return &model.CourseTree{ID: "unknown", Name: "Failed to load", URL: courseURL, Failed: true}
	}
	return tree
}

func (f *FakeSite) Fetch(ctx context.Context, res model.Resource) (*ingest.Download, error) {
	f.mu.Lock()
	f.fetched = append(f.fetched, res.SourceURL)
	data, ok := f.Files[res.SourceURL]
	f.inflight++
	f.peak = max(f.peak, f.inflight)
	f.mu.Unlock()

	defer func() {
		f.mu.Lock()
		f.inflight--
		f.mu.Unlock()
	}()

	if f.FetchDelay > 0 {
		select {
		case <-time.After(f.FetchDelay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	if !ok {
		return nil, fmt.Errorf("fetching %s: HTTP 404", res.Filename)
	}
	return &ingest.Download{
		Body:        io.NopCloser(bytes.NewReader(data)),
		ContentType: "application/pdf",
	}, nil
}

func (f *FakeSite) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed++
	return nil
}

// Opened returns the cookie sets passed to Open.
func (f *FakeSite) Opened() [][]model.Cookie {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([][]model.Cookie(nil), f.opened...)
}

// Fetched returns the source URLs requested so far, in request order.
func (f *FakeSite) Fetched() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.fetched...)
}

// PeakFetches returns the largest number of Fetch calls that were running at
// the same time.
func (f *FakeSite) PeakFetches() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.peak
}

// Closed returns how many times Close was called.
func (f *FakeSite) Closed() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

var (
	_ ingest.SessionOpener = (*FakeSite)(nil)
	_ ingest.SiteSession   = (*FakeSite)(nil)
)
