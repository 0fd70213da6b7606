package ingest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"coursesync/internal/model"
)

// ResourceFilter decides which resources are never downloaded.
type ResourceFilter interface {
	Ignored(res model.Resource) bool
}

// CrawlOptions bounds one crawl.
type CrawlOptions struct {
	// MaxCourses caps the number of listed courses that are processed.
	// Zero processes every listed course.
	MaxCourses int

	// FetchConcurrency caps simultaneous resource downloads within a course.
	FetchConcurrency int
}

// CrawlResult summarizes a whole crawl. Per-course failures are counted
// here rather than returned as errors.
type CrawlResult struct {
	Listed  int           // Course URLs returned by the course list
	Courses []*SyncResult // One entry per synchronized course, in list order
	Failed  int           // Courses that failed to load or to sync
	Fetched int           // Resources downloaded into the spool
	Missed  int           // Resources whose download failed or was skipped
}

// Files returns the number of file rows written across all courses.
func (r *CrawlResult) Files() int {
	n := 0
	for _, c := range r.Courses {
		n += c.Files()
	}
	return n
}

// Service is the orchestration layer that coordinates across all components
// to perform the high-level operations needed by the CLI.
type Service struct {
	database Database
	store    ObjectStore
	spool    Spool
	opener   SessionOpener
	filter   ResourceFilter
	writer   *SyncWriter
	logger   Logger
	clock    Clock
	opts     CrawlOptions
}

// NewService creates a new Service with the provided dependencies.
// filter may be nil, in which case every resource is fetched.
func NewService(database Database, store ObjectStore, spool Spool, opener SessionOpener, filter ResourceFilter, logger Logger, clock Clock, opts CrawlOptions) *Service {
	if opts.FetchConcurrency < 1 {
		opts.FetchConcurrency = 1
	}
	return &Service{
		database: database,
		store:    store,
		spool:    spool,
		opener:   opener,
		filter:   filter,
		writer:   NewSyncWriter(database, store, spool, logger, clock),
		logger:   logger,
		clock:    clock,
		opts:     opts,
	}
}

// Crawl opens a site session with the given cookies and synchronizes every
// listed course, one at a time in list order.
//
// Only a failure to open the session or an expired session aborts the crawl.
// A course that fails to load or to sync is logged and counted, and the
// crawl moves on to the next one.
func (s *Service) Crawl(ctx context.Context, ownerID string, cookies []model.Cookie) (*CrawlResult, error) {
	if len(cookies) == 0 {
		return nil, fmt.Errorf("no session cookies supplied")
	}

	site, err := s.opener.Open(ctx, cookies)
	if err != nil {
		return nil, fmt.Errorf("opening site session: %w", err)
	}
	defer site.Close()

	urls, err := site.ListCourses(ctx)
	if err != nil {
		if errors.Is(err, ErrSessionExpired) || ctx.Err() != nil {
			return nil, fmt.Errorf("listing courses: %w", err)
		}
		s.logger.Warn("listing courses failed", "error", err)
		urls = nil
	}

	result := &CrawlResult{Listed: len(urls)}
	if s.opts.MaxCourses > 0 && len(urls) > s.opts.MaxCourses {
		s.logger.Info("limiting courses", "listed", len(urls), "max", s.opts.MaxCourses)
		urls = urls[:s.opts.MaxCourses]
	}
	s.logger.Info("crawl started", "owner", ownerID, "courses", len(urls))

	for i, courseURL := range urls {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		tree := site.ExtractCourse(ctx, courseURL)
		if tree.Failed {
			s.logger.Warn("course failed to load", "url", courseURL)
			result.Failed++
			continue
		}
		s.logger.Info("course extracted",
			"index", i+1,
			"course", tree.ID,
			"sections", len(tree.Sections),
			"modules", tree.ModuleCount(),
			"resources", tree.ResourceCount(),
		)

		blobs, missed := s.fetchCourse(ctx, site, tree)
		result.Fetched += len(blobs)
		result.Missed += missed

		synced, err := s.writer.SyncCourse(ctx, ownerID, tree, blobs)
		if err != nil {
			if ctx.Err() != nil {
				return result, err
			}
			s.logger.Error("course sync failed", "course", tree.ID, "error", err)
			result.Failed++
			continue
		}
		result.Courses = append(result.Courses, synced)
	}

	s.logger.Info("crawl complete",
		"courses", len(result.Courses),
		"failed", result.Failed,
		"files", result.Files(),
	)
	return result, nil
}

// fetchCourse downloads every resource of a course into the spool on a
// bounded pool. It returns the spooled blobs keyed by storage key and the
// number of resources that have no bytes. All downloads have finished when
// it returns.
func (s *Service) fetchCourse(ctx context.Context, fetcher Fetcher, tree *model.CourseTree) (map[string]*Blob, int) {
	var (
		mu     sync.Mutex
		blobs  = make(map[string]*Blob)
		missed int
	)
	miss := func() {
		mu.Lock()
		missed++
		mu.Unlock()
	}

	var g errgroup.Group
	g.SetLimit(s.opts.FetchConcurrency)

	seen := make(map[string]bool)
	for _, st := range tree.Sections {
		if len(st.Modules) == 0 {
			continue
		}
		for _, m := range st.Modules {
			for _, res := range m.Resources {
				key := StorageKey(tree.ID, st.Name, res.Filename)
				if seen[key] {
					continue
				}
				seen[key] = true

				if res.SourceURL == "" {
					s.logger.Debug("resource has no source url", "key", key)
					miss()
					continue
				}
				if s.filter != nil && s.filter.Ignored(res) {
					s.logger.Debug("resource ignored", "key", key)
					miss()
					continue
				}

				res := res
				g.Go(func() error {
					blob, err := s.fetchOne(ctx, fetcher, tree.ID, key, res)
					if err != nil {
						s.logger.Warn("fetch failed", "key", key, "error", err)
						miss()
						return nil
					}
					mu.Lock()
					blobs[key] = blob
					mu.Unlock()
					return nil
				})
			}
		}
	}
	_ = g.Wait()

	return blobs, missed
}

// fetchOne downloads one resource and spools its body.
func (s *Service) fetchOne(ctx context.Context, fetcher Fetcher, courseID, key string, res model.Resource) (*Blob, error) {
	dl, err := fetcher.Fetch(ctx, res)
	if err != nil {
		return nil, err
	}
	defer dl.Body.Close()

	// Resources in different sections may share a filename.
	name := hash8(key) + "_" + SanitizeFilename(res.Filename)
	location, size, err := s.spool.Put(courseID, name, dl.Body)
	if err != nil {
		return nil, fmt.Errorf("spooling %s: %w", res.Filename, err)
	}

	s.logger.Debug("fetched", "key", key, "size", size)
	return &Blob{Location: location, Size: size, ContentType: dl.ContentType}, nil
}

// ListCourses returns stored courses. An empty ownerID lists all of them.
func (s *Service) ListCourses(ctx context.Context, ownerID string) ([]*model.Course, error) {
	courses, err := s.database.ListCourses(ctx, ownerID)
	if err != nil {
		return nil, fmt.Errorf("listing courses: %w", err)
	}
	return courses, nil
}

// RemoveCourse deletes a course with its sections and file rows. When purge
// is set, the course's objects are also deleted from the object store.
// Returns the number of objects deleted.
func (s *Service) RemoveCourse(ctx context.Context, courseID string, purge bool) (int, error) {
	if err := s.database.DeleteCourse(ctx, courseID); err != nil {
		return 0, fmt.Errorf("deleting course %s: %w", courseID, err)
	}
	s.logger.Info("course removed", "course", courseID)

	if !purge {
		return 0, nil
	}

	objects, err := s.store.List(ctx, CoursePrefix(courseID))
	if err != nil {
		return 0, fmt.Errorf("listing course objects: %w", err)
	}

	purged := 0
	for _, obj := range objects {
		if err := s.store.Delete(ctx, obj.Key); err != nil {
			return purged, fmt.Errorf("deleting object %s: %w", obj.Key, err)
		}
		purged++
	}

	s.logger.Info("course objects purged", "course", courseID, "count", purged)
	return purged, nil
}

// FileURL returns a time-limited download URL for the file with the given key.
// Returns ErrNotFound for an unknown key and ErrUnbacked when the file's bytes
// never reached the object store.
func (s *Service) FileURL(ctx context.Context, key string, expiry time.Duration) (string, error) {
	file, err := s.database.FindFileByKey(ctx, key)
	if err != nil {
		return "", fmt.Errorf("finding file: %w", err)
	}
	if file == nil {
		return "", fmt.Errorf("file %s: %w", key, ErrNotFound)
	}
	if file.Status != model.FileStored {
		return "", fmt.Errorf("file %s is %s: %w", key, file.Status, ErrUnbacked)
	}

	url, err := s.store.PresignURL(ctx, file.Path, expiry)
	if err != nil {
		return "", fmt.Errorf("presigning %s: %w", file.Path, err)
	}
	return url, nil
}
