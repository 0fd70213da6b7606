package app

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"coursesync/internal/config"
	"coursesync/internal/database"
	"coursesync/internal/extract"
	"coursesync/internal/filter"
	"coursesync/internal/ingest"
	"coursesync/internal/model"
	"coursesync/internal/objectstore"
	"coursesync/internal/session"
	"coursesync/internal/spool"
)

// IgnoreFileName is the optional ignore file read from the base directory in
// addition to fetch.ignore.
const IgnoreFileName = "ignore"

// Options adjusts how an App is built.
type Options struct {
	// Verbose enables debug logging.
	Verbose bool

	// Opener replaces the Moodle session opener. Used in tests.
	Opener ingest.SessionOpener

	// IDs generates the run id stamped on every log line. Defaults to UUIDs.
	IDs ingest.IDGenerator
}

// App is the application layer between the CLI and the ingest Service.
// It constructs all dependencies from config, records the CLI operation in
// the crawl history and manages the DB lifecycle on Close.
type App struct {
	cfg      *config.Config
	db       *database.SQLiteDatabase
	store    ingest.ObjectStore
	sessions *session.Store
	service  *ingest.Service
	op       *Operation
	logFile  *os.File
}

// New creates a fully wired App from the given config.
// operation identifies the CLI command being run (e.g. "Crawl", "RemoveCourse").
// The caller must call Close when done.
func New(ctx context.Context, cfg *config.Config, operation string, opts Options) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	store, err := objectstore.NewStoreFromConfig(ctx, cfg.Store)
	if err != nil {
		return nil, fmt.Errorf("creating object store: %w", err)
	}

	sp, err := spool.NewSpoolFromConfig(cfg.Spool)
	if err != nil {
		return nil, fmt.Errorf("creating spool: %w", err)
	}

	db, err := database.NewDatabaseFromConfig(cfg.Database, cfg.InstanceID)
	if err != nil {
		return nil, fmt.Errorf("creating database: %w", err)
	}

	if err := db.CheckMigrations(); err != nil {
		db.Close()
		return nil, fmt.Errorf("database schema out of date (run \"coursesync db migrate\"): %w", err)
	}

	patterns, err := ignorePatterns(cfg)
	if err != nil {
		db.Close()
		return nil, err
	}

	ids := opts.IDs
	if ids == nil {
		ids = ingest.UUIDGenerator{}
	}
	runID := ids.New()
	logger, logFile, err := newLogger(cfg.LogDir, runID, opts.Verbose)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating logger: %w", err)
	}
	log := &slogAdapter{l: logger}

	opener := opts.Opener
	if opener == nil {
		opener = extract.NewOpener(cfg.Site, cfg.Fetch, log)
	}

	svc := ingest.NewService(db, store, sp, opener, filter.NewIgnoreMatcher(patterns), log, ingest.RealClock{}, ingest.CrawlOptions{
		MaxCourses:       cfg.Site.MaxCourses,
		FetchConcurrency: cfg.Fetch.Concurrency,
	})

	return &App{
		cfg:      cfg,
		db:       db,
		store:    store,
		sessions: session.NewStore(cfg.Session),
		service:  svc,
		op:       NewOperation(operation, ""),
		logFile:  logFile,
	}, nil
}

// ignorePatterns joins fetch.ignore with the patterns of the base directory's
// ignore file.
func ignorePatterns(cfg *config.Config) ([]string, error) {
	patterns := append([]string(nil), cfg.Fetch.Ignore...)
	if cfg.BaseDir == "" {
		return patterns, nil
	}
	fromFile, err := filter.ParseIgnoreFile(filepath.Join(cfg.BaseDir, IgnoreFileName))
	if err != nil {
		return nil, err
	}
	return append(patterns, fromFile...), nil
}

// MigrateDatabase brings the configured database to the latest schema version.
func MigrateDatabase(cfg *config.Config) error {
	db, err := database.NewDatabaseFromConfig(cfg.Database, cfg.InstanceID)
	if err != nil {
		return fmt.Errorf("creating database: %w", err)
	}
	defer db.Close()

	if err := db.Migrate(); err != nil {
		return fmt.Errorf("migrating database: %w", err)
	}
	return nil
}

// persistOperation saves the operation to the crawl history, giving it an
// auto-increment ID. Only DB-mutating commands call it.
func (a *App) persistOperation(ctx context.Context, parameters string) error {
	if a.op.Persisted() {
		return nil // already persisted
	}
	a.op.Parameters = parameters
	dbOp, err := a.db.CreateCrawlOperation(ctx, a.op.Operation, parameters)
	if err != nil {
		return fmt.Errorf("persisting crawl operation: %w", err)
	}
	a.op.ID = dbOp.ID
	return nil
}

// record marks the operation failed when err is non-nil and passes err through.
func (a *App) record(err error) error {
	if err != nil {
		a.op.Status = StatusError
	}
	return err
}

// Cookies returns the session cookies for a crawl. A non-empty cookiesPath is
// read as a plaintext export; otherwise the imported session is decrypted
// with the passphrase returned by passphrase.
func (a *App) Cookies(cookiesPath string, passphrase func() (string, error)) ([]model.Cookie, error) {
	if cookiesPath != "" {
		return session.LoadFile(cookiesPath)
	}
	if !a.sessions.Exists() {
		return nil, fmt.Errorf("%w: run \"coursesync session import\" or pass --cookies", session.ErrNoSession)
	}
	pass, err := passphrase()
	if err != nil {
		return nil, fmt.Errorf("reading passphrase: %w", err)
	}
	return a.sessions.Load(pass)
}

// Crawl synchronizes every course visible to the session into the store.
func (a *App) Crawl(ctx context.Context, ownerID string, cookies []model.Cookie) (*ingest.CrawlResult, error) {
	if err := a.persistOperation(ctx, "owner="+ownerID); err != nil {
		return nil, err
	}
	result, err := a.service.Crawl(ctx, ownerID, cookies)
	return result, a.record(err)
}

// ListCourses returns stored courses, optionally filtered by owner.
func (a *App) ListCourses(ctx context.Context, ownerID string) ([]*model.Course, error) {
	return a.service.ListCourses(ctx, ownerID)
}

// GetStatus returns a course's stored sections and files.
func (a *App) GetStatus(ctx context.Context, courseID string) (*ingest.CourseStatus, error) {
	return a.service.GetStatus(ctx, courseID)
}

// RemoveCourse deletes a course, and its objects when purge is set.
func (a *App) RemoveCourse(ctx context.Context, courseID string, purge bool) (int, error) {
	if err := a.persistOperation(ctx, fmt.Sprintf("course=%s purge=%t", courseID, purge)); err != nil {
		return 0, err
	}
	n, err := a.service.RemoveCourse(ctx, courseID, purge)
	return n, a.record(err)
}

// FileURL returns a time-limited download URL for a file key.
func (a *App) FileURL(ctx context.Context, key string, expiry time.Duration) (string, error) {
	return a.service.FileURL(ctx, key, expiry)
}

// Export writes a course's stored files and section markdown under destDir.
// The directory may not exist yet; it is resolved with filepath.Abs only.
func (a *App) Export(ctx context.Context, courseID, destDir string) ([]string, error) {
	absDir, err := filepath.Abs(destDir)
	if err != nil {
		return nil, fmt.Errorf("resolving path: %w", err)
	}
	return a.service.Export(ctx, courseID, absDir)
}

// GetHistory returns the most recent crawl operations.
func (a *App) GetHistory(ctx context.Context, limit int) ([]*model.CrawlOperation, error) {
	return a.service.GetHistory(ctx, limit)
}

// CheckStore verifies that the configured object store is reachable.
func (a *App) CheckStore(ctx context.Context) error {
	return a.store.ValidateSetup(ctx)
}

// Close finalizes the operation record and closes all resources.
func (a *App) Close() error {
	var firstErr error

	if a.op.Persisted() {
		if err := a.db.FinishCrawlOperation(context.Background(), a.op.ID, a.op.Status); err != nil {
			firstErr = fmt.Errorf("finishing crawl operation: %w", err)
		}
	}

	if err := a.db.Close(); err != nil && firstErr == nil {
		firstErr = fmt.Errorf("closing database: %w", err)
	}

	if a.logFile != nil {
		a.logFile.Close()
	}

	return firstErr
}
