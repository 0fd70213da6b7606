package ingest

import (
	"context"

	"coursesync/internal/model"
)

// Database provides an interface for the relational course store.
// Courses, sections and files form a three-table hierarchy: deleting a course
// cascades to its sections and files, while a file's section reference is
// nullable and is not cascaded.
type Database interface {
	// Course operations

	// FindCourse returns the course with the given id, or nil if absent.
	FindCourse(ctx context.Context, courseID string) (*model.Course, error)

	// ReplaceCourse inserts the course or updates its name and owner in place,
	// then makes the given sections the course's full section set: sections
	// not in the set are deleted (orphaning their files), the rest are
	// inserted or overwritten in place. All in one transaction; any failure,
	// including a repeated section id (ErrDuplicate), rolls back the whole unit.
	// Reports whether the course row was newly created.
	ReplaceCourse(ctx context.Context, course *model.Course, sections []*model.Section) (created bool, err error)

	// ListCourses returns all courses ordered by id. An empty ownerID lists
	// every owner's courses.
	ListCourses(ctx context.Context, ownerID string) ([]*model.Course, error)

	// DeleteCourse removes a course with its sections and files.
	// Returns ErrNotFound if the course does not exist.
	DeleteCourse(ctx context.Context, courseID string) error

	// Section operations

	// FindSectionsByCourse returns a course's sections in extraction order.
	FindSectionsByCourse(ctx context.Context, courseID string) ([]*model.Section, error)

	// File operations

	// CreateFile inserts a file row in its own transaction.
	// Returns an error wrapping ErrDuplicate if the path or key already exists.
	CreateFile(ctx context.Context, file *model.File) error

	// FindFilesByCourse returns all file rows of a course ordered by key.
	FindFilesByCourse(ctx context.Context, courseID string) ([]*model.File, error)

	// FindFileByKey returns the file with the given key, or nil if absent.
	FindFileByKey(ctx context.Context, key string) (*model.File, error)

	// Crawl operation log

	CreateCrawlOperation(ctx context.Context, operation, parameters string) (*model.CrawlOperation, error)
	FinishCrawlOperation(ctx context.Context, id int64, status string) error
	ListCrawlOperations(ctx context.Context, limit int) ([]*model.CrawlOperation, error)

	// CheckMigrations verifies the schema is at the latest version.
	CheckMigrations() error

	// Close closes the database connection.
	Close() error
}
