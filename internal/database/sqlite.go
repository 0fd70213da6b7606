package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mattn/go-sqlite3"

	"coursesync/internal/database/migrations"
	"coursesync/internal/ingest"
	"coursesync/internal/model"
)

// SQLiteDatabase implements the Database interface using SQLite.
type SQLiteDatabase struct {
	db *sql.DB
}

// NewSQLiteDatabase creates a new SQLite database connection.
// path can be a file path or ":memory:" for in-memory database.
func NewSQLiteDatabase(path string) (*SQLiteDatabase, error) {
	db, err := OpenConnection(path)
	if err != nil {
		return nil, err
	}
	return &SQLiteDatabase{db: db}, nil
}

// NewSQLiteDatabaseFromDB wraps an existing database connection.
// The caller is responsible for ensuring the connection is properly configured.
func NewSQLiteDatabaseFromDB(db *sql.DB) *SQLiteDatabase {
	return &SQLiteDatabase{db: db}
}

// OpenConnection opens and configures a SQLite database connection.
// This is exported for use in tools and tests that need a properly configured SQLite connection.
// path can be a file path or ":memory:" for in-memory database.
//
// The pool holds a single connection: every ":memory:" connection is a
// separate database, and SQLite serializes writers anyway. Code holding a
// transaction must therefore issue all its statements through that
// transaction.
func OpenConnection(path string) (*sql.DB, error) {
	dsn := path
	if strings.Contains(dsn, "?") {
		dsn += "&_foreign_keys=on"
	} else {
		dsn += "?_foreign_keys=on"
	}

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	return db, nil
}

// wrapWriteError maps SQLite uniqueness violations to ingest.ErrDuplicate.
func wrapWriteError(msg string, err error) error {
	var se sqlite3.Error
	if errors.As(err, &se) {
		switch se.ExtendedCode {
		case sqlite3.ErrConstraintUnique, sqlite3.ErrConstraintPrimaryKey:
			return fmt.Errorf("%s: %w: %v", msg, ingest.ErrDuplicate, err)
		}
	}
	return fmt.Errorf("%s: %w", msg, err)
}

// Course operations

const courseColumns = "course_id, owner_id, course_name, created_at, updated_at"

func scanCourse(row interface{ Scan(...any) error }) (*model.Course, error) {
	var c model.Course
	if err := row.Scan(&c.CourseID, &c.OwnerID, &c.CourseName, &c.CreatedAt, &c.UpdatedAt); err != nil {
		return nil, err
	}
	return &c, nil
}

func (s *SQLiteDatabase) FindCourse(ctx context.Context, courseID string) (*model.Course, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+courseColumns+" FROM courses WHERE course_id = ?", courseID)
	c, err := scanCourse(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil // Not found
		}
		return nil, fmt.Errorf("finding course: %w", err)
	}
	return c, nil
}

func (s *SQLiteDatabase) ReplaceCourse(ctx context.Context, course *model.Course, sections []*model.Section) (bool, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("starting transaction: %w", err)
	}
	defer tx.Rollback()

	var exists int
	err = tx.QueryRowContext(ctx, "SELECT COUNT(*) FROM courses WHERE course_id = ?", course.CourseID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("looking up course: %w", err)
	}
	created := exists == 0

	if created {
		_, err = tx.ExecContext(ctx,
			"INSERT INTO courses ("+courseColumns+") VALUES (?, ?, ?, ?, ?)",
			course.CourseID, course.OwnerID, course.CourseName, course.CreatedAt, course.UpdatedAt)
		if err != nil {
			return false, wrapWriteError("inserting course", err)
		}
	} else {
		_, err = tx.ExecContext(ctx,
			"UPDATE courses SET owner_id = ?, course_name = ?, updated_at = ? WHERE course_id = ?",
			course.OwnerID, course.CourseName, course.UpdatedAt, course.CourseID)
		if err != nil {
			return false, fmt.Errorf("updating course: %w", err)
		}
	}

	keep := make(map[string]bool, len(sections))
	for _, sec := range sections {
		if keep[sec.SectionID] {
			return false, fmt.Errorf("inserting section %q: %w", sec.Title, ingest.ErrDuplicate)
		}
		keep[sec.SectionID] = true
	}

	// Sections that survive are updated in place so their file rows keep
	// the reference; only dropped sections orphan files.
	stale, err := staleSections(ctx, tx, course.CourseID, keep)
	if err != nil {
		return false, err
	}
	for _, id := range stale {
		if _, err := tx.ExecContext(ctx, "DELETE FROM sections WHERE section_id = ?", id); err != nil {
			return false, fmt.Errorf("deleting section %s: %w", id, err)
		}
	}

	for _, sec := range sections {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO sections (section_id, course_id, title, content, position, created_at) VALUES (?, ?, ?, ?, ?, ?)
			ON CONFLICT (section_id) DO UPDATE SET title = excluded.title, content = excluded.content,
				position = excluded.position, created_at = excluded.created_at
			WHERE sections.course_id = excluded.course_id`,
			sec.SectionID, course.CourseID, sec.Title, sec.Content, sec.Position, sec.CreatedAt)
		if err != nil {
			return false, wrapWriteError(fmt.Sprintf("inserting section %q", sec.Title), err)
		}
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("committing transaction: %w", err)
	}
	return created, nil
}

// staleSections returns the ids of a course's stored sections that are not in keep.
func staleSections(ctx context.Context, tx *sql.Tx, courseID string, keep map[string]bool) ([]string, error) {
	rows, err := tx.QueryContext(ctx, "SELECT section_id FROM sections WHERE course_id = ?", courseID)
	if err != nil {
		return nil, fmt.Errorf("listing sections: %w", err)
	}
	defer rows.Close()

	var stale []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scanning section: %w", err)
		}
		if !keep[id] {
			stale = append(stale, id)
		}
	}
	return stale, rows.Err()
}

func (s *SQLiteDatabase) ListCourses(ctx context.Context, ownerID string) ([]*model.Course, error) {
	query := "SELECT " + courseColumns + " FROM courses"
	var args []any
	if ownerID != "" {
		query += " WHERE owner_id = ?"
		args = append(args, ownerID)
	}
	query += " ORDER BY course_id"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing courses: %w", err)
	}
	defer rows.Close()

	var result []*model.Course
	for rows.Next() {
		c, err := scanCourse(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning course: %w", err)
		}
		result = append(result, c)
	}
	return result, rows.Err()
}

func (s *SQLiteDatabase) DeleteCourse(ctx context.Context, courseID string) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM courses WHERE course_id = ?", courseID)
	if err != nil {
		return fmt.Errorf("deleting course: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("deleting course: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("course %s: %w", courseID, ingest.ErrNotFound)
	}
	return nil
}

// Section operations

func (s *SQLiteDatabase) FindSectionsByCourse(ctx context.Context, courseID string) ([]*model.Section, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT section_id, course_id, title, content, position, created_at FROM sections WHERE course_id = ? ORDER BY position, section_id",
		courseID)
	if err != nil {
		return nil, fmt.Errorf("finding sections: %w", err)
	}
	defer rows.Close()

	var result []*model.Section
	for rows.Next() {
		var sec model.Section
		if err := rows.Scan(&sec.SectionID, &sec.CourseID, &sec.Title, &sec.Content, &sec.Position, &sec.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning section: %w", err)
		}
		result = append(result, &sec)
	}
	return result, rows.Err()
}

// File operations

const fileColumns = "path, key, course_id, section_id, status, size, content_type, created_at"

func scanFile(row interface{ Scan(...any) error }) (*model.File, error) {
	var f model.File
	var status string
	if err := row.Scan(&f.Path, &f.Key, &f.CourseID, &f.SectionID, &status, &f.Size, &f.ContentType, &f.CreatedAt); err != nil {
		return nil, err
	}
	f.Status = model.FileStatus(status)
	return &f, nil
}

func (s *SQLiteDatabase) CreateFile(ctx context.Context, file *model.File) error {
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO files ("+fileColumns+") VALUES (?, ?, ?, ?, ?, ?, ?, ?)",
		file.Path, file.Key, file.CourseID, file.SectionID, string(file.Status), file.Size, file.ContentType, file.CreatedAt)
	if err != nil {
		return wrapWriteError("creating file", err)
	}
	return nil
}

func (s *SQLiteDatabase) FindFilesByCourse(ctx context.Context, courseID string) ([]*model.File, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT "+fileColumns+" FROM files WHERE course_id = ? ORDER BY key", courseID)
	if err != nil {
		return nil, fmt.Errorf("finding files: %w", err)
	}
	defer rows.Close()

	var result []*model.File
	for rows.Next() {
		f, err := scanFile(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning file: %w", err)
		}
		result = append(result, f)
	}
	return result, rows.Err()
}

func (s *SQLiteDatabase) FindFileByKey(ctx context.Context, key string) (*model.File, error) {
	f, err := scanFile(s.db.QueryRowContext(ctx, "SELECT "+fileColumns+" FROM files WHERE key = ?", key))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil // Not found
		}
		return nil, fmt.Errorf("finding file by key: %w", err)
	}
	return f, nil
}

// Crawl operation log

func (s *SQLiteDatabase) CreateCrawlOperation(ctx context.Context, operation, parameters string) (*model.CrawlOperation, error) {
	op := &model.CrawlOperation{
		StartedAt:  time.Now().UTC(),
		Operation:  operation,
		Parameters: parameters,
		Status:     "running",
	}
	res, err := s.db.ExecContext(ctx,
		"INSERT INTO crawl_operations (started_at, operation, parameters, status) VALUES (?, ?, ?, ?)",
		op.StartedAt, op.Operation, op.Parameters, op.Status)
	if err != nil {
		return nil, fmt.Errorf("creating crawl operation: %w", err)
	}
	op.ID, err = res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("creating crawl operation: %w", err)
	}
	return op, nil
}

func (s *SQLiteDatabase) FinishCrawlOperation(ctx context.Context, id int64, status string) error {
	_, err := s.db.ExecContext(ctx,
		"UPDATE crawl_operations SET finished_at = ?, status = ? WHERE id = ?",
		sql.NullTime{Time: time.Now().UTC(), Valid: true}, status, id)
	if err != nil {
		return fmt.Errorf("finishing crawl operation: %w", err)
	}
	return nil
}

func (s *SQLiteDatabase) ListCrawlOperations(ctx context.Context, limit int) ([]*model.CrawlOperation, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT id, started_at, finished_at, operation, parameters, status FROM crawl_operations ORDER BY id DESC LIMIT ?",
		limit)
	if err != nil {
		return nil, fmt.Errorf("listing crawl operations: %w", err)
	}
	defer rows.Close()

	var result []*model.CrawlOperation
	for rows.Next() {
		var op model.CrawlOperation
		if err := rows.Scan(&op.ID, &op.StartedAt, &op.FinishedAt, &op.Operation, &op.Parameters, &op.Status); err != nil {
			return nil, fmt.Errorf("scanning crawl operation: %w", err)
		}
		result = append(result, &op)
	}
	return result, rows.Err()
}

// Migrate applies all pending schema migrations.
func (s *SQLiteDatabase) Migrate() error {
	return migrations.MigrateUp(s.db)
}

func (s *SQLiteDatabase) CheckMigrations() error {
	return migrations.CheckDBMigrationStatus(s.db)
}

// Close closes the database connection.
func (s *SQLiteDatabase) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Compile-time check that SQLiteDatabase implements ingest.Database interface
var _ ingest.Database = (*SQLiteDatabase)(nil)
