package ingest

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"coursesync/internal/model"
)

// SyncResult summarizes one course synchronization.
type SyncResult struct {
	CourseID string
	Created  bool // The course row was inserted rather than updated
	Sections int  // Sections persisted
	Stored   int  // File rows backed by the object store
	Local    int  // File rows backed only by spooled bytes
	Unbacked int  // File rows with no bytes at all
	Skipped  int  // Resources not recorded: repeated in the tree or failed to insert
}

// Files returns the number of file rows written.
func (r *SyncResult) Files() int {
	return r.Stored + r.Local + r.Unbacked
}

// SyncWriter persists an extracted course tree into the relational store and
// its fetched resource bytes into the object store.
type SyncWriter struct {
	database Database
	store    ObjectStore
	spool    Spool
	logger   Logger
	clock    Clock
}

// NewSyncWriter creates a new SyncWriter with the provided dependencies.
func NewSyncWriter(database Database, store ObjectStore, spool Spool, logger Logger, clock Clock) *SyncWriter {
	return &SyncWriter{
		database: database,
		store:    store,
		spool:    spool,
		logger:   logger,
		clock:    clock,
	}
}

// SyncCourse writes one course tree. blobs maps a resource's storage key to
// its spooled bytes; resources with no entry were never downloaded.
//
// The course row and its sections are replaced in one transaction, so an
// error from that step leaves the store untouched. Each file row is then
// written independently: a failed upload or insert is logged and counted
// but does not fail the course.
func (w *SyncWriter) SyncCourse(ctx context.Context, ownerID string, tree *model.CourseTree, blobs map[string]*Blob) (*SyncResult, error) {
	now := w.clock.Now()
	result := &SyncResult{CourseID: tree.ID}

	course := &model.Course{
		CourseID:   tree.ID,
		OwnerID:    ownerID,
		CourseName: tree.Name,
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	var sections []*model.Section
	for _, st := range tree.Sections {
		if len(st.Modules) == 0 {
			continue
		}
		sections = append(sections, &model.Section{
			SectionID: SectionID(tree.ID, st.Name),
			CourseID:  tree.ID,
			Title:     st.Name,
			Content:   BuildMarkdown(tree.ID, st.Name, st.Modules),
			Position:  len(sections),
			CreatedAt: now,
		})
	}

	created, err := w.database.ReplaceCourse(ctx, course, sections)
	if err != nil {
		return nil, fmt.Errorf("replacing course %s: %w", tree.ID, err)
	}
	result.Created = created
	result.Sections = len(sections)

	if created {
		w.logger.Info("course created", "course", tree.ID, "sections", len(sections))
	} else {
		w.logger.Info("course updated", "course", tree.ID, "sections", len(sections))
	}

	seen := make(map[string]bool)
	for _, st := range tree.Sections {
		if len(st.Modules) == 0 {
			continue
		}
		sectionID := SectionID(tree.ID, st.Name)
		for _, m := range st.Modules {
			for _, res := range m.Resources {
				if err := ctx.Err(); err != nil {
					return result, err
				}
				key := StorageKey(tree.ID, st.Name, res.Filename)
				if seen[key] {
					w.logger.Debug("resource listed twice", "key", key)
					result.Skipped++
					continue
				}
				seen[key] = true
				w.syncFile(ctx, tree.ID, sectionID, key, res, blobs, result)
			}
		}
	}

	return result, nil
}

// syncFile uploads one resource if it has bytes and records its file row.
func (w *SyncWriter) syncFile(ctx context.Context, courseID, sectionID, storageKey string, res model.Resource, blobs map[string]*Blob, result *SyncResult) {
	file := &model.File{
		Key:       FileKey(courseID, res.Filename),
		CourseID:  courseID,
		SectionID: nullString(sectionID),
		CreatedAt: w.clock.Now(),
	}

	blob := blobs[storageKey]
	switch {
	case blob == nil:
		file.Path = UnbackedPath(storageKey)
		file.Status = model.FileUnbacked
	case w.upload(ctx, storageKey, blob) == nil:
		file.Path = storageKey
		file.Status = model.FileStored
		file.Size = blob.Size
		file.ContentType = blob.ContentType
		w.release(ctx, file.Key, blob)
	default:
		file.Path = LocalPath(blob.Location)
		file.Status = model.FileLocal
		file.Size = blob.Size
		file.ContentType = blob.ContentType
	}

	if err := w.database.CreateFile(ctx, file); err != nil {
		if errors.Is(err, ErrDuplicate) {
			w.logger.Debug("file already recorded", "key", file.Key, "path", file.Path)
		} else {
			w.logger.Warn("recording file failed", "key", file.Key, "error", err)
		}
		result.Skipped++
		return
	}

	switch file.Status {
	case model.FileStored:
		result.Stored++
	case model.FileLocal:
		result.Local++
	case model.FileUnbacked:
		result.Unbacked++
	}
}

func (w *SyncWriter) upload(ctx context.Context, key string, blob *Blob) error {
	r, err := w.spool.Open(blob.Location)
	if err != nil {
		w.logger.Warn("opening spooled file failed", "location", blob.Location, "error", err)
		return err
	}
	defer r.Close()

	if _, err := w.store.Put(ctx, key, r, blob.Size, blob.ContentType); err != nil {
		w.logger.Warn("upload failed", "key", key, "error", err)
		return err
	}
	w.logger.Debug("uploaded", "key", key, "size", blob.Size)
	return nil
}

// release removes an uploaded spool entry unless a file row recorded by an
// earlier crawl still points at it as its local copy.
func (w *SyncWriter) release(ctx context.Context, fileKey string, blob *Blob) {
	existing, err := w.database.FindFileByKey(ctx, fileKey)
	if err != nil {
		w.logger.Debug("keeping spooled file", "location", blob.Location, "error", err)
		return
	}
	if existing != nil && existing.Path == LocalPath(blob.Location) {
		w.logger.Debug("keeping spooled file referenced by a local row", "key", fileKey, "location", blob.Location)
		return
	}
	if err := w.spool.Remove(blob.Location); err != nil {
		w.logger.Debug("removing spooled file failed", "location", blob.Location, "error", err)
	}
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
