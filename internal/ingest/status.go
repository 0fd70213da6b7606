package ingest

import (
	"context"
	"fmt"

	"coursesync/internal/model"
)

// FileState is one file row together with what the object store holds for it.
type FileState struct {
	File     *model.File
	Present  bool // The object exists in the store
	Orphaned bool // The file's section no longer exists
}

// CourseStatus is the stored state of one course.
type CourseStatus struct {
	Course   *model.Course
	Sections []*model.Section
	Files    []*FileState
}

// GetStatus returns a course's sections and files, checking every stored
// file against the object store.
func (s *Service) GetStatus(ctx context.Context, courseID string) (*CourseStatus, error) {
	s.logger.Debug("computing status", "course", courseID)

	course, err := s.database.FindCourse(ctx, courseID)
	if err != nil {
		return nil, fmt.Errorf("finding course: %w", err)
	}
	if course == nil {
		return nil, fmt.Errorf("course %s: %w", courseID, ErrNotFound)
	}

	sections, err := s.database.FindSectionsByCourse(ctx, courseID)
	if err != nil {
		return nil, fmt.Errorf("finding sections: %w", err)
	}

	files, err := s.database.FindFilesByCourse(ctx, courseID)
	if err != nil {
		return nil, fmt.Errorf("finding files: %w", err)
	}

	status := &CourseStatus{Course: course, Sections: sections}
	for _, f := range files {
		state := &FileState{File: f, Orphaned: !f.SectionID.Valid}
		if f.Status == model.FileStored {
			state.Present, err = s.store.Exists(ctx, f.Path)
			if err != nil {
				return nil, fmt.Errorf("checking object %s: %w", f.Path, err)
			}
		}
		status.Files = append(status.Files, state)
	}

	return status, nil
}
