package ingest

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"coursesync/internal/model"
)

// Export downloads every stored file of a course into destDir, laid out as
// {section}/{filename}, and writes each section's markdown to
// {section}/README.md. Names that collide after sanitizing are made unique
// by ExportLayout. Existing files are never overwritten.
// Returns the list of paths written.
func (s *Service) Export(ctx context.Context, courseID, destDir string) ([]string, error) {
	s.logger.Info("export started", "course", courseID, "dest", destDir)

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

	layout := NewExportLayout()
	var written []string
	for _, sec := range sections {
		outPath := filepath.Join(destDir, filepath.FromSlash(layout.SectionReadme(sec.Title)))
		if err := writeNew(outPath, func(f *os.File) error {
			_, err := f.WriteString(sec.Content)
			return err
		}); err != nil {
			return written, fmt.Errorf("writing section %s: %w", sec.Title, err)
		}
		written = append(written, outPath)
	}

	files, err := s.database.FindFilesByCourse(ctx, courseID)
	if err != nil {
		return written, fmt.Errorf("finding files: %w", err)
	}

	for _, file := range files {
		if file.Status != model.FileStored {
			s.logger.Debug("skipping file without stored bytes", "key", file.Key, "status", string(file.Status))
			continue
		}

		outPath := filepath.Join(destDir, filepath.FromSlash(layout.File(courseID, file.Path)))
		if err := writeNew(outPath, func(f *os.File) error {
			return s.store.Get(ctx, file.Path, f)
		}); err != nil {
			return written, fmt.Errorf("exporting %s: %w", file.Key, err)
		}

		s.logger.Info("file exported", "path", outPath)
		written = append(written, outPath)
	}

	return written, nil
}

// writeNew creates path and fills it with write. It fails if path already
// exists and removes the partial file if write fails.
func writeNew(path string, write func(f *os.File) error) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("creating parent directory: %w", err)
	}

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
	if err != nil {
		return fmt.Errorf("creating output file: %w", err)
	}

	if err := write(f); err != nil {
		f.Close()
		os.Remove(path)
		return err
	}
	return f.Close()
}
