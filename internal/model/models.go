package model

import (
	"database/sql"
	"time"
)

// Course is one content-site course as stored in the courses table.
// CourseID is unique across the whole store, not per owner.
type Course struct {
	CourseID   string // External site identifier, or "unknown"
	OwnerID    string // Opaque user identifier of the last crawler
	CourseName string
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// Section is one content block of a course, holding synthesized markdown.
type Section struct {
	SectionID string // course_id + "_section_" + hash8(title)
	CourseID  string
	Title     string
	Content   string // Markdown built from the section's modules
	Position  int    // Extraction order within the course
	CreatedAt time.Time
}

// FileStatus records whether a file row is backed by stored bytes.
type FileStatus string

const (
	FileStored   FileStatus = "stored"   // Path is an object store key
	FileLocal    FileStatus = "local"    // Path points at spooled bytes that were not uploaded
	FileUnbacked FileStatus = "unbacked" // No bytes were ever obtained
)

// File is one binary resource's storage metadata.
type File struct {
	Path        string // Primary identity: storage key or a local/unbacked marker
	Key         string // course_id + "_" + sanitized lowercased filename
	CourseID    string
	SectionID   sql.NullString // NULL once the section is replaced
	Status      FileStatus
	Size        int64
	ContentType string
	CreatedAt   time.Time
}

// CrawlOperation is one recorded CLI operation that mutated the store.
type CrawlOperation struct {
	ID         int64
	StartedAt  time.Time
	FinishedAt sql.NullTime
	Operation  string
	Parameters string
	Status     string // "running", "success" or "error"
}

// Cookie is one session cookie record supplied by the authentication step.
type Cookie struct {
	Name   string `json:"name"`
	Value  string `json:"value"`
	Domain string `json:"domain"`
	Path   string `json:"path"`
}

// CourseTree is the in-memory nested structure produced by extraction,
// before normalization.
type CourseTree struct {
	ID       string
	Name     string
	URL      string
	Sections []SectionTree
	Failed   bool // Navigation to the course page failed; this is a stub
}

// SectionTree is one extracted section and its modules.
type SectionTree struct {
	Name    string
	Modules []Module
}

// Module is one activity inside a section.
type Module struct {
	Name      string
	Type      string
	URL       string
	Resources []Resource
}

// Resource is one downloadable file attached to a module.
type Resource struct {
	Filename  string
	SourceURL string
}

// ModuleCount returns the number of modules across all sections.
func (t *CourseTree) ModuleCount() int {
	n := 0
	for _, s := range t.Sections {
		n += len(s.Modules)
	}
	return n
}

// ResourceCount returns the number of resources across all sections.
func (t *CourseTree) ResourceCount() int {
	n := 0
	for _, s := range t.Sections {
		for _, m := range s.Modules {
			n += len(m.Resources)
		}
	}
	return n
}
