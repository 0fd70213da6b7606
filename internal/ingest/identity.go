package ingest

import (
	"fmt"
	"path"
	"strings"
	"unicode"

	"github.com/cespare/xxhash/v2"
)

// StorageScheme prefixes storage keys in section markdown links.
const StorageScheme = "s3"

const (
	localMarker    = "local://"
	unbackedMarker = "unbacked://"
)

// hash8 returns the first 8 hex digits of the xxhash64 digest of s.
func hash8(s string) string {
	return fmt.Sprintf("%016x", xxhash.Sum64String(s))[:8]
}

// SectionID derives a section's identity from its course and display name.
// The same name always maps to the same id, so re-crawls replace sections
// in place; two sections sharing a name collapse into one id.
func SectionID(courseID, sectionName string) string {
	return courseID + "_section_" + hash8(sectionName)
}

// SanitizeFilename keeps letters, digits, space, hyphen, underscore and dot.
// Every other character is dropped.
func SanitizeFilename(name string) string {
	var b strings.Builder
	for _, r := range name {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || strings.ContainsRune(" -_.", r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// FileKey derives a file row's unique key from its course and filename.
func FileKey(courseID, filename string) string {
	name := strings.ToLower(SanitizeFilename(filename))
	name = strings.NewReplacer(" ", "_", ".", "_").Replace(name)
	return courseID + "_" + name
}

// StorageKey returns the object store key of a resource. The section name and
// filename are used verbatim so the key doubles as a browsable path.
func StorageKey(courseID, sectionName, filename string) string {
	return "courses/" + courseID + "/" + sectionName + "/" + filename
}

// CoursePrefix returns the object store prefix holding all of a course's objects.
func CoursePrefix(courseID string) string {
	return "courses/" + courseID + "/"
}

// LocalPath returns the file path marker for bytes that exist only in the spool.
func LocalPath(location string) string {
	return localMarker + location
}

// UnbackedPath returns the file path marker for a resource that has no bytes.
func UnbackedPath(storageKey string) string {
	return unbackedMarker + storageKey
}

// ExportLayout assigns local paths to a course's exported sections and
// files. Section titles and filenames that sanitize to the same name get a
// hash8 suffix, so no two exported entries share a path. Paths never leave
// the export directory.
type ExportLayout struct {
	dirs     map[string]string // section title -> directory
	usedDirs map[string]bool
	used     map[string]bool
}

// NewExportLayout returns an empty layout.
func NewExportLayout() *ExportLayout {
	return &ExportLayout{
		dirs:     make(map[string]string),
		usedDirs: make(map[string]bool),
		used:     make(map[string]bool),
	}
}

// Dir returns the directory a section title is exported to.
func (l *ExportLayout) Dir(sectionTitle string) string {
	if d, ok := l.dirs[sectionTitle]; ok {
		return d
	}
	d := exportSegment(sectionTitle)
	if l.usedDirs[d] {
		d += "_" + hash8(sectionTitle)
	}
	l.dirs[sectionTitle] = d
	l.usedDirs[d] = true
	return d
}

// SectionReadme returns the path of a section's README.md.
func (l *ExportLayout) SectionReadme(sectionTitle string) string {
	return l.claim(path.Join(l.Dir(sectionTitle), "README.md"), sectionTitle)
}

// File returns the path a stored object of the course is exported to.
func (l *ExportLayout) File(courseID, storageKey string) string {
	rel := strings.TrimPrefix(storageKey, CoursePrefix(courseID))
	section, name := "", rel
	if i := strings.LastIndex(rel, "/"); i >= 0 {
		section, name = rel[:i], rel[i+1:]
	}
	return l.claim(path.Join(l.Dir(section), exportSegment(name)), storageKey)
}

// claim reserves p, suffixing the file stem with hash8(unique) if p is taken.
func (l *ExportLayout) claim(p, unique string) string {
	if l.used[p] {
		ext := path.Ext(p)
		p = strings.TrimSuffix(p, ext) + "_" + hash8(unique) + ext
	}
	l.used[p] = true
	return p
}

// exportSegment sanitizes one path element; empty and dot-only elements
// become "_".
func exportSegment(s string) string {
	s = SanitizeFilename(s)
	if strings.Trim(s, ".") == "" {
		return "_"
	}
	return s
}
