package ingest_test

import (
	"regexp"
	"strings"
	"testing"

	"coursesync/internal/ingest"
)

func TestSectionID(t *testing.T) {
	t.Parallel()

	id := ingest.SectionID("CS101", "Week 1")
	if !regexp.MustCompile(`^CS101_section_[0-9a-f]{8}$`).MatchString(id) {
		t.Fatalf("SectionID() = %q, want CS101_section_ + 8 hex digits", id)
	}
	if again := ingest.SectionID("CS101", "Week 1"); again != id {
		t.Errorf("SectionID() not deterministic: %q then %q", id, again)
	}
	if other := ingest.SectionID("CS101", "Week 2"); other == id {
		t.Errorf("SectionID() collided for different names: %q", other)
	}
	if other := ingest.SectionID("MA201", "Week 1"); other[len("MA201_section_"):] != id[len("CS101_section_"):] {
		t.Errorf("SectionID() hash should depend only on the name: %q vs %q", other, id)
	}
}

func TestSanitizeFilename(t *testing.T) {
	t.Parallel()
	tests := []struct {
		in   string
		want string
	}{
		{"slides.pdf", "slides.pdf"},
		{"Lecture 1 - Intro_v2.pdf", "Lecture 1 - Intro_v2.pdf"},
		{"a/b\\c:d*e?.txt", "abcde.txt"},
		{"Übung (1).pdf", "Übung 1.pdf"},
		{"", ""},
	}
	for _, tt := range tests {
		if got := ingest.SanitizeFilename(tt.in); got != tt.want {
			t.Errorf("SanitizeFilename(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestFileKey(t *testing.T) {
	t.Parallel()
	tests := []struct {
		course   string
		filename string
		want     string
	}{
		{"CS101", "slides.pdf", "CS101_slides_pdf"},
		{"CS101", "Lecture Slides.PDF", "CS101_lecture_slides_pdf"},
		{"CS101", "notes (final).v2.docx", "CS101_notes_final_v2_docx"},
	}
	for _, tt := range tests {
		if got := ingest.FileKey(tt.course, tt.filename); got != tt.want {
			t.Errorf("FileKey(%q, %q) = %q, want %q", tt.course, tt.filename, got, tt.want)
		}
	}
}

func TestStorageKey(t *testing.T) {
	t.Parallel()
	got := ingest.StorageKey("CS101", "Week 1", "slides.pdf")
	if want := "courses/CS101/Week 1/slides.pdf"; got != want {
		t.Errorf("StorageKey() = %q, want %q", got, want)
	}
	if got := ingest.CoursePrefix("CS101"); got != "courses/CS101/" {
		t.Errorf("CoursePrefix() = %q", got)
	}
}

func TestPathMarkers(t *testing.T) {
	t.Parallel()
	if got := ingest.LocalPath("/tmp/spool/x.pdf"); got != "local:///tmp/spool/x.pdf" {
		t.Errorf("LocalPath() = %q", got)
	}
	if got := ingest.UnbackedPath("courses/1/W/x.pdf"); got != "unbacked://courses/1/W/x.pdf" {
		t.Errorf("UnbackedPath() = %q", got)
	}
}

func TestExportLayout_File(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		key  string
		want string
	}{
		{"plain", "courses/CS101/Week 1/slides.pdf", "Week 1/slides.pdf"},
		{"unsafe characters", "courses/CS101/Week: 1?/a*b.pdf", "Week 1/ab.pdf"},
		{"traversal", "courses/CS101/../../etc/passwd", "....etc/passwd"},
		{"dot-only segments", "courses/CS101/../..", "_/_"},
		{"empty section", "courses/CS101//x.pdf", "_/x.pdf"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ingest.NewExportLayout().File("CS101", tt.key); got != tt.want {
				t.Errorf("File(%q) = %q, want %q", tt.key, got, tt.want)
			}
		})
	}
}

func TestExportLayout_Collisions(t *testing.T) {
	t.Parallel()
	l := ingest.NewExportLayout()

	if got := l.SectionReadme("Week 1"); got != "Week 1/README.md" {
		t.Errorf("SectionReadme(Week 1) = %q", got)
	}
	second := l.SectionReadme("Week 1?")
	if !regexp.MustCompile(`^Week 1_[0-9a-f]{8}/README\.md$`).MatchString(second) {
		t.Errorf("SectionReadme(Week 1?) = %q, want a suffixed directory", second)
	}
	if again := l.Dir("Week 1?"); again+"/README.md" != second {
		t.Errorf("Dir(Week 1?) = %q, not stable", again)
	}

	readme := l.File("CS101", "courses/CS101/Week 1/README.md")
	if !regexp.MustCompile(`^Week 1/README_[0-9a-f]{8}\.md$`).MatchString(readme) {
		t.Errorf("File(README.md) = %q, want a suffixed name", readme)
	}

	a := l.File("CS101", "courses/CS101/Week 1/a?.pdf")
	b := l.File("CS101", "courses/CS101/Week 1/a*.pdf")
	if a != "Week 1/a.pdf" || a == b {
		t.Errorf("File() = %q and %q, want distinct paths", a, b)
	}
	if got := l.File("CS101", "courses/CS101/Week 1?/a.pdf"); !strings.HasPrefix(got, strings.TrimSuffix(second, "README.md")) {
		t.Errorf("File() = %q, want it in the section's directory", got)
	}
}
