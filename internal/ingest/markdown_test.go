package ingest_test

import (
	"testing"

	"coursesync/internal/ingest"
	"coursesync/internal/model"
)

func TestBuildMarkdown(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		modules []model.Module
		want    string
	}{
		{
			name:    "no modules",
			modules: nil,
			want:    "",
		},
		{
			name: "module with url and file",
			modules: []model.Module{{
				Name:      "Lecture Slides",
				Type:      "resource",
				URL:       "https://moodle.example.edu/mod/resource/view.php?id=7",
				Resources: []model.Resource{{Filename: "slides.pdf"}},
			}},
			want: "### Lecture Slides\n" +
				"**Type:** resource\n\n" +
				"[View Module](https://moodle.example.edu/mod/resource/view.php?id=7)\n\n" +
				"**Files:**\n" +
				"- [slides.pdf](s3://courses/CS101/Week 1/slides.pdf)\n",
		},
		{
			name: "bare modules",
			modules: []model.Module{
				{Name: "Announcements", Type: "forum"},
				{Name: "Reading", Type: "url", URL: "https://example.org"},
			},
			want: "### Announcements\n" +
				"**Type:** forum\n\n" +
				"### Reading\n" +
				"**Type:** url\n\n" +
				"[View Module](https://example.org)\n",
		},
		{
			name: "several files",
			modules: []model.Module{{
				Name: "Lab",
				Type: "folder",
				Resources: []model.Resource{
					{Filename: "a.py"},
					{Filename: "b.py"},
				},
			}},
			want: "### Lab\n" +
				"**Type:** folder\n\n" +
				"**Files:**\n" +
				"- [a.py](s3://courses/CS101/Week 1/a.py)\n" +
				"- [b.py](s3://courses/CS101/Week 1/b.py)\n",
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := ingest.BuildMarkdown("CS101", "Week 1", tt.modules)
			if got != tt.want {
				t.Errorf("BuildMarkdown() =\n%q\nwant\n%q", got, tt.want)
			}
		})
	}
}
