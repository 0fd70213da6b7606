package app

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"coursesync/internal/config"
	"coursesync/internal/ingest"
	"coursesync/internal/model"
	"coursesync/internal/session"
	"coursesync/internal/testutil"
)

const testCourseURL = "https://moodle.example.edu/course/view.php?id=101"

func newTestConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.NewConfig("test-instance", t.TempDir())
	cfg.Site.BaseURL = "https://moodle.example.edu"
	cfg.Store = config.StoreConfig{Type: "filesystem", Name: "test", FSRoot: filepath.Join(cfg.BaseDir, "objects")}
	cfg.Spool = config.SpoolConfig{Type: "memory"}
	return cfg
}

func newTestSite() *testutil.FakeSite {
	site := testutil.NewFakeSite()
	site.AddCourse(testCourseURL, &model.CourseTree{
		ID:   "101",
		Name: "CS101",
		URL:  testCourseURL,
		Sections: []model.SectionTree{{
			Name: "Week 1",
			Modules: []model.Module{{
				Name: "Lecture Slides",
				Type: "resource",
				Resources: []model.Resource{
					{Filename: "slides.pdf", SourceURL: "https://moodle.example.edu/pluginfile.php/1/slides.pdf"},
					{Filename: "lecture.mp4", SourceURL: "https://moodle.example.edu/pluginfile.php/1/lecture.mp4"},
				},
			}},
		}},
	})
	site.Files["https://moodle.example.edu/pluginfile.php/1/slides.pdf"] = []byte("%PDF slides")
	site.Files["https://moodle.example.edu/pluginfile.php/1/lecture.mp4"] = []byte("video")
	return site
}

func newTestApp(t *testing.T, cfg *config.Config, operation string, site *testutil.FakeSite) *App {
	t.Helper()
	a, err := New(context.Background(), cfg, operation, Options{Opener: site, IDs: testutil.NewStubIDGenerator()})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return a
}

func TestNew_InvalidConfig(t *testing.T) {
	cfg := newTestConfig(t)
	cfg.Site.BaseURL = ""
	if _, err := New(context.Background(), cfg, "Crawl", Options{}); err == nil {
		t.Fatal("New() accepted a config without base_url")
	}
}

func TestNew_RequiresMigration(t *testing.T) {
	cfg := newTestConfig(t)
	_, err := New(context.Background(), cfg, "Crawl", Options{Opener: newTestSite()})
	if err == nil {
		t.Fatal("New() succeeded on an unmigrated database")
	}
	if !strings.Contains(err.Error(), "db migrate") {
		t.Errorf("New() error = %v, want a hint to migrate", err)
	}
}

func TestApp_CrawlRecordsHistory(t *testing.T) {
	cfg := newTestConfig(t)
	cfg.Fetch.Ignore = []string{"*.mp4"}
	if err := MigrateDatabase(cfg); err != nil {
		t.Fatalf("MigrateDatabase() error = %v", err)
	}
	ctx := context.Background()
	site := newTestSite()

	a := newTestApp(t, cfg, "Crawl", site)
	result, err := a.Crawl(ctx, "user-1", []model.Cookie{{Name: "MoodleSession", Value: "good"}})
	if err != nil {
		t.Fatalf("Crawl() error = %v", err)
	}
	if len(result.Courses) != 1 || result.Courses[0].Stored != 1 || result.Courses[0].Unbacked != 1 {
		t.Errorf("Crawl() = %+v, want 1 stored and 1 ignored file", result.Courses)
	}
	if err := a.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	if _, err := os.Stat(filepath.Join(cfg.Store.FSRoot, "courses", "101", "Week 1", "slides.pdf")); err != nil {
		t.Errorf("stored object missing: %v", err)
	}
	logData, err := os.ReadFile(filepath.Join(cfg.LogDir, LogFileName))
	if err != nil {
		t.Fatalf("reading log file: %v", err)
	}
	if !strings.Contains(string(logData), "\tid-1\t") {
		t.Errorf("log lines missing run id id-1:\n%s", logData)
	}

	a = newTestApp(t, cfg, "GetHistory", site)
	defer a.Close()

	ops, err := a.GetHistory(ctx, 10)
	if err != nil {
		t.Fatalf("GetHistory() error = %v", err)
	}
	if len(ops) != 1 {
		t.Fatalf("GetHistory() returned %d operations, want 1", len(ops))
	}
	if ops[0].Operation != "Crawl" || ops[0].Parameters != "owner=user-1" || ops[0].Status != StatusSuccess || !ops[0].FinishedAt.Valid {
		t.Errorf("operation = %+v", ops[0])
	}

	url, err := a.FileURL(ctx, "101_slides_pdf", 0)
	if err != nil {
		t.Fatalf("FileURL() error = %v", err)
	}
	if !strings.HasPrefix(url, "file://") {
		t.Errorf("FileURL() = %q, want a file:// url", url)
	}
	if _, err := a.FileURL(ctx, "101_lecture_mp4", 0); !errors.Is(err, ingest.ErrUnbacked) {
		t.Errorf("FileURL(ignored) error = %v, want ErrUnbacked", err)
	}
}

func TestApp_FailedOperationRecorded(t *testing.T) {
	cfg := newTestConfig(t)
	if err := MigrateDatabase(cfg); err != nil {
		t.Fatalf("MigrateDatabase() error = %v", err)
	}
	ctx := context.Background()

	a := newTestApp(t, cfg, "RemoveCourse", newTestSite())
	if _, err := a.RemoveCourse(ctx, "404", true); !errors.Is(err, ingest.ErrNotFound) {
		t.Fatalf("RemoveCourse() error = %v, want ErrNotFound", err)
	}
	if err := a.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	a = newTestApp(t, cfg, "GetHistory", newTestSite())
	defer a.Close()
	ops, err := a.GetHistory(ctx, 10)
	if err != nil {
		t.Fatalf("GetHistory() error = %v", err)
	}
	if len(ops) != 1 || ops[0].Status != StatusError || ops[0].Parameters != "course=404 purge=true" {
		t.Errorf("GetHistory() = %+v, want one failed RemoveCourse", ops)
	}
}

func TestApp_ReadOnlyOperationsAreNotRecorded(t *testing.T) {
	cfg := newTestConfig(t)
	cfg.Database = config.DatabaseConfig{Type: "memory"}
	ctx := context.Background()

	a := newTestApp(t, cfg, "ListCourses", newTestSite())
	defer a.Close()

	if _, err := a.ListCourses(ctx, ""); err != nil {
		t.Fatalf("ListCourses() error = %v", err)
	}
	if err := a.CheckStore(ctx); err != nil {
		t.Fatalf("CheckStore() error = %v", err)
	}
	ops, err := a.GetHistory(ctx, 10)
	if err != nil {
		t.Fatalf("GetHistory() error = %v", err)
	}
	if len(ops) != 0 {
		t.Errorf("GetHistory() = %+v, want none", ops)
	}
}

func TestApp_Cookies(t *testing.T) {
	cfg := newTestConfig(t)
	cfg.Database = config.DatabaseConfig{Type: "memory"}

	a := newTestApp(t, cfg, "Crawl", newTestSite())
	defer a.Close()

	noPrompt := func() (string, error) {
		t.Fatal("passphrase prompted unexpectedly")
		return "", nil
	}

	t.Run("no imported session", func(t *testing.T) {
		_, err := a.Cookies("", noPrompt)
		if !errors.Is(err, session.ErrNoSession) {
			t.Fatalf("Cookies() error = %v, want ErrNoSession", err)
		}
	})

	t.Run("plaintext export", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "cookies.json")
		if err := os.WriteFile(path, []byte(`[{name: "MoodleSession", value: "v"}]`), 0600); err != nil {
			t.Fatal(err)
		}
		cookies, err := a.Cookies(path, noPrompt)
		if err != nil {
			t.Fatalf("Cookies() error = %v", err)
		}
		if len(cookies) != 1 || cookies[0].Value != "v" {
			t.Errorf("Cookies() = %+v", cookies)
		}
	})
}

func TestIgnorePatterns(t *testing.T) {
	cfg := newTestConfig(t)
	cfg.Fetch.Ignore = []string{"*.mp4"}
	if err := os.WriteFile(filepath.Join(cfg.BaseDir, IgnoreFileName), []byte("# big files\n*.iso\n"), 0644); err != nil {
		t.Fatal(err)
	}

	got, err := ignorePatterns(cfg)
	if err != nil {
		t.Fatalf("ignorePatterns() error = %v", err)
	}
	if strings.Join(got, ",") != "*.mp4,# big files,*.iso" {
		t.Errorf("ignorePatterns() = %q", got)
	}
}
