package extract

import (
	"context"
	"errors"
	"net/url"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"coursesync/internal/ingest"
	"coursesync/internal/model"
)

// UnknownCourseID is used when a course URL carries no numeric id.
const UnknownCourseID = "unknown"

var (
	courseIDPattern = regexp.MustCompile(`id=(\d+)`)
	modTypePattern  = regexp.MustCompile(`modtype_(\w+)`)
)

// ListCourses returns the course page URLs linked from the dashboard, in
// page order without duplicates. A page that cannot be loaded yields an
// empty list; only an expired session or a cancelled context is an error.
func (s *Session) ListCourses(ctx context.Context) ([]string, error) {
	target := s.base.JoinPath("my", "courses.php").String()
	doc, err := s.navigate(ctx, target)
	if err != nil {
		if errors.Is(err, ingest.ErrSessionExpired) || ctx.Err() != nil {
			return nil, err
		}
		s.logger.Warn("failed to load course list", "url", target, "error", err)
		return []string{}, nil
	}

	courses := parseCourseList(doc, s.base)
	s.logger.Info("courses listed", "count", len(courses))
	return courses, nil
}

// ExtractCourse loads and parses one course page. It never fails: when the
// page cannot be loaded it returns a stub tree with Failed set.
func (s *Session) ExtractCourse(ctx context.Context, courseURL string) *model.CourseTree {
	doc, err := s.navigate(ctx, courseURL)
	if err != nil {
		s.logger.Warn("failed to load course page", "url", courseURL, "error", err)
		return &model.CourseTree{
			ID:     UnknownCourseID,
			Name:   "Failed to load",
			URL:    courseURL,
			Failed: true,
		}
	}

	pageURL, err := url.Parse(courseURL)
	if err != nil {
		pageURL = s.base
	}
	tree := parseCourse(doc, courseURL, pageURL)
	s.logger.Info("course extracted",
		"course", tree.ID,
		"sections", len(tree.Sections),
		"modules", tree.ModuleCount(),
		"resources", tree.ResourceCount(),
	)
	return tree
}

func parseCourseList(doc *goquery.Document, base *url.URL) []string {
	seen := make(map[string]bool)
	courses := []string{}
	doc.Find(`a[href*="/course/view.php?id="]`).Each(func(_ int, a *goquery.Selection) {
		ref, err := url.Parse(strings.TrimSpace(a.AttrOr("href", "")))
		if err != nil {
			return
		}
		ref.Fragment = ""
		u := base.ResolveReference(ref).String()
		if seen[u] {
			return
		}
		seen[u] = true
		courses = append(courses, u)
	})
	return courses
}

// CourseIDFromURL returns the numeric id query value of a course URL, or
// UnknownCourseID.
func CourseIDFromURL(courseURL string) string {
	if m := courseIDPattern.FindStringSubmatch(courseURL); m != nil {
		return m[1]
	}
	return UnknownCourseID
}

func parseCourse(doc *goquery.Document, courseURL string, pageURL *url.URL) *model.CourseTree {
	tree := &model.CourseTree{
		ID:   CourseIDFromURL(courseURL),
		Name: strings.TrimSpace(doc.Find("title").First().Text()),
		URL:  courseURL,
	}

	sections := doc.Find("li.section[data-sectionid]")
	if sections.Length() == 0 {
		// Older themes.
		sections = doc.Find("div.section")
	}

	seen := make(map[string]bool)
	sections.Each(func(_ int, sec *goquery.Selection) {
		name := visibleText(sec.Find(".sectionname, h3").First())
		if name == "" || seen[name] {
			return
		}
		seen[name] = true

		section := model.SectionTree{Name: name}
		sec.Find(".activity, .modtype_").Each(func(_ int, mod *goquery.Selection) {
			if m, ok := parseModule(mod, pageURL); ok {
				section.Modules = append(section.Modules, m)
			}
		})
		tree.Sections = append(tree.Sections, section)
	})

	return tree
}

func parseModule(mod *goquery.Selection, pageURL *url.URL) (model.Module, bool) {
	name := visibleText(mod.Find(".instancename, span.instancename, a").First())
	if name == "" {
		return model.Module{}, false
	}

	m := model.Module{Name: name, Type: "unknown"}
	if match := modTypePattern.FindStringSubmatch(mod.AttrOr("class", "")); match != nil {
		m.Type = match[1]
	}
	m.URL = resolve(pageURL, mod.Find("a[href]").First().AttrOr("href", ""))

	mod.Find(".fp-filename").Each(func(_ int, f *goquery.Selection) {
		filename := visibleText(f)
		if filename == "" {
			return
		}
		href := f.ParentsUntilSelection(mod).Filter("a[href]").First().AttrOr("href", "")
		m.Resources = append(m.Resources, model.Resource{
			Filename:  filename,
			SourceURL: resolve(pageURL, href),
		})
	})

	return m, true
}

// visibleText returns the whitespace-collapsed text of the first node in sel,
// without Moodle's screen-reader-only labels.
func visibleText(sel *goquery.Selection) string {
	if sel.Length() == 0 {
		return ""
	}
	c := sel.Clone()
	c.Find(".accesshide").Remove()
	return strings.Join(strings.Fields(c.Text()), " ")
}

func resolve(base *url.URL, href string) string {
	href = strings.TrimSpace(href)
	if href == "" {
		return ""
	}
	ref, err := url.Parse(href)
	if err != nil {
		return ""
	}
	return base.ResolveReference(ref).String()
}
