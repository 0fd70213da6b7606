package filter

import (
	"bufio"
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"path"
	"strings"

	"coursesync/internal/ingest"
	"coursesync/internal/model"
)

// ignorePattern is a parsed ignore pattern with its matching strategy.
type ignorePattern struct {
	pattern   string
	matchPath bool // true = match against the source URL path; false = match against the filename
}

// IgnoreMatcher decides which resources are never downloaded.
// Patterns without '/' match the resource's filename, case-insensitively.
// Patterns with '/' match the path of the resource's source URL.
type IgnoreMatcher struct {
	patterns []ignorePattern
}

// NewIgnoreMatcher creates an IgnoreMatcher from raw pattern strings.
// Blank lines and lines starting with '#' are skipped.
func NewIgnoreMatcher(rawPatterns []string) *IgnoreMatcher {
	var patterns []ignorePattern
	for _, raw := range rawPatterns {
		raw = strings.TrimSpace(raw)
		if raw == "" || strings.HasPrefix(raw, "#") {
			continue
		}
		p := ignorePattern{matchPath: strings.Contains(raw, "/")}
		if p.matchPath {
			p.pattern = raw
		} else {
			p.pattern = strings.ToLower(raw)
		}
		patterns = append(patterns, p)
	}
	return &IgnoreMatcher{patterns: patterns}
}

// Ignored reports whether the resource should be skipped.
func (m *IgnoreMatcher) Ignored(res model.Resource) bool {
	if len(m.patterns) == 0 {
		return false
	}

	filename := strings.ToLower(res.Filename)
	urlPath := ""
	if u, err := url.Parse(res.SourceURL); err == nil {
		urlPath = u.Path
	}

	for _, p := range m.patterns {
		var matched bool
		var err error
		if p.matchPath {
			if urlPath == "" {
				continue
			}
			matched, err = path.Match(p.pattern, urlPath)
		} else {
			matched, err = path.Match(p.pattern, filename)
		}
		if err != nil {
			// Bad pattern: skip rather than crash.
			continue
		}
		if matched {
			return true
		}
	}
	return false
}

// Len returns the number of active patterns.
func (m *IgnoreMatcher) Len() int {
	return len(m.patterns)
}

// ParseIgnoreFile reads an ignore file and returns the raw pattern strings.
// Returns nil and no error if the file does not exist.
func ParseIgnoreFile(filePath string) ([]string, error) {
	f, err := os.Open(filePath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("opening ignore file: %w", err)
	}
	defer f.Close()

	var patterns []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		patterns = append(patterns, scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading ignore file: %w", err)
	}
	return patterns, nil
}

// Compile-time check that IgnoreMatcher implements ingest.ResourceFilter interface
var _ ingest.ResourceFilter = (*IgnoreMatcher)(nil)
