package session

import (
	"fmt"
	"strings"

	"github.com/titanous/json5"

	"coursesync/internal/model"
)

// cookieExport accepts both a bare array of cookie records and the
// {"cookies": [...]} envelope written by most browser extensions.
type cookieExport struct {
	Cookies []model.Cookie `json:"cookies"`
}

// ParseCookies decodes a JSON or JSON5 cookie export. Fields other than
// name, value, domain and path are ignored. Records without a name are
// dropped; an export with no usable record is an error.
func ParseCookies(data []byte) ([]model.Cookie, error) {
	trimmed := strings.TrimSpace(string(data))
	if trimmed == "" {
		return nil, fmt.Errorf("cookie export is empty")
	}

	var raw []model.Cookie
	if strings.HasPrefix(trimmed, "[") {
		if err := json5.Unmarshal([]byte(trimmed), &raw); err != nil {
			return nil, fmt.Errorf("parsing cookie export: %w", err)
		}
	} else {
		var export cookieExport
		if err := json5.Unmarshal([]byte(trimmed), &export); err != nil {
			return nil, fmt.Errorf("parsing cookie export: %w", err)
		}
		raw = export.Cookies
	}

	cookies := make([]model.Cookie, 0, len(raw))
	for _, c := range raw {
		if strings.TrimSpace(c.Name) == "" {
			continue
		}
		if c.Path == "" {
			c.Path = "/"
		}
		cookies = append(cookies, c)
	}
	if len(cookies) == 0 {
		return nil, fmt.Errorf("cookie export contains no cookies")
	}
	return cookies, nil
}
