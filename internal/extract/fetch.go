package extract

import (
	"context"
	"errors"
	"fmt"
	"mime"
	"path"
	"strings"

	"coursesync/internal/ingest"
	"coursesync/internal/model"
)

// FetchError describes a resource download that failed. Status is zero when
// no response was received.
type FetchError struct {
	Filename string
	Status   int
	Err      error
}

func (e *FetchError) Error() string {
	switch {
	case e.Status != 0 && e.Err != nil:
		return fmt.Sprintf("fetching %s: HTTP %d: %v", e.Filename, e.Status, e.Err)
	case e.Status != 0:
		return fmt.Sprintf("fetching %s: HTTP %d", e.Filename, e.Status)
	default:
		return fmt.Sprintf("fetching %s: %v", e.Filename, e.Err)
	}
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

var errNoSourceURL = errors.New("resource has no source url")

// Fetch downloads one resource with the session's cookies. The returned body
// is streamed from the response; the caller must close it.
func (s *Session) Fetch(ctx context.Context, res model.Resource) (*ingest.Download, error) {
	if res.SourceURL == "" {
		return nil, &FetchError{Filename: res.Filename, Err: errNoSourceURL}
	}

	resp, err := s.files.R().
		SetContext(ctx).
		SetDoNotParseResponse(true).
		Get(res.SourceURL)
	if err != nil {
		if resp != nil && resp.RawBody() != nil {
			resp.RawBody().Close()
		}
		return nil, &FetchError{Filename: res.Filename, Err: err}
	}

	body := resp.RawBody()
	if !resp.IsSuccess() {
		if body != nil {
			body.Close()
		}
		fe := &FetchError{Filename: res.Filename, Status: resp.StatusCode()}
		if redirectedToLogin(resp) {
			fe.Err = ingest.ErrSessionExpired
		}
		return nil, fe
	}

	return &ingest.Download{
		Body:        body,
		ContentType: contentType(resp.Header().Get("Content-Type"), res.Filename),
	}, nil
}

// contentType prefers the response header and falls back to the filename's
// extension when the header is missing or generic.
func contentType(header, filename string) string {
	if header != "" {
		if mt, _, err := mime.ParseMediaType(header); err == nil && mt != "application/octet-stream" {
			return header
		}
	}
	if byExt := mime.TypeByExtension(strings.ToLower(path.Ext(filename))); byExt != "" {
		return byExt
	}
	if header != "" {
		return header
	}
	return "application/octet-stream"
}
