// Package extract drives an authenticated Moodle session: it lists the
// courses visible to the session, parses course pages into course trees and
// downloads resource files.
package extract

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"math"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"sync"
	"time"

	cloudflarebp "github.com/DaRealFreak/cloudflare-bp-go"
	"github.com/PuerkitoBio/goquery"
	"github.com/go-resty/resty/v2"
	"golang.org/x/time/rate"

	"coursesync/internal/config"
	"coursesync/internal/ingest"
	"coursesync/internal/model"
)

const defaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/123.0.0.0 Safari/537.36"

const maxRedirects = 10

// Opener creates Sessions against one Moodle site.
type Opener struct {
	site   config.SiteConfig
	fetch  config.FetchConfig
	logger ingest.Logger
}

// NewOpener creates an Opener from configuration.
func NewOpener(site config.SiteConfig, fetch config.FetchConfig, logger ingest.Logger) *Opener {
	return &Opener{site: site, fetch: fetch, logger: logger}
}

// Open seeds a cookie jar with the cookies that belong to the site's host and
// returns a Session using it.
func (o *Opener) Open(ctx context.Context, cookies []model.Cookie) (ingest.SiteSession, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	base, err := url.Parse(strings.TrimRight(o.site.BaseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parsing base url: %w", err)
	}
	if base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("base url %q must be absolute", o.site.BaseURL)
	}

	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, fmt.Errorf("creating cookie jar: %w", err)
	}
	if n := seedJar(jar, base, cookies); n == 0 {
		return nil, fmt.Errorf("no cookies apply to %s", base.Hostname())
	}

	limiter := newLimiter(o.site.RequestsPerSecond)
	userAgent := o.site.UserAgent
	if userAgent == "" {
		userAgent = defaultUserAgent
	}

	s := &Session{
		base:   base,
		page:   newHTTPClient(jar, limiter, o.site.PageTimeout(), userAgent, o.site.CloudflareBypass),
		files:  newHTTPClient(jar, limiter, o.fetch.Timeout(), userAgent, o.site.CloudflareBypass),
		logger: o.logger,
	}
	return s, nil
}

// Session is an authenticated Moodle session. Page navigation is serialized;
// file downloads use a separate client and may run concurrently.
type Session struct {
	base   *url.URL
	page   *resty.Client
	files  *resty.Client
	pageMu sync.Mutex
	logger ingest.Logger
}

// Close releases idle connections.
func (s *Session) Close() error {
	s.page.GetClient().CloseIdleConnections()
	s.files.GetClient().CloseIdleConnections()
	return nil
}

// navigate loads one page and parses it. A redirect to the login page is
// reported as ingest.ErrSessionExpired.
func (s *Session) navigate(ctx context.Context, target string) (*goquery.Document, error) {
	s.pageMu.Lock()
	defer s.pageMu.Unlock()

	resp, err := s.page.R().SetContext(ctx).Get(target)
	if err != nil {
		return nil, fmt.Errorf("requesting %s: %w", target, err)
	}
	if redirectedToLogin(resp) {
		return nil, ingest.ErrSessionExpired
	}
	if !resp.IsSuccess() {
		return nil, fmt.Errorf("requesting %s: unexpected status %d", target, resp.StatusCode())
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(resp.Body()))
	if err != nil {
		return nil, fmt.Errorf("parsing %s: %w", target, err)
	}
	return doc, nil
}

func newHTTPClient(jar http.CookieJar, limiter *rate.Limiter, timeout time.Duration, userAgent string, bypass bool) *resty.Client {
	client := resty.New()
	client.SetCookieJar(jar)
	if bypass {
		client.GetClient().Transport = cloudflarebp.AddCloudFlareByPass(client.GetClient().Transport)
	}
	client.SetHeader("User-Agent", userAgent)
	client.SetRedirectPolicy(loginRedirectPolicy())
	if timeout > 0 {
		client.SetTimeout(timeout)
	}
	client.OnBeforeRequest(func(_ *resty.Client, req *resty.Request) error {
		return limiter.Wait(req.Context())
	})
	return client
}

// newLimiter paces requests; burst >= rate means no request is dropped.
func newLimiter(perSecond float64) *rate.Limiter {
	if perSecond <= 0 {
		return rate.NewLimiter(rate.Inf, 1)
	}
	burst := int(math.Ceil(perSecond))
	return rate.NewLimiter(rate.Limit(perSecond), burst)
}

// loginRedirectPolicy stops following redirects at the login page so the
// caller sees the redirect instead of the login form.
func loginRedirectPolicy() resty.RedirectPolicy {
	return resty.RedirectPolicyFunc(func(req *http.Request, via []*http.Request) error {
		if len(via) >= maxRedirects {
			return errors.New("stopped after 10 redirects")
		}
		if isLoginPath(req.URL) {
			return http.ErrUseLastResponse
		}
		return nil
	})
}

func isLoginPath(u *url.URL) bool {
	return u != nil && strings.Contains(u.Path, "/login/")
}

func redirectedToLogin(resp *resty.Response) bool {
	code := resp.StatusCode()
	if code >= 300 && code < 400 {
		if loc, err := url.Parse(resp.Header().Get("Location")); err == nil && isLoginPath(loc) {
			return true
		}
	}
	raw := resp.RawResponse
	return raw != nil && raw.Request != nil && isLoginPath(raw.Request.URL)
}

// seedJar adds the cookies whose domain covers the base host and returns how
// many were added.
func seedJar(jar http.CookieJar, base *url.URL, cookies []model.Cookie) int {
	host := strings.ToLower(base.Hostname())
	var httpCookies []*http.Cookie
	for _, c := range cookies {
		domain := strings.TrimPrefix(strings.ToLower(c.Domain), ".")
		if domain != "" && domain != host && !strings.HasSuffix(host, "."+domain) {
			continue
		}
		hc := &http.Cookie{Name: c.Name, Value: c.Value, Path: c.Path}
		if domain != host {
			hc.Domain = domain
		}
		httpCookies = append(httpCookies, hc)
	}
	jar.SetCookies(base, httpCookies)
	return len(httpCookies)
}

// Compile-time checks.
var (
	_ ingest.SessionOpener = (*Opener)(nil)
	_ ingest.SiteSession   = (*Session)(nil)
)
