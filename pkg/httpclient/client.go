// Package httpclient wraps http.Client with the redirect, cookie, header and
// body-size policies used for sitemap and robots.txt requests.
package httpclient

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"time"
)

// ErrBodyTooLarge is returned by ReadBody when the limit is exceeded.
var ErrBodyTooLarge = errors.New("httpclient: response body exceeds limit")

// DefaultAccept prefers XML but still accepts HTML challenge pages so they
// can be recognised.
const DefaultAccept = "application/xml,text/xml;q=0.9,text/plain;q=0.8,text/html;q=0.7,*/*;q=0.5"

// Config defines the setup for the HTTP Client.
type Config struct {
	// Timeout is the client-wide ceiling; per-request deadlines come from ctx.
	Timeout time.Duration
	// MaxRedirects: 0 means 10, negative returns the redirect response itself.
	MaxRedirects int
	UseCookieJar bool
	// Transport, e.g. a uTLS fingerprinted one.
	Transport http.RoundTripper
	// UserAgent is called once per request. Nil leaves the Go default.
	UserAgent func() string
	// Header is added to every request built by Get.
	Header http.Header
}

// Client wraps a standard http.Client.
type Client struct {
	*http.Client
	userAgent func() string
	header    http.Header
}

// New creates a new HTTP client based on the provided configuration.
func New(cfg Config) (*Client, error) {
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}

	c := &http.Client{
		Timeout: cfg.Timeout,
	}

	if cfg.MaxRedirects >= 0 {
		limit := cfg.MaxRedirects
		if limit == 0 {
			limit = 10
		}
		c.CheckRedirect = func(req *http.Request, via []*http.Request) error {
			if len(via) >= limit {
				return fmt.Errorf("stopped after %d redirects", limit)
			}
			return nil
		}
	} else {
		c.CheckRedirect = func(req *http.Request, via []*http.Request) error {
			return http.ErrUseLastResponse
		}
	}

	if cfg.UseCookieJar {
		jar, err := cookiejar.New(nil)
		if err != nil {
			return nil, fmt.Errorf("cookie jar: %w", err)
		}
		c.Jar = jar
	}

	if cfg.Transport != nil {
		c.Transport = cfg.Transport
	}

	header := http.Header{"Accept": {DefaultAccept}}
	for k, vs := range cfg.Header {
		header[http.CanonicalHeaderKey(k)] = append([]string(nil), vs...)
	}

	return &Client{Client: c, userAgent: cfg.UserAgent, header: header}, nil
}

// Do executes an HTTP request under ctx.
func (c *Client) Do(ctx context.Context, req *http.Request) (*http.Response, error) {
	if ctx == nil {
		return nil, errors.New("httpclient: context cannot be nil")
	}

	resp, err := c.Client.Do(req.Clone(ctx))
	if err != nil {
		return nil, fmt.Errorf("do %s: %w", req.URL.Redacted(), err)
	}
	return resp, nil
}

// Get issues a GET for rawURL with the configured headers and a fresh User-Agent.
func (c *Client) Get(ctx context.Context, rawURL string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	for k, vs := range c.header {
		req.Header[k] = vs
	}
	if c.userAgent != nil {
		if ua := c.userAgent(); ua != "" {
			req.Header.Set("User-Agent", ua)
		}
	}
	return c.Do(ctx, req)
}

// ReadBody reads r up to limit bytes. A limit <= 0 reads everything.
func ReadBody(r io.Reader, limit int64) ([]byte, error) {
	if limit <= 0 {
		return io.ReadAll(r)
	}
	body, err := io.ReadAll(io.LimitReader(r, limit+1))
	if err != nil {
		return body, err
	}
	if int64(len(body)) > limit {
		return body[:limit], ErrBodyTooLarge
	}
	return body, nil
}
