package scraper

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/klauspost/compress/gzip"
	"github.com/tania-lang/trublog-writer/internal/bypass"
	"github.com/tania-lang/trublog-writer/internal/fingerprint"
	"github.com/tania-lang/trublog-writer/pkg/httpclient"
	"github.com/tania-lang/trublog-writer/pkg/proxy"
	"github.com/tania-lang/trublog-writer/pkg/ratelimit"
	"github.com/tania-lang/trublog-writer/pkg/useragent"
)

// DefaultMaxBodyBytes caps a decoded sitemap. The sitemaps.org limit is 50MB
// uncompressed.
const DefaultMaxBodyBytes = 50 << 20

// FetchConfig configures the shared HTTP fetcher.
type FetchConfig struct {
	// Timeout is the client-wide ceiling. Callers pass shorter per-request
	// deadlines through ctx.
	Timeout      time.Duration
	MaxRedirects int
	MaxBodyBytes int64
	UAPool       *useragent.Pool
	Fingerprint  fingerprint.Profile
	Limiter      *ratelimit.HostLimiter
	ProxyPool    *proxy.Pool
	// CookieJar keeps cookies across requests, for hosts that set a session
	// cookie on the first hit and expect it on the sitemap fetch.
	CookieJar bool
	// Detectors defaults to bypass.DefaultDetectors().
	Detectors []bypass.Detector
	// Transport replaces the fingerprinted transport. Tests inject fakes here.
	Transport http.RoundTripper
}

// Response is a fetched document. Failures are reported in Error rather than
// as a Go error so that callers can treat them uniformly as "nothing here".
type Response struct {
	URL        string
	StatusCode int
	Header     http.Header
	Body       []byte
	Duration   time.Duration
	Error      string
	Blocked    bool
	BlockedBy  string
}

// OK reports a 200 response with a usable body.
func (r *Response) OK() bool {
	return r.Error == "" && !r.Blocked && r.StatusCode == http.StatusOK && len(r.Body) > 0
}

// Fetcher performs single GETs. One Fetcher (one connection pool) is shared
// by every component of a harvest.
type Fetcher struct {
	config    FetchConfig
	client    *httpclient.Client
	transport http.RoundTripper
}

// NewFetcher builds the client stack: fingerprinted transport, proxy
// selection, redirect policy and User-Agent rotation.
func NewFetcher(cfg FetchConfig) (*Fetcher, error) {
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.MaxBodyBytes == 0 {
		cfg.MaxBodyBytes = DefaultMaxBodyBytes
	}
	if cfg.UAPool == nil {
		cfg.UAPool = useragent.NewPool(nil, useragent.Sequential)
	}
	if cfg.Fingerprint == "" {
		cfg.Fingerprint = fingerprint.ProfileGo
	}
	if cfg.Detectors == nil {
		cfg.Detectors = bypass.DefaultDetectors()
	}

	transport := cfg.Transport
	if transport == nil {
		t, err := fingerprint.Transport(cfg.Fingerprint, fingerprint.Options{Proxy: proxy.ProxyFunc})
		if err != nil {
			return nil, fmt.Errorf("setup transport: %w", err)
		}
		transport = t
	}

	client, err := httpclient.New(httpclient.Config{
		Timeout:      cfg.Timeout,
		MaxRedirects: cfg.MaxRedirects,
		UseCookieJar: cfg.CookieJar,
		Transport:    transport,
		UserAgent:    cfg.UAPool.Next,
		Header:       http.Header{"Accept-Language": {"en-US,en;q=0.5"}},
	})
	if err != nil {
		return nil, fmt.Errorf("create client: %w", err)
	}

	return &Fetcher{
		config:    cfg,
		client:    client,
		transport: transport,
	}, nil
}

// Fetch GETs targetURL and returns the decoded body. It never returns nil.
func (f *Fetcher) Fetch(ctx context.Context, targetURL string) *Response {
	result := &Response{URL: targetURL}

	if f.config.Limiter != nil {
		if err := f.config.Limiter.Wait(ctx, hostOf(targetURL)); err != nil {
			result.Error = fmt.Sprintf("rate limiter: %v", err)
			return result
		}
	}

	start := time.Now()
	defer func() { result.Duration = time.Since(start) }()

	activeProxy := f.nextProxy()
	if activeProxy != nil {
		ctx = proxy.WithProxy(ctx, activeProxy)
	}

	resp, err := f.client.Get(ctx, targetURL)
	if err != nil {
		if activeProxy != nil && ctx.Err() == nil {
			f.config.ProxyPool.Report(activeProxy, false)
		}
		result.Error = fmt.Sprintf("request failed: %v", err)
		return result
	}
	defer resp.Body.Close()

	if activeProxy != nil {
		f.config.ProxyPool.Report(activeProxy, true)
	}

	result.StatusCode = resp.StatusCode
	result.Header = resp.Header

	body, err := httpclient.ReadBody(resp.Body, f.config.MaxBodyBytes)
	if err != nil {
		result.Error = fmt.Sprintf("read body: %v", err)
		return result
	}

	if isGzip(body) {
		body, err = gunzip(body, f.config.MaxBodyBytes)
		if err != nil {
			result.Error = fmt.Sprintf("gunzip: %v", err)
			return result
		}
	}
	result.Body = body

	result.Blocked, result.BlockedBy = bypass.Analyze(bypass.Signal{
		StatusCode: result.StatusCode,
		Header:     result.Header,
		Body:       result.Body,
	}, f.config.Detectors)

	return result
}

func (f *Fetcher) nextProxy() *url.URL {
	if f.config.ProxyPool == nil {
		return nil
	}
	return f.config.ProxyPool.Next()
}

// Close releases idle connections.
func (f *Fetcher) Close() {
	if t, ok := f.transport.(interface{ CloseIdleConnections() }); ok {
		t.CloseIdleConnections()
	}
}

func hostOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	return u.Hostname()
}

func isGzip(b []byte) bool {
	return len(b) >= 2 && b[0] == 0x1f && b[1] == 0x8b
}

func gunzip(b []byte, limit int64) ([]byte, error) {
	zr, err := gzip.NewReader(bytes.NewReader(b))
	if err != nil {
		return nil, err
	}
	defer zr.Close()

	out, err := httpclient.ReadBody(zr, limit)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) {
		return nil, err
	}
	// A truncated stream still yields whatever decoded cleanly; the tolerant
	// parser downstream copes with a cut-off document.
	return out, nil
}
