// Package proxy rotates outbound requests across a list of HTTP proxies and
// benches proxies that keep failing.
package proxy

import (
	"bufio"
	"context"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"strings"
	"sync"
	"time"
)

type entry struct {
	url           *url.URL
	failures      int
	disabledUntil time.Time
}

// Config defines settings for the Pool.
type Config struct {
	// MaxFailures in a row before a proxy is benched. Default 3.
	MaxFailures int
	// Cooldown is how long a benched proxy sits out. Default 5m.
	Cooldown time.Duration
}

// Pool is a round-robin list of proxies. It is safe for concurrent use.
type Pool struct {
	mu          sync.Mutex
	entries     []*entry
	next        int
	maxFailures int
	cooldown    time.Duration
	now         func() time.Time
}

// NewPool creates an empty pool.
func NewPool(cfg Config) *Pool {
	if cfg.MaxFailures <= 0 {
		cfg.MaxFailures = 3
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = 5 * time.Minute
	}
	return &Pool{
		maxFailures: cfg.MaxFailures,
		cooldown:    cfg.Cooldown,
		now:         time.Now,
	}
}

// Add parses raw proxy URLs ("host:port" defaults to http) and appends them.
func (p *Pool) Add(rawURLs ...string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	for _, raw := range rawURLs {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		if !strings.Contains(raw, "://") {
			raw = "http://" + raw
		}
		u, err := url.Parse(raw)
		if err != nil {
			return fmt.Errorf("parse proxy %q: %w", raw, err)
		}
		p.entries = append(p.entries, &entry{url: u})
	}
	return nil
}

// LoadFile adds one proxy per line, skipping blanks and '#' comments.
func (p *Pool) LoadFile(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open proxy list: %w", err)
	}
	defer f.Close()

	var urls []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		urls = append(urls, line)
	}
	if err := sc.Err(); err != nil {
		return fmt.Errorf("read proxy list: %w", err)
	}
	return p.Add(urls...)
}

// Len returns the number of proxies, benched or not.
func (p *Pool) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.entries)
}

// Next returns the next proxy that is not benched, or nil.
func (p *Pool) Next() *url.URL {
	p.mu.Lock()
	defer p.mu.Unlock()

	now := p.now()
	for i := 0; i < len(p.entries); i++ {
		e := p.entries[p.next]
		p.next = (p.next + 1) % len(p.entries)
		if now.Before(e.disabledUntil) {
			continue
		}
		return e.url
	}
	return nil
}

// Report records the outcome of a request made through u. A success clears
// the failure streak; maxFailures failures in a row bench the proxy.
func (p *Pool) Report(u *url.URL, ok bool) {
	if u == nil {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	target := u.String()
	for _, e := range p.entries {
		if e.url.String() != target {
			continue
		}
		if ok {
			e.failures = 0
			return
		}
		e.failures++
		if e.failures >= p.maxFailures {
			e.failures = 0
			e.disabledUntil = p.now().Add(p.cooldown)
		}
		return
	}
}

type ctxKey struct{}

// WithProxy attaches u to ctx for ProxyFunc to pick up.
func WithProxy(ctx context.Context, u *url.URL) context.Context {
	return context.WithValue(ctx, ctxKey{}, u)
}

// ProxyFunc is an http.Transport.Proxy implementation that uses the proxy
// stored in the request context and otherwise falls back to the environment.
func ProxyFunc(req *http.Request) (*url.URL, error) {
	if u, ok := req.Context().Value(ctxKey{}).(*url.URL); ok && u != nil {
		return u, nil
	}
	return http.ProxyFromEnvironment(req)
}
