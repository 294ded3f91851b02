package scraper

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"
)

// fakeTransport answers requests in-process, routed by host. Unknown hosts
// and paths get a 404. With block set, every request hangs until its context
// ends.
type fakeTransport struct {
	mu       sync.Mutex
	sites    map[string]map[string]string
	block    bool
	requests []string
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{sites: make(map[string]map[string]string)}
}

// serve registers body for rawURL ("https://host/path").
func (f *fakeTransport) serve(rawURL, body string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	rest := strings.TrimPrefix(strings.TrimPrefix(rawURL, "https://"), "http://")
	host, path, _ := strings.Cut(rest, "/")
	if f.sites[host] == nil {
		f.sites[host] = make(map[string]string)
	}
	f.sites[host]["/"+path] = body
}

func (f *fakeTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	f.mu.Lock()
	f.requests = append(f.requests, req.URL.String())
	block := f.block
	body, ok := f.sites[req.URL.Host][req.URL.Path]
	f.mu.Unlock()

	if block {
		<-req.Context().Done()
		return nil, req.Context().Err()
	}

	rec := httptest.NewRecorder()
	if ok {
		rec.Header().Set("Content-Type", "application/xml")
		_, _ = rec.WriteString(body)
	} else {
		http.NotFound(rec, req)
	}
	res := rec.Result()
	res.Request = req
	return res, nil
}

func (f *fakeTransport) requested() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.requests...)
}

func newTestFetcher(t *testing.T, rt http.RoundTripper) *Fetcher {
	t.Helper()
	f, err := NewFetcher(FetchConfig{
		Timeout:   5 * time.Second,
		Transport: rt,
	})
	if err != nil {
		t.Fatalf("failed to create fetcher: %v", err)
	}
	return f
}

func urlset(locs ...string) string {
	var b strings.Builder
	b.WriteString(`<?xml version="1.0" encoding="UTF-8"?>` + "\n")
	b.WriteString(`<urlset xmlns="http://www.sitemaps.org/schemas/sitemap/0.9">` + "\n")
	for _, l := range locs {
		b.WriteString("  <url><loc>" + l + "</loc></url>\n")
	}
	b.WriteString("</urlset>")
	return b.String()
}

func sitemapIndex(locs ...string) string {
	var b strings.Builder
	b.WriteString(`<?xml version="1.0" encoding="UTF-8"?>` + "\n")
	b.WriteString(`<sitemapindex xmlns="http://www.sitemaps.org/schemas/sitemap/0.9">` + "\n")
	for _, l := range locs {
		b.WriteString("  <sitemap><loc>" + l + "</loc></sitemap>\n")
	}
	b.WriteString("</sitemapindex>")
	return b.String()
}
