package pipeline

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/tania-lang/trublog-writer/internal/classify"
	"github.com/tania-lang/trublog-writer/internal/resolver"
	"github.com/tania-lang/trublog-writer/internal/scraper"
	"github.com/tania-lang/trublog-writer/internal/storage"
	"github.com/tania-lang/trublog-writer/internal/storage/jsonbackend"
)

type fakeHarvester struct {
	mu      sync.Mutex
	calls   []string
	subs    []bool
	pages   []storage.PageRecord
	maxURLs int
	err     error
}

func (f *fakeHarvester) Harvest(ctx context.Context, domain string, includeSubdomains bool) (*scraper.CrawlResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, domain)
	f.subs = append(f.subs, includeSubdomains)
	if f.err != nil {
		return nil, f.err
	}
	return &scraper.CrawlResult{
		Domain:          domain,
		Pages:           f.pages,
		SitemapsVisited: 3,
		Stop:            scraper.StopExhausted,
		Duration:        time.Second,
		MaxURLs:         f.maxURLs,
	}, nil
}

func newBackend(t *testing.T) storage.Backend {
	t.Helper()
	b, err := jsonbackend.New(filepath.Join(t.TempDir(), "snapshots.ndjson"))
	if err != nil {
		t.Fatalf("failed to open backend: %v", err)
	}
	t.Cleanup(func() { _ = b.Close() })
	return b
}

func TestPipeline_RunDomain(t *testing.T) {
	h := &fakeHarvester{pages: []storage.PageRecord{{URL: "https://example.com/blog/a", Slug: "/blog/a", Domain: "example.com"}}}
	backend := newBackend(t)
	p := &Pipeline{Harvester: h, Backend: backend, MaxAge: time.Hour}

	snap, err := p.Run(context.Background(), Target{Domain: "https://www.Example.com/", IncludeSubdomains: true})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(h.calls) != 1 || h.calls[0] != "example.com" || !h.subs[0] {
		t.Fatalf("expected one harvest of example.com with subdomains, got %v %v", h.calls, h.subs)
	}
	if snap.ID == "" {
		t.Errorf("expected snapshot id")
	}
	if snap.Domain != "example.com" || len(snap.Pages) != 1 || snap.StopReason != "exhausted" || snap.SitemapsVisited != 3 {
		t.Errorf("unexpected snapshot %+v", snap)
	}

	stored, err := backend.Query(context.Background(), storage.Filter{Domain: "example.com"})
	if err != nil {
		t.Fatalf("query failed: %v", err)
	}
	if len(stored) != 1 || stored[0].ID != snap.ID {
		t.Errorf("expected snapshot to be stored, got %v", stored)
	}
}

func TestPipeline_ServesFreshSnapshot(t *testing.T) {
	h := &fakeHarvester{}
	backend := newBackend(t)
	now := time.Date(2026, 1, 10, 12, 0, 0, 0, time.UTC)

	old := &storage.Snapshot{ID: "old", Domain: "example.com", CreatedAt: now.Add(-48 * time.Hour)}
	recent := &storage.Snapshot{ID: "recent", Domain: "example.com", CreatedAt: now.Add(-time.Hour)}
	for _, s := range []*storage.Snapshot{old, recent} {
		if err := backend.Save(context.Background(), s); err != nil {
			t.Fatalf("save failed: %v", err)
		}
	}

	p := &Pipeline{Harvester: h, Backend: backend, MaxAge: 24 * time.Hour, now: func() time.Time { return now }}

	snap, err := p.Run(context.Background(), Target{Domain: "example.com"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if snap.ID != "recent" {
		t.Errorf("expected the recent snapshot, got %s", snap.ID)
	}
	if len(h.calls) != 0 {
		t.Errorf("expected no harvest on a cache hit, got %v", h.calls)
	}

	// Refresh bypasses the cache.
	if _, err := p.Run(context.Background(), Target{Domain: "example.com", Refresh: true}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(h.calls) != 1 {
		t.Errorf("expected refresh to harvest, got %d calls", len(h.calls))
	}

	// Everything stored is too old for a 30 minute window.
	p.MaxAge = 30 * time.Minute
	p.now = func() time.Time { return now.Add(2 * time.Hour) }
	if _, err := p.Run(context.Background(), Target{Domain: "example.com"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(h.calls) != 2 {
		t.Errorf("expected stale cache to harvest, got %d calls", len(h.calls))
	}
}

func TestPipeline_SnapshotScope(t *testing.T) {
	h := &fakeHarvester{
		pages: []storage.PageRecord{
			{URL: "https://example.com/blog/a", Slug: "/blog/a", Domain: "example.com"},
			{URL: "https://blog.example.com/post", Slug: "/post", Domain: "example.com"},
		},
		maxURLs: 100,
	}
	backend := newBackend(t)
	now := time.Date(2026, 1, 10, 12, 0, 0, 0, time.UTC)
	p := &Pipeline{Harvester: h, Backend: backend, MaxAge: 24 * time.Hour, now: func() time.Time { return now }}
	ctx := context.Background()

	full, err := p.Run(ctx, Target{Domain: "example.com", IncludeSubdomains: true, MaxURLs: 100})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !full.IncludeSubdomains || full.MaxURLs != 100 {
		t.Errorf("expected snapshot scope to be recorded, got subdomains=%v max_urls=%d", full.IncludeSubdomains, full.MaxURLs)
	}

	// A harvest without subdomains must not reuse the subdomain snapshot.
	if _, err := p.Run(ctx, Target{Domain: "example.com", MaxURLs: 100}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(h.calls) != 2 || h.subs[1] {
		t.Fatalf("expected a second harvest without subdomains, got %v %v", h.calls, h.subs)
	}

	// A smaller page bound is served from the stored snapshot, cut to size.
	small, err := p.Run(ctx, Target{Domain: "example.com", IncludeSubdomains: true, MaxURLs: 1})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(h.calls) != 2 {
		t.Errorf("expected a cache hit for a smaller bound, got %d harvests", len(h.calls))
	}
	if len(small.Pages) != 1 || small.Pages[0].URL != "https://example.com/blog/a" {
		t.Errorf("expected the first page only, got %v", small.Pages)
	}
	if small.StopReason != string(scraper.StopMaxURLs) {
		t.Errorf("expected stop reason max_urls, got %s", small.StopReason)
	}

	// A newer snapshot truncated at one page cannot serve a bound of ten.
	cut := &storage.Snapshot{
		ID:                "cut",
		Domain:            "example.com",
		Pages:             full.Pages[:1],
		StopReason:        string(scraper.StopMaxURLs),
		CreatedAt:         now.Add(time.Minute),
		IncludeSubdomains: true,
		MaxURLs:           1,
	}
	if err := backend.Save(ctx, cut); err != nil {
		t.Fatalf("save failed: %v", err)
	}
	p.now = func() time.Time { return now.Add(2 * time.Minute) }
	got, err := p.Run(ctx, Target{Domain: "example.com", IncludeSubdomains: true, MaxURLs: 10})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.ID != full.ID || len(got.Pages) != 2 {
		t.Errorf("expected the complete snapshot %s with 2 pages, got %s with %d", full.ID, got.ID, len(got.Pages))
	}
	if len(h.calls) != 2 {
		t.Errorf("expected no further harvests, got %d", len(h.calls))
	}
}

func TestPipeline_ResolvesCompany(t *testing.T) {
	h := &fakeHarvester{}
	var asked string
	p := &Pipeline{
		Harvester: h,
		Resolver: resolver.Func(func(ctx context.Context, name string) (string, bool) {
			asked = name
			return "www.scribehow.com", true
		}),
	}

	snap, err := p.Run(context.Background(), Target{Company: " Scribe "})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if asked != "Scribe" {
		t.Errorf("expected resolver to be asked for Scribe, got %q", asked)
	}
	if len(h.calls) != 1 || h.calls[0] != "scribehow.com" {
		t.Errorf("expected harvest of scribehow.com, got %v", h.calls)
	}
	if snap.Company != "Scribe" {
		t.Errorf("expected company Scribe, got %q", snap.Company)
	}
}

func TestPipeline_Errors(t *testing.T) {
	failing := resolver.Func(func(ctx context.Context, name string) (string, bool) { return "", false })
	boom := errors.New("boom")

	tests := []struct {
		name    string
		p       *Pipeline
		target  Target
		wantErr error
	}{
		{"no target", &Pipeline{Harvester: &fakeHarvester{}}, Target{}, ErrNoTarget},
		{"no resolver", &Pipeline{Harvester: &fakeHarvester{}}, Target{Company: "Loom"}, ErrUnresolved},
		{"unresolved", &Pipeline{Harvester: &fakeHarvester{}, Resolver: failing}, Target{Company: "Loom"}, ErrUnresolved},
		{"bad domain", &Pipeline{Harvester: &fakeHarvester{}}, Target{Domain: "https://"}, classify.ErrEmptyDomain},
		{"harvest error", &Pipeline{Harvester: &fakeHarvester{err: boom}}, Target{Domain: "example.com"}, boom},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.p.Run(context.Background(), tt.target)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("expected %v, got %v", tt.wantErr, err)
			}
		})
	}
}

type countingHarvester struct {
	fakeHarvester
	mu      sync.Mutex
	running int
	peak    int
}

func (c *countingHarvester) Harvest(ctx context.Context, domain string, includeSubdomains bool) (*scraper.CrawlResult, error) {
	c.mu.Lock()
	c.running++
	if c.running > c.peak {
		c.peak = c.running
	}
	c.mu.Unlock()

	time.Sleep(20 * time.Millisecond)
	res, err := c.fakeHarvester.Harvest(ctx, domain, includeSubdomains)

	c.mu.Lock()
	c.running--
	c.mu.Unlock()
	return res, err
}

func TestPipeline_RunAll(t *testing.T) {
	h := &countingHarvester{fakeHarvester: fakeHarvester{
		pages: []storage.PageRecord{{URL: "https://example.com/blog/a", Slug: "/blog/a"}},
	}}
	p := &Pipeline{
		Harvester: h,
		Resolver: resolver.Func(func(ctx context.Context, name string) (string, bool) {
			if name == "Loom" {
				return "https://www.loom.com", true
			}
			return "", false
		}),
	}

	targets := []Target{
		{Domain: "example.com"},
		{Company: "Loom"},
		{Company: "Nobody"},
		{Domain: "other.com"},
		{Domain: "third.com"},
	}
	results := p.RunAll(context.Background(), targets, 2)

	if len(results) != len(targets) {
		t.Fatalf("expected %d results, got %d", len(targets), len(results))
	}
	wantDomains := []string{"example.com", "loom.com", "", "other.com", "third.com"}
	for i, r := range results {
		if r.Target != targets[i] {
			t.Errorf("result %d: expected target %+v, got %+v", i, targets[i], r.Target)
		}
		if wantDomains[i] == "" {
			if !errors.Is(r.Err, ErrUnresolved) {
				t.Errorf("result %d: expected unresolved error, got %v", i, r.Err)
			}
			continue
		}
		if r.Err != nil {
			t.Errorf("result %d: unexpected error: %v", i, r.Err)
			continue
		}
		if r.Snapshot.Domain != wantDomains[i] {
			t.Errorf("result %d: expected domain %s, got %s", i, wantDomains[i], r.Snapshot.Domain)
		}
	}
	if len(h.calls) != 4 {
		t.Errorf("expected 4 harvests, got %v", h.calls)
	}
	if h.peak > 2 {
		t.Errorf("expected at most 2 harvests in flight, got %d", h.peak)
	}
}
