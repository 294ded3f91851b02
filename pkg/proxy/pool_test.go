package proxy

import (
	"context"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestPool_AddAndNext(t *testing.T) {
	pool := NewPool(Config{})

	if err := pool.Add("127.0.0.1:8080", "http://127.0.0.1:8081", " ", "socks5://127.0.0.1:9050"); err != nil {
		t.Fatalf("unexpected error adding proxies: %v", err)
	}
	if pool.Len() != 3 {
		t.Fatalf("expected 3 proxies, got %d", pool.Len())
	}

	want := []string{
		"http://127.0.0.1:8080",
		"http://127.0.0.1:8081",
		"socks5://127.0.0.1:9050",
		"http://127.0.0.1:8080",
	}
	for _, w := range want {
		if got := pool.Next(); got == nil || got.String() != w {
			t.Errorf("expected %s, got %v", w, got)
		}
	}
}

func TestPool_Empty(t *testing.T) {
	if got := NewPool(Config{}).Next(); got != nil {
		t.Fatalf("expected nil from empty pool, got %v", got)
	}
}

func TestPool_Benching(t *testing.T) {
	pool := NewPool(Config{MaxFailures: 2, Cooldown: time.Minute})
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	pool.now = func() time.Time { return now }

	if err := pool.Add("http://a", "http://b"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	a, _ := url.Parse("http://a")

	pool.Report(a, false)
	pool.Report(a, true) // streak reset
	pool.Report(a, false)
	if got := pool.Next(); got.String() != "http://a" {
		t.Fatalf("expected a to stay active after a reset streak, got %v", got)
	}

	pool.Report(a, false)
	for i := 0; i < 3; i++ {
		if got := pool.Next(); got.String() != "http://b" {
			t.Fatalf("expected only b while a is benched, got %v", got)
		}
	}

	now = now.Add(2 * time.Minute)
	seenA := false
	for i := 0; i < 2; i++ {
		if pool.Next().String() == "http://a" {
			seenA = true
		}
	}
	if !seenA {
		t.Fatal("expected a to return after cooldown")
	}

	// Unknown proxies and nil are ignored.
	pool.Report(nil, false)
	other, _ := url.Parse("http://zzz")
	pool.Report(other, false)
}

func TestPool_AllBenched(t *testing.T) {
	pool := NewPool(Config{MaxFailures: 1, Cooldown: time.Hour})
	_ = pool.Add("http://only")
	u := pool.Next()
	pool.Report(u, false)
	if got := pool.Next(); got != nil {
		t.Fatalf("expected nil when every proxy is benched, got %v", got)
	}
}

func TestPool_LoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "proxies.txt")
	content := "# egress\nhttp://10.0.0.1:3128\n\n10.0.0.2:3128\n"
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write proxy file: %v", err)
	}

	pool := NewPool(Config{})
	if err := pool.LoadFile(path); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if pool.Len() != 2 {
		t.Fatalf("expected 2 proxies, got %d", pool.Len())
	}
	if err := pool.LoadFile(filepath.Join(t.TempDir(), "missing.txt")); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestProxyFunc(t *testing.T) {
	u, _ := url.Parse("http://10.0.0.9:8080")
	req, _ := http.NewRequestWithContext(WithProxy(context.Background(), u), http.MethodGet, "https://example.com/sitemap.xml", nil)

	got, err := ProxyFunc(req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got == nil || got.String() != u.String() {
		t.Fatalf("expected %s, got %v", u, got)
	}
}
