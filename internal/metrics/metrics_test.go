package metrics

import (
	"context"
	"io"
	"net"
	"net/http"
	"strings"
	"testing"
	"time"
)

func TestMetricsServer(t *testing.T) {
	srv, err := Start(0, nil)
	if err != nil {
		t.Fatalf("failed to start metrics server: %v", err)
	}
	defer srv.Stop(context.Background())

	RecordFetch("example.com", "pages", 250*time.Millisecond, 11)
	RecordFetch("example.com", "empty", 10*time.Millisecond, 0)
	RecordCrawl("exhausted", 42)

	_, port, _ := net.SplitHostPort(srv.Addr())
	resp, err := http.Get("http://127.0.0.1:" + port + "/metrics")
	if err != nil {
		t.Fatalf("failed to fetch metrics: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected status 200, got %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("failed to read body: %v", err)
	}
	out := string(body)

	for _, want := range []string{
		`trublog_sitemap_fetches_total{host="example.com",outcome="pages"} 1`,
		`trublog_sitemap_fetches_total{host="example.com",outcome="empty"} 1`,
		`trublog_fetch_bytes_total{host="example.com"} 11`,
		`trublog_crawls_total{stop_reason="exhausted"} 1`,
		`trublog_crawl_pages_count 1`,
	} {
		if !strings.Contains(out, want) {
			t.Errorf("expected metrics output to contain %q", want)
		}
	}
}

func TestStopNil(t *testing.T) {
	var s *Server
	if err := s.Stop(context.Background()); err != nil {
		t.Fatalf("expected nil server stop to succeed, got %v", err)
	}
}
