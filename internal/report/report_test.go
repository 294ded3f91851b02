package report

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/tania-lang/trublog-writer/internal/storage"
)

func TestGenerateSummary(t *testing.T) {
	now := time.Now()

	snaps := []*storage.Snapshot{
		{
			Domain: "example.com",
			Pages: []storage.PageRecord{
				{URL: "https://example.com/blog/a"},
				{URL: "https://blog.example.com/b"},
			},
			SitemapsVisited: 4,
			StopReason:      "exhausted",
			Duration:        2 * time.Second,
			CreatedAt:       now,
		},
		{
			Domain:          "loom.com",
			Pages:           []storage.PageRecord{{URL: "https://www.loom.com/blog/c"}},
			SitemapsVisited: 500,
			StopReason:      "max_sitemaps",
			Duration:        time.Second,
			CreatedAt:       now.Add(2 * time.Second),
		},
		{
			Domain:     "example.com",
			StopReason: "exhausted",
			CreatedAt:  now.Add(time.Second),
		},
	}

	summary := GenerateSummary(snaps)

	if summary.Snapshots != 3 {
		t.Errorf("expected 3 snapshots, got %d", summary.Snapshots)
	}
	if summary.Domains != 2 {
		t.Errorf("expected 2 domains, got %d", summary.Domains)
	}
	if summary.TotalPages != 3 {
		t.Errorf("expected 3 pages, got %d", summary.TotalPages)
	}
	if summary.SitemapsVisited != 504 {
		t.Errorf("expected 504 sitemaps, got %d", summary.SitemapsVisited)
	}
	if summary.PagesByDomain["example.com"] != 2 {
		t.Errorf("expected 2 pages for example.com, got %d", summary.PagesByDomain["example.com"])
	}
	if summary.PagesByHost["blog.example.com"] != 1 || summary.PagesByHost["www.loom.com"] != 1 {
		t.Errorf("unexpected host counts %v", summary.PagesByHost)
	}
	if summary.StopReasons["exhausted"] != 2 || summary.StopReasons["max_sitemaps"] != 1 {
		t.Errorf("unexpected stop reasons %v", summary.StopReasons)
	}
	if summary.CrawlTime != 3*time.Second {
		t.Errorf("expected 3s crawl time, got %v", summary.CrawlTime)
	}
	if summary.Duration != 2*time.Second {
		t.Errorf("expected 2s span, got %v", summary.Duration)
	}
}

func TestGenerateSummary_Empty(t *testing.T) {
	summary := GenerateSummary(nil)
	if summary.Snapshots != 0 || summary.PagesByDomain == nil {
		t.Errorf("expected zero summary with initialized maps, got %+v", summary)
	}
}

func TestWriteJSON(t *testing.T) {
	summary := Summary{TotalPages: 5}
	var buf bytes.Buffer
	if err := WriteJSON(&buf, summary); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if !strings.Contains(buf.String(), `"TotalPages": 5`) {
		t.Errorf("expected JSON to contain TotalPages: 5")
	}
}

func TestWriteText(t *testing.T) {
	summary := Summary{
		Snapshots:  2,
		Domains:    1,
		TotalPages: 7,
		PagesByDomain: map[string]int{
			"example.com": 7,
		},
	}
	var buf bytes.Buffer
	if err := WriteText(&buf, summary); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	out := buf.String()
	if !strings.Contains(out, "Snapshots:     2 (1 domains)") {
		t.Errorf("expected snapshot line, got:\n%s", out)
	}
	if !strings.Contains(out, "example.com: 7") {
		t.Errorf("expected text to contain example.com: 7")
	}
	if !strings.Contains(out, "Stop Reasons:\n  None") {
		t.Errorf("expected empty stop reasons to print None")
	}
}

func TestWriteHTML(t *testing.T) {
	summary := Summary{
		TotalPages:  10,
		StopReasons: map[string]int{"max_urls": 2},
		PagesByHost: map[string]int{"<script>": 1},
	}
	var buf bytes.Buffer
	if err := WriteHTML(&buf, summary); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	out := buf.String()
	if !strings.Contains(out, "<title>Sitemap Harvest Report</title>") {
		t.Errorf("expected HTML title")
	}
	if !strings.Contains(out, "max_urls") {
		t.Errorf("expected HTML to contain max_urls")
	}
	if strings.Contains(out, "<td><script></td>") {
		t.Errorf("expected host names to be escaped")
	}
}
