package scraper

import (
	"context"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/tania-lang/trublog-writer/internal/metrics"
	"github.com/temoto/robotstxt"
)

// DefaultRobotsTimeout bounds a single robots.txt request.
const DefaultRobotsTimeout = 10 * time.Second

var sitemapDirective = regexp.MustCompile(`(?im)^\s*sitemap\s*:\s*(\S+)`)

// RobotsReader extracts Sitemap: directives from robots.txt files.
type RobotsReader struct {
	fetcher *Fetcher
	timeout time.Duration
	logger  *slog.Logger
}

// NewRobotsReader creates a reader. A zero timeout uses DefaultRobotsTimeout.
func NewRobotsReader(fetcher *Fetcher, timeout time.Duration, logger *slog.Logger) *RobotsReader {
	if logger == nil {
		logger = slog.Default()
	}
	if timeout <= 0 {
		timeout = DefaultRobotsTimeout
	}
	return &RobotsReader{
		fetcher: fetcher,
		timeout: timeout,
		logger:  logger,
	}
}

// Sitemaps fetches {origin}/robots.txt and returns its Sitemap: URLs in file
// order. Anything other than a 200 yields nil.
func (r *RobotsReader) Sitemaps(ctx context.Context, origin string) []string {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	robotsURL := strings.TrimRight(origin, "/") + "/robots.txt"
	res := r.fetcher.Fetch(ctx, robotsURL)
	host := hostOf(robotsURL)

	if !res.OK() {
		r.logger.Debug("robots.txt unavailable", "url", robotsURL, "status", res.StatusCode, "err", res.Error)
		metrics.RecordFetch(host, "robots_empty", res.Duration, len(res.Body))
		return nil
	}
	metrics.RecordFetch(host, "robots", res.Duration, len(res.Body))

	sitemaps := parseRobotsSitemaps(res.Body)
	r.logger.Debug("robots.txt read", "url", robotsURL, "sitemaps", len(sitemaps))
	return sitemaps
}

// parseRobotsSitemaps prefers the robotstxt parser and falls back to a line
// scan for files it rejects.
func parseRobotsSitemaps(body []byte) []string {
	var out []string
	if data, err := robotstxt.FromBytes(body); err == nil && len(data.Sitemaps) > 0 {
		for _, s := range data.Sitemaps {
			if s = strings.TrimSpace(s); s != "" {
				out = append(out, s)
			}
		}
		return out
	}

	for _, m := range sitemapDirective.FindAllSubmatch(body, -1) {
		out = append(out, string(m[1]))
	}
	return out
}
