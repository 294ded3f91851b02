// Package metrics exposes Prometheus counters for sitemap harvesting.
package metrics

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	SitemapFetchesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "trublog_sitemap_fetches_total",
			Help: "Sitemap and robots.txt fetches by host and outcome",
		},
		[]string{"host", "outcome"},
	)

	FetchDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "trublog_fetch_duration_seconds",
			Help:    "Duration of sitemap fetches in seconds",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
		},
		[]string{"host"},
	)

	FetchBytesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "trublog_fetch_bytes_total",
			Help: "Bytes downloaded (after decompression) by host",
		},
		[]string{"host"},
	)

	CrawlsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "trublog_crawls_total",
			Help: "Completed crawls by stop reason",
		},
		[]string{"stop_reason"},
	)

	CrawlPages = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "trublog_crawl_pages",
			Help:    "Pages kept per crawl",
			Buckets: prometheus.ExponentialBuckets(1, 4, 9), // 1 .. 65536
		},
	)
)

// RecordFetch updates the per-fetch series. outcome is a short label such as
// "pages", "index", "empty", "blocked" or "error".
func RecordFetch(host, outcome string, d time.Duration, bytes int) {
	SitemapFetchesTotal.WithLabelValues(host, outcome).Inc()
	FetchDuration.WithLabelValues(host).Observe(d.Seconds())
	if bytes > 0 {
		FetchBytesTotal.WithLabelValues(host).Add(float64(bytes))
	}
}

// RecordCrawl updates the per-crawl series.
func RecordCrawl(stopReason string, pages int) {
	CrawlsTotal.WithLabelValues(stopReason).Inc()
	CrawlPages.Observe(float64(pages))
}

// Server encapsulates an HTTP server for Prometheus metrics.
type Server struct {
	srv *http.Server
	ln  net.Listener
}

// Start binds to port (0 picks a free one) and serves /metrics in the background.
func Start(port int, logger *slog.Logger) (*Server, error) {
	if logger == nil {
		logger = slog.Default()
	}

	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", port))
	if err != nil {
		return nil, fmt.Errorf("metrics listen: %w", err)
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server failed", "err", err)
		}
	}()

	logger.Info("metrics server listening", "addr", ln.Addr().String())
	return &Server{srv: srv, ln: ln}, nil
}

// Addr returns the bound address.
func (s *Server) Addr() string {
	return s.ln.Addr().String()
}

// Stop gracefully shuts down the metrics server.
func (s *Server) Stop(ctx context.Context) error {
	if s == nil || s.srv == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return s.srv.Shutdown(ctx)
}
