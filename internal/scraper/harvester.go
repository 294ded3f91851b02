package scraper

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/tania-lang/trublog-writer/internal/classify"
)

// HarvesterConfig assembles the components of a harvest.
type HarvesterConfig struct {
	Fetch          FetchConfig
	Crawl          CrawlConfig
	Discovery      PlannerConfig
	Classifier     *classify.Classifier
	SitemapTimeout time.Duration
	RobotsTimeout  time.Duration
}

// Harvester discovers a domain's sitemaps and collects its in-scope pages.
// It owns one Fetcher shared by robots.txt and sitemap requests.
type Harvester struct {
	fetcher *Fetcher
	planner *Planner
	crawler *Crawler
	logger  *slog.Logger
}

// NewHarvester wires a Fetcher, Planner and Crawler from cfg.
func NewHarvester(cfg HarvesterConfig, logger *slog.Logger) (*Harvester, error) {
	if logger == nil {
		logger = slog.Default()
	}

	fetcher, err := NewFetcher(cfg.Fetch)
	if err != nil {
		return nil, fmt.Errorf("create fetcher: %w", err)
	}

	robots := NewRobotsReader(fetcher, cfg.RobotsTimeout, logger)
	sitemaps := NewSitemapFetcher(fetcher, cfg.Classifier, cfg.SitemapTimeout, logger)

	return &Harvester{
		fetcher: fetcher,
		planner: NewPlanner(cfg.Discovery, robots, logger),
		crawler: NewCrawler(cfg.Crawl, sitemaps, logger),
		logger:  logger,
	}, nil
}

// Harvest returns the deduplicated pages listed in domain's sitemaps. domain
// may carry a scheme or www. prefix. Network failures never produce an
// error; they shrink the result. Errors are limited to an unusable domain,
// reported before any request, and cancellation of ctx, which comes with the
// partial result.
func (h *Harvester) Harvest(ctx context.Context, domain string, includeSubdomains bool) (*CrawlResult, error) {
	normalized, err := classify.NormalizeDomain(domain)
	if err != nil {
		return nil, err
	}

	h.logger.Info("harvest started", "domain", normalized, "subdomains", includeSubdomains)

	seeds := h.planner.Plan(ctx, normalized, includeSubdomains)
	res, err := h.crawler.Crawl(ctx, normalized, seeds)
	if err != nil {
		return res, fmt.Errorf("crawl %s: %w", normalized, err)
	}
	return res, nil
}

// Close releases idle connections held by the shared fetcher.
func (h *Harvester) Close() {
	h.fetcher.Close()
}
