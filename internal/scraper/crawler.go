package scraper

import (
	"context"
	"log/slog"
	"time"

	"github.com/tania-lang/trublog-writer/internal/metrics"
	"github.com/tania-lang/trublog-writer/internal/storage"
	"golang.org/x/sync/errgroup"
)

// StopReason records why a crawl ended.
type StopReason string

const (
	StopExhausted   StopReason = "exhausted"
	StopMaxSitemaps StopReason = "max_sitemaps"
	StopMaxURLs     StopReason = "max_urls"
	StopCancelled   StopReason = "cancelled"
)

// CrawlConfig bounds a single crawl. Zero values select the defaults.
type CrawlConfig struct {
	// MaxSitemaps caps distinct sitemap URLs fetched. Default 500.
	MaxSitemaps int
	// MaxURLs caps the returned page list. Default 50000.
	MaxURLs int
	// BatchSize is how many tasks are dequeued per round. Default 30.
	BatchSize int
	// Concurrency bounds in-flight fetches within a batch. Default 15.
	Concurrency int
}

// CrawlResult is the deduplicated page list of one crawl plus bookkeeping.
type CrawlResult struct {
	Domain          string
	Pages           []storage.PageRecord
	SitemapsVisited int
	Seeds           int
	Stop            StopReason
	Duration        time.Duration

	// MaxURLs is the page bound the crawl ran with.
	MaxURLs int
}

// SitemapSource turns one sitemap URL into an Outcome. *SitemapFetcher is
// the production implementation.
type SitemapSource interface {
	Fetch(ctx context.Context, sitemapURL, domain string) Outcome
}

// Crawler drains a sitemap queue in bounded batches.
type Crawler struct {
	cfg    CrawlConfig
	source SitemapSource
	logger *slog.Logger
}

// NewCrawler creates a Crawler.
func NewCrawler(cfg CrawlConfig, source SitemapSource, logger *slog.Logger) *Crawler {
	if cfg.MaxSitemaps <= 0 {
		cfg.MaxSitemaps = 500
	}
	if cfg.MaxURLs <= 0 {
		cfg.MaxURLs = 50000
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 30
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 15
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Crawler{cfg: cfg, source: source, logger: logger}
}

// Crawl processes seeds (and any index children they lead to) until the
// queue is empty or a bound is hit. Bounds are not errors. The only error is
// ctx's, returned together with whatever was collected before cancellation.
func (c *Crawler) Crawl(ctx context.Context, domain string, seeds []string) (*CrawlResult, error) {
	start := time.Now()

	queue := newTaskQueue(seeds)
	processed := make(map[string]struct{})
	var acc []storage.PageRecord

	var stop StopReason
	for stop == "" {
		switch {
		case ctx.Err() != nil:
			stop = StopCancelled
		case queue.Len() == 0:
			stop = StopExhausted
		case len(processed) >= c.cfg.MaxSitemaps:
			stop = StopMaxSitemaps
		case len(acc) > c.cfg.MaxURLs:
			stop = StopMaxURLs
		default:
			batch := c.nextBatch(queue, processed)
			if len(batch) == 0 {
				continue
			}
			outcomes := c.fetchBatch(ctx, batch, domain)
			acc = c.fold(queue, processed, outcomes, acc)
		}
	}

	res := &CrawlResult{
		Domain:          domain,
		Pages:           dedupe(acc, c.cfg.MaxURLs),
		SitemapsVisited: len(processed),
		Seeds:           len(seeds),
		Stop:            stop,
		Duration:        time.Since(start),
		MaxURLs:         c.cfg.MaxURLs,
	}

	metrics.RecordCrawl(string(res.Stop), len(res.Pages))
	c.logger.Info("crawl finished",
		"domain", domain,
		"stop_reason", res.Stop,
		"sitemaps", res.SitemapsVisited,
		"pages", len(res.Pages),
		"duration", res.Duration,
	)

	if stop == StopCancelled {
		return res, ctx.Err()
	}
	return res, nil
}

// nextBatch pops up to BatchSize unseen URLs without exceeding the remaining
// sitemap budget, marking each as processed.
func (c *Crawler) nextBatch(queue *taskQueue, processed map[string]struct{}) []string {
	size := min(c.cfg.BatchSize, c.cfg.MaxSitemaps-len(processed))
	batch := make([]string, 0, size)
	for len(batch) < size {
		u, ok := queue.PopFront()
		if !ok {
			break
		}
		if _, seen := processed[u]; seen {
			continue
		}
		processed[u] = struct{}{}
		batch = append(batch, u)
	}
	return batch
}

// fetchBatch fetches every URL of batch and waits for all of them. outcomes
// is indexed like batch.
func (c *Crawler) fetchBatch(ctx context.Context, batch []string, domain string) []Outcome {
	outcomes := make([]Outcome, len(batch))

	var g errgroup.Group
	g.SetLimit(c.cfg.Concurrency)
	for i, u := range batch {
		g.Go(func() error {
			outcomes[i] = c.source.Fetch(ctx, u, domain)
			return nil
		})
	}
	_ = g.Wait()

	return outcomes
}

// fold applies a batch's outcomes in batch order. Children of every index in
// the batch are pushed to the front as a single block.
func (c *Crawler) fold(queue *taskQueue, processed map[string]struct{}, outcomes []Outcome, acc []storage.PageRecord) []storage.PageRecord {
	var children []string
	pending := make(map[string]struct{})

	for _, out := range outcomes {
		switch out.Kind {
		case OutcomeIndex:
			for _, child := range out.Children {
				if _, seen := processed[child]; seen {
					continue
				}
				if _, dup := pending[child]; dup {
					continue
				}
				pending[child] = struct{}{}
				children = append(children, child)
			}
		case OutcomePages:
			acc = append(acc, out.Records...)
		}
	}

	queue.PushFront(children...)
	return acc
}

// dedupe keeps the first record per URL and truncates to limit.
func dedupe(records []storage.PageRecord, limit int) []storage.PageRecord {
	seen := make(map[string]struct{}, len(records))
	out := make([]storage.PageRecord, 0, min(len(records), limit))
	for _, r := range records {
		if len(out) >= limit {
			break
		}
		if _, ok := seen[r.URL]; ok {
			continue
		}
		seen[r.URL] = struct{}{}
		out = append(out, r)
	}
	return out
}
