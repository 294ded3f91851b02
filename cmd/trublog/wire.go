package main

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/tania-lang/trublog-writer/internal/classify"
	"github.com/tania-lang/trublog-writer/internal/config"
	"github.com/tania-lang/trublog-writer/internal/fingerprint"
	"github.com/tania-lang/trublog-writer/internal/llm"
	"github.com/tania-lang/trublog-writer/internal/resolver"
	"github.com/tania-lang/trublog-writer/internal/scraper"
	"github.com/tania-lang/trublog-writer/internal/storage"
	"github.com/tania-lang/trublog-writer/internal/storage/csvbackend"
	"github.com/tania-lang/trublog-writer/internal/storage/jsonbackend"
	"github.com/tania-lang/trublog-writer/internal/storage/sqlite"
	"github.com/tania-lang/trublog-writer/pkg/proxy"
	"github.com/tania-lang/trublog-writer/pkg/ratelimit"
	"github.com/tania-lang/trublog-writer/pkg/useragent"
)

// harvesterConfig translates loaded settings into the scraper's config.
func harvesterConfig(cfg *config.Config) (scraper.HarvesterConfig, error) {
	profile, err := fingerprint.ParseProfile(cfg.Crawl.Fingerprint)
	if err != nil {
		return scraper.HarvesterConfig{}, err
	}
	strategy, err := useragent.ParseStrategy(cfg.Crawl.UAStrategy)
	if err != nil {
		return scraper.HarvesterConfig{}, err
	}

	var proxies *proxy.Pool
	if len(cfg.Crawl.Proxies) > 0 || cfg.Crawl.ProxyFile != "" {
		proxies = proxy.NewPool(proxy.Config{})
		if err := proxies.Add(cfg.Crawl.Proxies...); err != nil {
			return scraper.HarvesterConfig{}, fmt.Errorf("crawl.proxies: %w", err)
		}
		if cfg.Crawl.ProxyFile != "" {
			if err := proxies.LoadFile(cfg.Crawl.ProxyFile); err != nil {
				return scraper.HarvesterConfig{}, fmt.Errorf("crawl.proxy_file: %w", err)
			}
		}
	}

	var limiter *ratelimit.HostLimiter
	if cfg.Crawl.RequestsPerSecond > 0 {
		limiter = ratelimit.NewHostLimiter(cfg.Crawl.RequestsPerSecond, cfg.Crawl.Jitter)
	}

	return scraper.HarvesterConfig{
		Fetch: scraper.FetchConfig{
			MaxRedirects: cfg.Crawl.MaxRedirects,
			MaxBodyBytes: cfg.Crawl.MaxBodyBytes,
			UAPool:       useragent.NewPool(cfg.Crawl.UserAgents, strategy),
			Fingerprint:  profile,
			Limiter:      limiter,
			ProxyPool:    proxies,
			CookieJar:    cfg.Crawl.CookieJar,
		},
		Crawl: scraper.CrawlConfig{
			MaxSitemaps: cfg.Crawl.MaxSitemaps,
			MaxURLs:     cfg.Crawl.MaxURLs,
			BatchSize:   cfg.Crawl.BatchSize,
			Concurrency: cfg.Crawl.Concurrency,
		},
		Discovery: scraper.PlannerConfig{
			SitemapPaths:      cfg.Discovery.SitemapPaths,
			Subdomains:        cfg.Discovery.Subdomains,
			RobotsSubdomains:  cfg.Discovery.RobotsSubdomains,
			RobotsConcurrency: cfg.Discovery.RobotsConcurrency,
		},
		Classifier: classify.New(classify.Options{
			DeniedLocales:  cfg.Filter.DeniedLocales,
			AllowedLocales: cfg.Filter.AllowedLocales,
			LocaleParams:   cfg.Filter.LocaleParams,
			LocalePatterns: nilIfEmpty(cfg.Filter.LocalePatterns),
			SkipPatterns:   cfg.Filter.SkipPatterns,
		}),
		SitemapTimeout: cfg.Crawl.SitemapTimeout,
		RobotsTimeout:  cfg.Crawl.RobotsTimeout,
	}, nil
}

// nilIfEmpty maps an unset list to nil so the classifier keeps its defaults.
func nilIfEmpty(s []string) []string {
	if len(s) == 0 {
		return nil
	}
	return s
}

// openBackend opens the configured snapshot store. It returns nil for "none".
func openBackend(cfg config.StorageConfig) (storage.Backend, error) {
	if cfg.Backend == "none" {
		return nil, nil
	}
	if cfg.Path == "" {
		return nil, fmt.Errorf("storage.path is required for backend %s", cfg.Backend)
	}
	if dir := filepath.Dir(cfg.Path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create storage dir: %w", err)
		}
	}

	switch cfg.Backend {
	case "sqlite":
		return sqlite.New(cfg.Path)
	case "json":
		return jsonbackend.New(cfg.Path)
	case "csv":
		return csvbackend.New(cfg.Path)
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Backend)
	}
}

// newResolver returns a cached LLM resolver, or nil without an API key.
func newResolver(cfg config.LLMConfig, logger *slog.Logger) (resolver.Resolver, error) {
	if cfg.APIKey == "" {
		return nil, nil
	}
	client, err := llm.NewAnthropicClient(llm.Config{
		APIKey:    cfg.APIKey,
		APIURL:    cfg.APIURL,
		Model:     cfg.Model,
		MaxTokens: cfg.MaxTokens,
		Timeout:   cfg.Timeout,
	})
	if err != nil {
		return nil, err
	}
	return resolver.NewCached(resolver.NewLLMResolver(client, logger)), nil
}
