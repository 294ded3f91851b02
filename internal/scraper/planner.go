package scraper

import (
	"context"
	"log/slog"

	"golang.org/x/sync/errgroup"
)

// DefaultSitemapPaths are probed on every origin, in this order.
var DefaultSitemapPaths = []string{
	"/sitemap.xml",
	"/sitemap_index.xml",
	"/wp-sitemap.xml",
	"/sitemap/sitemap.xml",
	"/sitemaps/sitemap.xml",
	"/sitemap1.xml",
	"/post-sitemap.xml",
	"/page-sitemap.xml",
	"/blog-sitemap.xml",
	"/sitemap-posts.xml",
}

// DefaultSubdomains are content subdomains commonly hosting their own sitemap.
var DefaultSubdomains = []string{
	"blog", "help", "support", "docs", "learn",
	"resources", "knowledge", "community", "kb", "faq",
}

// subdomainPaths are probed on each guessed subdomain.
var subdomainPaths = []string{"/sitemap.xml", "/sitemap_index.xml"}

// PlannerConfig tunes discovery. Zero values select the defaults.
type PlannerConfig struct {
	SitemapPaths []string
	Subdomains   []string
	// RobotsSubdomains is how many leading Subdomains also get a robots.txt
	// lookup. Default 5; negative disables subdomain robots lookups.
	RobotsSubdomains int
	// RobotsConcurrency bounds parallel robots.txt requests. Default 10.
	RobotsConcurrency int
}

// Planner turns a domain into the initial, ordered list of sitemap URLs.
type Planner struct {
	cfg    PlannerConfig
	robots *RobotsReader
	logger *slog.Logger
}

// NewPlanner creates a Planner.
func NewPlanner(cfg PlannerConfig, robots *RobotsReader, logger *slog.Logger) *Planner {
	if len(cfg.SitemapPaths) == 0 {
		cfg.SitemapPaths = DefaultSitemapPaths
	}
	if len(cfg.Subdomains) == 0 {
		cfg.Subdomains = DefaultSubdomains
	}
	if cfg.RobotsSubdomains == 0 {
		cfg.RobotsSubdomains = 5
	}
	if cfg.RobotsSubdomains < 0 {
		cfg.RobotsSubdomains = 0
	}
	if cfg.RobotsSubdomains > len(cfg.Subdomains) {
		cfg.RobotsSubdomains = len(cfg.Subdomains)
	}
	if cfg.RobotsConcurrency <= 0 {
		cfg.RobotsConcurrency = 10
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Planner{cfg: cfg, robots: robots, logger: logger}
}

// Plan returns the seed sitemap URLs for domain: robots.txt declarations
// first (origin order, then file order), then guessed paths on both origins,
// then guessed subdomain sitemaps. The list may contain duplicates.
func (p *Planner) Plan(ctx context.Context, domain string, includeSubdomains bool) []string {
	origins := []string{"https://" + domain, "https://www." + domain}

	robotsOrigins := append([]string{}, origins...)
	if includeSubdomains {
		for _, sub := range p.cfg.Subdomains[:p.cfg.RobotsSubdomains] {
			robotsOrigins = append(robotsOrigins, "https://"+sub+"."+domain)
		}
	}

	declared := p.fromRobots(ctx, robotsOrigins)

	var seeds []string
	for _, list := range declared {
		seeds = append(seeds, list...)
	}
	fromRobots := len(seeds)

	for _, origin := range origins {
		for _, path := range p.cfg.SitemapPaths {
			seeds = append(seeds, origin+path)
		}
	}

	if includeSubdomains {
		for _, sub := range p.cfg.Subdomains {
			for _, path := range subdomainPaths {
				seeds = append(seeds, "https://"+sub+"."+domain+path)
			}
		}
	}

	p.logger.Debug("discovery planned", "domain", domain, "seeds", len(seeds), "from_robots", fromRobots)
	return seeds
}

// fromRobots reads every origin's robots.txt concurrently. The result is
// indexed like origins so ordering does not depend on completion order.
func (p *Planner) fromRobots(ctx context.Context, origins []string) [][]string {
	out := make([][]string, len(origins))
	if p.robots == nil {
		return out
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.cfg.RobotsConcurrency)
	for i, origin := range origins {
		g.Go(func() error {
			out[i] = p.robots.Sitemaps(gctx, origin)
			return nil
		})
	}
	_ = g.Wait()
	return out
}
