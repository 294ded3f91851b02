package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/tania-lang/trublog-writer/internal/pipeline"
	"github.com/tania-lang/trublog-writer/internal/scraper"
)

func newHarvestCmd(a *app) *cobra.Command {
	var (
		companies    []string
		noSubdomains bool
		maxSitemaps  int
		maxURLs      int
		parallel     int
		format       string
		refresh      bool
	)

	cmd := &cobra.Command{
		Use:   "harvest [domain...]",
		Short: "List the content pages found in one or more domains' sitemaps",
		Example: `  trublog harvest example.com
  trublog harvest --company "Synthesia" --format json
  trublog harvest scribehow.com --company Loom --company "Tango" --parallel 2
  trublog harvest https://www.example.com --no-subdomains --max-urls 500 --format csv`,
		Args: cobra.ArbitraryArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 && len(companies) == 0 {
				return errors.New("a domain argument or --company is required")
			}
			if err := checkPageFormat(format); err != nil {
				return err
			}

			cfg := *a.cfg
			if cmd.Flags().Changed("max-sitemaps") {
				cfg.Crawl.MaxSitemaps = maxSitemaps
			}
			if cmd.Flags().Changed("max-urls") {
				cfg.Crawl.MaxURLs = maxURLs
			}
			if cmd.Flags().Changed("parallel") {
				cfg.Crawl.Targets = parallel
			}

			hcfg, err := harvesterConfig(&cfg)
			if err != nil {
				return err
			}
			harvester, err := scraper.NewHarvester(hcfg, a.logger)
			if err != nil {
				return err
			}
			defer harvester.Close()

			backend, err := openBackend(cfg.Storage)
			if err != nil {
				return err
			}
			if backend != nil {
				defer backend.Close()
			}

			res, err := newResolver(cfg.LLM, a.logger)
			if err != nil {
				return err
			}

			p := &pipeline.Pipeline{
				Resolver:  res,
				Harvester: harvester,
				Backend:   backend,
				MaxAge:    cfg.Storage.MaxAge,
				Logger:    a.logger,
			}

			targets := harvestTargets(args, companies, pipeline.Target{
				IncludeSubdomains: cfg.Crawl.IncludeSubdomains && !noSubdomains,
				MaxURLs:           cfg.Crawl.MaxURLs,
				Refresh:           refresh,
			})
			results := p.RunAll(cmd.Context(), targets, cfg.Crawl.Targets)

			var errs []error
			for _, r := range results {
				if r.Err != nil {
					if len(results) == 1 {
						return r.Err
					}
					a.logger.Error("harvest failed", "target", targetName(r.Target), "err", r.Err)
					errs = append(errs, fmt.Errorf("%s: %w", targetName(r.Target), r.Err))
					continue
				}
				a.logger.Info("harvest complete",
					"domain", r.Snapshot.Domain,
					"pages", len(r.Snapshot.Pages),
					"sitemaps", r.Snapshot.SitemapsVisited,
					"stop_reason", r.Snapshot.StopReason,
				)
			}

			if err := writeResults(cmd.OutOrStdout(), format, results); err != nil {
				return fmt.Errorf("write output: %w", err)
			}
			if len(errs) > 0 {
				return fmt.Errorf("%d of %d targets failed: %w", len(errs), len(results), errors.Join(errs...))
			}
			return nil
		},
	}

	cmd.Flags().StringArrayVar(&companies, "company", nil, "company or product name to resolve to a domain (repeatable)")
	cmd.Flags().BoolVar(&noSubdomains, "no-subdomains", false, "skip guessed content subdomains")
	cmd.Flags().IntVar(&maxSitemaps, "max-sitemaps", 500, "maximum sitemap URLs to fetch per domain")
	cmd.Flags().IntVar(&maxURLs, "max-urls", 50000, "maximum pages to return per domain")
	cmd.Flags().IntVar(&parallel, "parallel", 3, "domains harvested at once (overrides crawl.targets)")
	cmd.Flags().StringVar(&format, "format", "text", "output format: text|json|csv")
	cmd.Flags().BoolVar(&refresh, "refresh", false, "ignore stored snapshots and harvest again")

	return cmd
}

// harvestTargets builds one target per domain argument, then one per
// company, copying the shared scope from base.
func harvestTargets(domains, companies []string, base pipeline.Target) []pipeline.Target {
	targets := make([]pipeline.Target, 0, len(domains)+len(companies))
	for _, d := range domains {
		t := base
		t.Domain = d
		targets = append(targets, t)
	}
	for _, c := range companies {
		t := base
		t.Company = c
		targets = append(targets, t)
	}
	return targets
}
