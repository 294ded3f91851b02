// Package pipeline runs a harvest end to end: resolve the company to a
// domain when needed, serve a fresh stored snapshot if one exists, otherwise
// harvest and store the result.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"github.com/tania-lang/trublog-writer/internal/classify"
	"github.com/tania-lang/trublog-writer/internal/resolver"
	"github.com/tania-lang/trublog-writer/internal/scraper"
	"github.com/tania-lang/trublog-writer/internal/storage"
)

var (
	// ErrNoTarget is returned when neither a domain nor a company is given.
	ErrNoTarget = errors.New("pipeline: domain or company is required")
	// ErrUnresolved is returned when the company name cannot be mapped to a domain.
	ErrUnresolved = errors.New("pipeline: company domain could not be resolved")
)

// Harvester is the part of *scraper.Harvester the pipeline needs.
type Harvester interface {
	Harvest(ctx context.Context, domain string, includeSubdomains bool) (*scraper.CrawlResult, error)
}

// Target names what to harvest. Domain wins over Company when both are set.
type Target struct {
	Domain            string
	Company           string
	IncludeSubdomains bool
	// MaxURLs is the page bound of the harvester. A stored snapshot is only
	// reused when it can satisfy it. Zero accepts any stored snapshot.
	MaxURLs int
	// Refresh skips the stored-snapshot lookup.
	Refresh bool
}

// Pipeline wires the stages together. Resolver and Backend are optional.
type Pipeline struct {
	Resolver  resolver.Resolver
	Harvester Harvester
	Backend   storage.Backend
	// MaxAge is how long a stored snapshot is served instead of harvesting.
	// Zero disables reuse.
	MaxAge time.Duration
	Logger *slog.Logger

	now func() time.Time
}

// Run harvests t and returns the resulting snapshot.
func (p *Pipeline) Run(ctx context.Context, t Target) (*storage.Snapshot, error) {
	logger := p.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if p.Harvester == nil {
		return nil, errors.New("pipeline: harvester is nil")
	}

	domain, err := p.domainFor(ctx, t)
	if err != nil {
		return nil, err
	}

	if !t.Refresh {
		if snap := p.fresh(ctx, domain, t, logger); snap != nil {
			logger.Info("serving stored snapshot", "domain", domain, "id", snap.ID, "pages", len(snap.Pages), "age", p.clock().Sub(snap.CreatedAt))
			return snap, nil
		}
	}

	res, err := p.Harvester.Harvest(ctx, domain, t.IncludeSubdomains)
	if err != nil {
		return nil, fmt.Errorf("harvest %s: %w", domain, err)
	}

	snap := &storage.Snapshot{
		ID:              uuid.NewString(),
		Domain:          res.Domain,
		Company:         strings.TrimSpace(t.Company),
		Pages:           res.Pages,
		SitemapsVisited: res.SitemapsVisited,
		StopReason:      string(res.Stop),
		Duration:        res.Duration,
		CreatedAt:       p.clock().UTC(),

		IncludeSubdomains: t.IncludeSubdomains,
		MaxURLs:           res.MaxURLs,
	}

	if p.Backend != nil {
		if err := p.Backend.Save(ctx, snap); err != nil {
			logger.Error("failed to save snapshot", "domain", domain, "err", err)
		}
	}
	return snap, nil
}

// Result is the outcome of one target of RunAll.
type Result struct {
	Target   Target
	Snapshot *storage.Snapshot
	Err      error
}

// RunAll runs every target, at most limit at a time, and returns one Result
// per target in input order. A failed target does not stop the others.
// limit <= 0 runs them all at once.
func (p *Pipeline) RunAll(ctx context.Context, targets []Target, limit int) []Result {
	results := make([]Result, len(targets))

	var g errgroup.Group
	if limit > 0 {
		g.SetLimit(limit)
	}
	for i, t := range targets {
		g.Go(func() error {
			snap, err := p.Run(ctx, t)
			results[i] = Result{Target: t, Snapshot: snap, Err: err}
			return nil
		})
	}
	_ = g.Wait()
	return results
}

func (p *Pipeline) domainFor(ctx context.Context, t Target) (string, error) {
	if strings.TrimSpace(t.Domain) != "" {
		d, err := classify.NormalizeDomain(t.Domain)
		if err != nil {
			return "", fmt.Errorf("pipeline: %w", err)
		}
		return d, nil
	}

	company := strings.TrimSpace(t.Company)
	if company == "" {
		return "", ErrNoTarget
	}
	if p.Resolver == nil {
		return "", fmt.Errorf("%w: %s (no resolver configured)", ErrUnresolved, company)
	}

	raw, ok := p.Resolver.Resolve(ctx, company)
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrUnresolved, company)
	}
	d, err := classify.NormalizeDomain(raw)
	if err != nil {
		return "", fmt.Errorf("%w: %s", ErrUnresolved, company)
	}
	return d, nil
}

// freshLookupLimit caps how many recent snapshots are inspected for a
// scope match.
const freshLookupLimit = 10

// fresh returns the newest stored snapshot for domain younger than MaxAge
// whose scope matches t. Pages beyond t.MaxURLs are cut from the copy served.
func (p *Pipeline) fresh(ctx context.Context, domain string, t Target, logger *slog.Logger) *storage.Snapshot {
	if p.Backend == nil || p.MaxAge <= 0 {
		return nil
	}
	since := p.clock().Add(-p.MaxAge)
	snaps, err := p.Backend.Query(ctx, storage.Filter{Domain: domain, Since: &since, Limit: freshLookupLimit})
	if err != nil {
		logger.Warn("snapshot lookup failed", "domain", domain, "err", err)
		return nil
	}
	for _, snap := range snaps {
		if !covers(snap, t) {
			continue
		}
		if t.MaxURLs > 0 && len(snap.Pages) > t.MaxURLs {
			trimmed := *snap
			trimmed.Pages = snap.Pages[:t.MaxURLs]
			trimmed.StopReason = string(scraper.StopMaxURLs)
			return &trimmed
		}
		return snap
	}
	return nil
}

// covers reports whether snap was harvested with the scope t asks for. A
// snapshot cut short by a smaller page bound cannot serve a larger one.
func covers(snap *storage.Snapshot, t Target) bool {
	if snap.IncludeSubdomains != t.IncludeSubdomains {
		return false
	}
	if t.MaxURLs <= 0 {
		return true
	}
	truncated := snap.StopReason == string(scraper.StopMaxURLs)
	return !truncated || snap.MaxURLs >= t.MaxURLs
}

func (p *Pipeline) clock() time.Time {
	if p.now != nil {
		return p.now()
	}
	return time.Now()
}
