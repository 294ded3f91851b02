package scraper

import (
	"bytes"
	"context"
	"html"
	"log/slog"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/oxffaa/gopher-parse-sitemap"
	"github.com/tania-lang/trublog-writer/internal/classify"
	"github.com/tania-lang/trublog-writer/internal/metrics"
	"github.com/tania-lang/trublog-writer/internal/storage"
)

// DefaultSitemapTimeout bounds a single sitemap request.
const DefaultSitemapTimeout = 30 * time.Second

// OutcomeKind classifies a fetched sitemap.
type OutcomeKind int

const (
	// OutcomeEmpty covers every failure: network, status, bot wall, empty body.
	OutcomeEmpty OutcomeKind = iota
	// OutcomeIndex is a <sitemapindex>; Children holds its <loc> values.
	OutcomeIndex
	// OutcomePages is a <urlset>; Records holds the kept pages.
	OutcomePages
)

func (k OutcomeKind) String() string {
	switch k {
	case OutcomeIndex:
		return "index"
	case OutcomePages:
		return "pages"
	default:
		return "empty"
	}
}

// Outcome is the result of fetching one sitemap URL.
type Outcome struct {
	Kind     OutcomeKind
	Children []string
	Records  []storage.PageRecord
}

var (
	indexPattern = regexp.MustCompile(`(?i)<(?:\w+:)?sitemapindex[\s>]`)
	locPattern   = regexp.MustCompile(`(?is)<(?:\w+:)?loc>\s*(?:<!\[CDATA\[)?\s*(.*?)\s*(?:\]\]>)?\s*</(?:\w+:)?loc>`)
)

// SitemapFetcher fetches one sitemap and classifies it. It holds no per-crawl
// state and is safe for concurrent use.
type SitemapFetcher struct {
	fetcher    *Fetcher
	classifier *classify.Classifier
	timeout    time.Duration
	logger     *slog.Logger
}

// NewSitemapFetcher initializes a new SitemapFetcher. A nil classifier uses
// classify.Default(); a zero timeout uses DefaultSitemapTimeout.
func NewSitemapFetcher(fetcher *Fetcher, classifier *classify.Classifier, timeout time.Duration, logger *slog.Logger) *SitemapFetcher {
	if logger == nil {
		logger = slog.Default()
	}
	if classifier == nil {
		classifier = classify.Default()
	}
	if timeout <= 0 {
		timeout = DefaultSitemapTimeout
	}
	return &SitemapFetcher{
		fetcher:    fetcher,
		classifier: classifier,
		timeout:    timeout,
		logger:     logger,
	}
}

// Fetch retrieves sitemapURL and returns its outcome. It never fails: any
// problem is reported as OutcomeEmpty.
func (s *SitemapFetcher) Fetch(ctx context.Context, sitemapURL, domain string) Outcome {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	res := s.fetcher.Fetch(ctx, sitemapURL)
	host := hostOf(sitemapURL)

	switch {
	case res.Error != "":
		s.logger.Debug("sitemap fetch failed", "url", sitemapURL, "err", res.Error)
		metrics.RecordFetch(host, "error", res.Duration, 0)
		return Outcome{Kind: OutcomeEmpty}
	case res.Blocked:
		s.logger.Info("sitemap blocked by bot protection", "url", sitemapURL, "source", res.BlockedBy, "status", res.StatusCode)
		metrics.RecordFetch(host, "blocked", res.Duration, len(res.Body))
		return Outcome{Kind: OutcomeEmpty}
	case !res.OK():
		s.logger.Debug("sitemap unavailable", "url", sitemapURL, "status", res.StatusCode)
		metrics.RecordFetch(host, "empty", res.Duration, len(res.Body))
		return Outcome{Kind: OutcomeEmpty}
	}

	out := s.classifyBody(sitemapURL, domain, res.Body)
	metrics.RecordFetch(host, out.Kind.String(), res.Duration, len(res.Body))
	s.logger.Debug("sitemap fetched", "url", sitemapURL, "kind", out.Kind.String(),
		"children", len(out.Children), "records", len(out.Records))
	return out
}

func (s *SitemapFetcher) classifyBody(sitemapURL, domain string, body []byte) Outcome {
	base, _ := url.Parse(sitemapURL)

	if indexPattern.Match(body) {
		locs := parseIndexLocs(body)
		children := make([]string, 0, len(locs))
		for _, loc := range locs {
			if abs, ok := resolveLoc(base, loc); ok {
				children = append(children, abs)
			}
		}
		return Outcome{Kind: OutcomeIndex, Children: children}
	}

	var records []storage.PageRecord
	for _, loc := range parseURLSetLocs(body) {
		abs, ok := resolveLoc(base, loc)
		if !ok || !s.classifier.Keep(abs) {
			continue
		}
		records = append(records, storage.PageRecord{
			URL:    abs,
			Slug:   classify.Slug(abs),
			Domain: domain,
		})
	}
	return Outcome{Kind: OutcomePages, Records: records}
}

// parseIndexLocs reads <sitemap><loc> entries with the streaming parser and
// falls back to a regex scan when the document is not well-formed or an entry
// had no <loc> the parser could match.
func parseIndexLocs(body []byte) []string {
	var (
		locs   []string
		missed bool
	)
	err := sitemap.ParseIndex(bytes.NewReader(body), func(e sitemap.IndexEntry) error {
		if loc := e.GetLocation(); loc != "" {
			locs = append(locs, loc)
		} else {
			missed = true
		}
		return nil
	})
	if err != nil || missed || len(locs) == 0 {
		return scanLocs(body)
	}
	return locs
}

// parseURLSetLocs is parseIndexLocs for <urlset> documents.
func parseURLSetLocs(body []byte) []string {
	var (
		locs   []string
		missed bool
	)
	err := sitemap.Parse(bytes.NewReader(body), func(e sitemap.Entry) error {
		if loc := e.GetLocation(); loc != "" {
			locs = append(locs, loc)
		} else {
			missed = true
		}
		return nil
	})
	if err != nil || missed || len(locs) == 0 {
		return scanLocs(body)
	}
	return locs
}

// scanLocs extracts every <loc> value, tolerating broken markup, CDATA and
// HTML entities.
func scanLocs(body []byte) []string {
	matches := locPattern.FindAllSubmatch(body, -1)
	locs := make([]string, 0, len(matches))
	for _, m := range matches {
		if loc := html.UnescapeString(string(m[1])); loc != "" {
			locs = append(locs, loc)
		}
	}
	return locs
}

// resolveLoc trims a <loc> value, resolves it against the sitemap URL and
// rejects anything that is not http(s).
func resolveLoc(base *url.URL, loc string) (string, bool) {
	loc = strings.TrimSpace(loc)
	if loc == "" {
		return "", false
	}
	u, err := url.Parse(loc)
	if err != nil {
		return "", false
	}
	if !u.IsAbs() {
		if base == nil {
			return "", false
		}
		u = base.ResolveReference(u)
		loc = u.String()
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return "", false
	}
	return loc, true
}
