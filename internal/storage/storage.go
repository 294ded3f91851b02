package storage

import (
	"context"
	"time"
)

// PageRecord is one in-scope page discovered in a sitemap.
type PageRecord struct {
	URL    string `json:"url"`
	Slug   string `json:"slug"`
	Domain string `json:"domain"`
}

// Snapshot is a persisted harvest of a single domain.
type Snapshot struct {
	ID              string        `json:"id"`
	Domain          string        `json:"domain"`
	Company         string        `json:"company,omitempty"`
	Pages           []PageRecord  `json:"pages"`
	SitemapsVisited int           `json:"sitemaps_visited"`
	StopReason      string        `json:"stop_reason"`
	Duration        time.Duration `json:"duration"`
	CreatedAt       time.Time     `json:"created_at"`

	// IncludeSubdomains and MaxURLs record how the harvest was scoped so a
	// cached snapshot is only reused for the same request.
	IncludeSubdomains bool `json:"include_subdomains"`
	MaxURLs           int  `json:"max_urls,omitempty"`
}

// Filter narrows a snapshot query. Results are always newest first.
type Filter struct {
	Domain string
	Since  *time.Time
	Limit  int
	Offset int
}

// Match reports whether s passes the Domain and Since conditions of f.
// File backends use it to filter in memory.
func (f Filter) Match(s *Snapshot) bool {
	if f.Domain != "" && s.Domain != f.Domain {
		return false
	}
	if f.Since != nil && s.CreatedAt.Before(*f.Since) {
		return false
	}
	return true
}

// Page applies Offset and Limit to an already ordered slice.
func (f Filter) Page(snaps []*Snapshot) []*Snapshot {
	if f.Offset > 0 {
		if f.Offset >= len(snaps) {
			return []*Snapshot{}
		}
		snaps = snaps[f.Offset:]
	}
	if f.Limit > 0 && f.Limit < len(snaps) {
		snaps = snaps[:f.Limit]
	}
	return snaps
}

// Backend stores harvested snapshots and serves them back as a local cache.
type Backend interface {
	Save(ctx context.Context, snap *Snapshot) error
	Query(ctx context.Context, filter Filter) ([]*Snapshot, error)
	Close() error
}
