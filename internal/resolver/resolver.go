// Package resolver maps a company or product name to its primary web domain.
package resolver

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/tania-lang/trublog-writer/internal/classify"
	"github.com/tania-lang/trublog-writer/internal/llm"
	"golang.org/x/sync/singleflight"
)

// Resolver looks up the domain for a company name. ok is false whenever no
// usable domain could be found; failures are never reported as errors.
type Resolver interface {
	Resolve(ctx context.Context, name string) (domain string, ok bool)
}

// Func adapts a plain function to Resolver.
type Func func(ctx context.Context, name string) (string, bool)

func (f Func) Resolve(ctx context.Context, name string) (string, bool) {
	return f(ctx, name)
}

const promptTemplate = `Find the official website domain for the company/product "%s".

Important: Many companies don't use simple .com domains. Examples:
- Scribe (documentation tool) = scribehow.com (NOT scribe.com)
- Notion = notion.so
- Figma = figma.com
- Loom = loom.com
- Canva = canva.com
- Synthesia = synthesia.io
- Guidde = guidde.com

Think about what type of product/company "%s" is and find their ACTUAL official domain.

Return ONLY the exact domain (e.g., "scribehow.com"), nothing else. No explanation.`

// LLMResolver asks a language model for the domain.
type LLMResolver struct {
	completer llm.Completer
	logger    *slog.Logger
}

// NewLLMResolver creates an LLMResolver.
func NewLLMResolver(completer llm.Completer, logger *slog.Logger) *LLMResolver {
	if logger == nil {
		logger = slog.Default()
	}
	return &LLMResolver{completer: completer, logger: logger}
}

func (r *LLMResolver) Resolve(ctx context.Context, name string) (string, bool) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", false
	}

	reply, err := r.completer.Complete(ctx, fmt.Sprintf(promptTemplate, name, name))
	if err != nil {
		r.logger.Warn("domain lookup failed", "company", name, "err", err)
		return "", false
	}

	domain := cleanReply(reply)
	if domain == "" {
		r.logger.Warn("domain lookup returned nothing usable", "company", name, "reply", reply)
		return "", false
	}
	r.logger.Debug("domain resolved", "company", name, "domain", domain)
	return domain, true
}

// cleanReply reduces a model reply to a bare domain: the first token, without
// scheme, www. prefix, slashes or trailing punctuation. A result without a
// dot is rejected.
func cleanReply(reply string) string {
	d := strings.ToLower(strings.TrimSpace(reply))
	d = strings.NewReplacer("https://", "", "http://", "", "www.", "").Replace(d)
	d = strings.Trim(d, "/")
	fields := strings.Fields(d)
	if len(fields) == 0 {
		return ""
	}
	d = strings.TrimRight(fields[0], ".,;:")
	d = strings.Trim(d, "\"'`")

	d, err := classify.NormalizeDomain(d)
	if err != nil || !strings.Contains(d, ".") {
		return ""
	}
	return d
}

type result struct {
	domain string
	ok     bool
}

// Cached memoizes another Resolver in memory, including misses. Concurrent
// lookups of the same name share one upstream call.
type Cached struct {
	next  Resolver
	group singleflight.Group

	mu      sync.RWMutex
	entries map[string]result
}

// NewCached wraps next.
func NewCached(next Resolver) *Cached {
	return &Cached{next: next, entries: make(map[string]result)}
}

func (c *Cached) Resolve(ctx context.Context, name string) (string, bool) {
	key := strings.ToLower(strings.TrimSpace(name))

	c.mu.RLock()
	r, hit := c.entries[key]
	c.mu.RUnlock()
	if hit {
		return r.domain, r.ok
	}

	v, _, _ := c.group.Do(key, func() (interface{}, error) {
		domain, ok := c.next.Resolve(ctx, name)
		res := result{domain: domain, ok: ok}
		// A cancelled lookup says nothing about the name.
		if ctx.Err() == nil {
			c.mu.Lock()
			c.entries[key] = res
			c.mu.Unlock()
		}
		return res, nil
	})
	res := v.(result)
	return res.domain, res.ok
}
