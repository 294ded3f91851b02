// Package useragent rotates the User-Agent header sent with sitemap requests.
package useragent

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"strings"
	"sync/atomic"
)

// DefaultPool is a set of current desktop browser User-Agents. Some hosts
// serve sitemaps only to browser-looking clients.
var DefaultPool = []string{
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:125.0) Gecko/20100101 Firefox/125.0",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10.15; rv:125.0) Gecko/20100101 Firefox/125.0",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.4 Safari/605.1.15",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36 Edg/124.0.0.0",
}

// Strategy selects how Next walks the pool.
type Strategy string

const (
	Sequential Strategy = "sequential"
	Random     Strategy = "random"
)

// ParseStrategy maps a configuration string to a Strategy. Empty means Sequential.
func ParseStrategy(s string) (Strategy, error) {
	switch st := Strategy(strings.ToLower(strings.TrimSpace(s))); st {
	case "":
		return Sequential, nil
	case Sequential, Random:
		return st, nil
	default:
		return "", fmt.Errorf("unknown user-agent strategy %q", s)
	}
}

// Pool is a fixed list of User-Agents. It is safe for concurrent use.
type Pool struct {
	uas      []string
	strategy Strategy
	counter  atomic.Uint64
}

// NewPool creates a pool. An empty list falls back to DefaultPool.
func NewPool(uas []string, strategy Strategy) *Pool {
	if len(uas) == 0 {
		uas = DefaultPool
	}
	if strategy == "" {
		strategy = Sequential
	}
	copied := make([]string, len(uas))
	copy(copied, uas)
	return &Pool{uas: copied, strategy: strategy}
}

// Next returns a User-Agent according to the pool's strategy.
func (p *Pool) Next() string {
	if p.strategy == Random {
		return p.random()
	}
	return p.sequential()
}

func (p *Pool) sequential() string {
	if len(p.uas) == 0 {
		return ""
	}
	idx := p.counter.Add(1) - 1
	return p.uas[idx%uint64(len(p.uas))]
}

func (p *Pool) random() string {
	if len(p.uas) == 0 {
		return ""
	}
	n, err := rand.Int(rand.Reader, big.NewInt(int64(len(p.uas))))
	if err != nil {
		return p.sequential()
	}
	return p.uas[n.Int64()]
}

// All returns a copy of the pool.
func (p *Pool) All() []string {
	copied := make([]string, len(p.uas))
	copy(copied, p.uas)
	return copied
}
