// Package ratelimit spaces out requests, globally or per host, with optional jitter.
package ratelimit

import (
	"context"
	"math/rand"
	"sync"
	"time"
)

// Limiter hands out request slots at most rps per second. Callers reserve the
// next slot under a lock and sleep outside it, so concurrent waiters queue in
// arrival order. It is safe for concurrent use.
type Limiter struct {
	mu       sync.Mutex
	interval time.Duration
	jitter   float64 // 0.0 to 1.0
	next     time.Time
}

// NewLimiter creates a limiter. rps <= 0 disables limiting; jitter is clamped
// to [0, 1] and stretches each gap by up to jitter*interval.
func NewLimiter(rps float64, jitter float64) *Limiter {
	if jitter < 0 {
		jitter = 0
	} else if jitter > 1 {
		jitter = 1
	}
	l := &Limiter{jitter: jitter}
	if rps > 0 {
		l.interval = time.Duration(float64(time.Second) / rps)
	}
	return l
}

// Enabled reports whether Wait can ever block.
func (l *Limiter) Enabled() bool {
	return l != nil && l.interval > 0
}

// Wait blocks until the caller's slot arrives or ctx is done. A cancelled
// waiter gives its slot up only if nobody reserved after it.
func (l *Limiter) Wait(ctx context.Context) error {
	if !l.Enabled() {
		return ctx.Err()
	}

	l.mu.Lock()
	now := time.Now()
	slot := l.next
	if slot.Before(now) {
		slot = now
	}
	gap := l.interval
	if l.jitter > 0 {
		gap += time.Duration(float64(l.interval) * l.jitter * rand.Float64())
	}
	l.next = slot.Add(gap)
	reserved := l.next
	l.mu.Unlock()

	delay := time.Until(slot)
	if delay <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(delay)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		l.mu.Lock()
		if l.next.Equal(reserved) {
			l.next = slot
		}
		l.mu.Unlock()
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// HostLimiter keeps one Limiter per host so subdomains of a site are paced
// independently.
type HostLimiter struct {
	rps    float64
	jitter float64

	mu    sync.Mutex
	hosts map[string]*Limiter
}

// NewHostLimiter creates a per-host limiter with the same settings for every host.
func NewHostLimiter(rps, jitter float64) *HostLimiter {
	return &HostLimiter{
		rps:    rps,
		jitter: jitter,
		hosts:  make(map[string]*Limiter),
	}
}

// Wait blocks until a slot for host is available.
func (h *HostLimiter) Wait(ctx context.Context, host string) error {
	if h == nil || h.rps <= 0 {
		return ctx.Err()
	}
	return h.limiter(host).Wait(ctx)
}

func (h *HostLimiter) limiter(host string) *Limiter {
	h.mu.Lock()
	defer h.mu.Unlock()
	l, ok := h.hosts[host]
	if !ok {
		l = NewLimiter(h.rps, h.jitter)
		h.hosts[host] = l
	}
	return l
}
