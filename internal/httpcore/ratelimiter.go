// Package httpcore implements the Rate-Limited HTTP Core (C1): a per-host
// token-bucket limiter composed with a per-host circuit breaker and a
// bounded retry policy (one limiter per key, held in a map under a mutex,
// generalized from a single fixed rate to a per-host configurable one).
package httpcore

import (
	"context"
	"sync"

	"golang.org/x/time/rate"
)

// HostLimiter hands out one token-bucket limiter per host, creating it
// lazily on first use and keying limiters by host instead of by caller
// identity.
type HostLimiter struct {
	mu sync.RWMutex
	limiters map[string]*rate.Limiter
	defaultRate float64
}

// NewHostLimiter creates a HostLimiter; defaultRate applies to any host
// that has no override — buckets for unknown hosts use this default rate.
func NewHostLimiter(defaultRate float64) *HostLimiter {
	if defaultRate <= 0 {
		defaultRate = 2
	}
	return &HostLimiter{
		limiters: make(map[string]*rate.Limiter),
		defaultRate: defaultRate,
	}
}

func capacityFor(r float64) int {
	c := int(r + 0.999999)
	if c < 1 {
		c = 1
	}
	return c
}

func (h *HostLimiter) getOrCreate(host string) *rate.Limiter {
	h.mu.RLock()
	l, ok := h.limiters[host]
	h.mu.RUnlock()
	if ok {
		return l
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if l, ok := h.limiters[host]; ok {
		return l
	}
	l = rate.NewLimiter(rate.Limit(h.defaultRate), capacityFor(h.defaultRate))
	h.limiters[host] = l
	return l
}

// SetRate overrides the rate for a specific host (e.g. from per-agent
// config), creating a fresh bucket at the new rate.
func (h *HostLimiter) SetRate(host string, requestsPerSecond float64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.limiters[host] = rate.NewLimiter(rate.Limit(requestsPerSecond), capacityFor(requestsPerSecond))
}

// Wait blocks the caller until one token for host is available, or
// returns ctx.Err immediately if ctx is cancelled first — cancellation
// wakes the waiter immediately. Acquisition is first-come-first-served
// within a host because golang.org/x/time/rate.Limiter.Wait() queues
// reservations in call order.
func (h *HostLimiter) Wait(ctx context.Context, host string) error {
	return h.getOrCreate(host).Wait(ctx)
}

// LimiterCount reports the number of distinct host buckets currently held,
// used by tests.
func (h *HostLimiter) LimiterCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.limiters)
}
