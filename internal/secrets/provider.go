// Package secrets implements the Secret Provider (C4): a chained lookup
// over an ordered list of backends, first-non-empty-wins, with a
// process-scoped TTL cache. It follows a chain-of-responsibility shape
// and a fallback-handler TTL cache pattern, generalized
// from a single Manager-backed lookup to an arbitrary ordered Backend list.
package secrets

import (
	"context"
	"sync"
	"time"

	pipelineerrors "github.com/R3E-Network/assoc-pipeline/internal/errors"
)

// Backend resolves a single named secret, returning ("", nil) when the
// backend has no opinion on the key (not an error — the chain moves on to
// the next backend).
type Backend interface {
	Name() string
	Lookup(ctx context.Context, key string) (string, error)
}

type cacheEntry struct {
	value string
	expiration time.Time
}

// Provider is the chained, TTL-cached secret lookup. Backends are
// tried in order; the first to return a non-empty value wins and that
// value is cached under key for ttl.
type Provider struct {
	backends []Backend
	ttl time.Duration

	mu sync.RWMutex
	cache map[string]cacheEntry
}

// New builds a Provider over backends, tried in the given order. ttl <= 0
// falls back to a default of 300s.
func New(ttl time.Duration, backends...Backend) *Provider {
	if ttl <= 0 {
		ttl = 300 * time.Second
	}
	return &Provider{
		backends: backends,
		ttl: ttl,
		cache: make(map[string]cacheEntry),
	}
}

// Get resolves key through the backend chain, consulting the cache first.
// A cache hit never re-queries a backend; rotation is implicit via TTL
// expiry, per the ("no cache invalidation API").
func (p *Provider) Get(ctx context.Context, key string) (string, error) {
	if v, ok := p.cacheLookup(key); ok {
		return v, nil
	}

	for _, b := range p.backends {
		v, err := b.Lookup(ctx, key)
		if err != nil {
			return "", pipelineerrors.TransientErr("secret backend lookup failed", err).
				WithDetails("backend", b.Name()).WithDetails("key", key)
		}
		if v != "" {
			p.cacheStore(key, v)
			return v, nil
		}
	}
	return "", nil
}

// RequireAll resolves every key in keys, returning a present/absent map
// (values themselves are never included — callers use Get for the value)
// for the startup health summary of the, which must record presence
// without logging secret material.
func (p *Provider) RequireAll(ctx context.Context, keys []string) (map[string]bool, error) {
	out := make(map[string]bool, len(keys))
	for _, k := range keys {
		v, err := p.Get(ctx, k)
		if err != nil {
			return nil, err
		}
		out[k] = v != ""
	}
	return out, nil
}

func (p *Provider) cacheLookup(key string) (string, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	entry, ok := p.cache[key]
	if !ok {
		return "", false
	}
	if time.Now().After(entry.expiration) {
		return "", false
	}
	return entry.value, true
}

func (p *Provider) cacheStore(key, value string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.cache[key] = cacheEntry{value: value, expiration: time.Now().Add(p.ttl)}
}

// ResetCache clears every cached entry. Exposed only for tests, addressing
// the Open Question in spec the ("secret caching across test boundaries is
// a repeated source of flakiness").
func (p *Provider) ResetCache() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.cache = make(map[string]cacheEntry)
}
