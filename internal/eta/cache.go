package eta

import (
	"context"
	"sync"
	"time"

	"github.com/example/ride-booking/internal/models"
)

// DurationCache stores successful route lookups.
type DurationCache interface {
	Get(ctx context.Context, from, to models.Coordinate) (time.Duration, bool)
	Set(ctx context.Context, from, to models.Coordinate, d time.Duration)
}

// Cache is a tiny in-memory cache for route durations keyed by coords.
type Cache struct {
	mu    sync.RWMutex
	store map[string]cacheEntry
	ttl   time.Duration
	now   func() time.Time
}

type cacheEntry struct {
	v  time.Duration
	ts time.Time
}

// NewCache creates a cache with the provided TTL.
func NewCache(ttl time.Duration) *Cache {
	return &Cache{store: make(map[string]cacheEntry), ttl: ttl, now: time.Now}
}

func keyFor(a, b models.Coordinate) string {
	return a.String() + "->" + b.String()
}

// Get returns cached value and true if present and not expired.
func (c *Cache) Get(_ context.Context, a, b models.Coordinate) (time.Duration, bool) {
	k := keyFor(a, b)
	c.mu.RLock()
	e, ok := c.store[k]
	c.mu.RUnlock()
	if !ok {
		return 0, false
	}
	if c.now().Sub(e.ts) > c.ttl {
		c.mu.Lock()
		delete(c.store, k)
		c.mu.Unlock()
		return 0, false
	}
	return e.v, true
}

func (c *Cache) Set(_ context.Context, a, b models.Coordinate, v time.Duration) {
	k := keyFor(a, b)
	c.mu.Lock()
	c.store[k] = cacheEntry{v: v, ts: c.now()}
	c.mu.Unlock()
}

// CachingProvider consults Cache before calling the wrapped provider. Only
// successful lookups are cached; failures always reach the caller.
type CachingProvider struct {
	Next  Provider
	Cache DurationCache
}

func (p *CachingProvider) TravelTime(ctx context.Context, from, to models.Coordinate) (time.Duration, error) {
	if d, ok := p.Cache.Get(ctx, from, to); ok {
		return d, nil
	}
	d, err := p.Next.TravelTime(ctx, from, to)
	if err != nil {
		return 0, err
	}
	p.Cache.Set(ctx, from, to, d)
	return d, nil
}
