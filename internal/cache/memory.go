package cache

import (
	"context"
	"sync"
	"time"
)

type memEntry struct {
	data     []byte
	storedAt time.Time
	ttl      time.Duration
}

func (e memEntry) expired(now time.Time) bool {
	return now.Sub(e.storedAt) > e.ttl
}

// MemoryCache is an in-process TTL map.
//
// Expired entries are removed when a read observes them and swept on every
// write, so no background goroutine is needed. Contents do not survive a
// restart.
type MemoryCache struct {
	mu    sync.Mutex
	items map[string]memEntry
	now   func() time.Time
}

type MemoryOption func(*MemoryCache)

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) MemoryOption {
	return func(c *MemoryCache) { c.now = now }
}

func NewMemoryCache(opts ...MemoryOption) *MemoryCache {
	c := &MemoryCache{
		items: make(map[string]memEntry),
		now:   time.Now,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Get returns the value for key while now - storedAt <= ttl.
func (c *MemoryCache) Get(_ context.Context, key string) ([]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.items[key]
	if !ok {
		return nil, false
	}
	if e.expired(c.now()) {
		delete(c.items, key)
		return nil, false
	}
	return e.data, true
}

// Set stores value under key. A non-positive ttl falls back to DefaultTTL.
func (c *MemoryCache) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = DefaultTTL
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	for k, e := range c.items {
		if e.expired(now) {
			delete(c.items, k)
		}
	}
	c.items[key] = memEntry{data: value, storedAt: now, ttl: ttl}
	return nil
}

func (c *MemoryCache) Delete(_ context.Context, key string) error {
	c.mu.Lock()
	delete(c.items, key)
	c.mu.Unlock()
	return nil
}

// Len counts stored entries, including expired ones not yet evicted.
func (c *MemoryCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.items)
}
