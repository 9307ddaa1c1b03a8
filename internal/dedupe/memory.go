package dedupe

import (
	"context"
	"sync"
	"time"
)

// MemoryCache is a process-local Cache.
type MemoryCache struct {
	mu    sync.Mutex
	ttl   time.Duration
	items map[string]time.Time // key -> expiry; zero means no expiry
	now   func() time.Time
}

// NewMemoryCache creates a MemoryCache. A non-positive ttl never expires.
func NewMemoryCache(ttl time.Duration) *MemoryCache {
	return &MemoryCache{ttl: ttl, items: map[string]time.Time{}, now: time.Now}
}

// Seen implements Cache.
func (c *MemoryCache) Seen(_ context.Context, key string) (bool, error) {
	now := c.now()

	c.mu.Lock()
	defer c.mu.Unlock()

	if exp, ok := c.items[key]; ok && (exp.IsZero() || now.Before(exp)) {
		return true, nil
	}
	var exp time.Time
	if c.ttl > 0 {
		exp = now.Add(c.ttl)
	}
	c.items[key] = exp
	if len(c.items)%1024 == 0 {
		c.sweep(now)
	}
	return false, nil
}

// Forget implements Cache.
func (c *MemoryCache) Forget(_ context.Context, key string) error {
	c.mu.Lock()
	delete(c.items, key)
	c.mu.Unlock()
	return nil
}

// Len returns the number of remembered keys, expired ones included.
func (c *MemoryCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.items)
}

// Close implements Cache.
func (c *MemoryCache) Close() error { return nil }

func (c *MemoryCache) sweep(now time.Time) {
	for k, exp := range c.items {
		if !exp.IsZero() && !now.Before(exp) {
			delete(c.items, k)
		}
	}
}
