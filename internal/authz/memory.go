package authz

import (
	"context"
	"path"
	"sync"
	"time"
)

type memoryItem struct {
	value   bool
	expires time.Time
}

// MemoryCache is a process-local Cache for tests and single-node
// deployments. Expired entries are dropped lazily on read.
type MemoryCache struct {
	mu    sync.RWMutex
	items map[string]memoryItem
	now   func() time.Time
}

// NewMemoryCache constructs an empty in-memory cache.
func NewMemoryCache() *MemoryCache {
	return &MemoryCache{
		items: make(map[string]memoryItem),
		now:   time.Now,
	}
}

// WithClock swaps the time source; used by TTL tests.
func (c *MemoryCache) WithClock(now func() time.Time) *MemoryCache {
	c.now = now
	return c
}

// Get implements Cache.
func (c *MemoryCache) Get(_ context.Context, key string) (bool, bool, error) {
	c.mu.RLock()
	item, ok := c.items[key]
	c.mu.RUnlock()
	if !ok {
		return false, false, nil
	}
	if c.now().After(item.expires) {
		c.mu.Lock()
		delete(c.items, key)
		c.mu.Unlock()
		return false, false, nil
	}
	return item.value, true, nil
}

// Set implements Cache.
func (c *MemoryCache) Set(_ context.Context, key string, value bool, ttl time.Duration) error {
	c.mu.Lock()
	c.items[key] = memoryItem{value: value, expires: c.now().Add(ttl)}
	c.mu.Unlock()
	return nil
}

// DeleteMatch implements Cache using path.Match globs. Cache keys never
// contain '/', so '*' crosses every other character.
func (c *MemoryCache) DeleteMatch(_ context.Context, pattern string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for key := range c.items {
		ok, err := path.Match(pattern, key)
		if err != nil {
			return err
		}
		if ok {
			delete(c.items, key)
		}
	}
	return nil
}

// Len reports the number of live and expired entries still held.
func (c *MemoryCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.items)
}
