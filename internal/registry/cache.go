package registry

import (
	"context"
	"sync"
	"time"
)

// Cache keeps a snapshot for at most ttl. Invalidate drops it immediately and
// also discards any load that was in flight when it was called. A zero ttl
// disables caching so every request loads fresh.
type Cache struct {
	ttl time.Duration
	now func() time.Time

	mu       sync.Mutex
	snap     *Snapshot
	loadedAt time.Time
	gen      uint64
}

// NewCache constructs a Cache.
func NewCache(ttl time.Duration) *Cache {
	return &Cache{ttl: ttl, now: time.Now}
}

// Get returns the cached snapshot or calls load.
func (c *Cache) Get(ctx context.Context, load func(context.Context) (*Snapshot, error)) (*Snapshot, error) {
	if c == nil {
		return load(ctx)
	}
	c.mu.Lock()
	if c.ttl <= 0 {
		c.mu.Unlock()
		return load(ctx)
	}
	if c.snap != nil && c.now().Sub(c.loadedAt) < c.ttl {
		snap := c.snap
		c.mu.Unlock()
		return snap, nil
	}
	gen := c.gen
	c.mu.Unlock()

	snap, err := load(ctx)
	if err != nil {
		return nil, err
	}
	c.mu.Lock()
	if c.gen == gen {
		c.snap = snap
		c.loadedAt = c.now()
	}
	c.mu.Unlock()
	return snap, nil
}

// Invalidate drops the cached snapshot.
func (c *Cache) Invalidate() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.snap = nil
	c.gen++
	c.mu.Unlock()
}

// Disable drops the cached snapshot and turns caching off for the rest of
// the process.
func (c *Cache) Disable() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.ttl = 0
	c.snap = nil
	c.gen++
	c.mu.Unlock()
}
