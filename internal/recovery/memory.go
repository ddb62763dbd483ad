package recovery

import (
	"context"
	"sync"
	"time"
)

// MemoryCache is an in-memory Cache implementation. Records do not survive a
// process restart; use SQLiteCache where that matters.
type MemoryCache struct {
	mu   sync.RWMutex
	m    map[string]Record
	ttl  time.Duration
	nowF func() time.Time
}

// NewMemoryCache returns a new in-memory recovery cache with the given TTL.
// ttl <= 0 uses DefaultTTL.
func NewMemoryCache(ttl time.Duration) *MemoryCache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &MemoryCache{
		m:    make(map[string]Record),
		ttl:  ttl,
		nowF: time.Now().UTC,
	}
}

// Put stores rec for accountID. An existing record is overwritten; callers
// only write once per signup, so this only matters for retried signups.
func (c *MemoryCache) Put(ctx context.Context, accountID string, rec Record) error {
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = c.nowF()
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.m[accountID] = rec
	return nil
}

// Get returns the record for accountID, or (nil, nil) when missing or older
// than the TTL. Expired records are left in place.
func (c *MemoryCache) Get(ctx context.Context, accountID string) (*Record, error) {
	c.mu.RLock()
	rec, ok := c.m[accountID]
	c.mu.RUnlock()
	if !ok {
		return nil, nil
	}
	if c.nowF().Sub(rec.CreatedAt) > c.ttl {
		return nil, nil
	}
	cp := rec
	return &cp, nil
}

// Delete removes the record for accountID. Deleting a missing record is a no-op.
func (c *MemoryCache) Delete(ctx context.Context, accountID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.m, accountID)
	return nil
}
