// Package cache implements the optional ReportCache: a two-tier
// (local, then Redis) cache of the latest billing/aging snapshot,
// refreshed each time the orchestrator builds a stats snapshot. Nothing
// calls Invalidate automatically. Never on a correctness path — a miss
// or a Redis outage simply means the caller recomputes the snapshot.
//
// Grounded on internal/portfolio.Manager's in-memory-then-redis
// read-through pattern, trimmed to two tiers (no database tier here).
package cache

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

const snapshotKey = "claimsim:snapshot"

// ReportCache caches an arbitrary JSON-serializable snapshot.
type ReportCache struct {
	redis *redis.Client
	ttl   time.Duration

	mu    sync.RWMutex
	local []byte
}

// New builds a ReportCache. Passing a nil client degrades to a local
// in-memory-only cache with the same interface.
func New(client *redis.Client, ttl time.Duration) *ReportCache {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &ReportCache{redis: client, ttl: ttl}
}

// Set stores snapshot, serialized as JSON, in both tiers.
func (c *ReportCache) Set(ctx context.Context, snapshot any) error {
	data, err := json.Marshal(snapshot)
	if err != nil {
		return err
	}

	c.mu.Lock()
	c.local = data
	c.mu.Unlock()

	if c.redis == nil {
		return nil
	}
	return c.redis.Set(ctx, snapshotKey, data, c.ttl).Err()
}

// Get unmarshals the cached snapshot into out, reporting whether a
// cached value was found (local first, then Redis).
func (c *ReportCache) Get(ctx context.Context, out any) bool {
	c.mu.RLock()
	data := c.local
	c.mu.RUnlock()

	if data != nil {
		return json.Unmarshal(data, out) == nil
	}

	if c.redis == nil {
		return false
	}

	raw, err := c.redis.Get(ctx, snapshotKey).Bytes()
	if err != nil {
		return false
	}

	c.mu.Lock()
	c.local = raw
	c.mu.Unlock()

	return json.Unmarshal(raw, out) == nil
}

// Invalidate clears both tiers.
func (c *ReportCache) Invalidate(ctx context.Context) {
	c.mu.Lock()
	c.local = nil
	c.mu.Unlock()

	if c.redis != nil {
		c.redis.Del(ctx, snapshotKey)
	}
}
