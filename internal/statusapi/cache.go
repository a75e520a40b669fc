package statusapi

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
)

// StatusCache fronts the Controller's Status() snapshot with a short TTL so
// operator polling never contends a partition's mutex directly (SPEC_FULL.md
// §3's redis/go-redis/v9 entry).
type StatusCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewStatusCache builds a StatusCache against addr; pass "" to disable
// caching (Get always misses, Set is a no-op).
func NewStatusCache(addr string, ttl time.Duration) *StatusCache {
	if addr == "" {
		return &StatusCache{ttl: ttl}
	}
	return &StatusCache{
		client: redis.NewClient(&redis.Options{Addr: addr}),
		ttl:    ttl,
	}
}

const statusCacheKey = "odc:status:snapshot"

// Get returns the cached partition-state snapshot, or ok=false on a miss or
// when caching is disabled.
func (c *StatusCache) Get(ctx context.Context) (map[string]string, bool) {
	if c.client == nil {
		return nil, false
	}
	data, err := c.client.Get(ctx, statusCacheKey).Bytes()
	if err != nil {
		return nil, false
	}
	var snapshot map[string]string
	if err := json.Unmarshal(data, &snapshot); err != nil {
		return nil, false
	}
	return snapshot, true
}

// Set stores snapshot with the cache's configured TTL. Errors are
// swallowed: a cache-write failure must never fail the status request it
// is fronting.
func (c *StatusCache) Set(ctx context.Context, snapshot map[string]string) {
	if c.client == nil {
		return
	}
	data, err := json.Marshal(snapshot)
	if err != nil {
		return
	}
	c.client.Set(ctx, statusCacheKey, data, c.ttl)
}

// Close releases the underlying Redis connection, if any.
func (c *StatusCache) Close() error {
	if c.client == nil {
		return nil
	}
	return c.client.Close()
}
