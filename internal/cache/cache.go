package cache

import (
	"context"
	"time"

	gocache "github.com/patrickmn/go-cache"
)

// Cache stores query results by key with a per-entry TTL.
// Get returns (value, true, nil) on a live hit and (zero, false, nil) on a miss or expiry.
type Cache[V any] interface {
	Get(ctx context.Context, key string) (V, bool, error)
	Set(ctx context.Context, key string, value V, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}

// InMemoryCache implements Cache on a process-local go-cache store. Safe for concurrent use.
type InMemoryCache[V any] struct {
	items *gocache.Cache
}

// NewInMemoryCache creates an in-memory cache. Expired entries are purged every cleanupInterval
// (never when cleanupInterval <= 0; they are still hidden from Get).
func NewInMemoryCache[V any](cleanupInterval time.Duration) *InMemoryCache[V] {
	return &InMemoryCache[V]{items: gocache.New(gocache.NoExpiration, cleanupInterval)}
}

// Get implements Cache.Get.
func (c *InMemoryCache[V]) Get(ctx context.Context, key string) (V, bool, error) {
	var zero V
	raw, ok := c.items.Get(key)
	if !ok {
		return zero, false, nil
	}
	v, ok := raw.(V)
	if !ok {
		return zero, false, nil
	}
	return v, true, nil
}

// Set implements Cache.Set. A non-positive ttl stores nothing.
func (c *InMemoryCache[V]) Set(ctx context.Context, key string, value V, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	c.items.Set(key, value, ttl)
	return nil
}

// Delete implements Cache.Delete.
func (c *InMemoryCache[V]) Delete(ctx context.Context, key string) error {
	c.items.Delete(key)
	return nil
}

// Len returns the number of stored entries, including expired ones not yet purged.
func (c *InMemoryCache[V]) Len() int {
	return c.items.ItemCount()
}
