package cache

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/bradfitz/gomemcache/memcache"
)

// maxRelativeExp is the largest expiration memcached treats as relative seconds.
const maxRelativeExp = 30 * 24 * 60 * 60

// MemcachedPool is a memcached client shared by every typed cache.
type MemcachedPool struct {
	client *memcache.Client
}

// NewMemcachedPool connects to addrs, a comma-separated server list
// (e.g. "localhost:11211" or "host1:11211,host2:11211"). Zero timeout and
// maxIdleConns keep the package defaults.
func NewMemcachedPool(addrs string, timeout time.Duration, maxIdleConns int) *MemcachedPool {
	servers := parseAddrs(addrs)
	if len(servers) == 0 {
		servers = []string{"localhost:11211"}
	}
	client := memcache.New(servers...)
	if timeout > 0 {
		client.Timeout = timeout
	}
	if maxIdleConns > 0 {
		client.MaxIdleConns = maxIdleConns
	}
	return &MemcachedPool{client: client}
}

func parseAddrs(s string) []string {
	var out []string
	for _, a := range strings.Split(s, ",") {
		a = strings.TrimSpace(a)
		if a != "" {
			out = append(out, a)
		}
	}
	return out
}

// Ping checks if memcached is reachable. Used for health checks.
func (p *MemcachedPool) Ping() error {
	return p.client.Ping()
}

// Close closes the memcached client connections. Call during shutdown.
func (p *MemcachedPool) Close() error {
	return p.client.Close()
}

// MemcachedCache implements Cache on memcached, JSON-encoding values under a key prefix.
type MemcachedCache[V any] struct {
	pool   *MemcachedPool
	prefix string
}

// NewMemcachedCache returns a typed view over pool. prefix namespaces keys ("forecast:").
func NewMemcachedCache[V any](pool *MemcachedPool, prefix string) *MemcachedCache[V] {
	return &MemcachedCache[V]{pool: pool, prefix: prefix}
}

func (c *MemcachedCache[V]) key(k string) string {
	return c.prefix + k
}

// Get implements Cache.Get.
func (c *MemcachedCache[V]) Get(ctx context.Context, key string) (V, bool, error) {
	var zero V
	if err := ctx.Err(); err != nil {
		return zero, false, err
	}
	item, err := c.pool.client.Get(c.key(key))
	if err != nil {
		if errors.Is(err, memcache.ErrCacheMiss) {
			return zero, false, nil
		}
		return zero, false, err
	}
	var v V
	if err := json.Unmarshal(item.Value, &v); err != nil {
		return zero, false, err
	}
	return v, true, nil
}

// Set implements Cache.Set. TTLs under one second or beyond 30 days are clamped.
func (c *MemcachedCache[V]) Set(ctx context.Context, key string, value V, ttl time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if ttl <= 0 {
		return nil
	}
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return c.pool.client.Set(&memcache.Item{
		Key:        c.key(key),
		Value:      raw,
		Expiration: expirationSeconds(ttl),
	})
}

// Delete implements Cache.Delete. Deleting an absent key is not an error.
func (c *MemcachedCache[V]) Delete(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	err := c.pool.client.Delete(c.key(key))
	if errors.Is(err, memcache.ErrCacheMiss) {
		return nil
	}
	return err
}

func expirationSeconds(ttl time.Duration) int32 {
	sec := int64(ttl / time.Second)
	if sec < 1 {
		return 1
	}
	if sec > maxRelativeExp {
		return maxRelativeExp
	}
	return int32(sec)
}
