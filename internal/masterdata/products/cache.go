package products

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"
)

const cacheVersionKey = "products:cache:version"

// Cache keeps product listings in redis behind a bumped version number.
// Invalidation only moves the version forward; stale entries age out on TTL
// instead of being hunted down key by key.
type Cache struct {
	rdb   *redis.Client
	ttl   time.Duration
	group singleflight.Group
}

func NewCache(rdb *redis.Client, ttl time.Duration) *Cache {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &Cache{rdb: rdb, ttl: ttl}
}

// Invalidate bumps the version so every cached listing misses from now on.
func (c *Cache) Invalidate(ctx context.Context) {
	if err := c.rdb.Incr(ctx, cacheVersionKey).Err(); err != nil {
		slog.Warn("products: cache invalidate", "error", err)
	}
}

// FetchList returns the cached listing for the filter or runs load once,
// deduplicating concurrent misses for the same key. Redis being down
// degrades to calling load directly.
func (c *Cache) FetchList(ctx context.Context, f ListFilter, load func(ctx context.Context) ([]Product, error)) ([]Product, error) {
	version, err := c.rdb.Get(ctx, cacheVersionKey).Int64()
	if err != nil && err != redis.Nil {
		slog.Warn("products: cache version", "error", err)
		return load(ctx)
	}
	key := fmt.Sprintf("products:list:v%d:%s", version, listKey(f))

	raw, err := c.rdb.Get(ctx, key).Bytes()
	if err == nil {
		var out []Product
		if err := json.Unmarshal(raw, &out); err == nil {
			return out, nil
		}
		// A corrupt entry falls through to the loader and gets rewritten.
	}

	v, err, _ := c.group.Do(key, func() (any, error) {
		out, err := load(ctx)
		if err != nil {
			return nil, err
		}
		if raw, err := json.Marshal(out); err == nil {
			if err := c.rdb.Set(ctx, key, raw, c.ttl).Err(); err != nil {
				slog.Warn("products: cache set", "error", err)
			}
		}
		return out, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]Product), nil
}

func listKey(f ListFilter) string {
	return fmt.Sprintf("s=%s;a=%t;l=%d;o=%d", f.Search, f.OnlyActive, f.Limit, f.Offset)
}
