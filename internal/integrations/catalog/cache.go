package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"sales-copilot/internal/domain"
)

const (
	defaultCacheKey = "copilot:catalog:items"
	defaultCacheTTL = 5 * time.Minute
)

type ItemLister interface {
	ListItems(ctx context.Context) ([]domain.CatalogItem, error)
}

// Cache wraps an ItemLister with a shared Redis copy of the catalog listing.
// Redis failures never fail a read; they fall through to the lister.
type Cache struct {
	next ItemLister
	rdb  redis.Cmdable
	key  string
	ttl  time.Duration
	log  *slog.Logger
}

type CacheOption func(*Cache)

func WithCacheKey(key string) CacheOption {
	return func(c *Cache) {
		if key != "" {
			c.key = key
		}
	}
}

func WithLogger(log *slog.Logger) CacheOption {
	return func(c *Cache) {
		if log != nil {
			c.log = log
		}
	}
}

// NewCache returns a read-through cache. ttl <= 0 uses five minutes.
func NewCache(next ItemLister, rdb redis.Cmdable, ttl time.Duration, opts ...CacheOption) (*Cache, error) {
	if next == nil {
		return nil, errors.New("catalog: item lister must not be nil")
	}
	if rdb == nil {
		return nil, errors.New("catalog: redis client must not be nil")
	}
	if ttl <= 0 {
		ttl = defaultCacheTTL
	}
	c := &Cache{next: next, rdb: rdb, key: defaultCacheKey, ttl: ttl, log: slog.Default()}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

func (c *Cache) ListItems(ctx context.Context) ([]domain.CatalogItem, error) {
	raw, err := c.rdb.Get(ctx, c.key).Bytes()
	switch {
	case err == nil:
		var items []domain.CatalogItem
		if jsonErr := json.Unmarshal(raw, &items); jsonErr == nil && items != nil {
			return items, nil
		}
		c.log.Warn("catalog cache entry unreadable", "key", c.key)
	case errors.Is(err, redis.Nil):
	default:
		c.log.Warn("catalog cache read failed", "key", c.key, "err", err)
	}

	items, err := c.next.ListItems(ctx)
	if err != nil {
		return nil, err
	}
	buf, err := json.Marshal(items)
	if err != nil {
		return items, nil
	}
	if err := c.rdb.Set(ctx, c.key, buf, c.ttl).Err(); err != nil {
		c.log.Warn("catalog cache write failed", "key", c.key, "err", err)
	}
	return items, nil
}

// Invalidate drops the cached listing so the next read refetches.
func (c *Cache) Invalidate(ctx context.Context) error {
	return c.rdb.Del(ctx, c.key).Err()
}
