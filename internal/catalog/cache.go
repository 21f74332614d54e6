package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"

	"github.com/stockplus/stockplus/internal/shared"
)

const cacheVersionKey = "stockplus:catalog:version"

// Cache is a read-through Redis cache in front of a Reader. Concurrent misses for
// the same product collapse into one upstream load.
type Cache struct {
	client *redis.Client
	next   Reader
	ttl    time.Duration
	logger *slog.Logger
	group  singleflight.Group
}

// NewCache wraps next. A nil client disables caching.
func NewCache(client *redis.Client, next Reader, ttl time.Duration, logger *slog.Logger) *Cache {
	if logger == nil {
		logger = slog.Default()
	}
	return &Cache{client: client, next: next, ttl: ttl, logger: logger}
}

// GetProduct returns the cached product or loads it from the next reader.
func (c *Cache) GetProduct(ctx context.Context, id int64) (Product, error) {
	if c.client == nil {
		return c.next.GetProduct(ctx, id)
	}
	key, err := c.key(ctx, id)
	if err != nil {
		c.logger.Warn("catalog cache version unavailable", slog.Any("error", err))
		return c.next.GetProduct(ctx, id)
	}

	payload, err := c.client.Get(ctx, key).Bytes()
	if err == nil {
		var p Product
		if err := json.Unmarshal(payload, &p); err == nil {
			return p, nil
		}
		c.logger.Warn("catalog cache entry corrupt", slog.String("key", key))
	} else if !errors.Is(err, redis.Nil) {
		c.logger.Warn("catalog cache read failed", slog.Any("error", err))
	}

	ch := c.group.DoChan(key, func() (interface{}, error) {
		p, err := c.next.GetProduct(ctx, id)
		if err != nil {
			return nil, err
		}
		if raw, err := json.Marshal(p); err == nil {
			if err := c.client.Set(ctx, key, raw, c.ttl).Err(); err != nil {
				c.logger.Warn("catalog cache write failed", slog.Any("error", err))
			}
		}
		return p, nil
	})
	select {
	case <-ctx.Done():
		return Product{}, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return Product{}, res.Err
		}
		return res.Val.(Product), nil
	}
}

// Invalidate drops the cached entry for a product.
func (c *Cache) Invalidate(ctx context.Context, id int64) error {
	if c.client == nil {
		return nil
	}
	key, err := c.key(ctx, id)
	if err != nil {
		return err
	}
	return c.client.Del(ctx, key).Err()
}

// Bump invalidates every cached product by moving to a new version.
func (c *Cache) Bump(ctx context.Context) error {
	if c.client == nil {
		return nil
	}
	return c.client.Incr(ctx, cacheVersionKey).Err()
}

func (c *Cache) key(ctx context.Context, id int64) (string, error) {
	ver, err := c.client.Get(ctx, cacheVersionKey).Int64()
	if errors.Is(err, redis.Nil) {
		ver = 1
		if err := c.client.SetNX(ctx, cacheVersionKey, ver, 0).Err(); err != nil {
			return "", err
		}
	} else if err != nil {
		return "", err
	}
	return shared.ProductCacheKey("v"+strconv.FormatInt(ver, 10), id), nil
}
