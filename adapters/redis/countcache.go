package redis

import (
	"context"
	"math/rand/v2"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"

	"triviakit/core"
	"triviakit/engine"
)

// CountCache wraps a store and caches active question counts in a Redis hash
// {prefix}:catalog:active_counts, field category id, value count. Concurrent
// misses share one load.
type CountCache struct {
	engine.Store
	client *redis.Client
	key    string
	ttl    time.Duration
	sf     singleflight.Group
}

func NewCountCache(store engine.Store, client *redis.Client, prefix string, ttl time.Duration) *CountCache {
	if prefix == "" {
		prefix = "triviakit"
	}
	return &CountCache{Store: store, client: client, key: prefix + ":catalog:active_counts", ttl: ttl}
}

func (c *CountCache) ActiveQuestionCounts(ctx context.Context) (map[core.CategoryID]int64, error) {
	if cached, ok := c.cached(ctx); ok {
		return cached, nil
	}
	v, err, _ := c.sf.Do(c.key, func() (any, error) {
		if cached, ok := c.cached(ctx); ok {
			return cached, nil
		}
		counts, err := c.Store.ActiveQuestionCounts(ctx)
		if err != nil {
			return nil, err
		}
		if len(counts) == 0 {
			return counts, nil
		}
		fields := make(map[string]any, len(counts))
		for id, n := range counts {
			fields[string(id)] = n
		}
		pipe := c.client.TxPipeline()
		pipe.Del(ctx, c.key)
		pipe.HSet(ctx, c.key, fields)
		if ttl := c.ttlWithJitter(); ttl > 0 {
			pipe.Expire(ctx, c.key, ttl)
		}
		_, _ = pipe.Exec(ctx)
		return counts, nil
	})
	if err != nil {
		return nil, err
	}
	// callers may mutate the map
	src := v.(map[core.CategoryID]int64)
	out := make(map[core.CategoryID]int64, len(src))
	for k, n := range src {
		out[k] = n
	}
	return out, nil
}

func (c *CountCache) cached(ctx context.Context) (map[core.CategoryID]int64, bool) {
	raw, err := c.client.HGetAll(ctx, c.key).Result()
	if err != nil || len(raw) == 0 {
		return nil, false
	}
	out := make(map[core.CategoryID]int64, len(raw))
	for id, s := range raw {
		n, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return nil, false
		}
		out[core.CategoryID(id)] = n
	}
	return out, true
}

// Invalidate drops the cached counts, e.g. after a catalog reload.
func (c *CountCache) Invalidate(ctx context.Context) error {
	return c.client.Del(ctx, c.key).Err()
}

func (c *CountCache) ttlWithJitter() time.Duration {
	if c.ttl <= 0 {
		return 0
	}
	return c.ttl + time.Duration(rand.Int64N(int64(c.ttl)/10+1))
}

var _ engine.Store = (*CountCache)(nil)
