// Package cache provides an optional Redis-backed result cache for
// line-existence queries. Entries are keyed by algorithm, corpus path, and
// the (case-folded) query, so distinct engine configurations never share
// results. Reread-on-query deployments bypass the cache entirely; a cached
// verdict would defeat the freshness contract.
package cache

import (
	"context"
	"crypto/sha256"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	pkgredis "github.com/lineserve/lineserve/pkg/redis"
)

const keyPrefix = "query:"

// QueryCache caches found/not-found verdicts in Redis with a TTL.
type QueryCache struct {
	client *pkgredis.Client
	ttl    time.Duration
	group  singleflight.Group
	logger *slog.Logger
	hits   atomic.Int64
	misses atomic.Int64
}

// New creates a QueryCache over an established Redis client.
func New(client *pkgredis.Client, ttl time.Duration) *QueryCache {
	return &QueryCache{
		client: client,
		ttl:    ttl,
		logger: slog.Default().With("component", "query-cache"),
	}
}

// GetOrCompute returns the cached verdict for the query, or runs computeFn
// and caches its result. Concurrent identical misses are collapsed to one
// computation via singleflight. The second return reports whether the
// verdict came from the cache.
func (c *QueryCache) GetOrCompute(
	ctx context.Context,
	algorithm, corpusPath, query string,
	computeFn func() (bool, error),
) (bool, bool, error) {
	key := c.buildKey(algorithm, corpusPath, query)
	if found, ok := c.lookup(ctx, key); ok {
		return found, true, nil
	}

	val, err, _ := c.group.Do(key, func() (interface{}, error) {
		if found, ok := c.lookup(ctx, key); ok {
			return found, nil
		}
		found, err := computeFn()
		if err != nil {
			return false, err
		}
		c.store(ctx, key, found)
		return found, nil
	})
	if err != nil {
		return false, false, err
	}
	return val.(bool), false, nil
}

// Invalidate drops every cached verdict.
func (c *QueryCache) Invalidate(ctx context.Context) error {
	deleted, err := c.client.FlushByPattern(ctx, keyPrefix+"*")
	if err != nil {
		return fmt.Errorf("invalidating query cache: %w", err)
	}
	c.logger.Info("query cache invalidated", "keys_deleted", deleted)
	return nil
}

// Stats returns the hit and miss counters.
func (c *QueryCache) Stats() (hits, misses int64) {
	return c.hits.Load(), c.misses.Load()
}

func (c *QueryCache) lookup(ctx context.Context, key string) (found, ok bool) {
	data, err := c.client.Get(ctx, key)
	if err != nil {
		if !pkgredis.IsNilError(err) {
			c.logger.Error("cache get failed", "key", key, "error", err)
		}
		c.misses.Add(1)
		return false, false
	}
	c.hits.Add(1)
	return data == "1", true
}

func (c *QueryCache) store(ctx context.Context, key string, found bool) {
	value := "0"
	if found {
		value = "1"
	}
	if err := c.client.Set(ctx, key, value, c.ttl); err != nil {
		c.logger.Error("cache set failed", "key", key, "error", err)
	}
}

func (c *QueryCache) buildKey(algorithm, corpusPath, query string) string {
	raw := fmt.Sprintf("%s|%s|%s", algorithm, corpusPath, query)
	hash := sha256.Sum256([]byte(raw))
	return fmt.Sprintf("%s%x", keyPrefix, hash[:16])
}
