package store

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"newswire/internal/config"
	"newswire/internal/constants"
	"newswire/internal/logger"
	"newswire/pkg/metrics"
)

// Deduper answers whether a URL was already ingested. Seen is read-only;
// MarkSeen runs after a successful ingest so a retried message is never
// shadowed by its own earlier attempt.
type Deduper interface {
	Seen(ctx context.Context, url string) (bool, error)
	MarkSeen(ctx context.Context, url string) error
}

// Cache is the redis surface the dedup layer needs.
type Cache interface {
	Exists(ctx context.Context, key string) (bool, error)
	Set(ctx context.Context, key string, ttl time.Duration) error
}

type RedisCache struct {
	client *redis.Client
}

func NewRedisCache(client *redis.Client) *RedisCache {
	return &RedisCache{client: client}
}

func (c *RedisCache) Exists(ctx context.Context, key string) (bool, error) {
	n, err := c.client.Exists(ctx, key).Result()
	if err != nil {
		return false, fmt.Errorf("redis EXISTS failed: %w", err)
	}
	return n > 0, nil
}

func (c *RedisCache) Set(ctx context.Context, key string, ttl time.Duration) error {
	if err := c.client.SetNX(ctx, key, 1, ttl).Err(); err != nil {
		return fmt.Errorf("redis SETNX failed: %w", err)
	}
	return nil
}

// OnCacheError policies.
const (
	CacheErrorFallback = "fallback"
	CacheErrorFail     = "fail"
)

// CachedDedup fronts the content store lookup with a redis cache. A cache hit
// is trusted; a miss still goes to the store, which stays authoritative.
type CachedDedup struct {
	cache        Cache
	store        ContentStore
	ttl          time.Duration
	onCacheError string
	logger       logger.Logger
}

func NewCachedDedup(cache Cache, contents ContentStore, cfg config.DedupConfig, log logger.Logger) *CachedDedup {
	ttl := cfg.CacheTTL
	if ttl <= 0 {
		ttl = constants.DefaultDedupTTL
	}
	policy := cfg.OnCacheError
	if policy == "" {
		policy = CacheErrorFallback
	}

	return &CachedDedup{
		cache:        cache,
		store:        contents,
		ttl:          ttl,
		onCacheError: policy,
		logger:       log,
	}
}

func (d *CachedDedup) Seen(ctx context.Context, url string) (bool, error) {
	key := constants.DedupKeyPrefix + url

	hit, err := d.cache.Exists(ctx, key)
	switch {
	case err != nil:
		if d.onCacheError == CacheErrorFail {
			metrics.DedupChecksTotal.WithLabelValues("error", "cache").Inc()
			return false, err
		}
		d.logger.WarnwCtx(ctx, "Dedup cache check failed, falling back to store",
			"error", err,
			"item_url", url,
		)
		metrics.DedupChecksTotal.WithLabelValues("fallback", "cache").Inc()
	case hit:
		metrics.DedupChecksTotal.WithLabelValues("duplicate", "cache").Inc()
		return true, nil
	default:
		metrics.DedupChecksTotal.WithLabelValues("miss", "cache").Inc()
	}

	exists, err := d.store.ExistsByURL(ctx, url)
	if err != nil {
		metrics.DedupChecksTotal.WithLabelValues("error", "store").Inc()
		return false, err
	}
	if exists {
		metrics.DedupChecksTotal.WithLabelValues("duplicate", "store").Inc()
		// Backfill so the next duplicate stops at the cache.
		if cacheErr := d.cache.Set(ctx, key, d.ttl); cacheErr != nil {
			d.logger.WarnwCtx(ctx, "Failed to backfill dedup cache",
				"error", cacheErr,
				"item_url", url,
			)
		}
		return true, nil
	}

	metrics.DedupChecksTotal.WithLabelValues("unique", "store").Inc()
	return false, nil
}

func (d *CachedDedup) MarkSeen(ctx context.Context, url string) error {
	if err := d.cache.Set(ctx, constants.DedupKeyPrefix+url, d.ttl); err != nil {
		// Best-effort: the store already has the row.
		d.logger.WarnwCtx(ctx, "Failed to mark URL in dedup cache",
			"error", err,
			"item_url", url,
		)
	}
	return nil
}
