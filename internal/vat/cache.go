package vat

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/olgasafonova/vat-eu-mcp-server/internal/infra"
	"github.com/olgasafonova/vat-eu-mcp-server/metrics"
)

// DefaultCacheTTL is how long a definitive VIES answer is reused.
const DefaultCacheTTL = 24 * time.Hour

// ResultCache stores definitive VIES verdicts keyed by canonical identifier.
// Implementations must be safe for concurrent use. Lookup failures are misses.
type ResultCache interface {
	Get(ctx context.Context, key string) (Result, bool)
	Set(ctx context.Context, key string, r Result, ttl time.Duration)
}

// MemoryCache is an in-process LRU ResultCache.
type MemoryCache struct {
	entries *infra.Cache[Result]
}

// NewMemoryCache creates a MemoryCache holding at most maxEntries results.
func NewMemoryCache(maxEntries int) *MemoryCache {
	return &MemoryCache{
		entries: infra.NewCache[Result](maxEntries,
			infra.WithEvictCallback(func(_ string, reason infra.EvictReason) {
				metrics.CacheEvictions.WithLabelValues(string(reason)).Inc()
			}),
		),
	}
}

// Get returns a cached result.
func (c *MemoryCache) Get(_ context.Context, key string) (Result, bool) {
	return c.entries.Get(key)
}

// Set stores a result.
func (c *MemoryCache) Set(_ context.Context, key string, r Result, ttl time.Duration) {
	c.entries.Set(key, r, ttl)
}

// Len returns the number of cached results.
func (c *MemoryCache) Len() int {
	return c.entries.Len()
}

// Close stops the background sweep.
func (c *MemoryCache) Close() {
	c.entries.Close()
}

const redisKeyPrefix = "vat:result:"

// RedisCache shares verdicts between server instances through Redis.
type RedisCache struct {
	client *redis.Client
	logger *slog.Logger
}

// NewRedisCache wraps a connected client. A nil logger uses slog.Default.
func NewRedisCache(client *redis.Client, logger *slog.Logger) *RedisCache {
	if logger == nil {
		logger = slog.Default()
	}
	return &RedisCache{client: client, logger: logger}
}

// Get loads a cached result. Redis or decode errors are logged and reported as a miss.
func (c *RedisCache) Get(ctx context.Context, key string) (Result, bool) {
	data, err := c.client.Get(ctx, redisKeyPrefix+key).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.logger.Warn("Redis cache read failed", "key", key, "error", err)
		}
		return Result{}, false
	}

	var r Result
	if err := json.Unmarshal(data, &r); err != nil {
		c.logger.Warn("Redis cache entry undecodable", "key", key, "error", err)
		return Result{}, false
	}
	return r, true
}

// Set writes a result with ttl. Failures are logged; the cache is best effort.
func (c *RedisCache) Set(ctx context.Context, key string, r Result, ttl time.Duration) {
	payload, err := json.Marshal(r)
	if err != nil {
		c.logger.Warn("Redis cache encode failed", "key", key, "error", err)
		return
	}
	if err := c.client.Set(ctx, redisKeyPrefix+key, payload, ttl).Err(); err != nil {
		c.logger.Warn("Redis cache write failed", "key", key, "error", err)
	}
}

// Ping checks the Redis connection.
func (c *RedisCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}
