package services

import (
	"context"
	"encoding/json"
	"sort"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"ai-tutor-platform/internal/logger"
	"ai-tutor-platform/internal/telemetry"
	"ai-tutor-platform/utils"
)

// Cache key prefixes. Invalidation works per family via ClearPattern.
const (
	CachePrefixContext = "context"
	CachePrefixSummary = "summary"
	CachePrefixHint    = "hint"
)

// Cache memoizes expensive computed strings. Implementations must degrade
// to misses when the backing store is unreachable; callers never see store
// errors, only recomputation.
type Cache interface {
	GetString(ctx context.Context, key string) (string, bool)
	SetString(ctx context.Context, key, value string, ttl time.Duration)
	Delete(ctx context.Context, keys ...string)
	ClearPattern(ctx context.Context, pattern string) int
	GetOrCompute(ctx context.Context, key string, ttl time.Duration, compute func(ctx context.Context) (string, error)) (string, error)
}

// CacheKey builds a deterministic key from a prefix and a parameter map:
// the md5 of the sorted key/value pairs, so equal parameters always hit the
// same entry regardless of map iteration order.
func CacheKey(prefix string, params map[string]string) string {
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	pairs := make([][2]string, 0, len(keys))
	for _, k := range keys {
		pairs = append(pairs, [2]string{k, params[k]})
	}
	raw, _ := json.Marshal(pairs)
	return prefix + ":" + utils.MD5Hex(string(raw))
}

// RedisCache implements Cache over Redis. Large values are gzipped before
// storage; gzip's magic bytes make them self-identifying on read.
type RedisCache struct {
	rdb     *redis.Client
	metrics *telemetry.Metrics
}

func NewRedisCache(rdb *redis.Client, metrics *telemetry.Metrics) *RedisCache {
	return &RedisCache{rdb: rdb, metrics: metrics}
}

// GetString returns the cached value for key. Any store error reads as a
// miss.
func (c *RedisCache) GetString(ctx context.Context, key string) (string, bool) {
	if c.rdb == nil {
		return "", false
	}
	data, err := c.rdb.Get(ctx, key).Bytes()
	if err != nil {
		if err != redis.Nil {
			logger.Warn("Cache get failed", "key", key, "error", err)
		}
		c.recordLookup(key, false)
		return "", false
	}

	value, err := decodeCachedValue(data)
	if err != nil {
		logger.Warn("Cache entry unreadable, treating as miss", "key", key, "error", err)
		c.recordLookup(key, false)
		return "", false
	}
	c.recordLookup(key, true)
	return value, true
}

// SetString stores value under key with a TTL, best effort.
func (c *RedisCache) SetString(ctx context.Context, key, value string, ttl time.Duration) {
	if c.rdb == nil {
		return
	}
	data, algorithm, err := utils.CompressText(value)
	if err != nil || algorithm == utils.CompressionNone {
		err = c.rdb.Set(ctx, key, value, ttl).Err()
	} else {
		err = c.rdb.Set(ctx, key, data, ttl).Err()
	}
	if err != nil {
		logger.Warn("Cache set failed", "key", key, "error", err)
	}
}

// Delete removes keys, best effort.
func (c *RedisCache) Delete(ctx context.Context, keys ...string) {
	if c.rdb == nil || len(keys) == 0 {
		return
	}
	if err := c.rdb.Del(ctx, keys...).Err(); err != nil {
		logger.Warn("Cache delete failed", "keys", strings.Join(keys, ","), "error", err)
	}
}

// ClearPattern removes every key matching pattern and returns how many went
// away. SCAN keeps the sweep incremental on shared Redis instances.
func (c *RedisCache) ClearPattern(ctx context.Context, pattern string) int {
	if c.rdb == nil {
		return 0
	}
	var deleted int
	iter := c.rdb.Scan(ctx, 0, pattern, 100).Iterator()
	batch := make([]string, 0, 100)
	for iter.Next(ctx) {
		batch = append(batch, iter.Val())
		if len(batch) == 100 {
			deleted += c.deleteBatch(ctx, batch)
			batch = batch[:0]
		}
	}
	if err := iter.Err(); err != nil {
		logger.Warn("Cache pattern scan failed", "pattern", pattern, "error", err)
	}
	deleted += c.deleteBatch(ctx, batch)
	return deleted
}

func (c *RedisCache) deleteBatch(ctx context.Context, keys []string) int {
	if len(keys) == 0 {
		return 0
	}
	n, err := c.rdb.Del(ctx, keys...).Result()
	if err != nil {
		logger.Warn("Cache batch delete failed", "error", err)
		return 0
	}
	return int(n)
}

// GetOrCompute returns the cached value for key, computing and storing it on
// a miss. Compute errors propagate; store errors never do.
func (c *RedisCache) GetOrCompute(ctx context.Context, key string, ttl time.Duration, compute func(ctx context.Context) (string, error)) (string, error) {
	if value, ok := c.GetString(ctx, key); ok {
		return value, nil
	}
	value, err := compute(ctx)
	if err != nil {
		return "", err
	}
	c.SetString(ctx, key, value, ttl)
	return value, nil
}

func (c *RedisCache) recordLookup(key string, hit bool) {
	if c.metrics == nil {
		return
	}
	family, _, found := strings.Cut(key, ":")
	if !found {
		family = "other"
	}
	c.metrics.RecordCacheLookup(family, hit)
}

// decodeCachedValue reverses SetString's optional compression. UTF-8 text
// can never start with the gzip magic bytes, so the prefix disambiguates.
func decodeCachedValue(data []byte) (string, error) {
	if len(data) >= 2 && data[0] == 0x1f && data[1] == 0x8b {
		return utils.DecompressText(data, utils.CompressionGzip)
	}
	return string(data), nil
}
