package backend

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/poyrazK/godns/internal/dns/codec"
	"github.com/poyrazK/godns/internal/dns/metrics"
)

const (
	// negativeCacheTTL is the short TTL applied to empty upstream responses,
	// to suppress rapid retries of a name that resolved to nothing.
	negativeCacheTTL = 10 * time.Second
)

type cacheEntry struct {
	records   []codec.Record
	expiresAt time.Time
}

// RedisTier is the optional L2 cache consulted before falling through to
// the inner backend, and refreshed alongside the in-process LRU. Grounded
// on the teacher's server/redis.go RedisCache.
type RedisTier interface {
	Get(ctx context.Context, key string) ([]byte, bool)
	Set(ctx context.Context, key string, data []byte, ttl time.Duration)
}

// Cache wraps an inner backend with a TTL-respecting, bounded-LRU response
// cache (C11). Cache key is (domain, qtype); entries are evicted lazily on
// read once expired, and the bound itself is enforced by the underlying LRU
// so the map can never grow unbounded (spec §4.10).
type Cache struct {
	inner  Backend
	lru    *lru.Cache[string, cacheEntry]
	redis  RedisTier
	minTTL time.Duration
	maxTTL time.Duration
	logger *slog.Logger
}

// NewCache builds a Cache of the given bounded capacity wrapping inner.
// redis may be nil to disable the L2 tier.
func NewCache(inner Backend, capacity int, minTTL, maxTTL time.Duration, redis RedisTier, logger *slog.Logger) (*Cache, error) {
	if logger == nil {
		logger = slog.Default()
	}
	l, err := lru.New[string, cacheEntry](capacity)
	if err != nil {
		return nil, fmt.Errorf("cache: %w", err)
	}
	return &Cache{inner: inner, lru: l, redis: redis, minTTL: minTTL, maxTTL: maxTTL, logger: logger}, nil
}

// CacheKey formats the (domain, qtype) cache key used by both the in-process
// LRU and the optional Redis tier.
func CacheKey(domain string, qtype codec.Type) string {
	return fmt.Sprintf("%s|%d", domain, qtype)
}

func (c *Cache) IsAuthority(domain string) bool { return c.inner.IsAuthority(domain) }
func (c *Cache) RecursionAvailable() bool       { return c.inner.RecursionAvailable() }

func (c *Cache) GetAnswers(ctx context.Context, domain string, qtype codec.Type) (Answers, error) {
	key := CacheKey(domain, qtype)

	if entry, ok := c.lru.Get(key); ok {
		if time.Now().Before(entry.expiresAt) {
			metrics.CacheOperations.WithLabelValues("l1", "hit").Inc()
			return Answers{Records: entry.records, Source: "Cache"}, nil
		}
		c.lru.Remove(key)
	}
	metrics.CacheOperations.WithLabelValues("l1", "miss").Inc()

	if c.redis != nil {
		if raw, found := c.redis.Get(ctx, key); found {
			records, decErr := decodeCacheEntry(raw)
			if decErr == nil {
				metrics.CacheOperations.WithLabelValues("l2", "hit").Inc()
				c.lru.Add(key, cacheEntry{records: records, expiresAt: time.Now().Add(c.negativeOr(records))})
				return Answers{Records: records, Source: "Cache"}, nil
			}
			c.logger.Warn("failed to decode redis cache entry", "domain", domain, "error", decErr)
		}
		metrics.CacheOperations.WithLabelValues("l2", "miss").Inc()
	}

	answers, err := c.inner.GetAnswers(ctx, domain, qtype)
	if err != nil {
		return Answers{}, err
	}

	ttl := c.negativeOr(answers.Records)
	c.lru.Add(key, cacheEntry{records: answers.Records, expiresAt: time.Now().Add(ttl)})

	if c.redis != nil {
		if encoded, encErr := encodeCacheEntry(answers.Records); encErr == nil {
			c.redis.Set(ctx, key, encoded, ttl)
		} else {
			c.logger.Warn("failed to encode cache entry for redis tier", "domain", domain, "error", encErr)
		}
	}

	return answers, nil
}

// negativeOr computes the clamped cache TTL for a non-empty answer set
// (min over record TTLs, clamped to [minTTL, maxTTL]) or the short
// negative-cache TTL for an empty one.
func (c *Cache) negativeOr(records []codec.Record) time.Duration {
	if len(records) == 0 {
		return negativeCacheTTL
	}
	minTTL := records[0].TTL
	for _, r := range records[1:] {
		if r.TTL < minTTL {
			minTTL = r.TTL
		}
	}
	ttl := time.Duration(minTTL) * time.Second
	if ttl < c.minTTL {
		ttl = c.minTTL
	}
	if ttl > c.maxTTL {
		ttl = c.maxTTL
	}
	return ttl
}

func encodeCacheEntry(records []codec.Record) ([]byte, error) {
	m := &codec.Message{Answers: records}
	return codec.Encode(m)
}

// decodeCacheEntry is encodeCacheEntry's inverse, used on an L2 (redis) hit
// to recover the cached record set before backfilling the L1 LRU.
func decodeCacheEntry(raw []byte) ([]codec.Record, error) {
	m, err := codec.Decode(raw, codec.DefaultDecodeOptions())
	if err != nil {
		return nil, err
	}
	return m.Answers, nil
}
