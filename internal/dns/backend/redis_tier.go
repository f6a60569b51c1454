package backend

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// InvalidationChannel is the pub/sub channel used to fan cache invalidation
// out to every node sharing an L2 tier. Adapted from the teacher's
// server/redis.go, repurposed from cross-node zone-change invalidation (the
// teacher's multi-tenant SQL model) to (domain, qtype) cache-entry
// invalidation (this module's Cache backend has no persisted records to
// invalidate against).
const InvalidationChannel = "dns:invalidation"

// RedisCache is a go-redis-backed RedisTier implementation, namespacing
// every key under "dns:" exactly as the teacher does.
type RedisCache struct {
	client *redis.Client
}

func NewRedisCache(addr, password string, db int) *RedisCache {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	return &RedisCache{client: rdb}
}

func (r *RedisCache) Get(ctx context.Context, key string) ([]byte, bool) {
	val, err := r.client.Get(ctx, "dns:"+key).Bytes()
	if err != nil {
		return nil, false
	}
	return val, true
}

func (r *RedisCache) Set(ctx context.Context, key string, data []byte, ttl time.Duration) {
	r.client.Set(ctx, "dns:"+key, data, ttl)
}

func (r *RedisCache) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

// Invalidate publishes an invalidation event to all nodes sharing this
// cache tier, keyed by the same (domain, qtype) cache key used by Cache.
func (r *RedisCache) Invalidate(ctx context.Context, key string) error {
	return r.client.Publish(ctx, InvalidationChannel, key).Err()
}

// Subscribe returns a channel receiving invalidation keys from other nodes.
func (r *RedisCache) Subscribe(ctx context.Context) <-chan *redis.Message {
	pubsub := r.client.Subscribe(ctx, InvalidationChannel)
	return pubsub.Channel()
}
