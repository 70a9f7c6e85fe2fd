package marketdata

import (
	"context"
	"errors"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/patrickmn/go-cache"
	"github.com/rs/zerolog"
	"github.com/vmihailenco/msgpack/v5"
)

const cachePrefix = "marketdata:"

// Cache stores raw provider responses keyed by request.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, bool)
	Set(ctx context.Context, key string, body []byte, ttl time.Duration)
}

type cacheEntry struct {
	Body      []byte    `msgpack:"body"`
	FetchedAt time.Time `msgpack:"fetched_at"`
}

func encodeEntry(body []byte) ([]byte, error) {
	return msgpack.Marshal(cacheEntry{Body: body, FetchedAt: time.Now().UTC()})
}

func decodeEntry(b []byte) (cacheEntry, error) {
	var e cacheEntry
	err := msgpack.Unmarshal(b, &e)
	return e, err
}

// RedisCache shares cached responses between processes.
type RedisCache struct {
	rdb *redis.Client
	log zerolog.Logger
}

func NewRedisCache(rdb *redis.Client, log zerolog.Logger) *RedisCache {
	return &RedisCache{rdb: rdb, log: log.With().Str("component", "marketdata_cache").Logger()}
}

func (c *RedisCache) Get(ctx context.Context, key string) ([]byte, bool) {
	b, err := c.rdb.Get(ctx, cachePrefix+key).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.log.Warn().Err(err).Str("key", key).Msg("cache read failed")
		}
		return nil, false
	}
	e, err := decodeEntry(b)
	if err != nil {
		c.log.Warn().Err(err).Str("key", key).Msg("discarding undecodable cache entry")
		return nil, false
	}
	return e.Body, true
}

func (c *RedisCache) Set(ctx context.Context, key string, body []byte, ttl time.Duration) {
	b, err := encodeEntry(body)
	if err != nil {
		c.log.Warn().Err(err).Str("key", key).Msg("cache encode failed")
		return
	}
	if err := c.rdb.Set(ctx, cachePrefix+key, b, ttl).Err(); err != nil {
		c.log.Warn().Err(err).Str("key", key).Msg("cache write failed")
	}
}

// MemoryCache is the in-process fallback when Redis is not configured.
type MemoryCache struct {
	c *cache.Cache
}

func NewMemoryCache(cleanupInterval time.Duration) *MemoryCache {
	return &MemoryCache{c: cache.New(cache.NoExpiration, cleanupInterval)}
}

func (m *MemoryCache) Get(_ context.Context, key string) ([]byte, bool) {
	v, ok := m.c.Get(key)
	if !ok {
		return nil, false
	}
	e, err := decodeEntry(v.([]byte))
	if err != nil {
		return nil, false
	}
	return e.Body, true
}

func (m *MemoryCache) Set(_ context.Context, key string, body []byte, ttl time.Duration) {
	b, err := encodeEntry(body)
	if err != nil {
		return
	}
	m.c.Set(key, b, ttl)
}
