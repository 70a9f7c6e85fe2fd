package handlers

import (
	"context"
	"errors"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/patrickmn/go-cache"
)

var ErrTokenRevoked = errors.New("refresh token revoked or unknown")

// TokenStore remembers issued refresh tokens so they can be rotated and
// revoked.
type TokenStore interface {
	Save(ctx context.Context, token, accountID string, ttl time.Duration) error
	// Lookup returns ErrTokenRevoked for tokens that were never saved,
	// expired or were revoked.
	Lookup(ctx context.Context, token string) (string, error)
	Revoke(ctx context.Context, token string) error
}

const refreshKeyPrefix = "refresh:"

type RedisTokenStore struct {
	rdb *redis.Client
}

func NewRedisTokenStore(rdb *redis.Client) *RedisTokenStore {
	return &RedisTokenStore{rdb: rdb}
}

func (s *RedisTokenStore) Save(ctx context.Context, token, accountID string, ttl time.Duration) error {
	return s.rdb.Set(ctx, refreshKeyPrefix+token, accountID, ttl).Err()
}

func (s *RedisTokenStore) Lookup(ctx context.Context, token string) (string, error) {
	id, err := s.rdb.Get(ctx, refreshKeyPrefix+token).Result()
	if errors.Is(err, redis.Nil) {
		return "", ErrTokenRevoked
	}
	return id, err
}

func (s *RedisTokenStore) Revoke(ctx context.Context, token string) error {
	return s.rdb.Del(ctx, refreshKeyPrefix+token).Err()
}

// MemoryTokenStore keeps refresh tokens in process, for single-instance
// deployments without Redis.
type MemoryTokenStore struct {
	tokens *cache.Cache
}

func NewMemoryTokenStore() *MemoryTokenStore {
	return &MemoryTokenStore{tokens: cache.New(cache.NoExpiration, time.Hour)}
}

func (s *MemoryTokenStore) Save(_ context.Context, token, accountID string, ttl time.Duration) error {
	s.tokens.Set(token, accountID, ttl)
	return nil
}

func (s *MemoryTokenStore) Lookup(_ context.Context, token string) (string, error) {
	v, ok := s.tokens.Get(token)
	if !ok {
		return "", ErrTokenRevoked
	}
	return v.(string), nil
}

func (s *MemoryTokenStore) Revoke(_ context.Context, token string) error {
	s.tokens.Delete(token)
	return nil
}
