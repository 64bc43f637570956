package nonce

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const redisKeyPrefix = "bytepay:nonce"

// RedisStore keeps nonces in Redis with a TTL, so validation survives
// restarts and works across replicas.
type RedisStore struct {
	client redis.Cmdable
	ttl    time.Duration
}

func NewRedisStore(client redis.Cmdable, ttl time.Duration) *RedisStore {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &RedisStore{client: client, ttl: ttl}
}

func (s *RedisStore) Issue(ctx context.Context) (string, error) {
	n, err := generate()
	if err != nil {
		return "", err
	}
	if err := s.client.Set(ctx, redisKey(n), "1", s.ttl).Err(); err != nil {
		return "", fmt.Errorf("store nonce: %w", err)
	}
	return n, nil
}

func (s *RedisStore) Valid(ctx context.Context, n string) (bool, error) {
	if n == "" {
		return false, nil
	}
	count, err := s.client.Exists(ctx, redisKey(n)).Result()
	if err != nil {
		return false, fmt.Errorf("check nonce: %w", err)
	}
	return count > 0, nil
}

func (s *RedisStore) Consume(ctx context.Context, n string) error {
	if err := s.client.Del(ctx, redisKey(n)).Err(); err != nil {
		return fmt.Errorf("consume nonce: %w", err)
	}
	return nil
}

func redisKey(n string) string {
	return fmt.Sprintf("%s:%s", redisKeyPrefix, n)
}
