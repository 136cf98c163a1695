package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore implements Store on top of a RedisInterface-compatible client.
type RedisStore struct {
	client RedisInterface
}

func NewRedisStore(client RedisInterface) (*RedisStore, error) {
	if client == nil {
		return nil, fmt.Errorf("redis client cannot be nil")
	}
	return &RedisStore{client: client}, nil
}

func (s *RedisStore) Get(ctx context.Context, key Key) ([]byte, error) {
	v, err := s.client.Get(ctx, key.String()).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return v, nil
}

func (s *RedisStore) Set(ctx context.Context, key Key, value []byte, ttl time.Duration) error {
	return s.client.Set(ctx, key.String(), value, ttl).Err()
}

func (s *RedisStore) Delete(ctx context.Context, key Key) error {
	return s.client.Del(ctx, key.String()).Err()
}

// TTL returns the remaining lifetime of key, or ErrNotFound when it is absent.
func (s *RedisStore) TTL(ctx context.Context, key Key) (time.Duration, error) {
	d, err := s.client.TTL(ctx, key.String()).Result()
	if err != nil {
		return 0, err
	}
	// -2 means the key does not exist
	if d == -2*time.Nanosecond || d == -2*time.Second {
		return 0, ErrNotFound
	}
	return d, nil
}
