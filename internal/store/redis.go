package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/google/magic-github-proxy/internal/core"
)

const DefaultRedisPrefix = "magicproxy:state:"

var _ core.StateStore = (*RedisStateStore)(nil)

// RedisStateStore shares extension state between proxy instances.
// Each namespace is stored as one redis hash.
type RedisStateStore struct {
	client *redis.Client
	prefix string
}

func NewRedisStateStore(client *redis.Client, prefix string) (*RedisStateStore, error) {
	if client == nil {
		return nil, errors.New("redis client is required")
	}
	if prefix == "" {
		prefix = DefaultRedisPrefix
	}
	return &RedisStateStore{
		client: client,
		prefix: prefix,
	}, nil
}

func (s *RedisStateStore) hashKey(namespace string) string {
	return s.prefix + namespace
}

func (s *RedisStateStore) Get(ctx context.Context, namespace, key string) (string, bool, error) {
	value, err := s.client.HGet(ctx, s.hashKey(namespace), key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("failed to get %s/%s: %w", namespace, key, err)
	}
	return value, true, nil
}

func (s *RedisStateStore) Set(ctx context.Context, namespace, key, value string) error {
	if err := s.client.HSet(ctx, s.hashKey(namespace), key, value).Err(); err != nil {
		return fmt.Errorf("failed to set %s/%s: %w", namespace, key, err)
	}
	return nil
}

func (s *RedisStateStore) Delete(ctx context.Context, namespace, key string) (bool, error) {
	n, err := s.client.HDel(ctx, s.hashKey(namespace), key).Result()
	if err != nil {
		return false, fmt.Errorf("failed to delete %s/%s: %w", namespace, key, err)
	}
	return n > 0, nil
}

func (s *RedisStateStore) Close() error {
	return s.client.Close()
}
