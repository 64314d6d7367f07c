package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// RedisStorage implements Storage using Redis.
// It is designed to work with github.com/redis/go-redis/v9.
type RedisStorage struct {
	client redis.UniversalClient
	prefix string // Optional key prefix (e.g., "resultdock:")
}

// NewRedisStorage creates a Redis-backed storage.
// The prefix namespaces keys; if empty, "resultdock:" is used.
func NewRedisStorage(client redis.UniversalClient, prefix string) *RedisStorage {
	if prefix == "" {
		prefix = "resultdock:"
	}
	return &RedisStorage{
		client: client,
		prefix: prefix,
	}
}

// NewRedisStorageFromURL creates a Redis storage from a connection URL.
// Example: "redis://localhost:6379/0" or "redis://:password@localhost:6379/1"
func NewRedisStorageFromURL(url string, prefix string) (*RedisStorage, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis URL: %w", err)
	}
	return NewRedisStorage(redis.NewClient(opts), prefix), nil
}

func (s *RedisStorage) ReadPath(ctx context.Context, key string) ([]byte, error) {
	data, err := s.client.Get(ctx, s.prefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, key)
	}
	if err != nil {
		return nil, fmt.Errorf("redis get failed: %w", err)
	}
	return data, nil
}

func (s *RedisStorage) WritePath(ctx context.Context, key string, content []byte) error {
	if err := s.client.Set(ctx, s.prefix+key, content, 0).Err(); err != nil {
		return fmt.Errorf("redis set failed: %w", err)
	}
	return nil
}

func (s *RedisStorage) Delete(ctx context.Context, key string) error {
	return s.client.Del(ctx, s.prefix+key).Err()
}

// Ping checks if the Redis connection is alive.
func (s *RedisStorage) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Close closes the Redis connection.
func (s *RedisStorage) Close() error {
	return s.client.Close()
}
