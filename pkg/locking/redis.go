package locking

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Returns 1 when deleted, 0 when the key is unlocked, -1 when another holder owns it.
var releaseScript = redis.NewScript(`
local current = redis.call("GET", KEYS[1])
if current == false then
	return 0
end
if current == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return -1
`)

// RedisLockManager implements LockManager on Redis keys holding the holder
// name. Locks are visible to every process sharing the Redis instance.
type RedisLockManager struct {
	client       redis.UniversalClient
	prefix       string
	pollInterval time.Duration
}

// NewRedisLockManager creates a lock manager. Keys are namespaced with
// prefix ("resultdock:lock:" if empty). Waiting polls every pollInterval
// (100ms if zero).
func NewRedisLockManager(client redis.UniversalClient, prefix string, pollInterval time.Duration) *RedisLockManager {
	if prefix == "" {
		prefix = "resultdock:lock:"
	}
	if pollInterval <= 0 {
		pollInterval = 100 * time.Millisecond
	}
	return &RedisLockManager{
		client:       client,
		prefix:       prefix,
		pollInterval: pollInterval,
	}
}

// NewRedisLockManagerFromURL creates a lock manager from a connection URL.
func NewRedisLockManagerFromURL(url string) (*RedisLockManager, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis URL: %w", err)
	}
	return NewRedisLockManager(redis.NewClient(opts), "", 0), nil
}

func (m *RedisLockManager) Acquire(ctx context.Context, key, holder string, opts ...Option) (bool, error) {
	o := applyOptions(opts)
	deadline := o.deadline()
	k := m.prefix + key

	for {
		ok, err := m.client.SetNX(ctx, k, holder, o.HoldTimeout).Result()
		if err != nil {
			return false, fmt.Errorf("redis lock acquire failed: %w", err)
		}
		if ok {
			return true, nil
		}

		current, err := m.client.Get(ctx, k).Result()
		switch {
		case errors.Is(err, redis.Nil):
			// Released between SETNX and GET
			continue
		case err != nil:
			return false, fmt.Errorf("redis lock acquire failed: %w", err)
		case current == holder:
			if o.HoldTimeout > 0 {
				if err := m.client.PExpire(ctx, k, o.HoldTimeout).Err(); err != nil {
					return false, fmt.Errorf("redis lock extend failed: %w", err)
				}
			}
			return true, nil
		}

		timedOut, err := m.sleep(ctx, deadline)
		if err != nil || timedOut {
			return false, err
		}
	}
}

func (m *RedisLockManager) Release(ctx context.Context, key, holder string) error {
	res, err := releaseScript.Run(ctx, m.client, []string{m.prefix + key}, holder).Int()
	if err != nil {
		return fmt.Errorf("redis lock release failed: %w", err)
	}
	if res < 0 {
		return fmt.Errorf("release %q by %q: %w", key, holder, ErrNotLockHolder)
	}
	return nil
}

func (m *RedisLockManager) IsLocked(ctx context.Context, key string) (bool, error) {
	n, err := m.client.Exists(ctx, m.prefix+key).Result()
	if err != nil {
		return false, fmt.Errorf("redis lock check failed: %w", err)
	}
	return n > 0, nil
}

func (m *RedisLockManager) IsLockHolder(ctx context.Context, key, holder string) (bool, error) {
	current, err := m.client.Get(ctx, m.prefix+key).Result()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("redis lock check failed: %w", err)
	}
	return current == holder, nil
}

func (m *RedisLockManager) Wait(ctx context.Context, key string, opts ...Option) (bool, error) {
	deadline := applyOptions(opts).deadline()
	for {
		locked, err := m.IsLocked(ctx, key)
		if err != nil {
			return false, err
		}
		if !locked {
			return true, nil
		}
		timedOut, err := m.sleep(ctx, deadline)
		if err != nil || timedOut {
			return false, err
		}
	}
}

// sleep waits one poll interval, reporting timedOut once deadline passes.
func (m *RedisLockManager) sleep(ctx context.Context, deadline time.Time) (timedOut bool, err error) {
	wait := m.pollInterval
	if !deadline.IsZero() {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return true, nil
		}
		if remaining < wait {
			wait = remaining
		}
	}
	t := time.NewTimer(wait)
	defer t.Stop()
	select {
	case <-t.C:
		return false, nil
	case <-ctx.Done():
		return false, ctx.Err()
	}
}

// Close closes the Redis connection.
func (m *RedisLockManager) Close() error {
	return m.client.Close()
}
