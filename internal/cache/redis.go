package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Compile-time interface check.
var _ Cache[struct{}] = (*RedisCache[struct{}])(nil)

// RedisCache implements Cache using go-redis.
// Take maps to GETDEL, so single-use semantics hold across instances.
type RedisCache[T any] struct {
	client    redis.UniversalClient
	keyPrefix string
	owned     bool
}

// NewRedisCache connects to Redis and verifies the connection with PING.
func NewRedisCache[T any](
	ctx context.Context,
	addr, password string,
	db int,
	keyPrefix string,
) (*RedisCache[T], error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to ping Redis: %w", err)
	}

	return &RedisCache[T]{client: client, keyPrefix: keyPrefix, owned: true}, nil
}

// NewRedisCacheFromClient wraps an existing client. Close leaves the client open.
func NewRedisCacheFromClient[T any](client redis.UniversalClient, keyPrefix string) *RedisCache[T] {
	return &RedisCache[T]{client: client, keyPrefix: keyPrefix}
}

// Get retrieves a value from Redis.
func (r *RedisCache[T]) Get(ctx context.Context, key string) (T, error) {
	raw, err := r.client.Get(ctx, r.keyPrefix+key).Result()
	return r.decode(raw, err)
}

// Set stores a value in Redis with TTL.
func (r *RedisCache[T]) Set(ctx context.Context, key string, value T, ttl time.Duration) error {
	encoded, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidValue, err)
	}

	if err := r.client.Set(ctx, r.keyPrefix+key, encoded, ttl).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrCacheUnavailable, err)
	}
	return nil
}

// Take reads and deletes a value with a single GETDEL.
func (r *RedisCache[T]) Take(ctx context.Context, key string) (T, error) {
	raw, err := r.client.GetDel(ctx, r.keyPrefix+key).Result()
	return r.decode(raw, err)
}

// Delete removes a key from Redis.
func (r *RedisCache[T]) Delete(ctx context.Context, key string) error {
	if err := r.client.Del(ctx, r.keyPrefix+key).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrCacheUnavailable, err)
	}
	return nil
}

// Close closes the Redis connection if this cache created it.
func (r *RedisCache[T]) Close() error {
	if !r.owned {
		return nil
	}
	return r.client.Close()
}

// Health checks if Redis is reachable.
func (r *RedisCache[T]) Health(ctx context.Context) error {
	if err := r.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrCacheUnavailable, err)
	}
	return nil
}

func (r *RedisCache[T]) decode(raw string, err error) (T, error) {
	var zero T
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return zero, ErrCacheMiss
		}
		return zero, fmt.Errorf("%w: %v", ErrCacheUnavailable, err)
	}

	var value T
	if err := json.Unmarshal([]byte(raw), &value); err != nil {
		return zero, fmt.Errorf("%w: %v", ErrInvalidValue, err)
	}
	return value, nil
}
