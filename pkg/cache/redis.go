package cache

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisConfig configures a RedisCache.
type RedisConfig struct {
	Addr     string // host:port
	Password string
	DB       int
	Prefix   string // prepended to every key

	// Retry governs connection failures. Zero fields take the values of
	// DefaultRetryPolicy.
	Retry RetryPolicy
}

// RedisCache stores entries in Redis. Connection failures are retried
// according to its RetryPolicy; every other error is returned at once.
type RedisCache struct {
	client *redis.Client
	prefix string
	retry  RetryPolicy
}

// NewRedisCache connects to Redis and verifies the connection with PING.
func NewRedisCache(ctx context.Context, cfg RedisConfig) (*RedisCache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis %s: %w: %v", cfg.Addr, ErrUnreachable, err)
	}
	return &RedisCache{client: client, prefix: cfg.Prefix, retry: cfg.Retry.withDefaults()}, nil
}

// NewRedisCacheFromClient wraps an existing client with the default retry
// policy.
func NewRedisCacheFromClient(client *redis.Client, prefix string) *RedisCache {
	return &RedisCache{client: client, prefix: prefix, retry: DefaultRetryPolicy()}
}

// Get reads an entry.
func (c *RedisCache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	var data []byte
	err := c.retry.Do(ctx, func(ctx context.Context) error {
		b, err := c.client.Get(ctx, c.prefix+key).Bytes()
		if err != nil {
			return classify(err)
		}
		data = b
		return nil
	})
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return data, true, nil
}

// Set writes an entry. A non-positive ttl never expires.
func (c *RedisCache) Set(ctx context.Context, key string, data []byte, ttl time.Duration) error {
	if ttl < 0 {
		ttl = 0
	}
	return c.retry.Do(ctx, func(ctx context.Context) error {
		return classify(c.client.Set(ctx, c.prefix+key, data, ttl).Err())
	})
}

// Delete removes an entry.
func (c *RedisCache) Delete(ctx context.Context, key string) error {
	return c.retry.Do(ctx, func(ctx context.Context) error {
		return classify(c.client.Del(ctx, c.prefix+key).Err())
	})
}

// Close closes the client.
func (c *RedisCache) Close() error {
	return c.client.Close()
}

// classify marks connection-level failures as transient.
func classify(err error) error {
	if err == nil || errors.Is(err, redis.Nil) {
		return err
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return Transient(fmt.Errorf("%w: %v", ErrUnreachable, err))
	}
	return err
}

var _ Cache = (*RedisCache)(nil)
