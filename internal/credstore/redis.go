package credstore

import (
	"context"
	stderrors "errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisBackend stores values as Redis strings under a key prefix.
type RedisBackend struct {
	cli    *redis.Client
	prefix string
	ttl    time.Duration
}

// NewRedisBackend connects to the Redis server at url and verifies the
// connection. A zero ttl keeps values until deleted.
func NewRedisBackend(ctx context.Context, url, prefix string, ttl time.Duration) (*RedisBackend, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("redis parse url: %w", err)
	}
	cli := redis.NewClient(opts)
	if err := cli.Ping(ctx).Err(); err != nil {
		if closeErr := cli.Close(); closeErr != nil {
			return nil, fmt.Errorf("redis ping: %w (close: %v)", err, closeErr)
		}
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return &RedisBackend{cli: cli, prefix: prefix, ttl: ttl}, nil
}

// Name implements Backend.
func (r *RedisBackend) Name() string { return "redis" }

// Load implements Backend.
func (r *RedisBackend) Load(ctx context.Context, key string) ([]byte, error) {
	value, err := r.cli.Get(ctx, r.prefix+key).Bytes()
	if stderrors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	return value, err
}

// Save implements Backend.
func (r *RedisBackend) Save(ctx context.Context, key string, value []byte) error {
	return r.cli.Set(ctx, r.prefix+key, value, r.ttl).Err()
}

// Delete implements Backend.
func (r *RedisBackend) Delete(ctx context.Context, key string) error {
	return r.cli.Del(ctx, r.prefix+key).Err()
}

// Close implements Backend.
func (r *RedisBackend) Close() error {
	return r.cli.Close()
}
