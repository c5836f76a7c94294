package cache

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// DefaultRedisPrefix namespaces cache keys on a shared server.
const DefaultRedisPrefix = "reqsync:"

type redisBackend struct {
	client *redis.Client
	prefix string
	owned  bool
}

// NewRedis wraps an existing client. The caller keeps ownership of client;
// Close on the returned Cache leaves it open.
func NewRedis(client *redis.Client, prefix string, opts ...Option) *Cache {
	return newCache(&redisBackend{client: client, prefix: prefix}, "redis", opts...)
}

// DialRedis creates a client for addr. The connection is established lazily,
// so an unreachable server shows up as logged cache misses, not as an error.
func DialRedis(addr, prefix string, opts ...Option) *Cache {
	client := redis.NewClient(&redis.Options{Addr: addr})
	return newCache(&redisBackend{client: client, prefix: prefix, owned: true}, "redis", opts...)
}

func (b *redisBackend) get(ctx context.Context, key string) ([]byte, bool, error) {
	val, err := b.client.Get(ctx, b.prefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("redis get %s: %w", key, err)
	}
	return val, true, nil
}

func (b *redisBackend) set(ctx context.Context, key string, value []byte) error {
	if err := b.client.Set(ctx, b.prefix+key, value, 0).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", key, err)
	}
	return nil
}

func (b *redisBackend) del(ctx context.Context, key string) error {
	if err := b.client.Del(ctx, b.prefix+key).Err(); err != nil {
		return fmt.Errorf("redis del %s: %w", key, err)
	}
	return nil
}

func (b *redisBackend) close() error {
	if !b.owned {
		return nil
	}
	return b.client.Close()
}
