package reminder

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisRunGuard implements RunGuard with SETNX so that overlapping periodic
// invocations across instances collapse to a single run per day.
type RedisRunGuard struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisRunGuard constructs the guard. TTL bounds how long a crashed run
// blocks the slot before another instance may take over.
func NewRedisRunGuard(client *redis.Client, ttl time.Duration) *RedisRunGuard {
	if ttl <= 0 {
		ttl = 30 * time.Minute
	}
	return &RedisRunGuard{client: client, ttl: ttl}
}

// Acquire reports whether this invocation holds the slot for the key.
func (g *RedisRunGuard) Acquire(ctx context.Context, key string) (bool, error) {
	if g.client == nil {
		return true, nil
	}
	return g.client.SetNX(ctx, key, time.Now().UTC().Format(time.RFC3339), g.ttl).Result()
}
