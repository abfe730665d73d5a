package lock

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/warp/violation-sync/violations"
)

const (
	// Redis key prefix for advisory locks
	lockKeyPrefix = "vsync:lock:"

	// DefaultTTL bounds how long a crashed holder keeps the lock.
	DefaultTTL = 30 * time.Minute
)

// releaseScript deletes the key only if we still own it.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// Redis is a distributed advisory lock (SET NX PX + compare-and-delete).
type Redis struct {
	client *redis.Client
	ttl    time.Duration
}

// RedisOption configures a Redis guard.
type RedisOption func(*Redis)

// WithTTL overrides DefaultTTL.
func WithTTL(ttl time.Duration) RedisOption {
	return func(r *Redis) {
		if ttl > 0 {
			r.ttl = ttl
		}
	}
}

func NewRedis(client *redis.Client, opts ...RedisOption) *Redis {
	r := &Redis{client: client, ttl: DefaultTTL}
	for _, opt := range opts {
		if opt != nil {
			opt(r)
		}
	}
	return r
}

// Connect parses a redis:// URL and pings the server.
func Connect(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis URL: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}
	return client, nil
}

// Acquire sets the lock key if absent.
func (r *Redis) Acquire(ctx context.Context, key string) (func(), error) {
	token := uuid.NewString()
	fullKey := lockKeyPrefix + key

	ok, err := r.client.SetNX(ctx, fullKey, token, r.ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("acquire lock %s: %w", key, err)
	}
	if !ok {
		return nil, violations.ErrSweepInProgress
	}

	return func() {
		// The sweep's context may be done by now.
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		r.release(ctx, key, token)
	}, nil
}

// release deletes the key if token still owns it and reports whether it did.
// A miss means the TTL ran out during the sweep and exclusivity was lost.
func (r *Redis) release(ctx context.Context, key, token string) bool {
	n, err := releaseScript.Run(ctx, r.client, []string{lockKeyPrefix + key}, token).Int64()
	if err != nil {
		log.Printf("[Lock] Failed to release %s: %v", key, err)
		return false
	}
	if n == 0 {
		log.Printf("[Lock] WARNING: %s expired before release (ttl %v); raise redis.ttl above the longest sweep", key, r.ttl)
		return false
	}
	return true
}
