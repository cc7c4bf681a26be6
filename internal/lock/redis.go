package lock

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// DefaultKeyPrefix namespaces lock keys in Redis.
const DefaultKeyPrefix = "orgspace:lock:"

// releaseScript deletes the key only if it still holds our token, so an expired
// lock taken over by another holder is never released by mistake.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// Redis is a Locker shared by every replica using the same Redis instance.
// Each lock expires after ttl so a crashed holder cannot block an organization
// forever.
type Redis struct {
	client redis.UniversalClient
	prefix string
	ttl    time.Duration
	retry  time.Duration
	wait   time.Duration
}

var _ Locker = (*Redis)(nil)

// RedisOptions configures a Redis locker.
type RedisOptions struct {
	KeyPrefix     string
	TTL           time.Duration
	RetryInterval time.Duration
	WaitTimeout   time.Duration
}

// NewRedis creates a Redis-backed Locker.
func NewRedis(client redis.UniversalClient, opts RedisOptions) *Redis {
	r := &Redis{
		client: client,
		prefix: opts.KeyPrefix,
		ttl:    opts.TTL,
		retry:  opts.RetryInterval,
		wait:   opts.WaitTimeout,
	}
	if r.prefix == "" {
		r.prefix = DefaultKeyPrefix
	}
	if r.ttl <= 0 {
		r.ttl = 5 * time.Minute
	}
	if r.retry <= 0 {
		r.retry = 100 * time.Millisecond
	}
	return r
}

// Acquire implements Locker.
func (r *Redis) Acquire(ctx context.Context, keys ...string) (Release, error) {
	ctx, cancel := waitContext(ctx, r.wait)
	defer cancel()

	var held []Release
	for _, key := range normalizeKeys(keys) {
		release, err := r.acquireOne(ctx, r.prefix+key)
		if err != nil {
			releaseAll(held)()
			return nil, err
		}
		held = append(held, release)
	}
	return releaseAll(held), nil
}

func (r *Redis) acquireOne(ctx context.Context, key string) (Release, error) {
	token := uuid.NewString()
	ticker := time.NewTicker(r.retry)
	defer ticker.Stop()

	for {
		ok, err := r.client.SetNX(ctx, key, token, r.ttl).Result()
		if err != nil {
			if ctx.Err() != nil {
				return nil, ErrTimeout
			}
			return nil, fmt.Errorf("failed to acquire lock %s: %w", key, err)
		}
		if ok {
			return func() { r.release(key, token) }, nil
		}

		select {
		case <-ctx.Done():
			return nil, ErrTimeout
		case <-ticker.C:
		}
	}
}

func (r *Redis) release(key, token string) {
	// The caller's context may already be cancelled; releasing must still happen.
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := releaseScript.Run(ctx, r.client, []string{key}, token).Err(); err != nil {
		slog.Warn("failed to release lock; it will expire on its own", "key", key, "error", err)
	}
}
