// ratelimit.go enforces per-client token-bucket limits, answering 429 once a
// client has spent its burst. The in-memory limiter serves a single replica;
// RedisLimiter shares the budget across replicas.
package middleware

import (
	"context"
	"log/slog"
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis_rate/v10"
	"github.com/redis/go-redis/v9"
)

// RateLimitConfig holds the budget of one limiter.
type RateLimitConfig struct {
	// RequestsPerMinute is the sustained refill rate.
	RequestsPerMinute int
	// BurstSize is the bucket capacity.
	BurstSize int
	// CleanupInterval is how often idle in-memory buckets are evicted.
	CleanupInterval time.Duration
}

// DefaultRateLimitConfig returns the limits applied to the whole API.
func DefaultRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{
		RequestsPerMinute: 200,
		BurstSize:         50,
		CleanupInterval:   5 * time.Minute,
	}
}

// LoginRateLimitConfig returns the stricter limits for /admin/login.
func LoginRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{
		RequestsPerMinute: 10,
		BurstSize:         5,
		CleanupInterval:   5 * time.Minute,
	}
}

// Decision is the outcome of one rate limit check.
type Decision struct {
	Allowed    bool
	Remaining  int
	RetryAfter time.Duration
}

// Limiter decides whether a request identified by key may proceed.
type Limiter interface {
	Allow(ctx context.Context, key string) (Decision, error)
	Limit() int
}

type bucket struct {
	tokens     float64
	lastUpdate time.Time
}

// RateLimiter is an in-process token bucket limiter.
type RateLimiter struct {
	config  RateLimitConfig
	buckets map[string]*bucket
	mu      sync.Mutex
	now     func() time.Time
	stopCh  chan struct{}
	once    sync.Once
}

var _ Limiter = (*RateLimiter)(nil)

// NewRateLimiter creates a limiter and starts its eviction goroutine. Call Stop
// to end it.
func NewRateLimiter(config RateLimitConfig) *RateLimiter {
	rl := &RateLimiter{
		config:  config,
		buckets: make(map[string]*bucket),
		now:     time.Now,
		stopCh:  make(chan struct{}),
	}
	if config.CleanupInterval > 0 {
		go rl.cleanup()
	}
	return rl
}

func (rl *RateLimiter) cleanup() {
	ticker := time.NewTicker(rl.config.CleanupInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			rl.evictIdle(10 * time.Minute)
		case <-rl.stopCh:
			return
		}
	}
}

func (rl *RateLimiter) evictIdle(idle time.Duration) {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	now := rl.now()
	for key, b := range rl.buckets {
		if now.Sub(b.lastUpdate) > idle {
			delete(rl.buckets, key)
		}
	}
}

// Stop ends the eviction goroutine. It is safe to call more than once.
func (rl *RateLimiter) Stop() {
	rl.once.Do(func() { close(rl.stopCh) })
}

// Limit implements Limiter.
func (rl *RateLimiter) Limit() int { return rl.config.RequestsPerMinute }

// Allow implements Limiter.
func (rl *RateLimiter) Allow(_ context.Context, key string) (Decision, error) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	perSecond := float64(rl.config.RequestsPerMinute) / 60.0
	capacity := float64(rl.config.BurstSize)

	b, ok := rl.buckets[key]
	if !ok {
		b = &bucket{tokens: capacity, lastUpdate: now}
		rl.buckets[key] = b
	} else {
		b.tokens = math.Min(capacity, b.tokens+now.Sub(b.lastUpdate).Seconds()*perSecond)
		b.lastUpdate = now
	}

	if b.tokens >= 1 {
		b.tokens--
		return Decision{Allowed: true, Remaining: int(b.tokens)}, nil
	}

	retry := time.Minute
	if perSecond > 0 {
		retry = time.Duration((1 - b.tokens) / perSecond * float64(time.Second))
	}
	return Decision{Allowed: false, Remaining: 0, RetryAfter: retry}, nil
}

// RedisLimiter is a GCRA limiter shared through Redis.
type RedisLimiter struct {
	limiter *redis_rate.Limiter
	limit   redis_rate.Limit
	prefix  string
}

var _ Limiter = (*RedisLimiter)(nil)

// NewRedisLimiter creates a limiter whose state lives in client under prefix.
func NewRedisLimiter(client redis.UniversalClient, prefix string, config RateLimitConfig) *RedisLimiter {
	return &RedisLimiter{
		limiter: redis_rate.NewLimiter(client),
		limit: redis_rate.Limit{
			Rate:   config.RequestsPerMinute,
			Burst:  config.BurstSize,
			Period: time.Minute,
		},
		prefix: prefix,
	}
}

// Limit implements Limiter.
func (rl *RedisLimiter) Limit() int { return rl.limit.Rate }

// Allow implements Limiter.
func (rl *RedisLimiter) Allow(ctx context.Context, key string) (Decision, error) {
	res, err := rl.limiter.Allow(ctx, rl.prefix+key, rl.limit)
	if err != nil {
		return Decision{}, err
	}
	return Decision{
		Allowed:    res.Allowed > 0,
		Remaining:  res.Remaining,
		RetryAfter: res.RetryAfter,
	}, nil
}

// RateLimitMiddleware rejects requests over budget with 429. A limiter backend
// error lets the request through.
func RateLimitMiddleware(limiter Limiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := rateLimitKey(c)
		d, err := limiter.Allow(c.Request.Context(), key)
		if err != nil {
			slog.Warn("rate limiter unavailable, allowing request", "key", key, "error", err)
			c.Next()
			return
		}

		c.Header("X-RateLimit-Limit", strconv.Itoa(limiter.Limit()))
		c.Header("X-RateLimit-Remaining", strconv.Itoa(d.Remaining))
		if !d.Allowed {
			retry := int(math.Ceil(d.RetryAfter.Seconds()))
			if retry < 1 {
				retry = 1
			}
			c.Header("Retry-After", strconv.Itoa(retry))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error":       "Rate limit exceeded",
				"retry_after": retry,
			})
			return
		}
		c.Next()
	}
}

// rateLimitKey prefers the authenticated admin over the client address.
func rateLimitKey(c *gin.Context) string {
	if p, ok := GetPrincipal(c); ok {
		return "admin:" + p.AdminID
	}
	ip := c.ClientIP()
	if ip == "" {
		ip = c.Request.RemoteAddr
	}
	return "ip:" + ip
}
