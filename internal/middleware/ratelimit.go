// ratelimit.go enforces per-caller request budgets and answers 429 when a
// budget is spent. Two Limiter implementations exist: an in-process token
// bucket for single-instance deployments and a Redis GCRA limiter shared by
// every replica.
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

// RateLimitConfig holds configuration for rate limiting
type RateLimitConfig struct {
	// RequestsPerMinute is the sustained refill rate.
	RequestsPerMinute int
	// BurstSize is the bucket capacity.
	BurstSize int
	// CleanupInterval is how often idle in-memory buckets are dropped.
	CleanupInterval time.Duration
}

// DefaultRateLimitConfig applies to authenticated API traffic.
func DefaultRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{
		RequestsPerMinute: 120,
		BurstSize:         30,
		CleanupInterval:   5 * time.Minute,
	}
}

// AuthRateLimitConfig applies to login, two-factor challenge, registration and
// password reset routes.
func AuthRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{
		RequestsPerMinute: 10,
		BurstSize:         5,
		CleanupInterval:   5 * time.Minute,
	}
}

// WithOverrides returns c with positive perMinute and burst applied.
func (c RateLimitConfig) WithOverrides(perMinute, burst int) RateLimitConfig {
	if perMinute > 0 {
		c.RequestsPerMinute = perMinute
	}
	if burst > 0 {
		c.BurstSize = burst
	}
	return c
}

// Decision is the outcome of a single Take.
type Decision struct {
	Allowed    bool
	Limit      int
	Remaining  int
	RetryAfter time.Duration
}

// Limiter decides whether one more request for key fits the budget.
type Limiter interface {
	Take(ctx context.Context, key string) Decision
}

// ---------------------------------------------------------------------------
// In-memory token bucket
// ---------------------------------------------------------------------------

type bucket struct {
	tokens     float64
	lastUpdate time.Time
}

// RateLimiter is a per-process token bucket limiter.
type RateLimiter struct {
	config  RateLimitConfig
	entries map[string]*bucket
	mu      sync.Mutex
	stopCh  chan struct{}
	once    sync.Once
	now     func() time.Time
}

// NewRateLimiter creates a limiter and starts its idle-bucket sweeper.
func NewRateLimiter(config RateLimitConfig) *RateLimiter {
	if config.CleanupInterval <= 0 {
		config.CleanupInterval = 5 * time.Minute
	}
	rl := &RateLimiter{
		config:  config,
		entries: make(map[string]*bucket),
		stopCh:  make(chan struct{}),
		now:     time.Now,
	}

	go rl.cleanup()

	return rl
}

func (rl *RateLimiter) cleanup() {
	ticker := time.NewTicker(rl.config.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			rl.sweep(10 * time.Minute)
		case <-rl.stopCh:
			return
		}
	}
}

func (rl *RateLimiter) sweep(idle time.Duration) {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	now := rl.now()
	for key, b := range rl.entries {
		if now.Sub(b.lastUpdate) > idle {
			delete(rl.entries, key)
		}
	}
}

// Stop terminates the sweeper. Safe to call more than once.
func (rl *RateLimiter) Stop() {
	rl.once.Do(func() { close(rl.stopCh) })
}

func (rl *RateLimiter) refillRate() float64 {
	return float64(rl.config.RequestsPerMinute) / 60.0
}

// Take consumes one token for key when available.
func (rl *RateLimiter) Take(_ context.Context, key string) Decision {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	b, exists := rl.entries[key]
	if !exists {
		b = &bucket{tokens: float64(rl.config.BurstSize), lastUpdate: now}
		rl.entries[key] = b
	} else {
		elapsed := now.Sub(b.lastUpdate).Seconds()
		b.tokens = math.Min(float64(rl.config.BurstSize), b.tokens+elapsed*rl.refillRate())
		b.lastUpdate = now
	}

	d := Decision{Limit: rl.config.RequestsPerMinute}
	if b.tokens >= 1 {
		b.tokens--
		d.Allowed = true
		d.Remaining = int(b.tokens)
		return d
	}

	d.Remaining = 0
	if rate := rl.refillRate(); rate > 0 {
		d.RetryAfter = time.Duration((1 - b.tokens) / rate * float64(time.Second))
	} else {
		d.RetryAfter = time.Minute
	}
	return d
}

// ---------------------------------------------------------------------------
// Redis limiter
// ---------------------------------------------------------------------------

// RedisRateLimiter shares budgets across replicas through Redis. When Redis
// is unreachable it lets requests through and logs the failure.
type RedisRateLimiter struct {
	limiter *redis_rate.Limiter
	limit   redis_rate.Limit
	prefix  string
}

// NewRedisRateLimiter builds a limiter whose keys live under prefix.
func NewRedisRateLimiter(client redis.UniversalClient, prefix string, config RateLimitConfig) *RedisRateLimiter {
	limit := redis_rate.PerMinute(config.RequestsPerMinute)
	if config.BurstSize > 0 {
		limit.Burst = config.BurstSize
	}
	return &RedisRateLimiter{
		limiter: redis_rate.NewLimiter(client),
		limit:   limit,
		prefix:  prefix,
	}
}

// Take implements Limiter.
func (l *RedisRateLimiter) Take(ctx context.Context, key string) Decision {
	res, err := l.limiter.Allow(ctx, l.prefix+key, l.limit)
	if err != nil {
		slog.Warn("rate limit: redis unavailable, allowing request", "key", key, "error", err)
		return Decision{Allowed: true, Limit: l.limit.Rate, Remaining: l.limit.Burst}
	}
	return Decision{
		Allowed:    res.Allowed > 0,
		Limit:      l.limit.Rate,
		Remaining:  res.Remaining,
		RetryAfter: res.RetryAfter,
	}
}

// ---------------------------------------------------------------------------
// Middleware
// ---------------------------------------------------------------------------

// RateLimitMiddleware rejects requests over budget with 429.
func RateLimitMiddleware(limiter Limiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		d := limiter.Take(c.Request.Context(), rateLimitKey(c))

		c.Header("X-RateLimit-Limit", strconv.Itoa(d.Limit))
		c.Header("X-RateLimit-Remaining", strconv.Itoa(d.Remaining))

		if !d.Allowed {
			retry := int(math.Ceil(d.RetryAfter.Seconds()))
			if retry < 1 {
				retry = 1
			}
			c.Header("Retry-After", strconv.Itoa(retry))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"message":     "Too many requests.",
				"retry_after": retry,
			})
			return
		}

		c.Next()
	}
}

// rateLimitKey buckets resolved callers by user id and everyone else by IP.
func rateLimitKey(c *gin.Context) string {
	if v, exists := c.Get(ContextUserIDKey); exists {
		if id, ok := v.(int64); ok && id > 0 {
			return "user:" + strconv.FormatInt(id, 10)
		}
	}

	ip := c.ClientIP()
	if ip == "" {
		ip = c.Request.RemoteAddr
	}
	return "ip:" + ip
}
