package middleware

import (
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/labstack/echo/v4"
)

// RateLimitConfig sizes the per-caller token buckets.
type RateLimitConfig struct {
	RequestsPerSecond float64
	BurstSize         int
	// IdleTTL is how long an unused bucket is kept. Zero means 10 minutes.
	IdleTTL time.Duration
}

func DefaultRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{
		RequestsPerSecond: 20,
		BurstSize:         40,
		IdleTTL:           10 * time.Minute,
	}
}

type bucket struct {
	tokens float64
	last   time.Time
}

// limiter holds one bucket per caller key behind a single mutex. Buckets are
// dropped only after they would have refilled completely, so eviction never
// grants a caller extra requests.
type limiter struct {
	mu        sync.Mutex
	rate      float64
	burst     float64
	idleTTL   time.Duration
	now       func() time.Time
	buckets   map[string]*bucket
	lastSweep time.Time
}

func newLimiter(cfg RateLimitConfig, now func() time.Time) *limiter {
	burst := cfg.BurstSize
	if burst < 1 {
		burst = 1
	}
	ttl := cfg.IdleTTL
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	if cfg.RequestsPerSecond > 0 {
		if refill := time.Duration(float64(burst) / cfg.RequestsPerSecond * float64(time.Second)); refill > ttl {
			ttl = refill
		}
	}
	return &limiter{
		rate:    cfg.RequestsPerSecond,
		burst:   float64(burst),
		idleTTL: ttl,
		now:     now,
		buckets: make(map[string]*bucket),
	}
}

// take spends one token of key's bucket. When the bucket is empty it reports
// how long until the next token.
func (l *limiter) take(key string) (remaining int, wait time.Duration, ok bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	l.sweep(now)

	b, found := l.buckets[key]
	if !found {
		b = &bucket{tokens: l.burst, last: now}
		l.buckets[key] = b
	}
	b.tokens = math.Min(l.burst, b.tokens+now.Sub(b.last).Seconds()*l.rate)
	b.last = now

	if b.tokens >= 1 {
		b.tokens--
		return int(b.tokens), 0, true
	}
	if l.rate <= 0 {
		return 0, time.Second, false
	}
	return 0, time.Duration((1 - b.tokens) / l.rate * float64(time.Second)), false
}

func (l *limiter) sweep(now time.Time) {
	if now.Sub(l.lastSweep) < l.idleTTL {
		return
	}
	for k, b := range l.buckets {
		if now.Sub(b.last) >= l.idleTTL {
			delete(l.buckets, k)
		}
	}
	l.lastSweep = now
}

// rateLimitKey is the authenticated provider, or the client IP for requests
// that carry none.
func rateLimitKey(c echo.Context) string {
	if pid, ok := c.Get("provider_id").(string); ok && pid != "" {
		return "provider:" + pid
	}
	return "ip:" + c.RealIP()
}

// RateLimit throttles each provider separately. It must run after the auth
// middleware so the provider is known.
func RateLimit(cfg RateLimitConfig) echo.MiddlewareFunc {
	return rateLimit(cfg, time.Now)
}

func rateLimit(cfg RateLimitConfig, now func() time.Time) echo.MiddlewareFunc {
	l := newLimiter(cfg, now)
	limit := strconv.FormatFloat(cfg.RequestsPerSecond, 'f', -1, 64)

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			remaining, wait, ok := l.take(rateLimitKey(c))

			h := c.Response().Header()
			h.Set("X-RateLimit-Limit", limit)
			h.Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
			if !ok {
				h.Set("Retry-After", strconv.Itoa(int(math.Ceil(wait.Seconds()))))
				return echo.NewHTTPError(http.StatusTooManyRequests, map[string]string{
					"error":   "rate_limited",
					"message": "rate limit exceeded, retry later",
				})
			}
			return next(c)
		}
	}
}
