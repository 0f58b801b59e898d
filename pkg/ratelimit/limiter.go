package ratelimit

import (
	"context"
	"time"

	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/clover/pkg/metrics"
	"github.com/Ramsey-B/clover/pkg/redis"
	"github.com/Ramsey-B/clover/pkg/tracing"
)

// Result describes the outcome of a rate limit check
type Result struct {
	Allowed   bool          `json:"allowed"`
	Remaining int           `json:"remaining"`
	ResetAt   time.Time     `json:"reset_at"`
	RetryIn   time.Duration `json:"retry_in"`
}

// RedisChecker is the Redis-side limiter surface used by the Limiter
type RedisChecker interface {
	CheckRateLimit(ctx context.Context, key string, limit int, window time.Duration) (*redis.RateLimitResult, error)
}

// Limiter enforces per-key rate limits. Redis is the source of truth; if
// Redis is unreachable the check degrades to an in-process sliding window
// instead of failing the request outright.
type Limiter struct {
	redis    RedisChecker
	fallback *MemoryLimiter
	logger   ectologger.Logger
}

// NewLimiter creates a limiter backed by Redis with an in-memory fallback
func NewLimiter(redisChecker RedisChecker, fallbackMaxKeys int, logger ectologger.Logger) *Limiter {
	return &Limiter{
		redis:    redisChecker,
		fallback: NewMemoryLimiter(fallbackMaxKeys),
		logger:   logger,
	}
}

// Check consumes one unit from the window for key and reports whether the
// hit was within limit
func (l *Limiter) Check(ctx context.Context, key string, limit int, window time.Duration) *Result {
	ctx, span := tracing.StartSpan(ctx, "RateLimit.Check")
	defer span.End()

	if l.redis != nil {
		res, err := l.redis.CheckRateLimit(ctx, key, limit, window)
		if err == nil {
			result := &Result{
				Allowed:   res.Allowed,
				Remaining: res.Remaining,
				ResetAt:   res.ResetAt,
				RetryIn:   res.RetryIn,
			}
			if !result.Allowed {
				metrics.RateLimitRejections.WithLabelValues("redis").Inc()
			}
			return result
		}

		l.logger.WithContext(ctx).WithError(err).Warnf("Redis rate limit check failed for %s, using in-memory fallback", key)
		metrics.RateLimitFallbacks.Inc()
	}

	result := l.fallback.Check(key, limit, window)
	if !result.Allowed {
		metrics.RateLimitRejections.WithLabelValues("memory").Inc()
	}
	return result
}
