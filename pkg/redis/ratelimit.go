package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// fixedWindowScript atomically increments the counter for the current
// window and sets its expiry on first increment. Returns the count and
// the remaining window in milliseconds.
var fixedWindowScript = redis.NewScript(`
local key = KEYS[1]
local window_ms = tonumber(ARGV[1])

local count = redis.call('INCR', key)
if count == 1 then
	redis.call('PEXPIRE', key, window_ms)
end

local ttl = redis.call('PTTL', key)
if ttl < 0 then
	redis.call('PEXPIRE', key, window_ms)
	ttl = window_ms
end

return {count, ttl}
`)

// RateLimitResult describes the outcome of a rate limit check
type RateLimitResult struct {
	Allowed   bool          `json:"allowed"`
	Remaining int           `json:"remaining"`
	ResetAt   time.Time     `json:"reset_at"`
	RetryIn   time.Duration `json:"retry_in"`
}

// CheckRateLimit applies a fixed-window counter scoped to key. Every call
// consumes one unit from the window whether or not it is allowed.
func (c *Client) CheckRateLimit(ctx context.Context, key string, limit int, window time.Duration) (*RateLimitResult, error) {
	redisKey := fmt.Sprintf("ratelimit:%s", key)

	result, err := fixedWindowScript.Run(ctx, c.rdb, []string{redisKey}, window.Milliseconds()).Result()
	if err != nil {
		return nil, fmt.Errorf("rate limit script failed: %w", err)
	}

	values, ok := result.([]interface{})
	if !ok || len(values) != 2 {
		return nil, fmt.Errorf("unexpected rate limit script result: %v", result)
	}

	count, ok := values[0].(int64)
	if !ok {
		return nil, fmt.Errorf("unexpected count type: %T", values[0])
	}
	ttlMs, ok := values[1].(int64)
	if !ok {
		return nil, fmt.Errorf("unexpected ttl type: %T", values[1])
	}

	resetAt := time.Now().Add(time.Duration(ttlMs) * time.Millisecond)
	remaining := limit - int(count)
	if remaining < 0 {
		remaining = 0
	}

	res := &RateLimitResult{
		Allowed:   count <= int64(limit),
		Remaining: remaining,
		ResetAt:   resetAt,
	}
	if !res.Allowed {
		res.RetryIn = time.Duration(ttlMs) * time.Millisecond
	}

	return res, nil
}

// ResetRateLimit clears the current window for a key
func (c *Client) ResetRateLimit(ctx context.Context, key string) error {
	return c.rdb.Del(ctx, fmt.Sprintf("ratelimit:%s", key)).Err()
}
