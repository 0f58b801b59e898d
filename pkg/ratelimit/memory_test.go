package ratelimit

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestMemoryLimiterAllowsWithinLimit(t *testing.T) {
	limiter := NewMemoryLimiter(100)

	for i := 0; i < 5; i++ {
		result := limiter.Check("tenant-1", 5, time.Minute)
		assert.True(t, result.Allowed, "hit %d should be allowed", i+1)
	}

	result := limiter.Check("tenant-1", 5, time.Minute)
	assert.False(t, result.Allowed)
	assert.Equal(t, 0, result.Remaining)
	assert.Greater(t, result.RetryIn, time.Duration(0))
}

func TestMemoryLimiterTracksKeysIndependently(t *testing.T) {
	limiter := NewMemoryLimiter(100)

	for i := 0; i < 3; i++ {
		limiter.Check("tenant-1", 3, time.Minute)
	}

	assert.False(t, limiter.Check("tenant-1", 3, time.Minute).Allowed)
	assert.True(t, limiter.Check("tenant-2", 3, time.Minute).Allowed)
}

func TestMemoryLimiterExpiresOldHits(t *testing.T) {
	limiter := NewMemoryLimiter(100)

	for i := 0; i < 3; i++ {
		limiter.Check("tenant-1", 3, 50*time.Millisecond)
	}
	assert.False(t, limiter.Check("tenant-1", 3, 50*time.Millisecond).Allowed)

	time.Sleep(60 * time.Millisecond)

	assert.True(t, limiter.Check("tenant-1", 3, 50*time.Millisecond).Allowed)
}

func TestMemoryLimiterBoundsTrackedKeys(t *testing.T) {
	limiter := NewMemoryLimiter(10)

	for i := 0; i < 25; i++ {
		limiter.Check(fmt.Sprintf("key-%d", i), 10, time.Minute)
	}

	assert.LessOrEqual(t, limiter.Len(), 10)
}

func TestMemoryLimiterReset(t *testing.T) {
	limiter := NewMemoryLimiter(100)

	limiter.Check("tenant-1", 1, time.Minute)
	assert.False(t, limiter.Check("tenant-1", 1, time.Minute).Allowed)

	limiter.Reset("tenant-1")
	assert.True(t, limiter.Check("tenant-1", 1, time.Minute).Allowed)
}

func TestMemoryLimiterRemaining(t *testing.T) {
	limiter := NewMemoryLimiter(100)

	result := limiter.Check("tenant-1", 10, time.Minute)
	assert.Equal(t, 9, result.Remaining)

	result = limiter.Check("tenant-1", 10, time.Minute)
	assert.Equal(t, 8, result.Remaining)
}
