package ratelimit

import (
	"sync"
	"time"
)

// MemoryLimiter is an in-process sliding window limiter used when Redis is
// unavailable. It is per-instance: in a multi-replica deployment each
// replica enforces the limit independently, so it is a degraded mode, not
// a replacement for the Redis limiter.
type MemoryLimiter struct {
	mu      sync.Mutex
	windows map[string][]time.Time
	maxKeys int
}

// NewMemoryLimiter creates a memory limiter bounded to maxKeys tracked keys
func NewMemoryLimiter(maxKeys int) *MemoryLimiter {
	if maxKeys <= 0 {
		maxKeys = 10000
	}
	return &MemoryLimiter{
		windows: make(map[string][]time.Time),
		maxKeys: maxKeys,
	}
}

// Check records a hit for key and reports whether it fits within limit
// hits per window. Every call consumes a slot, allowed or not.
func (m *MemoryLimiter) Check(key string, limit int, window time.Duration) *Result {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now()
	cutoff := now.Add(-window)

	hits := m.windows[key]
	// Drop hits that fell out of the window
	live := hits[:0]
	for _, t := range hits {
		if t.After(cutoff) {
			live = append(live, t)
		}
	}

	if _, tracked := m.windows[key]; !tracked && len(m.windows) >= m.maxKeys {
		m.evictOldest()
	}

	live = append(live, now)
	m.windows[key] = live

	resetAt := live[0].Add(window)
	remaining := limit - len(live)
	if remaining < 0 {
		remaining = 0
	}

	result := &Result{
		Allowed:   len(live) <= limit,
		Remaining: remaining,
		ResetAt:   resetAt,
	}
	if !result.Allowed {
		result.RetryIn = time.Until(resetAt)
		if result.RetryIn < 0 {
			result.RetryIn = 0
		}
	}
	return result
}

// evictOldest removes the key whose most recent hit is oldest. Caller
// must hold the lock.
func (m *MemoryLimiter) evictOldest() {
	var oldestKey string
	var oldestTime time.Time

	for key, hits := range m.windows {
		if len(hits) == 0 {
			delete(m.windows, key)
			return
		}
		last := hits[len(hits)-1]
		if oldestKey == "" || last.Before(oldestTime) {
			oldestKey = key
			oldestTime = last
		}
	}

	if oldestKey != "" {
		delete(m.windows, oldestKey)
	}
}

// Reset clears the window for a key
func (m *MemoryLimiter) Reset(key string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.windows, key)
}

// Len returns the number of tracked keys
func (m *MemoryLimiter) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.windows)
}
