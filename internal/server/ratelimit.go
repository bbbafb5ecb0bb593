package server

import (
	"sync"
	"time"
)

// RateLimitConfig bounds overall request throughput and the per-source rate
// of transport status webhooks. Zero values disable the respective limit.
type RateLimitConfig struct {
	GlobalRPS   float64
	GlobalBurst int
	HookLimit   int
	HookWindow  time.Duration
}

type rateLimiter struct {
	global      *tokenBucket
	hookLimit   int
	hookWindow  time.Duration
	hookMu      sync.Mutex
	hookBuckets map[string]*ipLimiter
}

type ipLimiter struct {
	bucket   *tokenBucket
	lastSeen time.Time
}

func newRateLimiter(cfg RateLimitConfig) *rateLimiter {
	rl := &rateLimiter{
		hookLimit:   cfg.HookLimit,
		hookWindow:  cfg.HookWindow,
		hookBuckets: make(map[string]*ipLimiter),
	}
	if cfg.GlobalRPS > 0 {
		burst := cfg.GlobalBurst
		if burst <= 0 {
			burst = int(cfg.GlobalRPS)
			if burst < 1 {
				burst = 1
			}
		}
		rl.global = newTokenBucket(cfg.GlobalRPS, burst)
	}
	if rl.hookWindow <= 0 {
		rl.hookWindow = time.Minute
	}
	return rl
}

func (r *rateLimiter) AllowRequest() bool {
	if r == nil || r.global == nil {
		return true
	}
	return r.global.Allow()
}

// AllowHook bounds how fast one source may deliver status webhooks, keeping a
// misbehaving transport from flooding the reconciler.
func (r *rateLimiter) AllowHook(key string) (bool, time.Duration) {
	if r == nil || r.hookLimit <= 0 {
		return true, 0
	}
	if key == "" {
		key = "unknown"
	}
	r.hookMu.Lock()
	defer r.hookMu.Unlock()
	limiter, exists := r.hookBuckets[key]
	if !exists {
		rate := float64(r.hookLimit) / r.hookWindow.Seconds()
		if rate <= 0 {
			rate = 1 / r.hookWindow.Seconds()
		}
		limiter = &ipLimiter{bucket: newTokenBucket(rate, r.hookLimit)}
		r.hookBuckets[key] = limiter
	}
	limiter.lastSeen = time.Now()
	r.cleanupLocked()
	if limiter.bucket.Allow() {
		return true, 0
	}
	return false, time.Second
}

func (r *rateLimiter) cleanupLocked() {
	if len(r.hookBuckets) == 0 {
		return
	}
	cutoff := time.Now().Add(-2 * r.hookWindow)
	for key, limiter := range r.hookBuckets {
		if limiter.lastSeen.Before(cutoff) {
			delete(r.hookBuckets, key)
		}
	}
}

type tokenBucket struct {
	mu        sync.Mutex
	rate      float64
	capacity  float64
	tokens    float64
	lastCheck time.Time
}

func newTokenBucket(rate float64, burst int) *tokenBucket {
	if rate <= 0 {
		rate = 1
	}
	if burst <= 0 {
		burst = 1
	}
	return &tokenBucket{
		rate:      rate,
		capacity:  float64(burst),
		tokens:    float64(burst),
		lastCheck: time.Now(),
	}
}

func (tb *tokenBucket) Allow() bool {
	tb.mu.Lock()
	defer tb.mu.Unlock()
	now := time.Now()
	elapsed := now.Sub(tb.lastCheck).Seconds()
	tb.lastCheck = now
	tb.tokens += elapsed * tb.rate
	if tb.tokens > tb.capacity {
		tb.tokens = tb.capacity
	}
	if tb.tokens < 1 {
		return false
	}
	tb.tokens -= 1
	return true
}
