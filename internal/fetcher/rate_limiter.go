package fetcher

import (
	"context"
	"sync"
	"time"
)

// RateLimiter caps requests per minute per host. Concurrent runs share one
// limiter so the API host sees a single budget.
type RateLimiter struct {
	rpm      int
	limiters map[string]*hostLimiter
	mu       sync.Mutex
}

type hostLimiter struct {
	windowStart time.Time
	requests    int
	mu          sync.Mutex
}

func NewRateLimiter(rpm int) *RateLimiter {
	return &RateLimiter{
		rpm:      rpm,
		limiters: make(map[string]*hostLimiter),
	}
}

func (rl *RateLimiter) Wait(ctx context.Context, host string) error {
	if rl == nil || rl.rpm <= 0 {
		return ctx.Err()
	}

	rl.mu.Lock()
	limiter, exists := rl.limiters[host]
	if !exists {
		limiter = &hostLimiter{}
		rl.limiters[host] = limiter
	}
	rl.mu.Unlock()

	for {
		limiter.mu.Lock()
		now := time.Now()

		// New window once a minute has passed
		if now.Sub(limiter.windowStart) >= time.Minute {
			limiter.windowStart = now
			limiter.requests = 0
		}

		if limiter.requests < rl.rpm {
			limiter.requests++
			limiter.mu.Unlock()
			return ctx.Err()
		}

		waitTime := time.Minute - now.Sub(limiter.windowStart)
		limiter.mu.Unlock()

		timer := time.NewTimer(waitTime)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		}
	}
}
