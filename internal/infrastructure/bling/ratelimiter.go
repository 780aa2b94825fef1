package bling

import (
	"context"
	"sync"
	"time"
)

// rateLimiter is a token bucket shared by every request the client sends.
// The ERP enforces a global per-application quota, so the bucket is not
// partitioned per tenant.
type rateLimiter struct {
	mu         sync.Mutex
	tokens     float64
	capacity   float64
	perSecond  float64
	lastRefill time.Time
}

func newRateLimiter(perSecond float64, burst int) *rateLimiter {
	if perSecond <= 0 {
		perSecond = 1
	}
	if burst <= 0 {
		burst = 1
	}
	return &rateLimiter{
		tokens:     float64(burst),
		capacity:   float64(burst),
		perSecond:  perSecond,
		lastRefill: time.Now(),
	}
}

// Wait blocks until a token is available or the context is cancelled
func (rl *rateLimiter) Wait(ctx context.Context) error {
	for {
		delay, ok := rl.take()
		if ok {
			return nil
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// take attempts to consume a token, returning how long to wait on refusal
func (rl *rateLimiter) take() (time.Duration, bool) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	rl.tokens += now.Sub(rl.lastRefill).Seconds() * rl.perSecond
	if rl.tokens > rl.capacity {
		rl.tokens = rl.capacity
	}
	rl.lastRefill = now

	if rl.tokens >= 1 {
		rl.tokens--
		return 0, true
	}

	deficit := 1 - rl.tokens
	return time.Duration(deficit / rl.perSecond * float64(time.Second)), false
}
