package rateLimit

import (
	"context"
	"time"
)

type Counter interface {
	IncrWindow(ctx context.Context, key string, period time.Duration) (int64, error)
}

type Limits struct {
	PerUser int
	PerIP   int
	Window  time.Duration
}

type RateLimiter struct {
	counter Counter
	limits  Limits
}

func NewRateLimiter(counter Counter, limits Limits) *RateLimiter {
	if limits.Window <= 0 {
		limits.Window = time.Minute
	}
	return &RateLimiter{counter: counter, limits: limits}
}

// Allow reports whether one more request under key fits in rate per period.
func (rl *RateLimiter) Allow(ctx context.Context, key string, rate int, period time.Duration) (bool, error) {
	if rate <= 0 {
		return true, nil
	}
	n, err := rl.counter.IncrWindow(ctx, key, period)
	if err != nil {
		return false, err
	}
	return n <= int64(rate), nil
}

// AllowUser applies the per user limit.
func (rl *RateLimiter) AllowUser(ctx context.Context, userID string) (bool, error) {
	return rl.Allow(ctx, "user:"+userID, rl.limits.PerUser, rl.limits.Window)
}

func (rl *RateLimiter) AllowIP(ctx context.Context, ip string) (bool, error) {
	return rl.Allow(ctx, "ip:"+ip, rl.limits.PerIP, rl.limits.Window)
}
