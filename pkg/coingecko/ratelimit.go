package coingecko

import (
	"context"
	"time"
)

// RateLimiter enforces minimum spacing between outbound provider requests.
// Callers are expected to be sequential; the last-call field is not
// synchronized. A later concurrent fetcher design would need to put a mutex
// or a gating goroutine in front of it.
type RateLimiter struct {
	interval time.Duration
	last     time.Time

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

// NewRateLimiter builds a limiter with the given minimum spacing.
func NewRateLimiter(interval time.Duration) *RateLimiter {
	return &RateLimiter{
		interval: interval,
		now:      time.Now,
		sleep:    sleepCtx,
	}
}

// Wait blocks until at least the configured interval has elapsed since the
// previous permitted call. The first call returns immediately.
func (l *RateLimiter) Wait(ctx context.Context) error {
	if l.interval <= 0 {
		l.last = l.now()
		return nil
	}
	if !l.last.IsZero() {
		if remaining := l.interval - l.now().Sub(l.last); remaining > 0 {
			if err := l.sleep(ctx, remaining); err != nil {
				return err
			}
		}
	}
	l.last = l.now()
	return nil
}

// Interval reports the configured minimum spacing.
func (l *RateLimiter) Interval() time.Duration { return l.interval }

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
