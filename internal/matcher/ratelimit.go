// ratelimit.go adapts the teacher's exchange/ratelimit.go token bucket to a
// generic downstream execution venue: continuous refill (never a 10s burst
// cliff), Wait(ctx) blocks until a token is free or ctx is done. Unlike the
// teacher's NewRateLimiter, which hardcodes Polymarket's own published
// per-window limits, every bucket here is sized from the caller's
// RESTVenueConfig.RateLimit — this package has no opinion on any one venue's
// throttle.
package matcher

import (
	"context"
	"sync"
	"time"
)

// tokenBucket is a token-bucket rate limiter with continuous refill.
type tokenBucket struct {
	mu       sync.Mutex
	tokens   float64
	capacity float64
	rate     float64 // tokens refilled per second
	lastTime time.Time
}

func newTokenBucket(capacity, ratePerSecond float64) *tokenBucket {
	return &tokenBucket{
		tokens:   capacity,
		capacity: capacity,
		rate:     ratePerSecond,
		lastTime: time.Now(),
	}
}

// Wait blocks until a token is available or ctx is cancelled.
func (tb *tokenBucket) Wait(ctx context.Context) error {
	for {
		tb.mu.Lock()
		now := time.Now()
		elapsed := now.Sub(tb.lastTime).Seconds()
		tb.tokens += elapsed * tb.rate
		if tb.tokens > tb.capacity {
			tb.tokens = tb.capacity
		}
		tb.lastTime = now

		if tb.tokens >= 1 {
			tb.tokens--
			tb.mu.Unlock()
			return nil
		}

		wait := time.Duration((1 - tb.tokens) / tb.rate * float64(time.Second))
		tb.mu.Unlock()

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
	}
}

// venueRateLimiter groups token buckets by REST venue operation category,
// the same per-category split the teacher uses for Polymarket's CLOB API,
// applied here to a generic execution venue's order/cancel/book endpoints.
type venueRateLimiter struct {
	Order  *tokenBucket
	Cancel *tokenBucket
	Book   *tokenBucket
}

// newVenueRateLimiter builds rate limiters from the venue's published
// per-category burst/refill limits.
func newVenueRateLimiter(orderBurst, orderPerSec, cancelBurst, cancelPerSec, bookBurst, bookPerSec float64) *venueRateLimiter {
	return &venueRateLimiter{
		Order:  newTokenBucket(orderBurst, orderPerSec),
		Cancel: newTokenBucket(cancelBurst, cancelPerSec),
		Book:   newTokenBucket(bookBurst, bookPerSec),
	}
}
