// Package ratelimit limits how often one browser session may start runs.
//
// Every run fans out into a backend analysis, so submissions are the one
// route worth limiting. MemoryLimiter keeps a token bucket per key in
// process; NoopLimiter disables limiting.
package ratelimit

import (
	"context"
	"time"
)

// Limiter decides whether a request identified by key should be allowed.
// Implementations must be safe for concurrent use.
type Limiter interface {
	// Allow returns true if the request should proceed. Returning an error
	// signals a limiter malfunction; callers fail open.
	Allow(ctx context.Context, key string) (bool, error)

	// Close releases resources (cleanup goroutines).
	Close() error
}

// Waiter is implemented by limiters that know when a denied key gets its
// next token. Middleware uses it for the Retry-After header.
type Waiter interface {
	Wait(key string) time.Duration
}

// New returns a MemoryLimiter for a positive rate, or a NoopLimiter when
// rate limiting is disabled (rate or burst of zero).
func New(rate float64, burst int) Limiter {
	if rate <= 0 || burst <= 0 {
		return NoopLimiter{}
	}
	return NewMemoryLimiter(rate, burst)
}

// NoopLimiter permits every request. Used when rate limiting is disabled.
type NoopLimiter struct{}

// Allow always returns true.
func (NoopLimiter) Allow(context.Context, string) (bool, error) { return true, nil }

// Close is a no-op.
func (NoopLimiter) Close() error { return nil }
