// Package backoff provides exponential backoff with jitter for retrying
// transient provider failures. Adapters use it only while establishing a
// connection (429 and 5xx before the first stream event); a stream that has
// started emitting is never retried.
package backoff

import (
	"context"
	"math"
	"math/rand"
	"time"
)

// Policy parameterizes the backoff curve.
type Policy struct {
	Initial time.Duration
	Max     time.Duration
	// Factor is the exponential growth factor per attempt.
	Factor float64
	// Jitter in [0,1] randomizes each delay by up to that fraction.
	Jitter float64
}

// Default is tuned for provider HTTP APIs: 500ms initial, doubling, capped
// at 10s, with 25% jitter.
func Default() Policy {
	return Policy{Initial: 500 * time.Millisecond, Max: 10 * time.Second, Factor: 2, Jitter: 0.25}
}

// Delay returns the sleep duration before the given attempt. Attempts are
// 1-indexed.
func (p Policy) Delay(attempt int) time.Duration {
	return p.delayWithRand(attempt, rand.Float64()) // #nosec G404 -- jitter needs no crypto randomness
}

func (p Policy) delayWithRand(attempt int, random float64) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	base := float64(p.Initial) * math.Pow(p.Factor, float64(attempt-1))
	base += base * p.Jitter * random
	if max := float64(p.Max); base > max {
		base = max
	}
	return time.Duration(base)
}

// Sleep waits for the attempt's delay, returning early with ctx.Err() on
// cancellation.
func (p Policy) Sleep(ctx context.Context, attempt int) error {
	d := p.Delay(attempt)
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Retry runs op up to maxAttempts times, sleeping per the policy between
// failures. op reports whether its error is retryable; a non-retryable error
// or context cancellation stops immediately.
func Retry[T any](ctx context.Context, p Policy, maxAttempts int, op func() (T, bool, error)) (T, error) {
	var (
		zero    T
		lastErr error
	)
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return zero, err
		}
		v, retryable, err := op()
		if err == nil {
			return v, nil
		}
		lastErr = err
		if !retryable || attempt == maxAttempts {
			return zero, lastErr
		}
		if err := p.Sleep(ctx, attempt); err != nil {
			return zero, lastErr
		}
	}
	return zero, lastErr
}
