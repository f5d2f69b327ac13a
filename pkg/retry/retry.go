// Package retry provides the exponential-backoff combinator used for
// transient provider and storage failures.
package retry

import (
	"context"
	"time"
)

// Default policy for transient upstream failures.
const (
	DefaultMaxAttempts = 3
	DefaultBase        = 2 * time.Second
)

// Sleeper lets tests replace the backoff sleep.
type Sleeper func(ctx context.Context, d time.Duration) error

func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Policy describes a bounded exponential backoff: base*2^0, base*2^1, ...
type Policy struct {
	MaxAttempts int
	Base        time.Duration
	Retryable   func(error) bool
	Sleep       Sleeper
}

// DefaultPolicy retries every error up to DefaultMaxAttempts.
func DefaultPolicy() Policy {
	return Policy{MaxAttempts: DefaultMaxAttempts, Base: DefaultBase}
}

// Backoff returns the delay before the given retry (attempt is 1-based:
// attempt 1 waits base, attempt 2 waits 2*base, ...).
func (p Policy) Backoff(attempt int) time.Duration {
	d := p.Base
	for i := 1; i < attempt; i++ {
		d *= 2
	}
	return d
}

// Do invokes fn until it succeeds, returns a non-retryable error, or the
// attempt cap is reached. The last error is returned.
func (p Policy) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = DefaultMaxAttempts
	}
	if p.Base <= 0 {
		p.Base = DefaultBase
	}
	slp := p.Sleep
	if slp == nil {
		slp = sleep
	}

	var lastErr error
	for attempt := 1; attempt <= p.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		lastErr = fn(ctx)
		if lastErr == nil {
			return nil
		}
		if p.Retryable != nil && !p.Retryable(lastErr) {
			return lastErr
		}
		if attempt < p.MaxAttempts {
			if err := slp(ctx, p.Backoff(attempt)); err != nil {
				return lastErr
			}
		}
	}
	return lastErr
}
