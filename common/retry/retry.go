// Package retry runs an operation again after transient failures.
//
// Two backoff shapes are supported: exponential (the delay doubles up to
// MaxDelay) and linear (attempt n waits n*InitialDelay). Model-provider calls
// use the linear shape with a small attempt cap; nothing with side effects
// should be wrapped in Do.
//
//	err := retry.Do(ctx, retry.Config{
//	    MaxAttempts:  3,
//	    InitialDelay: 2 * time.Second,
//	    Backoff:      retry.Linear,
//	    ShouldRetry:  isTemporary,
//	}, call)
package retry

import (
	"context"
	"errors"
	"log/slog"
	"time"
)

// Backoff selects how the wait between attempts grows.
type Backoff int

const (
	// Exponential doubles the delay after every failed attempt.
	Exponential Backoff = iota
	// Linear waits attempt*InitialDelay before the next attempt.
	Linear
)

// Config controls the retry behaviour.
type Config struct {
	// MaxAttempts is the total number of attempts including the first.
	// Zero or negative means a single attempt.
	MaxAttempts int
	// InitialDelay is the wait before the second attempt.
	InitialDelay time.Duration
	// MaxDelay caps a single wait. Zero means DefaultConfig.MaxDelay.
	MaxDelay time.Duration
	// Backoff picks the growth shape. Defaults to Exponential.
	Backoff Backoff
	// ShouldRetry classifies errors. When nil every error is retried.
	ShouldRetry func(err error) bool
	// Sleep replaces the wait between attempts. Tests use it to avoid real
	// delays; it must return early with ctx.Err() when ctx is done.
	Sleep func(ctx context.Context, d time.Duration) error
}

// DefaultConfig is used to fill zero fields.
var DefaultConfig = Config{
	MaxAttempts:  3,
	InitialDelay: 500 * time.Millisecond,
	MaxDelay:     30 * time.Second,
}

// Delay returns the wait after the given failed attempt (1-based).
func (c Config) Delay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	var d time.Duration
	switch c.Backoff {
	case Linear:
		d = time.Duration(attempt) * c.InitialDelay
	default:
		d = c.InitialDelay
		for i := 1; i < attempt && d < c.MaxDelay; i++ {
			d *= 2
		}
	}
	if c.MaxDelay > 0 && d > c.MaxDelay {
		d = c.MaxDelay
	}
	return d
}

// Do calls fn until it succeeds, returns an error ShouldRetry rejects, the
// attempt budget is spent, or ctx is done. The last error is returned.
func Do(ctx context.Context, cfg Config, fn func() error) error {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 1
	}
	if cfg.InitialDelay <= 0 {
		cfg.InitialDelay = DefaultConfig.InitialDelay
	}
	if cfg.MaxDelay <= 0 {
		cfg.MaxDelay = DefaultConfig.MaxDelay
	}
	shouldRetry := cfg.ShouldRetry
	if shouldRetry == nil {
		shouldRetry = func(error) bool { return true }
	}
	sleep := cfg.Sleep
	if sleep == nil {
		sleep = wait
	}

	var lastErr error
	for attempt := 1; attempt <= cfg.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return errors.Join(lastErr, err)
		}

		lastErr = fn()
		if lastErr == nil {
			return nil
		}
		if !shouldRetry(lastErr) || attempt == cfg.MaxAttempts {
			return lastErr
		}

		delay := cfg.Delay(attempt)
		slog.Debug("retry: attempt failed",
			"attempt", attempt, "max", cfg.MaxAttempts, "delay", delay, "err", lastErr)
		if err := sleep(ctx, delay); err != nil {
			return errors.Join(lastErr, err)
		}
	}
	return lastErr
}

func wait(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
