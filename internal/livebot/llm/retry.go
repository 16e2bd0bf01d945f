package llm

import (
	"context"
	"time"

	"github.com/markegidiDev/ERP-ChatBot-LLM/common/retry"
)

// RetryPolicy bounds retries of temporary failures. Delays grow linearly:
// Step before the first retry, 2*Step before the second.
type RetryPolicy struct {
	MaxRetries int
	Step       time.Duration
	// Sleep replaces the real wait in tests.
	Sleep func(ctx context.Context, d time.Duration) error
}

// DefaultRetryPolicy retries twice, waiting 2 s then 4 s.
var DefaultRetryPolicy = RetryPolicy{MaxRetries: 2, Step: 2 * time.Second}

type retrying struct {
	Provider
	cfg retry.Config
}

// WithRetry wraps p so temporary failures are retried. Rate limits and
// malformed responses are returned immediately.
func WithRetry(p Provider, pol RetryPolicy) Provider {
	return &retrying{
		Provider: p,
		cfg: retry.Config{
			MaxAttempts:  pol.MaxRetries + 1,
			InitialDelay: pol.Step,
			Backoff:      retry.Linear,
			ShouldRetry:  IsTemporary,
			Sleep:        pol.Sleep,
		},
	}
}

func (r *retrying) Complete(ctx context.Context, req Request) (*Response, error) {
	var resp *Response
	err := retry.Do(ctx, r.cfg, func() error {
		var err error
		resp, err = r.Provider.Complete(ctx, req)
		return err
	})
	if err != nil {
		return nil, err
	}
	return resp, nil
}

type timed struct {
	Provider
	d time.Duration
}

// WithTimeout bounds every call to p by d. A zero d returns p unchanged.
func WithTimeout(p Provider, d time.Duration) Provider {
	if d <= 0 {
		return p
	}
	return &timed{Provider: p, d: d}
}

func (t *timed) Complete(ctx context.Context, req Request) (*Response, error) {
	ctx, cancel := context.WithTimeout(ctx, t.d)
	defer cancel()
	resp, err := t.Provider.Complete(ctx, req)
	if err != nil && ctx.Err() == context.DeadlineExceeded {
		return nil, &ProviderError{Provider: t.Name(), Kind: KindTemporary, Err: err}
	}
	return resp, err
}
