package embedding

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// RetryConfig controls the exponential backoff applied to rate-limited calls.
type RetryConfig struct {
	InitialInterval time.Duration
	MaxInterval     time.Duration
	MaxElapsedTime  time.Duration
}

// DefaultRetryConfig returns 500ms initial, 10s max interval, 30s max elapsed.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		InitialInterval: 500 * time.Millisecond,
		MaxInterval:     10 * time.Second,
		MaxElapsedTime:  30 * time.Second,
	}
}

// Retrying retries rate-limited (HTTP 429) calls of the wrapped provider.
// Other errors are treated as permanent and fail immediately.
type Retrying struct {
	next Provider
	cfg  RetryConfig
}

var _ Provider = (*Retrying)(nil)

// WithRetry wraps next with exponential backoff on rate limit errors.
func WithRetry(next Provider, cfg RetryConfig) *Retrying {
	return &Retrying{next: next, cfg: cfg}
}

func (r *Retrying) Embed(ctx context.Context, text string) ([]float32, error) {
	var vec []float32

	operation := func() error {
		v, err := r.next.Embed(ctx, text)
		if err != nil {
			if isRateLimitError(err) {
				return err
			}
			return backoff.Permanent(err)
		}
		vec = v
		return nil
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = r.cfg.InitialInterval
	b.MaxInterval = r.cfg.MaxInterval
	b.MaxElapsedTime = r.cfg.MaxElapsedTime

	if err := backoff.Retry(operation, backoff.WithContext(b, ctx)); err != nil {
		return nil, err
	}
	return vec, nil
}

// isRateLimitError checks if the error is a rate limit error (HTTP 429).
func isRateLimitError(err error) bool {
	var embErr *Error
	if errors.As(err, &embErr) {
		return embErr.RateLimited()
	}
	return false
}
