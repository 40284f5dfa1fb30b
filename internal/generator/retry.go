package generator

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"
)

// RetryPolicy bounds how often a failed call is repeated.
type RetryPolicy struct {
	// MaxAttempts is the total number of calls, including the first. 1 disables retries.
	MaxAttempts int

	// InitialInterval is the delay before the first retry; later delays grow exponentially.
	InitialInterval time.Duration
}

type retrying struct {
	next   Generator
	policy RetryPolicy
	logger *zap.Logger
}

// WithRetry wraps next so retryable failures are repeated with exponential
// backoff, up to policy.MaxAttempts calls in total. Returns next unchanged
// when the policy allows a single attempt.
func WithRetry(next Generator, policy RetryPolicy, logger *zap.Logger) Generator {
	if policy.MaxAttempts <= 1 {
		return next
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &retrying{next: next, policy: policy, logger: logger}
}

func (r *retrying) Generate(ctx context.Context, req Request) (*Response, error) {
	expo := backoff.NewExponentialBackOff()
	expo.InitialInterval = r.policy.InitialInterval
	expo.MaxElapsedTime = 0
	expo.Reset()

	b := backoff.WithContext(backoff.WithMaxRetries(expo, uint64(r.policy.MaxAttempts-1)), ctx)

	attempt := 0
	var resp *Response
	operation := func() error {
		attempt++
		var err error
		resp, err = r.next.Generate(ctx, req)
		if err != nil && !IsRetryable(err) {
			return backoff.Permanent(err)
		}
		return err
	}

	notify := func(err error, wait time.Duration) {
		r.logger.Warn("Generation failed, retrying",
			zap.String("purpose", string(req.Purpose)),
			zap.Int("attempt", attempt),
			zap.Int("max_attempts", r.policy.MaxAttempts),
			zap.Duration("backoff", wait),
			zap.Error(err))
	}

	if err := backoff.RetryNotify(operation, b, notify); err != nil {
		return nil, err
	}
	return resp, nil
}
