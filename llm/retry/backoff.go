// Package retry provides exponential backoff with jitter for LLM and
// tool calls. Retryability is decided by the types.Error taxonomy.
package retry

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"time"

	"go.uber.org/zap"

	"github.com/conciergehq/concierge/types"
)

// Policy configures retry behavior.
type Policy struct {
	MaxRetries   int           // 0 means no retries
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
	Jitter       bool // randomize delays to avoid thundering herds
	// RetryIf decides whether an error is worth retrying. Defaults to
	// types.IsRetryable.
	RetryIf func(error) bool
	// OnRetry is invoked before each sleep.
	OnRetry func(attempt int, err error, delay time.Duration)
}

// DefaultPolicy suits most upstream API calls.
func DefaultPolicy() *Policy {
	return &Policy{
		MaxRetries:   3,
		InitialDelay: time.Second,
		MaxDelay:     30 * time.Second,
		Multiplier:   2.0,
		Jitter:       true,
	}
}

// Retryer executes functions under a retry policy.
type Retryer interface {
	Do(ctx context.Context, fn func() error) error
}

type backoffRetryer struct {
	policy *Policy
	logger *zap.Logger
}

// New creates a backoff retryer. A nil policy uses DefaultPolicy.
func New(policy *Policy, logger *zap.Logger) Retryer {
	if policy == nil {
		policy = DefaultPolicy()
	}
	if policy.Multiplier < 1 {
		policy.Multiplier = 2.0
	}
	if policy.InitialDelay <= 0 {
		policy.InitialDelay = time.Second
	}
	if policy.MaxDelay <= 0 {
		policy.MaxDelay = 30 * time.Second
	}
	if policy.RetryIf == nil {
		policy.RetryIf = types.IsRetryable
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &backoffRetryer{policy: policy, logger: logger}
}

func (r *backoffRetryer) Do(ctx context.Context, fn func() error) error {
	var lastErr error

	for attempt := 0; attempt <= r.policy.MaxRetries; attempt++ {
		if attempt > 0 {
			delay := r.delayFor(attempt)
			if r.policy.OnRetry != nil {
				r.policy.OnRetry(attempt, lastErr, delay)
			}
			r.logger.Debug("retrying",
				zap.Int("attempt", attempt),
				zap.Duration("delay", delay),
				zap.Error(lastErr),
			)
			select {
			case <-ctx.Done():
				return fmt.Errorf("retry aborted: %w", ctx.Err())
			case <-time.After(delay):
			}
		}

		if err := ctx.Err(); err != nil {
			return fmt.Errorf("retry aborted: %w", err)
		}

		lastErr = fn()
		if lastErr == nil {
			return nil
		}
		if !r.policy.RetryIf(lastErr) {
			return lastErr
		}
	}

	return fmt.Errorf("all %d retries exhausted: %w", r.policy.MaxRetries, lastErr)
}

// delayFor computes the backoff delay for the given attempt (1-based).
func (r *backoffRetryer) delayFor(attempt int) time.Duration {
	d := float64(r.policy.InitialDelay) * math.Pow(r.policy.Multiplier, float64(attempt-1))
	if d > float64(r.policy.MaxDelay) {
		d = float64(r.policy.MaxDelay)
	}
	if r.policy.Jitter {
		// full jitter: uniform in [d/2, d)
		d = d/2 + rand.Float64()*d/2
	}
	return time.Duration(d)
}
