package llm

import (
	"context"

	"go.uber.org/zap"

	"github.com/conciergehq/concierge/llm/retry"
)

// retryableProvider wraps a provider so transient completion failures
// are retried with backoff. Health checks pass through: a probe should
// report the upstream as it is, not after three attempts.
type retryableProvider struct {
	inner   Provider
	retryer retry.Retryer
}

// WithRetry wraps p under the given policy. A nil policy or a
// non-positive MaxRetries returns p unchanged.
func WithRetry(p Provider, policy *retry.Policy, logger *zap.Logger) Provider {
	if policy == nil || policy.MaxRetries <= 0 {
		return p
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &retryableProvider{
		inner:   p,
		retryer: retry.New(policy, logger.With(zap.String("provider", p.Name()))),
	}
}

func (p *retryableProvider) Name() string { return p.inner.Name() }

func (p *retryableProvider) Completion(ctx context.Context, req *ChatRequest) (*ChatResponse, error) {
	var resp *ChatResponse
	err := p.retryer.Do(ctx, func() error {
		var callErr error
		resp, callErr = p.inner.Completion(ctx, req)
		return callErr
	})
	if err != nil {
		return nil, err
	}
	return resp, nil
}

func (p *retryableProvider) HealthCheck(ctx context.Context) (*HealthStatus, error) {
	return p.inner.HealthCheck(ctx)
}
