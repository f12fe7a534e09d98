package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/conciergehq/concierge/types"
)

func fastPolicy() *Policy {
	return &Policy{
		MaxRetries:   3,
		InitialDelay: time.Millisecond,
		MaxDelay:     5 * time.Millisecond,
		Multiplier:   2.0,
	}
}

func TestDoSucceedsFirstTry(t *testing.T) {
	r := New(fastPolicy(), zap.NewNop())
	calls := 0
	err := r.Do(context.Background(), func() error {
		calls++
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
}

func TestDoRetriesRetryableError(t *testing.T) {
	r := New(fastPolicy(), zap.NewNop())
	calls := 0
	err := r.Do(context.Background(), func() error {
		calls++
		if calls < 3 {
			return types.NewError(types.ErrRateLimited, "slow down").WithRetryable(true)
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestDoStopsOnPermanentError(t *testing.T) {
	r := New(fastPolicy(), zap.NewNop())
	calls := 0
	err := r.Do(context.Background(), func() error {
		calls++
		return types.NewError(types.ErrInvalidRequest, "bad request")
	})
	assert.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestDoExhaustsRetries(t *testing.T) {
	p := fastPolicy()
	var attempts []int
	p.OnRetry = func(attempt int, err error, delay time.Duration) {
		attempts = append(attempts, attempt)
	}
	r := New(p, zap.NewNop())

	upstream := types.NewError(types.ErrUpstreamError, "502").WithRetryable(true)
	err := r.Do(context.Background(), func() error { return upstream })

	assert.ErrorContains(t, err, "retries exhausted")
	assert.ErrorIs(t, err, upstream)
	assert.Equal(t, []int{1, 2, 3}, attempts)
}

func TestDoHonorsContextCancellation(t *testing.T) {
	r := New(&Policy{
		MaxRetries:   5,
		InitialDelay: time.Hour, // never actually sleeps this long
		MaxDelay:     time.Hour,
		Multiplier:   2.0,
	}, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	err := r.Do(ctx, func() error {
		return types.NewError(types.ErrUpstreamError, "502").WithRetryable(true)
	})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestCustomRetryIf(t *testing.T) {
	p := fastPolicy()
	sentinel := errors.New("flaky")
	p.RetryIf = func(err error) bool { return errors.Is(err, sentinel) }
	r := New(p, zap.NewNop())

	calls := 0
	err := r.Do(context.Background(), func() error {
		calls++
		if calls == 1 {
			return sentinel
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 2, calls)
}
