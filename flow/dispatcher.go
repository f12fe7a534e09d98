package flow

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/conciergehq/concierge/types"
)

// Dispatcher runs reception flows in the background with bounded
// concurrency. HTTP handlers submit and return 202 immediately.
type Dispatcher struct {
	flow    *ReceptionFlow
	sem     *semaphore.Weighted
	timeout time.Duration
	logger  *zap.Logger
	wg      sync.WaitGroup
}

// NewDispatcher creates a dispatcher allowing maxConcurrent parallel
// runs. Each run gets its own context with the given timeout.
func NewDispatcher(f *ReceptionFlow, maxConcurrent int64, timeout time.Duration, logger *zap.Logger) *Dispatcher {
	if maxConcurrent <= 0 {
		maxConcurrent = 8
	}
	if timeout <= 0 {
		timeout = 15 * time.Minute
	}
	return &Dispatcher{
		flow:    f,
		sem:     semaphore.NewWeighted(maxConcurrent),
		timeout: timeout,
		logger:  logger.With(zap.String("component", "dispatcher")),
	}
}

// Submit queues a request for background processing. It returns an
// error only when the concurrency limit cannot be acquired within ctx.
func (d *Dispatcher) Submit(ctx context.Context, req *types.Request) error {
	if err := d.sem.Acquire(ctx, 1); err != nil {
		return types.NewError(types.ErrCrewFailed, "service at capacity").
			WithCause(err).
			WithRetryable(true)
	}

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		defer d.sem.Release(1)

		runCtx, cancel := context.WithTimeout(context.Background(), d.timeout)
		defer cancel()

		if _, err := d.flow.Handle(runCtx, req); err != nil {
			d.logger.Warn("background run failed",
				zap.String("request_id", req.ID),
				zap.Error(err),
			)
		}
	}()
	return nil
}

// Wait blocks until all in-flight runs finish. Used during shutdown.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}
