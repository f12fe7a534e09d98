package tools

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/conciergehq/concierge/internal/metrics"
	"github.com/conciergehq/concierge/llm"
	"github.com/conciergehq/concierge/llm/retry"
	"github.com/conciergehq/concierge/types"
)

// Result is the outcome of one tool call. Output is always valid JSON:
// on failure it is an {"error": ..., "code": ...} payload for the agent.
type Result struct {
	ToolCallID string        `json:"tool_call_id"`
	Name       string        `json:"name"`
	Output     string        `json:"output"`
	Failed     bool          `json:"failed,omitempty"`
	Duration   time.Duration `json:"duration"`
}

// ExecutorConfig configures the tool executor.
type ExecutorConfig struct {
	DefaultTimeout time.Duration
	// RatePerSecond caps calls per tool name; 0 disables limiting.
	RatePerSecond float64
	RateBurst     int
	// MaxParallel bounds concurrent execution of one batch of calls.
	MaxParallel int
	RetryPolicy *retry.Policy
}

// Executor runs tool calls against a registry.
type Executor struct {
	registry *Registry
	cfg      ExecutorConfig
	retryer  retry.Retryer
	metrics  *metrics.Collector
	logger   *zap.Logger

	limitMu  sync.Mutex
	limiters map[string]*rate.Limiter
}

// NewExecutor creates a tool executor. collector may be nil.
func NewExecutor(registry *Registry, cfg ExecutorConfig, collector *metrics.Collector, logger *zap.Logger) *Executor {
	if cfg.DefaultTimeout <= 0 {
		cfg.DefaultTimeout = 30 * time.Second
	}
	if cfg.MaxParallel <= 0 {
		cfg.MaxParallel = 4
	}
	if cfg.RateBurst <= 0 {
		cfg.RateBurst = 1
	}
	return &Executor{
		registry: registry,
		cfg:      cfg,
		retryer:  retry.New(cfg.RetryPolicy, logger),
		metrics:  collector,
		logger:   logger.With(zap.String("component", "tool_executor")),
		limiters: make(map[string]*rate.Limiter),
	}
}

// Execute runs a batch of tool calls, in parallel up to MaxParallel, and
// returns results in call order.
func (e *Executor) Execute(ctx context.Context, calls []llm.ToolCall) []Result {
	results := make([]Result, len(calls))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.cfg.MaxParallel)
	for i, call := range calls {
		g.Go(func() error {
			results[i] = e.ExecuteOne(gctx, call)
			return nil
		})
	}
	_ = g.Wait()

	return results
}

// ExecuteOne runs a single tool call with timeout, rate limiting, and
// retry. Failures come back as a Result with Failed set, never an error.
func (e *Executor) ExecuteOne(ctx context.Context, call llm.ToolCall) (res Result) {
	start := time.Now()
	res = Result{ToolCallID: call.ID, Name: call.Name}
	defer func() {
		if e.metrics != nil {
			e.metrics.RecordToolCall(res.Name, res.Failed, res.Duration)
		}
	}()

	fn, md, err := e.registry.Get(call.Name)
	if err != nil {
		res.Failed = true
		res.Output = errorPayload(types.ErrToolNotFound, err.Error())
		res.Duration = time.Since(start)
		return res
	}

	if lim := e.limiterFor(call.Name); lim != nil {
		if err := lim.Wait(ctx); err != nil {
			res.Failed = true
			res.Output = errorPayload(types.ErrToolFailed, "rate limit wait aborted: "+err.Error())
			res.Duration = time.Since(start)
			return res
		}
	}

	timeout := md.Timeout
	if timeout <= 0 {
		timeout = e.cfg.DefaultTimeout
	}

	var output json.RawMessage
	err = e.retryer.Do(ctx, func() error {
		callCtx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()
		var callErr error
		output, callErr = fn(callCtx, call.Arguments)
		return callErr
	})
	res.Duration = time.Since(start)

	if err != nil {
		e.logger.Warn("tool call failed",
			zap.String("tool", call.Name),
			zap.Duration("duration", res.Duration),
			zap.Error(err),
		)
		res.Failed = true
		res.Output = errorPayload(types.CodeOf(err), err.Error())
		return res
	}

	e.logger.Debug("tool call completed",
		zap.String("tool", call.Name),
		zap.Duration("duration", res.Duration),
	)
	res.Output = string(output)
	return res
}

func (e *Executor) limiterFor(name string) *rate.Limiter {
	if e.cfg.RatePerSecond <= 0 {
		return nil
	}
	e.limitMu.Lock()
	defer e.limitMu.Unlock()
	lim, ok := e.limiters[name]
	if !ok {
		lim = rate.NewLimiter(rate.Limit(e.cfg.RatePerSecond), e.cfg.RateBurst)
		e.limiters[name] = lim
	}
	return lim
}

// errorPayload builds the JSON error string handed back to the agent.
func errorPayload(code types.ErrorCode, msg string) string {
	data, _ := json.Marshal(map[string]string{
		"error": msg,
		"code":  string(code),
	})
	return string(data)
}
