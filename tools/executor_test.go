package tools

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/conciergehq/concierge/internal/metrics"
	"github.com/conciergehq/concierge/llm"
	"github.com/conciergehq/concierge/llm/retry"
	"github.com/conciergehq/concierge/types"
)

func echoTool() (Func, Metadata) {
	fn := func(ctx context.Context, args json.RawMessage) (json.RawMessage, error) {
		return args, nil
	}
	return fn, Metadata{Schema: llm.ToolSchema{
		Name:       "echo",
		Parameters: json.RawMessage(`{"type":"object"}`),
	}}
}

func TestRegistrySchemas(t *testing.T) {
	reg := NewRegistry(zap.NewNop())
	fn, md := echoTool()
	reg.Register(fn, md)

	assert.True(t, reg.Has("echo"))
	assert.False(t, reg.Has("missing"))

	schemas := reg.Schemas()
	require.Len(t, schemas, 1)
	assert.Equal(t, "echo", schemas[0].Name)

	// unknown names are skipped
	schemas = reg.Schemas("echo", "missing")
	assert.Len(t, schemas, 1)
}

func TestExecuteOne(t *testing.T) {
	reg := NewRegistry(zap.NewNop())
	fn, md := echoTool()
	reg.Register(fn, md)

	ex := NewExecutor(reg, ExecutorConfig{}, nil, zap.NewNop())
	res := ex.ExecuteOne(context.Background(), llm.ToolCall{
		ID:        "tc1",
		Name:      "echo",
		Arguments: json.RawMessage(`{"hello":"world"}`),
	})

	assert.False(t, res.Failed)
	assert.JSONEq(t, `{"hello":"world"}`, res.Output)
	assert.Equal(t, "tc1", res.ToolCallID)
}

func TestExecuteOneUnknownToolReturnsErrorPayload(t *testing.T) {
	reg := NewRegistry(zap.NewNop())
	ex := NewExecutor(reg, ExecutorConfig{}, nil, zap.NewNop())

	res := ex.ExecuteOne(context.Background(), llm.ToolCall{ID: "tc1", Name: "nope"})

	assert.True(t, res.Failed)
	var payload map[string]string
	require.NoError(t, json.Unmarshal([]byte(res.Output), &payload))
	assert.Equal(t, string(types.ErrToolNotFound), payload["code"])
}

func TestExecuteOneFailureBecomesJSON(t *testing.T) {
	reg := NewRegistry(zap.NewNop())
	reg.Register(func(ctx context.Context, args json.RawMessage) (json.RawMessage, error) {
		return nil, errors.New("upstream exploded")
	}, Metadata{Schema: llm.ToolSchema{Name: "flaky"}})

	ex := NewExecutor(reg, ExecutorConfig{}, nil, zap.NewNop())
	res := ex.ExecuteOne(context.Background(), llm.ToolCall{ID: "tc2", Name: "flaky"})

	assert.True(t, res.Failed)
	var payload map[string]string
	require.NoError(t, json.Unmarshal([]byte(res.Output), &payload))
	assert.Contains(t, payload["error"], "upstream exploded")
}

func TestExecuteOneRetriesTransientErrors(t *testing.T) {
	reg := NewRegistry(zap.NewNop())
	calls := 0
	reg.Register(func(ctx context.Context, args json.RawMessage) (json.RawMessage, error) {
		calls++
		if calls < 3 {
			return nil, types.NewError(types.ErrUpstreamError, "503").WithRetryable(true)
		}
		return json.RawMessage(`{"ok":true}`), nil
	}, Metadata{Schema: llm.ToolSchema{Name: "transient"}})

	ex := NewExecutor(reg, ExecutorConfig{
		RetryPolicy: &retry.Policy{
			MaxRetries:   3,
			InitialDelay: time.Millisecond,
			MaxDelay:     2 * time.Millisecond,
			Multiplier:   2.0,
		},
	}, nil, zap.NewNop())

	res := ex.ExecuteOne(context.Background(), llm.ToolCall{ID: "tc3", Name: "transient"})
	assert.False(t, res.Failed)
	assert.Equal(t, 3, calls)
}

func TestExecuteOneRecordsToolCallMetrics(t *testing.T) {
	reg := NewRegistry(zap.NewNop())
	fn, md := echoTool()
	reg.Register(fn, md)

	promReg := prometheus.NewRegistry()
	collector := metrics.NewCollector("test", promReg, zap.NewNop())
	ex := NewExecutor(reg, ExecutorConfig{}, collector, zap.NewNop())

	ex.ExecuteOne(context.Background(), llm.ToolCall{ID: "tc1", Name: "echo", Arguments: json.RawMessage(`{}`)})
	ex.ExecuteOne(context.Background(), llm.ToolCall{ID: "tc2", Name: "missing"})

	families, err := promReg.Gather()
	require.NoError(t, err)
	counts := map[string]float64{}
	for _, f := range families {
		if f.GetName() != "test_tool_calls_total" {
			continue
		}
		for _, m := range f.GetMetric() {
			var tool, status string
			for _, l := range m.GetLabel() {
				switch l.GetName() {
				case "tool":
					tool = l.GetValue()
				case "status":
					status = l.GetValue()
				}
			}
			counts[tool+"/"+status] = m.GetCounter().GetValue()
		}
	}
	assert.Equal(t, float64(1), counts["echo/ok"])
	assert.Equal(t, float64(1), counts["missing/error"])
}

func TestExecuteBatchPreservesOrder(t *testing.T) {
	reg := NewRegistry(zap.NewNop())
	fn, md := echoTool()
	reg.Register(fn, md)

	ex := NewExecutor(reg, ExecutorConfig{MaxParallel: 2}, nil, zap.NewNop())
	calls := []llm.ToolCall{
		{ID: "a", Name: "echo", Arguments: json.RawMessage(`{"n":1}`)},
		{ID: "b", Name: "echo", Arguments: json.RawMessage(`{"n":2}`)},
		{ID: "c", Name: "missing"},
	}

	results := ex.Execute(context.Background(), calls)
	require.Len(t, results, 3)
	assert.Equal(t, "a", results[0].ToolCallID)
	assert.Equal(t, "b", results[1].ToolCallID)
	assert.True(t, results[2].Failed)
}
