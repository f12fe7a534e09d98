package deepseek

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/conciergehq/concierge/llm"
	"github.com/conciergehq/concierge/types"
)

func TestCompletion(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer ds-key", r.Header.Get("Authorization"))

		w.Write([]byte(`{
			"id": "cmpl-1",
			"model": "deepseek-chat",
			"choices": [{
				"index": 0,
				"finish_reason": "stop",
				"message": {"role": "assistant", "content": "{\"crew\":\"news_digest\",\"confidence\":0.92}"}
			}],
			"usage": {"prompt_tokens": 20, "completion_tokens": 10, "total_tokens": 30}
		}`))
	}))
	defer srv.Close()

	p := New(Config{APIKey: "ds-key", BaseURL: srv.URL}, zap.NewNop())
	resp, err := p.Completion(context.Background(), &llm.ChatRequest{
		Messages: []llm.Message{{Role: llm.RoleUser, Content: "classify this"}},
	})
	require.NoError(t, err)

	assert.Contains(t, resp.First().Content, "news_digest")
	assert.Equal(t, 30, resp.Usage.TotalTokens)
}

func TestCompletionToolCalls(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req wireRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.Len(t, req.Tools, 1)
		assert.Equal(t, "rss_fetch", req.Tools[0].Function.Name)

		w.Write([]byte(`{
			"id": "cmpl-2",
			"model": "deepseek-chat",
			"choices": [{
				"index": 0,
				"finish_reason": "tool_calls",
				"message": {
					"role": "assistant",
					"content": "",
					"tool_calls": [{
						"id": "tc1",
						"type": "function",
						"function": {"name": "rss_fetch", "arguments": "{\"url\":\"https://example.com/feed\"}"}
					}]
				}
			}]
		}`))
	}))
	defer srv.Close()

	p := New(Config{APIKey: "k", BaseURL: srv.URL}, zap.NewNop())
	resp, err := p.Completion(context.Background(), &llm.ChatRequest{
		Messages: []llm.Message{{Role: llm.RoleUser, Content: "fetch feed"}},
		Tools: []llm.ToolSchema{
			{Name: "rss_fetch", Parameters: json.RawMessage(`{"type":"object"}`)},
		},
	})
	require.NoError(t, err)

	msg := resp.First()
	require.Len(t, msg.ToolCalls, 1)
	assert.Equal(t, "rss_fetch", msg.ToolCalls[0].Name)
	assert.JSONEq(t, `{"url":"https://example.com/feed"}`, string(msg.ToolCalls[0].Arguments))
}

func TestCompletionUpstreamError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		w.Write([]byte(`{"error":{"message":"rate limited","type":"rate_limit"}}`))
	}))
	defer srv.Close()

	p := New(Config{APIKey: "k", BaseURL: srv.URL}, zap.NewNop())
	_, err := p.Completion(context.Background(), &llm.ChatRequest{
		Messages: []llm.Message{{Role: llm.RoleUser, Content: "hi"}},
	})
	require.Error(t, err)
	assert.Equal(t, types.ErrRateLimited, types.CodeOf(err))
	assert.True(t, types.IsRetryable(err))
}
