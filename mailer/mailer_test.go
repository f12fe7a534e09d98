package mailer

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"

	"github.com/conciergehq/concierge/config"
	"github.com/conciergehq/concierge/llm/retry"
	"github.com/conciergehq/concierge/types"
)

func testMailer(t *testing.T, baseURL string, maxRetry int) *Mailer {
	t.Helper()
	m := New(config.MailConfig{
		Enabled:  true,
		BaseURL:  baseURL,
		APIKey:   "key-123",
		From:     "reports@example.com",
		ReplyTo:  "noreply@example.com",
		MaxRetry: maxRetry,
	}, zaptest.NewLogger(t))
	// keep tests fast
	policy := retry.DefaultPolicy()
	policy.MaxRetries = maxRetry
	policy.InitialDelay = time.Millisecond
	policy.MaxDelay = 5 * time.Millisecond
	m.retryer = retry.New(policy, zap.NewNop())
	return m
}

func TestSendSuccess(t *testing.T) {
	var got sendRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/emails", r.URL.Path)
		assert.Equal(t, "Bearer key-123", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	m := New(config.MailConfig{
		Enabled: true,
		BaseURL: srv.URL,
		APIKey:  "key-123",
		From:    "reports@example.com",
	}, zaptest.NewLogger(t))

	require.NoError(t, m.Send(context.Background(), "user@example.com", "Daily briefing", "<h1>hi</h1>"))
	assert.Equal(t, []string{"user@example.com"}, got.To)
	assert.Equal(t, "reports@example.com", got.From)
	assert.Equal(t, "Daily briefing", got.Subject)
	assert.Equal(t, "<h1>hi</h1>", got.HTML)
}

func TestSendRetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	m := testMailer(t, srv.URL, 3)
	require.NoError(t, m.Send(context.Background(), "user@example.com", "s", "<p>b</p>"))
	assert.Equal(t, int32(3), calls.Load())
}

func TestSendDoesNotRetryBadRequest(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusUnprocessableEntity)
		_, _ = w.Write([]byte(`{"message":"invalid recipient"}`))
	}))
	defer srv.Close()

	m := testMailer(t, srv.URL, 3)
	err := m.Send(context.Background(), "user@example.com", "s", "<p>b</p>")
	require.Error(t, err)
	assert.Equal(t, int32(1), calls.Load())

	var te *types.Error
	require.True(t, errors.As(err, &te))
	assert.Equal(t, types.ErrDeliveryFailed, te.Code)
	assert.Contains(t, te.Message, "invalid recipient")
}

func TestSendDisabled(t *testing.T) {
	m := New(config.MailConfig{Enabled: false}, zaptest.NewLogger(t))
	err := m.Send(context.Background(), "user@example.com", "s", "<p>b</p>")
	require.Error(t, err)

	var te *types.Error
	require.True(t, errors.As(err, &te))
	assert.Equal(t, types.ErrDeliveryFailed, te.Code)
}

func TestSendEmptyRecipient(t *testing.T) {
	m := New(config.MailConfig{Enabled: true, BaseURL: "http://localhost:0"}, zaptest.NewLogger(t))
	assert.Error(t, m.Send(context.Background(), "", "s", "<p>b</p>"))
}

func TestEnabled(t *testing.T) {
	var nilMailer *Mailer
	assert.False(t, nilMailer.Enabled())
	assert.False(t, New(config.MailConfig{Enabled: true}, zaptest.NewLogger(t)).Enabled())
	assert.True(t, New(config.MailConfig{Enabled: true, BaseURL: "http://mail"}, zaptest.NewLogger(t)).Enabled())
}
