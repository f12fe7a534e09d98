// Package mailer delivers rendered reports over a JSON mail API.
package mailer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/conciergehq/concierge/config"
	"github.com/conciergehq/concierge/llm/retry"
	"github.com/conciergehq/concierge/types"
)

// Mailer sends HTML email through an HTTP mail provider. A disabled
// Mailer reports Enabled() false and refuses sends.
type Mailer struct {
	cfg     config.MailConfig
	client  *http.Client
	retryer retry.Retryer
	logger  *zap.Logger
}

// sendRequest is the provider's message payload.
type sendRequest struct {
	From    string   `json:"from"`
	To      []string `json:"to"`
	ReplyTo string   `json:"reply_to,omitempty"`
	Subject string   `json:"subject"`
	HTML    string   `json:"html"`
}

// New creates a mailer from cfg. Transient provider failures are
// retried up to cfg.MaxRetry times.
func New(cfg config.MailConfig, logger *zap.Logger) *Mailer {
	log := logger.With(zap.String("component", "mailer"))
	policy := retry.DefaultPolicy()
	policy.MaxRetries = cfg.MaxRetry
	return &Mailer{
		cfg:     cfg,
		client:  &http.Client{Timeout: 30 * time.Second},
		retryer: retry.New(policy, log),
		logger:  log,
	}
}

// Enabled reports whether delivery is configured.
func (m *Mailer) Enabled() bool {
	return m != nil && m.cfg.Enabled && m.cfg.BaseURL != ""
}

// Send delivers one HTML message. Errors carry ErrDeliveryFailed.
func (m *Mailer) Send(ctx context.Context, to, subject, html string) error {
	if !m.Enabled() {
		return types.NewError(types.ErrDeliveryFailed, "mail delivery is not configured")
	}
	if to == "" {
		return types.NewError(types.ErrDeliveryFailed, "recipient address is empty")
	}

	body, err := json.Marshal(sendRequest{
		From:    m.cfg.From,
		To:      []string{to},
		ReplyTo: m.cfg.ReplyTo,
		Subject: subject,
		HTML:    html,
	})
	if err != nil {
		return types.NewError(types.ErrDeliveryFailed, "encode mail payload").WithCause(err)
	}

	err = m.retryer.Do(ctx, func() error {
		return m.post(ctx, body)
	})
	if err != nil {
		m.logger.Warn("mail delivery failed",
			zap.String("to", to),
			zap.String("subject", subject),
			zap.Error(err),
		)
		return err
	}

	m.logger.Info("report emailed",
		zap.String("to", to),
		zap.String("subject", subject),
	)
	return nil
}

func (m *Mailer) post(ctx context.Context, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.cfg.BaseURL+"/emails", bytes.NewReader(body))
	if err != nil {
		return types.NewError(types.ErrDeliveryFailed, "build mail request").WithCause(err)
	}
	req.Header.Set("Content-Type", "application/json")
	if m.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+m.cfg.APIKey)
	}

	resp, err := m.client.Do(req)
	if err != nil {
		return types.NewError(types.ErrDeliveryFailed, "mail provider unreachable").
			WithCause(err).
			WithRetryable(true)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}

	msg := providerError(resp.Body)
	e := types.Newf(types.ErrDeliveryFailed, "mail provider returned %d: %s", resp.StatusCode, msg)
	e.HTTPStatus = resp.StatusCode
	// 429 and 5xx are worth retrying, 4xx payload problems are not
	if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
		e.Retryable = true
	}
	return e
}

// providerError extracts the error message from a provider response,
// falling back to the raw body.
func providerError(r io.Reader) string {
	raw, err := io.ReadAll(io.LimitReader(r, 4096))
	if err != nil || len(raw) == 0 {
		return "no response body"
	}
	var payload struct {
		Message string `json:"message"`
		Error   string `json:"error"`
	}
	if json.Unmarshal(raw, &payload) == nil {
		if payload.Message != "" {
			return payload.Message
		}
		if payload.Error != "" {
			return payload.Error
		}
	}
	return fmt.Sprintf("%.200s", raw)
}
