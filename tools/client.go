package tools

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/conciergehq/concierge/types"
)

// ClientConfig carries the shared HTTP settings for tool wrappers.
type ClientConfig struct {
	Timeout   time.Duration
	UserAgent string
}

func (c ClientConfig) httpClient() *http.Client {
	timeout := c.Timeout
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	return &http.Client{Timeout: timeout}
}

// getJSON fetches a URL with query params and decodes the JSON response
// into dest. Upstream failures map onto the shared error taxonomy so the
// executor's retry policy can tell transient from permanent.
func getJSON(ctx context.Context, client *http.Client, userAgent, base string, params url.Values, dest any) error {
	endpoint := base
	if len(params) > 0 {
		endpoint = base + "?" + params.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return types.NewError(types.ErrToolFailed, "build request").WithCause(err)
	}
	if userAgent != "" {
		req.Header.Set("User-Agent", userAgent)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return types.NewError(types.ErrUpstreamError, "request failed").WithRetryable(true).WithCause(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		e := types.Newf(types.ErrUpstreamError, "status %d: %s", resp.StatusCode, string(body))
		e.HTTPStatus = resp.StatusCode
		e.Retryable = resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests
		return e
	}

	if err := json.NewDecoder(resp.Body).Decode(dest); err != nil {
		return types.NewError(types.ErrUpstreamError, "decode response").WithCause(err)
	}
	return nil
}
