// Package plantapi is the HTTP client for the remote V2 plant API. Every call
// is bearer-authenticated, bounded by a per-attempt timeout and retried with a
// fixed backoff on transport errors and 5xx responses. Callers get either the
// decoded JSON payload or an error whose message is safe to embed in a
// response.
package plantapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/mindazub/ems-laravel-next-docker-009/internal/config"
	"github.com/mindazub/ems-laravel-next-docker-009/internal/telemetry"
)

// ErrNotConfigured is returned, without any network call, when the base URL
// or token is missing.
var ErrNotConfigured = errors.New("EMS V2 API configuration is missing. Set EMS_V2_API_BASE_URL and EMS_V2_API_TOKEN.")

const maxErrorBody = 512

// StatusError is a non-2xx response that survived every retry.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return strings.TrimSpace(fmt.Sprintf("V2 API request failed: %d %s", e.StatusCode, e.Body))
}

// Client calls the remote V2 plant API.
type Client struct {
	baseURL      string
	token        string
	attempts     int
	retryBackoff time.Duration
	HTTPClient   *http.Client
}

// NewClient creates a client from the plants.v2 configuration. RetryTimes is
// the total number of attempts per call, never less than one.
func NewClient(cfg config.V2APIConfig) *Client {
	attempts := cfg.RetryTimes
	if attempts < 1 {
		attempts = 1
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	return &Client{
		baseURL:      strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/"),
		token:        strings.TrimSpace(cfg.Token),
		attempts:     attempts,
		retryBackoff: cfg.RetryBackoff,
		HTTPClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// Configured reports whether both base URL and token are set.
func (c *Client) Configured() bool {
	return c.baseURL != "" && c.token != ""
}

// Get fetches path (relative to the base URL) with query and returns the
// decoded JSON body. An empty 2xx body decodes to an empty array.
func (c *Client) Get(ctx context.Context, path string, query url.Values) (json.RawMessage, error) {
	if !c.Configured() {
		telemetry.PlantAPIRequestsTotal.WithLabelValues("not_configured").Inc()
		return nil, ErrNotConfigured
	}

	start := time.Now()
	body, err := c.getWithRetry(ctx, c.buildURL(path, query))
	telemetry.PlantAPIRequestDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		telemetry.PlantAPIRequestsTotal.WithLabelValues("remote_error").Inc()
		return nil, err
	}
	telemetry.PlantAPIRequestsTotal.WithLabelValues("success").Inc()
	return body, nil
}

func (c *Client) buildURL(path string, query url.Values) string {
	u := c.baseURL + "/" + strings.TrimLeft(path, "/")
	if encoded := encodeQuery(query); encoded != "" {
		u += "?" + encoded
	}
	return u
}

// encodeQuery drops empty values so optional parameters are not sent blank.
func encodeQuery(query url.Values) string {
	if len(query) == 0 {
		return ""
	}
	clean := url.Values{}
	for k, vs := range query {
		for _, v := range vs {
			if v != "" {
				clean.Add(k, v)
			}
		}
	}
	return clean.Encode()
}

func (c *Client) getWithRetry(ctx context.Context, target string) (json.RawMessage, error) {
	var lastErr error
	for attempt := 1; attempt <= c.attempts; attempt++ {
		body, retryable, err := c.do(ctx, target)
		if err == nil {
			return body, nil
		}
		lastErr = err
		if !retryable || attempt == c.attempts {
			break
		}

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("V2 API request failed: %w", ctx.Err())
		case <-time.After(c.retryBackoff):
		}
	}
	return nil, lastErr
}

// do performs one attempt. retryable is true for transport errors and 5xx.
func (c *Client) do(ctx context.Context, target string) (json.RawMessage, bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, false, fmt.Errorf("V2 API request failed: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Accept", "application/json")

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, ctx.Err() == nil, fmt.Errorf("V2 API request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, true, fmt.Errorf("V2 API request failed: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, resp.StatusCode >= 500, &StatusError{StatusCode: resp.StatusCode, Body: truncate(string(body), maxErrorBody)}
	}

	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return json.RawMessage("[]"), false, nil
	}
	if !json.Valid(trimmed) {
		return nil, false, errors.New("V2 API request failed: response is not valid JSON")
	}
	return json.RawMessage(trimmed), false, nil
}

func truncate(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
