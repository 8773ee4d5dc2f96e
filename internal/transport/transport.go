// Package transport implements at-most-once batch send with retry/backoff:
// a typed error taxonomy and distinct monitoring/control POST endpoints,
// both authenticated with an opaque x-api-key header.
package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/olakai-ai/olakai-sdk-go/internal/apitypes"
	"github.com/olakai-ai/olakai-sdk-go/internal/logging"
)

// Doer abstracts *http.Client, so tests can substitute a fake round
// tripper without starting a real listener.
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Config is the subset of SDK configuration the transport needs. It's
// re-declared here (rather than imported from the root package) to avoid a
// cycle: the root package depends on transport, not the reverse.
type Config struct {
	APIKey        string
	MonitoringURL string
	ControlURL    string
	Timeout       time.Duration
	Retries       int
}

// Client performs monitoring and control HTTP calls with retry/backoff.
type Client struct {
	cfg    Config
	doer   Doer
	logger *logging.Sink
}

// New constructs a transport Client. logger may be nil.
func New(cfg Config, doer Doer, logger *logging.Sink) *Client {
	return &Client{cfg: cfg, doer: doer, logger: logger}
}

// sleep is overridable for tests that exercise the backoff schedule without
// waiting in real time.
var sleep = func(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// backoff computes the delay after failed attempt n (0-indexed), before
// attempt n+1: min(1000 * 2^attempt, 30000) ms.
func backoff(attempt int) time.Duration {
	ms := 1000 * (1 << attempt)
	if ms > 30000 || ms <= 0 {
		ms = 30000
	}
	return time.Duration(ms) * time.Millisecond
}

// SendMonitoring POSTs one batch of MonitorPayload to MonitoringURL,
// wrapped in the retry policy.
func (c *Client) SendMonitoring(ctx context.Context, payloads []apitypes.MonitorPayload) (*apitypes.MonitoringResponse, error) {
	if err := c.checkConfig(c.cfg.MonitoringURL, "monitoring"); err != nil {
		return nil, err
	}

	body, err := json.Marshal(payloads)
	if err != nil {
		return nil, fmt.Errorf("olakai: failed to encode monitoring payload: %w", err)
	}

	var resp apitypes.MonitoringResponse
	err = c.sendWithRetry(ctx, c.cfg.MonitoringURL, body, &resp)
	if err != nil {
		return nil, err
	}
	return &resp, nil
}

// SendControl POSTs a single ControlPayload to ControlURL, stripping null
// OverrideControlCriteria/Task/SubTask fields, wrapped in the retry policy.
func (c *Client) SendControl(ctx context.Context, payload apitypes.ControlPayload) (*apitypes.ControlResponse, error) {
	if err := c.checkConfig(c.cfg.ControlURL, "control"); err != nil {
		return nil, err
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("olakai: failed to encode control payload: %w", err)
	}

	var resp apitypes.ControlResponse
	err = c.sendWithRetry(ctx, c.cfg.ControlURL, body, &resp)
	if err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *Client) checkConfig(url, endpoint string) error {
	if c.cfg.APIKey == "" {
		return &APIKeyMissingError{}
	}
	if url == "" {
		return &URLConfigurationError{Endpoint: endpoint}
	}
	return nil
}

// sendWithRetry is the shared retry wrapper: up to Retries+1 attempts,
// exponential backoff between them, no retry on configuration errors,
// RetryExhaustedError after the final failure.
func (c *Client) sendWithRetry(ctx context.Context, url string, body []byte, out any) error {
	maxRetries := c.cfg.Retries
	if maxRetries < 0 {
		maxRetries = 0
	}

	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		err := c.doOnce(ctx, url, body, out)
		if err == nil {
			return nil
		}
		lastErr = err

		if c.logger != nil {
			c.logger.Debug("transport attempt failed",
				logging.Int("attempt", attempt+1),
				logging.Int("maxAttempts", maxRetries+1),
				logging.Err(err),
			)
		}

		if !isRetryable(err) {
			return err
		}

		if attempt < maxRetries {
			if err := sleep(ctx, backoff(attempt)); err != nil {
				return err
			}
		}
	}

	if c.logger != nil {
		c.logger.Debug("all retry attempts failed", logging.Err(lastErr))
	}
	return &RetryExhaustedError{Attempts: maxRetries + 1, Cause: lastErr}
}

func (c *Client) doOnce(ctx context.Context, url string, body []byte, out any) error {
	reqCtx := ctx
	var cancel context.CancelFunc
	if c.cfg.Timeout > 0 {
		reqCtx, cancel = context.WithTimeout(ctx, c.cfg.Timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return &NetworkError{Cause: err}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", c.cfg.APIKey)

	resp, err := c.doer.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return &TimeoutError{Cause: err}
		}
		return &NetworkError{Cause: err}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return &NetworkError{Cause: err}
	}

	if resp.StatusCode >= 400 {
		return &ResponseError{StatusCode: resp.StatusCode, Body: string(respBody)}
	}

	if out != nil && len(respBody) > 0 {
		if err := json.Unmarshal(respBody, out); err != nil {
			return &NetworkError{Cause: fmt.Errorf("decoding response: %w", err)}
		}
	}

	return nil
}
