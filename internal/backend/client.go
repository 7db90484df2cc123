// Package backend talks to the dashboard's paginated HTTP API.
package backend

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/tallydash/tally/internal/domain"
	"github.com/tidwall/gjson"
)

const (
	defaultTimeout    = 60 * time.Second
	defaultMaxRetries = 3
	defaultRetryDelay = 500 * time.Millisecond
	maxErrorBody      = 512
)

// Client performs authenticated requests against the backend.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
	maxRetries int
	retryDelay time.Duration
	logger     *slog.Logger
}

// ClientOption customizes a Client.
type ClientOption func(*Client)

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// WithTimeout sets the per-request timeout.
func WithTimeout(d time.Duration) ClientOption {
	return func(c *Client) {
		if d > 0 {
			c.httpClient.Timeout = d
		}
	}
}

// WithRetries sets how often a 5xx response is retried and the base delay
// of the exponential backoff between attempts.
func WithRetries(maxRetries int, baseDelay time.Duration) ClientOption {
	return func(c *Client) {
		if maxRetries >= 0 {
			c.maxRetries = maxRetries
		}
		if baseDelay >= 0 {
			c.retryDelay = baseDelay
		}
	}
}

// NewClient creates a backend API client. An empty token sends no
// Authorization header.
func NewClient(baseURL, token string, logger *slog.Logger, opts ...ClientOption) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		httpClient: &http.Client{
			Timeout: defaultTimeout,
		},
		maxRetries: defaultMaxRetries,
		retryDelay: defaultRetryDelay,
		logger:     logger,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// BaseURL returns the server URL requests are sent to.
func (c *Client) BaseURL() string { return c.baseURL }

// doRequest performs an authenticated GET and returns the response body.
// 5xx responses are retried with exponential backoff; any other non-2xx
// status fails immediately.
func (c *Client) doRequest(ctx context.Context, path string, query url.Values) ([]byte, error) {
	reqURL := c.baseURL + path
	if len(query) > 0 {
		reqURL = reqURL + "?" + query.Encode()
	}

	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if ctx.Err() != nil {
			return nil, &domain.TransportError{URL: reqURL, Err: ctx.Err()}
		}

		if attempt > 0 {
			delay := c.retryDelay * time.Duration(1<<(attempt-1)) // 500ms, 1s, 2s
			c.logger.Debug("retrying request", "attempt", attempt, "delay", delay, "url", reqURL)
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return nil, &domain.TransportError{URL: reqURL, Err: ctx.Err()}
			}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
		if err != nil {
			return nil, fmt.Errorf("failed to create request: %w", err)
		}
		req.Header.Set("Accept", "application/json")
		if c.token != "" {
			req.Header.Set("Authorization", "Bearer "+c.token)
		}

		c.logger.Debug("backend request", "url", reqURL, "attempt", attempt)

		resp, err := c.httpClient.Do(req)
		if err != nil {
			if !errors.Is(err, context.Canceled) {
				c.logger.Error("backend request failed", "error", err, "url", reqURL)
			}
			return nil, &domain.TransportError{URL: reqURL, Err: err}
		}

		body, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			return nil, &domain.TransportError{URL: reqURL, Err: fmt.Errorf("failed to read response: %w", err)}
		}

		if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			return body, nil
		}

		serverErr := &domain.ServerError{StatusCode: resp.StatusCode, Message: errorMessage(body)}
		if !serverErr.Retryable() {
			c.logger.Error("backend request error", "status", resp.StatusCode, "message", serverErr.Message, "path", path)
			return nil, serverErr
		}

		lastErr = serverErr
		c.logger.Warn("backend server error, will retry",
			"status", resp.StatusCode,
			"message", serverErr.Message,
			"attempt", attempt,
			"maxRetries", c.maxRetries,
			"path", path,
			"query", query.Encode(),
		)
	}

	c.logger.Error("backend request failed after retries",
		"error", lastErr,
		"url", reqURL,
	)
	return nil, lastErr
}

// errorMessage pulls a human-readable message out of an error body.
// The API reports failures as {"error": ...} or {"detail": ...}.
func errorMessage(body []byte) string {
	if gjson.ValidBytes(body) {
		for _, path := range []string{"error", "detail", "message"} {
			if v := gjson.GetBytes(body, path); v.Exists() && v.String() != "" {
				return v.String()
			}
		}
	}
	msg := strings.TrimSpace(string(body))
	if len(msg) > maxErrorBody {
		cut := maxErrorBody
		for cut > 0 && !utf8.RuneStart(msg[cut]) {
			cut--
		}
		msg = msg[:cut] + "..."
	}
	return msg
}
