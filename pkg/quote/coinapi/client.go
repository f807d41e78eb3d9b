// Package coinapi implements the quote.Source contract against the CoinAPI
// OHLCV history endpoint.
package coinapi

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

const (
	defaultBaseURL          = "https://rest.coinapi.io/v1"
	defaultHTTPTimeout      = 30 * time.Second
	defaultMaxRetries       = 3
	defaultRetryBackoffBase = 150 * time.Millisecond

	apiKeyHeader        = "X-CoinAPI-Key"
	rateRemainingHeader = "X-RateLimit-Remaining"
	rateResetHeader     = "X-RateLimit-Reset"
)

// Client wraps access to the CoinAPI REST interface.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	maxRetries int
}

// Option configures a new Client.
type Option func(*Client)

// WithHTTPClient injects a custom http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// WithBaseURL overrides the default REST endpoint URL.
func WithBaseURL(u string) Option {
	return func(c *Client) {
		if u != "" {
			c.baseURL = u
		}
	}
}

// WithAPIKey sets the CoinAPI key sent on every request.
func WithAPIKey(key string) Option {
	return func(c *Client) {
		c.apiKey = key
	}
}

// WithMaxRetries adjusts the retry budget for transport and 5xx failures.
func WithMaxRetries(max int) Option {
	return func(c *Client) {
		if max >= 0 {
			c.maxRetries = max
		}
	}
}

// NewClient constructs a CoinAPI client.
func NewClient(opts ...Option) *Client {
	client := &Client{
		baseURL:    defaultBaseURL,
		httpClient: &http.Client{Timeout: defaultHTTPTimeout},
		maxRetries: defaultMaxRetries,
	}
	for _, opt := range opts {
		opt(client)
	}
	if client.httpClient == nil {
		client.httpClient = &http.Client{Timeout: defaultHTTPTimeout}
	}
	return client
}

// statusError reports a non-2xx response and keeps the status for callers that
// map it onto the source error taxonomy.
type statusError struct {
	status int
	body   string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("coinapi: http status %d: %s", e.status, e.body)
}

// OHLCVHistory fetches up to limit 6-hour bars for symbol starting at start.
// The returned RateLimit carries CoinAPI's quota hints even on failure when a
// response was received.
func (c *Client) OHLCVHistory(ctx context.Context, symbol string, start time.Time, limit int) ([]HistoryRecord, RateLimit, error) {
	endpoint := fmt.Sprintf("%s/ohlcv/%s/history", c.baseURL, url.PathEscape(symbol))
	query := url.Values{}
	query.Set("period_id", periodID)
	query.Set("time_start", start.UTC().Format(timeFormat))
	query.Set("limit", strconv.Itoa(limit))
	fullURL := endpoint + "?" + query.Encode()

	rl := RateLimit{Remaining: -1}
	var lastErr error
	backoff := defaultRetryBackoffBase
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, fullURL, nil)
		if err != nil {
			return nil, rl, fmt.Errorf("coinapi: build request: %w", err)
		}
		if c.apiKey != "" {
			req.Header.Set(apiKeyHeader, c.apiKey)
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return nil, rl, ctx.Err()
			}
			lastErr = err
		} else {
			body, readErr := io.ReadAll(resp.Body)
			resp.Body.Close()
			rl = parseRateLimit(resp.Header)
			switch {
			case readErr != nil:
				lastErr = fmt.Errorf("coinapi: read response: %w", readErr)
			case resp.StatusCode >= 200 && resp.StatusCode < 300:
				var records []HistoryRecord
				if err := json.Unmarshal(body, &records); err != nil {
					return nil, rl, fmt.Errorf("coinapi: decode response: %w", err)
				}
				return records, rl, nil
			case resp.StatusCode >= 500:
				lastErr = &statusError{status: resp.StatusCode, body: truncate(string(body), 200)}
			default:
				// 4xx is not retryable: bad key, bad symbol, or quota exhausted.
				return nil, rl, &statusError{status: resp.StatusCode, body: truncate(string(body), 200)}
			}
		}

		if attempt < c.maxRetries {
			select {
			case <-ctx.Done():
				return nil, rl, ctx.Err()
			case <-time.After(backoff):
				backoff *= 2
			}
		}
	}
	return nil, rl, lastErr
}

func parseRateLimit(h http.Header) RateLimit {
	rl := RateLimit{Remaining: -1}
	if v := h.Get(rateRemainingHeader); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			rl.Remaining = n
		}
	}
	if v := h.Get(rateResetHeader); v != "" {
		if t, err := time.Parse(time.RFC3339Nano, v); err == nil {
			rl.Reset = t.UTC()
		}
	}
	return rl
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
