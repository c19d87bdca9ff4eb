// Package fetch performs the outbound GET requests made against broadcaster
// endpoints. Every request carries the same browser-like headers and
// form-encoded query, and any failure surfaces as a *StreamServerError.
package fetch

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/avast/retry-go/v5"
)

const (
	userAgent = "Mozilla/5.0"

	// maxBodySize bounds provider responses; stream URLs and schedules are small.
	maxBodySize = 1 << 20
)

// StreamServerError reports an unreachable provider endpoint or a non-200 reply.
type StreamServerError struct {
	Provider   string
	URL        string
	StatusCode int
	Err        error
}

func (e *StreamServerError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("stream server %s: %s returned HTTP %d", e.Provider, e.URL, e.StatusCode)
	}
	return fmt.Sprintf("stream server %s: %s: %v", e.Provider, e.URL, e.Err)
}

func (e *StreamServerError) Unwrap() error { return e.Err }

// Client issues provider requests with a bounded retry of transport errors
// and 5xx replies. 4xx replies are never retried.
type Client struct {
	http     *http.Client
	attempts uint
	delay    time.Duration
	logger   *slog.Logger
}

// New creates a Client from cfg.
func New(cfg Config, logger *slog.Logger) *Client {
	dialer := &net.Dialer{Timeout: 5 * time.Second}
	transport := &http.Transport{
		DialContext:         dialer.DialContext,
		MaxIdleConnsPerHost: 4,
		IdleConnTimeout:     90 * time.Second,
	}

	attempts := cfg.Retries + 1
	if cfg.Retries < 0 {
		attempts = 1
	}

	return &Client{
		http:     &http.Client{Transport: transport, Timeout: cfg.Timeout},
		attempts: uint(attempts),
		delay:    cfg.RetryDelay,
		logger:   logger,
	}
}

// NewWithHTTPClient is used by tests to point the client at an httptest server.
func NewWithHTTPClient(hc *http.Client, logger *slog.Logger) *Client {
	return &Client{http: hc, attempts: 1, logger: logger}
}

// Get fetches rawURL with query appended and returns the body verbatim.
// provider names the broadcaster for error reporting.
func (c *Client) Get(ctx context.Context, provider, rawURL string, query url.Values) (string, error) {
	target, err := buildURL(rawURL, query)
	if err != nil {
		return "", &StreamServerError{Provider: provider, URL: rawURL, Err: err}
	}

	var last *StreamServerError
	body, err := retry.NewWithData[string](
		retry.Attempts(c.attempts),
		retry.Delay(c.delay),
		retry.Context(ctx),
		retry.OnRetry(func(n uint, err error) {
			c.logger.Debug("retrying provider request", "provider", provider, "attempt", n+1, "err", err)
		}),
	).Do(func() (string, error) {
		b, status, err := c.get(ctx, target)
		switch {
		case err != nil:
			last = &StreamServerError{Provider: provider, URL: target, Err: err}
			return "", last
		case status >= 500:
			last = &StreamServerError{Provider: provider, URL: target, StatusCode: status}
			return "", last
		case status != http.StatusOK:
			last = &StreamServerError{Provider: provider, URL: target, StatusCode: status}
			return "", retry.Unrecoverable(last)
		}
		return b, nil
	})
	if err != nil {
		if last != nil {
			return "", last
		}
		return "", &StreamServerError{Provider: provider, URL: target, Err: err}
	}

	return body, nil
}

func (c *Client) get(ctx context.Context, target string) (string, int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return "", 0, err
	}
	req.Header.Set("Accept", "*/*")
	req.Header.Set("User-Agent", userAgent)

	resp, err := c.http.Do(req)
	if err != nil {
		return "", 0, err
	}
	defer resp.Body.Close()

	b, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return "", resp.StatusCode, fmt.Errorf("read body: %w", err)
	}

	return string(b), resp.StatusCode, nil
}

func buildURL(rawURL string, query url.Values) (string, error) {
	if len(query) == 0 {
		return rawURL, nil
	}

	u, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("parse url: %w", err)
	}

	q := u.Query()
	for k, vs := range query {
		for _, v := range vs {
			q.Add(k, v)
		}
	}
	u.RawQuery = q.Encode()

	return u.String(), nil
}
