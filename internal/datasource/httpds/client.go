// Package httpds downloads source files over HTTP(S).
//
// The client follows redirects (the trip-data releases redirect to a CDN),
// treats any non-2xx final status as an error, and can optionally retry
// transient failures with exponential backoff. Retries are off by default:
// a failed download fails the run.
package httpds

import (
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Config configures a Client. Zero values get defaults:
//
//	Timeout         10m
//	MaxRetries      0
//	InitialBackoff  500ms
//	MaxBackoff      30s
type Config struct {
	// Timeout bounds a whole request including reading the body.
	Timeout time.Duration

	// MaxRetries is the number of extra attempts after the first one.
	MaxRetries int

	InitialBackoff time.Duration
	MaxBackoff     time.Duration

	// UserAgent is sent on every request when non-empty.
	UserAgent string

	InsecureSkipVerify bool

	// Transport overrides the default transport (tests).
	Transport http.RoundTripper
}

// StatusError is returned when the server answers with a non-2xx status.
type StatusError struct {
	URL        string
	StatusCode int
	Status     string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("httpds: GET %s: %s", e.URL, e.Status)
}

// Client is an HTTP GET client with optional retry.
type Client struct {
	httpClient     *http.Client
	maxRetries     int
	initialBackoff time.Duration
	maxBackoff     time.Duration
	userAgent      string

	// sleep waits between attempts; tests replace it.
	sleep func(ctx context.Context, d time.Duration) error
}

// NewClient builds a Client from cfg.
func NewClient(cfg Config) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Minute
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.InitialBackoff <= 0 {
		cfg.InitialBackoff = 500 * time.Millisecond
	}
	if cfg.MaxBackoff <= 0 {
		cfg.MaxBackoff = 30 * time.Second
	}
	transport := cfg.Transport
	if transport == nil {
		t := http.DefaultTransport.(*http.Transport).Clone()
		if cfg.InsecureSkipVerify {
			t.TLSClientConfig = &tls.Config{InsecureSkipVerify: true} //nolint:gosec // opt-in
		}
		transport = t
	}
	return &Client{
		httpClient:     &http.Client{Timeout: cfg.Timeout, Transport: transport},
		maxRetries:     cfg.MaxRetries,
		initialBackoff: cfg.InitialBackoff,
		maxBackoff:     cfg.MaxBackoff,
		userAgent:      cfg.UserAgent,
		sleep:          sleepContext,
	}
}

// Open issues a GET for url and returns the response body on a 2xx status.
// The caller must close the body.
func (c *Client) Open(ctx context.Context, url string) (io.ReadCloser, error) {
	resp, err := c.get(ctx, url, nil)
	if err != nil {
		return nil, err
	}
	return resp.Body, nil
}

// FetchFirstBytes returns at most n bytes from the start of url. A Range
// header is sent, but the result is capped client side as well since not
// every server honors it.
func (c *Client) FetchFirstBytes(ctx context.Context, url string, n int) ([]byte, error) {
	if n <= 0 {
		return nil, fmt.Errorf("httpds: n must be > 0")
	}
	h := http.Header{}
	h.Set("Range", fmt.Sprintf("bytes=0-%d", n-1))
	resp, err := c.get(ctx, url, h)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	return io.ReadAll(io.LimitReader(resp.Body, int64(n)))
}

func (c *Client) get(ctx context.Context, url string, headers http.Header) (*http.Response, error) {
	if url == "" {
		return nil, fmt.Errorf("httpds: url must not be empty")
	}
	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			if err := c.sleep(ctx, backoffDuration(c.initialBackoff, attempt-1, c.maxBackoff)); err != nil {
				return nil, err
			}
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return nil, fmt.Errorf("httpds: build request: %w", err)
		}
		for k, vs := range headers {
			for _, v := range vs {
				req.Header.Add(k, v)
			}
		}
		if c.userAgent != "" {
			req.Header.Set("User-Agent", c.userAgent)
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			lastErr = fmt.Errorf("httpds: GET %s: %w", url, err)
			continue
		}
		if resp.StatusCode >= 200 && resp.StatusCode <= 299 {
			return resp, nil
		}
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4<<10))
		_ = resp.Body.Close()
		lastErr = &StatusError{URL: url, StatusCode: resp.StatusCode, Status: resp.Status}
		if !isRetryableStatus(resp.StatusCode) {
			return nil, lastErr
		}
	}
	return nil, lastErr
}

// 5xx and 429 are transient; everything else is final.
func isRetryableStatus(code int) bool {
	return code == http.StatusTooManyRequests || (code >= 500 && code <= 599)
}

// backoffDuration returns initial*2^retry clamped to max.
func backoffDuration(initial time.Duration, retry int, max time.Duration) time.Duration {
	if retry > 30 {
		return max
	}
	d := initial << retry
	if d > max || d <= 0 {
		return max
	}
	return d
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
