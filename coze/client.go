package coze

import (
	"context"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const (
	defaultMaxRetries = 3
	baseBackoff       = time.Second
	maxBackoff        = 5 * time.Second
)

// Client talks to the Coze open API. All outbound calls go through a shared
// retry loop with exponential backoff; an unauthorized response is terminal.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
	limiter    *rate.Limiter
	maxRetries int
	logger     *zap.SugaredLogger

	uploads *uploadCache

	// Backoff intervals, overridable in tests.
	backoffBase time.Duration
	backoffMax  time.Duration
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithMaxRetries sets the default attempt bound for requests and uploads.
func WithMaxRetries(n int) Option {
	return func(c *Client) {
		if n > 0 {
			c.maxRetries = n
		}
	}
}

// WithRateLimit caps outbound requests at rps per second. Zero disables
// limiting.
func WithRateLimit(rps float64) Option {
	return func(c *Client) {
		if rps > 0 {
			c.limiter = rate.NewLimiter(rate.Limit(rps), 1)
		}
	}
}

// WithLogger replaces the default logger.
func WithLogger(logger *zap.SugaredLogger) Option {
	return func(c *Client) { c.logger = logger }
}

// WithBackoff overrides the retry backoff intervals. The request loop grows
// exponentially from base up to max; the upload loop grows linearly in
// multiples of base.
func WithBackoff(base, max time.Duration) Option {
	return func(c *Client) {
		c.backoffBase = base
		c.backoffMax = max
	}
}

// NewClient creates a Coze API client for the given base URL and bearer
// token.
func NewClient(baseURL, token string, opts ...Option) *Client {
	c := &Client{
		baseURL:     strings.TrimRight(baseURL, "/"),
		token:       token,
		httpClient:  &http.Client{Timeout: 60 * time.Second},
		maxRetries:  defaultMaxRetries,
		logger:      zap.NewNop().Sugar(),
		uploads:     newUploadCache(),
		backoffBase: baseBackoff,
		backoffMax:  maxBackoff,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// nextBackoff returns the delay before attempt+1 given that attempt (1-based)
// just failed: base, 2*base, 4*base... clamped at the configured ceiling.
func (c *Client) nextBackoff(attempt int) time.Duration {
	d := c.backoffBase << (attempt - 1)
	if d > c.backoffMax || d <= 0 {
		d = c.backoffMax
	}
	return d
}

// request performs an HTTP request with bounded retries and returns the
// response body text. A 401 aborts immediately with an AuthError; any other
// non-2xx status or transport failure is retried with exponential backoff
// until maxRetries attempts are exhausted, at which point the last observed
// error is returned.
func (c *Client) request(ctx context.Context, method, url string, makeBody func() (io.Reader, string)) (string, error) {
	var lastErr error

	for attempt := 1; attempt <= c.maxRetries; attempt++ {
		if c.limiter != nil {
			if err := c.limiter.Wait(ctx); err != nil {
				return "", err
			}
		}
		c.logger.Infow("coze request", "url", url, "attempt", attempt, "max", c.maxRetries)

		body, contentType := makeBody()
		req, err := http.NewRequestWithContext(ctx, method, url, body)
		if err != nil {
			return "", err
		}
		req.Header.Set("Authorization", "Bearer "+c.token)
		if contentType != "" {
			req.Header.Set("Content-Type", contentType)
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			lastErr = err
			c.logger.Warnw("coze request transport failure", "url", url, "attempt", attempt, "err", err)
		} else {
			text, readErr := readBody(resp)
			switch {
			case readErr != nil:
				lastErr = readErr
			case resp.StatusCode == http.StatusUnauthorized:
				return "", &AuthError{Status: resp.StatusCode}
			case resp.StatusCode >= 200 && resp.StatusCode < 300:
				return text, nil
			default:
				lastErr = &RequestError{Status: resp.StatusCode, Body: text}
				c.logger.Warnw("coze request failed", "url", url, "attempt", attempt, "status", resp.StatusCode)
			}
		}

		if attempt < c.maxRetries {
			wait := c.nextBackoff(attempt)
			c.logger.Infow("retrying after backoff", "wait", wait)
			if err := sleep(ctx, wait); err != nil {
				return "", err
			}
		}
	}

	if lastErr == nil {
		lastErr = ErrAllRetriesFailed
	}
	return "", lastErr
}

func readBody(resp *http.Response) (string, error) {
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// sleep waits for d, returning early if ctx is canceled.
func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
