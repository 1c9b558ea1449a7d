// Package base provides the shared HTTP client infrastructure for upstream tax services.
package base

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	apierrors "github.com/olgasafonova/vat-eu-mcp-server/internal/errors"
	"github.com/olgasafonova/vat-eu-mcp-server/internal/infra"
	"github.com/olgasafonova/vat-eu-mcp-server/metrics"
)

const (
	// DefaultTimeout for API requests
	DefaultTimeout = 15 * time.Second

	// MaxConcurrentRequests limits parallel API calls
	MaxConcurrentRequests = 2

	// DefaultMaxRetry is the number of attempts made per request
	DefaultMaxRetry = 1

	// DefaultUserAgent is sent when no User-Agent is configured
	DefaultUserAgent = "vat-eu-mcp-server/1.0"

	// MaxResponseBytes caps how much of a response body is read
	MaxResponseBytes = 1 << 20
)

// ErrResponseTooLarge is returned when a response body exceeds MaxResponseBytes.
var ErrResponseTooLarge = errors.New("response body too large")

// Client provides common HTTP client infrastructure with concurrency limiting,
// circuit breaking and retries.
type Client struct {
	Service        string
	HTTPClient     *http.Client
	Logger         *slog.Logger
	CircuitBreaker *infra.CircuitBreaker
	Semaphore      chan struct{}
	UserAgent      string
	MaxRetry       int

	breakerCfg infra.CircuitBreakerConfig
}

// ClientOption configures the Client
type ClientOption func(*Client)

// WithHTTPClient sets a custom HTTP client
func WithHTTPClient(c *http.Client) ClientOption {
	return func(client *Client) {
		client.HTTPClient = c
	}
}

// WithLogger sets a custom logger
func WithLogger(l *slog.Logger) ClientOption {
	return func(client *Client) {
		client.Logger = l
	}
}

// WithTimeout replaces the HTTP client with one using the given timeout.
func WithTimeout(d time.Duration) ClientOption {
	return func(client *Client) {
		if d > 0 {
			client.HTTPClient = newHTTPClient(d)
		}
	}
}

// WithMaxConcurrent sets how many requests may be in flight at once.
func WithMaxConcurrent(n int) ClientOption {
	return func(client *Client) {
		if n > 0 {
			client.Semaphore = make(chan struct{}, n)
		}
	}
}

// WithUserAgent sets the User-Agent header sent upstream.
func WithUserAgent(ua string) ClientOption {
	return func(client *Client) {
		if ua != "" {
			client.UserAgent = ua
		}
	}
}

// WithMaxRetry sets the number of attempts per request.
func WithMaxRetry(n int) ClientOption {
	return func(client *Client) {
		if n > 0 {
			client.MaxRetry = n
		}
	}
}

// WithCircuitBreaker tunes the circuit breaker thresholds.
func WithCircuitBreaker(cfg infra.CircuitBreakerConfig) ClientOption {
	return func(client *Client) {
		client.breakerCfg = cfg
	}
}

// NewClient creates a base client for the named upstream service.
func NewClient(service string, opts ...ClientOption) *Client {
	c := &Client{
		Service:    service,
		HTTPClient: newHTTPClient(DefaultTimeout),
		Logger:     slog.Default(),
		Semaphore:  make(chan struct{}, MaxConcurrentRequests),
		UserAgent:  DefaultUserAgent,
		MaxRetry:   DefaultMaxRetry,
		breakerCfg: infra.DefaultCircuitBreakerConfig(),
	}

	for _, opt := range opts {
		opt(c)
	}

	cfg := c.breakerCfg
	cfg.OnStateChange = func(from, to infra.CircuitState) {
		metrics.RecordCircuitTransition(c.Service, to.String())
		c.Logger.Warn("Circuit breaker state changed",
			"service", c.Service,
			"from", from.String(),
			"to", to.String())
	}
	c.CircuitBreaker = infra.NewCircuitBreakerWithConfig(cfg)

	return c
}

// CircuitBreakerStats returns the current circuit breaker state
func (c *Client) CircuitBreakerStats() infra.CircuitBreakerStats {
	return c.CircuitBreaker.Stats()
}

// AcquireSlot blocks until a request slot is available or context is canceled
func (c *Client) AcquireSlot(ctx context.Context) error {
	select {
	case c.Semaphore <- struct{}{}:
		return nil
	default:
	}

	metrics.RateLimitWaits.Inc()
	select {
	case c.Semaphore <- struct{}{}:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("context canceled while waiting for request slot: %w", ctx.Err())
	}
}

// ReleaseSlot releases a request slot
func (c *Client) ReleaseSlot() {
	<-c.Semaphore
}

// CheckCircuitBreaker returns nil if requests are allowed, or an error if the circuit is open
func (c *Client) CheckCircuitBreaker() error {
	if !c.CircuitBreaker.Allow() {
		stats := c.CircuitBreaker.Stats()
		return &infra.ErrCircuitOpen{
			Service:  c.Service,
			RetryAt:  stats.RetryAt,
			Failures: stats.ConsecutiveFails,
		}
	}
	return nil
}

// RequestConfig configures a single HTTP request
type RequestConfig struct {
	URL      string
	MaxRetry int // defaults to the client's MaxRetry

	// CheckBody inspects a 2xx body before the circuit breaker records a
	// success. An error counts as a breaker failure and is returned as is.
	CheckBody func(statusCode int, body []byte) error
}

// DoRequest performs a GET with circuit breaking, the concurrency limit and retries.
// Responses below 500 (other than 429) are returned with their status for the caller
// to interpret. Exhausted retries yield an *errors.UpstreamError and count as a
// circuit breaker failure. A request that ends without an answer, such as a
// canceled one, hands its half-open trial slot back to the breaker.
func (c *Client) DoRequest(ctx context.Context, cfg RequestConfig) ([]byte, int, error) {
	if err := c.CheckCircuitBreaker(); err != nil {
		return nil, 0, err
	}

	settled := false
	defer func() {
		if !settled {
			c.CircuitBreaker.RecordAbort()
		}
	}()

	if err := c.AcquireSlot(ctx); err != nil {
		return nil, 0, err
	}
	defer c.ReleaseSlot()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, cfg.URL, nil)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.UserAgent)

	maxRetry := cfg.MaxRetry
	if maxRetry <= 0 {
		maxRetry = c.MaxRetry
	}
	if maxRetry <= 0 {
		maxRetry = DefaultMaxRetry
	}

	var lastErr *apierrors.UpstreamError
	for attempt := 0; attempt < maxRetry; attempt++ {
		if attempt > 0 {
			backoff := time.Duration(attempt*attempt) * 100 * time.Millisecond
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return nil, 0, fmt.Errorf("context canceled during backoff: %w", ctx.Err())
			}
		}

		resp, err := c.HTTPClient.Do(req)
		if err != nil {
			// The caller gave up; that says nothing about the service.
			if ctx.Err() != nil {
				return nil, 0, fmt.Errorf("request canceled: %w", ctx.Err())
			}
			lastErr = apierrors.NewUpstreamError(c.Service, 0, err.Error())
			c.Logger.Warn("API request failed",
				"service", c.Service,
				"attempt", attempt+1,
				"url", cfg.URL,
				"error", err)
			continue
		}

		body, err := readAndClose(resp)
		if err != nil {
			if ctx.Err() != nil {
				return nil, 0, fmt.Errorf("request canceled: %w", ctx.Err())
			}
			lastErr = apierrors.NewUpstreamError(c.Service, 0, "failed to read response: "+err.Error())
			continue
		}

		if resp.StatusCode == http.StatusTooManyRequests {
			lastErr = apierrors.NewUpstreamError(c.Service, resp.StatusCode, "rate limited")
			if wait, ok := retryAfter(resp); ok && attempt+1 < maxRetry {
				select {
				case <-time.After(wait):
				case <-ctx.Done():
					return nil, 0, ctx.Err()
				}
			}
			continue
		}

		if resp.StatusCode >= 500 {
			lastErr = apierrors.NewUpstreamError(c.Service, resp.StatusCode, truncate(string(body), 200))
			continue
		}

		settled = true
		if cfg.CheckBody != nil && resp.StatusCode >= 200 && resp.StatusCode < 300 {
			if err := cfg.CheckBody(resp.StatusCode, body); err != nil {
				c.CircuitBreaker.RecordFailure()
				return nil, resp.StatusCode, err
			}
		}
		c.CircuitBreaker.RecordSuccess()
		return body, resp.StatusCode, nil
	}

	settled = true
	c.CircuitBreaker.RecordFailure()
	return nil, lastErr.StatusCode, lastErr
}

// RecordSuccess records a successful request with the circuit breaker
func (c *Client) RecordSuccess() {
	c.CircuitBreaker.RecordSuccess()
}

// RecordFailure records a failed request with the circuit breaker
func (c *Client) RecordFailure() {
	c.CircuitBreaker.RecordFailure()
}

func retryAfter(resp *http.Response) (time.Duration, bool) {
	v := resp.Header.Get("Retry-After")
	if v == "" {
		return 0, false
	}
	seconds, err := strconv.Atoi(v)
	if err != nil || seconds < 0 {
		return 0, false
	}
	return time.Duration(seconds) * time.Second, true
}

// readAndClose reads at most MaxResponseBytes of the body and closes it
func readAndClose(resp *http.Response) ([]byte, error) {
	defer func() { _ = resp.Body.Close() }()
	body, err := io.ReadAll(io.LimitReader(resp.Body, MaxResponseBytes+1))
	if err != nil {
		return nil, err
	}
	if len(body) > MaxResponseBytes {
		return nil, ErrResponseTooLarge
	}
	return body, nil
}

// truncate shortens a string to maxLen, adding "..." if truncated
func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}

func newHTTPClient(timeout time.Duration) *http.Client {
	transport := &http.Transport{
		MaxIdleConns:          20,
		MaxIdleConnsPerHost:   10,
		MaxConnsPerHost:       10,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: timeout,
		ForceAttemptHTTP2:     true,
	}

	return &http.Client{
		Timeout:   timeout,
		Transport: transport,
	}
}
