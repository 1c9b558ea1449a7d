// Package vies is a client for the EU VAT Information Exchange System REST API.
package vies

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/olgasafonova/vat-eu-mcp-server/internal/base"
	apierrors "github.com/olgasafonova/vat-eu-mcp-server/internal/errors"
	"github.com/olgasafonova/vat-eu-mcp-server/internal/infra"
	"github.com/olgasafonova/vat-eu-mcp-server/metrics"
	"github.com/olgasafonova/vat-eu-mcp-server/tracing"
)

const (
	// DefaultBaseURL is the public VIES REST endpoint
	DefaultBaseURL = "https://ec.europa.eu/taxation_customs/vies/rest-api"

	// ServiceName labels metrics, spans and errors for this client
	ServiceName = "vies"

	actionCheckVAT = "check_vat"
)

// Client provides access to the VIES check-VAT endpoint
type Client struct {
	*base.Client
	BaseURL string
}

// ClientOption configures the Client
type ClientOption = base.ClientOption

// WithHTTPClient sets a custom HTTP client
func WithHTTPClient(c *http.Client) ClientOption {
	return base.WithHTTPClient(c)
}

// WithLogger sets a custom logger
func WithLogger(l *slog.Logger) ClientOption {
	return base.WithLogger(l)
}

// WithTimeout sets the per-request timeout
func WithTimeout(d time.Duration) ClientOption {
	return base.WithTimeout(d)
}

// WithMaxConcurrent bounds the number of simultaneous VIES calls
func WithMaxConcurrent(n int) ClientOption {
	return base.WithMaxConcurrent(n)
}

// WithUserAgent sets the User-Agent header
func WithUserAgent(ua string) ClientOption {
	return base.WithUserAgent(ua)
}

// WithCircuitBreaker tunes the circuit breaker
func WithCircuitBreaker(cfg infra.CircuitBreakerConfig) ClientOption {
	return base.WithCircuitBreaker(cfg)
}

// NewClient creates a VIES client. An empty baseURL selects DefaultBaseURL.
// Each check is a single attempt; retry policy belongs to the caller.
func NewClient(baseURL string, opts ...ClientOption) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	opts = append([]ClientOption{base.WithMaxRetry(1)}, opts...)
	return &Client{
		Client:  base.NewClient(ServiceName, opts...),
		BaseURL: strings.TrimRight(baseURL, "/"),
	}
}

// CheckURL returns the check endpoint for a member state code and number body.
func (c *Client) CheckURL(country, number string) string {
	return c.BaseURL + "/ms/" + url.PathEscape(country) + "/vat/" + url.PathEscape(number)
}

// CheckVAT asks VIES whether number is registered in country.
// A response is returned only for 2xx answers carrying an isValid field;
// anything else is an error.
func (c *Client) CheckVAT(ctx context.Context, country, number string) (*CheckResponse, error) {
	ctx, span := tracing.StartSpan(ctx, "vies.check_vat")
	defer span.End()
	tracing.AddVATAttributes(span, country, "")

	start := time.Now()
	var resp *CheckResponse
	body, statusCode, err := c.DoRequest(ctx, base.RequestConfig{
		URL: c.CheckURL(country, number),
		CheckBody: func(statusCode int, body []byte) (err error) {
			resp, err = decodeBody(statusCode, body)
			return err
		},
	})
	tracing.AddUpstreamAttributes(span, ServiceName, actionCheckVAT, statusCode)
	if err == nil && resp == nil {
		err = apierrors.NewUpstreamError(ServiceName, statusCode, describeFailure(body))
	}
	if err != nil {
		metrics.RecordAPICall(ServiceName, actionCheckVAT, time.Since(start).Seconds(), false, errorCode(err, statusCode))
		tracing.RecordError(span, err)
		return nil, err
	}

	code := ""
	if !resp.IsValid && resp.UserError != userErrorInvalid && resp.UserError != userErrorValid {
		code = resp.UserError
	}
	metrics.RecordAPICall(ServiceName, actionCheckVAT, time.Since(start).Seconds(), true, code)

	c.Logger.Debug("VIES check completed",
		"country", country,
		"valid", resp.IsValid,
		"user_error", resp.UserError,
		"duration_ms", time.Since(start).Milliseconds())

	return resp, nil
}

// decodeBody parses a 2xx VIES answer. A body that isn't a check result means
// the gateway, not the number, is broken.
func decodeBody(statusCode int, body []byte) (*CheckResponse, error) {
	var wire wireResponse
	if err := json.Unmarshal(body, &wire); err != nil {
		return nil, &apierrors.UpstreamError{
			Service:    ServiceName,
			StatusCode: statusCode,
			Message:    "malformed response: " + err.Error(),
			Retryable:  true,
		}
	}
	if wire.IsValid == nil {
		return nil, &apierrors.UpstreamError{
			Service:    ServiceName,
			StatusCode: statusCode,
			Message:    "malformed response: missing isValid",
			Retryable:  true,
		}
	}

	return wire.toCheckResponse(), nil
}

// describeFailure extracts a message from a VIES error body.
func describeFailure(body []byte) string {
	var payload struct {
		ActionSucceed bool `json:"actionSucceed"`
		ErrorWrappers []struct {
			Error   string `json:"error"`
			Message string `json:"message"`
		} `json:"errorWrappers"`
	}
	if json.Unmarshal(body, &payload) == nil && len(payload.ErrorWrappers) > 0 {
		w := payload.ErrorWrappers[0]
		if w.Message != "" {
			return w.Error + ": " + w.Message
		}
		return w.Error
	}
	msg := strings.TrimSpace(string(body))
	if len(msg) > 200 {
		msg = msg[:200] + "..."
	}
	if msg == "" {
		return "empty response"
	}
	return msg
}

func errorCode(err error, statusCode int) string {
	var open *infra.ErrCircuitOpen
	switch {
	case errors.As(err, &open):
		return "circuit_open"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "canceled"
	case statusCode > 0:
		return "http_" + strconv.Itoa(statusCode)
	case apierrors.IsUpstream(err):
		return "transport"
	default:
		return "unknown"
	}
}
