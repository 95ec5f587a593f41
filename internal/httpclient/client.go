// Package httpclient is the outbound HTTP capability behind the fetch and
// event-stream shims and the page proxy.
//
// Requests go through a shared rate limiter and a per-host circuit breaker.
// Plain requests run on resty with idempotent-only retries; streaming
// requests are dialed through go-retryablehttp without a client timeout so
// long-lived server-push connections are not cut off.
package httpclient

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/GriffinCanCode/WalletKit/bridge/internal/infrastructure/config"
	"github.com/GriffinCanCode/WalletKit/bridge/internal/infrastructure/resilience"
	"github.com/go-resty/resty/v2"
	"github.com/hashicorp/go-retryablehttp"
	"golang.org/x/time/rate"
)

var (
	// ErrUnavailable wraps breaker rejections
	ErrUnavailable = errors.New("upstream unavailable")
	// ErrInvalidURL is returned for anything other than absolute http(s) URLs
	ErrInvalidURL = errors.New("invalid request url")

	errServerStatus = errors.New("server error status")
)

// Options configures a Client
type Options struct {
	Timeout           time.Duration
	RetryMax          int
	RetryWaitMin      time.Duration
	RetryWaitMax      time.Duration
	RequestsPerSecond float64
	Burst             int
	BreakerFailures   uint32
	BreakerTimeout    time.Duration
	UserAgent         string
}

// DefaultOptions returns production defaults
func DefaultOptions() Options {
	return Options{
		Timeout:         30 * time.Second,
		RetryMax:        2,
		RetryWaitMin:    200 * time.Millisecond,
		RetryWaitMax:    2 * time.Second,
		BreakerFailures: 5,
		BreakerTimeout:  30 * time.Second,
		UserAgent:       "WalletKitBridge/1.0",
	}
}

// OptionsFromConfig maps the HTTP config section onto Options
func OptionsFromConfig(cfg config.HTTPConfig) Options {
	opts := DefaultOptions()
	opts.Timeout = cfg.Timeout.Std()
	opts.RetryMax = cfg.RetryMax
	opts.RequestsPerSecond = cfg.RequestsPerSec
	opts.Burst = cfg.Burst
	opts.BreakerFailures = cfg.BreakerFailures
	opts.BreakerTimeout = cfg.BreakerTimeout.Std()
	if cfg.UserAgent != "" {
		opts.UserAgent = cfg.UserAgent
	}
	return opts
}

// Request describes one outbound request
type Request struct {
	Method string
	URL    string
	Header http.Header
	Body   []byte
}

// Response is a fully read response
type Response struct {
	Status     int
	StatusText string
	Header     http.Header
	Body       []byte
	URL        string
}

// Client wraps resty with rate limiting, circuit breakers, and a streaming path
type Client struct {
	resty    *resty.Client
	retry    *retryablehttp.Client
	limiter  *rate.Limiter
	breakers *resilience.Group
	agent    string
}

// New creates a client
func New(opts Options) *Client {
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.BreakerFailures == 0 {
		opts.BreakerFailures = 5
	}

	retryClient := retryablehttp.NewClient()
	retryClient.RetryMax = opts.RetryMax
	retryClient.RetryWaitMin = opts.RetryWaitMin
	retryClient.RetryWaitMax = opts.RetryWaitMax
	retryClient.Logger = nil
	retryClient.ErrorHandler = retryablehttp.PassthroughErrorHandler

	restyClient := resty.New().
		SetTransport(retryClient.HTTPClient.Transport).
		SetTimeout(opts.Timeout).
		SetRetryCount(opts.RetryMax).
		SetRetryWaitTime(opts.RetryWaitMin).
		SetRetryMaxWaitTime(opts.RetryWaitMax).
		AddRetryCondition(shouldRetry).
		SetHeader("User-Agent", opts.UserAgent)

	limiter := rate.NewLimiter(rate.Inf, 0)
	if opts.RequestsPerSecond > 0 {
		burst := opts.Burst
		if burst <= 0 {
			burst = int(opts.RequestsPerSecond) + 1
		}
		limiter = rate.NewLimiter(rate.Limit(opts.RequestsPerSecond), burst)
	}

	failures := opts.BreakerFailures
	breakers := resilience.NewGroup("http", resilience.Settings{
		MaxRequests: 1,
		Interval:    60 * time.Second,
		Timeout:     opts.BreakerTimeout,
		ReadyToTrip: func(counts resilience.Counts) bool {
			return counts.ConsecutiveFailures >= failures
		},
		IsFailure: func(err error) bool {
			return err != nil && !errors.Is(err, context.Canceled)
		},
	})

	return &Client{
		resty:    restyClient,
		retry:    retryClient,
		limiter:  limiter,
		breakers: breakers,
		agent:    opts.UserAgent,
	}
}

// Do performs req and reads the whole body. Any HTTP status is a successful
// Response; only transport failures, cancellation, and breaker rejections
// return an error.
func (c *Client) Do(ctx context.Context, req Request) (*Response, error) {
	target, err := parseURL(req.URL)
	if err != nil {
		return nil, err
	}
	method := req.Method
	if method == "" {
		method = http.MethodGet
	}

	done, err := c.admit(ctx, target.Host)
	if err != nil {
		return nil, err
	}

	r := c.resty.R().SetContext(ctx)
	if len(req.Header) > 0 {
		r.SetHeaderMultiValues(req.Header)
	}
	if req.Body != nil {
		r.SetBody(req.Body)
	}

	resp, err := r.Execute(method, target.String())
	if err != nil {
		done(err)
		return nil, fmt.Errorf("%s %s: %w", method, target.Redacted(), err)
	}
	if resp.StatusCode() >= http.StatusInternalServerError {
		done(errServerStatus)
	} else {
		done(nil)
	}

	out := &Response{
		Status:     resp.StatusCode(),
		StatusText: http.StatusText(resp.StatusCode()),
		Header:     resp.Header().Clone(),
		Body:       resp.Body(),
		URL:        target.String(),
	}
	if raw := resp.RawResponse; raw != nil && raw.Request != nil {
		out.URL = raw.Request.URL.String()
	}
	return out, nil
}

// Stream opens a long-lived GET whose body the caller consumes and closes.
// Cancel ctx to tear the connection down.
func (c *Client) Stream(ctx context.Context, rawURL string, header http.Header) (*http.Response, error) {
	target, err := parseURL(rawURL)
	if err != nil {
		return nil, err
	}

	done, err := c.admit(ctx, target.Host)
	if err != nil {
		return nil, err
	}

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, target.String(), nil)
	if err != nil {
		done(err)
		return nil, fmt.Errorf("failed to build stream request: %w", err)
	}
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	req.Header.Set("User-Agent", c.agent)
	if req.Header.Get("Accept") == "" {
		req.Header.Set("Accept", "text/event-stream")
	}
	req.Header.Set("Cache-Control", "no-cache")

	resp, err := c.retry.Do(req)
	if err != nil {
		done(err)
		return nil, fmt.Errorf("GET %s: %w", target.Redacted(), err)
	}
	if resp.StatusCode >= http.StatusInternalServerError {
		done(errServerStatus)
	} else {
		done(nil)
	}
	return resp, nil
}

// BreakerStates reports the breaker state per upstream host
func (c *Client) BreakerStates() map[string]resilience.State {
	return c.breakers.States()
}

func (c *Client) admit(ctx context.Context, host string) (func(error), error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit error: %w", err)
	}
	done, err := c.breakers.Get(host).Allow()
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrUnavailable, host, err)
	}
	return done, nil
}

func parseURL(raw string) (*url.URL, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidURL, err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, fmt.Errorf("%w: %q", ErrInvalidURL, raw)
	}
	return u, nil
}

// shouldRetry retries transient failures of idempotent requests only so a
// replayed POST never broadcasts a transaction twice.
func shouldRetry(resp *resty.Response, err error) bool {
	if resp == nil || resp.Request == nil || !idempotent(resp.Request.Method) {
		return false
	}
	if ctx := resp.Request.Context(); ctx != nil && ctx.Err() != nil {
		return false
	}
	if err != nil {
		return true
	}
	switch resp.StatusCode() {
	case http.StatusTooManyRequests, http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return true
	}
	return false
}

func idempotent(method string) bool {
	switch method {
	case http.MethodGet, http.MethodHead, http.MethodOptions, http.MethodPut, http.MethodDelete:
		return true
	}
	return false
}
