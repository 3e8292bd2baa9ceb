// Package httpclient is the single outbound HTTP path for provider calls:
// bounded retries with exponential backoff, Retry-After handling for 429
// responses and a circuit breaker around the whole retry loop.
package httpclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/sony/gobreaker"
)

const maxResponseBody = 4 << 20

type Config struct {
	Timeout            time.Duration
	Retries            int // additional attempts after the first
	RetryDelay         time.Duration
	BackoffMultiplier  float64
	MaxRetryDelay      time.Duration
	BreakerMaxFailures uint32 // 0 disables the breaker
	BreakerOpenTimeout time.Duration
}

func DefaultConfig() Config {
	return Config{
		Timeout:            30 * time.Second,
		Retries:            3,
		RetryDelay:         time.Second,
		BackoffMultiplier:  2,
		MaxRetryDelay:      10 * time.Second,
		BreakerMaxFailures: 5,
		BreakerOpenTimeout: 30 * time.Second,
	}
}

// Sleeper waits for d or until ctx is done.
type Sleeper func(ctx context.Context, d time.Duration) error

// RetryHook is called before each retry sleep.
type RetryHook func(attempt int, reason string)

func contextSleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option { return func(c *Client) { c.httpClient = hc } }
func WithSleeper(s Sleeper) Option          { return func(c *Client) { c.sleep = s } }
func WithRetryHook(h RetryHook) Option      { return func(c *Client) { c.onRetry = h } }

// Request describes one logical outbound call. At most one of JSON, Form and
// Body should be set.
type Request struct {
	Method      string
	URL         string
	Header      http.Header
	Query       url.Values
	JSON        any
	Form        url.Values
	Body        []byte
	Username    string // basic auth when non-empty
	Password    string
	BearerToken string
}

type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

func (r *Response) Successful() bool { return r.StatusCode >= 200 && r.StatusCode < 300 }

func (r *Response) Decode(v any) error {
	dec := json.NewDecoder(bytes.NewReader(r.Body))
	dec.UseNumber()
	return dec.Decode(v)
}

// Map returns the body as a JSON object, or nil when it is not one.
func (r *Response) Map() map[string]any {
	var m map[string]any
	if len(bytes.TrimSpace(r.Body)) == 0 || r.Decode(&m) != nil {
		return nil
	}
	return m
}

// APIRequestError is returned once a request has exhausted its attempts, was
// rejected by the open breaker, or could not be built.
type APIRequestError struct {
	Method     string
	URL        string
	StatusCode int // zero when no response was received
	Body       []byte
	Attempts   int
	Err        error
}

func (e *APIRequestError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "api request %s %s failed", e.Method, e.URL)
	if e.Attempts > 0 {
		fmt.Fprintf(&b, " after %d attempt(s)", e.Attempts)
	}
	if e.StatusCode != 0 {
		fmt.Fprintf(&b, ": status %d", e.StatusCode)
	}
	if e.Err != nil {
		fmt.Fprintf(&b, ": %v", e.Err)
	}
	return b.String()
}

func (e *APIRequestError) Unwrap() error { return e.Err }

// StatusCode extracts the HTTP status of a failed request, if any.
func StatusCode(err error) int {
	var apiErr *APIRequestError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode
	}
	return 0
}

type Client struct {
	name       string
	cfg        Config
	httpClient *http.Client
	breaker    *gobreaker.CircuitBreaker
	sleep      Sleeper
	onRetry    RetryHook
	logger     *slog.Logger
}

func New(name string, cfg Config, logger *slog.Logger, opts ...Option) *Client {
	if cfg.Retries < 0 {
		cfg.Retries = 0
	}
	if cfg.BackoffMultiplier <= 0 {
		cfg.BackoffMultiplier = 1
	}
	c := &Client{
		name:       name,
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		sleep:      contextSleep,
		onRetry:    func(int, string) {},
		logger:     logger.With("component", "http_client", "client", name),
	}
	for _, opt := range opts {
		opt(c)
	}
	if cfg.BreakerMaxFailures > 0 {
		c.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:    name,
			Timeout: cfg.BreakerOpenTimeout,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= cfg.BreakerMaxFailures
			},
			IsSuccessful: breakerSuccess,
			OnStateChange: func(name string, from, to gobreaker.State) {
				c.logger.Warn("Circuit breaker state changed", "from", from.String(), "to", to.String())
			},
		})
	}
	return c
}

// breakerSuccess keeps client errors from tripping the breaker: a 404 or 401
// says nothing about the provider's health.
func breakerSuccess(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) {
		return true
	}
	status := StatusCode(err)
	return status >= 400 && status < 500 && status != http.StatusTooManyRequests
}

// Execute sends req, retrying non-2xx responses other than 401 and transport
// failures. A request is attempted at most Config.Retries+1 times.
func (c *Client) Execute(ctx context.Context, req Request) (*Response, error) {
	if c.breaker == nil {
		return c.execute(ctx, req)
	}
	out, err := c.breaker.Execute(func() (interface{}, error) {
		return c.execute(ctx, req)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, &APIRequestError{Method: req.Method, URL: req.URL, Err: err}
		}
		return nil, err
	}
	return out.(*Response), nil
}

func (c *Client) execute(ctx context.Context, req Request) (*Response, error) {
	target, body, contentType, err := encode(req)
	if err != nil {
		return nil, &APIRequestError{Method: req.Method, URL: req.URL, Err: err}
	}

	var (
		lastResp *Response
		lastErr  error
	)
	maxAttempts := c.cfg.Retries + 1
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		httpReq, err := http.NewRequestWithContext(ctx, req.Method, target, bytes.NewReader(body))
		if err != nil {
			return nil, &APIRequestError{Method: req.Method, URL: req.URL, Err: err}
		}
		decorate(httpReq, req, contentType)

		reason := ""
		resp, err := c.httpClient.Do(httpReq)
		if err != nil {
			if ctx.Err() != nil {
				return nil, &APIRequestError{Method: req.Method, URL: req.URL, Attempts: attempt, Err: ctx.Err()}
			}
			lastResp, lastErr, reason = nil, err, "transport"
		} else {
			r, readErr := readResponse(resp)
			switch {
			case readErr != nil:
				lastResp, lastErr, reason = nil, readErr, "transport"
			case r.Successful():
				return r, nil
			case r.StatusCode == http.StatusUnauthorized:
				// 401 is final here; token refresh happens in the caller.
				c.logger.WarnContext(ctx, "Outbound request unauthorized", "url", req.URL, "attempt", attempt)
				return nil, &APIRequestError{Method: req.Method, URL: req.URL, Attempts: attempt, StatusCode: r.StatusCode, Body: r.Body}
			case r.StatusCode == http.StatusTooManyRequests:
				lastResp, lastErr, reason = r, nil, "rate_limited"
			default:
				lastResp, lastErr, reason = r, nil, "status"
			}
		}

		if attempt == maxAttempts {
			break
		}

		delay := c.backoff(attempt)
		if lastResp != nil && lastResp.StatusCode == http.StatusTooManyRequests {
			if d, ok := retryAfter(lastResp.Header); ok {
				delay = d
			}
		}
		attrs := []any{"attempt", attempt, "max_attempts", maxAttempts, "url", req.URL, "delay", delay.String(), "reason", reason}
		if lastResp != nil {
			attrs = append(attrs, "status", lastResp.StatusCode)
		}
		if lastErr != nil {
			attrs = append(attrs, "error", lastErr)
		}
		c.logger.WarnContext(ctx, "Retrying outbound request", attrs...)
		c.onRetry(attempt, reason)

		if err := c.sleep(ctx, delay); err != nil {
			return nil, &APIRequestError{Method: req.Method, URL: req.URL, Attempts: attempt, Err: err}
		}
	}

	apiErr := &APIRequestError{Method: req.Method, URL: req.URL, Attempts: maxAttempts, Err: lastErr}
	if lastResp != nil {
		apiErr.StatusCode = lastResp.StatusCode
		apiErr.Body = lastResp.Body
	}
	c.logger.ErrorContext(ctx, "Outbound request failed", "url", req.URL, "status", apiErr.StatusCode, "attempts", apiErr.Attempts, "error", lastErr)
	return nil, apiErr
}

// backoff is RetryDelay * BackoffMultiplier^(attempt-1), capped at MaxRetryDelay.
func (c *Client) backoff(attempt int) time.Duration {
	d := float64(c.cfg.RetryDelay) * math.Pow(c.cfg.BackoffMultiplier, float64(attempt-1))
	if c.cfg.MaxRetryDelay > 0 && d > float64(c.cfg.MaxRetryDelay) {
		return c.cfg.MaxRetryDelay
	}
	return time.Duration(d)
}

func retryAfter(h http.Header) (time.Duration, bool) {
	v := strings.TrimSpace(h.Get("Retry-After"))
	if v == "" {
		return 0, false
	}
	if secs, err := strconv.Atoi(v); err == nil {
		if secs < 0 {
			return 0, false
		}
		return time.Duration(secs) * time.Second, true
	}
	if at, err := http.ParseTime(v); err == nil {
		d := time.Until(at)
		if d < 0 {
			d = 0
		}
		return d, true
	}
	return 0, false
}

func encode(req Request) (target string, body []byte, contentType string, err error) {
	target = req.URL
	if len(req.Query) > 0 {
		u, err := url.Parse(req.URL)
		if err != nil {
			return "", nil, "", fmt.Errorf("parse url: %w", err)
		}
		q := u.Query()
		for k, vs := range req.Query {
			for _, v := range vs {
				q.Add(k, v)
			}
		}
		u.RawQuery = q.Encode()
		target = u.String()
	}

	switch {
	case req.JSON != nil:
		body, err = json.Marshal(req.JSON)
		if err != nil {
			return "", nil, "", fmt.Errorf("marshal request body: %w", err)
		}
		contentType = "application/json"
	case req.Form != nil:
		body = []byte(req.Form.Encode())
		contentType = "application/x-www-form-urlencoded"
	default:
		body = req.Body
	}
	return target, body, contentType, nil
}

func decorate(httpReq *http.Request, req Request, contentType string) {
	httpReq.Header.Set("Accept", "application/json")
	if contentType != "" {
		httpReq.Header.Set("Content-Type", contentType)
	}
	for k, vs := range req.Header {
		for _, v := range vs {
			httpReq.Header.Add(k, v)
		}
	}
	if req.Username != "" {
		httpReq.SetBasicAuth(req.Username, req.Password)
	}
	if req.BearerToken != "" {
		httpReq.Header.Set("Authorization", "Bearer "+req.BearerToken)
	}
}

func readResponse(resp *http.Response) (*Response, error) {
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if err != nil {
		return nil, fmt.Errorf("read response body: %w", err)
	}
	return &Response{StatusCode: resp.StatusCode, Header: resp.Header, Body: body}, nil
}
