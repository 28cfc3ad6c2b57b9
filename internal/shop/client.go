package shop

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"time"

	"github.com/cenkalti/backoff/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	// DefaultTimeout bounds every call made by the client.
	DefaultTimeout = 10 * time.Second

	// DefaultMaxReadAttempts is how many times an idempotent read is tried.
	DefaultMaxReadAttempts = 3

	tracerName = "github.com/thomas/storefront-terminal-go/internal/shop"

	maxBodyBytes = 4 << 20
)

// Client talks to the storefront JSON endpoints. It keeps the platform's cart
// cookie in a jar, so one Client addresses one cart.
type Client struct {
	baseURL         string
	httpClient      *http.Client
	maxReadAttempts int
	retryInterval   time.Duration
	tracer          trace.Tracer
}

// ClientOption is a functional option for configuring the client.
type ClientOption func(*Client)

// WithHTTPClient sets a custom HTTP client. A cookie jar is attached if it has none.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// WithTimeout sets the per-call timeout.
func WithTimeout(d time.Duration) ClientOption {
	return func(c *Client) {
		if d > 0 {
			c.httpClient.Timeout = d
		}
	}
}

// WithMaxReadAttempts sets how many times reads are attempted on network failure.
func WithMaxReadAttempts(n int) ClientOption {
	return func(c *Client) {
		if n > 0 {
			c.maxReadAttempts = n
		}
	}
}

// WithRetryInterval sets the initial backoff between read attempts.
func WithRetryInterval(d time.Duration) ClientOption {
	return func(c *Client) {
		if d > 0 {
			c.retryInterval = d
		}
	}
}

// WithTracerProvider sets the OpenTelemetry provider used for call spans.
func WithTracerProvider(tp trace.TracerProvider) ClientOption {
	return func(c *Client) {
		c.tracer = tp.Tracer(tracerName)
	}
}

// NewClient creates a new storefront client.
func NewClient(baseURL string, opts ...ClientOption) *Client {
	c := &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: DefaultTimeout,
		},
		maxReadAttempts: DefaultMaxReadAttempts,
		retryInterval:   200 * time.Millisecond,
		tracer:          otel.Tracer(tracerName),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.httpClient.Jar == nil {
		// cookiejar.New only fails on a broken public suffix list.
		jar, _ := cookiejar.New(nil)
		c.httpClient.Jar = jar
	}
	return c
}

// BaseURL returns the storefront root the client talks to.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// ============================================
// Internal HTTP Methods
// ============================================

// httpFailure carries the response of a non-2xx call so operations can
// classify it.
type httpFailure struct {
	status  int
	payload *platformError
	body    string
}

func (f *httpFailure) Error() string {
	if f.payload != nil && f.payload.text() != "" {
		return f.payload.text()
	}
	return f.body
}

// doRequest performs one HTTP call and decodes the JSON answer into result.
// Non-2xx responses come back as a network *Error wrapping *httpFailure.
func (c *Client) doRequest(ctx context.Context, op, method, endpoint string, query url.Values, body, result any) (err error) {
	ctx, span := c.tracer.Start(ctx, op, trace.WithAttributes(
		attribute.String("http.method", method),
		attribute.String("http.path", endpoint),
	))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, KindOf(err).String())
		}
		span.End()
	}()

	var bodyReader io.Reader
	if body != nil {
		jsonBody, err := json.Marshal(body)
		if err != nil {
			return NewValidationError(op, fmt.Sprintf("encoding request body: %v", err))
		}
		bodyReader = bytes.NewReader(jsonBody)
	}

	reqURL := c.baseURL + endpoint
	if len(query) > 0 {
		reqURL += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, method, reqURL, bodyReader)
	if err != nil {
		return networkError(op, 0, "creating request", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return networkError(op, 0, "executing request", err)
	}
	defer resp.Body.Close()
	span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return networkError(op, resp.StatusCode, "reading response", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		failure := &httpFailure{status: resp.StatusCode, body: string(respBody)}
		var pe platformError
		if json.Unmarshal(respBody, &pe) == nil && (pe.Message != "" || pe.Description != "") {
			failure.payload = &pe
		}
		return &Error{Kind: KindNetwork, Op: op, Status: resp.StatusCode, Message: failure.Error(), Err: failure}
	}

	if result != nil {
		if err := json.Unmarshal(respBody, result); err != nil {
			return decodeError(op, fmt.Errorf("decoding response: %w", err))
		}
	}
	return nil
}

// retryRead runs an idempotent read with exponential backoff. Only network
// failures are retried.
func (c *Client) retryRead(ctx context.Context, op string, read func() error) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.retryInterval
	b.MaxInterval = 2 * time.Second

	_, err := backoff.Retry[struct{}](ctx, func() (struct{}, error) {
		err := read()
		if err != nil && KindOf(err) != KindNetwork {
			return struct{}{}, backoff.Permanent(err)
		}
		return struct{}{}, err
	}, backoff.WithBackOff(b), backoff.WithMaxTries(uint(c.maxReadAttempts)))

	var perm *backoff.PermanentError
	if errors.As(err, &perm) {
		return perm.Err
	}
	var se *Error
	if err != nil && !errors.As(err, &se) {
		// context expiry between attempts
		return networkError(op, 0, "retry aborted", err)
	}
	return err
}

// classify turns a generic non-2xx failure into the kind the caller's
// operation defines for it.
func classify(err error, rules func(status int, payload *platformError) ErrorKind) error {
	var se *Error
	if !errors.As(err, &se) || se.Kind != KindNetwork {
		return err
	}
	var failure *httpFailure
	if !errors.As(se.Err, &failure) {
		return err
	}
	if kind := rules(failure.status, failure.payload); kind != KindNetwork {
		se.Kind = kind
	}
	return se
}
