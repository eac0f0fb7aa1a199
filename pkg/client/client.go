// Package client is the single outbound channel to the library
// service. Every request goes through Client.Do, which attaches the
// bearer credential, surfaces refreshed credentials from response
// headers, and recovers authentication failures globally through the
// unauthorized hook.
package client

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	jsoniter "github.com/json-iterator/go"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

const (
	defaultTimeout = 10 * time.Second
	retryBaseDelay = 250 * time.Millisecond

	bearerPrefix = "Bearer "
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// TokenSource supplies the current bearer credential. The session
// store satisfies it.
type TokenSource interface {
	Token() string
}

// Response is the decoded outcome of a request. RefreshedToken is set
// when the response carried a new bearer credential in its
// Authorization header; the gateway surfaces it explicitly rather
// than persisting it itself, and the token-refresh hook wired by the
// app layer feeds it into the session store.
type Response struct {
	Status         int
	Body           []byte
	RefreshedToken string
}

// Client talks to the library service API.
type Client struct {
	log     logrus.FieldLogger
	baseURL string
	httpc   *http.Client
	tokens  TokenSource
	limiter *rate.Limiter

	readRetries int

	onRefreshedToken func(token string)
	onUnauthorized   func()
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(httpc *http.Client) Option {
	return func(c *Client) { c.httpc = httpc }
}

// WithTimeout sets the per-request timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.httpc.Timeout = d }
}

// WithTokenSource attaches the credential supplier.
func WithTokenSource(ts TokenSource) Option {
	return func(c *Client) { c.tokens = ts }
}

// WithRateLimit caps outbound requests per second.
func WithRateLimit(rps int) Option {
	return func(c *Client) {
		if rps > 0 {
			c.limiter = rate.NewLimiter(rate.Limit(rps), rps)
		}
	}
}

// WithReadRetries bounds retry attempts for idempotent reads that hit
// transport or 5xx failures. Mutations are never retried.
func WithReadRetries(n int) Option {
	return func(c *Client) { c.readRetries = n }
}

// WithTokenRefreshHook registers the adapter that persists refreshed
// credentials into the session store.
func WithTokenRefreshHook(fn func(token string)) Option {
	return func(c *Client) { c.onRefreshedToken = fn }
}

// WithUnauthorizedHook registers the handler invoked exactly once per
// 401 response, before the error propagates to the caller.
func WithUnauthorizedHook(fn func()) Option {
	return func(c *Client) { c.onUnauthorized = fn }
}

// New creates a Client for the given base URL.
func New(log logrus.FieldLogger, baseURL string, opts ...Option) *Client {
	c := &Client{
		log:     log.WithField("component", "client"),
		baseURL: strings.TrimRight(baseURL, "/"),
		httpc:   &http.Client{Timeout: defaultTimeout},
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// Do executes one API request. GETs retry a bounded number of times
// with backoff on transport and 5xx failures; everything else is
// attempted exactly once.
func (c *Client) Do(
	ctx context.Context,
	method, path string,
	body any,
	params url.Values,
) (*Response, error) {
	var payload []byte

	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("encoding request body: %w", err)
		}

		payload = data
	}

	attempts := 1
	if method == http.MethodGet {
		attempts += c.readRetries
	}

	var lastErr error

	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			delay := retryBaseDelay << (attempt - 1)

			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}

		resp, retryable, err := c.attempt(ctx, method, path, payload, params)
		if err == nil {
			return resp, nil
		}

		lastErr = err

		if !retryable {
			return nil, err
		}

		c.log.WithError(err).
			WithField("method", method).
			WithField("path", path).
			WithField("attempt", attempt+1).
			Debug("Retrying request")
	}

	return nil, lastErr
}

// attempt performs a single request/response cycle. The returned bool
// reports whether the failure is safe to retry.
func (c *Client) attempt(
	ctx context.Context,
	method, path string,
	payload []byte,
	params url.Values,
) (*Response, bool, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, false, err
		}
	}

	reqURL := c.baseURL + path
	if len(params) > 0 {
		reqURL += "?" + params.Encode()
	}

	var bodyReader io.Reader
	if payload != nil {
		bodyReader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, reqURL, bodyReader)
	if err != nil {
		return nil, false, fmt.Errorf("creating request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-Id", uuid.NewString())

	if c.tokens != nil {
		if token := c.tokens.Token(); token != "" {
			req.Header.Set("Authorization", bearerPrefix+token)
		}
	}

	httpResp, err := c.httpc.Do(req)
	if err != nil {
		return nil, method == http.MethodGet, fmt.Errorf("sending request: %w", err)
	}

	defer func() { _ = httpResp.Body.Close() }()

	respBody, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, false, fmt.Errorf("reading response: %w", err)
	}

	resp := &Response{
		Status: httpResp.StatusCode,
		Body:   respBody,
	}

	// A refreshed credential may ride along on any response.
	if auth := httpResp.Header.Get("Authorization"); strings.HasPrefix(auth, bearerPrefix) {
		resp.RefreshedToken = strings.TrimPrefix(auth, bearerPrefix)

		if c.onRefreshedToken != nil {
			c.onRefreshedToken(resp.RefreshedToken)
		}
	}

	if httpResp.StatusCode >= 200 && httpResp.StatusCode < 300 {
		return resp, false, nil
	}

	apiErr := parseAPIError(httpResp.StatusCode, respBody)

	// Authentication failure is recovered globally, exactly once per
	// response, before the error reaches the caller.
	if httpResp.StatusCode == http.StatusUnauthorized && c.onUnauthorized != nil {
		c.onUnauthorized()
	}

	retryable := method == http.MethodGet &&
		httpResp.StatusCode >= http.StatusInternalServerError

	return nil, retryable, apiErr
}

// getJSON issues a GET and decodes the response body into out.
func (c *Client) getJSON(ctx context.Context, path string, params url.Values, out any) error {
	resp, err := c.Do(ctx, http.MethodGet, path, nil, params)
	if err != nil {
		return err
	}

	return decodeBody(resp.Body, out)
}

// sendJSON issues a write request and decodes the response into out
// when out is non-nil.
func (c *Client) sendJSON(ctx context.Context, method, path string, body, out any) error {
	resp, err := c.Do(ctx, method, path, body, nil)
	if err != nil {
		return err
	}

	if out == nil {
		return nil
	}

	return decodeBody(resp.Body, out)
}

func decodeBody(body []byte, out any) error {
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}

	return nil
}
