// Package httpclient is the outbound HTTP adapter shared by every backend
// call. It applies the retry policy, records metrics and maps failures onto
// the typed error taxonomy.
package httpclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	pkgerrors "github.com/MwailaCoding/storefront/pkg/errors"
	"github.com/MwailaCoding/storefront/pkg/logger"
	"github.com/MwailaCoding/storefront/pkg/metrics"
)

const responseBodyLimit int64 = 1 << 20

// StatusError carries a non-2xx response.
type StatusError struct {
	StatusCode int
	Body       []byte
}

func (e *StatusError) Error() string {
	snippet := strings.TrimSpace(string(e.Body))
	if len(snippet) > 200 {
		snippet = snippet[:200]
	}
	if snippet == "" {
		return fmt.Sprintf("unexpected status %d", e.StatusCode)
	}
	return fmt.Sprintf("unexpected status %d: %s", e.StatusCode, snippet)
}

// StatusCode returns the HTTP status carried by err, or 0.
func StatusCode(err error) int {
	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return statusErr.StatusCode
	}
	return 0
}

// Response is a fully read 2xx response.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// DecodeJSON unmarshals the body into dest.
func (r *Response) DecodeJSON(dest any) error {
	if err := json.Unmarshal(r.Body, dest); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decoding backend response")
	}
	return nil
}

// RequestEditor mutates every outgoing request, e.g. to attach credentials.
type RequestEditor func(ctx context.Context, req *http.Request)

// Client issues JSON requests against a single base URL.
type Client struct {
	httpClient *http.Client
	baseURL    *url.URL
	policy     Policy
	metrics    *metrics.HTTPClientMetrics
	logg       *logger.Logger
	editors    []RequestEditor
	sleep      func(context.Context, time.Duration) error
	jitter     func(time.Duration) time.Duration
	now        func() time.Time
}

// Option configures optional client behavior.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

func WithPolicy(p Policy) Option {
	return func(c *Client) { c.policy = p.normalized() }
}

func WithMetrics(m *metrics.HTTPClientMetrics) Option {
	return func(c *Client) { c.metrics = m }
}

func WithLogger(logg *logger.Logger) Option {
	return func(c *Client) {
		if logg != nil {
			c.logg = logg
		}
	}
}

func WithRequestEditor(fn RequestEditor) Option {
	return func(c *Client) {
		if fn != nil {
			c.editors = append(c.editors, fn)
		}
	}
}

// New builds a client for baseURL. The default policy is a single attempt.
func New(baseURL string, opts ...Option) (*Client, error) {
	parsed, err := url.Parse(strings.TrimSpace(baseURL))
	if err != nil {
		return nil, fmt.Errorf("parsing base url: %w", err)
	}
	if parsed.Scheme == "" || parsed.Host == "" {
		return nil, fmt.Errorf("base url %q must be absolute", baseURL)
	}
	parsed.Path = strings.TrimSuffix(parsed.Path, "/")

	c := &Client{
		httpClient: &http.Client{Timeout: 15 * time.Second},
		baseURL:    parsed,
		policy:     Policy{MaxAttempts: 1}.normalized(),
		logg:       logger.Nop(),
		sleep:      sleep,
		jitter:     withJitter,
		now:        time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	return c, nil
}

type requestOptions struct {
	route   string
	query   url.Values
	header  http.Header
	retry   bool
	timeout time.Duration
}

// RequestOption tunes a single call.
type RequestOption func(*requestOptions)

// WithRetry toggles the retry policy for one call. Non-idempotent requests
// pass false unless they carry an idempotency key.
func WithRetry(enabled bool) RequestOption {
	return func(o *requestOptions) { o.retry = enabled }
}

// WithRoute sets the metrics label; it defaults to the path.
func WithRoute(route string) RequestOption {
	return func(o *requestOptions) { o.route = route }
}

func WithQuery(q url.Values) RequestOption {
	return func(o *requestOptions) { o.query = q }
}

func WithHeader(key, value string) RequestOption {
	return func(o *requestOptions) {
		if o.header == nil {
			o.header = http.Header{}
		}
		o.header.Set(key, value)
	}
}

// WithTimeout bounds the whole call, retries included.
func WithTimeout(d time.Duration) RequestOption {
	return func(o *requestOptions) { o.timeout = d }
}

// Do sends the request, retrying network errors, 5xx and 429 per policy.
// Non-2xx final responses come back as typed errors wrapping *StatusError.
func (c *Client) Do(ctx context.Context, method, path string, body any, opts ...RequestOption) (*Response, error) {
	o := requestOptions{route: path, retry: true}
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}
	if o.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.timeout)
		defer cancel()
	}

	var payload []byte
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "encoding request body")
		}
		payload = encoded
	}

	attempts := c.policy.MaxAttempts
	if !o.retry {
		attempts = 1
	}

	started := c.now()
	defer func() { c.metrics.ObserveDuration(o.route, c.now().Sub(started)) }()

	var delay time.Duration
	for attempt := 1; ; attempt++ {
		resp, err := c.once(ctx, method, path, payload, o)
		c.metrics.IncAttempt(o.route, outcome(resp, err))

		if err == nil && resp.StatusCode >= 200 && resp.StatusCode < 300 {
			return resp, nil
		}
		if err != nil && ctx.Err() != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, ctx.Err(), fmt.Sprintf("%s %s aborted", method, path))
		}

		retryable := err != nil || retryableStatus(resp.StatusCode)
		if !retryable || attempt >= attempts {
			return nil, c.finalError(method, path, resp, err)
		}

		delay = nextBackoff(delay, c.policy.BaseDelay, c.policy.MaxDelay)
		wait := c.jitter(delay)
		if resp != nil && resp.StatusCode == http.StatusTooManyRequests {
			if hinted, ok := retryAfter(resp.Header.Get("Retry-After"), c.now()); ok {
				wait = hinted
			}
		}
		if wait > c.policy.MaxDelay {
			wait = c.policy.MaxDelay
		}

		c.metrics.IncRetry(o.route)
		c.logg.Debug(c.logg.WithFields(ctx, map[string]any{
			"route":    o.route,
			"attempt":  attempt,
			"delay_ms": wait.Milliseconds(),
		}), "retrying backend request")

		if err := c.sleep(ctx, wait); err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, fmt.Sprintf("%s %s aborted", method, path))
		}
	}
}

func (c *Client) once(ctx context.Context, method, path string, payload []byte, o requestOptions) (*Response, error) {
	endpoint := *c.baseURL
	endpoint.Path = c.baseURL.Path + "/" + strings.TrimPrefix(path, "/")
	if len(o.query) > 0 {
		endpoint.RawQuery = o.query.Encode()
	}

	var reader io.Reader
	if payload != nil {
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint.String(), reader)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for key, values := range o.header {
		for _, v := range values {
			req.Header.Add(key, v)
		}
	}
	for _, edit := range c.editors {
		edit(ctx, req)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, responseBodyLimit))
	if err != nil {
		return nil, fmt.Errorf("reading response body: %w", err)
	}
	return &Response{StatusCode: resp.StatusCode, Header: resp.Header, Body: body}, nil
}

func (c *Client) finalError(method, path string, resp *Response, err error) error {
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, fmt.Sprintf("%s %s failed", method, path))
	}
	statusErr := &StatusError{StatusCode: resp.StatusCode, Body: resp.Body}
	return pkgerrors.Wrap(pkgerrors.CodeForStatus(resp.StatusCode), statusErr, fmt.Sprintf("%s %s returned %d", method, path, resp.StatusCode))
}

func outcome(resp *Response, err error) string {
	if err != nil || resp == nil {
		return "error"
	}
	return fmt.Sprintf("%dxx", resp.StatusCode/100)
}
