package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/netbirdio/peerctl/shared/management/status"
	"github.com/netbirdio/peerctl/shared/metrics"
	"github.com/netbirdio/peerctl/util"
	"github.com/netbirdio/peerctl/version"
)

const (
	// DefaultTimeout is the per attempt deadline
	DefaultTimeout = 30 * time.Second
	// DefaultRetryAttempts is the number of attempts of one logical call
	DefaultRetryAttempts = 3
	// DefaultRetryDelay is the base of the linear backoff
	DefaultRetryDelay = time.Second

	requestIDHeader = "X-Request-ID"
)

// Client Management service HTTP REST API Client
type Client struct {
	baseURL    string
	httpClient *http.Client
	jar        *cookieJar

	timeout       time.Duration
	retryAttempts int
	retryDelay    time.Duration
	limiter       *rate.Limiter
	metrics       *metrics.Metrics
	userAgent     string
	timer         backoff.Timer

	// Session session login, probe and logout
	Session *SessionAPI

	// Peers peer collection CRUD
	Peers *PeersAPI
}

// Option configures a Client
type Option func(*Client)

// WithTimeout sets the per attempt deadline. Non-positive values keep the default.
func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		if timeout > 0 {
			c.timeout = timeout
		}
	}
}

// WithRetry sets the number of attempts and the base delay of the linear backoff
func WithRetry(attempts int, delay time.Duration) Option {
	return func(c *Client) {
		c.retryAttempts = attempts
		c.retryDelay = delay
	}
}

// WithRateLimit limits the attempts sent per second. 0 disables the limiter.
func WithRateLimit(requestsPerSecond float64) Option {
	return func(c *Client) {
		if requestsPerSecond > 0 {
			c.limiter = rate.NewLimiter(rate.Limit(requestsPerSecond), 1)
		}
	}
}

// WithMetrics records request counters
func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Client) {
		c.metrics = m
	}
}

// WithHTTPClient replaces the underlying http.Client. Its Jar is replaced by the client's own jar.
func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		cp := *httpClient
		c.httpClient = &cp
	}
}

// WithUserAgent overrides the User-Agent header
func WithUserAgent(userAgent string) Option {
	return func(c *Client) {
		c.userAgent = userAgent
	}
}

// withTimer replaces the timer used to wait between attempts
func withTimer(t backoff.Timer) Option {
	return func(c *Client) {
		c.timer = t
	}
}

// New creates a Client for the service at baseURL.
// The URL must be absolute with an http or https scheme.
func New(baseURL string, opts ...Option) (*Client, error) {
	u, err := url.Parse(baseURL)
	if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return nil, status.NewConfigurationError("invalid service URL %q", baseURL)
	}

	jar, err := newCookieJar()
	if err != nil {
		return nil, status.NewInternalError(err, "create cookie jar")
	}

	c := &Client{
		baseURL:       strings.TrimRight(u.String(), "/"),
		httpClient:    &http.Client{},
		jar:           jar,
		timeout:       DefaultTimeout,
		retryAttempts: DefaultRetryAttempts,
		retryDelay:    DefaultRetryDelay,
		userAgent:     version.UserAgent(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.httpClient.Jar = c.jar
	c.initialize()
	return c, nil
}

func (c *Client) initialize() {
	c.Session = &SessionAPI{c}
	c.Peers = &PeersAPI{c}
}

// BaseURL returns the service address without trailing slash
func (c *Client) BaseURL() string {
	return c.baseURL
}

// CallBudget returns the longest a single call to Execute can take when every attempt times out
func (c *Client) CallBudget() time.Duration {
	attempts := max(c.retryAttempts, 1)
	waits := time.Duration(attempts*(attempts-1)/2) * max(c.retryDelay, 0)
	return time.Duration(attempts)*c.timeout + waits
}

// Cookies returns the cookies the client would send to the service
func (c *Client) Cookies() []*http.Cookie {
	u, err := url.Parse(c.baseURL + "/")
	if err != nil {
		return nil
	}
	return c.jar.Cookies(u)
}

// Close releases idle connections
func (c *Client) Close() error {
	c.httpClient.CloseIdleConnections()
	return nil
}

// ClearCookies drops every stored cookie
func (c *Client) ClearCookies() {
	c.jar.Reset()
}

// Execute performs one logical call. Network failures, timeouts and 5xx answers are retried with
// a linear backoff; 401 and 429 are returned at once. Other non-2xx answers are not errors: the
// returned Response has OK set to false.
func (c *Client) Execute(ctx context.Context, method, path string, body any, headers map[string]string) (*Response, error) {
	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			return nil, status.NewInternalError(err, "marshal request body")
		}
	}

	requestID := uuid.NewString()
	ctx = util.WithRequestID(ctx, requestID)
	logger := log.WithContext(ctx).WithFields(log.Fields{
		"method": method,
		"path":   path,
	})

	attempts := 0
	permanent := false
	operation := func() (*Response, error) {
		attempts++
		resp, err := c.attempt(ctx, method, path, payload, headers, requestID)
		if err != nil {
			var p *backoff.PermanentError
			permanent = errors.As(err, &p)
		}
		return resp, err
	}

	notify := func(err error, delay time.Duration) {
		c.metrics.CountRetry()
		logger.Warnf("attempt %d failed: %v, retrying in %s", attempts, err, delay)
	}

	maxAttempts := max(c.retryAttempts, 1)
	b := backoff.WithContext(newLinearBackOff(c.retryDelay, maxAttempts), ctx)

	resp, err := backoff.RetryNotifyWithTimerAndData(operation, b, notify, c.timer)
	if err == nil {
		logger.Debugf("completed with status %d after %d attempt(s)", resp.StatusCode, attempts)
		return resp, nil
	}

	if ctxErr := ctx.Err(); ctxErr != nil {
		return nil, ctxErr
	}
	if permanent {
		return nil, err
	}

	logger.Errorf("giving up after %d attempt(s): %v", attempts, err)
	return nil, status.NewNetworkError(attempts, err)
}

// attempt sends a single request. Errors that must not be retried are wrapped with backoff.Permanent.
func (c *Client) attempt(ctx context.Context, method, path string, payload []byte, headers map[string]string, requestID string) (*Response, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, backoff.Permanent(err)
		}
	}

	attemptCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var reader io.Reader
	if payload != nil {
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(attemptCtx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, backoff.Permanent(status.NewInternalError(err, "build request %s %s", method, path))
	}

	req.Header.Set("Accept", "application/json, text/plain")
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set(requestIDHeader, requestID)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	httpResp, err := c.httpClient.Do(req)
	if err != nil {
		c.metrics.CountRequest(method, 0)
		return nil, c.classifyTransportError(ctx, attemptCtx, method, path, err)
	}
	defer httpResp.Body.Close()

	resp, err := readResponse(httpResp)
	c.metrics.CountRequest(method, httpResp.StatusCode)
	if err != nil {
		return nil, c.classifyTransportError(ctx, attemptCtx, method, path, err)
	}

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		return nil, backoff.Permanent(status.NewUnauthorizedError(method, path))
	case resp.StatusCode == http.StatusTooManyRequests:
		retryAfter := parseRetryAfter(resp.Header.Get("Retry-After"), time.Now())
		return nil, backoff.Permanent(status.NewRateLimitedError(retryAfter))
	case resp.StatusCode >= http.StatusInternalServerError:
		return nil, status.NewServerError(resp.StatusCode, resp.ErrorMessage())
	}

	return resp, nil
}

func (c *Client) classifyTransportError(ctx, attemptCtx context.Context, method, path string, err error) error {
	if ctx.Err() != nil {
		return backoff.Permanent(ctx.Err())
	}
	if errors.Is(attemptCtx.Err(), context.DeadlineExceeded) {
		return status.NewTimeoutError(c.timeout, err)
	}
	return fmt.Errorf("%s %s: %w", method, path, err)
}

// parseRetryAfter reads delta-seconds or an HTTP date. 0 means absent or unparsable.
func parseRetryAfter(value string, now time.Time) time.Duration {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0
	}
	if seconds, err := strconv.Atoi(value); err == nil {
		if seconds < 0 {
			return 0
		}
		return time.Duration(seconds) * time.Second
	}
	at, err := http.ParseTime(value)
	if err != nil {
		return 0
	}
	if d := at.Sub(now); d > 0 {
		return d
	}
	return 0
}
