// Package httpapi is the shared REST transport for marketplace clients. It
// gates every attempt through the source's rate limiter, retries according
// to a retry.Policy and maps HTTP statuses onto domain.APIError kinds.
package httpapi

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/alanyoungcy/mpimport/internal/domain"
	"github.com/alanyoungcy/mpimport/internal/ratelimit"
	"github.com/alanyoungcy/mpimport/internal/retry"
)

// maxErrorBody caps how much of an error response is kept on APIError.
const maxErrorBody = 4 << 10

// Config describes one marketplace endpoint host.
type Config struct {
	Source  domain.SourceCode
	BaseURL string
	// Timeout bounds a single attempt, including reading the body.
	Timeout time.Duration
	// InsecureSkipVerify disables certificate verification for this source
	// only. Other sources keep their own transport.
	InsecureSkipVerify bool
	UserAgent          string
}

// Authorizer adds credentials to an outgoing request.
type Authorizer func(req *http.Request)

// Request is one API call relative to the client's base URL.
type Request struct {
	Method string
	Path   string
	Query  url.Values
	// Body is JSON-encoded when non-nil.
	Body any
}

// Client performs rate-limited, retried calls against one marketplace host.
type Client struct {
	source     domain.SourceCode
	baseURL    string
	userAgent  string
	httpClient *http.Client
	auth       Authorizer
	gate       ratelimit.Gate
	policy     retry.Policy
	logger     *slog.Logger
}

// New creates a Client. gate and policy are owned by the caller so each
// source keeps independent state.
func New(cfg Config, auth Authorizer, gate ratelimit.Gate, policy retry.Policy, logger *slog.Logger) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	ua := strings.TrimSpace(cfg.UserAgent)
	if ua == "" {
		ua = "mpimport/1.0"
	}
	if gate == nil {
		gate = ratelimit.New(string(cfg.Source), 0)
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Client{
		source:    cfg.Source,
		baseURL:   strings.TrimRight(cfg.BaseURL, "/"),
		userAgent: ua,
		httpClient: &http.Client{
			Timeout:   timeout,
			Transport: newTransport(cfg.InsecureSkipVerify),
		},
		auth:   auth,
		gate:   gate,
		policy: policy,
		logger: logger.With(slog.String("component", "httpapi"), slog.String("source", string(cfg.Source))),
	}
}

func newTransport(insecure bool) http.RoundTripper {
	base, ok := http.DefaultTransport.(*http.Transport)
	if !ok {
		return http.DefaultTransport
	}
	t := base.Clone()
	if insecure {
		t.TLSClientConfig = &tls.Config{
			MinVersion:         tls.VersionTLS12,
			InsecureSkipVerify: true, //nolint:gosec // opt-in per source for hosts with non-standard chains
		}
	}
	return t
}

// Source returns the marketplace this client talks to.
func (c *Client) Source() domain.SourceCode { return c.source }

// Call performs req and returns the raw response body of the first
// successful attempt. Cancelling ctx interrupts rate-limit and backoff waits
// but not a request already on the wire.
func (c *Client) Call(ctx context.Context, req Request) ([]byte, error) {
	var body []byte
	err := c.policy.Do(ctx, func(ctx context.Context) error {
		if err := c.gate.Acquire(ctx); err != nil {
			return err
		}
		b, err := c.attempt(context.WithoutCancel(ctx), req)
		if err != nil {
			if apiErr, ok := err.(*domain.APIError); ok && apiErr.Kind == domain.KindRateLimit {
				c.gate.Penalize(apiErr.RetryAfter)
			}
			return err
		}
		body = b
		return nil
	})
	if err != nil {
		return nil, err
	}
	return body, nil
}

// Fetch performs req and converts the body into a page with extract. An
// envelope that cannot be parsed is a validation error: retrying the same
// request would produce the same body.
func (c *Client) Fetch(ctx context.Context, req Request, extract func([]byte) (domain.RawPage, error)) (domain.RawPage, error) {
	body, err := c.Call(ctx, req)
	if err != nil {
		return domain.RawPage{}, err
	}
	page, err := extract(body)
	if err != nil {
		return domain.RawPage{}, &domain.APIError{
			Kind:     domain.KindValidation,
			Source:   c.source,
			Endpoint: req.Path,
			Status:   http.StatusOK,
			Err:      fmt.Errorf("decode envelope: %w", err),
		}
	}
	page.Body = body
	return page, nil
}

func (c *Client) attempt(ctx context.Context, r Request) ([]byte, error) {
	method := r.Method
	if method == "" {
		method = http.MethodGet
	}

	var bodyReader io.Reader
	if r.Body != nil {
		b, err := json.Marshal(r.Body)
		if err != nil {
			return nil, &domain.APIError{Kind: domain.KindValidation, Source: c.source, Endpoint: r.Path, Err: fmt.Errorf("marshal request body: %w", err)}
		}
		bodyReader = bytes.NewReader(b)
	}

	fullURL := c.baseURL + r.Path
	if len(r.Query) > 0 {
		fullURL += "?" + r.Query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, method, fullURL, bodyReader)
	if err != nil {
		return nil, &domain.APIError{Kind: domain.KindValidation, Source: c.source, Endpoint: r.Path, Err: fmt.Errorf("create request: %w", err)}
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.userAgent)
	if r.Body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.auth != nil {
		c.auth(req)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &domain.APIError{Kind: domain.KindTransient, Source: c.source, Endpoint: r.Path, Err: fmt.Errorf("http request: %w", err)}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &domain.APIError{Kind: domain.KindTransient, Source: c.source, Endpoint: r.Path, Status: resp.StatusCode, Err: fmt.Errorf("read response: %w", err)}
	}

	c.logger.DebugContext(ctx, "api call",
		slog.String("method", method),
		slog.String("path", r.Path),
		slog.Int("status", resp.StatusCode),
		slog.Duration("latency", time.Since(start)),
		slog.Int("bytes", len(respBody)),
	)

	if err := c.checkStatus(r.Path, resp, respBody); err != nil {
		return nil, err
	}
	return respBody, nil
}

// checkStatus maps non-2xx HTTP status codes to APIError kinds.
func (c *Client) checkStatus(path string, resp *http.Response, body []byte) error {
	code := resp.StatusCode
	if code >= 200 && code < 300 {
		return nil
	}

	if len(body) > maxErrorBody {
		body = body[:maxErrorBody]
	}
	apiErr := &domain.APIError{
		Source:   c.source,
		Endpoint: path,
		Status:   code,
		Body:     strings.TrimSpace(string(body)),
	}

	switch {
	case code == http.StatusUnauthorized || code == http.StatusForbidden:
		apiErr.Kind = domain.KindAuth
	case code == http.StatusTooManyRequests:
		apiErr.Kind = domain.KindRateLimit
		apiErr.RetryAfter = retryAfter(resp.Header, time.Now())
	case code == http.StatusRequestTimeout || code >= 500:
		apiErr.Kind = domain.KindTransient
	default:
		apiErr.Kind = domain.KindValidation
	}
	return apiErr
}

// retryAfter reads the server's requested wait. Wildberries sends
// X-Ratelimit-Retry in seconds; others use the standard Retry-After header
// in seconds or as an HTTP date.
func retryAfter(h http.Header, now time.Time) time.Duration {
	for _, key := range []string{"X-Ratelimit-Retry", "Retry-After"} {
		v := strings.TrimSpace(h.Get(key))
		if v == "" {
			continue
		}
		if secs, err := strconv.Atoi(v); err == nil && secs >= 0 {
			return time.Duration(secs) * time.Second
		}
		if t, err := http.ParseTime(v); err == nil {
			if d := t.Sub(now); d > 0 {
				return d
			}
		}
	}
	return 0
}
