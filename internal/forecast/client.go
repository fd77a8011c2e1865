// Package forecast proxies the external demand predictor.
package forecast

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// Query bounds accepted by the predictor.
const (
	DefaultDays = 2
	MaxDays     = 14
	DefaultTop  = 5
	MaxTop      = 49
)

// ErrUpstreamUnavailable means the predictor could not be reached or
// answered with a non-2xx status.
var ErrUpstreamUnavailable = errors.New("forecast service unavailable")

// Option configures a Client.
type Option func(*Client)

// WithTimeout overrides the per-request timeout (default 10s).
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.http.Timeout = d }
}

// WithCache serves repeated queries from cache for ttl.
func WithCache(cache Cache, ttl time.Duration) Option {
	return func(c *Client) {
		c.cache = cache
		c.ttl = ttl
	}
}

// Client calls the predictor over a traced HTTP client.
type Client struct {
	baseURL string
	http    *http.Client
	cache   Cache
	ttl     time.Duration
}

// NewClient creates a Client for the predictor at baseURL.
func NewClient(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http: &http.Client{
			Timeout:   10 * time.Second,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Orders returns the predicted order counts for the next days days.
func (c *Client) Orders(ctx context.Context, days int) (json.RawMessage, error) {
	q := url.Values{}
	q.Set("days", strconv.Itoa(days))
	return c.get(ctx, "/forecast/orders", q)
}

// Items returns the top menu items predicted for the next days days.
func (c *Client) Items(ctx context.Context, days, top int) (json.RawMessage, error) {
	q := url.Values{}
	q.Set("days", strconv.Itoa(days))
	q.Set("top", strconv.Itoa(top))
	return c.get(ctx, "/forecast/items", q)
}

func (c *Client) get(ctx context.Context, path string, q url.Values) (json.RawMessage, error) {
	target := c.baseURL + path + "?" + q.Encode()

	if c.cache != nil {
		body, ok, err := c.cache.Get(ctx, target)
		if err != nil {
			log.Printf("WARN: forecast cache get %s: %v", target, err)
		} else if ok {
			return body, nil
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, fmt.Errorf("build forecast request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUpstreamUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		io.Copy(io.Discard, resp.Body)
		return nil, fmt.Errorf("%w: %s returned %d", ErrUpstreamUnavailable, path, resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: read body: %v", ErrUpstreamUnavailable, err)
	}
	if !json.Valid(body) {
		return nil, fmt.Errorf("%w: %s returned invalid JSON", ErrUpstreamUnavailable, path)
	}

	if c.cache != nil && c.ttl > 0 {
		if err := c.cache.Set(ctx, target, body, c.ttl); err != nil {
			log.Printf("WARN: forecast cache set %s: %v", target, err)
		}
	}
	return body, nil
}
