// Package dispatcharr is the downstream channel-manager client: JWT auth
// with a single refresh-on-401, retrying transport, a circuit breaker so a
// dead downstream fails fast instead of stalling every tick, and DRF-style
// pagination and error parsing.
package dispatcharr

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"
	"github.com/sony/gobreaker/v2"

	"github.com/snapetech/eventarr/internal/httpclient"
	"github.com/snapetech/eventarr/internal/metrics"
	"github.com/snapetech/eventarr/internal/safeurl"
	"github.com/snapetech/eventarr/internal/store"
)

// ErrNotConfigured is returned by every operation when the downstream
// connection is disabled or missing a URL.
var ErrNotConfigured = errors.New("dispatcharr: connection not configured")

type Client struct {
	log zerolog.Logger
	met *metrics.Metrics

	http    *http.Client
	retry   httpclient.RetryPolicy
	breaker *gobreaker.CircuitBreaker[*http.Response]

	mu       sync.Mutex
	base     string
	username string
	password string
	enabled  bool
	access   string
	refresh  string
}

func New(met *metrics.Metrics, log zerolog.Logger) *Client {
	c := &Client{
		log:   log.With().Str("component", "dispatcharr").Logger(),
		met:   met,
		http:  httpclient.WithTimeout(httpclient.DownstreamTimeout),
		retry: httpclient.DefaultRetryPolicy,
	}
	c.breaker = gobreaker.NewCircuitBreaker[*http.Response](gobreaker.Settings{
		Name:    "dispatcharr",
		Timeout: 60 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(_ string, from, to gobreaker.State) {
			c.log.Warn().Str("from", from.String()).Str("to", to.String()).Msg("downstream breaker state change")
		},
	})
	return c
}

// Configure applies connection settings. Tokens are dropped so the next call
// logs in against the new target.
func (c *Client) Configure(cfg store.DispatcharrSettings) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.base = strings.TrimRight(cfg.URL, "/")
	c.username = cfg.Username
	c.password = cfg.Password
	c.enabled = cfg.Enabled && cfg.URL != ""
	c.access, c.refresh = "", ""
}

func (c *Client) Enabled() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.enabled
}

func (c *Client) baseURL() (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.enabled || c.base == "" {
		return "", ErrNotConfigured
	}
	return c.base, nil
}

// APIError is a non-2xx downstream response with its DRF field errors
// flattened into one message.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("dispatcharr: http %d: %s", e.Status, e.Message)
}

// login obtains a fresh token pair.
func (c *Client) login(ctx context.Context) error {
	base, err := c.baseURL()
	if err != nil {
		return err
	}
	c.mu.Lock()
	creds := map[string]string{"username": c.username, "password": c.password}
	c.mu.Unlock()

	var tokens struct {
		Access  string `json:"access"`
		Refresh string `json:"refresh"`
	}
	if err := c.bareJSON(ctx, http.MethodPost, base+"/api/accounts/token/", creds, &tokens); err != nil {
		return fmt.Errorf("dispatcharr: login: %w", err)
	}
	c.mu.Lock()
	c.access, c.refresh = tokens.Access, tokens.Refresh
	c.mu.Unlock()
	return nil
}

// refreshAccess trades the refresh token for a new access token, falling
// back to a full login when the refresh token is stale too.
func (c *Client) refreshAccess(ctx context.Context) error {
	base, err := c.baseURL()
	if err != nil {
		return err
	}
	c.mu.Lock()
	refresh := c.refresh
	c.mu.Unlock()
	if refresh == "" {
		return c.login(ctx)
	}
	var tokens struct {
		Access string `json:"access"`
	}
	if err := c.bareJSON(ctx, http.MethodPost, base+"/api/accounts/token/refresh/", map[string]string{"refresh": refresh}, &tokens); err != nil {
		return c.login(ctx)
	}
	c.mu.Lock()
	c.access = tokens.Access
	c.mu.Unlock()
	return nil
}

func (c *Client) token(ctx context.Context) (string, error) {
	c.mu.Lock()
	access := c.access
	c.mu.Unlock()
	if access != "" {
		return access, nil
	}
	if err := c.login(ctx); err != nil {
		return "", err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.access, nil
}

// bareJSON is an unauthenticated JSON round trip, used by the token
// endpoints. Authenticated calls go through doJSON.
func (c *Client) bareJSON(ctx context.Context, method, rawURL string, body, out any) error {
	resp, err := c.roundTrip(ctx, method, rawURL, body, "")
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return apiError(resp)
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// doJSON is one authenticated request with a single 401 retry after a token
// refresh.
func (c *Client) doJSON(ctx context.Context, op, method, path string, body, out any) error {
	base, err := c.baseURL()
	if err != nil {
		return err
	}
	rawURL := path
	if !strings.HasPrefix(path, "http") {
		rawURL = base + path
	}

	for attempt := 0; attempt < 2; attempt++ {
		tok, err := c.token(ctx)
		if err != nil {
			c.met.DownstreamCalls.WithLabelValues(op, "error").Inc()
			return err
		}
		resp, err := c.roundTrip(ctx, method, rawURL, body, tok)
		if err != nil {
			c.met.DownstreamCalls.WithLabelValues(op, "error").Inc()
			return fmt.Errorf("dispatcharr: %s %s: %w", method, safeurl.Redact(rawURL), err)
		}
		if resp.StatusCode == http.StatusUnauthorized && attempt == 0 {
			io.Copy(io.Discard, resp.Body)
			resp.Body.Close()
			if err := c.refreshAccess(ctx); err != nil {
				c.met.DownstreamCalls.WithLabelValues(op, "error").Inc()
				return err
			}
			continue
		}
		defer resp.Body.Close()
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			c.met.DownstreamCalls.WithLabelValues(op, "error").Inc()
			return apiError(resp)
		}
		c.met.DownstreamCalls.WithLabelValues(op, "ok").Inc()
		if out == nil {
			io.Copy(io.Discard, resp.Body)
			return nil
		}
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return errors.New("dispatcharr: unauthorized after token refresh")
}

// roundTrip sends one request through the breaker and the retry layer.
func (c *Client) roundTrip(ctx context.Context, method, rawURL string, body any, bearer string) (*http.Response, error) {
	var payload []byte
	if body != nil {
		var err error
		if payload, err = json.Marshal(body); err != nil {
			return nil, err
		}
	}
	return c.breaker.Execute(func() (*http.Response, error) {
		return httpclient.DoWithRetryFunc(ctx, c.http, c.retry, func() (*http.Request, error) {
			var rd io.Reader
			if payload != nil {
				rd = bytes.NewReader(payload)
			}
			req, err := http.NewRequestWithContext(ctx, method, rawURL, rd)
			if err != nil {
				return nil, err
			}
			req.Header.Set("Accept", "application/json")
			if payload != nil {
				req.Header.Set("Content-Type", "application/json")
			}
			if bearer != "" {
				req.Header.Set("Authorization", "Bearer "+bearer)
			}
			return req, nil
		})
	})
}

// apiError drains a failed response into an APIError, flattening DRF
// {"field": ["msg", ...]} bodies.
func apiError(resp *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 8<<10))
	msg := strings.TrimSpace(string(raw))

	var fields map[string]any
	if err := json.Unmarshal(raw, &fields); err == nil {
		var parts []string
		for field, v := range fields {
			switch val := v.(type) {
			case string:
				parts = append(parts, field+": "+val)
			case []any:
				for _, item := range val {
					if s, ok := item.(string); ok {
						parts = append(parts, field+": "+s)
					}
				}
			}
		}
		if len(parts) > 0 {
			sort.Strings(parts)
			msg = strings.Join(parts, "; ")
		}
	}
	if msg == "" {
		msg = http.StatusText(resp.StatusCode)
	}
	return &APIError{Status: resp.StatusCode, Message: msg}
}

// page is one DRF paginated response.
type page[T any] struct {
	Count   int     `json:"count"`
	Next    *string `json:"next"`
	Results []T     `json:"results"`
}

// getPaginated follows `next` links until exhausted. Endpoints that return a
// bare array instead of a page object are handled too.
func getPaginated[T any](ctx context.Context, c *Client, op, path string) ([]T, error) {
	var out []T
	next := path
	for next != "" {
		var body json.RawMessage
		if err := c.doJSON(ctx, op, http.MethodGet, next, nil, &body); err != nil {
			return nil, err
		}
		var plain []T
		if err := json.Unmarshal(body, &plain); err == nil {
			return append(out, plain...), nil
		}
		var p page[T]
		if err := json.Unmarshal(body, &p); err != nil {
			return nil, fmt.Errorf("dispatcharr: parse page: %w", err)
		}
		out = append(out, p.Results...)
		next = ""
		if p.Next != nil && *p.Next != "" {
			next = *p.Next
		}
	}
	return out, nil
}

// withQuery appends query parameters to a path.
func withQuery(path string, q url.Values) string {
	if len(q) == 0 {
		return path
	}
	sep := "?"
	if strings.Contains(path, "?") {
		sep = "&"
	}
	return path + sep + q.Encode()
}
