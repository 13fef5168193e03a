// Package transport performs authenticated JSON calls against the library REST API
// and classifies every failure with apierr.
package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"
	"golang.org/x/oauth2"

	"github.com/goliatone/go-query-cache/apierr"
	"github.com/goliatone/go-query-cache/cache"
)

// DefaultTimeout bounds a single request.
const DefaultTimeout = 30 * time.Second

const maxErrorBody = 64 << 10

// Transport is the network collaborator of the cache hooks.
type Transport interface {
	// Get fetches url and decodes the JSON response into out.
	Get(ctx context.Context, url, identity string, out any) error

	// Request issues method against url with an optional JSON body and decodes
	// the response into out when out is non-nil.
	Request(ctx context.Context, method, url, identity string, body, out any) error
}

var _ Transport = (*Client)(nil)

// Client is the net/http Transport.
type Client struct {
	http   *http.Client
	logger *zap.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) {
		if h != nil {
			c.http = h
		}
	}
}

// WithTimeout sets the per-request timeout of the default HTTP client.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.http = &http.Client{Timeout: d}
		}
	}
}

// WithLogger sets the request logger.
func WithLogger(logger *zap.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// New creates a Client.
func New(opts ...Option) *Client {
	c := &Client{
		http:   &http.Client{Timeout: DefaultTimeout},
		logger: zap.NewNop(),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Get implements Transport.
func (c *Client) Get(ctx context.Context, url, identity string, out any) error {
	return c.Request(ctx, http.MethodGet, url, identity, nil, out)
}

// Request implements Transport.
func (c *Client) Request(ctx context.Context, method, url, identity string, body, out any) error {
	if identity == "" {
		return apierr.New(apierr.KindUnauthorized, "no identity provided")
	}

	req, err := c.newRequest(ctx, method, url, identity, body)
	if err != nil {
		return err
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		c.logger.Debug("request failed",
			zap.String("method", method),
			zap.String("url", url),
			zap.Strings("tags", TagsFromContext(ctx)),
			zap.Error(err),
		)
		return apierr.Network(err, url)
	}
	defer resp.Body.Close()

	c.logger.Debug("request completed",
		zap.String("method", method),
		zap.String("url", url),
		zap.Int("status", resp.StatusCode),
		zap.Duration("elapsed", time.Since(start)),
		zap.Strings("tags", TagsFromContext(ctx)),
		zap.String("identity", cache.Fingerprint(identity)),
	)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return apierr.FromResponse(resp.StatusCode, apierr.ParseResponse(resp.StatusCode, raw))
	}

	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return apierr.Network(err, url)
	}
	if len(bytes.TrimSpace(raw)) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return apierr.Wrap(err, apierr.KindUnknown, fmt.Sprintf("decode %s %s", method, url))
	}

	return nil
}

func (c *Client) newRequest(ctx context.Context, method, url, identity string, body any) (*http.Request, error) {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return nil, apierr.Wrap(err, apierr.KindUnknown, "encode request body")
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return nil, apierr.Wrap(err, apierr.KindUnknown, "build request")
	}

	token := &oauth2.Token{AccessToken: identity, TokenType: "Bearer"}
	token.SetAuthHeader(req)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	return req, nil
}
