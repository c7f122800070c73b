// Package api is the backend REST client used to load entities into a wizard
// and submit the finished payload. Credentials and tenant are injected through
// Options; nothing is read from ambient storage.
package api

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/prometheus/client_golang/prometheus"
)

// DefaultTenantHeader carries the tenant id on every request.
const DefaultTenantHeader = "X-Tenant-ID"

// Options configures a Client.
type Options struct {
	BaseURL      string
	Token        string
	Tenant       string
	TenantHeader string
	UserAgent    string
	HTTPClient   *http.Client
	Logger       *slog.Logger
	Metrics      prometheus.Registerer
}

// Option mutates Options.
type Option func(*Options)

// WithToken sets the bearer token.
func WithToken(token string) Option {
	return func(o *Options) { o.Token = token }
}

// WithTenant sets the tenant id sent in the tenant header.
func WithTenant(tenant string) Option {
	return func(o *Options) { o.Tenant = tenant }
}

// WithHTTPClient overrides the transport.
func WithHTTPClient(client *http.Client) Option {
	return func(o *Options) { o.HTTPClient = client }
}

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(o *Options) { o.Logger = logger }
}

// WithMetrics registers request metrics on reg.
func WithMetrics(reg prometheus.Registerer) Option {
	return func(o *Options) { o.Metrics = reg }
}

// Client talks JSON (or multipart when files are present) to the backend.
type Client struct {
	base    *url.URL
	opts    Options
	http    *http.Client
	logger  *slog.Logger
	metrics *metrics
}

// New validates options and builds a Client.
func New(options Options, extra ...Option) (*Client, error) {
	for _, opt := range extra {
		if opt != nil {
			opt(&options)
		}
	}
	raw := strings.TrimSpace(options.BaseURL)
	if raw == "" {
		return nil, errors.New("api: base url is required")
	}
	base, err := url.Parse(strings.TrimRight(raw, "/") + "/")
	if err != nil {
		return nil, fmt.Errorf("api: parse base url: %w", err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, fmt.Errorf("api: base url %q must be http or https", raw)
	}
	if options.TenantHeader == "" {
		options.TenantHeader = DefaultTenantHeader
	}

	client := &Client{
		base:   base,
		opts:   options,
		http:   options.HTTPClient,
		logger: options.Logger,
	}
	if client.http == nil {
		client.http = &http.Client{Timeout: 30 * time.Second}
	}
	if client.logger == nil {
		client.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if options.Metrics != nil {
		m, err := newMetrics(options.Metrics)
		if err != nil {
			return nil, err
		}
		client.metrics = m
	}
	return client, nil
}

// Resolve turns a relative path or an absolute `next` link into a URL.
// Absolute links must point at the configured host.
func (c *Client) Resolve(ref string, query url.Values) (string, error) {
	parsed, err := url.Parse(strings.TrimSpace(ref))
	if err != nil {
		return "", fmt.Errorf("api: parse path %q: %w", ref, err)
	}
	var target *url.URL
	if parsed.IsAbs() {
		if !strings.EqualFold(parsed.Host, c.base.Host) {
			return "", fmt.Errorf("api: refusing to follow %q outside %s", ref, c.base.Host)
		}
		target = parsed
	} else {
		parsed.Path = strings.TrimLeft(parsed.Path, "/")
		target = c.base.ResolveReference(parsed)
	}
	if len(query) > 0 {
		merged := target.Query()
		for key, values := range query {
			for _, v := range values {
				merged.Add(key, v)
			}
		}
		target.RawQuery = merged.Encode()
	}
	return target.String(), nil
}

// Do sends body (JSON, or multipart when it holds a file) and decodes the
// response into out when out is non-nil.
func (c *Client) Do(ctx context.Context, method, path string, query url.Values, body any, out any) error {
	target, err := c.Resolve(path, query)
	if err != nil {
		return err
	}

	var (
		reader      io.Reader
		contentType string
	)
	if body != nil {
		if values, ok := body.(map[string]any); ok && containsFile(values) {
			buf, ct, err := encodeMultipart(values)
			if err != nil {
				return fmt.Errorf("api: encode multipart %s %s: %w", method, path, err)
			}
			reader, contentType = buf, ct
		} else {
			data, err := json.Marshal(body)
			if err != nil {
				return fmt.Errorf("api: encode %s %s: %w", method, path, err)
			}
			reader, contentType = bytes.NewReader(data), "application/json"
		}
	}

	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return fmt.Errorf("api: build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if c.opts.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.opts.Token)
	}
	if c.opts.Tenant != "" {
		req.Header.Set(c.opts.TenantHeader, c.opts.Tenant)
	}
	if c.opts.UserAgent != "" {
		req.Header.Set("User-Agent", c.opts.UserAgent)
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		c.observe(method, path, 0, start)
		c.logger.Warn("api request failed", "method", method, "url", target, "error", err)
		return fmt.Errorf("api: %s %s: %w", method, target, err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	c.observe(method, path, resp.StatusCode, start)

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("api: read %s %s: %w", method, target, err)
	}
	c.logger.Debug("api request", "method", method, "url", target, "status", resp.StatusCode, "duration", time.Since(start))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return newError(method, target, resp.StatusCode, data)
	}
	if out == nil || len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("api: decode %s %s: %w", method, target, err)
	}
	return nil
}

// Get decodes the resource at path into out.
func (c *Client) Get(ctx context.Context, path string, query url.Values, out any) error {
	return c.Do(ctx, http.MethodGet, path, query, nil, out)
}

// Post creates at path.
func (c *Client) Post(ctx context.Context, path string, body, out any) error {
	return c.Do(ctx, http.MethodPost, path, nil, body, out)
}

// Patch partially updates at path.
func (c *Client) Patch(ctx context.Context, path string, body, out any) error {
	return c.Do(ctx, http.MethodPatch, path, nil, body, out)
}

// Delete removes at path.
func (c *Client) Delete(ctx context.Context, path string) error {
	return c.Do(ctx, http.MethodDelete, path, nil, nil, nil)
}

func (c *Client) observe(method, path string, status int, start time.Time) {
	if c.metrics == nil {
		return
	}
	c.metrics.observe(method, resourceLabel(path), status, time.Since(start))
}
