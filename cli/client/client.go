// Package client provides the HTTP client for the assetbundle API.
package client

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

// Client is the assetbundle API client
type Client struct {
	// BaseURL is the assetbundle server URL
	BaseURL string

	// HTTPClient is the underlying HTTP client
	HTTPClient *http.Client

	// DebugParam is the query parameter the server reads the debug flag from
	DebugParam string

	// Debug enables request logging to DebugWriter
	Debug       bool
	DebugWriter io.Writer

	// UserAgent to use for requests
	UserAgent string
}

// ClientOption configures the client
type ClientOption func(*Client)

// NewClient creates a new API client
func NewClient(baseURL string, opts ...ClientOption) *Client {
	c := &Client{
		BaseURL: baseURL,
		HTTPClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		DebugParam:  "debugMode",
		DebugWriter: os.Stderr,
		UserAgent:   "bundlectl/1.0",
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// WithDebug enables debug mode
func WithDebug(debug bool) ClientOption {
	return func(c *Client) {
		c.Debug = debug
	}
}

// WithTimeout sets the HTTP timeout
func WithTimeout(timeout time.Duration) ClientOption {
	return func(c *Client) {
		c.HTTPClient.Timeout = timeout
	}
}

// WithDebugParam sets the debug query parameter name
func WithDebugParam(param string) ClientOption {
	return func(c *Client) {
		if param != "" {
			c.DebugParam = param
		}
	}
}

// Bundle describes a named bundle registered on the server
type Bundle struct {
	Name      string `json:"name" yaml:"name"`
	Kind      string `json:"kind" yaml:"kind"`
	OutputKey string `json:"output_key" yaml:"output_key"`
	Mode      string `json:"mode,omitempty" yaml:"mode,omitempty"`
}

// Result is one bundle rebuilt by a cache clear or reload
type Result struct {
	Name   string `json:"name" yaml:"name"`
	Kind   string `json:"kind" yaml:"kind"`
	Output string `json:"output" yaml:"output"`
	Tag    string `json:"tag" yaml:"tag"`
	Debug  string `json:"debug" yaml:"debug"`
}

// Health is the server health report
type Health struct {
	Status   string                  `json:"status" yaml:"status"`
	Services map[string]ServiceState `json:"services" yaml:"services"`
}

// ServiceState is the health of one dependency
type ServiceState struct {
	Status  string `json:"status" yaml:"status"`
	Message string `json:"message,omitempty" yaml:"message,omitempty"`
	Latency int64  `json:"latency_ms" yaml:"latency_ms"`
}

// Request makes an API request
func (c *Client) Request(ctx context.Context, method, path string, query url.Values) (*http.Response, error) {
	u, err := url.Parse(c.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid base URL: %w", err)
	}
	u.Path = strings.TrimSuffix(u.Path, "/") + path
	if query != nil {
		u.RawQuery = query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, method, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.UserAgent)

	if c.Debug {
		_, _ = fmt.Fprintf(c.DebugWriter, "DEBUG: %s %s\n", method, u.String())
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}

	return resp, nil
}

// DoGet performs a GET request and decodes the response into target
func (c *Client) DoGet(ctx context.Context, path string, query url.Values, target interface{}) error {
	resp, err := c.Request(ctx, http.MethodGet, path, query)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()
	return decodeBody(resp, target)
}

// DoPost performs a POST request and decodes the response into target
func (c *Client) DoPost(ctx context.Context, path string, target interface{}) error {
	resp, err := c.Request(ctx, http.MethodPost, path, nil)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()
	return decodeBody(resp, target)
}

// ListBundles lists the named bundles registered on the server.
func (c *Client) ListBundles(ctx context.Context) ([]Bundle, error) {
	var result struct {
		Bundles []Bundle `json:"bundles"`
	}
	if err := c.DoGet(ctx, "/api/v1/bundles", nil, &result); err != nil {
		return nil, err
	}
	return result.Bundles, nil
}

// Tag renders the tag of a named bundle. A nil debug leaves the mode to
// the server default.
func (c *Client) Tag(ctx context.Context, kind, name string, debug *bool) (string, error) {
	var query url.Values
	if debug != nil {
		query = url.Values{c.DebugParam: {strconv.FormatBool(*debug)}}
	}

	var result struct {
		Tag string `json:"tag"`
	}
	path := "/api/v1/bundles/" + url.PathEscape(kind) + "/" + url.PathEscape(name) + "/tag"
	if err := c.DoGet(ctx, path, query, &result); err != nil {
		return "", err
	}
	return result.Tag, nil
}

// ClearCache wipes the server's bundle cache and rebuilds its manifest.
func (c *Client) ClearCache(ctx context.Context) ([]Result, error) {
	return c.rebuild(ctx, "/api/v1/admin/cache/clear")
}

// Reload makes the server read its manifest file again.
func (c *Client) Reload(ctx context.Context) ([]Result, error) {
	return c.rebuild(ctx, "/api/v1/admin/bundles/reload")
}

func (c *Client) rebuild(ctx context.Context, path string) ([]Result, error) {
	var result struct {
		Bundles []Result `json:"bundles"`
	}
	if err := c.DoPost(ctx, path, &result); err != nil {
		return nil, err
	}
	return result.Bundles, nil
}

// Health returns the server health report. An unhealthy server answers
// 503 with a report, which is returned without error.
func (c *Client) Health(ctx context.Context) (*Health, error) {
	resp, err := c.Request(ctx, http.MethodGet, "/health", nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode == http.StatusServiceUnavailable {
		var health Health
		if err := json.NewDecoder(resp.Body).Decode(&health); err == nil && health.Status != "" {
			return &health, nil
		}
		return nil, &APIError{StatusCode: resp.StatusCode, Message: "server unavailable"}
	}

	var health Health
	if err := decodeBody(resp, &health); err != nil {
		return nil, err
	}
	return &health, nil
}

// decodeBody decodes the response body into target
func decodeBody(resp *http.Response, target interface{}) error {
	if resp.StatusCode >= 400 {
		return parseErrorBody(resp)
	}
	if target == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(target)
}

// parseErrorBody parses an error response body
func parseErrorBody(resp *http.Response) error {
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return &APIError{
			StatusCode: resp.StatusCode,
			Message:    fmt.Sprintf("failed to read error response: %v", err),
		}
	}

	var apiErr APIError
	if err := json.Unmarshal(body, &apiErr); err != nil {
		return &APIError{
			StatusCode: resp.StatusCode,
			Message:    string(body),
		}
	}

	apiErr.StatusCode = resp.StatusCode
	return &apiErr
}

// APIError represents an API error response
type APIError struct {
	StatusCode int    `json:"-"`
	Message    string `json:"message"`
	Error_     string `json:"error"`
	Code       string `json:"code"`
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	if e.Error_ != "" {
		return e.Error_
	}
	return fmt.Sprintf("API error with status %d", e.StatusCode)
}
