// Package api is the HTTP JSON client for the remote KinCore API.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"kincore/internal/log"
)

const DefaultBaseURL = "http://localhost:8000/api"

// TokenFunc returns the session token for the next request; empty means anonymous.
type TokenFunc func() string

// Client talks to the remote API. It holds no session state of its own.
type Client struct {
	baseURL    string
	token      TokenFunc
	httpClient *http.Client
	logger     *log.Logger
}

type Option func(*Client)

// WithTimeout bounds every request. Zero disables the bound.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.httpClient.Timeout = d }
}

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

func WithLogger(l *log.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.logger = l.WithComponent(log.ComponentAPI)
		}
	}
}

func New(baseURL string, token TokenFunc, opts ...Option) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if token == nil {
		token = func() string { return "" }
	}
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		token:      token,
		httpClient: &http.Client{Timeout: 15 * time.Second},
		logger:     log.Nop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) BaseURL() string {
	return c.baseURL
}

// do sends in as JSON and decodes a success body into out. Non-2xx
// responses become *Error; failures before a response become transport errors.
func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	return c.doWithToken(ctx, c.token(), method, path, in, out)
}

func (c *Client) doWithToken(ctx context.Context, token, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("marshal %s %s: %w", method, path, err)
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	c.addHeaders(req, token, in != nil)

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.WarnContext(ctx, "Remote call failed", log.FieldMethod, method, log.FieldPath, path, log.FieldError, err)
		return &TransportError{Method: method, Path: path, Err: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return &TransportError{Method: method, Path: path, Err: err}
	}

	c.logger.DebugContext(ctx, "Remote call completed",
		log.FieldMethod, method,
		log.FieldPath, path,
		log.FieldStatusCode, resp.StatusCode,
		log.FieldDuration, time.Since(start).Milliseconds())

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return newError(resp.StatusCode, raw)
	}

	if out == nil || len(bytes.TrimSpace(raw)) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode %s %s response: %w", method, path, err)
	}
	return nil
}

func (c *Client) addHeaders(req *http.Request, token string, hasBody bool) {
	req.Header.Set("Accept", "application/json")
	if hasBody {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Token "+token)
	}
}
