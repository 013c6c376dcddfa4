package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/cookiejar"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"attendclient/internal/logging"
)

// Client calls the remote attendance API. All methods return *Error on failure.
type Client struct {
	BaseURL string
	HTTP    *http.Client

	// timeout bounds each call. MarkAttendance honours a longer caller
	// deadline instead.
	timeout        time.Duration
	logger         *slog.Logger
	onUnauthorized func()

	mu    sync.RWMutex
	token string
}

// Option customises a Client.
type Option func(*Client)

// WithLogger sets the logger used for request tracing.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.HTTP = h }
}

// WithUnauthorizedHook registers fn to run whenever the API answers 401.
func WithUnauthorizedHook(fn func()) Option {
	return func(c *Client) { c.onUnauthorized = fn }
}

// New creates a client with a cookie jar so the server session survives
// between calls. Each call is bounded by timeout through its context; the
// HTTP client itself has no timeout, so a face-match upload may run under
// the caller's longer submission deadline.
func New(baseURL string, timeout time.Duration, opts ...Option) *Client {
	jar, _ := cookiejar.New(nil)
	c := &Client{
		BaseURL: strings.TrimRight(baseURL, "/"),
		HTTP:    &http.Client{Jar: jar},
		timeout: timeout,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = logging.OrDiscard(c.logger)
	return c
}

// SetToken sets the bearer token sent with every request. An empty token
// disables the header and relies on the cookie session only.
func (c *Client) SetToken(token string) {
	c.mu.Lock()
	c.token = token
	c.mu.Unlock()
}

func (c *Client) bearer() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token
}

// envelope is the common response wrapper of the remote API.
type envelope struct {
	Data    json.RawMessage `json:"data"`
	Message string          `json:"message"`
	Error   string          `json:"error"`
	Success *bool           `json:"success"`
}

// bound applies the per-call timeout. With keepDeadline a deadline already
// on ctx is used as is, even when it is further out.
func (c *Client) bound(ctx context.Context, keepDeadline bool) (context.Context, context.CancelFunc) {
	if c.timeout <= 0 {
		return ctx, func() {}
	}
	if _, ok := ctx.Deadline(); ok && keepDeadline {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, c.timeout)
}

func (c *Client) getJSON(ctx context.Context, path string) (*envelope, error) {
	return c.do(ctx, http.MethodGet, path, nil, "")
}

func (c *Client) sendJSON(ctx context.Context, method, path string, payload any) (*envelope, error) {
	var body io.Reader
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return nil, &Error{Op: method + " " + path, Err: fmt.Errorf("encode request: %w", err)}
		}
		body = bytes.NewReader(b)
	}
	return c.do(ctx, method, path, body, "application/json")
}

func (c *Client) do(ctx context.Context, method, path string, body io.Reader, contentType string) (*envelope, error) {
	ctx, cancel := c.bound(ctx, false)
	defer cancel()
	return c.roundTrip(ctx, method, path, body, contentType)
}

func (c *Client) roundTrip(ctx context.Context, method, path string, body io.Reader, contentType string) (*envelope, error) {
	op := method + " " + path
	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, body)
	if err != nil {
		return nil, &Error{Op: op, Err: err}
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	req.Header.Set("Accept", "application/json")
	reqID := uuid.NewString()
	req.Header.Set("X-Request-ID", reqID)
	if token := c.bearer(); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	start := time.Now()
	resp, err := c.HTTP.Do(req)
	if err != nil {
		c.logger.Debug("api request failed", "op", op, "request_id", reqID, "err", err)
		return nil, &Error{Op: op, Err: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &Error{Op: op, Status: resp.StatusCode, Err: fmt.Errorf("read response: %w", err)}
	}
	c.logger.Debug("api request", "op", op, "request_id", reqID, "status", resp.StatusCode, "elapsed", time.Since(start))

	if resp.StatusCode >= 300 {
		if resp.StatusCode == http.StatusUnauthorized && c.onUnauthorized != nil {
			c.onUnauthorized()
		}
		return nil, &Error{Op: op, Status: resp.StatusCode, Message: messageFrom(raw, resp.Status)}
	}

	var env envelope
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return &env, nil
	}
	if trimmed[0] == '[' {
		env.Data = trimmed
		return &env, nil
	}
	if err := json.Unmarshal(trimmed, &env); err != nil {
		return nil, &Error{Op: op, Status: resp.StatusCode, Err: fmt.Errorf("failed to decode response: %w", err)}
	}
	if env.Data == nil {
		// Some endpoints answer with a bare object instead of an envelope.
		env.Data = trimmed
	}
	return &env, nil
}

// messageFrom extracts the server-supplied message from an error body.
func messageFrom(raw []byte, fallback string) string {
	var body struct {
		Message string `json:"message"`
		Error   string `json:"error"`
	}
	if err := json.Unmarshal(raw, &body); err == nil {
		if body.Message != "" {
			return body.Message
		}
		if body.Error != "" {
			return body.Error
		}
	}
	if s := strings.TrimSpace(string(raw)); s != "" && len(s) < 200 {
		return s
	}
	return fallback
}

// decodeData unmarshals the envelope payload into out.
func decodeData(op string, env *envelope, out any) error {
	if len(env.Data) == 0 || string(env.Data) == "null" {
		return nil
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return &Error{Op: op, Err: fmt.Errorf("failed to decode response: %w", err)}
	}
	return nil
}

// decodeList unmarshals a list payload that arrives either as a bare array or
// as an object holding the array under key.
func decodeList(op string, env *envelope, out any, key string) error {
	data := bytes.TrimSpace(env.Data)
	if len(data) == 0 || string(data) == "null" {
		return nil
	}
	if data[0] == '[' {
		return decodeData(op, env, out)
	}
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(data, &obj); err != nil {
		return &Error{Op: op, Err: fmt.Errorf("failed to decode response: %w", err)}
	}
	inner, ok := obj[key]
	if !ok {
		return nil
	}
	return decodeData(op, &envelope{Data: inner}, out)
}
