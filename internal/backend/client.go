// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package backend

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/jeranaias/hypve-tui/internal/config"
)

// =============================================================================
// CONSTANTS
// =============================================================================

const (
	// BusyMessage is the reply shown for any failed request.
	BusyMessage = "Sorry, the server is currently unavailable. Please try again later."

	// NoReply replaces an empty response.
	NoReply = "(no reply)"

	// DefaultTimeout bounds non-streaming requests.
	DefaultTimeout = 60 * time.Second

	// DefaultMaxResponseBytes caps how much of a body is read.
	DefaultMaxResponseBytes = 10 * 1024 * 1024

	// maxErrorBody caps how much of an error body is kept.
	maxErrorBody = 4096
)

// =============================================================================
// ERRORS
// =============================================================================

var (
	// ErrServerBusy covers network failures and error statuses.
	ErrServerBusy = errors.New("server unavailable")

	// ErrEmptyPrompt is returned for blank prompts.
	ErrEmptyPrompt = errors.New("prompt is empty")

	// ErrUnknownProvider is returned by AuthURL for unsupported providers.
	ErrUnknownProvider = errors.New("unknown auth provider")

	// ErrResponseTooLarge is returned when a reply exceeds max_response_bytes.
	ErrResponseTooLarge = errors.New("response exceeds size limit")
)

// HTTPError is a non-2xx response.
type HTTPError struct {
	Status int
	Body   string
}

func (e *HTTPError) Error() string {
	if e.Body != "" {
		return fmt.Sprintf("server returned %d: %s", e.Status, e.Body)
	}
	return fmt.Sprintf("server returned %d", e.Status)
}

// Is reports HTTP errors as ErrServerBusy.
func (e *HTTPError) Is(target error) bool {
	return target == ErrServerBusy
}

// =============================================================================
// HTTP CLIENTS
// =============================================================================

func newTransport() *http.Transport {
	return &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		MaxIdleConns:        10,
		MaxIdleConnsPerHost: 4,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 10 * time.Second,
		TLSClientConfig: &tls.Config{
			MinVersion: tls.VersionTLS12,
		},
	}
}

var (
	// sharedHTTPClient serves non-streaming requests.
	sharedHTTPClient = &http.Client{
		Transport: newTransport(),
		Timeout:   DefaultTimeout,
	}

	// sharedStreamingClient has no timeout; streams are bounded by context.
	sharedStreamingClient = &http.Client{
		Transport: newTransport(),
	}
)

// =============================================================================
// CLIENT
// =============================================================================

// Client talks to the chat server.
type Client struct {
	baseURL      string
	generatePath string
	userPath     string
	timeout      time.Duration
	maxBytes     int64

	httpClient   *http.Client
	streamClient *http.Client
}

// NewClient creates a client from the server config section.
func NewClient(cfg config.ServerConfig) *Client {
	c := &Client{
		baseURL:      strings.TrimRight(cfg.BaseURL, "/"),
		generatePath: cfg.GeneratePath,
		userPath:     cfg.UserPath,
		timeout:      time.Duration(cfg.TimeoutSecs) * time.Second,
		maxBytes:     cfg.MaxResponseBytes,
		httpClient:   sharedHTTPClient,
		streamClient: sharedStreamingClient,
	}
	if c.generatePath == "" {
		c.generatePath = "/generate"
	}
	if c.userPath == "" {
		c.userPath = "/get-user"
	}
	if c.timeout <= 0 {
		c.timeout = DefaultTimeout
	}
	if c.maxBytes <= 0 {
		c.maxBytes = DefaultMaxResponseBytes
	}
	return c
}

// WithHTTPClient uses hc for all requests.
func (c *Client) WithHTTPClient(hc *http.Client) *Client {
	c.httpClient = hc
	c.streamClient = hc
	return c
}

// WithBaseURL points the client at another server.
func (c *Client) WithBaseURL(u string) *Client {
	c.baseURL = strings.TrimRight(u, "/")
	return c
}

// BaseURL returns the server base URL.
func (c *Client) BaseURL() string { return c.baseURL }

// =============================================================================
// GENERATE
// =============================================================================

type generateRequest struct {
	Prompt string `json:"prompt"`
	Stream bool   `json:"stream,omitempty"`
}

// Generate posts prompt and returns the full reply.
func (c *Client) Generate(ctx context.Context, prompt string) (string, error) {
	if strings.TrimSpace(prompt) == "" {
		return "", ErrEmptyPrompt
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	resp, err := c.post(ctx, c.httpClient, generateRequest{Prompt: prompt}, "application/json")
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	return c.decodeReply(resp.Body)
}

// limitedReader passes through at most n bytes and fails with
// ErrResponseTooLarge if the body holds more. io.LimitReader would report
// a clean EOF and a cut reply would pass as complete.
type limitedReader struct {
	r io.Reader
	n int64
}

func (c *Client) limit(r io.Reader) io.Reader {
	return &limitedReader{r: r, n: c.maxBytes}
}

func (l *limitedReader) Read(p []byte) (int, error) {
	if l.n < 0 {
		return 0, ErrResponseTooLarge
	}
	if int64(len(p)) > l.n+1 {
		p = p[:l.n+1]
	}
	n, err := l.r.Read(p)
	l.n -= int64(n)
	if l.n < 0 {
		return n - 1, ErrResponseTooLarge
	}
	return n, err
}

// decodeReply reads a single JSON reply body.
func (c *Client) decodeReply(body io.Reader) (string, error) {
	data, err := io.ReadAll(c.limit(body))
	if err != nil {
		return "", fmt.Errorf("%w: failed to read response: %w", ErrServerBusy, err)
	}

	var p payload
	if err := json.Unmarshal(data, &p); err != nil {
		return "", fmt.Errorf("%w: malformed response: %w", ErrServerBusy, err)
	}
	if msg := p.errorMessage(); msg != "" {
		return "", fmt.Errorf("%w: %s", ErrServerBusy, msg)
	}
	text := p.text()
	if strings.TrimSpace(text) == "" {
		return NoReply, nil
	}
	return text, nil
}

func (c *Client) post(ctx context.Context, hc *http.Client, body interface{}, accept string) (*http.Response, error) {
	bodyBytes, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+c.generatePath, bytes.NewReader(bodyBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", accept)
	if accept == "text/event-stream" {
		req.Header.Set("Cache-Control", "no-cache")
	}

	return c.do(hc, req)
}

// do sends req and turns transport failures and error statuses into
// ErrServerBusy. Cancellation stays visible through errors.Is.
func (c *Client) do(hc *http.Client, req *http.Request) (*http.Response, error) {
	resp, err := hc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrServerBusy, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		defer resp.Body.Close()
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, &HTTPError{Status: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}
	return resp, nil
}

// =============================================================================
// USER
// =============================================================================

// User is the signed-in account reported by the server.
type User struct {
	ID    string `json:"id"`
	Email string `json:"email"`
}

// Authenticated reports whether the server recognized a session.
func (u *User) Authenticated() bool {
	return u != nil && u.ID != "" && u.Email != ""
}

// GetUser probes the session endpoint. An unauthorized response is an
// anonymous user, not an error.
func (c *Client) GetUser(ctx context.Context) (*User, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+c.userPath, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.do(c.httpClient, req)
	if err != nil {
		var httpErr *HTTPError
		if errors.As(err, &httpErr) && (httpErr.Status == http.StatusUnauthorized || httpErr.Status == http.StatusForbidden) {
			return &User{}, nil
		}
		return nil, err
	}
	defer resp.Body.Close()

	var raw struct {
		ID    json.RawMessage `json:"id"`
		Email string          `json:"email"`
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxErrorBody)).Decode(&raw); err != nil {
		return nil, fmt.Errorf("%w: malformed user response: %w", ErrServerBusy, err)
	}
	return &User{ID: rawID(raw.ID), Email: raw.Email}, nil
}

// rawID accepts both string and numeric ids.
func rawID(raw json.RawMessage) string {
	if len(raw) == 0 || string(raw) == "null" {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return string(raw)
}

// AuthURL returns the browser sign-in URL for provider.
func (c *Client) AuthURL(provider string) (string, error) {
	switch p := strings.ToLower(provider); p {
	case "google", "github":
		return c.baseURL + "/auth/" + p, nil
	default:
		return "", fmt.Errorf("%w: %s", ErrUnknownProvider, provider)
	}
}
