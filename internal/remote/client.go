// Package remote is the HTTP client for the transcription, extraction and task endpoints.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rbright/voicetask/internal/credentials"
)

const (
	defaultTimeout  = 60 * time.Second
	maxErrorBodyLen = 4096
)

// ErrUnauthenticated reports a missing, expired or rejected credential.
var ErrUnauthenticated = errors.New("not authenticated")

// HTTPError is a non-success response from the API.
type HTTPError struct {
	Op         string
	StatusCode int
	Detail     string
}

func (e *HTTPError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("%s: http %d", e.Op, e.StatusCode)
	}
	return fmt.Sprintf("%s: http %d: %s", e.Op, e.StatusCode, e.Detail)
}

// Config describes how to reach the API.
type Config struct {
	BaseURL    string
	Prefix     string
	HealthPath string
	Timeout    time.Duration
	// TestMode selects the unauthenticated voice endpoint variants.
	TestMode   bool
	Token      credentials.Source
	HTTPClient *http.Client
}

// Client wraps the REST API.
type Client struct {
	baseURL    *url.URL
	prefix     string
	healthPath string
	testMode   bool
	token      credentials.Source
	http       *http.Client
}

// New creates a Client from cfg.
func New(cfg Config) (*Client, error) {
	base := strings.TrimSpace(cfg.BaseURL)
	if base == "" {
		return nil, errors.New("remote: base url is required")
	}
	baseURL, err := url.Parse(base)
	if err != nil {
		return nil, fmt.Errorf("remote: parse base url: %w", err)
	}
	if baseURL.Scheme == "" || baseURL.Host == "" {
		return nil, fmt.Errorf("remote: base url %q must include scheme and host", base)
	}

	client := cfg.HTTPClient
	if client == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = defaultTimeout
		}
		client = &http.Client{Timeout: timeout}
	}

	healthPath := cfg.HealthPath
	if healthPath == "" {
		healthPath = "/"
	}

	return &Client{
		baseURL:    baseURL,
		prefix:     strings.Trim(cfg.Prefix, "/"),
		healthPath: healthPath,
		testMode:   cfg.TestMode,
		token:      cfg.Token,
		http:       client,
	}, nil
}

// endpoint joins the API prefix and path segments. A trailing slash on the
// last segment is preserved because the task collection routes require it.
func (c *Client) endpoint(segments ...string) *url.URL {
	parts := make([]string, 0, len(segments)+1)
	if c.prefix != "" {
		parts = append(parts, c.prefix)
	}
	parts = append(parts, segments...)
	u := c.baseURL.JoinPath(parts...)
	if len(segments) > 0 && strings.HasSuffix(segments[len(segments)-1], "/") && !strings.HasSuffix(u.Path, "/") {
		u.Path += "/"
	}
	return u
}

func (c *Client) authorize(req *http.Request) error {
	if c.token == nil {
		return ErrUnauthenticated
	}
	token, err := c.token.Token()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnauthenticated, err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	return nil
}

func (c *Client) newJSONRequest(ctx context.Context, method string, u *url.URL, body any) (*http.Request, error) {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, u.String(), reader)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return req, nil
}

// do sends req and decodes a JSON response into out when out is non-nil.
func (c *Client) do(op string, req *http.Request, out any) error {
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s: request failed: %w", op, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return responseError(op, resp)
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%s: decode response: %w", op, err)
	}
	return nil
}

func responseError(op string, resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyLen))
	httpErr := &HTTPError{Op: op, StatusCode: resp.StatusCode, Detail: errorDetail(body)}
	if resp.StatusCode == http.StatusUnauthorized {
		return fmt.Errorf("%w: %w", ErrUnauthenticated, httpErr)
	}
	return httpErr
}

// errorDetail extracts the API's {"detail": ...} message, which may be a
// string or a list of validation entries.
func errorDetail(body []byte) string {
	var payload struct {
		Detail json.RawMessage `json:"detail"`
	}
	if err := json.Unmarshal(body, &payload); err != nil || len(payload.Detail) == 0 {
		return strings.TrimSpace(string(body))
	}

	var text string
	if err := json.Unmarshal(payload.Detail, &text); err == nil {
		return text
	}

	var entries []struct {
		Msg string `json:"msg"`
	}
	if err := json.Unmarshal(payload.Detail, &entries); err == nil {
		msgs := make([]string, 0, len(entries))
		for _, entry := range entries {
			if entry.Msg != "" {
				msgs = append(msgs, entry.Msg)
			}
		}
		if len(msgs) > 0 {
			return strings.Join(msgs, "; ")
		}
	}
	return strings.TrimSpace(string(payload.Detail))
}

// Ping checks that the API answers on its health path.
func (c *Client) Ping(ctx context.Context) error {
	u := c.baseURL.JoinPath(c.healthPath)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return fmt.Errorf("health: build request: %w", err)
	}
	return c.do("health", req, nil)
}
