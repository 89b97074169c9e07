// Package restclient is the JSON-over-HTTP client shared by the catalog and
// reasoning collaborators. Every request carries the bearer credential.
package restclient

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
)

// ErrDecode marks a 2xx response whose body was not the expected JSON.
var ErrDecode = errors.New("restclient: decode response")

// TokenSource yields the bearer credential. paramstore.TokenSource satisfies it.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// HTTPStatusError captures non-2xx upstream responses with status-aware context.
type HTTPStatusError struct {
	StatusCode int
	URL        string
	Body       string
}

func (e *HTTPStatusError) Error() string {
	return fmt.Sprintf("restclient: unexpected status %d from %s: %s", e.StatusCode, e.URL, e.Body)
}

func (e *HTTPStatusError) HTTPStatusCode() int {
	return e.StatusCode
}

// Client sends JSON requests relative to a base URL.
type Client struct {
	baseURL string
	doer    HTTPDoer
	tokens  TokenSource
}

type Option func(*Client)

// WithHTTPDoer replaces the transport, e.g. with a RetryClient.
func WithHTTPDoer(d HTTPDoer) Option {
	return func(c *Client) {
		c.doer = d
	}
}

func New(baseURL string, tokens TokenSource, opts ...Option) (*Client, error) {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		return nil, errors.New("restclient: base url must not be empty")
	}
	if _, err := url.Parse(baseURL); err != nil {
		return nil, fmt.Errorf("restclient: parse base url: %w", err)
	}
	if tokens == nil {
		return nil, errors.New("restclient: token source must not be nil")
	}
	c := &Client{
		baseURL: baseURL,
		doer:    &http.Client{Timeout: 15 * time.Second},
		tokens:  tokens,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Do sends in as the JSON body (when non-nil) and decodes the response into
// out (when non-nil).
func (c *Client) Do(ctx context.Context, method, path string, in, out any) error {
	token, err := c.tokens.Token(ctx)
	if err != nil {
		return fmt.Errorf("restclient: resolve credential: %w", err)
	}

	var body io.Reader
	var raw []byte
	if in != nil {
		raw, err = json.Marshal(in)
		if err != nil {
			return fmt.Errorf("restclient: marshal request: %w", err)
		}
		body = bytes.NewReader(raw)
	}

	target := c.baseURL + "/" + strings.TrimLeft(path, "/")
	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return fmt.Errorf("restclient: create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	res, err := c.doer.Do(req)
	if err != nil {
		return fmt.Errorf("restclient: %s %s: %w", method, target, err)
	}
	defer func() { _ = res.Body.Close() }()

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		buf, _ := io.ReadAll(io.LimitReader(res.Body, 4096))
		return &HTTPStatusError{StatusCode: res.StatusCode, URL: target, Body: string(buf)}
	}
	if out == nil {
		return nil
	}

	buf, err := io.ReadAll(io.LimitReader(res.Body, 4<<20))
	if err != nil {
		return fmt.Errorf("restclient: read response body: %w", err)
	}
	if err := json.Unmarshal(buf, out); err != nil {
		return fmt.Errorf("%w from %s: %v", ErrDecode, target, err)
	}
	return nil
}

// PathEscape escapes one path segment.
func PathEscape(s string) string {
	return url.PathEscape(s)
}
