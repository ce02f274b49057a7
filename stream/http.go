package stream

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// HTTPClient wraps http.Client with header injection and maps every
// transport failure or non-2xx status to ErrNetwork.
type HTTPClient struct {
	client    *http.Client
	userAgent string
	timeout   time.Duration
}

// NewHTTPClient creates an HTTP client. A zero timeout leaves requests bounded
// only by the caller's context.
func NewHTTPClient(userAgent string, timeout time.Duration) *HTTPClient {
	return &HTTPClient{
		client:    &http.Client{Transport: http.DefaultTransport.(*http.Transport).Clone()},
		userAgent: userAgent,
		timeout:   timeout,
	}
}

// Get fetches a URL and returns the body as a string.
func (h *HTTPClient) Get(ctx context.Context, url string) (string, error) {
	b, err := h.Do(ctx, http.MethodGet, url, nil, nil)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// PostJSON marshals payload, posts it and returns the raw response body.
func (h *HTTPClient) PostJSON(ctx context.Context, url string, headers map[string]string, payload any) ([]byte, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}
	if headers == nil {
		headers = map[string]string{}
	}
	headers["Content-Type"] = "application/json"
	return h.Do(ctx, http.MethodPost, url, headers, bytes.NewReader(body))
}

// Do performs a request and returns the body.
func (h *HTTPClient) Do(ctx context.Context, method, url string, headers map[string]string, body io.Reader) ([]byte, error) {
	if h.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return nil, fmt.Errorf("%w: create request: %w", ErrNetwork, err)
	}

	if h.userAgent != "" {
		req.Header.Set("User-Agent", h.userAgent)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := h.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: http %s: %w", ErrNetwork, method, err)
	}
	defer resp.Body.Close()

	b, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: read body: %w", ErrNetwork, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("%w: %w", ErrNetwork, &StatusError{Code: resp.StatusCode, Body: truncate(b, 256)})
	}

	return b, nil
}

// StatusError is a non-2xx response. It is always wrapped in ErrNetwork.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("http %d: %s: %s", e.Code, http.StatusText(e.Code), e.Body)
}

// Unauthorized reports whether the platform rejected the request's credentials.
func (e *StatusError) Unauthorized() bool {
	return e.Code == http.StatusUnauthorized || e.Code == http.StatusForbidden
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
