package client

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Transport performs a single GET request and returns the response body.
// Implementations must classify failures: non-2xx statuses and network
// errors are reported as *APIError so the retry policy can decide.
type Transport interface {
	Get(ctx context.Context, url string) ([]byte, error)
}

// httpTransport is the default Transport backed by net/http.
type httpTransport struct {
	client    *http.Client
	userAgent string
}

// newHTTPTransport creates the default transport with a request timeout.
func newHTTPTransport(timeout time.Duration, userAgent string) *httpTransport {
	return &httpTransport{
		client: &http.Client{
			Timeout: timeout,
		},
		userAgent: userAgent,
	}
}

// Get fetches a URL and returns the response body.
func (t *httpTransport) Get(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", t.userAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := t.client.Do(req)
	if err != nil {
		return nil, &APIError{
			Class:   ErrorClassNetwork,
			URL:     url,
			Message: "request failed",
			Err:     err,
		}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &APIError{
			Class:   ErrorClassNetwork,
			URL:     url,
			Message: "read response body",
			Err:     err,
		}
	}

	if resp.StatusCode != http.StatusOK {
		return nil, &APIError{
			StatusCode: resp.StatusCode,
			Class:      classifyStatus(resp.StatusCode),
			URL:        url,
			Message:    resp.Status,
		}
	}

	return body, nil
}
