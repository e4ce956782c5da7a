// Package testutil provides testing utilities for the Trafikanalys client.
package testutil

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"time"
)

// MockResponse defines the behavior for a mock API endpoint response.
type MockResponse struct {
	StatusCode int
	Body       string
	Headers    map[string]string
	Delay      time.Duration
}

// MockTrafa is a configurable mock Trafikanalys API server for testing. It
// serves /structure and /data and tracks requests per endpoint.
type MockTrafa struct {
	server   *httptest.Server
	mu       sync.RWMutex
	handlers map[string]func(w http.ResponseWriter, r *http.Request)

	// Tracking
	RequestCount  int
	DataQueries   []string
	LastRequestAt time.Time
}

// NewMockTrafa creates a new mock API server.
func NewMockTrafa() *MockTrafa {
	mock := &MockTrafa{
		handlers: make(map[string]func(w http.ResponseWriter, r *http.Request)),
	}

	mock.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mock.mu.Lock()
		mock.RequestCount++
		mock.LastRequestAt = time.Now()
		if strings.HasSuffix(r.URL.Path, "/data") {
			mock.DataQueries = append(mock.DataQueries, r.URL.Query().Get("query"))
		}
		mock.mu.Unlock()

		mock.mu.RLock()
		handler, exists := mock.handlers[r.URL.Path]
		mock.mu.RUnlock()

		if exists {
			handler(w, r)
			return
		}

		mock.defaultHandler(w, r)
	}))

	return mock
}

// URL returns the mock server URL.
func (m *MockTrafa) URL() string {
	return m.server.URL
}

// Close shuts down the mock server.
func (m *MockTrafa) Close() {
	m.server.Close()
}

// Reset clears all tracking counters.
func (m *MockTrafa) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.RequestCount = 0
	m.DataQueries = nil
}

// SetHandler sets a custom handler for a specific path.
func (m *MockTrafa) SetHandler(path string, handler func(w http.ResponseWriter, r *http.Request)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers[path] = handler
}

// SetResponse configures a simple response for a path.
func (m *MockTrafa) SetResponse(path string, resp MockResponse) {
	m.SetHandler(path, func(w http.ResponseWriter, r *http.Request) {
		if resp.Delay > 0 {
			time.Sleep(resp.Delay)
		}

		for key, value := range resp.Headers {
			w.Header().Set(key, value)
		}

		w.WriteHeader(resp.StatusCode)
		if resp.Body != "" {
			w.Write([]byte(resp.Body))
		}
	})
}

// GetRequestCount returns the number of requests made to the server.
func (m *MockTrafa) GetRequestCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.RequestCount
}

// GetDataQueries returns the wire query of every /data request in order.
func (m *MockTrafa) GetDataQueries() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]string, len(m.DataQueries))
	copy(out, m.DataQueries)
	return out
}

// defaultHandler serves a minimal valid response for both endpoints.
func (m *MockTrafa) defaultHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(http.StatusOK)

	if strings.HasSuffix(r.URL.Path, "/structure") {
		w.Write([]byte(`{"StructureItems":[]}`))
		return
	}
	w.Write([]byte(`{"Header":{"Column":[]},"Rows":[]}`))
}

// NewStructureResponse creates a 200 OK /structure response.
func NewStructureResponse(body string) MockResponse {
	return MockResponse{
		StatusCode: http.StatusOK,
		Body:       body,
		Headers: map[string]string{
			"Content-Type": "application/json; charset=utf-8",
		},
	}
}

// NewDataResponse creates a 200 OK /data response with one row per value of
// the named variable.
func NewDataResponse(variable, measure string, values ...string) MockResponse {
	rows := make([]string, len(values))
	for i, v := range values {
		rows[i] = fmt.Sprintf(
			`{"Cell":[{"Column":"%s","Value":"%s"},{"Column":"%s","Value":"%d"}]}`,
			variable, v, measure, 100+i)
	}
	body := fmt.Sprintf(
		`{"Header":{"Column":[{"Name":"%s"},{"Name":"%s"}]},"Rows":[%s]}`,
		variable, measure, strings.Join(rows, ","))
	return MockResponse{
		StatusCode: http.StatusOK,
		Body:       body,
		Headers: map[string]string{
			"Content-Type": "application/json; charset=utf-8",
		},
	}
}

// NewRateLimitResponse creates a 429 Too Many Requests response.
func NewRateLimitResponse() MockResponse {
	return MockResponse{
		StatusCode: http.StatusTooManyRequests,
		Body:       `{"error": "Rate limit exceeded"}`,
		Headers: map[string]string{
			"Content-Type": "application/json; charset=utf-8",
		},
	}
}

// NewServerErrorResponse creates a 500 Internal Server Error response.
func NewServerErrorResponse() MockResponse {
	return MockResponse{
		StatusCode: http.StatusInternalServerError,
		Body:       `{"error": "Internal server error"}`,
		Headers: map[string]string{
			"Content-Type": "application/json; charset=utf-8",
		},
	}
}

// NewFlakyHandler creates a handler that fails n times before succeeding
// with the given response.
func NewFlakyHandler(failures int, failWith, succeedWith MockResponse) func(w http.ResponseWriter, r *http.Request) {
	var mu sync.Mutex
	count := 0
	return func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		count++
		resp := succeedWith
		if count <= failures {
			resp = failWith
		}
		mu.Unlock()

		for key, value := range resp.Headers {
			w.Header().Set(key, value)
		}
		w.WriteHeader(resp.StatusCode)
		if resp.Body != "" {
			w.Write([]byte(resp.Body))
		}
	}
}
