package client

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestHTTPTransportGet(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("User-Agent"); got != "trafago-test/1.0" {
			t.Errorf("User-Agent = %q, want trafago-test/1.0", got)
		}
		if got := r.Header.Get("Accept"); got != "application/json" {
			t.Errorf("Accept = %q, want application/json", got)
		}
		w.Write([]byte(`{"ok":true}`))
	}))
	defer server.Close()

	transport := newHTTPTransport(5*time.Second, "trafago-test/1.0")

	body, err := transport.Get(context.Background(), server.URL)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if string(body) != `{"ok":true}` {
		t.Errorf("Unexpected body: %s", body)
	}
}

func TestHTTPTransportStatusClassification(t *testing.T) {
	tests := []struct {
		status int
		class  ErrorClass
	}{
		{429, ErrorClassRateLimit},
		{404, ErrorClassClient},
		{500, ErrorClassServer},
	}

	for _, tt := range tests {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(tt.status)
		}))

		transport := newHTTPTransport(5*time.Second, "test")
		_, err := transport.Get(context.Background(), server.URL)
		server.Close()

		var apiErr *APIError
		if !errors.As(err, &apiErr) {
			t.Fatalf("Status %d: expected *APIError, got %v", tt.status, err)
		}
		if apiErr.StatusCode != tt.status {
			t.Errorf("Status %d: APIError.StatusCode = %d", tt.status, apiErr.StatusCode)
		}
		if apiErr.Class != tt.class {
			t.Errorf("Status %d: class = %q, want %q", tt.status, apiErr.Class, tt.class)
		}
	}
}

func TestHTTPTransportNetworkError(t *testing.T) {
	// A closed server produces a connection error.
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	serverURL := server.URL
	server.Close()

	transport := newHTTPTransport(time.Second, "test")
	_, err := transport.Get(context.Background(), serverURL)

	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("Expected *APIError, got %v", err)
	}
	if apiErr.Class != ErrorClassNetwork {
		t.Errorf("Class = %q, want network", apiErr.Class)
	}
}

func TestHTTPTransportContextCancellation(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(time.Second)
	}))
	defer server.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	transport := newHTTPTransport(5*time.Second, "test")
	if _, err := transport.Get(ctx, server.URL); err == nil {
		t.Error("Expected error for cancelled context")
	}
}
