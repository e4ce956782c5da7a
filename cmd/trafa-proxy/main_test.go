package main

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/nordviklabs/trafago/internal/testutil"
	"github.com/nordviklabs/trafago/pkg/client"
	"github.com/nordviklabs/trafago/pkg/ratelimit"
)

func newTestProxyClient(t *testing.T, mock *testutil.MockTrafa) *client.Client {
	t.Helper()

	cfg := client.DefaultConfig()
	cfg.BaseURL = mock.URL()
	cfg.RateLimit = ratelimit.Config{CallsPerSecond: 100, BurstSize: 100, Enabled: true}

	c, err := client.New(cfg)
	if err != nil {
		t.Fatalf("Failed to create client: %v", err)
	}
	return c
}

func TestHealthEndpoint(t *testing.T) {
	req := httptest.NewRequest("GET", "/health", nil)
	w := httptest.NewRecorder()

	healthHandler(w, req)

	resp := w.Result()
	body, _ := io.ReadAll(resp.Body)

	if resp.StatusCode != http.StatusOK {
		t.Errorf("Expected status 200, got %d", resp.StatusCode)
	}

	if string(body) != "OK" {
		t.Errorf("Expected body 'OK', got %s", string(body))
	}
}

func TestReadyWithoutRedis(t *testing.T) {
	handler := readyHandler(nil)

	req := httptest.NewRequest("GET", "/ready", nil)
	w := httptest.NewRecorder()

	handler(w, req)

	if w.Result().StatusCode != http.StatusOK {
		t.Errorf("Expected status 200 without redis, got %d", w.Result().StatusCode)
	}
}

func TestProxyHandler(t *testing.T) {
	mock := testutil.NewMockTrafa()
	defer mock.Close()

	mock.SetResponse("/data", testutil.NewDataResponse("ar", "itrfmiljokm", "2019", "2020"))

	trafaClient := newTestProxyClient(t, mock)
	handler := proxyHandler(trafaClient, zerolog.Nop())

	req := httptest.NewRequest("GET", "/trafa/data?query=t10016%7Car:2019,2020%7Citrfmiljokm", nil)
	w := httptest.NewRecorder()

	handler(w, req)

	resp := w.Result()
	body, _ := io.ReadAll(resp.Body)

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Expected status 200, got %d: %s", resp.StatusCode, body)
	}
	if !strings.Contains(string(body), "2019") {
		t.Errorf("Expected proxied data rows, got %s", body)
	}

	queries := mock.GetDataQueries()
	if len(queries) != 1 || queries[0] != "t10016|ar:2019,2020|itrfmiljokm" {
		t.Errorf("Expected forwarded wire query, got %v", queries)
	}
}

func TestProxyHandlerUnknownEndpoint(t *testing.T) {
	mock := testutil.NewMockTrafa()
	defer mock.Close()

	trafaClient := newTestProxyClient(t, mock)
	handler := proxyHandler(trafaClient, zerolog.Nop())

	req := httptest.NewRequest("GET", "/trafa/admin", nil)
	w := httptest.NewRecorder()

	handler(w, req)

	if w.Result().StatusCode != http.StatusNotFound {
		t.Errorf("Expected status 404, got %d", w.Result().StatusCode)
	}
	if mock.GetRequestCount() != 0 {
		t.Errorf("Expected no upstream requests, got %d", mock.GetRequestCount())
	}
}

func TestProxyHandlerUpstreamError(t *testing.T) {
	mock := testutil.NewMockTrafa()
	defer mock.Close()

	mock.SetResponse("/data", testutil.NewServerErrorResponse())

	trafaClient := newTestProxyClient(t, mock)
	if err := trafaClient.ConfigureRetry(client.RetryConfig{Enabled: false}); err != nil {
		t.Fatalf("ConfigureRetry() error = %v", err)
	}
	handler := proxyHandler(trafaClient, zerolog.Nop())

	req := httptest.NewRequest("GET", "/trafa/data?query=t10016", nil)
	w := httptest.NewRecorder()

	handler(w, req)

	if w.Result().StatusCode != http.StatusBadGateway {
		t.Errorf("Expected status 502, got %d", w.Result().StatusCode)
	}
}

func TestStatusEndpoint(t *testing.T) {
	mock := testutil.NewMockTrafa()
	defer mock.Close()

	trafaClient := newTestProxyClient(t, mock)
	handler := statusHandler(trafaClient)

	req := httptest.NewRequest("GET", "/status", nil)
	w := httptest.NewRecorder()

	handler(w, req)

	resp := w.Result()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", resp.StatusCode)
	}

	var status client.Status
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		t.Fatalf("Failed to decode status: %v", err)
	}
	if status.RateLimit.CallsPerSecond != 100 {
		t.Errorf("Expected calls_per_second 100, got %g", status.RateLimit.CallsPerSecond)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	mock := testutil.NewMockTrafa()
	defer mock.Close()

	// Creating a client registers all promauto metrics.
	_ = newTestProxyClient(t, mock)

	req := httptest.NewRequest("GET", "/metrics", nil)
	w := httptest.NewRecorder()

	promhttp.Handler().ServeHTTP(w, req)

	resp := w.Result()
	body, _ := io.ReadAll(resp.Body)

	if resp.StatusCode != http.StatusOK {
		t.Errorf("Expected status 200, got %d", resp.StatusCode)
	}

	bodyStr := string(body)
	if !strings.Contains(bodyStr, "# HELP") || !strings.Contains(bodyStr, "# TYPE") {
		t.Error("Expected Prometheus format metrics output")
	}
}

func TestGetEnv(t *testing.T) {
	t.Setenv("TRAFA_PROXY_TEST_KEY", "value")

	if got := getEnv("TRAFA_PROXY_TEST_KEY", "fallback"); got != "value" {
		t.Errorf("Expected 'value', got %s", got)
	}
	if got := getEnv("TRAFA_PROXY_TEST_MISSING", "fallback"); got != "fallback" {
		t.Errorf("Expected 'fallback', got %s", got)
	}
}
