// trafa-proxy exposes the Trafikanalys client as a small HTTP service:
// rate-limited, retried, and optionally Redis-cached access to the API for
// local tooling, plus health and Prometheus metrics endpoints.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/nordviklabs/trafago/pkg/client"
	"github.com/nordviklabs/trafago/pkg/logging"
)

func main() {
	logger := logging.Setup(logging.Config{
		Level:  logging.LogLevel(getEnv("LOG_LEVEL", "info")),
		Pretty: getEnv("LOG_PRETTY", "") == "true",
		Output: os.Stderr,
	})

	port := getEnv("PORT", "8080")
	redisURL := getEnv("REDIS_URL", "")
	userAgent := getEnv("USER_AGENT", "trafa-proxy/0.1.0")
	language := getEnv("TRAFA_LANG", "sv")

	cfg := client.DefaultConfig()
	cfg.Language = language
	cfg.UserAgent = userAgent

	var redisClient *redis.Client
	if redisURL != "" {
		redisClient = redis.NewClient(&redis.Options{Addr: redisURL})

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := redisClient.Ping(ctx).Err(); err != nil {
			cancel()
			logger.Fatal().Err(err).Str("redis_url", redisURL).Msg("Failed to connect to Redis")
		}
		cancel()

		cfg.Redis = redisClient
		cfg.CacheEnabled = true
		logger.Info().Str("redis_url", redisURL).Msg("Response caching enabled")
	} else {
		logger.Info().Msg("REDIS_URL not set, response caching disabled")
	}

	trafaClient, err := client.New(cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to create client")
	}

	http.HandleFunc("/health", healthHandler)
	http.HandleFunc("/ready", readyHandler(redisClient))
	http.Handle("/metrics", promhttp.Handler())
	http.HandleFunc("/trafa/", proxyHandler(trafaClient, logger))
	http.HandleFunc("/status", statusHandler(trafaClient))

	addr := ":" + port
	logger.Info().
		Str("addr", addr).
		Str("user_agent", userAgent).
		Str("language", language).
		Msg("Starting trafa proxy server")

	if err := http.ListenAndServe(addr, nil); err != nil {
		logger.Fatal().Err(err).Msg("Server failed")
	}
}

func healthHandler(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	fmt.Fprintf(w, "OK")
}

// readyHandler reports readiness. With caching enabled, Redis must answer a
// ping; without it the service is always ready.
func readyHandler(redisClient *redis.Client) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if redisClient != nil {
			ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
			defer cancel()
			if err := redisClient.Ping(ctx).Err(); err != nil {
				http.Error(w, fmt.Sprintf("redis unavailable: %v", err), http.StatusServiceUnavailable)
				return
			}
		}
		w.WriteHeader(http.StatusOK)
		fmt.Fprintf(w, "OK")
	}
}

// proxyHandler forwards /trafa/<endpoint> requests through the client.
// Example: /trafa/data?query=t10016|ar:2020|itrfmiljokm
func proxyHandler(trafaClient *client.Client, logger zerolog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		endpoint := r.URL.Path[len("/trafa"):]
		if endpoint != "/structure" && endpoint != "/data" {
			http.Error(w, "unknown endpoint, use /trafa/structure or /trafa/data", http.StatusNotFound)
			return
		}

		ctx, cancel := context.WithTimeout(r.Context(), 60*time.Second)
		defer cancel()

		body, err := trafaClient.Raw(ctx, endpoint, r.URL.Query())
		if err != nil {
			logger.Warn().Err(err).Str("endpoint", endpoint).Msg("Proxied request failed")
			http.Error(w, fmt.Sprintf("request failed: %v", err), http.StatusBadGateway)
			return
		}

		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		if _, err := w.Write(body); err != nil {
			logger.Warn().Err(err).Msg("Failed to write response")
		}
	}
}

// statusHandler exposes the client's runtime configuration snapshot.
func statusHandler(trafaClient *client.Client) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		if err := json.NewEncoder(w).Encode(trafaClient.Status()); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
		}
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
