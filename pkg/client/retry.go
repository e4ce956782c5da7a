package client

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
)

// Prometheus metrics for retry operations.
var (
	retriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "trafa_retries_total",
		Help: "Total number of retry attempts by error class",
	}, []string{"error_class"})

	retryBackoffSeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "trafa_retry_backoff_seconds",
		Help:    "Backoff duration for retries by error class",
		Buckets: []float64{0.5, 1, 2, 5, 10, 30, 60},
	}, []string{"error_class"})

	retryExhaustedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "trafa_retry_exhausted_total",
		Help: "Total number of times retry attempts were exhausted by error class",
	}, []string{"error_class"})
)

// RetryConfig holds the configuration for retry logic.
type RetryConfig struct {
	// Enabled turns retries on. When false, exactly one attempt is made.
	Enabled bool `json:"enabled"`

	// MaxRetries is the number of retries after the initial attempt.
	MaxRetries int `json:"max_retries"`

	// BaseBackoff is the wait before the first retry; each further retry
	// doubles it.
	BaseBackoff time.Duration `json:"base_backoff"`
}

// DefaultRetryConfig returns the default retry configuration.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		Enabled:     true,
		MaxRetries:  3,
		BaseBackoff: 1 * time.Second,
	}
}

// Validate checks the retry parameters.
func (c RetryConfig) Validate() error {
	if c.MaxRetries < 0 {
		return fmt.Errorf("%w: max_retries must be >= 0 (got %d)", ErrInvalidConfiguration, c.MaxRetries)
	}
	if c.BaseBackoff < 0 {
		return fmt.Errorf("%w: base_backoff must be >= 0 (got %v)", ErrInvalidConfiguration, c.BaseBackoff)
	}
	return nil
}

// backoffForRetry returns the wait before retry k (1-indexed):
// BaseBackoff * 2^(k-1). No jitter, so retry timing is reproducible.
func (c RetryConfig) backoffForRetry(k int) time.Duration {
	backoff := c.BaseBackoff
	for i := 1; i < k; i++ {
		backoff *= 2
	}
	return backoff
}

// retryWithBackoff executes fn with bounded exponential backoff. Only
// transient error classes (server, rate limit, network) are retried;
// everything else propagates on first occurrence. After exhausting retries,
// the returned error wraps both ErrRetryExhausted and the last classified
// error.
func retryWithBackoff(ctx context.Context, cfg RetryConfig, logger zerolog.Logger, fn func() error) error {
	maxAttempts := 1
	if cfg.Enabled {
		maxAttempts = cfg.MaxRetries + 1
	}

	var lastErr error

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		err := fn()
		if err == nil {
			if attempt > 1 {
				logger.Info().
					Int("attempt", attempt).
					Msg("Request succeeded after retry")
			}
			return nil
		}

		lastErr = err
		class := classifyError(err)

		if !shouldRetry(class) {
			return lastErr
		}

		if attempt >= maxAttempts {
			break
		}

		backoff := cfg.backoffForRetry(attempt)
		retriesTotal.WithLabelValues(string(class)).Inc()
		retryBackoffSeconds.WithLabelValues(string(class)).Observe(backoff.Seconds())

		logger.Debug().
			Str("error_class", string(class)).
			Int("attempt", attempt).
			Dur("backoff", backoff).
			Msg("Retrying request after backoff")

		select {
		case <-ctx.Done():
			logger.Warn().
				Int("attempt", attempt).
				Msg("Context cancelled during retry backoff")
			return fmt.Errorf("retry cancelled: %w", ctx.Err())
		case <-time.After(backoff):
		}
	}

	if !cfg.Enabled {
		return lastErr
	}

	class := classifyError(lastErr)
	retryExhaustedTotal.WithLabelValues(string(class)).Inc()
	logger.Warn().
		Str("error_class", string(class)).
		Int("max_attempts", maxAttempts).
		Msg("Retry attempts exhausted")

	return fmt.Errorf("%w after %d attempts: %w", ErrRetryExhausted, maxAttempts, lastErr)
}
