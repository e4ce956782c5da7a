// Package ratelimit implements client-side request pacing for the
// Trafikanalys API using a token bucket: a bucket of burst tokens refills at
// a configured rate, and every outbound call debits one token or blocks
// until one becomes available.
package ratelimit

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Prometheus metrics for rate limiting.
var (
	rateLimitWaitsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "trafa_rate_limit_waits_total",
		Help: "Total number of calls that had to wait for a token",
	})

	rateLimitWaitSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "trafa_rate_limit_wait_seconds",
		Help:    "Time spent waiting for a rate limit token",
		Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 10},
	})
)

// ErrInvalidConfig is returned when limiter parameters are rejected.
var ErrInvalidConfig = errors.New("invalid rate limit configuration")

// Config holds the limiter parameters.
type Config struct {
	// CallsPerSecond is the token refill rate. Must be > 0.
	CallsPerSecond float64

	// BurstSize is the bucket capacity: the number of calls permitted
	// immediately without waiting. Must be >= 1.
	BurstSize int

	// Enabled turns the limiter on. When false, Wait is a no-op.
	Enabled bool
}

// DefaultConfig returns a conservative default: one call per second with a
// burst of five.
func DefaultConfig() Config {
	return Config{
		CallsPerSecond: 1.0,
		BurstSize:      5,
		Enabled:        true,
	}
}

// Validate checks the configuration parameters.
func (c Config) Validate() error {
	if c.CallsPerSecond <= 0 {
		return fmt.Errorf("%w: calls_per_second must be > 0 (got %g)", ErrInvalidConfig, c.CallsPerSecond)
	}
	if c.BurstSize < 1 {
		return fmt.Errorf("%w: burst_size must be >= 1 (got %d)", ErrInvalidConfig, c.BurstSize)
	}
	return nil
}

// Snapshot is a read-only view of the limiter for status reporting.
type Snapshot struct {
	CallsPerSecond float64 `json:"calls_per_second"`
	BurstSize      int     `json:"burst_size"`
	Enabled        bool    `json:"enabled"`
	Tokens         float64 `json:"tokens"`
	TotalWaits     uint64  `json:"total_waits"`
}

// Limiter paces calls with a token bucket. One Limiter is owned by one
// client; sharing a Limiter across goroutines is safe, but callers serialize
// through it: the refill-and-debit section (including any sleep) is a single
// exclusive critical section, so concurrent calls queue up behind the
// current waiter.
type Limiter struct {
	mu         sync.Mutex
	cfg        Config
	tokens     float64
	lastRefill time.Time
	totalWaits uint64
	logger     zerolog.Logger

	// Injectable for deterministic tests.
	now   func() time.Time
	sleep func(time.Duration)
}

// New creates a limiter. The bucket starts full.
func New(cfg Config) (*Limiter, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	l := &Limiter{
		cfg:    cfg,
		tokens: float64(cfg.BurstSize),
		logger: log.With().Str("component", "ratelimit").Logger(),
		now:    time.Now,
		sleep:  time.Sleep,
	}
	l.lastRefill = l.now()
	return l, nil
}

// Wait blocks until a call is permitted, then debits one token. It never
// fails. When the limiter is disabled, Wait returns immediately.
func (l *Limiter) Wait() {
	l.mu.Lock()
	defer l.mu.Unlock()

	if !l.cfg.Enabled {
		return
	}

	now := l.now()
	elapsed := now.Sub(l.lastRefill).Seconds()
	l.tokens += elapsed * l.cfg.CallsPerSecond
	if l.tokens > float64(l.cfg.BurstSize) {
		l.tokens = float64(l.cfg.BurstSize)
	}
	l.lastRefill = now

	if l.tokens >= 1 {
		l.tokens--
		return
	}

	deficit := 1 - l.tokens
	wait := time.Duration(deficit / l.cfg.CallsPerSecond * float64(time.Second))

	l.logger.Debug().
		Dur("wait", wait).
		Float64("tokens", l.tokens).
		Msg("Rate limit reached, waiting for token")

	l.totalWaits++
	rateLimitWaitsTotal.Inc()
	rateLimitWaitSeconds.Observe(wait.Seconds())

	l.sleep(wait)

	// The waited-for token is consumed in full.
	l.tokens = 0
	l.lastRefill = l.now()
}

// Configure replaces the limiter parameters. The new configuration takes
// effect on the next Wait; a wait already in progress is not affected.
func (l *Limiter) Configure(cfg Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	l.cfg = cfg
	if l.tokens > float64(cfg.BurstSize) {
		l.tokens = float64(cfg.BurstSize)
	}

	l.logger.Info().
		Float64("calls_per_second", cfg.CallsPerSecond).
		Int("burst_size", cfg.BurstSize).
		Bool("enabled", cfg.Enabled).
		Msg("Rate limiter reconfigured")

	return nil
}

// Snapshot returns the current configuration and bucket state.
func (l *Limiter) Snapshot() Snapshot {
	l.mu.Lock()
	defer l.mu.Unlock()

	return Snapshot{
		CallsPerSecond: l.cfg.CallsPerSecond,
		BurstSize:      l.cfg.BurstSize,
		Enabled:        l.cfg.Enabled,
		Tokens:         l.tokens,
		TotalWaits:     l.totalWaits,
	}
}
