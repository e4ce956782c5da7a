// Package batch executes planned query batches sequentially and merges the
// results into a single table.
package batch

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/nordviklabs/trafago/pkg/query"
	"github.com/nordviklabs/trafago/pkg/table"
)

// ErrAllBatchesFailed indicates that no batch of a split query returned data.
var ErrAllBatchesFailed = errors.New("all batches failed")

var (
	batchesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "trafa_batches_total",
		Help: "Total executed query batches by outcome",
	}, []string{"status"})

	batchRuns = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "trafa_batch_run_seconds",
		Help:    "Duration of a full batched query run in seconds",
		Buckets: []float64{1, 5, 15, 30, 60, 120, 300},
	})
)

// CallFunc fetches one batch's data.
type CallFunc func(ctx context.Context, q query.Query) (*table.Table, error)

// ProgressFunc is invoked after each batch with the 1-based batch number,
// the total batch count, and the rows fetched so far.
type ProgressFunc func(current, total, rows int)

// Config holds executor configuration.
type Config struct {
	// ShowProgress logs per-batch progress at info level. Without it,
	// progress is logged at debug level only.
	ShowProgress bool

	// OnProgress, when set, is called after every batch.
	OnProgress ProgressFunc
}

// Executor runs the batches of a plan strictly in order. Batches are never
// fetched concurrently: every request still passes through the client's
// rate limiter, and ordering keeps merged results deterministic.
type Executor struct {
	config Config
	logger zerolog.Logger
}

// NewExecutor creates an executor.
func NewExecutor(config Config) *Executor {
	return &Executor{
		config: config,
		logger: log.With().Str("component", "batch-executor").Logger(),
	}
}

// Execute fetches every batch of the plan in order and merges the results.
// A failed batch is logged and skipped; remaining batches still run. Only
// when every batch fails is an error returned, wrapping the first failure.
// Duplicate rows across batch boundaries are removed from the merged table.
func (e *Executor) Execute(ctx context.Context, plan query.Plan, call CallFunc) (*table.Table, error) {
	start := time.Now()
	defer func() {
		batchRuns.Observe(time.Since(start).Seconds())
	}()

	if plan.SingleBatch() {
		return call(ctx, plan.Queries[0])
	}

	e.logger.Info().
		Str("split_variable", plan.SplitVariable).
		Int("total_batches", plan.TotalBatches).
		Msg("Starting batched fetch")

	merged := table.New()
	var firstErr error
	succeeded := 0

	for i, q := range plan.Queries {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		t, err := call(ctx, q)
		if err != nil {
			batchesTotal.WithLabelValues("error").Inc()
			e.logger.Warn().
				Err(err).
				Int("batch", i+1).
				Int("total_batches", plan.TotalBatches).
				Msg("Batch failed, continuing with remaining batches")
			if firstErr == nil {
				firstErr = fmt.Errorf("batch %d/%d: %w", i+1, plan.TotalBatches, err)
			}
			continue
		}

		batchesTotal.WithLabelValues("ok").Inc()
		merged.Append(t)
		succeeded++

		e.progress(i+1, plan.TotalBatches, merged.Len())
	}

	if succeeded == 0 {
		return nil, fmt.Errorf("%w: %w", ErrAllBatchesFailed, firstErr)
	}

	before := merged.Len()
	merged.Dedup()

	e.logger.Info().
		Int("batches", succeeded).
		Int("total_batches", plan.TotalBatches).
		Int("rows", merged.Len()).
		Int("duplicates_removed", before-merged.Len()).
		Dur("duration", time.Since(start)).
		Msg("Batched fetch complete")

	return merged, nil
}

func (e *Executor) progress(current, total, rows int) {
	event := e.logger.Debug()
	if e.config.ShowProgress {
		event = e.logger.Info()
	}
	event.
		Int("batch", current).
		Int("total_batches", total).
		Int("rows", rows).
		Msg("Batch complete")

	if e.config.OnProgress != nil {
		e.config.OnProgress(current, total, rows)
	}
}
