// Package metrics provides the centralized Prometheus metrics registry for
// the Trafikanalys client. All metrics are defined in their respective
// packages (client, batch, cache, ratelimit) to maintain modularity and
// avoid circular dependencies.
//
// This package provides documentation and reference for all available metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Registry is the default Prometheus registry used by the client.
// All metrics are automatically registered via promauto in their respective packages.
var Registry = prometheus.DefaultRegisterer

// Metrics Documentation
//
// Rate Limit Metrics (pkg/ratelimit):
//   - trafa_rate_limit_waits_total (Counter): Calls that had to wait for a token
//   - trafa_rate_limit_wait_seconds (Histogram): Wait duration when the bucket was empty
//
// Cache Metrics (pkg/cache):
//   - trafa_cache_hits_total (Counter): Cache hits
//   - trafa_cache_misses_total (Counter): Cache misses
//   - trafa_cache_size_bytes (Gauge): Current cache size in bytes
//   - trafa_cache_errors_total{operation} (Counter): Cache operation errors
//
// Request Metrics (pkg/client):
//   - trafa_requests_total{endpoint, status} (Counter): Requests by endpoint and outcome
//   - trafa_request_duration_seconds{endpoint} (Histogram): Request duration by endpoint
//   - trafa_errors_total{class} (Counter): Errors by class (client, server, rate_limit, network)
//
// Retry Metrics (pkg/client):
//   - trafa_retries_total{error_class} (Counter): Retry attempts by error class
//   - trafa_retry_backoff_seconds{error_class} (Histogram): Backoff duration by error class
//   - trafa_retry_exhausted_total{error_class} (Counter): Requests that exhausted max retries
//
// Batch Metrics (pkg/batch):
//   - trafa_batches_total{status} (Counter): Executed query batches by outcome
//   - trafa_batch_run_seconds (Histogram): Duration of full batched query runs
//
// Example Prometheus Queries:
//
//   # Cache Hit Rate
//   sum(rate(trafa_cache_hits_total[5m])) /
//   (sum(rate(trafa_cache_hits_total[5m])) + sum(rate(trafa_cache_misses_total[5m])))
//
//   # Request Error Rate
//   rate(trafa_errors_total[5m])
//
//   # P95 Request Latency
//   histogram_quantile(0.95, rate(trafa_request_duration_seconds_bucket[5m]))
//
//   # Share of batches that failed
//   rate(trafa_batches_total{status="error"}[5m]) / rate(trafa_batches_total[5m])
