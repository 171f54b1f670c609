// Package metrics exposes the Prometheus registry used by tft-meta-stats.
// Metrics are defined next to the code that records them (client, ratelimit,
// cache, ingest, refresh, server) and registered through promauto, so this
// package only documents them and serves the scrape endpoint.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry is the registerer every package records into.
var Registry = prometheus.DefaultRegisterer

// Gatherer is the gatherer served by Handler.
var Gatherer = prometheus.DefaultGatherer

// Handler serves the registered metrics in the Prometheus exposition format.
func Handler() http.Handler {
	return promhttp.HandlerFor(Gatherer, promhttp.HandlerOpts{})
}

// Metrics Documentation
//
// Rate Limit Metrics (pkg/ratelimit):
//   - tft_ratelimit_wait_seconds{partition, window} (Histogram): Time queued before admission
//   - tft_ratelimit_queue_depth{partition, window} (Gauge): Callers waiting for admission
//
// Request Metrics (pkg/client):
//   - tft_requests_total{partition, status} (Counter): Upstream requests by partition and HTTP status
//   - tft_request_duration_seconds{partition} (Histogram): Upstream request duration
//   - tft_errors_total{class} (Counter): Errors by class (client, auth, server, rate_limit, network)
//
// Retry Metrics (pkg/client):
//   - tft_retries_total{error_class} (Counter): Retry attempts by error class
//   - tft_retry_backoff_seconds{error_class} (Histogram): Backoff duration by error class
//   - tft_retry_exhausted_total{error_class} (Counter): Calls that exhausted their attempts
//
// Cache Metrics (pkg/cache):
//   - tft_cache_hits_total{layer} (Counter): Cache hits by layer (memory, redis)
//   - tft_cache_misses_total (Counter): Cache misses
//   - tft_cache_size_bytes{layer} (Gauge): Bytes written by layer
//   - tft_cache_errors_total{operation} (Counter): Cache operation errors
//
// Ingestion Metrics (pkg/ingest):
//   - tft_ingest_runs_total{partition, status} (Counter): Partition runs by final status
//   - tft_ingest_matches_total{partition} (Counter): Match details ingested
//   - tft_ingest_duration_seconds{partition} (Histogram): Partition run duration
//
// Refresh Metrics (pkg/refresh):
//   - tft_refresh_runs_total{result} (Counter): Refresh runs by result
//   - tft_refresh_duration_seconds (Histogram): Refresh run duration
//   - tft_stats_saved_total{kind} (Counter): Stats snapshots written
//
// HTTP Metrics (internal/server):
//   - tft_http_requests_total{route, code} (Counter): API requests by route and status code
//   - tft_http_throttled_total (Counter): API requests rejected by the per-client limiter
//
// Example Prometheus Queries:
//
//   # Partitions currently failing
//   sum by (partition) (increase(tft_ingest_runs_total{status="error"}[1h]))
//
//   # Time spent waiting on the long rate window
//   histogram_quantile(0.95, rate(tft_ratelimit_wait_seconds_bucket{window="long"}[15m]))
//
//   # Upstream error rate
//   rate(tft_errors_total[5m])
//
//   # Cache Hit Rate
//   sum(rate(tft_cache_hits_total[5m])) /
//   (sum(rate(tft_cache_hits_total[5m])) + sum(rate(tft_cache_misses_total[5m])))
