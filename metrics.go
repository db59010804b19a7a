package kueri

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// MetricsCollector provides Prometheus metrics for the operation lifecycle
// and the built-in plugins. It is safe for concurrent use.
type MetricsCollector struct {
	operationsTotal    *prometheus.CounterVec
	operationDuration  *prometheus.HistogramVec
	operationsInFlight *prometheus.GaugeVec

	cacheHits   *prometheus.CounterVec
	cacheMisses *prometheus.CounterVec

	dedupHits *prometheus.CounterVec

	invalidationsTotal *prometheus.CounterVec

	retriesTotal *prometheus.CounterVec

	throttleTokens *prometheus.GaugeVec

	pagesFetched *prometheus.CounterVec

	pluginPanics *prometheus.CounterVec

	errorsTotal *prometheus.CounterVec
}

// NewMetricsCollector creates a collector on the default registerer.
func NewMetricsCollector() *MetricsCollector {
	return NewMetricsCollectorWithRegistry(prometheus.DefaultRegisterer)
}

// NewMetricsCollectorWithRegistry creates a collector using the supplied registerer.
func NewMetricsCollectorWithRegistry(registry prometheus.Registerer) *MetricsCollector {
	return &MetricsCollector{
		operationsTotal: promauto.With(registry).NewCounterVec(
			prometheus.CounterOpts{
				Name: "kueri_operations_total",
				Help: "Total number of operations executed",
			},
			[]string{"operation", "endpoint", "status"},
		),
		operationDuration: promauto.With(registry).NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "kueri_operation_duration_seconds",
				Help:    "Duration of operations in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation", "endpoint"},
		),
		operationsInFlight: promauto.With(registry).NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "kueri_operations_in_flight",
				Help: "Number of operations currently in flight",
			},
			[]string{"operation", "endpoint"},
		),
		cacheHits: promauto.With(registry).NewCounterVec(
			prometheus.CounterOpts{
				Name: "kueri_cache_hits_total",
				Help: "Total number of fresh cache hits served without a transport call",
			},
			[]string{"operation", "endpoint"},
		),
		cacheMisses: promauto.With(registry).NewCounterVec(
			prometheus.CounterOpts{
				Name: "kueri_cache_misses_total",
				Help: "Total number of cache misses (absent, stale or expired entries)",
			},
			[]string{"operation", "endpoint"},
		),
		dedupHits: promauto.With(registry).NewCounterVec(
			prometheus.CounterOpts{
				Name: "kueri_dedup_hits_total",
				Help: "Total number of calls coalesced onto an in-flight transport call",
			},
			[]string{"operation", "endpoint"},
		),
		invalidationsTotal: promauto.With(registry).NewCounterVec(
			prometheus.CounterOpts{
				Name: "kueri_invalidations_total",
				Help: "Total number of tag invalidation sweeps",
			},
			[]string{"tag"},
		),
		retriesTotal: promauto.With(registry).NewCounterVec(
			prometheus.CounterOpts{
				Name: "kueri_retries_total",
				Help: "Total number of retry attempts",
			},
			[]string{"operation", "endpoint", "attempt"},
		),
		throttleTokens: promauto.With(registry).NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "kueri_throttle_tokens",
				Help: "Current number of available throttle tokens",
			},
			[]string{"name"},
		),
		pagesFetched: promauto.With(registry).NewCounterVec(
			prometheus.CounterOpts{
				Name: "kueri_pages_fetched_total",
				Help: "Total number of pages fetched by infinite reads",
			},
			[]string{"direction"},
		),
		pluginPanics: promauto.With(registry).NewCounterVec(
			prometheus.CounterOpts{
				Name: "kueri_plugin_panics_total",
				Help: "Total number of recovered plugin panics",
			},
			[]string{"plugin"},
		),
		errorsTotal: promauto.With(registry).NewCounterVec(
			prometheus.CounterOpts{
				Name: "kueri_errors_total",
				Help: "Total number of error-envelope responses by error type",
			},
			[]string{"type", "operation", "endpoint"},
		),
	}
}

// RecordOperationStart increments the in-flight gauge.
func (mc *MetricsCollector) RecordOperationStart(op OperationType, endpoint string) {
	mc.operationsInFlight.WithLabelValues(string(op), endpoint).Inc()
}

// RecordOperationEnd decrements the in-flight gauge.
func (mc *MetricsCollector) RecordOperationEnd(op OperationType, endpoint string) {
	mc.operationsInFlight.WithLabelValues(string(op), endpoint).Dec()
}

// RecordOperation records one settled operation with its envelope status.
func (mc *MetricsCollector) RecordOperation(op OperationType, endpoint string, status int, duration time.Duration) {
	mc.operationsTotal.WithLabelValues(string(op), endpoint, strconv.Itoa(status)).Inc()
	mc.operationDuration.WithLabelValues(string(op), endpoint).Observe(duration.Seconds())
}

// RecordCacheHit records a fresh-entry short-circuit.
func (mc *MetricsCollector) RecordCacheHit(op OperationType, endpoint string) {
	mc.cacheHits.WithLabelValues(string(op), endpoint).Inc()
}

// RecordCacheMiss records a cache miss.
func (mc *MetricsCollector) RecordCacheMiss(op OperationType, endpoint string) {
	mc.cacheMisses.WithLabelValues(string(op), endpoint).Inc()
}

// RecordDedupHit records a call coalesced onto an in-flight one.
func (mc *MetricsCollector) RecordDedupHit(op OperationType, endpoint string) {
	mc.dedupHits.WithLabelValues(string(op), endpoint).Inc()
}

// RecordInvalidation records one invalidation sweep per tag.
func (mc *MetricsCollector) RecordInvalidation(tags []string) {
	for _, tag := range tags {
		mc.invalidationsTotal.WithLabelValues(tag).Inc()
	}
}

// RecordRetry records one retry attempt.
func (mc *MetricsCollector) RecordRetry(op OperationType, endpoint string, attempt int) {
	mc.retriesTotal.WithLabelValues(string(op), endpoint, strconv.Itoa(attempt)).Inc()
}

// RecordThrottleTokens records the current token count of a throttle gate.
func (mc *MetricsCollector) RecordThrottleTokens(name string, tokens int) {
	mc.throttleTokens.WithLabelValues(name).Set(float64(tokens))
}

// RecordPageFetch records one page fetch ("first", "next" or "prev").
func (mc *MetricsCollector) RecordPageFetch(direction string) {
	mc.pagesFetched.WithLabelValues(direction).Inc()
}

// RecordPluginPanic records one recovered plugin panic.
func (mc *MetricsCollector) RecordPluginPanic(plugin string) {
	mc.pluginPanics.WithLabelValues(plugin).Inc()
}

// RecordError records one error-envelope response.
func (mc *MetricsCollector) RecordError(errorType string, op OperationType, endpoint string) {
	mc.errorsTotal.WithLabelValues(errorType, string(op), endpoint).Inc()
}
