// Package metrics provides Prometheus metrics for the runtest selection service.
package metrics

import (
	"fmt"
	"sort"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Manager manages all Prometheus metrics for the service.
type Manager struct {
	namespace        string
	subsystem        string
	histogramBuckets []float64
	constLabels      map[string]string
	registry         prometheus.Registerer

	// Selection Metrics - what the endpoint actually does
	selectionLatency   prometheus.Histogram
	selectionItemsIn   prometheus.Histogram
	selectionItemsOut  prometheus.Histogram
	selectionTimeouts  prometheus.Counter
	selectionsTotal    prometheus.Counter
	authFailures       prometheus.Counter
	rateLimitRejects   prometheus.Counter
	panicRecoveries    prometheus.Counter
	malformedRequests  prometheus.Counter
	selectionRejected  prometheus.Counter
	selectionCancelled prometheus.Counter

	// HTTP Performance Metrics
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	// Queue Metrics
	queueCapacity      prometheus.Gauge
	queueSize          prometheus.Gauge
	queueUtilization   prometheus.Gauge
	queueEnqueueRate   prometheus.Counter
	queueDequeueRate   prometheus.Counter
	queueEnqueueErrors prometheus.Counter

	// Worker Metrics
	workerCount             prometheus.Gauge
	workerMessagesPerSecond prometheus.Gauge
	workerProcessingLatency prometheus.Histogram
	workerErrorRate         prometheus.Counter

	// Error Metrics
	errorRateByComponent *prometheus.CounterVec
	errorRateByType      *prometheus.CounterVec
	errorRateByEndpoint  *prometheus.CounterVec
	errorLatency         *prometheus.HistogramVec

	// System Performance Metrics
	systemMemoryUsage    prometheus.Gauge
	systemGoroutineCount prometheus.Gauge
	systemGCPauseTime    prometheus.Histogram
}

// Global metrics manager instance.
var globalManager *Manager //nolint:gochecknoglobals // singleton metrics manager

// Custom registry to avoid default Go metrics.
var customRegistry = prometheus.NewRegistry() //nolint:gochecknoglobals // metrics registry

func init() { //nolint:gochecknoinits // global metrics setup
	globalManager = NewManager(WithPrometheusRegistry(customRegistry))
}

// NewManager creates a new metrics manager with default configuration.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace:        "runtest",
		subsystem:        "selection",
		histogramBuckets: prometheus.DefBuckets,
		constLabels:      make(map[string]string),
		registry:         prometheus.DefaultRegisterer,
	}

	for _, opt := range opts {
		opt(m)
	}

	m.initializeMetrics()

	return m
}

func (m *Manager) counter(name, help string) prometheus.Counter {
	return promauto.With(m.registry).NewCounter(prometheus.CounterOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        name,
		Help:        help,
		ConstLabels: m.constLabels,
	})
}

func (m *Manager) gauge(name, help string) prometheus.Gauge {
	return promauto.With(m.registry).NewGauge(prometheus.GaugeOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        name,
		Help:        help,
		ConstLabels: m.constLabels,
	})
}

func (m *Manager) histogram(name, help string, buckets []float64) prometheus.Histogram {
	return promauto.With(m.registry).NewHistogram(prometheus.HistogramOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        name,
		Help:        help,
		Buckets:     buckets,
		ConstLabels: m.constLabels,
	})
}

// initializeMetrics creates all the Prometheus metrics.
func (m *Manager) initializeMetrics() { //nolint:funlen // one place for every metric definition
	auto := promauto.With(m.registry)
	sizeBuckets := prometheus.ExponentialBuckets(1, 4, 10)

	m.selectionLatency = m.histogram("latency_milliseconds",
		"Time spent inside the selection rule in milliseconds", m.histogramBuckets)
	m.selectionItemsIn = m.histogram("items_in",
		"Number of candidate items per request", sizeBuckets)
	m.selectionItemsOut = m.histogram("items_selected",
		"Number of items selected per request", sizeBuckets)
	m.selectionsTotal = m.counter("total", "Total number of completed selections")
	m.selectionTimeouts = m.counter("timeouts_total", "Selections abandoned after the selection timeout")
	m.selectionRejected = m.counter("rejected_total", "Selections rejected because the queue was full")
	m.selectionCancelled = m.counter("cancelled_total", "Jobs skipped by workers because their request was gone")
	m.authFailures = m.counter("auth_failures_total", "Requests rejected by the shared-secret check")
	m.rateLimitRejects = m.counter("rate_limit_rejects_total", "Requests rejected by the rate limiter")
	m.panicRecoveries = m.counter("panic_recoveries_total", "Handler panics recovered by middleware")
	m.malformedRequests = m.counter("malformed_requests_total", "Requests whose body failed decoding or validation")

	m.httpRequests = auto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace:   m.namespace,
			Subsystem:   m.subsystem,
			Name:        "http_requests_total",
			Help:        "Total number of HTTP requests by endpoint and method",
			ConstLabels: m.constLabels,
		},
		[]string{"endpoint", "method", "status_code"},
	)

	m.httpRequestDuration = auto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace:   m.namespace,
			Subsystem:   m.subsystem,
			Name:        "http_request_duration_milliseconds",
			Help:        "HTTP request duration in milliseconds",
			Buckets:     m.histogramBuckets,
			ConstLabels: m.constLabels,
		},
		[]string{"endpoint", "method", "status_code"},
	)

	m.queueCapacity = m.gauge("queue_capacity", "Maximum queue capacity")
	m.queueSize = m.gauge("queue_size", "Current number of queued selection jobs")
	m.queueUtilization = m.gauge("queue_utilization_ratio", "Queue utilization ratio (current size / capacity)")
	m.queueEnqueueRate = m.counter("queue_enqueue_total", "Total number of jobs enqueued")
	m.queueDequeueRate = m.counter("queue_dequeue_total", "Total number of jobs dequeued")
	m.queueEnqueueErrors = m.counter("queue_enqueue_errors_total", "Total number of enqueue errors")

	m.workerCount = m.gauge("worker_count", "Number of selection workers")
	m.workerMessagesPerSecond = m.gauge("worker_jobs_per_second", "Average jobs processed per second by workers")
	m.workerProcessingLatency = m.histogram("worker_processing_latency_milliseconds",
		"Worker job processing latency in milliseconds", m.histogramBuckets)
	m.workerErrorRate = m.counter("worker_errors_total", "Total number of worker errors")

	m.errorRateByComponent = auto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace:   m.namespace,
			Subsystem:   m.subsystem,
			Name:        "errors_by_component_total",
			Help:        "Total number of errors by component",
			ConstLabels: m.constLabels,
		},
		[]string{"component", "error_type"},
	)

	m.errorRateByType = auto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace:   m.namespace,
			Subsystem:   m.subsystem,
			Name:        "errors_by_type_total",
			Help:        "Total number of errors by type",
			ConstLabels: m.constLabels,
		},
		[]string{"error_type", "severity"},
	)

	m.errorRateByEndpoint = auto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace:   m.namespace,
			Subsystem:   m.subsystem,
			Name:        "errors_by_endpoint_total",
			Help:        "Total number of errors by endpoint",
			ConstLabels: m.constLabels,
		},
		[]string{"endpoint", "method", "error_type"},
	)

	m.errorLatency = auto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace:   m.namespace,
			Subsystem:   m.subsystem,
			Name:        "error_latency_milliseconds",
			Help:        "Latency of operations that resulted in errors",
			Buckets:     m.histogramBuckets,
			ConstLabels: m.constLabels,
		},
		[]string{"component", "error_type"},
	)

	m.systemMemoryUsage = m.gauge("system_memory_usage_bytes", "System memory usage in bytes")
	m.systemGoroutineCount = m.gauge("system_goroutine_count", "Number of goroutines")
	m.systemGCPauseTime = m.histogram("system_gc_pause_time_milliseconds", "GC pause time in milliseconds",
		[]float64{0.1, 0.5, 1, 2, 5, 10, 25, 50, 100, 250, 500, 1000})
}

// RecordSelection records one completed selection.
func RecordSelection(latencyMs float64, itemsIn, itemsSelected int) {
	globalManager.selectionsTotal.Inc()
	globalManager.selectionLatency.Observe(latencyMs)
	globalManager.selectionItemsIn.Observe(float64(itemsIn))
	globalManager.selectionItemsOut.Observe(float64(itemsSelected))
}

// RecordSelectionTimeout increments the selection timeout counter.
func RecordSelectionTimeout() {
	globalManager.selectionTimeouts.Inc()
}

// RecordSelectionRejected increments the backpressure counter.
func RecordSelectionRejected() {
	globalManager.selectionRejected.Inc()
}

// RecordSelectionCancelled increments the skipped job counter.
func RecordSelectionCancelled() {
	globalManager.selectionCancelled.Inc()
}

// RecordAuthFailure increments the authentication failure counter.
func RecordAuthFailure() {
	globalManager.authFailures.Inc()
}

// RecordRateLimitReject increments the rate limit reject counter.
func RecordRateLimitReject() {
	globalManager.rateLimitRejects.Inc()
}

// RecordPanicRecovery increments the recovered panic counter.
func RecordPanicRecovery() {
	globalManager.panicRecoveries.Inc()
}

// RecordMalformedRequest increments the malformed request counter.
func RecordMalformedRequest() {
	globalManager.malformedRequests.Inc()
}

// RecordHTTPRequest records an HTTP request.
func RecordHTTPRequest(endpoint, method, statusCode string) {
	globalManager.httpRequests.WithLabelValues(endpoint, method, statusCode).Inc()
}

// RecordHTTPRequestDuration records HTTP request duration.
func RecordHTTPRequestDuration(endpoint, method, statusCode string, duration float64) {
	globalManager.httpRequestDuration.WithLabelValues(endpoint, method, statusCode).Observe(duration)
}

// Queue Metrics Functions.

// UpdateQueueCapacity sets the maximum queue capacity.
func UpdateQueueCapacity(capacity int) {
	globalManager.queueCapacity.Set(float64(capacity))
}

// UpdateQueueSize sets the current queue size.
func UpdateQueueSize(size int) {
	globalManager.queueSize.Set(float64(size))
}

// UpdateQueueUtilization sets the queue utilization ratio.
func UpdateQueueUtilization(utilization float64) {
	globalManager.queueUtilization.Set(utilization)
}

// RecordQueueEnqueue increments the enqueue counter.
func RecordQueueEnqueue() {
	globalManager.queueEnqueueRate.Inc()
}

// RecordQueueDequeue increments the dequeue counter.
func RecordQueueDequeue() {
	globalManager.queueDequeueRate.Inc()
}

// RecordQueueEnqueueError increments the enqueue error counter.
func RecordQueueEnqueueError() {
	globalManager.queueEnqueueErrors.Inc()
}

// Worker Metrics Functions.

// UpdateWorkerCount sets the number of selection workers.
func UpdateWorkerCount(count int) {
	globalManager.workerCount.Set(float64(count))
}

// UpdateWorkerMessagesPerSecond sets the average jobs processed per second.
func UpdateWorkerMessagesPerSecond(rate float64) {
	globalManager.workerMessagesPerSecond.Set(rate)
}

// RecordWorkerProcessingLatency records worker processing latency.
func RecordWorkerProcessingLatency(latencyMs float64) {
	globalManager.workerProcessingLatency.Observe(latencyMs)
}

// RecordWorkerError increments the worker error counter.
func RecordWorkerError() {
	globalManager.workerErrorRate.Inc()
}

// Error Metrics Functions.

// RecordErrorByComponent records an error with component and type labels.
func RecordErrorByComponent(component, errorType string) {
	globalManager.errorRateByComponent.WithLabelValues(component, errorType).Inc()
}

// RecordErrorByType records an error with type and severity labels.
func RecordErrorByType(errorType, severity string) {
	globalManager.errorRateByType.WithLabelValues(errorType, severity).Inc()
}

// RecordErrorByEndpoint records an error with endpoint, method, and error type labels.
func RecordErrorByEndpoint(endpoint, method, errorType string) {
	globalManager.errorRateByEndpoint.WithLabelValues(endpoint, method, errorType).Inc()
}

// RecordErrorLatency records the latency of an operation that resulted in an error.
func RecordErrorLatency(component, errorType string, latencyMs float64) {
	globalManager.errorLatency.WithLabelValues(component, errorType).Observe(latencyMs)
}

// System Performance Metrics Functions.

// UpdateSystemMemoryUsage sets the system memory usage in bytes.
func UpdateSystemMemoryUsage(bytes uint64) {
	globalManager.systemMemoryUsage.Set(float64(bytes))
}

// UpdateSystemGoroutineCount sets the number of goroutines.
func UpdateSystemGoroutineCount(count int) {
	globalManager.systemGoroutineCount.Set(float64(count))
}

// RecordSystemGCPauseTime records GC pause time in milliseconds.
func RecordSystemGCPauseTime(pauseMs float64) {
	globalManager.systemGCPauseTime.Observe(pauseMs)
}

// GetRegistry returns the custom Prometheus registry used by our metrics.
func GetRegistry() *prometheus.Registry {
	return customRegistry
}

// MetricNames gathers the custom registry and returns the sorted family names.
func MetricNames() ([]string, error) {
	families, err := customRegistry.Gather()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrGather, err)
	}
	names := make([]string, 0, len(families))
	for _, f := range families {
		names = append(names, f.GetName())
	}
	sort.Strings(names)
	return names, nil
}
