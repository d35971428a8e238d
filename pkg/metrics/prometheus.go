// Package metrics provides Prometheus metrics for the padmon service.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Default metrics configuration constants.
const (
	defaultRefreshInterval = 10 * time.Second
)

// Manager manages all Prometheus metrics for the padmon service.
type Manager struct {
	namespace        string
	subsystem        string
	histogramBuckets []float64
	refreshInterval  time.Duration
	registry         prometheus.Registerer

	// Readings pipeline
	readingsAppended   *prometheus.CounterVec
	appendErrors       *prometheus.CounterVec
	appendLatency      prometheus.Histogram
	riskScores         prometheus.Histogram
	readingsSimulated  *prometheus.CounterVec
	readingsDuplicate  prometheus.Counter
	readingsPublished  prometheus.Counter
	publishErrors      prometheus.Counter
	storedReadings     prometheus.Gauge
	simulationRunning  prometheus.Gauge
	activeSubscription prometheus.Gauge
	snapshotsDelivered prometheus.Counter
	snapshotsCoalesced prometheus.Counter
	websocketClients   prometheus.Gauge

	// Auth and notifications
	authEvents    *prometheus.CounterVec
	notifications *prometheus.CounterVec

	// HTTP
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	// Queue
	queueSize              prometheus.Gauge
	queueCapacity          prometheus.Gauge
	queueUtilization       prometheus.Gauge
	queueEnqueueRate       prometheus.Counter
	queueDequeueRate       prometheus.Counter
	queueEnqueueErrors     prometheus.Counter
	queueProcessingLatency prometheus.Histogram

	// Workers
	workerActiveCount       prometheus.Gauge
	workerMessagesPerSecond prometheus.Gauge
	workerProcessingLatency prometheus.Histogram
	workerErrorRate         prometheus.Counter

	// Errors
	errorRateByComponent *prometheus.CounterVec
	errorRateByType      *prometheus.CounterVec
	errorRateByEndpoint  *prometheus.CounterVec
	errorLatency         *prometheus.HistogramVec

	// System
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
		namespace:        "padmon",
		subsystem:        "monitor",
		histogramBuckets: prometheus.DefBuckets,
		refreshInterval:  defaultRefreshInterval,
		registry:         prometheus.DefaultRegisterer,
	}

	for _, opt := range opts {
		opt(m)
	}

	m.initializeMetrics()

	return m
}

func (m *Manager) counter(n, help string) prometheus.Counter {
	return promauto.With(m.registry).NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: n, Help: help,
	})
}

func (m *Manager) counterVec(n, help string, labels ...string) *prometheus.CounterVec {
	return promauto.With(m.registry).NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: n, Help: help,
	}, labels)
}

func (m *Manager) gauge(n, help string) prometheus.Gauge {
	return promauto.With(m.registry).NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: n, Help: help,
	})
}

func (m *Manager) histogram(n, help string, buckets []float64) prometheus.Histogram {
	return promauto.With(m.registry).NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: n, Help: help, Buckets: buckets,
	})
}

func (m *Manager) histogramVec(n, help string, labels ...string) *prometheus.HistogramVec {
	return promauto.With(m.registry).NewHistogramVec(prometheus.HistogramOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: n, Help: help, Buckets: m.histogramBuckets,
	}, labels)
}

// initializeMetrics creates all the Prometheus metrics.
func (m *Manager) initializeMetrics() { //nolint:funlen // one place for every collector
	m.readingsAppended = m.counterVec("readings_appended_total", "Readings persisted to the store by source", "source")
	m.appendErrors = m.counterVec("reading_append_errors_total", "Failed store appends by source", "source")
	m.appendLatency = m.histogram("reading_append_latency_milliseconds", "Store append latency in milliseconds", m.histogramBuckets)
	m.riskScores = m.histogram("risk_score", "Distribution of computed PAD risk scores",
		[]float64{10, 20, 25, 30, 40, 50, 60, 70, 75, 80, 90, 100})
	m.readingsSimulated = m.counterVec("readings_simulated_total", "Simulated readings by branch", "branch")
	m.readingsDuplicate = m.counter("readings_duplicate_total", "Externally supplied readings dropped as duplicates")
	m.readingsPublished = m.counter("readings_published_total", "Persisted readings forwarded to the fan-out sink")
	m.publishErrors = m.counter("reading_publish_errors_total", "Failed fan-out publishes")
	m.storedReadings = m.gauge("stored_readings", "Number of readings held by the store")
	m.simulationRunning = m.gauge("simulation_running", "1 while the reading simulator is running")
	m.activeSubscription = m.gauge("active_subscriptions", "Open snapshot subscriptions")
	m.snapshotsDelivered = m.counter("snapshots_delivered_total", "Snapshots handed to subscribers")
	m.snapshotsCoalesced = m.counter("snapshots_coalesced_total", "Undelivered snapshots replaced by a newer one")
	m.websocketClients = m.gauge("websocket_clients", "Connected websocket stream clients")

	m.authEvents = m.counterVec("auth_events_total", "Auth operations by event and outcome", "event", "outcome")
	m.notifications = m.counterVec("notifications_total", "User facing notifications by level", "level")

	m.httpRequests = m.counterVec("http_requests_total", "Total number of HTTP requests by endpoint and method",
		"endpoint", "method", "status_code")
	m.httpRequestDuration = m.histogramVec("http_request_duration_milliseconds", "HTTP request duration in milliseconds",
		"endpoint", "method", "status_code")

	m.queueSize = m.gauge("queue_size", "Readings waiting to be persisted")
	m.queueCapacity = m.gauge("queue_capacity", "Maximum capacity of the readings queue")
	m.queueUtilization = m.gauge("queue_utilization_ratio", "Queue utilization ratio (0.0 to 1.0)")
	m.queueEnqueueRate = m.counter("queue_enqueue_total", "Total readings enqueued")
	m.queueDequeueRate = m.counter("queue_dequeue_total", "Total readings dequeued")
	m.queueEnqueueErrors = m.counter("queue_enqueue_errors_total", "Total enqueue failures")
	m.queueProcessingLatency = m.histogram("queue_processing_latency_milliseconds", "Enqueue latency in milliseconds", m.histogramBuckets)

	m.workerActiveCount = m.gauge("worker_active_count", "Number of persistence workers")
	m.workerMessagesPerSecond = m.gauge("worker_messages_per_second", "Readings persisted per second")
	m.workerProcessingLatency = m.histogram("worker_processing_latency_milliseconds", "Per reading worker latency in milliseconds", m.histogramBuckets)
	m.workerErrorRate = m.counter("worker_errors_total", "Total worker errors")

	m.errorRateByComponent = m.counterVec("errors_by_component_total", "Errors by component and type", "component", "error_type")
	m.errorRateByType = m.counterVec("errors_by_type_total", "Errors by type and severity", "error_type", "severity")
	m.errorRateByEndpoint = m.counterVec("errors_by_endpoint_total", "Errors by endpoint", "endpoint", "method", "error_type")
	m.errorLatency = m.histogramVec("error_latency_milliseconds", "Latency of operations that failed", "component", "error_type")

	m.systemMemoryUsage = m.gauge("system_memory_usage_bytes", "System memory usage in bytes")
	m.systemGoroutineCount = m.gauge("system_goroutine_count", "Number of goroutines")
	m.systemGCPauseTime = m.histogram("system_gc_pause_time_milliseconds", "GC pause time in milliseconds",
		[]float64{0.1, 0.5, 1, 2, 5, 10, 25, 50, 100, 250, 500, 1000})
}

// RecordReadingAppended counts a persisted reading and its score.
func RecordReadingAppended(source string, score int) {
	globalManager.readingsAppended.WithLabelValues(source).Inc()
	globalManager.riskScores.Observe(float64(score))
}

// RecordAppendError counts a failed store append.
func RecordAppendError(source string) {
	globalManager.appendErrors.WithLabelValues(source).Inc()
}

// RecordAppendLatency records store append latency in milliseconds.
func RecordAppendLatency(latencyMs float64) {
	globalManager.appendLatency.Observe(latencyMs)
}

// RecordReadingSimulated counts a simulated reading by branch.
func RecordReadingSimulated(symptomatic bool) {
	branch := "healthy"
	if symptomatic {
		branch = "symptomatic"
	}
	globalManager.readingsSimulated.WithLabelValues(branch).Inc()
}

// RecordReadingDuplicate counts a reading dropped by idempotency tracking.
func RecordReadingDuplicate() {
	globalManager.readingsDuplicate.Inc()
}

// RecordReadingPublished counts a reading forwarded to the fan-out sink.
func RecordReadingPublished() {
	globalManager.readingsPublished.Inc()
}

// RecordPublishError counts a failed fan-out publish.
func RecordPublishError() {
	globalManager.publishErrors.Inc()
}

// UpdateStoredReadings sets the number of stored readings.
func UpdateStoredReadings(count int) {
	globalManager.storedReadings.Set(float64(count))
}

// UpdateSimulationRunning flips the simulation gauge.
func UpdateSimulationRunning(running bool) {
	v := 0.0
	if running {
		v = 1
	}
	globalManager.simulationRunning.Set(v)
}

// IncActiveSubscriptions increments the open subscription gauge.
func IncActiveSubscriptions() { globalManager.activeSubscription.Inc() }

// DecActiveSubscriptions decrements the open subscription gauge.
func DecActiveSubscriptions() { globalManager.activeSubscription.Dec() }

// RecordSnapshotDelivered counts a snapshot handed to a subscriber.
func RecordSnapshotDelivered() { globalManager.snapshotsDelivered.Inc() }

// RecordSnapshotCoalesced counts a pending snapshot replaced by a newer one.
func RecordSnapshotCoalesced() { globalManager.snapshotsCoalesced.Inc() }

// UpdateWebsocketClients sets the websocket client gauge.
func UpdateWebsocketClients(count int) {
	globalManager.websocketClients.Set(float64(count))
}

// RecordAuthEvent counts an auth operation outcome.
func RecordAuthEvent(event string, ok bool) {
	outcome := "success"
	if !ok {
		outcome = "failure"
	}
	globalManager.authEvents.WithLabelValues(event, outcome).Inc()
}

// RecordNotification counts a user facing notification.
func RecordNotification(level string) {
	globalManager.notifications.WithLabelValues(level).Inc()
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

// UpdateQueueSize sets the current queue size.
func UpdateQueueSize(size int) {
	globalManager.queueSize.Set(float64(size))
}

// UpdateQueueCapacity sets the maximum queue capacity.
func UpdateQueueCapacity(capacity int) {
	globalManager.queueCapacity.Set(float64(capacity))
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

// RecordQueueProcessingLatency records queue processing latency.
func RecordQueueProcessingLatency(latencyMs float64) {
	globalManager.queueProcessingLatency.Observe(latencyMs)
}

// Worker Metrics Functions.

// UpdateWorkerActiveCount sets the number of active workers.
func UpdateWorkerActiveCount(count int) {
	globalManager.workerActiveCount.Set(float64(count))
}

// UpdateWorkerMessagesPerSecond sets the average readings persisted per second.
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

// StatusLabel formats an HTTP status code for metric labels.
func StatusLabel(code int) string {
	return strconv.Itoa(code)
}

// GetRegistry returns the custom Prometheus registry used by our metrics.
func GetRegistry() *prometheus.Registry {
	return customRegistry
}
