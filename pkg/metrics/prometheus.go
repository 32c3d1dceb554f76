// Package metrics provides Prometheus metrics for the hoops scorebook service.
package metrics

import (
	"runtime"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const nanosecondsPerMillisecond = 1e6

// Manager manages all Prometheus metrics for the hoops service.
type Manager struct {
	namespace        string
	subsystem        string
	histogramBuckets []float64
	registry         prometheus.Registerer

	// Recording
	eventsRecorded     *prometheus.CounterVec
	eventsRejected     *prometheus.CounterVec
	eventsDuplicate    prometheus.Counter
	storeWriteErrors   prometheus.Counter
	storeLatency       *prometheus.HistogramVec
	aggregationLatency prometheus.Histogram
	activeControllers  prometheus.Gauge

	// Change feed queue
	feedQueueSize        prometheus.Gauge
	feedQueueCapacity    prometheus.Gauge
	feedQueueUtilization prometheus.Gauge
	feedEnqueued         prometheus.Counter
	feedDequeued         prometheus.Counter
	feedDropped          *prometheus.CounterVec

	// Relay workers
	workerActiveCount       prometheus.Gauge
	workerMessagesPerSecond prometheus.Gauge
	workerProcessingLatency prometheus.Histogram
	workerErrors            prometheus.Counter

	// Sync channel
	notificationsPublished *prometheus.CounterVec
	notificationsDropped   *prometheus.CounterVec
	openerSignals          *prometheus.CounterVec
	activeDisplays         prometheus.Gauge
	subscribers            prometheus.Gauge
	displayRefreshes       *prometheus.CounterVec

	// HTTP
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

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

// Init replaces the global manager with one built from opts on a fresh
// registry. Call it once at startup, before any metric is recorded.
func Init(opts ...Option) {
	customRegistry = prometheus.NewRegistry()
	globalManager = NewManager(append([]Option{WithPrometheusRegistry(customRegistry)}, opts...)...)
}

// NewManager creates a metrics manager and registers its collectors.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace:        "hoops",
		subsystem:        "scorebook",
		histogramBuckets: prometheus.DefBuckets,
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
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help,
	})
}

func (m *Manager) counterVec(name, help string, labels ...string) *prometheus.CounterVec {
	return promauto.With(m.registry).NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help,
	}, labels)
}

func (m *Manager) gauge(name, help string) prometheus.Gauge {
	return promauto.With(m.registry).NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help,
	})
}

func (m *Manager) histogram(name, help string) prometheus.Histogram {
	return promauto.With(m.registry).NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help, Buckets: m.histogramBuckets,
	})
}

func (m *Manager) histogramVec(name, help string, labels ...string) *prometheus.HistogramVec {
	return promauto.With(m.registry).NewHistogramVec(prometheus.HistogramOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help, Buckets: m.histogramBuckets,
	}, labels)
}

func (m *Manager) initializeMetrics() {
	m.eventsRecorded = m.counterVec("events_recorded_total", "Score events committed to the store", "kind")
	m.eventsRejected = m.counterVec("events_rejected_total", "Recording requests rejected before reaching the store", "reason")
	m.eventsDuplicate = m.counter("events_duplicate_total", "Recording requests answered from the idempotency cache")
	m.storeWriteErrors = m.counter("store_write_errors_total", "Store writes that failed")
	m.storeLatency = m.histogramVec("store_latency_milliseconds", "Store operation latency in milliseconds", "op")
	m.aggregationLatency = m.histogram("aggregation_latency_milliseconds", "Time to derive a box score from the event log")
	m.activeControllers = m.gauge("active_controllers", "Recording controllers currently open")

	m.feedQueueSize = m.gauge("feed_queue_size", "Changes waiting to be relayed")
	m.feedQueueCapacity = m.gauge("feed_queue_capacity", "Change feed queue capacity")
	m.feedQueueUtilization = m.gauge("feed_queue_utilization_ratio", "Change feed queue utilization (size / capacity)")
	m.feedEnqueued = m.counter("feed_enqueue_total", "Changes enqueued")
	m.feedDequeued = m.counter("feed_dequeue_total", "Changes dequeued")
	m.feedDropped = m.counterVec("feed_dropped_total", "Changes dropped before relay", "reason")

	m.workerActiveCount = m.gauge("worker_active_count", "Relay workers running")
	m.workerMessagesPerSecond = m.gauge("worker_messages_per_second", "Average changes relayed per second")
	m.workerProcessingLatency = m.histogram("worker_processing_latency_milliseconds", "Relay latency per change in milliseconds")
	m.workerErrors = m.counter("worker_errors_total", "Relay failures")

	m.notificationsPublished = m.counterVec("notifications_published_total", "GameUpdated notifications published", "source")
	m.notificationsDropped = m.counterVec("notifications_dropped_total", "GameUpdated notifications not delivered", "source", "reason")
	m.openerSignals = m.counterVec("opener_signals_total", "Opener relay signals", "result")
	m.activeDisplays = m.gauge("active_displays", "Open game displays")
	m.subscribers = m.gauge("subscribers", "Live broker subscriptions")
	m.displayRefreshes = m.counterVec("display_refresh_total", "Display revalidations", "trigger")

	m.httpRequests = m.counterVec("http_requests_total", "HTTP requests by endpoint and method", "endpoint", "method", "status_code")
	m.httpRequestDuration = m.histogramVec("http_request_duration_milliseconds", "HTTP request duration in milliseconds", "endpoint", "method", "status_code")

	m.errorRateByComponent = m.counterVec("errors_by_component_total", "Errors by component", "component", "error_type")
	m.errorRateByType = m.counterVec("errors_by_type_total", "Errors by type", "error_type", "severity")
	m.errorRateByEndpoint = m.counterVec("errors_by_endpoint_total", "Errors by endpoint", "endpoint", "method", "error_type")
	m.errorLatency = m.histogramVec("error_latency_milliseconds", "Latency of operations that resulted in errors", "component", "error_type")

	m.systemMemoryUsage = m.gauge("system_memory_usage_bytes", "Heap bytes allocated")
	m.systemGoroutineCount = m.gauge("system_goroutine_count", "Number of goroutines")
	m.systemGCPauseTime = promauto.With(m.registry).NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "system_gc_pause_time_milliseconds",
		Help:      "Average GC pause time in milliseconds",
		Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 25, 50, 100, 250, 500, 1000},
	})
}

// Recording.

// RecordEventRecorded counts n committed events of kind.
func RecordEventRecorded(kind string, n int) {
	globalManager.eventsRecorded.WithLabelValues(kind).Add(float64(n))
}

// RecordEventRejected counts a request refused for reason.
func RecordEventRejected(reason string) {
	globalManager.eventsRejected.WithLabelValues(reason).Inc()
}

// RecordEventDuplicate counts a replayed request.
func RecordEventDuplicate() {
	globalManager.eventsDuplicate.Inc()
}

// RecordStoreWriteError counts a failed store write.
func RecordStoreWriteError() {
	globalManager.storeWriteErrors.Inc()
}

// RecordStoreLatency records the latency of a store operation.
func RecordStoreLatency(op string, latencyMs float64) {
	globalManager.storeLatency.WithLabelValues(op).Observe(latencyMs)
}

// RecordAggregationLatency records box score derivation time.
func RecordAggregationLatency(latencyMs float64) {
	globalManager.aggregationLatency.Observe(latencyMs)
}

// UpdateActiveControllers sets the number of open controllers.
func UpdateActiveControllers(count int) {
	globalManager.activeControllers.Set(float64(count))
}

// Change feed queue.

// UpdateFeedQueueSize sets the current queue size.
func UpdateFeedQueueSize(size int) {
	globalManager.feedQueueSize.Set(float64(size))
}

// UpdateFeedQueueCapacity sets the queue capacity.
func UpdateFeedQueueCapacity(capacity int) {
	globalManager.feedQueueCapacity.Set(float64(capacity))
}

// UpdateFeedQueueUtilization sets the queue utilization ratio.
func UpdateFeedQueueUtilization(ratio float64) {
	globalManager.feedQueueUtilization.Set(ratio)
}

// RecordFeedEnqueue counts an enqueued change.
func RecordFeedEnqueue() {
	globalManager.feedEnqueued.Inc()
}

// RecordFeedDequeue counts a dequeued change.
func RecordFeedDequeue() {
	globalManager.feedDequeued.Inc()
}

// RecordFeedDropped counts a change that never reached a worker.
func RecordFeedDropped(reason string) {
	globalManager.feedDropped.WithLabelValues(reason).Inc()
}

// Relay workers.

// UpdateWorkerActiveCount sets the number of running relay workers.
func UpdateWorkerActiveCount(count int) {
	globalManager.workerActiveCount.Set(float64(count))
}

// UpdateWorkerMessagesPerSecond sets the average relay rate.
func UpdateWorkerMessagesPerSecond(rate float64) {
	globalManager.workerMessagesPerSecond.Set(rate)
}

// RecordWorkerProcessingLatency records relay latency for one change.
func RecordWorkerProcessingLatency(latencyMs float64) {
	globalManager.workerProcessingLatency.Observe(latencyMs)
}

// RecordWorkerError counts a relay failure.
func RecordWorkerError() {
	globalManager.workerErrors.Inc()
}

// Sync channel.

// RecordNotificationPublished counts a published GameUpdated.
func RecordNotificationPublished(source string) {
	globalManager.notificationsPublished.WithLabelValues(source).Inc()
}

// RecordNotificationDropped counts an undelivered GameUpdated.
func RecordNotificationDropped(source, reason string) {
	globalManager.notificationsDropped.WithLabelValues(source, reason).Inc()
}

// RecordOpenerSignal counts an opener relay signal.
func RecordOpenerSignal(delivered bool) {
	result := "dropped"
	if delivered {
		result = "delivered"
	}
	globalManager.openerSignals.WithLabelValues(result).Inc()
}

// IncActiveDisplays counts an opened display.
func IncActiveDisplays() {
	globalManager.activeDisplays.Inc()
}

// DecActiveDisplays counts a closed display.
func DecActiveDisplays() {
	globalManager.activeDisplays.Dec()
}

// UpdateSubscriberCount sets the number of live broker subscriptions.
func UpdateSubscriberCount(count int) {
	globalManager.subscribers.Set(float64(count))
}

// RecordDisplayRefresh counts a display revalidation by trigger.
func RecordDisplayRefresh(trigger string) {
	globalManager.displayRefreshes.WithLabelValues(trigger).Inc()
}

// HTTP.

// RecordHTTPRequest records an HTTP request.
func RecordHTTPRequest(endpoint, method, statusCode string) {
	globalManager.httpRequests.WithLabelValues(endpoint, method, statusCode).Inc()
}

// RecordHTTPRequestDuration records HTTP request duration.
func RecordHTTPRequestDuration(endpoint, method, statusCode string, duration float64) {
	globalManager.httpRequestDuration.WithLabelValues(endpoint, method, statusCode).Observe(duration)
}

// Errors.

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

// System.

// UpdateSystemMemoryUsage sets the heap usage in bytes.
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

// SampleRuntime reads runtime stats into the system gauges.
func SampleRuntime() {
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)
	UpdateSystemMemoryUsage(ms.Alloc)
	UpdateSystemGoroutineCount(runtime.NumGoroutine())
	if ms.NumGC > 0 {
		RecordSystemGCPauseTime(float64(ms.PauseTotalNs) / float64(ms.NumGC) / nanosecondsPerMillisecond)
	}
}

// GetRegistry returns the custom Prometheus registry used by our metrics.
func GetRegistry() *prometheus.Registry {
	return customRegistry
}
