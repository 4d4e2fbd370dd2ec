// Package metrics provides Prometheus metrics for the bikewatch sync engine.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Manager manages all Prometheus metrics for the service.
type Manager struct {
	namespace        string
	subsystem        string
	histogramBuckets []float64
	registry         prometheus.Registerer

	// Poll cycle metrics
	cyclesTotal   *prometheus.CounterVec
	cyclesSkipped prometheus.Counter
	cycleLatency  prometheus.Histogram
	staleCycles   prometheus.Counter

	// Fetch metrics
	fetchLatency *prometheus.HistogramVec
	fetchErrors  *prometheus.CounterVec
	weatherAbsent prometheus.Counter

	// Published state
	gateLive        prometheus.Gauge
	historyPoints   prometheus.Gauge
	trimmedPoints   prometheus.Gauge
	generation      prometheus.Gauge
	lastSampleUnix  prometheus.Gauge
	discardedResult prometheus.Counter
	initializations *prometheus.CounterVec

	// Push path
	pushedSamples *prometheus.CounterVec
	queueSize     prometheus.Gauge

	// HTTP
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
	wsClients           prometheus.Gauge
}

var globalManager *Manager //nolint:gochecknoglobals // singleton metrics manager

var customRegistry = prometheus.NewRegistry() //nolint:gochecknoglobals // metrics registry

func init() { //nolint:gochecknoinits // global metrics setup
	globalManager = NewManager(WithPrometheusRegistry(customRegistry))
}

// NewManager creates a new metrics manager with default configuration.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace:        "bikewatch",
		subsystem:        "sync",
		histogramBuckets: []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000},
		registry:         prometheus.DefaultRegisterer,
	}

	for _, opt := range opts {
		opt(m)
	}

	m.initializeMetrics()
	return m
}

func (m *Manager) initializeMetrics() { //nolint:funlen // one block per metric
	auto := promauto.With(m.registry)

	m.cyclesTotal = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "poll_cycles_total",
		Help:      "Poll cycles run, by outcome",
	}, []string{"outcome"})

	m.cyclesSkipped = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "poll_cycles_skipped_total",
		Help:      "Cycles skipped because a previous cycle was still in flight",
	})

	m.cycleLatency = auto.NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "poll_cycle_latency_milliseconds",
		Help:      "Duration of one poll cycle in milliseconds",
		Buckets:   m.histogramBuckets,
	})

	m.staleCycles = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "stale_cycles_total",
		Help:      "Cycles whose failure left the last good state published",
	})

	m.fetchLatency = auto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "fetch_latency_milliseconds",
		Help:      "Remote fetch latency in milliseconds by operation",
		Buckets:   m.histogramBuckets,
	}, []string{"op"})

	m.fetchErrors = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "fetch_errors_total",
		Help:      "Remote fetch failures by operation and kind",
	}, []string{"op", "kind"})

	m.weatherAbsent = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "weather_absent_total",
		Help:      "Weather fetches that returned no data for this caller",
	})

	m.gateLive = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "gate_live",
		Help:      "1 when the live session gate is open, 0 while waiting",
	})

	m.historyPoints = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "history_points",
		Help:      "Points in the published history window",
	})

	m.trimmedPoints = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "history_trimmed_points",
		Help:      "Points in the published trimmed (mini chart) view",
	})

	m.generation = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "generation",
		Help:      "Current initialization generation of the controller",
	})

	m.lastSampleUnix = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "last_sample_timestamp_seconds",
		Help:      "Unix time of the last published sample",
	})

	m.discardedResult = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "discarded_results_total",
		Help:      "Results dropped because they arrived after unmount or a device switch",
	})

	m.initializations = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "initializations_total",
		Help:      "Initialization sequences by outcome",
	}, []string{"outcome"})

	m.pushedSamples = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "pushed_samples_total",
		Help:      "Samples pushed by the transport, by outcome",
	}, []string{"outcome"})

	m.queueSize = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "push_queue_size",
		Help:      "Pushed samples waiting for the poller",
	})

	m.httpRequests = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "http_requests_total",
		Help:      "Total number of HTTP requests by endpoint and method",
	}, []string{"endpoint", "method", "status_code"})

	m.httpRequestDuration = auto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "http_request_duration_milliseconds",
		Help:      "HTTP request duration in milliseconds",
		Buckets:   m.histogramBuckets,
	}, []string{"endpoint", "method", "status_code"})

	m.wsClients = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "websocket_clients",
		Help:      "Connected websocket snapshot subscribers",
	})
}

// RecordCycle counts a finished poll cycle with outcome "ok" or "error".
func RecordCycle(outcome string, latencyMs float64) {
	globalManager.cyclesTotal.WithLabelValues(outcome).Inc()
	globalManager.cycleLatency.Observe(latencyMs)
}

// RecordCycleSkipped increments the skipped cycle counter.
func RecordCycleSkipped() {
	globalManager.cyclesSkipped.Inc()
}

// RecordStaleCycle increments the stale cycle counter.
func RecordStaleCycle() {
	globalManager.staleCycles.Inc()
}

// RecordFetchLatency records the latency of one remote operation.
func RecordFetchLatency(op string, latencyMs float64) {
	globalManager.fetchLatency.WithLabelValues(op).Observe(latencyMs)
}

// RecordFetchError counts a failed remote operation.
func RecordFetchError(op, kind string) {
	globalManager.fetchErrors.WithLabelValues(op, kind).Inc()
}

// RecordWeatherAbsent counts a weather fetch without data.
func RecordWeatherAbsent() {
	globalManager.weatherAbsent.Inc()
}

// UpdateGateLive sets the gate gauge.
func UpdateGateLive(live bool) {
	if live {
		globalManager.gateLive.Set(1)
		return
	}
	globalManager.gateLive.Set(0)
}

// UpdateHistory sets the history window gauges.
func UpdateHistory(full, trimmed int) {
	globalManager.historyPoints.Set(float64(full))
	globalManager.trimmedPoints.Set(float64(trimmed))
}

// UpdateGeneration sets the controller generation gauge.
func UpdateGeneration(gen uint64) {
	globalManager.generation.Set(float64(gen))
}

// UpdateLastSample sets the timestamp gauge of the last published sample.
func UpdateLastSample(unixSeconds float64) {
	globalManager.lastSampleUnix.Set(unixSeconds)
}

// RecordDiscardedResult counts a late result dropped by the liveness check.
func RecordDiscardedResult() {
	globalManager.discardedResult.Inc()
}

// RecordInitialization counts an initialization sequence by outcome.
func RecordInitialization(outcome string) {
	globalManager.initializations.WithLabelValues(outcome).Inc()
}

// RecordPushedSample counts a pushed sample by outcome.
func RecordPushedSample(outcome string) {
	globalManager.pushedSamples.WithLabelValues(outcome).Inc()
}

// UpdateQueueSize sets the push queue depth.
func UpdateQueueSize(size int) {
	globalManager.queueSize.Set(float64(size))
}

// RecordHTTPRequest records an HTTP request.
func RecordHTTPRequest(endpoint, method, statusCode string) {
	globalManager.httpRequests.WithLabelValues(endpoint, method, statusCode).Inc()
}

// RecordHTTPRequestDuration records HTTP request duration.
func RecordHTTPRequestDuration(endpoint, method, statusCode string, duration float64) {
	globalManager.httpRequestDuration.WithLabelValues(endpoint, method, statusCode).Observe(duration)
}

// UpdateWebsocketClients sets the websocket subscriber gauge.
func UpdateWebsocketClients(n int) {
	globalManager.wsClients.Set(float64(n))
}

// GetRegistry returns the custom Prometheus registry used by our metrics.
func GetRegistry() *prometheus.Registry {
	return customRegistry
}
