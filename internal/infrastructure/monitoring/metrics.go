package monitoring

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics. Each Metrics owns its registry so
// several instances can coexist in one process.
type Metrics struct {
	registry *prometheus.Registry

	// HTTP metrics
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec
	RequestSize     *prometheus.HistogramVec
	ResponseSize    *prometheus.HistogramVec
	InFlight        prometheus.Gauge
	LiveSessions    prometheus.Gauge

	// Query metrics
	CompilesTotal   *prometheus.CounterVec
	CompileDuration prometheus.Histogram
	ExecutionsTotal *prometheus.CounterVec
	ExecuteDuration prometheus.Histogram
	ResultNodes     prometheus.Histogram

	// Collaborator metrics
	TreesBuilt    *prometheus.CounterVec
	TreeNodes     prometheus.Histogram
	FetchesTotal  *prometheus.CounterVec
	FetchDuration prometheus.Histogram
	Deliveries    *prometheus.CounterVec

	startTime time.Time

	// Snapshot for JSON API - track current values
	snapshot MetricsSnapshot

	mu sync.RWMutex
}

// MetricsSnapshot holds current metric values for JSON API
type MetricsSnapshot struct {
	TotalRequests   int64   `json:"total_requests"`
	TotalErrors     int64   `json:"total_errors"`
	TotalQueries    int64   `json:"total_queries"`
	QueryErrors     int64   `json:"query_errors"`
	TotalDuration   float64 `json:"total_duration_seconds"` // sum of all request durations
	RequestCount    int64   `json:"request_count"`          // count for averaging
	AverageDuration float64 `json:"average_duration_seconds"`
	UptimeSeconds   float64 `json:"uptime_seconds"`
}

// NewMetrics creates a new metrics collector with its own registry.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	factory := promauto.With(reg)

	m := &Metrics{
		registry:  reg,
		startTime: time.Now(),

		// HTTP metrics
		RequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "scrapegoat_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		RequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "scrapegoat_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
			[]string{"method", "path"},
		),
		RequestSize: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "scrapegoat_http_request_size_bytes",
				Help:    "HTTP request size in bytes",
				Buckets: []float64{100, 1000, 10000, 100000, 1000000, 10000000},
			},
			[]string{"method", "path"},
		),
		ResponseSize: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "scrapegoat_http_response_size_bytes",
				Help:    "HTTP response size in bytes",
				Buckets: []float64{100, 1000, 10000, 100000, 1000000, 10000000},
			},
			[]string{"method", "path"},
		),
		InFlight: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "scrapegoat_http_requests_in_flight",
				Help: "HTTP requests currently being served",
			},
		),
		LiveSessions: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "scrapegoat_live_sessions",
				Help: "Open live query WebSocket sessions",
			},
		),

		// Query metrics
		CompilesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "scrapegoat_query_compiles_total",
				Help: "Total number of Goatspeak compilations",
			},
			[]string{"status"},
		),
		CompileDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "scrapegoat_query_compile_duration_seconds",
				Help:    "Goatspeak compile duration in seconds",
				Buckets: []float64{.00001, .00005, .0001, .0005, .001, .005, .01},
			},
		),
		ExecutionsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "scrapegoat_query_executions_total",
				Help: "Total number of instruction list executions",
			},
			[]string{"status"},
		),
		ExecuteDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "scrapegoat_query_execute_duration_seconds",
				Help:    "Instruction list execution duration in seconds",
				Buckets: []float64{.0001, .0005, .001, .005, .01, .05, .1, .5, 1},
			},
		),
		ResultNodes: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "scrapegoat_query_result_nodes",
				Help:    "Number of nodes in each result set",
				Buckets: prometheus.ExponentialBuckets(1, 4, 8),
			},
		),

		// Collaborator metrics
		TreesBuilt: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "scrapegoat_trees_built_total",
				Help: "Total number of document trees built",
			},
			[]string{"status"},
		),
		TreeNodes: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "scrapegoat_tree_nodes",
				Help:    "Number of nodes in each built tree",
				Buckets: prometheus.ExponentialBuckets(10, 4, 8),
			},
		),
		FetchesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "scrapegoat_fetches_total",
				Help: "Total number of remote document fetches",
			},
			[]string{"status"},
		),
		FetchDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "scrapegoat_fetch_duration_seconds",
				Help:    "Remote document fetch duration in seconds",
				Buckets: []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30},
			},
		),
		Deliveries: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "scrapegoat_output_deliveries_total",
				Help: "Total number of result deliveries by format",
			},
			[]string{"format", "status"},
		),
	}

	factory.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: "scrapegoat_uptime_seconds",
			Help: "Service uptime in seconds",
		},
		func() float64 { return time.Since(m.startTime).Seconds() },
	)

	return m
}

// Registry returns the registry the metrics are registered with.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// RecordHTTPRequest records an HTTP request
func (m *Metrics) RecordHTTPRequest(method, path, status string, duration time.Duration, reqSize, respSize int64) {
	m.RequestsTotal.WithLabelValues(method, path, status).Inc()
	m.RequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
	m.RequestSize.WithLabelValues(method, path).Observe(float64(reqSize))
	m.ResponseSize.WithLabelValues(method, path).Observe(float64(respSize))

	// Update snapshot
	m.mu.Lock()
	m.snapshot.TotalRequests++
	m.snapshot.TotalDuration += duration.Seconds()
	m.snapshot.RequestCount++
	if status != "" && (status[0] == '4' || status[0] == '5') {
		m.snapshot.TotalErrors++
	}
	m.mu.Unlock()
}

// RecordCompile records a Goatspeak compilation
func (m *Metrics) RecordCompile(status string, duration time.Duration) {
	m.CompilesTotal.WithLabelValues(status).Inc()
	m.CompileDuration.Observe(duration.Seconds())
}

// RecordExecution records one instruction list execution and its result size
func (m *Metrics) RecordExecution(status string, duration time.Duration, results int) {
	m.ExecutionsTotal.WithLabelValues(status).Inc()
	m.ExecuteDuration.Observe(duration.Seconds())
	if status == StatusSuccess {
		m.ResultNodes.Observe(float64(results))
	}

	m.mu.Lock()
	m.snapshot.TotalQueries++
	if status != StatusSuccess {
		m.snapshot.QueryErrors++
	}
	m.mu.Unlock()
}

// RecordTree records a built document tree
func (m *Metrics) RecordTree(status string, nodes int) {
	m.TreesBuilt.WithLabelValues(status).Inc()
	if status == StatusSuccess {
		m.TreeNodes.Observe(float64(nodes))
	}
}

// RecordFetch records a remote fetch
func (m *Metrics) RecordFetch(status string, duration time.Duration) {
	m.FetchesTotal.WithLabelValues(status).Inc()
	m.FetchDuration.Observe(duration.Seconds())
}

// RecordDelivery records a result delivery
func (m *Metrics) RecordDelivery(format, status string) {
	m.Deliveries.WithLabelValues(format, status).Inc()
}

// Snapshot returns a copy of the current snapshot values
func (m *Metrics) Snapshot() MetricsSnapshot {
	m.mu.RLock()
	s := m.snapshot
	m.mu.RUnlock()

	if s.RequestCount > 0 {
		s.AverageDuration = s.TotalDuration / float64(s.RequestCount)
	}
	s.UptimeSeconds = time.Since(m.startTime).Seconds()
	return s
}
