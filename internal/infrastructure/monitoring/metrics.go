package monitoring

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics. Every recorder is nil-safe so
// components can be constructed without a collector.
type Metrics struct {
	registry *prometheus.Registry

	// HTTP metrics
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec

	// Bridge call metrics
	CallsTotal   *prometheus.CounterVec
	CallDuration *prometheus.HistogramVec
	PendingCalls prometheus.Gauge
	EngineInits  *prometheus.CounterVec

	// Event metrics
	EventsDispatched *prometheus.CounterVec
	ListenerFailures prometheus.Counter
	Listeners        prometheus.Gauge

	// Shim metrics
	TimersActive      prometheus.Gauge
	NetworkOperations *prometheus.CounterVec

	// Frame metrics
	FrameRequests   *prometheus.CounterVec
	PageConnections prometheus.Gauge
	SessionBindings prometheus.Gauge

	// System metrics
	Uptime    prometheus.Gauge
	startTime time.Time

	snapshot Snapshot
	mu       sync.RWMutex
}

// Snapshot holds current metric values for the JSON health endpoint
type Snapshot struct {
	TotalCalls      int64
	FailedCalls     int64
	EventsDelivered int64
	ActivePages     int64
}

// NewMetrics creates a collector with its own registry so several engines
// (and tests) can coexist in one process
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())
	factory := promauto.With(reg)

	m := &Metrics{
		registry:  reg,
		startTime: time.Now(),

		RequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "walletkit_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		RequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "walletkit_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
			[]string{"method", "path"},
		),

		CallsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "walletkit_bridge_calls_total",
				Help: "Total number of correlated bridge calls by outcome",
			},
			[]string{"method", "status"},
		),
		CallDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "walletkit_bridge_call_duration_seconds",
				Help:    "Bridge call duration in seconds",
				Buckets: []float64{.0005, .001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 30},
			},
			[]string{"method"},
		),
		PendingCalls: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "walletkit_bridge_pending_calls",
				Help: "Calls awaiting a response from the script runtime",
			},
		),
		EngineInits: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "walletkit_engine_initializations_total",
				Help: "Engine initialization attempts by outcome",
			},
			[]string{"status"},
		),

		EventsDispatched: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "walletkit_events_dispatched_total",
				Help: "Typed events dispatched to listeners",
			},
			[]string{"type"},
		),
		ListenerFailures: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "walletkit_listener_failures_total",
				Help: "Listener invocations that returned an error or panicked",
			},
		),
		Listeners: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "walletkit_listeners",
				Help: "Registered event listeners",
			},
		),

		TimersActive: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "walletkit_shim_timers_active",
				Help: "Script timers currently scheduled",
			},
		),
		NetworkOperations: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "walletkit_shim_network_operations_total",
				Help: "Fetch and event-stream operations by terminal outcome",
			},
			[]string{"kind", "outcome"},
		),

		FrameRequests: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "walletkit_frame_requests_total",
				Help: "Page frame bridge requests by outcome",
			},
			[]string{"method", "outcome"},
		),
		PageConnections: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "walletkit_page_connections",
				Help: "Pages attached over the WebSocket transport",
			},
		),
		SessionBindings: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "walletkit_session_bindings",
				Help: "Session to frame affinity entries",
			},
		),

		Uptime: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "walletkit_uptime_seconds",
				Help: "Process uptime in seconds",
			},
		),
	}

	return m
}

// Handler exposes the collector's registry in Prometheus text format
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.Handler()
	}
	m.Uptime.Set(time.Since(m.startTime).Seconds())
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry returns the underlying registry
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// RecordHTTPRequest records an HTTP request
func (m *Metrics) RecordHTTPRequest(method, path, status string, duration time.Duration) {
	if m == nil {
		return
	}
	m.RequestsTotal.WithLabelValues(method, path, status).Inc()
	m.RequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// RecordHTTPStream counts a long-lived request without observing its duration
func (m *Metrics) RecordHTTPStream(method, path, status string) {
	if m == nil {
		return
	}
	m.RequestsTotal.WithLabelValues(method, path, status).Inc()
}

// RecordCall records a completed bridge call
func (m *Metrics) RecordCall(method, status string, duration time.Duration) {
	if m == nil {
		return
	}
	m.CallsTotal.WithLabelValues(method, status).Inc()
	m.CallDuration.WithLabelValues(method).Observe(duration.Seconds())

	m.mu.Lock()
	m.snapshot.TotalCalls++
	if status != StatusOK {
		m.snapshot.FailedCalls++
	}
	m.mu.Unlock()
}

// SetPendingCalls sets the pending call gauge
func (m *Metrics) SetPendingCalls(n int) {
	if m == nil {
		return
	}
	m.PendingCalls.Set(float64(n))
}

// RecordInit records an engine initialization attempt
func (m *Metrics) RecordInit(status string) {
	if m == nil {
		return
	}
	m.EngineInits.WithLabelValues(status).Inc()
}

// RecordEvent records a typed event delivered to listeners
func (m *Metrics) RecordEvent(eventType string) {
	if m == nil {
		return
	}
	m.EventsDispatched.WithLabelValues(eventType).Inc()
	m.mu.Lock()
	m.snapshot.EventsDelivered++
	m.mu.Unlock()
}

// IncListenerFailures counts an isolated listener failure
func (m *Metrics) IncListenerFailures() {
	if m == nil {
		return
	}
	m.ListenerFailures.Inc()
}

// SetListeners sets the registered listener gauge
func (m *Metrics) SetListeners(n int) {
	if m == nil {
		return
	}
	m.Listeners.Set(float64(n))
}

// SetTimersActive sets the active timer gauge
func (m *Metrics) SetTimersActive(n int) {
	if m == nil {
		return
	}
	m.TimersActive.Set(float64(n))
}

// RecordNetwork records the terminal outcome of a fetch or stream
func (m *Metrics) RecordNetwork(kind, outcome string) {
	if m == nil {
		return
	}
	m.NetworkOperations.WithLabelValues(kind, outcome).Inc()
}

// RecordFrameRequest records a routed frame request
func (m *Metrics) RecordFrameRequest(method, outcome string) {
	if m == nil {
		return
	}
	m.FrameRequests.WithLabelValues(method, outcome).Inc()
}

// IncPageConnections increments attached pages
func (m *Metrics) IncPageConnections() {
	if m == nil {
		return
	}
	m.PageConnections.Inc()
	m.mu.Lock()
	m.snapshot.ActivePages++
	m.mu.Unlock()
}

// DecPageConnections decrements attached pages
func (m *Metrics) DecPageConnections() {
	if m == nil {
		return
	}
	m.PageConnections.Dec()
	m.mu.Lock()
	m.snapshot.ActivePages--
	m.mu.Unlock()
}

// SetSessionBindings sets the affinity registry gauge
func (m *Metrics) SetSessionBindings(n int) {
	if m == nil {
		return
	}
	m.SessionBindings.Set(float64(n))
}

// GetSnapshot returns a copy of the JSON snapshot
func (m *Metrics) GetSnapshot() Snapshot {
	if m == nil {
		return Snapshot{}
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.snapshot
}

// Status labels shared by recorders
const (
	StatusOK        = "ok"
	StatusError     = "error"
	StatusTimeout   = "timeout"
	StatusDestroyed = "destroyed"
)
