package metrics

import (
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds Prometheus counters and gauges for the orchestrator.
// A nil *Metrics records nothing, so components can run without metrics
// (e.g. in tests).
type Metrics struct {
	registry           *prometheus.Registry
	requestsTotal      prometheus.Counter
	errorsTotal        prometheus.Counter
	batchesTotal       prometheus.Counter
	commandsDispatched prometheus.Counter
	pendingCommands    prometheus.Gauge
	syncEventsTotal    prometheus.Counter
	rcSendErrors       *prometheus.CounterVec
	queryTimeouts      prometheus.Counter
}

// New creates and registers Prometheus metrics for the orchestrator.
func New() *Metrics {
	registry := prometheus.NewRegistry()

	requestsTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "vlcsync_requests_total",
		Help: "Total number of HTTP requests received",
	})
	errorsTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "vlcsync_errors_total",
		Help: "Total number of HTTP responses with error status (4xx or 5xx)",
	})
	batchesTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "vlcsync_batches_total",
		Help: "Total number of command batches accepted from all sources",
	})
	commandsDispatched := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "vlcsync_commands_dispatched_total",
		Help: "Total number of commands broadcast by the dispatcher",
	})
	pendingCommands := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "vlcsync_pending_commands",
		Help: "Number of deferred commands waiting for their due time",
	})
	syncEventsTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "vlcsync_sync_events_total",
		Help: "Total number of master timestamps relayed as seek",
	})
	rcSendErrors := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "vlcsync_rc_send_errors_total",
		Help: "Total number of failed RC sends per instance",
	}, []string{"instance"})
	queryTimeouts := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "vlcsync_query_timeouts_total",
		Help: "Total number of master clock queries that got no answer in time",
	})

	registry.MustRegister(
		requestsTotal,
		errorsTotal,
		batchesTotal,
		commandsDispatched,
		pendingCommands,
		syncEventsTotal,
		rcSendErrors,
		queryTimeouts,
	)

	return &Metrics{
		registry:           registry,
		requestsTotal:      requestsTotal,
		errorsTotal:        errorsTotal,
		batchesTotal:       batchesTotal,
		commandsDispatched: commandsDispatched,
		pendingCommands:    pendingCommands,
		syncEventsTotal:    syncEventsTotal,
		rcSendErrors:       rcSendErrors,
		queryTimeouts:      queryTimeouts,
	}
}

// IncRequests increments the total request counter.
func (m *Metrics) IncRequests() {
	if m == nil {
		return
	}
	m.requestsTotal.Inc()
}

// IncErrors increments the errors counter.
func (m *Metrics) IncErrors() {
	if m == nil {
		return
	}
	m.errorsTotal.Inc()
}

// IncBatches increments the accepted batches counter.
func (m *Metrics) IncBatches() {
	if m == nil {
		return
	}
	m.batchesTotal.Inc()
}

// AddCommandsDispatched adds n broadcast commands.
func (m *Metrics) AddCommandsDispatched(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.commandsDispatched.Add(float64(n))
}

// SetPendingCommands sets the deferred commands gauge.
func (m *Metrics) SetPendingCommands(n int) {
	if m == nil {
		return
	}
	m.pendingCommands.Set(float64(n))
}

// IncSyncEvents increments the relayed master timestamp counter.
func (m *Metrics) IncSyncEvents() {
	if m == nil {
		return
	}
	m.syncEventsTotal.Inc()
}

// IncRCSendErrors increments the failed send counter of one instance.
func (m *Metrics) IncRCSendErrors(instance int) {
	if m == nil {
		return
	}
	m.rcSendErrors.WithLabelValues(strconv.Itoa(instance)).Inc()
}

// IncQueryTimeouts increments the clock query timeout counter.
func (m *Metrics) IncQueryTimeouts() {
	if m == nil {
		return
	}
	m.queryTimeouts.Inc()
}

// Handler returns an http.Handler that serves Prometheus metrics.
// updateGauges is called before each scrape to refresh gauge values.
func (m *Metrics) Handler(updateGauges func()) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if updateGauges != nil {
			updateGauges()
		}
		promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{}).ServeHTTP(w, r)
	})
}
