// Package metrics wires session and dispatch observability into Prometheus
// instruments, so neither package needs to depend on this one.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics satisfies both dispatch.Hooks and session.Hooks. Each instance
// owns its own prometheus.Registry, so tests don't trip over the default
// package-global registry's "duplicate metrics collector registration
// attempted" panic when multiple servers are constructed in one process.
type Metrics struct {
	Registry *prometheus.Registry

	sessionsActive  prometheus.Gauge
	authTotal       *prometheus.CounterVec
	putsTotal       prometheus.Counter
	putsDropped     prometheus.Counter
	desyncTotal     prometheus.Counter
	dispatchRuns    prometheus.Counter
	dispatchFlushes prometheus.Histogram
}

// New builds a Metrics and registers every instrument on a fresh registry.
func New() *Metrics {
	m := &Metrics{
		Registry: prometheus.NewRegistry(),
		sessionsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "pixelwire_sessions_active",
			Help: "Number of currently authenticated sessions.",
		}),
		authTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pixelwire_auth_total",
			Help: "Authentication attempts by result.",
		}, []string{"result"}),
		putsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "pixelwire_puts_total",
			Help: "PUT messages accepted and ingested.",
		}),
		putsDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "pixelwire_puts_dropped_total",
			Help: "PUT messages discarded by the rate limiter.",
		}),
		desyncTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "pixelwire_desync_total",
			Help: "Times a session's opcode stream desynced and required a resync byte.",
		}),
		dispatchRuns: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "pixelwire_dispatch_runs_total",
			Help: "Horizontal runs produced across all dispatcher flushes.",
		}),
		dispatchFlushes: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "pixelwire_dispatch_flush_seconds",
			Help:    "Wall time spent draining, grouping, and framing one dispatcher flush.",
			Buckets: prometheus.DefBuckets,
		}),
	}

	m.Registry.MustRegister(
		m.sessionsActive,
		m.authTotal,
		m.putsTotal,
		m.putsDropped,
		m.desyncTotal,
		m.dispatchRuns,
		m.dispatchFlushes,
	)
	return m
}

// ObserveFlush implements dispatch.Hooks.
func (m *Metrics) ObserveFlush(runCount int, d time.Duration) {
	m.dispatchRuns.Add(float64(runCount))
	m.dispatchFlushes.Observe(d.Seconds())
}

// ObserveAuth implements session.Hooks. result is one of
// "ok"/"no_such_user"/"bad_otp"/"not_utf8"/"error"; a successful result also
// bumps the active-sessions gauge, since a session only authenticates once.
func (m *Metrics) ObserveAuth(result string) {
	m.authTotal.WithLabelValues(result).Inc()
	if result == "ok" {
		m.sessionsActive.Inc()
	}
}

// ObservePut implements session.Hooks.
func (m *Metrics) ObservePut() {
	m.putsTotal.Inc()
}

// ObservePutDropped implements session.Hooks.
func (m *Metrics) ObservePutDropped() {
	m.putsDropped.Inc()
}

// ObserveDesync implements session.Hooks.
func (m *Metrics) ObserveDesync() {
	m.desyncTotal.Inc()
}

// ObserveDisconnect decrements the active-sessions gauge. Not part of
// session.Hooks — a session never observes its own end from the inside, so
// the server calls this directly once Session.Run returns.
func (m *Metrics) ObserveDisconnect() {
	m.sessionsActive.Dec()
}
