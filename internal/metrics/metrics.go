package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "accessmon"

// NewRegistry creates a Prometheus registry with Go runtime and process collectors.
func NewRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())
	reg.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	return reg
}

// Handler returns an http.Handler that serves Prometheus metrics.
func Handler(reg *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
}

// Session end reasons.
const (
	EndReasonLogout   = "logout"
	EndReasonShutdown = "shutdown"
)

// Metrics holds the registry and ledger instruments. A nil *Metrics is
// valid and records nothing, so components can be built without one.
type Metrics struct {
	reg prometheus.Registerer

	UsersRegistered prometheus.Counter
	UsersRemoved    prometheus.Counter
	SessionsStarted prometheus.Counter
	SessionsEnded   *prometheus.CounterVec
	SessionsPurged  prometheus.Counter
	PurgesPending   prometheus.Gauge
	PurgeFailures   prometheus.Counter
}

// New creates the domain metrics and registers them on reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		reg: reg,
		UsersRegistered: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "registry",
			Name:      "users_registered_total",
			Help:      "Users added to the access registry.",
		}),
		UsersRemoved: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "registry",
			Name:      "users_removed_total",
			Help:      "Users removed from the access registry.",
		}),
		SessionsStarted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ledger",
			Name:      "sessions_started_total",
			Help:      "Sessions created by login.",
		}),
		SessionsEnded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ledger",
			Name:      "sessions_ended_total",
			Help:      "Sessions completed, by reason (logout/shutdown).",
		}, []string{"reason"}),
		SessionsPurged: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ledger",
			Name:      "sessions_purged_total",
			Help:      "Session records deleted because their user was removed.",
		}),
		PurgesPending: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "ledger",
			Name:      "purges_pending",
			Help:      "Removed users whose sessions still await a successful purge.",
		}),
		PurgeFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ledger",
			Name:      "purge_failures_total",
			Help:      "Failed session purge attempts.",
		}),
	}

	reg.MustRegister(
		m.UsersRegistered,
		m.UsersRemoved,
		m.SessionsStarted,
		m.SessionsEnded,
		m.SessionsPurged,
		m.PurgesPending,
		m.PurgeFailures,
	)
	return m
}

// ObserveRegistry exports the registry's size and capacity as gauges read
// at scrape time.
func (m *Metrics) ObserveRegistry(size, capacity func() int) {
	if m == nil {
		return
	}
	m.reg.MustRegister(
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "registry",
			Name:      "users",
			Help:      "Users currently in the access registry.",
		}, func() float64 { return float64(size()) }),
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "registry",
			Name:      "capacity",
			Help:      "Current capacity of the access registry.",
		}, func() float64 { return float64(capacity()) }),
	)
}

func (m *Metrics) UserRegistered() {
	if m != nil {
		m.UsersRegistered.Inc()
	}
}

func (m *Metrics) UserRemoved() {
	if m != nil {
		m.UsersRemoved.Inc()
	}
}

func (m *Metrics) SessionStarted() {
	if m != nil {
		m.SessionsStarted.Inc()
	}
}

func (m *Metrics) SessionsEndedBy(reason string, n int64) {
	if m != nil && n > 0 {
		m.SessionsEnded.WithLabelValues(reason).Add(float64(n))
	}
}

func (m *Metrics) Purged(n int64) {
	if m != nil && n > 0 {
		m.SessionsPurged.Add(float64(n))
	}
}

func (m *Metrics) PurgeFailed() {
	if m != nil {
		m.PurgeFailures.Inc()
	}
}

func (m *Metrics) SetPurgesPending(n int) {
	if m != nil {
		m.PurgesPending.Set(float64(n))
	}
}
