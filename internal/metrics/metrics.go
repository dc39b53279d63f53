// Package metrics exposes prometheus collectors for the site context
// lifecycle. Collectors are registered on an injected registerer; a nil
// *Metrics is a valid no-op.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	namespace = "engine"
	subsystem = "site_context"
)

// Rebuild reasons used as the reason label of the rebuilds counter.
const (
	ReasonChange  = "change"
	ReasonRequest = "request"
	ReasonInvalid = "invalid"
)

// Metrics groups the lifecycle collectors.
type Metrics struct {
	live           prometheus.Gauge
	created        prometheus.Counter
	failed         prometheus.Counter
	retried        prometheus.Counter
	denied         prometheus.Counter
	destroyed      prometheus.Counter
	rebuilds       *prometheus.CounterVec
	createDuration prometheus.Histogram
}

// New creates the collectors and registers them on reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		live: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "live",
			Help:      "Number of site contexts currently registered",
		}),
		created: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "created_total",
			Help:      "Total number of site contexts created and initialized",
		}),
		failed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "create_failures_total",
			Help:      "Total number of failed context creation attempts",
		}),
		retried: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "create_retries_total",
			Help:      "Total number of context creation retries",
		}),
		denied: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "create_denied_total",
			Help:      "Total number of context creations vetoed by the entitlement check",
		}),
		destroyed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "destroyed_total",
			Help:      "Total number of site contexts destroyed",
		}),
		rebuilds: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "rebuilds_total",
			Help:      "Total number of context rebuilds by reason",
		}, []string{"reason"}),
		createDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "create_duration_seconds",
			Help:      "Time taken to build and initialize a site context",
			Buckets:   prometheus.ExponentialBuckets(0.01, 2, 12),
		}),
	}

	if reg != nil {
		reg.MustRegister(m.live, m.created, m.failed, m.retried, m.denied, m.destroyed, m.rebuilds, m.createDuration)
	}
	return m
}

// ContextCreated records a successful creation that took d.
func (m *Metrics) ContextCreated(d time.Duration) {
	if m == nil {
		return
	}
	m.created.Inc()
	m.createDuration.Observe(d.Seconds())
}

// CreateFailed records one failed creation attempt.
func (m *Metrics) CreateFailed() {
	if m == nil {
		return
	}
	m.failed.Inc()
}

// CreateRetried records one retry scheduled after a failed attempt.
func (m *Metrics) CreateRetried() {
	if m == nil {
		return
	}
	m.retried.Inc()
}

// CreateDenied records a creation vetoed by the entitlement check.
func (m *Metrics) CreateDenied() {
	if m == nil {
		return
	}
	m.denied.Inc()
}

// ContextDestroyed records one destroyed context.
func (m *Metrics) ContextDestroyed() {
	if m == nil {
		return
	}
	m.destroyed.Inc()
}

// Rebuild records a rebuild for reason.
func (m *Metrics) Rebuild(reason string) {
	if m == nil {
		return
	}
	m.rebuilds.WithLabelValues(reason).Inc()
}

// SetLive sets the number of registered contexts.
func (m *Metrics) SetLive(n int) {
	if m == nil {
		return
	}
	m.live.Set(float64(n))
}
