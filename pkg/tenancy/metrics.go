package tenancy

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the Prometheus collectors of the pool manager.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	PoolsBuilt        prometheus.Counter
	PoolBuildFailures *prometheus.CounterVec
	PoolsClosed       prometheus.Counter
	PoolsActive       prometheus.Gauge
	Switches          *prometheus.CounterVec
	RestoreFallbacks  prometheus.Counter
}

// NewMetrics creates the collectors and registers them on reg. A nil reg
// leaves them unregistered.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		PoolsBuilt: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "tenancy",
			Name:      "pools_built_total",
			Help:      "Total number of connection pools built",
		}),
		PoolBuildFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "tenancy",
			Name:      "pool_build_failures_total",
			Help:      "Total number of failed pool builds",
		}, []string{"kind"}),
		PoolsClosed: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "tenancy",
			Name:      "pools_closed_total",
			Help:      "Total number of connection pools closed",
		}),
		PoolsActive: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "tenancy",
			Name:      "pools_active",
			Help:      "Number of live connection pools",
		}),
		Switches: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "tenancy",
			Name:      "switches_total",
			Help:      "Total number of tenant switches by result",
		}, []string{"result"}),
		RestoreFallbacks: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "tenancy",
			Name:      "restore_fallbacks_total",
			Help:      "Total number of scoped switches restored to the default tenant",
		}),
	}
}

func (m *Metrics) poolBuilt() {
	if m == nil {
		return
	}
	m.PoolsBuilt.Inc()
	m.PoolsActive.Inc()
}

func (m *Metrics) poolClosed() {
	if m == nil {
		return
	}
	m.PoolsClosed.Inc()
	m.PoolsActive.Dec()
}

func (m *Metrics) buildFailed(err error) {
	if m == nil {
		return
	}
	m.PoolBuildFailures.WithLabelValues(errorKind(err)).Inc()
}

func (m *Metrics) switched(err error) {
	if m == nil {
		return
	}
	if err == nil {
		m.Switches.WithLabelValues("ok").Inc()
		return
	}
	m.Switches.WithLabelValues(errorKind(err)).Inc()
}

func (m *Metrics) restoreFallback() {
	if m == nil {
		return
	}
	m.RestoreFallbacks.Inc()
}

func errorKind(err error) string {
	switch {
	case errors.Is(err, ErrTenantNotFound):
		return "tenant_not_found"
	case errors.Is(err, ErrConfiguration):
		return "configuration"
	default:
		return "error"
	}
}
