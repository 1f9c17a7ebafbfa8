package engine

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics exposes engine activity to Prometheus.
type Metrics struct {
	calls       *prometheus.CounterVec
	gasRequired prometheus.Histogram
	totalSupply prometheus.Gauge
	queueDepth  prometheus.Gauge
	commitFails prometheus.Counter
}

// NewMetrics creates the engine metrics and registers them with reg.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		calls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "shiden34",
			Name:      "calls_total",
			Help:      "number of processed calls by kind, method and outcome",
		}, []string{"kind", "method", "outcome"}),
		gasRequired: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "shiden34",
			Name:      "gas_required",
			Help:      "gas required per call",
			Buckets:   prometheus.ExponentialBuckets(1_000, 4, 8),
		}),
		totalSupply: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "shiden34",
			Name:      "total_supply",
			Help:      "number of minted tokens",
		}),
		queueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "shiden34",
			Name:      "queue_depth",
			Help:      "calls waiting for the engine loop",
		}),
		commitFails: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "shiden34",
			Name:      "commit_failures_total",
			Help:      "number of transacts rolled back because the journal write failed",
		}),
	}
	err := errors.Join(
		reg.Register(m.calls),
		reg.Register(m.gasRequired),
		reg.Register(m.totalSupply),
		reg.Register(m.queueDepth),
		reg.Register(m.commitFails),
	)
	return m, err
}

func (m *Metrics) observeCall(kind, method, outcome string, gas int64) {
	if m == nil {
		return
	}
	m.calls.WithLabelValues(kind, method, outcome).Inc()
	m.gasRequired.Observe(float64(gas))
}

func (m *Metrics) setSupply(n int64) {
	if m == nil {
		return
	}
	m.totalSupply.Set(float64(n))
}

func (m *Metrics) setQueueDepth(n int) {
	if m == nil {
		return
	}
	m.queueDepth.Set(float64(n))
}

func (m *Metrics) commitFailed() {
	if m == nil {
		return
	}
	m.commitFails.Inc()
}
