package datagateway

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	RetriesTotal  *prometheus.CounterVec
	FailuresTotal *prometheus.CounterVec
}

func NewMetrics() *Metrics {
	return NewMetricsWith(prometheus.DefaultRegisterer)
}

func NewMetricsWith(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		RetriesTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "gatekeeper_datagateway_retries_total",
			Help: "Retries of data operations after a transient failure",
		}, []string{"op"}),
		FailuresTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "gatekeeper_datagateway_failures_total",
			Help: "Data operations that failed for good, by failure class",
		}, []string{"op", "class"}),
	}
}

func (m *Metrics) IncrementRetries(op string) {
	if m == nil {
		return
	}
	m.RetriesTotal.WithLabelValues(op).Inc()
}

func (m *Metrics) IncrementFailures(op string, transient bool) {
	if m == nil {
		return
	}
	class := "permanent"
	if transient {
		class = "exhausted"
	}
	m.FailuresTotal.WithLabelValues(op, class).Inc()
}
