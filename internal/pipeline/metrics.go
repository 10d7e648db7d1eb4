package pipeline

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	RejectionsTotal *prometheus.CounterVec
}

func NewMetrics() *Metrics {
	return NewMetricsWith(prometheus.DefaultRegisterer)
}

func NewMetricsWith(reg prometheus.Registerer) *Metrics {
	return &Metrics{
		RejectionsTotal: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "gatekeeper_pipeline_rejections_total",
			Help: "Requests answered early by a pipeline stage",
		}, []string{"stage", "reason"}),
	}
}

func (m *Metrics) IncrementRejections(stage, reason string) {
	if m == nil {
		return
	}
	m.RejectionsTotal.WithLabelValues(stage, reason).Inc()
}
