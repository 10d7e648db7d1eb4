package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	ChecksTotal            *prometheus.CounterVec
	ProgressiveBansTotal   prometheus.Counter
	ProgressiveBanSeconds  prometheus.Histogram
	GlobalThrottledTotal   prometheus.Counter
	StoreCircuitOpen       *prometheus.GaugeVec
	CleanupRunsTotal       *prometheus.CounterVec
	CleanupSweptTotal      *prometheus.CounterVec
	CleanupDurationSeconds prometheus.Histogram
	TrackedKeys            *prometheus.GaugeVec
}

func New() *Metrics {
	return NewWith(prometheus.DefaultRegisterer)
}

// NewWith registers the collectors on reg.
func NewWith(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		ChecksTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "gatekeeper_ratelimit_checks_total",
			Help: "Rate limit checks by policy and outcome",
		}, []string{"policy", "outcome"}),
		ProgressiveBansTotal: f.NewCounter(prometheus.CounterOpts{
			Name: "gatekeeper_ratelimit_progressive_bans_total",
			Help: "Total number of temporary bans issued by the progressive limiter",
		}),
		ProgressiveBanSeconds: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "gatekeeper_ratelimit_progressive_ban_seconds",
			Help:    "Length of issued progressive bans in seconds",
			Buckets: []float64{60, 120, 240, 480, 960, 1920, 3840, 7680, 15360, 30720, 61440, 86400},
		}),
		GlobalThrottledTotal: f.NewCounter(prometheus.CounterOpts{
			Name: "gatekeeper_ratelimit_global_throttled_total",
			Help: "Requests rejected by the per-instance throughput cap",
		}),
		StoreCircuitOpen: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "gatekeeper_ratelimit_store_circuit_open",
			Help: "1 while the shared counter store circuit is open",
		}, []string{"circuit"}),
		CleanupRunsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "gatekeeper_ratelimit_cleanup_runs_total",
			Help: "Total number of cleanup runs",
		}, []string{"status"}),
		CleanupSweptTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "gatekeeper_ratelimit_cleanup_swept_total",
			Help: "Entries removed by the cleanup worker",
		}, []string{"kind"}),
		CleanupDurationSeconds: f.NewHistogram(prometheus.HistogramOpts{
			Name: "gatekeeper_ratelimit_cleanup_duration_seconds",
			Help: "Duration of cleanup runs in seconds",
		}),
		TrackedKeys: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "gatekeeper_ratelimit_tracked_keys",
			Help: "Keys currently held by process-local stores",
		}, []string{"kind"}),
	}
}

func (m *Metrics) RecordCheck(policy string, allowed bool) {
	outcome := "allowed"
	if !allowed {
		outcome = "rejected"
	}
	m.ChecksTotal.WithLabelValues(policy, outcome).Inc()
}

func (m *Metrics) RecordBan(seconds float64) {
	m.ProgressiveBansTotal.Inc()
	m.ProgressiveBanSeconds.Observe(seconds)
}

func (m *Metrics) IncrementGlobalThrottled() {
	m.GlobalThrottledTotal.Inc()
}

func (m *Metrics) SetCircuitOpen(circuit string, open bool) {
	v := 0.0
	if open {
		v = 1
	}
	m.StoreCircuitOpen.WithLabelValues(circuit).Set(v)
}

func (m *Metrics) IncrementCleanupRuns(status string) {
	m.CleanupRunsTotal.WithLabelValues(status).Inc()
}

func (m *Metrics) AddCleanupSwept(kind string, count int) {
	m.CleanupSweptTotal.WithLabelValues(kind).Add(float64(count))
}

func (m *Metrics) ObserveCleanupDuration(durationSeconds float64) {
	m.CleanupDurationSeconds.Observe(durationSeconds)
}

func (m *Metrics) SetTrackedKeys(kind string, count int) {
	m.TrackedKeys.WithLabelValues(kind).Set(float64(count))
}
