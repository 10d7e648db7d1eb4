// Package metrics builds the Prometheus registry served at /metrics.
package metrics

import (
	"database/sql"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// NewRegistry returns a registry carrying the Go runtime and process
// collectors plus a gatekeeper_build_info gauge. Every component registers
// its own metrics on it through NewWith / NewMetricsWith.
func NewRegistry(version, environment string) *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	promauto.With(reg).NewGauge(prometheus.GaugeOpts{
		Name:        "gatekeeper_build_info",
		Help:        "Build and environment of the running instance",
		ConstLabels: prometheus.Labels{"version": version, "environment": environment},
	}).Set(1)
	return reg
}

// RegisterDBStats exposes connection pool statistics of db under the
// go_sql_* names.
func RegisterDBStats(reg prometheus.Registerer, db *sql.DB, name string) error {
	return reg.Register(collectors.NewDBStatsCollector(db, name))
}

// Handler serves reg in the Prometheus exposition format.
func Handler(reg *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg})
}
