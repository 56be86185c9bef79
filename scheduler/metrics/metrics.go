// Package metrics wires the scheduler's pass statistics into prometheus.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// DefaultListen mirrors the convention of binding metrics to localhost by
// default rather than every interface.
const DefaultListen = "127.0.0.1:9233"

// Metrics holds the prometheus collectors the scheduler updates as it runs
// passes. Use New to construct one; the zero value is not usable.
type Metrics struct {
	Listen string

	registry *prometheus.Registry

	systemsTotal prometheus.Gauge
	passesTotal  *prometheus.CounterVec
	passFailures *prometheus.CounterVec
	passNodesErr prometheus.Gauge
}

// New creates and registers the collectors against a private registry, so
// multiple Schedulers in the same process (as in tests) don't collide on
// the global default registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		Listen:   DefaultListen,
		registry: reg,
		systemsTotal: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "kernel_scheduler_systems",
			Help: "Number of systems currently registered.",
		}),
		passesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "kernel_scheduler_passes_total",
			Help: "Number of lifecycle passes run, by kind.",
		}, []string{"kind"}),
		passFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "kernel_scheduler_pass_node_failures_total",
			Help: "Number of per-system failures observed during passes, by pass kind.",
		}, []string{"kind"}),
		passNodesErr: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "kernel_scheduler_systems_err",
			Help: "Number of systems that ended the most recent pass in ERR status.",
		}),
	}
	reg.MustRegister(m.systemsTotal, m.passesTotal, m.passFailures, m.passNodesErr)
	return m
}

// SetSystemsTotal updates the registered-system gauge.
func (m *Metrics) SetSystemsTotal(n int) {
	m.systemsTotal.Set(float64(n))
}

// ObservePass records one completed pass and how many nodes in it failed.
func (m *Metrics) ObservePass(kind string, failures int) {
	m.passesTotal.WithLabelValues(kind).Inc()
	if failures > 0 {
		m.passFailures.WithLabelValues(kind).Add(float64(failures))
	}
	m.passNodesErr.Set(float64(failures))
}

// Handler returns an http.Handler serving this Metrics' collectors in the
// prometheus exposition format, suitable for mounting at /metrics.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Serve starts an HTTP server exposing the metrics handler and blocks until
// it errors or the process exits. Callers typically run this in a goroutine.
func (m *Metrics) Serve() error {
	listen := m.Listen
	if listen == "" {
		listen = DefaultListen
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	return http.ListenAndServe(listen, mux)
}
