// Package monitoring exports Prometheus metrics for the DAM configuration
// caches and the console API.
package monitoring

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/dnastack/ddap-admin/internal/infrastructure/caching/stores"
)

const namespace = "ddap_admin"

var _ stores.LoadObserver = (*CacheMonitor)(nil)

// CacheMonitor counts DAM configuration reads per realm and outcome.
type CacheMonitor struct {
	loadsIssued   *prometheus.CounterVec
	loadsFinished *prometheus.CounterVec
	loadDuration  *prometheus.HistogramVec
}

// NewCacheMonitor creates the cache collectors and registers them on reg.
func NewCacheMonitor(reg prometheus.Registerer) *CacheMonitor {
	m := &CacheMonitor{
		loadsIssued: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "loads_issued_total",
			Help:      "DAM configuration reads issued, by reason.",
		}, []string{"realm", "reason"}),
		loadsFinished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "loads_finished_total",
			Help:      "DAM configuration reads finished, by outcome.",
		}, []string{"realm", "outcome"}),
		loadDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "load_duration_seconds",
			Help:      "Time spent reading a DAM configuration document.",
			Buckets:   []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 20},
		}, []string{"realm", "outcome"}),
	}
	reg.MustRegister(m.loadsIssued, m.loadsFinished, m.loadDuration)
	return m
}

func (m *CacheMonitor) LoadIssued(realm, _ string, reason string) {
	m.loadsIssued.WithLabelValues(realm, reason).Inc()
}

func (m *CacheMonitor) LoadFinished(realm, _ string, outcome stores.LoadOutcome, d time.Duration) {
	m.loadsFinished.WithLabelValues(realm, string(outcome)).Inc()
	m.loadDuration.WithLabelValues(realm, string(outcome)).Observe(d.Seconds())
}

// NewRegistry returns a registry carrying the Go runtime and process collectors.
func NewRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

// Handler serves the metrics in reg in the Prometheus exposition format.
func Handler(reg *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg})
}
