package monitoring

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// RealmMonitor tracks console API traffic and realm lifecycle.
type RealmMonitor struct {
	requests        *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	activeRealms    prometheus.Gauge
	evictions       *prometheus.CounterVec
	streamClients   *prometheus.GaugeVec
}

// NewRealmMonitor creates the realm collectors and registers them on reg.
func NewRealmMonitor(reg prometheus.Registerer) *RealmMonitor {
	m := &RealmMonitor{
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Console API requests, by route and status.",
		}, []string{"realm", "method", "route", "status"}),
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Console API latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
		activeRealms: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "realm",
			Name:      "active",
			Help:      "Realms with a live cache context.",
		}),
		evictions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "realm",
			Name:      "evictions_total",
			Help:      "Realm cache contexts closed, by reason.",
		}, []string{"reason"}),
		streamClients: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "stream",
			Name:      "clients",
			Help:      "Connected push clients, by kind.",
		}, []string{"kind"}),
	}
	reg.MustRegister(m.requests, m.requestDuration, m.activeRealms, m.evictions, m.streamClients)
	return m
}

// RecordRequest counts one finished API request. route is the matched route
// template, never the raw path.
func (m *RealmMonitor) RecordRequest(realm, method, route string, status int, d time.Duration) {
	if route == "" {
		route = "unmatched"
	}
	m.requests.WithLabelValues(realm, method, route, strconv.Itoa(status)).Inc()
	m.requestDuration.WithLabelValues(method, route).Observe(d.Seconds())
}

func (m *RealmMonitor) SetActiveRealms(n int) {
	m.activeRealms.Set(float64(n))
}

func (m *RealmMonitor) RecordEviction(reason string) {
	m.evictions.WithLabelValues(reason).Inc()
}

// StreamOpened and StreamClosed track websocket and SSE clients of kind.
func (m *RealmMonitor) StreamOpened(kind string) {
	m.streamClients.WithLabelValues(kind).Inc()
}

func (m *RealmMonitor) StreamClosed(kind string) {
	m.streamClients.WithLabelValues(kind).Dec()
}
