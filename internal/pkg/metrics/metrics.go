package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all application metrics. Each instance owns its registry so
// tests can build as many as they like.
type Metrics struct {
	registry *prometheus.Registry

	// Minting
	NotificationsMinted *prometheus.CounterVec
	EventsSkipped       *prometheus.CounterVec

	// Feed
	LiveSessions prometheus.Gauge
	FeedReloads  prometheus.Counter

	// Name resolution
	NameLookups *prometheus.CounterVec

	// Cleanup
	CleanupDeleted *prometheus.CounterVec
	CleanupErrors  *prometheus.CounterVec

	// Change streams
	StreamRecords *prometheus.CounterVec
}

// New creates and registers all application metrics under namespace.
func New(namespace string) *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	f := promauto.With(reg)

	return &Metrics{
		registry: reg,
		NotificationsMinted: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notifications_minted_total",
			Help:      "Total number of notifications created from domain events",
		}, []string{"type"}),
		EventsSkipped: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_skipped_total",
			Help:      "Domain events that did not mint a notification",
		}, []string{"reason"}),
		LiveSessions: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "live_sessions",
			Help:      "Current number of signed-in notification sessions",
		}),
		FeedReloads: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "feed_reloads_total",
			Help:      "Full feed reloads triggered by failed optimistic writes",
		}),
		NameLookups: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "name_lookups_total",
			Help:      "Clinic name lookups by result",
		}, []string{"result"}),
		CleanupDeleted: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cleanup_deleted_total",
			Help:      "Items removed by the periodic cleanup task",
		}, []string{"kind"}),
		CleanupErrors: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cleanup_errors_total",
			Help:      "Failed cleanup passes",
		}, []string{"kind"}),
		StreamRecords: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stream_records_total",
			Help:      "Change-stream records turned into change signals",
		}, []string{"table"}),
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}
