package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "verisend"

// Registry is the global Prometheus registry for all metrics.
var Registry = prometheus.NewRegistry()

// AppInfo exposes application version information as labels.
var AppInfo = promauto.With(Registry).NewGaugeVec(
	prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "app_info",
		Help:      "Application version information (always set to 1, version info in labels)",
	},
	[]string{"version", "commit", "build_date", "role"},
)

// VerificationsCreated counts verification challenges created.
var VerificationsCreated = promauto.With(Registry).NewCounter(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "verifications_created_total",
		Help:      "Total number of verification challenges created",
	},
)

// VerificationsConfirmed counts successful confirmations.
var VerificationsConfirmed = promauto.With(Registry).NewCounter(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "verifications_confirmed_total",
		Help:      "Total number of verification challenges confirmed",
	},
)

// VerificationsExpired counts records removed by the cleanup job.
var VerificationsExpired = promauto.With(Registry).NewCounter(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "verifications_expired_total",
		Help:      "Total number of expired verification records deleted by cleanup",
	},
)

// WebSocketConnections tracks currently connected WebSocket clients.
var WebSocketConnections = promauto.With(Registry).NewGauge(
	prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "websocket_connections",
		Help:      "Current number of connected WebSocket clients",
	},
)

// Init registers runtime collectors and stamps version info.
func Init(version, commit, buildDate, role string) {
	AppInfo.WithLabelValues(version, commit, buildDate, role).Set(1)
	Registry.MustRegister(collectors.NewGoCollector())
	Registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
}

// Handler serves the registry for scraping.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}
