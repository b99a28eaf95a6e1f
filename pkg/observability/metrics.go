package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics
type Metrics struct {
	// HTTP metrics
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// Login flow metrics
	LoginsTotal        *prometheus.CounterVec
	LoginFailuresTotal *prometheus.CounterVec
	FlowsStartedTotal  *prometheus.CounterVec

	// Configuration lifecycle metrics
	ConfigOperationsTotal *prometheus.CounterVec

	// Discovery metrics
	DiscoveryLookupsTotal *prometheus.CounterVec

	// Directory sync metrics
	SyncedUsersTotal *prometheus.CounterVec

	// Session metrics
	SessionsActive prometheus.Gauge

	// Database metrics
	DBConnectionsActive prometheus.Gauge
	DBConnectionsIdle   prometheus.Gauge
}

// NewMetrics creates and registers all Prometheus metrics
func NewMetrics(registry *prometheus.Registry) *Metrics {
	m := &Metrics{
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fedgate_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "fedgate_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),

		LoginsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fedgate_logins_total",
				Help: "Completed logins by provider and provisioning outcome",
			},
			[]string{"provider", "outcome"},
		),
		LoginFailuresTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fedgate_login_failures_total",
				Help: "Rejected logins by provider",
			},
			[]string{"provider"},
		),
		FlowsStartedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fedgate_login_flows_started_total",
				Help: "Initiated login flows by provider",
			},
			[]string{"provider"},
		),

		ConfigOperationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fedgate_config_operations_total",
				Help: "SSO configuration lifecycle operations",
			},
			[]string{"operation"},
		),

		DiscoveryLookupsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fedgate_discovery_lookups_total",
				Help: "Email domain discovery lookups by result",
			},
			[]string{"result"},
		),

		SyncedUsersTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fedgate_synced_users_total",
				Help: "Users processed by directory sync, by outcome",
			},
			[]string{"outcome"},
		),

		SessionsActive: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "fedgate_sessions_active",
				Help: "Number of live gateway sessions",
			},
		),

		DBConnectionsActive: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "fedgate_db_connections_active",
				Help: "Number of active database connections",
			},
		),
		DBConnectionsIdle: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "fedgate_db_connections_idle",
				Help: "Number of idle database connections",
			},
		),
	}

	registry.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.LoginsTotal,
		m.LoginFailuresTotal,
		m.FlowsStartedTotal,
		m.ConfigOperationsTotal,
		m.DiscoveryLookupsTotal,
		m.SyncedUsersTotal,
		m.SessionsActive,
		m.DBConnectionsActive,
		m.DBConnectionsIdle,
	)

	return m
}

// responseWriter wraps http.ResponseWriter to capture status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// HTTPMetricsMiddleware instruments HTTP requests with Prometheus metrics
func HTTPMetricsMiddleware(metrics *Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

			next.ServeHTTP(rw, r)

			duration := time.Since(start).Seconds()
			status := strconv.Itoa(rw.statusCode)
			metrics.HTTPRequestsTotal.WithLabelValues(r.Method, r.URL.Path, status).Inc()
			metrics.HTTPRequestDuration.WithLabelValues(r.Method, r.URL.Path).Observe(duration)
		})
	}
}

// RegisterMetricsEndpoint registers the /metrics endpoint
func RegisterMetricsEndpoint(mux *http.ServeMux, registry *prometheus.Registry) {
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
}
