// Package observability provides the gateway's structured JSON logging,
// Prometheus metrics, and health probes.
//
// Logging is slog-based:
//
//	logger := observability.NewLogger(observability.InfoLevel, os.Stdout)
//	logger.WithField("team_id", teamID).Info("sso login completed")
//
// Metrics are registered against a caller-owned registry:
//
//	metrics := observability.NewMetrics(registry)
//	metrics.LoginsTotal.WithLabelValues("saml", "created").Inc()
//
// Health checks probe PostgreSQL and Redis and back the /health
// endpoints served on the internal listener.
package observability
