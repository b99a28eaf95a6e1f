package main

import (
	"context"
	"database/sql"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/gorilla/mux"
	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/lnkhq/fedgate/pkg/config"
	"github.com/lnkhq/fedgate/pkg/httputil"
	"github.com/lnkhq/fedgate/pkg/ldapauth"
	"github.com/lnkhq/fedgate/pkg/observability"
	"github.com/lnkhq/fedgate/pkg/oidc"
	"github.com/lnkhq/fedgate/pkg/saml"
	"github.com/lnkhq/fedgate/pkg/sso"
	"github.com/lnkhq/fedgate/pkg/teams"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger := observability.NewLogger(cfg.Observability.LogLevel, os.Stdout)

	db, err := sql.Open("postgres", cfg.Database.URL)
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	defer db.Close()
	db.SetMaxOpenConns(cfg.Database.MaxOpenConns)
	db.SetMaxIdleConns(cfg.Database.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.Database.ConnMaxLifetime)

	if err := db.Ping(); err != nil {
		log.Fatalf("Failed to ping database: %v", err)
	}

	if err := sso.RunMigrations(context.Background(), db); err != nil {
		log.Fatalf("Failed to run migrations: %v", err)
	}

	// Flow state lives in Redis when configured so login flows survive
	// restarts and are shared across replicas. A single instance can run
	// on the in-memory store.
	var redisClient *redis.Client
	var flows sso.FlowStore
	if cfg.Redis.Addr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer redisClient.Close()
		flows = sso.NewRedisFlowStore(redisClient)
		logger.WithField("addr", cfg.Redis.Addr).Info("using redis flow store")
	} else {
		flows = sso.NewMemoryFlowStore(cfg.Gateway.FlowStoreSize)
		logger.Info("using in-memory flow store")
	}

	configs := sso.NewStore(db)
	sessions := sso.NewSessionStore(db)

	samlEngine := saml.NewEngine(cfg.Gateway.SPEntityID, cfg.Gateway.BaseURL)
	oidcEngine := oidc.NewEngine(cfg.Gateway.BaseURL, cfg.Gateway.OIDCTimeout)
	ldapEngine := ldapauth.NewEngine(cfg.Gateway.LDAPTimeout)
	users := teams.NewService(db)

	service := sso.NewService(configs, sessions, flows,
		samlEngine, oidcEngine, ldapEngine, users, cfg.Gateway.SPEntityID, logger)

	registry := prometheus.NewRegistry()
	metrics := observability.NewMetrics(registry)

	router := mux.NewRouter()
	sso.NewHandlers(service, logger, metrics).RegisterRoutes(router)

	middlewares := []func(http.Handler) http.Handler{
		httputil.RequestIDMiddleware,
		httputil.LoggingMiddleware(logger),
		httputil.RecoveryMiddleware(logger),
		httputil.MaxBytesMiddleware(cfg.Server.MaxBodyBytes),
	}
	if len(cfg.Server.CORSOrigins) > 0 {
		middlewares = append(middlewares, httputil.CORSMiddleware(cfg.Server.CORSOrigins))
	}
	if cfg.Observability.MetricsEnabled {
		middlewares = append(middlewares, observability.HTTPMetricsMiddleware(metrics))
	}
	handler := httputil.Chain(middlewares...)(router)

	server := &http.Server{
		Addr:         cfg.Server.Host + ":" + cfg.Server.Port,
		Handler:      handler,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	// Health and metrics on a separate port for probes and scraping.
	healthMux := http.NewServeMux()
	observability.RegisterHealthRoutes(healthMux, observability.NewHealthChecker(db, redisClient))
	if cfg.Observability.MetricsEnabled {
		observability.RegisterMetricsEndpoint(healthMux, registry)
	}
	healthServer := &http.Server{
		Addr:    cfg.Server.Host + ":" + cfg.Server.HealthPort,
		Handler: healthMux,
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go reapSessions(ctx, sessions, db, metrics, cfg.Gateway.SessionReapInterval, logger)

	go func() {
		logger.WithField("addr", healthServer.Addr).Info("health server listening")
		if err := healthServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Health server failed: %v", err)
		}
	}()

	go func() {
		logger.WithField("addr", server.Addr).Info("federation gateway listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server failed: %v", err)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	logger.Info("shutting down")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Error("server shutdown failed")
	}
	if err := healthServer.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Error("health server shutdown failed")
	}

	logger.Info("gateway stopped")
}

// reapSessions periodically removes expired sessions and refreshes the
// session and connection-pool gauges.
func reapSessions(ctx context.Context, sessions *sso.PostgresSessionStore, db *sql.DB,
	metrics *observability.Metrics, interval time.Duration, logger *observability.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			removed, err := sessions.DeleteExpired()
			if err != nil {
				logger.WithError(err).Error("session reap failed")
				continue
			}
			if removed > 0 {
				logger.WithField("removed", removed).Info("reaped expired sessions")
			}

			if active, err := sessions.CountActive(); err == nil {
				metrics.SessionsActive.Set(float64(active))
			}
			stats := db.Stats()
			metrics.DBConnectionsActive.Set(float64(stats.InUse))
			metrics.DBConnectionsIdle.Set(float64(stats.Idle))
		}
	}
}
