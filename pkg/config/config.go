package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/lnkhq/fedgate/pkg/observability"
)

// Config holds all application configuration
type Config struct {
	// Server configuration
	Server ServerConfig

	// Database configuration
	Database DatabaseConfig

	// Redis configuration (optional; flow state falls back to an
	// in-memory store when no address is configured)
	Redis RedisConfig

	// Gateway configuration
	Gateway GatewayConfig

	// Observability configuration
	Observability ObservabilityConfig
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host            string
	Port            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration

	// Health/metrics server (separate port for k8s probes)
	HealthPort string

	// CORS allowed origins for the management API
	CORSOrigins []string

	// Maximum request body size in bytes
	MaxBodyBytes int64
}

// DatabaseConfig holds PostgreSQL configuration
type DatabaseConfig struct {
	URL             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// RedisConfig holds Redis connection settings for flow state
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// GatewayConfig holds federation gateway settings
type GatewayConfig struct {
	// BaseURL is the externally reachable URL of this gateway. It is
	// the base for ACS, SLO and OIDC callback endpoints.
	BaseURL string

	// SPEntityID identifies this gateway as a SAML service provider.
	// Defaults to <BaseURL>/saml/metadata.
	SPEntityID string

	// Upstream timeouts
	OIDCTimeout time.Duration
	LDAPTimeout time.Duration

	// Interval between expired-session sweeps
	SessionReapInterval time.Duration

	// Capacity of the in-memory flow store used when Redis is not
	// configured
	FlowStoreSize int
}

// ObservabilityConfig holds observability settings
type ObservabilityConfig struct {
	LogLevel       observability.LogLevel
	MetricsEnabled bool
}

// LoadConfig loads configuration from environment variables
func LoadConfig() (*Config, error) {
	cfg := &Config{
		Server:        loadServerConfig(),
		Database:      loadDatabaseConfig(),
		Redis:         loadRedisConfig(),
		Gateway:       loadGatewayConfig(),
		Observability: loadObservabilityConfig(),
	}

	if cfg.Gateway.SPEntityID == "" && cfg.Gateway.BaseURL != "" {
		cfg.Gateway.SPEntityID = strings.TrimRight(cfg.Gateway.BaseURL, "/") + "/saml/metadata"
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// loadServerConfig loads server configuration from environment
func loadServerConfig() ServerConfig {
	return ServerConfig{
		Host:            getEnv("FEDGATE_HOST", "0.0.0.0"),
		Port:            getEnv("FEDGATE_PORT", "8080"),
		ReadTimeout:     getEnvDuration("FEDGATE_READ_TIMEOUT", 15*time.Second),
		WriteTimeout:    getEnvDuration("FEDGATE_WRITE_TIMEOUT", 15*time.Second),
		IdleTimeout:     getEnvDuration("FEDGATE_IDLE_TIMEOUT", 60*time.Second),
		ShutdownTimeout: getEnvDuration("FEDGATE_SHUTDOWN_TIMEOUT", 30*time.Second),
		HealthPort:      getEnv("FEDGATE_HEALTH_PORT", "9090"),
		CORSOrigins:     splitCSV(getEnv("FEDGATE_CORS_ORIGINS", "")),
		MaxBodyBytes:    getEnvInt64("FEDGATE_MAX_BODY_BYTES", 1<<20),
	}
}

// loadDatabaseConfig loads PostgreSQL configuration from environment
func loadDatabaseConfig() DatabaseConfig {
	return DatabaseConfig{
		URL:             getEnv("FEDGATE_POSTGRES_URL", ""),
		MaxOpenConns:    getEnvInt("FEDGATE_POSTGRES_MAX_CONNS", 20),
		MaxIdleConns:    getEnvInt("FEDGATE_POSTGRES_IDLE_CONNS", 5),
		ConnMaxLifetime: getEnvDuration("FEDGATE_POSTGRES_CONN_LIFETIME", 30*time.Minute),
	}
}

// loadRedisConfig loads Redis configuration from environment
func loadRedisConfig() RedisConfig {
	return RedisConfig{
		Addr:     getEnv("FEDGATE_REDIS_ADDR", ""),
		Password: getEnv("FEDGATE_REDIS_PASSWORD", ""),
		DB:       getEnvInt("FEDGATE_REDIS_DB", 0),
	}
}

// loadGatewayConfig loads federation gateway settings from environment
func loadGatewayConfig() GatewayConfig {
	return GatewayConfig{
		BaseURL:             getEnv("FEDGATE_BASE_URL", ""),
		SPEntityID:          getEnv("FEDGATE_SP_ENTITY_ID", ""),
		OIDCTimeout:         getEnvDuration("FEDGATE_OIDC_TIMEOUT", 10*time.Second),
		LDAPTimeout:         getEnvDuration("FEDGATE_LDAP_TIMEOUT", 10*time.Second),
		SessionReapInterval: getEnvDuration("FEDGATE_SESSION_REAP_INTERVAL", 5*time.Minute),
		FlowStoreSize:       getEnvInt("FEDGATE_FLOW_STORE_SIZE", 10000),
	}
}

// loadObservabilityConfig loads observability configuration from environment
func loadObservabilityConfig() ObservabilityConfig {
	return ObservabilityConfig{
		LogLevel:       observability.ParseLevel(getEnv("FEDGATE_LOG_LEVEL", "info")),
		MetricsEnabled: getEnvBool("FEDGATE_METRICS_ENABLED", true),
	}
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Server.Port == "" {
		return fmt.Errorf("server port is required")
	}
	if c.Server.HealthPort == "" {
		return fmt.Errorf("health port is required")
	}
	if c.Server.Port == c.Server.HealthPort {
		return fmt.Errorf("server port and health port must be different")
	}

	if c.Database.URL == "" {
		return fmt.Errorf("postgres URL is required")
	}

	if c.Gateway.BaseURL == "" {
		return fmt.Errorf("base URL is required")
	}
	if !strings.HasPrefix(c.Gateway.BaseURL, "http://") && !strings.HasPrefix(c.Gateway.BaseURL, "https://") {
		return fmt.Errorf("base URL must be an absolute http(s) URL")
	}

	if c.Gateway.FlowStoreSize <= 0 {
		return fmt.Errorf("flow store size must be positive")
	}

	return nil
}

// splitCSV splits a comma-separated value, trimming whitespace and
// dropping empty entries
func splitCSV(value string) []string {
	if value == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

// getEnv returns an environment variable value or a default
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvBool returns a boolean environment variable or a default
func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return strings.ToLower(value) == "true" || value == "1"
	}
	return defaultValue
}

// getEnvInt returns an integer environment variable or a default
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// getEnvInt64 returns an int64 environment variable or a default
func getEnvInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.ParseInt(value, 10, 64); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// getEnvDuration returns a duration environment variable or a default
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
