package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/heimdallid/heimdall/pkg/observability"
)

// Config holds all Heimdall configuration.
type Config struct {
	Server        ServerConfig
	Database      DatabaseConfig
	Cache         CacheConfig
	Audit         AuditConfig
	Observability ObservabilityConfig
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Host            string
	Port            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration

	// Health/metrics server (separate port for k8s probes)
	HealthPort string
}

// DatabaseConfig holds PostgreSQL configuration.
type DatabaseConfig struct {
	URL          string
	MaxOpenConns int
	MaxIdleConns int
	ConnLifetime time.Duration
}

// CacheConfig selects and tunes the authorization cache.
type CacheConfig struct {
	// Backend is "redis", "memory" or "none".
	Backend       string
	RedisURL      string
	RedisPassword string
	RedisDB       int
	TTL           time.Duration
	MemoryEntries int
}

// AuditConfig selects audit sinks.
type AuditConfig struct {
	// DBEnabled writes events to the audit_events table.
	DBEnabled bool
	// FilePath, when set, additionally writes NDJSON events there.
	FilePath string
	// Retention prunes database events older than this; zero disables.
	Retention time.Duration
}

// ObservabilityConfig holds observability settings.
type ObservabilityConfig struct {
	LogLevel       observability.LogLevel
	MetricsEnabled bool
}

// LoadConfig loads configuration from environment variables.
func LoadConfig() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Host:            getEnv("HEIMDALL_HOST", "0.0.0.0"),
			Port:            getEnv("HEIMDALL_PORT", "8080"),
			ReadTimeout:     getEnvDuration("HEIMDALL_READ_TIMEOUT", 15*time.Second),
			WriteTimeout:    getEnvDuration("HEIMDALL_WRITE_TIMEOUT", 15*time.Second),
			IdleTimeout:     getEnvDuration("HEIMDALL_IDLE_TIMEOUT", 60*time.Second),
			ShutdownTimeout: getEnvDuration("HEIMDALL_SHUTDOWN_TIMEOUT", 30*time.Second),
			HealthPort:      getEnv("HEIMDALL_HEALTH_PORT", "9090"),
		},
		Database: DatabaseConfig{
			URL:          getEnv("HEIMDALL_POSTGRES_URL", ""),
			MaxOpenConns: getEnvInt("HEIMDALL_POSTGRES_MAX_CONNS", 25),
			MaxIdleConns: getEnvInt("HEIMDALL_POSTGRES_IDLE_CONNS", 5),
			ConnLifetime: getEnvDuration("HEIMDALL_POSTGRES_CONN_LIFETIME", 30*time.Minute),
		},
		Cache: CacheConfig{
			Backend:       getEnv("HEIMDALL_CACHE_BACKEND", "memory"),
			RedisURL:      getEnv("HEIMDALL_REDIS_URL", "redis://localhost:6379/0"),
			RedisPassword: getEnv("HEIMDALL_REDIS_PASSWORD", ""),
			RedisDB:       getEnvInt("HEIMDALL_REDIS_DB", -1),
			TTL:           getEnvDuration("HEIMDALL_CACHE_TTL", 30*time.Second),
			MemoryEntries: getEnvInt("HEIMDALL_CACHE_MEMORY_ENTRIES", 16384),
		},
		Audit: AuditConfig{
			DBEnabled: getEnvBool("HEIMDALL_AUDIT_DB_ENABLED", true),
			FilePath:  getEnv("HEIMDALL_AUDIT_FILE_PATH", ""),
			Retention: getEnvDuration("HEIMDALL_AUDIT_RETENTION", 0),
		},
		Observability: ObservabilityConfig{
			LogLevel:       parseLogLevel(getEnv("HEIMDALL_LOG_LEVEL", "info")),
			MetricsEnabled: getEnvBool("HEIMDALL_METRICS_ENABLED", true),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// Validate checks if the configuration is valid.
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

	switch c.Cache.Backend {
	case "redis":
		if c.Cache.RedisURL == "" {
			return fmt.Errorf("redis URL is required for the redis cache backend")
		}
	case "memory", "none":
	default:
		return fmt.Errorf("invalid cache backend: %s (must be redis, memory, or none)", c.Cache.Backend)
	}

	if c.Cache.TTL < 0 {
		return fmt.Errorf("cache TTL must not be negative")
	}

	return nil
}

// parseLogLevel parses a log level string.
func parseLogLevel(level string) observability.LogLevel {
	switch strings.ToLower(level) {
	case "debug":
		return observability.DebugLevel
	case "info":
		return observability.InfoLevel
	case "warn", "warning":
		return observability.WarnLevel
	case "error":
		return observability.ErrorLevel
	default:
		return observability.InfoLevel
	}
}

// getEnv returns an environment variable value or a default.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvBool returns a boolean environment variable or a default.
func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return strings.ToLower(value) == "true" || value == "1"
	}
	return defaultValue
}

// getEnvInt returns an integer environment variable or a default.
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// getEnvDuration returns a duration environment variable or a default.
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
