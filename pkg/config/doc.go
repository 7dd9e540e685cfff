// Package config provides application configuration management from environment variables.
//
// # Overview
//
// This package loads and validates configuration from environment variables with
// sensible defaults for all settings.
//
// # Configuration Structure
//
// Server settings:
//
//	HEIMDALL_HOST="0.0.0.0"
//	HEIMDALL_PORT="8080"
//	HEIMDALL_HEALTH_PORT="9090"
//	HEIMDALL_READ_TIMEOUT="15s"
//	HEIMDALL_WRITE_TIMEOUT="15s"
//
// Database settings:
//
//	HEIMDALL_POSTGRES_URL="postgres://localhost/heimdall"
//	HEIMDALL_POSTGRES_MAX_CONNS="25"
//	HEIMDALL_POSTGRES_IDLE_CONNS="5"
//
// Cache settings:
//
//	HEIMDALL_CACHE_BACKEND="memory"  # redis, memory, none
//	HEIMDALL_REDIS_URL="redis://localhost:6379/0"
//	HEIMDALL_CACHE_TTL="30s"
//	HEIMDALL_CACHE_MEMORY_ENTRIES="16384"
//
// Audit settings:
//
//	HEIMDALL_AUDIT_DB_ENABLED="true"
//	HEIMDALL_AUDIT_FILE_PATH="/var/log/heimdall/audit.ndjson"
//	HEIMDALL_AUDIT_RETENTION="2160h"
//
// Observability settings:
//
//	HEIMDALL_LOG_LEVEL="info"  # debug, info, warn, error
//	HEIMDALL_METRICS_ENABLED="true"
//
// # Usage Example
//
// Load configuration:
//
//	cfg, err := config.LoadConfig()
//	if err != nil {
//		log.Fatal(err)
//	}
//
//	fmt.Printf("Server: %s:%s\n", cfg.Server.Host, cfg.Server.Port)
//	fmt.Printf("Cache backend: %s\n", cfg.Cache.Backend)
//
// # Related Packages
//
//   - pkg/cache: Uses cache configuration
//   - pkg/audit: Uses audit configuration
//   - pkg/observability: Uses observability configuration
package config
