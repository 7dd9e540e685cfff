package main

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"os"
	"time"

	_ "github.com/lib/pq"
	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/heimdallid/heimdall/pkg/api"
	"github.com/heimdallid/heimdall/pkg/audit"
	"github.com/heimdallid/heimdall/pkg/cache"
	"github.com/heimdallid/heimdall/pkg/clients"
	"github.com/heimdallid/heimdall/pkg/config"
	"github.com/heimdallid/heimdall/pkg/oauth"
	"github.com/heimdallid/heimdall/pkg/observability"
	"github.com/heimdallid/heimdall/pkg/tenants"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "heimdall: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return err
	}

	log := observability.NewLogger(cfg.Observability.LogLevel, os.Stdout)

	db, err := sql.Open("postgres", cfg.Database.URL)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()
	db.SetMaxOpenConns(cfg.Database.MaxOpenConns)
	db.SetMaxIdleConns(cfg.Database.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.Database.ConnLifetime)

	ctx := context.Background()
	if err := db.PingContext(ctx); err != nil {
		return fmt.Errorf("failed to ping database: %w", err)
	}

	// Tenants first, then clients, then oauth: the code and token tables
	// reference oauth_clients.
	if err := tenants.RunMigrations(ctx, db); err != nil {
		return fmt.Errorf("tenant migrations failed: %w", err)
	}
	if err := clients.RunMigrations(ctx, db); err != nil {
		return fmt.Errorf("client migrations failed: %w", err)
	}
	if err := oauth.RunMigrations(ctx, db); err != nil {
		return fmt.Errorf("oauth migrations failed: %w", err)
	}
	log.Info("migrations applied")

	cacheLayer, redisCache, err := buildCache(cfg)
	if err != nil {
		return err
	}
	log.WithField("backend", cfg.Cache.Backend).Info("cache initialized")

	auditLogger, dbAudit, err := buildAuditLogger(cfg, db)
	if err != nil {
		return err
	}

	tenantEngine := tenants.NewEngine(db, cacheLayer, auditLogger, log)
	registry := clients.NewRegistry(clients.NewStore(db), cacheLayer, auditLogger, log)
	oauthEngine := oauth.NewEngine(db, registry, tenantEngine, auditLogger, log)

	var metrics *observability.Metrics
	if cfg.Observability.MetricsEnabled {
		metrics = observability.NewMetrics(nil)
	}

	apiLogger := logrus.New()
	server := api.NewServer(oauthEngine, registry, tenantEngine, metrics, apiLogger)

	sweeper := startSweeps(log, oauthEngine, tenantEngine, dbAudit, cfg.Audit.Retention)
	defer sweeper.Stop()

	httpServer := &http.Server{
		Addr:         cfg.Server.Host + ":" + cfg.Server.Port,
		Handler:      server.Router(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}
	healthServer := buildHealthServer(cfg, db, redisCache, metrics)

	var g errgroup.Group
	g.Go(func() error {
		log.WithField("addr", httpServer.Addr).Info("server listening")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})
	g.Go(func() error {
		log.WithField("addr", healthServer.Addr).Info("health server listening")
		if err := healthServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})
	g.Go(func() error {
		manager := observability.NewShutdownManager(log, httpServer, cfg.Server.ShutdownTimeout)
		manager.RegisterShutdownFunc(healthServer.Shutdown)
		manager.RegisterShutdownFunc(func(context.Context) error {
			sweeper.Stop()
			return cacheLayer.Close()
		})
		if dbAudit != nil {
			manager.RegisterShutdownFunc(func(context.Context) error { return dbAudit.Close() })
		}
		return manager.WaitForShutdown()
	})

	return g.Wait()
}

func buildCache(cfg *config.Config) (cache.Cache, *cache.RedisCache, error) {
	switch cfg.Cache.Backend {
	case "redis":
		rc, err := cache.NewRedisCache(cfg.Cache.RedisURL, cfg.Cache.RedisPassword, cfg.Cache.RedisDB)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to initialize redis cache: %w", err)
		}
		return rc, rc, nil
	case "memory":
		return cache.NewMemoryCache(cfg.Cache.MemoryEntries, cfg.Cache.TTL), nil, nil
	default:
		return cache.NewNop(), nil, nil
	}
}

func buildAuditLogger(cfg *config.Config, db *sql.DB) (audit.Logger, *audit.DBLogger, error) {
	var sinks []audit.Logger
	var dbLogger *audit.DBLogger

	if cfg.Audit.DBEnabled {
		l, err := audit.NewDBLogger(db)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to initialize audit db logger: %w", err)
		}
		dbLogger = l
		sinks = append(sinks, l)
	}
	if cfg.Audit.FilePath != "" {
		fileCfg := audit.DefaultFileLoggerConfig()
		fileCfg.BasePath = cfg.Audit.FilePath
		l, err := audit.NewFileLogger(fileCfg)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to initialize audit file logger: %w", err)
		}
		sinks = append(sinks, l)
	}

	switch len(sinks) {
	case 0:
		return audit.NewNopLogger(), nil, nil
	case 1:
		return sinks[0], dbLogger, nil
	default:
		return audit.NewMultiLogger(sinks...), dbLogger, nil
	}
}

// startSweeps schedules the idempotent cleanup jobs: consumed/expired codes,
// lapsed tokens, expired invitations, and audit retention.
func startSweeps(log *observability.Logger, oauthEngine *oauth.Engine, tenantEngine *tenants.Engine, dbAudit *audit.DBLogger, retention time.Duration) *cron.Cron {
	c := cron.New()

	sweep := func(name string, fn func(context.Context) (int64, error)) func() {
		return func() {
			ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
			defer cancel()
			removed, err := fn(ctx)
			if err != nil {
				log.WithError(err).WithField("sweep", name).Error("sweep failed")
				return
			}
			if removed > 0 {
				log.WithFields(map[string]interface{}{"sweep": name, "removed": removed}).Info("sweep complete")
			}
		}
	}

	c.AddFunc("*/10 * * * *", sweep("authorization_codes", oauthEngine.CleanupExpiredCodes))
	c.AddFunc("0 * * * *", sweep("tokens", oauthEngine.CleanupExpiredTokens))
	c.AddFunc("30 0 * * *", sweep("invitations", tenantEngine.CleanupExpiredInvitations))

	if dbAudit != nil && retention > 0 {
		c.AddFunc("0 1 * * *", sweep("audit_events", func(ctx context.Context) (int64, error) {
			return dbAudit.CleanupBefore(ctx, time.Now().UTC().Add(-retention))
		}))
	}

	c.Start()
	return c
}

func buildHealthServer(cfg *config.Config, db *sql.DB, redisCache *cache.RedisCache, metrics *observability.Metrics) *http.Server {
	mux := http.NewServeMux()

	var checker *observability.HealthChecker
	if redisCache != nil {
		checker = observability.NewHealthChecker(db, redisCache.Client(), version)
	} else {
		checker = observability.NewHealthChecker(db, nil, version)
	}
	observability.RegisterHealthRoutes(mux, checker)

	if metrics != nil {
		mux.Handle("/metrics", metrics.Handler())
	}

	return &http.Server{
		Addr:    cfg.Server.Host + ":" + cfg.Server.HealthPort,
		Handler: mux,
	}
}

// version is stamped at build time with -ldflags "-X main.version=...".
var version = "dev"
