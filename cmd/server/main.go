// @title           Organization Namespace API
// @version         1.0.0
// @description     Multi-tenant organization lifecycle: create, rename with data migration, delete, and per-tenant document access.
// @license.name    Apache-2.0
// @basePath        /
// @schemes         http https
// @securityDefinitions.apiKey  Bearer
// @in                          header
// @name                         Authorization
// @description                  "JWT access token: 'Bearer {token}'"
//
// @tag.name         System
// @tag.description  Health, readiness and version endpoints. Prometheus metrics are served on a dedicated port (ORGSPACE_TELEMETRY_METRICS_PROMETHEUS_PORT) outside the Gin router.

// Package main is the entry point for the orgspace server binary.
// It dispatches three subcommands (serve, migrate, version) via a switch on os.Args.
// serve applies SQL migrations on startup when the postgres registry is selected.
package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/orgspace/orgspace/internal/api"
	"github.com/orgspace/orgspace/internal/archive"
	"github.com/orgspace/orgspace/internal/audit"
	"github.com/orgspace/orgspace/internal/auth"
	"github.com/orgspace/orgspace/internal/config"
	"github.com/orgspace/orgspace/internal/credential"
	"github.com/orgspace/orgspace/internal/crypto"
	"github.com/orgspace/orgspace/internal/db"
	"github.com/orgspace/orgspace/internal/docstore"
	"github.com/orgspace/orgspace/internal/lock"
	"github.com/orgspace/orgspace/internal/namespace"
	"github.com/orgspace/orgspace/internal/registry"
	"github.com/orgspace/orgspace/internal/registry/postgres"
	"github.com/orgspace/orgspace/internal/safego"
	"github.com/orgspace/orgspace/internal/storage"
	"github.com/orgspace/orgspace/internal/telemetry"
	"github.com/orgspace/orgspace/internal/tenant"

	// Document store and archive backends register themselves.
	_ "github.com/orgspace/orgspace/internal/docstore/memory"
	_ "github.com/orgspace/orgspace/internal/docstore/mongo"
	_ "github.com/orgspace/orgspace/internal/storage/azure"
	_ "github.com/orgspace/orgspace/internal/storage/gcs"
	_ "github.com/orgspace/orgspace/internal/storage/local"
	_ "github.com/orgspace/orgspace/internal/storage/s3"
)

// version is overridden at build time with -ldflags "-X main.version=...".
var version = "0.1.0"

func main() {
	if err := run(); err != nil {
		log.Fatalf("Error: %v\n", err)
	}
}

func run() error {
	command := "serve"
	if len(os.Args) > 1 {
		command = os.Args[1]
	}

	if command == "version" {
		fmt.Printf("orgspace v%s\n", version)
		return nil
	}

	cfg, err := config.Load(os.Getenv("CONFIG_PATH"))
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	switch command {
	case "serve":
		return serve(cfg)
	case "migrate":
		if len(os.Args) < 3 {
			return fmt.Errorf("usage: %s migrate <up|down>", os.Args[0])
		}
		return runMigrations(cfg, os.Args[2])
	default:
		return fmt.Errorf("unknown command: %s\nAvailable commands: serve, migrate, version", command)
	}
}

// components holds everything serve builds, plus the cleanup for each.
type components struct {
	store    docstore.Store
	catalog  registry.Catalog
	blobs    storage.Storage
	redis    redis.UniversalClient
	closers  []func(context.Context) error
	checks   []api.ReadinessCheck
	archiver *archive.Archiver
	audit    audit.Shipper
}

func (c *components) close() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	for i := len(c.closers) - 1; i >= 0; i-- {
		if err := c.closers[i](ctx); err != nil {
			slog.Warn("failed to close component", "error", err)
		}
	}
}

func serve(cfg *config.Config) error {
	telemetry.SetupLogger(cfg.Logging.Format, cfg.Logging.Level)
	if err := config.WatchLogging(os.Getenv("CONFIG_PATH"), telemetry.SetLevel); err != nil {
		slog.Warn("config watch disabled; logging.level changes need a restart", "error", err)
	}

	if cfg.Logging.Level == "debug" {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	secret, err := auth.ResolveSecret(cfg.Auth.JWTSecret)
	if err != nil {
		return fmt.Errorf("security configuration error: %w", err)
	}
	tokens, err := auth.NewTokenService(secret, cfg.Auth.JWTAlgorithm, auth.WithIssuer(cfg.Auth.Issuer))
	if err != nil {
		return fmt.Errorf("failed to create token service: %w", err)
	}

	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	comp, err := buildComponents(ctx, cfg)
	if err != nil {
		return err
	}
	defer comp.close()

	opts := []tenant.Option{
		tenant.WithTokenTTL(cfg.Auth.AccessTokenTTL()),
		tenant.WithLogger(slog.Default()),
		tenant.WithLocker(newLocker(cfg, comp.redis)),
	}
	if comp.archiver != nil {
		opts = append(opts, tenant.WithArchiver(comp.archiver))
	}
	mgr := tenant.NewManager(comp.store, comp.catalog, credential.NewBcrypt(cfg.Auth.BcryptCost), tokens, opts...)

	if cfg.Telemetry.Metrics.Enabled {
		startMetricsServer(cfg.Telemetry.Metrics.PrometheusPort)
	}

	api.Version = version
	router, bgServices := api.NewRouter(cfg, api.Dependencies{
		Tenants:   mgr,
		Tokens:    tokens,
		Authz:     mgr,
		Liveness:  mgr.Ping,
		Readiness: comp.checks,
		Redis:     comp.redis,
		Audit:     comp.audit,
	})

	server := &http.Server{
		Addr:         cfg.Server.GetAddress(),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	serverErr := make(chan error, 1)
	go func() {
		slog.Info("starting server",
			"addr", cfg.Server.GetAddress(),
			"docstore", cfg.DocStore.Backend,
			"registry", cfg.Registry.Backend,
			"lock", cfg.Lock.Backend,
			"archive", cfg.Archive.Enabled,
			"tls", cfg.Security.TLS.Enabled)

		var err error
		if cfg.Security.TLS.Enabled {
			err = server.ListenAndServeTLS(cfg.Security.TLS.CertFile, cfg.Security.TLS.KeyFile)
		} else {
			err = server.ListenAndServe()
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-quit:
	case err, ok := <-serverErr:
		if ok {
			return fmt.Errorf("failed to start server: %w", err)
		}
	}

	slog.Info("shutting down server")

	shutdownTimeout := cfg.Server.ShutdownTimeout
	if shutdownTimeout <= 0 {
		shutdownTimeout = 10 * time.Second
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}
	bgServices.Shutdown()

	slog.Info("server stopped gracefully")
	return nil
}

func buildComponents(ctx context.Context, cfg *config.Config) (*components, error) {
	comp := &components{}

	store, closeStore, err := docstore.New(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to open document store: %w", err)
	}
	comp.store = store
	comp.closers = append(comp.closers, closeStore)
	comp.checks = append(comp.checks, api.ReadinessCheck{Name: "docstore", Check: store.Ping})
	slog.Info("document store ready", "backend", cfg.DocStore.Backend)

	switch cfg.Registry.Backend {
	case "postgres":
		database, err := openDatabase(ctx, cfg)
		if err != nil {
			comp.close()
			return nil, err
		}
		comp.closers = append(comp.closers, func(context.Context) error { return database.Close() })
		telemetry.StartDBStatsCollector(ctx, database.DB, 15*time.Second)

		pg := postgres.New(database)
		comp.catalog = pg
		comp.checks = append(comp.checks, api.ReadinessCheck{Name: "registry", Check: pg.Ping})
	default:
		doc := registry.NewDocRegistry(store, namespace.ID(cfg.Registry.MasterNamespace))
		if err := doc.EnsureIndexes(ctx); err != nil {
			comp.close()
			return nil, fmt.Errorf("failed to create registry indexes: %w", err)
		}
		comp.catalog = doc
	}

	if usesRedis(cfg) {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		comp.redis = client
		comp.closers = append(comp.closers, func(context.Context) error { return client.Close() })
		comp.checks = append(comp.checks, api.ReadinessCheck{Name: "redis", Check: func(ctx context.Context) error {
			return client.Ping(ctx).Err()
		}})
	}

	if cfg.Archive.Enabled {
		blobs, err := storage.NewStorage(cfg)
		if err != nil {
			comp.close()
			return nil, fmt.Errorf("failed to initialize archive storage: %w", err)
		}
		comp.blobs = blobs
		archiveOpts := []archive.Option{archive.WithLogger(slog.Default())}
		sealer, err := crypto.FromArchiveConfig(&cfg.Archive)
		if err != nil {
			comp.close()
			return nil, err
		}
		if sealer != nil {
			archiveOpts = append(archiveOpts, archive.WithSealer(sealer))
		}
		comp.archiver = archive.New(store, blobs, cfg.Archive.Prefix, archiveOpts...)
		probe := cfg.Archive.Prefix + "/.ready"
		comp.checks = append(comp.checks, api.ReadinessCheck{Name: "archive", Check: func(ctx context.Context) error {
			_, err := blobs.Exists(ctx, probe)
			return err
		}})
		slog.Info("archive before delete enabled", "backend", cfg.Archive.Backend, "sealed", sealer != nil)
	}

	sinks, err := audit.NewMultiShipper(cfg.Audit.Sinks)
	if err != nil {
		comp.close()
		return nil, fmt.Errorf("failed to initialize audit sinks: %w", err)
	}
	if sinks.Len() > 0 {
		comp.audit = sinks
		comp.closers = append(comp.closers, func(context.Context) error { return sinks.Close() })
		slog.Info("audit sinks enabled", "count", sinks.Len())
	}

	return comp, nil
}

func usesRedis(cfg *config.Config) bool {
	return cfg.Lock.Backend == "redis" ||
		(cfg.Security.RateLimiting.Enabled && cfg.Security.RateLimiting.Backend == "redis")
}

func newLocker(cfg *config.Config, client redis.UniversalClient) lock.Locker {
	if cfg.Lock.Backend == "redis" && client != nil {
		return lock.NewRedis(client, lock.RedisOptions{
			TTL:           cfg.Lock.TTL,
			RetryInterval: cfg.Lock.RetryInterval,
			WaitTimeout:   cfg.Lock.WaitTimeout,
		})
	}
	return lock.NewLocal(cfg.Lock.WaitTimeout)
}

// openDatabase connects to PostgreSQL and applies pending migrations.
func openDatabase(ctx context.Context, cfg *config.Config) (*sqlx.DB, error) {
	database, err := db.Connect(ctx, &cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	slog.Info("connected to database", "host", cfg.Database.Host, "name", cfg.Database.Name)

	if err := db.RunMigrations(database, "up"); err != nil {
		database.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	if v, dirty, err := db.GetMigrationVersion(database); err != nil {
		slog.Warn("failed to get migration version", "error", err)
	} else {
		slog.Info("database schema version", "version", v, "dirty", dirty)
	}
	return database, nil
}

// startMetricsServer serves /metrics on its own port so the scrape path stays
// off the public listener and outside rate limiting.
func startMetricsServer(port int) {
	addr := fmt.Sprintf(":%d", port)
	safego.Go("metrics-server", func() {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		srv := &http.Server{
			Addr:         addr,
			Handler:      mux,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 10 * time.Second,
		}
		slog.Info("starting Prometheus metrics server", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("metrics server error", "error", err)
		}
	})
}

func runMigrations(cfg *config.Config, direction string) error {
	telemetry.SetupLogger(cfg.Logging.Format, cfg.Logging.Level)
	if cfg.Registry.Backend != "postgres" {
		return fmt.Errorf("migrations apply only to the postgres registry (registry.backend=%s)", cfg.Registry.Backend)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	database, err := db.Connect(ctx, &cfg.Database)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer database.Close()

	slog.Info("running migrations", "direction", direction)
	if err := db.RunMigrations(database, direction); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	v, dirty, err := db.GetMigrationVersion(database)
	if err != nil {
		return fmt.Errorf("failed to get migration version: %w", err)
	}
	slog.Info("migration completed", "version", v, "dirty", dirty)
	return nil
}
