// Command gateway is the Cognitive Chat Gateway's single entrypoint: it
// loads configuration, applies pending schema migrations, assembles the
// composition root, and serves HTTP until signaled to stop.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/hibiken/asynq"

	"github.com/tencentyun-labs/cognigate/internal/config"
	"github.com/tencentyun-labs/cognigate/internal/logger"
	"github.com/tencentyun-labs/cognigate/internal/runtime"
)

// exitMigrationFailed is sysexits.h EX_UNAVAILABLE (69), the code for a
// backend that cannot be reached at startup, distinct from the EX_CONFIG (64)
// a malformed config file returns.
const exitMigrationFailed = 69

func main() {
	configPath := flag.String("config", "", "path to the gateway config file")
	migrationsPath := flag.String("migrations", "./migrations/tenantdb", "path to the golang-migrate source directory")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "gateway: config:", err)
		os.Exit(64)
	}

	ctx := logger.CloneContext(context.Background())

	if cfg.Storage.Backend == "sql" || cfg.Storage.Backend == "" {
		if err := runMigrations(*migrationsPath, cfg.Storage.DSN); err != nil {
			logger.Error(ctx, "gateway: migration failed", map[string]interface{}{"error": err.Error()})
			os.Exit(exitMigrationFailed)
		}
	}

	rt, err := runtime.Build(cfg)
	if err != nil {
		logger.Error(ctx, "gateway: composition root build failed", map[string]interface{}{"error": err.Error()})
		os.Exit(1)
	}
	defer func() {
		if err := rt.Close(); err != nil {
			logger.Warn(ctx, "gateway: shutdown cleanup error", map[string]interface{}{"error": err.Error()})
		}
	}()

	if err := config.WatchTenantCatalog(cfg.TenantCatalogPath, func() {
		if err := rt.Tenants.Refresh(cfg.TenantCatalogPath); err != nil {
			logger.Warn(ctx, "gateway: tenant catalog reload failed", map[string]interface{}{"error": err.Error()})
		}
	}); err != nil {
		logger.Warn(ctx, "gateway: tenant catalog watch unavailable", map[string]interface{}{"error": err.Error()})
	}

	rt.TrendScheduler.Start()
	defer rt.TrendScheduler.Stop()

	srv := asynq.NewServer(
		asynq.RedisClientOpt{Addr: cfg.Analytics.RedisAddr},
		asynq.Config{Concurrency: 10},
	)
	if err := srv.Start(rt.Worker.Mux()); err != nil {
		logger.Error(ctx, "gateway: analytics worker failed to start", map[string]interface{}{"error": err.Error()})
		os.Exit(1)
	}
	defer srv.Shutdown()

	runCtx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	logger.Info(ctx, "gateway: listening", map[string]interface{}{"addr": cfg.HTTPAddr})
	if err := rt.Gateway.Serve(runCtx, cfg.HTTPAddr, cfg.ShutdownTimeout()); err != nil {
		logger.Error(ctx, "gateway: serve failed", map[string]interface{}{"error": err.Error()})
		os.Exit(1)
	}
	logger.Info(ctx, "gateway: shut down cleanly", nil)
}

// runMigrations applies every pending up migration. A dirty or failed
// migration is a startup failure, never deferred to request time.
func runMigrations(sourcePath, dsn string) error {
	m, err := migrate.New("file://"+sourcePath, dsn)
	if err != nil {
		return fmt.Errorf("open migrator: %w", err)
	}
	defer m.Close()

	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		return fmt.Errorf("apply migrations: %w", err)
	}
	return nil
}
