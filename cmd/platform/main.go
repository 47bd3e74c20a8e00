package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/contrib/otelfiber"
	"github.com/gofiber/fiber/v2"
	_ "github.com/joho/godotenv/autoload"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"webdsl/internal/config"
	"webdsl/internal/database"
	"webdsl/internal/database/migration"
	handlers "webdsl/internal/http/handler"
	"webdsl/internal/http/middleware"
	"webdsl/internal/logging"
	"webdsl/internal/otel"
	"webdsl/internal/repository/postgres"
	"webdsl/internal/service"
	"webdsl/internal/storage"
)

func main() {
	cfg := config.Load()
	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		loc = time.UTC
	}
	log := logging.New(os.Stdout, loc).With("platform")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := otel.Init(ctx, cfg.ServiceName+"-platform", log)
	if err != nil {
		fatal(log, "tracing_init_failed", err)
	}

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		fatal(log, "db_connect_failed", err)
	}
	defer db.Close()

	if err := migration.EnsureMigrated(ctx, db, log, cfg.Database.Host); err != nil {
		fatal(log, "db_migration_failed", err)
	}

	objStore, err := storage.NewMinIO(cfg.MinIO)
	if err != nil {
		fatal(log, "storage_init_failed", err)
	}

	if cfg.APIKey == "" {
		log.Warn("api_key_missing", logging.Fields{"detail": "API_KEY is empty, /deploy is unauthenticated"})
	}

	deploySvc := service.NewDeploymentService(objStore, postgres.NewDeploymentPostgres(db), service.DeploymentOptions{
		PublicHost: cfg.PublicHost,
	})

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		collectors.NewDBStatsCollector(db, "registry"),
	)

	app := fiber.New(fiber.Config{
		ErrorHandler: handlers.ErrorHandler(),
	})
	app.Use(otelfiber.Middleware())
	app.Use(middleware.RequestID())
	app.Use(middleware.Logger())
	prom, err := middleware.NewPrometheusMiddleware(reg, "/healthz")
	if err != nil {
		fatal(log, "metrics_init_failed", err)
	}
	app.Use(prom.Handler())

	handlers.RegisterPlatformRoutes(app, db, deploySvc, cfg.APIKey, reg)

	errCh := make(chan error, 1)
	go func() {
		addr := ":" + cfg.Port
		log.Info("listening", logging.Fields{"addr": addr})
		errCh <- app.Listen(addr)
	}()

	select {
	case <-ctx.Done():
		log.Info("shutdown_requested", nil)
	case err := <-errCh:
		log.Error("server_failed", err, nil)
	}

	tctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := errors.Join(app.ShutdownWithTimeout(10*time.Second), shutdownTracing(tctx)); err != nil {
		log.Error("shutdown_incomplete", err, nil)
	}
}

func fatal(log *logging.Logger, event string, err error) {
	log.Error(event, err, nil)
	os.Exit(1)
}
