package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gofiber/contrib/otelfiber"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/swagger"
	_ "github.com/joho/godotenv/autoload"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"webdsl/docs"
	"webdsl/internal/auth"
	"webdsl/internal/broker"
	"webdsl/internal/config"
	"webdsl/internal/connector"
	handlers "webdsl/internal/http/handler"
	"webdsl/internal/http/middleware"
	"webdsl/internal/hub"
	"webdsl/internal/logging"
	"webdsl/internal/otel"
	"webdsl/internal/restproxy"
	"webdsl/internal/service"
)

const (
	shutdownTimeout = 10 * time.Second
	purgeInterval   = 10 * time.Minute
)

// @title WebDSL Runtime Gateway
// @version 1.0
// @description Proxy, database and broker endpoints called by generated WebDSL applications.
// @BasePath /
func main() {
	cfg := config.Load()
	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		loc = time.UTC
	}
	log := logging.New(os.Stdout, loc).With("api")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := otel.Init(ctx, cfg.ServiceName, log)
	if err != nil {
		fatal(log, "tracing_init_failed", err)
	}

	rt, err := config.LoadRuntime(cfg.RuntimeDir)
	if err != nil {
		fatal(log, "runtime_config_invalid", err)
	}
	log.Info("runtime_loaded", logging.Fields{
		"dir":        cfg.RuntimeDir,
		"rest_hosts": rt.AllowedHosts(),
		"topics":     rt.TopicAttributes(),
		"users":      len(rt.Users.Users),
	})

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	// Connections that fail here are logged and skipped
	dbs := connector.Connect(ctx, rt.Databases, log)
	defer dbs.Close()
	brokers := broker.Connect(ctx, rt.Brokers, log)
	defer brokers.Close()

	rest := restproxy.New(restproxy.Options{
		APIs:          rt.Endpoints.RestAPIs,
		AllowUnlisted: cfg.RestCall.AllowUnlisted,
		Timeout:       time.Duration(cfg.RestCall.TimeoutSec) * time.Second,
		MaxBodyBytes:  int64(cfg.RestCall.MaxBodyBytes),
		Logger:        log,
	})

	store, err := auth.OpenStore(cfg.Auth.SessionDBPath)
	if err != nil {
		fatal(log, "session_store_open_failed", err)
	}
	defer store.Close()
	authSvc := auth.NewService(auth.NewUsers(rt.Users.Users), store,
		time.Duration(cfg.Auth.SessionTTLMin)*time.Minute, log)
	go authSvc.PurgeExpired(ctx, purgeInterval)

	wsHub, err := hub.New(hub.Options{
		RequireToken: cfg.Auth.WSRequireToken && authSvc.Enabled(),
		AuthTimeout:  time.Duration(cfg.Auth.WSAuthTimeout) * time.Second,
		Validate:     authSvc.ValidateWSToken,
		Registerer:   reg,
		Logger:       log,
	})
	if err != nil {
		fatal(log, "hub_init_failed", err)
	}
	bridge, err := broker.NewBridge(brokers, rt.TopicConfigs, wsHub, reg, log)
	if err != nil {
		fatal(log, "bridge_init_failed", err)
	}
	if err := bridge.Start(ctx); err != nil {
		log.Error("bridge_start_failed", err, nil)
	}

	wsApp := fiber.New(fiber.Config{
		DisableStartupMessage: true,
		ErrorHandler:          handlers.ErrorHandler(),
	})
	wsHub.Register(wsApp, "/")

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

	handlers.RegisterGatewayRoutes(app, handlers.GatewayDeps{
		Proxy:       service.NewProxyService(rest, dbs, brokers),
		Auth:        authSvc,
		Cookie:      handlers.SessionCookie{Name: cfg.Auth.CookieName, Secure: cfg.Auth.CookieSecure},
		RequireAuth: cfg.Auth.Required,
		Metrics:     reg,
	})

	// Swagger UI with dynamic host and scheme
	app.Get("/swagger/*", func(c *fiber.Ctx) error {
		scheme := c.Protocol()
		if proto := c.Get("X-Forwarded-Proto"); proto != "" {
			scheme = strings.Split(proto, ",")[0]
		}

		docs.SwaggerInfo.Host = c.Get("Host")
		docs.SwaggerInfo.Schemes = []string{scheme}

		return swagger.HandlerDefault(c)
	})

	errCh := make(chan error, 2)
	go func() {
		log.Info("listening", logging.Fields{"server": "api", "addr": rt.API.Addr()})
		errCh <- app.Listen(rt.API.Addr())
	}()
	go func() {
		log.Info("listening", logging.Fields{"server": "websocket", "addr": rt.WebSocket.Addr()})
		errCh <- wsApp.Listen(rt.WebSocket.Addr())
	}()

	select {
	case <-ctx.Done():
		log.Info("shutdown_requested", nil)
	case err := <-errCh:
		log.Error("server_failed", err, nil)
	}

	wsHub.Close()
	var errs []error
	errs = append(errs, app.ShutdownWithTimeout(shutdownTimeout))
	errs = append(errs, wsApp.ShutdownWithTimeout(shutdownTimeout))

	tctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	errs = append(errs, shutdownTracing(tctx))
	if err := errors.Join(errs...); err != nil {
		log.Error("shutdown_incomplete", err, nil)
	}
}

func fatal(log *logging.Logger, event string, err error) {
	log.Error(event, err, nil)
	os.Exit(1)
}
