package handler

import (
	"database/sql"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"webdsl/internal/http/middleware"
	"webdsl/internal/service"
)

// GatewayDeps are the collaborators of the runtime gateway routes.
type GatewayDeps struct {
	Proxy  service.ProxyService
	Auth   service.AuthService
	Cookie SessionCookie
	// RequireAuth puts the proxy endpoints behind a session cookie.
	RequireAuth bool
	// Metrics is served on /metrics when set.
	Metrics prometheus.Gatherer
}

// RegisterGatewayRoutes attaches the endpoints generated front-ends call.
func RegisterGatewayRoutes(app *fiber.App, d GatewayDeps) {
	app.Get("/health", GatewayHealth(d.Proxy))
	app.Get("/healthz", LivenessProbe())
	registerMetrics(app, d.Metrics)

	app.Post("/auth/login", Login(d.Auth, d.Cookie))
	app.Post("/auth/logout", Logout(d.Auth, d.Cookie))
	app.Get("/me", middleware.Session(d.Auth, d.Cookie.name(), true), Me())

	sess := middleware.Session(d.Auth, d.Cookie.name(), d.RequireAuth)
	app.Post("/restcall", sess, RestCall(d.Proxy))
	app.Post("/queryDB", sess, QueryDB(d.Proxy))
	app.Post("/modifyDB", sess, ModifyDB(d.Proxy))
	app.Post("/publish", sess, Publish(d.Proxy))
}

// RegisterPlatformRoutes attaches the deployment registry endpoints. Everything
// under /deploy except GET /deploy/public needs the API key.
func RegisterPlatformRoutes(app *fiber.App, db *sql.DB, svc service.DeploymentService, apiKey string, metrics prometheus.Gatherer) {
	app.Get("/health", HealthCheck(db))
	app.Get("/healthz", LivenessProbe())
	registerMetrics(app, metrics)

	deploy := app.Group("/deploy", middleware.APIKey(apiKey, func(c *fiber.Ctx) bool {
		return c.Method() == fiber.MethodGet && c.Path() == "/deploy/public"
	}))
	deploy.Post("/", CreateDeployment(svc))
	deploy.Post("/file", CreateDeploymentFromFile(svc))
	deploy.Get("/", ListDeployments(svc))
	deploy.Get("/public", ListPublicDeployments(svc))
	deploy.Get("/user/:user_id", ListUserDeployments(svc))
	deploy.Post("/user/:user_id/kill_all", KillAllDeployments(svc))
	deploy.Get("/:uid", GetDeployment(svc))
	deploy.Put("/:uid/status", UpdateDeploymentStatus(svc))
	deploy.Post("/:uid/kill", KillDeployment(svc))
	deploy.Get("/:uid/model", DeploymentModelURL(svc))
	deploy.Delete("/:uid", DeleteDeployment(svc))
}

func registerMetrics(app *fiber.App, g prometheus.Gatherer) {
	if g == nil {
		return
	}
	app.Get("/metrics", adaptor.HTTPHandler(promhttp.HandlerFor(g, promhttp.HandlerOpts{})))
}
