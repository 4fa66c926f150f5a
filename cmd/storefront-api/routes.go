package main

import (
	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	"github.com/noah-isme/storefront-api/internal/handler"
	"github.com/noah-isme/storefront-api/internal/middleware"
	"github.com/noah-isme/storefront-api/internal/models"
	"github.com/noah-isme/storefront-api/internal/service"
	"github.com/noah-isme/storefront-api/pkg/config"
	"github.com/noah-isme/storefront-api/pkg/logger"
	corsmiddleware "github.com/noah-isme/storefront-api/pkg/middleware/cors"
	"github.com/noah-isme/storefront-api/pkg/middleware/ratelimit"
	reqidmiddleware "github.com/noah-isme/storefront-api/pkg/middleware/requestid"
)

type routerDeps struct {
	auth       *handler.AuthHandler
	users      *handler.UserHandler
	metrics    *handler.MetricsHandler
	validator  middleware.CredentialValidator
	auditor    service.Auditor
	metricsSvc *service.MetricsService
}

func newRouter(cfg *config.Config, logr *zap.Logger, deps routerDeps) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(deps.metricsSvc))

	r.GET("/health", deps.metrics.Health)
	r.GET("/ready", deps.metrics.Ready)
	r.GET("/metrics", deps.metrics.Prometheus)

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	limiter := ratelimit.Middleware(ratelimit.New(ratelimit.Config{
		RequestsPerMinute: cfg.RateLimit.AuthRequestsPerMinute,
		Burst:             cfg.RateLimit.AuthBurst,
	}), ratelimit.ClientIP, logr)
	gate := middleware.Gate(deps.validator, logr)

	api := r.Group(cfg.APIPrefix)

	auth := api.Group("/auth")
	auth.POST("/register", limiter, deps.auth.Register)
	auth.POST("/login", limiter, deps.auth.Login)
	auth.POST("/reactivate", limiter, deps.auth.Reactivate)
	auth.POST("/refresh-token", limiter, middleware.RenewalGate(), deps.auth.Refresh)
	auth.POST("/logout", gate, deps.auth.Logout)
	auth.GET("/me", gate, deps.auth.Me)

	users := api.Group("/users", gate)
	users.PATCH("/me/active", deps.users.SetOwnActive)
	users.PATCH("/:id/active", middleware.RequireAdmin(), deps.users.SetActive)
	users.GET("/:id/credentials",
		middleware.RequireSelfOrAdmin("id"),
		middleware.Audit(deps.auditor, models.AuditActionCredentialList, "credential_records", "id"),
		deps.users.Credentials,
	)

	return r
}
