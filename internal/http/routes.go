package http

import (
	"time"

	"backfeed/internal/http/handlers"
	"backfeed/internal/http/middleware"
	"backfeed/internal/service"
	"backfeed/internal/ws"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type RouteConfig struct {
	Version       string
	AllowedOrigin string

	APIRateLimit         int
	APIRateWindow        time.Duration
	EvaluationRateLimit  int
	EvaluationRateWindow time.Duration
}

func RegisterRoutes(r *gin.Engine, svc *service.AccountingService, store handlers.Pinger, hub *ws.Hub, cfg RouteConfig) {
	h := handlers.NewHandler(svc)
	healthHandler := handlers.NewHealthHandler(store, hub, cfg.Version)

	r.Use(middleware.RequestID(), middleware.RequestLogger(), middleware.Metrics(), middleware.CORS(cfg.AllowedOrigin))

	// Health checks and metrics (no rate limiting)
	r.GET("/health", healthHandler.Health)
	r.GET("/healthz", healthHandler.Liveness)
	r.GET("/readyz", healthHandler.Readiness)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := r.Group("/api/v1")
	v1.Use(middleware.RedisRateLimit(cfg.APIRateLimit, cfg.APIRateWindow))
	registerAPIRoutes(v1, h, cfg)

	// Live evaluation feed
	r.GET("/ws", ws.HandleWS(hub, cfg.AllowedOrigin))
}

func registerAPIRoutes(api *gin.RouterGroup, h *handlers.Handler, cfg RouteConfig) {
	evalRL := middleware.RateLimit("evaluation", cfg.EvaluationRateLimit, cfg.EvaluationRateWindow, handlers.EvaluatorKey)

	// Users
	api.POST("/users", h.CreateUser)
	api.GET("/users", h.ListUsers)
	api.GET("/users/:id", h.GetUser)
	api.GET("/users/:id/ledger", h.UserLedger)

	// Contributions
	api.POST("/contributions", h.CreateContribution)
	api.GET("/contributions", h.ListContributions)
	api.GET("/contributions/:id", h.GetContribution)
	api.POST("/contributions/:id/evaluations", evalRL, h.CreateEvaluation)
	api.GET("/contributions/:id/evaluations/history", h.EvaluationHistory)
	api.GET("/contribution-types", h.ContributionTypes)

	// Evaluations
	api.GET("/evaluations", h.ListEvaluations)
	api.GET("/evaluations/:id", h.GetEvaluation)

	api.GET("/stats", h.Stats)
}
