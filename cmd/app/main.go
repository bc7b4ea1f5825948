package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"backfeed/internal/config"
	"backfeed/internal/db"
	httpServer "backfeed/internal/http"
	"backfeed/internal/http/middleware"
	"backfeed/internal/jobs"
	"backfeed/internal/logger"
	"backfeed/internal/service"
	"backfeed/internal/telemetry"
	"backfeed/internal/ws"

	"github.com/gin-gonic/gin"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("config", "error", err)
	}
	logger.Init(cfg.LogLevel, cfg.LogJSON)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := telemetry.Setup(ctx, "backfeed", cfg.AppVersion, cfg.OTelEndpoint)
	if err != nil {
		logger.Fatal("telemetry setup failed", "error", err)
	}

	pol, err := cfg.Policy()
	if err != nil {
		logger.Fatal("policy", "error", err)
	}

	store, closeStore, err := db.OpenStore(ctx, cfg.StoreDriver, cfg.DatabaseURL, cfg.AutoMigrate)
	if err != nil {
		logger.Fatal("open store", "error", err)
	}
	defer closeStore()

	hub := ws.NewHub()
	go hub.Run(ctx)

	svc, err := service.NewAccountingService(store, pol, service.WithPublisher(hub))
	if err != nil {
		logger.Fatal("accounting service", "error", err)
	}

	scheduler := jobs.NewScheduler(svc, cfg.StatsSchedule)
	if err := scheduler.Start(ctx); err != nil {
		logger.Fatal("scheduler", "error", err)
	}
	defer scheduler.Stop()

	middleware.InitRedisRateLimiter(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)

	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())
	httpServer.RegisterRoutes(r, svc, store, hub, httpServer.RouteConfig{
		Version:              cfg.AppVersion,
		AllowedOrigin:        cfg.AllowedOrigin,
		APIRateLimit:         cfg.APIRateLimit,
		APIRateWindow:        cfg.APIRateWindow,
		EvaluationRateLimit:  cfg.EvaluationRateLimit,
		EvaluationRateWindow: cfg.EvaluationRateWindow,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.AppPort,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("server started", "port", cfg.AppPort, "store", cfg.StoreDriver, "types", pol.TypeNames())
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("listen", "error", err)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
	}
	if err := shutdownTracing(shutdownCtx); err != nil {
		logger.Error("tracing shutdown", "error", err)
	}

	logger.Info("server exited")
}
