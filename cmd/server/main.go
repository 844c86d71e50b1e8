package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/erp/invoicerouter/internal/bootstrap"
	"github.com/erp/invoicerouter/internal/infrastructure/config"
	"github.com/erp/invoicerouter/internal/infrastructure/logger"
	"github.com/erp/invoicerouter/internal/interfaces/http/handler"
	"github.com/erp/invoicerouter/internal/interfaces/http/middleware"
	"github.com/erp/invoicerouter/internal/interfaces/http/router"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// maxBodySize bounds request bodies, batch uploads included
const maxBodySize = 32 << 20

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		panic("Failed to load configuration: " + err.Error())
	}

	// Initialize logger
	log, logsProvider, err := bootstrap.NewLogger(context.Background(), cfg)
	if err != nil {
		panic(err.Error())
	}
	defer func() {
		_ = logger.Sync(log)
	}()

	log.Info("Starting invoice router",
		zap.String("app", cfg.App.Name),
		zap.String("env", cfg.App.Env),
		zap.String("pipeline_version", cfg.Pipeline.Version),
	)

	rt, err := bootstrap.New(context.Background(), cfg, log, logsProvider)
	if err != nil {
		log.Fatal("Failed to initialize pipeline", zap.Error(err))
	}

	// Set Gin mode based on environment
	if cfg.App.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	// Setup validation
	middleware.SetupValidator()

	engine := gin.New()

	// Apply middleware stack in order:
	// 1. RequestID - Generate/propagate request ID
	// 2. Tracing - Server span, then error marking
	// 3. Recovery - Catch panics
	// 4. Logger - Log requests
	// 5. Metrics - Request counters and latency
	// 6. BodyLimit - Limit request body size
	engine.Use(middleware.RequestID())
	engine.Use(middleware.Tracing(middleware.TracingConfig{
		ServiceName: cfg.Telemetry.ServiceName,
		Enabled:     rt.TracingEnabled(),
	}))
	engine.Use(middleware.SpanErrorMarker())
	engine.Use(logger.Recovery(log))
	engine.Use(logger.GinMiddleware(log))
	engine.Use(middleware.HTTPMetrics(middleware.HTTPMetricsConfig{
		MeterProvider: rt.MeterProvider,
		Enabled:       rt.MeterProvider.IsEnabled(),
	}))
	engine.Use(middleware.BodyLimit(maxBodySize))

	// Health check endpoint (outside API versioning)
	router.RegisterHealth(engine, handler.NewHealthHandler(cfg.App.Name, cfg.Pipeline.Version))

	documentHandler := handler.NewDocumentHandler(rt.Service)

	router.NewRouter(engine, router.WithAPIVersion("v1")).
		Register(router.DocumentRoutes(documentHandler)...).
		Setup()

	srv := &http.Server{
		Addr:              ":" + cfg.App.Port,
		Handler:           engine,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       60 * time.Second,
		WriteTimeout:      5 * time.Minute,
		IdleTimeout:       2 * time.Minute,
	}

	// Start server in goroutine
	go func() {
		log.Info("Server starting", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Error("Server forced to shutdown", zap.Error(err))
	}
	if err := rt.Shutdown(ctx); err != nil {
		log.Error("Failed to release resources", zap.Error(err))
	}

	log.Info("Server exited gracefully")
}
