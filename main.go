package main

import (
    "context"
    "net/http"
    "os"
    "os/signal"
    "syscall"
    "time"

    "github.com/gin-gonic/gin"
    "github.com/prometheus/client_golang/prometheus"
    "github.com/prometheus/client_golang/prometheus/promhttp"
    "github.com/sirupsen/logrus"

    "cerberus-etl/internal/alerts"
    "cerberus-etl/internal/attribution"
    "cerberus-etl/internal/client"
    "cerberus-etl/internal/config"
    "cerberus-etl/internal/export"
    "cerberus-etl/internal/handlers"
    "cerberus-etl/internal/merger"
    "cerberus-etl/internal/metrics"
    "cerberus-etl/internal/storage"
    "cerberus-etl/internal/telemetry"
    "cerberus-etl/internal/transformer"
)

func main() {
    // Load configuration
    cfg := config.Load()

    // Setup logger
    logger := logrus.New()
    level, err := logrus.ParseLevel(cfg.LogLevel)
    if err != nil {
        level = logrus.InfoLevel
    }
    logger.SetLevel(level)
    logger.SetFormatter(&logrus.JSONFormatter{})

    logger.WithFields(logrus.Fields{
        "workers":   cfg.MergeWorkers,
        "fail_fast": cfg.FailFast,
    }).Info("Starting Cerberus attribution service")

    // Initialize components
    telemetryMetrics := telemetry.New(prometheus.DefaultRegisterer)
    httpClient := client.NewHTTPClient(cfg, logger)
    engine := merger.New(
        transformer.New(),
        attribution.NewMatcher(logger, telemetryMetrics),
        metrics.NewCalculator(),
        alerts.NewEvaluator(),
        merger.Options{Workers: cfg.MergeWorkers, FailFast: cfg.FailFast},
        logger,
        telemetryMetrics,
    )
    store := storage.NewMemoryStore()
    cache := storage.NewCache(cfg.RedisURL, logger)
    exporter := export.NewExporter(cfg.SinkSecret, httpClient, logger)

    // Initialize handlers
    handler := handlers.New(cfg, httpClient, engine, store, cache, exporter, logger)

    // Setup Gin router
    if cfg.LogLevel != "debug" {
        gin.SetMode(gin.ReleaseMode)
    }
    router := gin.New()
    router.Use(gin.Logger(), gin.Recovery())

    // Health endpoints
    router.GET("/healthz", handler.HealthCheck)
    router.GET("/readyz", handler.ReadinessCheck)

    // Merge endpoints
    router.POST("/merge", handler.Merge)
    router.POST("/ingest/run", handler.IngestData)

    // Query endpoints
    router.GET("/records", handler.GetRecords)
    router.GET("/summary", handler.GetSummary)

    // Export endpoint
    router.POST("/export/run", handler.ExportData)

    router.GET("/metrics", gin.WrapH(promhttp.Handler()))

    // Start server
    srv := &http.Server{
        Addr:    ":" + cfg.Port,
        Handler: router,
    }

    go func() {
        logger.WithField("port", cfg.Port).Info("Server started")
        if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
            logger.WithError(err).Fatal("Failed to start server")
        }
    }()

    // Graceful shutdown
    quit := make(chan os.Signal, 1)
    signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
    <-quit

    logger.Info("Shutting down server...")
    ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
    defer cancel()

    if err := srv.Shutdown(ctx); err != nil {
        logger.WithError(err).Fatal("Server forced to shutdown")
    }

    logger.Info("Server exited")
}
