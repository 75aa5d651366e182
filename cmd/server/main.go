package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"github.com/bookedby/calendar-service/config"
	"github.com/bookedby/calendar-service/internal/calsync"
	"github.com/bookedby/calendar-service/internal/database"
	"github.com/bookedby/calendar-service/internal/events"
	"github.com/bookedby/calendar-service/internal/handlers"
	"github.com/bookedby/calendar-service/internal/integrations"
	"github.com/bookedby/calendar-service/internal/middleware"
	"github.com/bookedby/calendar-service/internal/providers"
	"github.com/bookedby/calendar-service/internal/queue"
	"github.com/bookedby/calendar-service/internal/sweepers"
	"github.com/bookedby/calendar-service/internal/telemetry"
)

func main() {
	cfg, err := config.Load("")
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}
	logger := initLogger(cfg.Logging)

	logger.Info().Msg("Starting calendar service")

	dbURL := config.GetDatabaseURL()
	if dbURL == "" {
		logger.Fatal().Msg("DATABASE_URL not set")
	}

	ctx := context.Background()
	if err := database.Connect(
		ctx,
		dbURL,
		cfg.Database.MaxConnections,
		cfg.Database.MinConnections,
		cfg.Database.MaxConnLifetime,
		cfg.Database.MaxConnIdleTime,
	); err != nil {
		logger.Fatal().Err(err).Msg("Failed to connect to database")
	}
	defer database.Close()

	logger.Info().Msg("Database connected")

	shutdownTelemetry, err := telemetry.Init(ctx, telemetry.GetConfigFromEnv())
	if err != nil {
		logger.Warn().Err(err).Msg("Failed to initialize telemetry")
		shutdownTelemetry = func(context.Context) error { return nil }
	}

	store := queue.NewPGStore(database.Pool())
	integrationStore := integrations.New(database.Pool())
	eventStore := events.New(database.Pool())

	registry := providers.NewRegistry()
	webhookClient := providers.NewWebhookClient(providers.WebhookConfig{
		Timeout:           cfg.Provider.PushTimeout,
		RequestsPerSecond: cfg.Provider.RequestsPerSecond,
		BurstSize:         cfg.Provider.BurstSize,
	}, logger)
	registry.Register("webhook", webhookClient)
	registry.Register("outlook", webhookClient)

	dispatcher := queue.NewDispatcher(logger)
	executor := calsync.NewExecutor(integrationStore, registry, eventStore, store, logger, calsync.ExecutorConfig{
		PushTimeout: cfg.Provider.PushTimeout,
		PullTimeout: cfg.Provider.PullTimeout,
	})
	executor.Register(dispatcher)

	processor := queue.NewProcessor(store, dispatcher, logger, queue.ProcessorConfig{
		BatchSize: cfg.Queue.BatchSize,
	})

	queueSweeper := sweepers.NewQueueSweeper(database.Pool(), logger, cfg.Queue.SweepInterval, cfg.Queue.StaleAfter)
	go queueSweeper.Start(ctx)

	scheduler := cron.New()
	if _, err := scheduler.AddFunc(cfg.Queue.ProcessSchedule, func() {
		stats, err := processor.ProcessQueue(ctx, cfg.Queue.BatchSize)
		if err != nil {
			logger.Error().Err(err).Msg("Scheduled queue pass failed")
			return
		}
		if stats.Processed > 0 {
			logger.Info().
				Int("processed", stats.Processed).
				Int("succeeded", stats.Succeeded).
				Int("failed", stats.Failed).
				Int("retried", stats.Retried).
				Msg("Scheduled queue pass finished")
		}
	}); err != nil {
		logger.Fatal().Err(err).Str("schedule", cfg.Queue.ProcessSchedule).Msg("Invalid process schedule")
	}
	if _, err := scheduler.AddFunc(cfg.Queue.PurgeSchedule, func() {
		olderThan := time.Duration(cfg.Queue.PurgeAfterDays) * 24 * time.Hour
		deleted, err := store.Purge(ctx, olderThan, queue.TerminalStatuses())
		if err != nil {
			logger.Error().Err(err).Msg("Scheduled purge failed")
			return
		}
		logger.Info().Int("deleted", deleted).Msg("Purged old queue items")
	}); err != nil {
		logger.Fatal().Err(err).Str("schedule", cfg.Queue.PurgeSchedule).Msg("Invalid purge schedule")
	}
	scheduler.Start()

	if cfg.Logging.Level == "info" || cfg.Logging.Level == "debug" {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())
	setupMiddleware(router, logger)

	queueHandler := handlers.NewQueueHandler(store, processor)

	router.GET("/health", handlers.HealthCheck)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	internal := router.Group("/internal")
	internal.Use(middleware.InternalAuthMiddleware())
	internal.Use(middleware.RateLimitMiddleware(middleware.RateLimiterConfig{
		RequestsPerSecond: 50,
		BurstSize:         100,
	}))
	{
		internal.GET("/health", handlers.HealthCheck)

		sync := internal.Group("/sync")
		{
			sync.POST("/process", queueHandler.ProcessQueue)
			sync.GET("/stats", queueHandler.GetStats)
			sync.POST("/queue", queueHandler.Enqueue)
			sync.DELETE("/queue", queueHandler.Purge)
			sync.GET("/queue/:id", queueHandler.GetItem)
			sync.POST("/queue/:id/process", queueHandler.ProcessItem)
			sync.POST("/queue/:id/cancel", queueHandler.CancelItem)
		}
	}

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		logger.Info().Str("addr", addr).Msg("Server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("Shutting down server...")
	scheduler.Stop()
	queueSweeper.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("Server forced to shutdown")
	}
	if err := shutdownTelemetry(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("Failed to shutdown telemetry")
	}

	logger.Info().Msg("Server exited")
}

func initLogger(cfg config.LoggingConfig) *zerolog.Logger {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix

	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}

	var output io.Writer
	if cfg.Format == "json" {
		output = os.Stdout
	} else {
		output = zerolog.ConsoleWriter{Out: os.Stdout, NoColor: cfg.NoColor}
	}

	logger := zerolog.New(output).Level(level).With().Timestamp().Str("service", "calendar-service").Logger()
	return &logger
}

func setupMiddleware(router *gin.Engine, logger *zerolog.Logger) {
	router.Use(func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		query := c.Request.URL.RawQuery

		c.Next()

		end := time.Now()
		latency := end.Sub(start)

		logger.Info().
			Str("method", c.Request.Method).
			Str("path", path).
			Str("query", query).
			Int("status", c.Writer.Status()).
			Dur("latency", latency).
			Str("ip", c.ClientIP()).
			Msg("HTTP request")
	})
}
