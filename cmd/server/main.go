package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/easycrawl/catalog-service/config"
	"github.com/easycrawl/catalog-service/internal/app"
	"github.com/easycrawl/catalog-service/internal/database"
	"github.com/easycrawl/catalog-service/internal/handlers"
	"github.com/easycrawl/catalog-service/internal/middleware"
	"github.com/easycrawl/catalog-service/internal/registry"
	"github.com/easycrawl/catalog-service/internal/telemetry"
)

func main() {
	cfg, err := config.Load("")
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}
	logger := cfg.Logging.NewLogger(os.Stdout)

	logger.Info().Msg("Starting catalog service")

	if cfg.Database.URL == "" {
		logger.Fatal().Msg("DATABASE_URL not set")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTelemetry, err := telemetry.Init(ctx, telemetry.Config{
		Enabled:     cfg.Telemetry.Enabled,
		Endpoint:    cfg.Telemetry.Endpoint,
		ServiceName: cfg.Telemetry.ServiceName,
		Environment: cfg.Telemetry.Environment,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to initialize telemetry")
	}

	if err := database.Connect(ctx, cfg.Database.PoolConfig()); err != nil {
		logger.Fatal().Err(err).Msg("Failed to connect to database")
	}
	defer database.Close()
	logger.Info().Msg("Database connected")

	if cfg.Database.AutoMigrate {
		if err := database.Migrate(ctx, database.Pool()); err != nil {
			logger.Fatal().Err(err).Msg("Failed to apply schema")
		}
	}

	a, err := app.New(ctx, cfg, database.Pool(), logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to assemble catalog components")
	}
	defer a.Close()

	refresher := registry.NewRefresher(a.Cache, registry.RefresherConfig{
		Interval: cfg.Registry.RefreshInterval,
		Enabled:  true,
	}, logger)
	refresher.Start()

	if a.Notifier != nil {
		if err := a.Notifier.Subscribe(ctx, a.Cache); err != nil {
			logger.Warn().Err(err).Msg("Registry invalidations will not be received")
		}
	}

	limiter := middleware.NewKeyedRateLimiter(middleware.RateLimiterConfig{
		RequestsPerSecond: cfg.RateLimit.RequestsPerSecond,
		BurstSize:         cfg.RateLimit.Burst,
	})
	go limiter.Run(ctx, time.Minute)

	if cfg.Server.APIKey == "" {
		logger.Warn().Msg("No internal API key configured, /internal is closed")
	}

	if cfg.Logging.Level == "debug" {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())
	setupMiddleware(router, logger)

	handlers.Routes{
		Ping:           database.Status,
		Stats:          database.Stats,
		Cache:          a.Cache,
		Jobs:           handlers.NewJobsHandler(a.Runner, logger),
		Registry:       handlers.NewRegistryHandler(a.Cache, a.Writer, logger),
		APIKey:         cfg.Server.APIKey,
		TriggerLimiter: limiter,
	}.Register(router)

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		logger.Info().Str("addr", addr).Msg("Server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	<-ctx.Done()

	logger.Info().Msg("Shutting down server...")
	refresher.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("Server forced to shutdown")
	}
	if err := shutdownTelemetry(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("Failed to flush telemetry")
	}

	logger.Info().Msg("Server exited")
}

func setupMiddleware(router *gin.Engine, logger zerolog.Logger) {
	router.Use(func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		query := c.Request.URL.RawQuery

		c.Next()

		logger.Info().
			Str("method", c.Request.Method).
			Str("path", path).
			Str("query", query).
			Int("status", c.Writer.Status()).
			Dur("latency", time.Since(start)).
			Str("ip", c.ClientIP()).
			Msg("HTTP request")
	})
}
