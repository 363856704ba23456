package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/ehr/pcsguide/internal/config"
	"github.com/ehr/pcsguide/internal/domain/bodysystem"
	"github.com/ehr/pcsguide/internal/domain/checklist"
	"github.com/ehr/pcsguide/internal/domain/navigator"
	"github.com/ehr/pcsguide/internal/domain/pcsindex"
	"github.com/ehr/pcsguide/internal/domain/pcstables"
	"github.com/ehr/pcsguide/internal/platform/db"
	"github.com/ehr/pcsguide/internal/platform/middleware"
	"github.com/ehr/pcsguide/internal/platform/reference"
	"github.com/ehr/pcsguide/internal/platform/validation"
)

// deps is everything the HTTP server is built from.
type deps struct {
	cfg        *config.Config
	logger     zerolog.Logger
	bundle     *reference.Bundle
	classifier *checklist.Classifier
	pool       *pgxpool.Pool
}

func runServer() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logger := newLogger(cfg, os.Stdout)
	if err := cfg.Validate(); err != nil {
		logger.Fatal().Err(err).Msg("invalid config")
	}

	// Reference data
	ctx := context.Background()
	bundle, pool, err := loadReference(ctx, cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load reference data")
	}
	if pool != nil {
		defer pool.Close()
		logger.Info().Msg("connected to database")
	}

	classifier, err := newClassifier(cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to build checklist classifier")
	}

	e := newServer(deps{cfg: cfg, logger: logger, bundle: bundle, classifier: classifier, pool: pool})

	// Graceful shutdown
	go func() {
		addr := ":" + cfg.Port
		logger.Info().Str("addr", addr).Str("version", version).Msg("starting server")
		if err := e.Start(addr); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down server")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(ctx); err != nil {
		logger.Fatal().Err(err).Msg("server shutdown failed")
	}
	logger.Info().Msg("server stopped")
	return nil
}

func newServer(d deps) *echo.Echo {
	cfg, logger := d.cfg, d.logger

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Validator = validation.New()

	// Global middleware
	e.Use(middleware.Recovery(logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(logger))
	e.Use(middleware.SecurityHeaders())
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: cfg.CORSOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost},
		AllowHeaders: []string{"Content-Type", middleware.RequestIDHeader},
	}))
	e.Use(middleware.BodyLimit(cfg.BodyLimit))

	// Health and metrics
	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{
			"status":  "ok",
			"version": version,
		})
	})
	if d.pool != nil {
		e.GET("/health/db", db.HealthHandler(d.pool))
	}
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	// API group
	apiV1 := e.Group("/api/v1")
	apiV1.Use(middleware.RateLimit(middleware.RateLimitConfig{
		RequestsPerSecond: cfg.RateLimitRPS,
		BurstSize:         cfg.RateLimitBurst,
	}))
	apiV1.Use(middleware.RequestTimeout(cfg.RequestTimeout))
	pcs := apiV1.Group("/pcs")
	pcs.Use(middleware.ETag(middleware.DefaultETagConfig()))

	b := d.bundle
	svc := navigator.NewService(newNavigator(b, logger), d.classifier, b.Checklists,
		cfg.DefaultCandidates, cfg.MaxCandidates, logger)

	navigator.NewHandler(svc).RegisterRoutes(pcs)
	pcsindex.NewHandler(b.Index).RegisterRoutes(pcs)
	pcstables.NewHandler(b.Tables).RegisterRoutes(pcs)
	checklist.NewHandler(b.Checklists, d.classifier).RegisterRoutes(pcs)
	bodysystem.NewHandler(b.BodySystems).RegisterRoutes(pcs)

	return e
}
