package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nff/ingestion/internal/api"
	"github.com/nff/ingestion/internal/api/middleware"
	"github.com/nff/ingestion/internal/calc"
	"github.com/nff/ingestion/internal/config"
	"github.com/nff/ingestion/internal/etl"
	"github.com/nff/ingestion/internal/logger"
	"github.com/nff/ingestion/internal/repository"
	"github.com/nff/ingestion/internal/scheduler"
	"github.com/nff/ingestion/internal/source"
	"github.com/nff/ingestion/internal/storage"
	"github.com/nff/ingestion/internal/tasks"
	"github.com/nff/ingestion/internal/tracker"
)

func main() {
	// Initialize logger first so config failures are logged consistently
	appLogger := logger.NewDefault()
	logger.SetDefaultLogger(appLogger)
	defer logger.Sync()

	// Support CONFIG_PATH environment variable for production deployments
	configPath := os.Getenv("CONFIG_PATH")
	cfg, err := config.Load(configPath)
	if err != nil {
		appLogger.WithError(err).Fatal("Failed to load config")
	}

	// Initialize database
	db, err := repository.InitDB(&cfg.Database)
	if err != nil {
		appLogger.WithError(err).Fatal("Failed to initialize database")
	}

	// Initialize repositories
	indicatorRepo := repository.NewIndicatorRepository(db)
	jobRepo := repository.NewJobRepository(db)
	logRepo := repository.NewETLLogRepository(db)
	seriesRepo := repository.NewTimeSeriesRepository(db)

	// Optional object storage mirror for reference workbooks
	var objects source.ObjectFetcher
	if cfg.Storage.Enabled {
		objectStorage, err := storage.NewStorage(&storage.S3Config{
			Endpoint:  cfg.Storage.Endpoint,
			AccessKey: cfg.Storage.AccessKey,
			SecretKey: cfg.Storage.SecretKey,
			UseSSL:    cfg.Storage.UseSSL,
			Bucket:    cfg.Storage.Bucket,
			Region:    cfg.Storage.Region,
			PublicURL: cfg.Storage.PublicURL,
		})
		if err != nil {
			appLogger.WithError(err).Fatal("Failed to initialize object storage")
		}
		objects = objectStorage
	}

	// Provider factory and calculation engine
	factory := source.NewFactory(source.FactoryConfig{
		FREDAPIKey:       cfg.FRED.APIKey,
		FREDBaseURL:      cfg.FRED.BaseURL,
		ShillerURL:       cfg.Shiller.URL,
		ShillerSheet:     cfg.Shiller.Sheet,
		ShillerObjectKey: cfg.Shiller.ObjectKey,
		Objects:          objects,
		FetchTimeout:     cfg.ETL.FetchTimeout,
	})
	engine := calc.NewEngine()

	// Standalone job tracker
	var monitor *tracker.Monitor
	if cfg.Tracker.Enabled {
		monitor, err = tracker.Open(cfg.Tracker.Path, appLogger)
		if err != nil {
			appLogger.WithError(err).Fatal("Failed to open job tracker")
		}
	}

	// Pipeline service
	svc := etl.NewService(
		indicatorRepo,
		jobRepo,
		logRepo,
		seriesRepo,
		factory,
		engine,
		trackerOrNil(monitor),
		appLogger,
		etl.Config{
			FetchTimeout:   cfg.ETL.FetchTimeout,
			IndicatorDelay: cfg.ETL.IndicatorDelay,
			Staleness:      cfg.ETL.Staleness,
			DaysBack:       cfg.ETL.DaysBack,
			StuckAfter:     cfg.ETL.StuckAfter,
		},
	)

	runner := tasks.NewRunner(appLogger)

	// Optional cron-driven incremental refresh
	var sched *scheduler.Scheduler
	if cfg.Scheduler.Enabled {
		sched = scheduler.New(svc, runner, appLogger, cfg.Scheduler.Spec)
		if err := sched.Start(); err != nil {
			appLogger.WithError(err).Fatal("Failed to start scheduler")
		}
	}

	// Setup router
	router := api.SetupRouter(api.Deps{
		DB:         db,
		Service:    svc,
		Runner:     runner,
		Indicators: indicatorRepo,
		Jobs:       jobRepo,
		Logs:       logRepo,
		Monitor:    monitor,
		Logger:     appLogger,
		Mode:       cfg.Server.Mode,
		CORS: middleware.CORSConfig{
			AllowedOrigins:  cfg.Server.CORS.AllowedOrigins,
			AllowAllOrigins: cfg.Server.CORS.AllowAllOrigins,
		},
	})

	// Create HTTP server
	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: router,
	}

	// Start server in goroutine
	go func() {
		appLogger.WithFields(logger.Fields{
			"port": cfg.Server.Port,
			"mode": cfg.Server.Mode,
		}).Info("Starting API server")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			appLogger.WithError(err).Fatal("Failed to start server")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	appLogger.Info("Shutting down server...")

	if sched != nil {
		sched.Stop()
	}

	// Graceful shutdown with timeout; drain in-flight jobs first
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := runner.Shutdown(shutdownCtx); err != nil {
		appLogger.WithError(err).Warn("Background jobs did not drain before shutdown")
	}
	if err := srv.Shutdown(shutdownCtx); err != nil {
		appLogger.WithError(err).Fatal("Server forced to shutdown")
	}

	appLogger.Info("Server exited")
}

// trackerOrNil keeps the nil interface nil when tracking is disabled.
func trackerOrNil(m *tracker.Monitor) etl.JobTracker {
	if m == nil {
		return nil
	}
	return m
}
