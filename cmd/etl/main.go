package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/nff/ingestion/internal/calc"
	"github.com/nff/ingestion/internal/config"
	"github.com/nff/ingestion/internal/domain"
	"github.com/nff/ingestion/internal/etl"
	"github.com/nff/ingestion/internal/logger"
	"github.com/nff/ingestion/internal/repository"
	"github.com/nff/ingestion/internal/source"
	"github.com/nff/ingestion/internal/storage"
	"github.com/nff/ingestion/internal/tracker"
)

func main() {
	// Initialize logger first (with defaults)
	appLogger := logger.New(&logger.Config{
		Level:       "info",
		Format:      "json",
		ServiceName: "nff-etl",
	})
	logger.SetDefaultLogger(appLogger)
	defer logger.Sync()

	// Parse command line flags
	ids := flag.String("ids", "", "Comma-separated indicator IDs")
	category := flag.String("category", "", "Run all indicators of one category")
	importanceMin := flag.Int("importance-min", 0, "Minimum importance for category runs")
	sourceFilter := flag.String("source", "", "Restrict to one source (substring match)")
	incremental := flag.Bool("incremental", false, "Refresh only stale indicators from their watermarks")
	startDate := flag.String("start", "", "Range start (YYYY-MM-DD)")
	endDate := flag.String("end", "", "Range end (YYYY-MM-DD)")
	force := flag.Bool("force", false, "Delete stored points and refetch from scratch")
	daysBack := flag.Int("days-back", 0, "Incremental range for never-fetched indicators")
	configPath := flag.String("config", "", "Path to config file")
	flag.Parse()

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		appLogger.WithError(err).Fatal("Failed to load config")
	}

	appLogger.WithFields(logger.Fields{
		"incremental": *incremental,
		"category":    *category,
		"force":       *force,
	}).Info("Starting pipeline run")

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

	factory := source.NewFactory(source.FactoryConfig{
		FREDAPIKey:       cfg.FRED.APIKey,
		FREDBaseURL:      cfg.FRED.BaseURL,
		ShillerURL:       cfg.Shiller.URL,
		ShillerSheet:     cfg.Shiller.Sheet,
		ShillerObjectKey: cfg.Shiller.ObjectKey,
		Objects:          objects,
		FetchTimeout:     cfg.ETL.FetchTimeout,
	})

	var jobTracker etl.JobTracker
	if cfg.Tracker.Enabled {
		monitor, err := tracker.Open(cfg.Tracker.Path, appLogger)
		if err != nil {
			appLogger.WithError(err).Fatal("Failed to open job tracker")
		}
		jobTracker = monitor
	}

	svc := etl.NewService(
		indicatorRepo,
		jobRepo,
		logRepo,
		seriesRepo,
		factory,
		calc.NewEngine(),
		jobTracker,
		appLogger,
		etl.Config{
			FetchTimeout:   cfg.ETL.FetchTimeout,
			IndicatorDelay: cfg.ETL.IndicatorDelay,
			Staleness:      cfg.ETL.Staleness,
			DaysBack:       cfg.ETL.DaysBack,
			StuckAfter:     cfg.ETL.StuckAfter,
		},
	)

	// Cancel the run on SIGINT/SIGTERM; completed indicators keep their state
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var job *domain.ETLJob
	switch {
	case *incremental:
		job, err = svc.CreateIncrementalJob(ctx, *daysBack)
	case *category != "":
		job, err = svc.CreateCategoryJob(ctx, *category, *importanceMin, *startDate, *endDate)
	default:
		job, err = svc.CreateJob(ctx, domain.JobMetadata{
			IndicatorIDs: parseIDs(*ids),
			Source:       *sourceFilter,
			StartDate:    *startDate,
			EndDate:      *endDate,
			ForceRefresh: *force,
		})
	}
	if err != nil {
		appLogger.WithError(err).Fatal("Failed to create job")
	}

	appLogger.WithFields(logger.Fields{
		"job_id": job.JobID,
		"total":  job.TotalIndicators,
	}).Info("Job created")

	if err := svc.ProcessJob(ctx, job.JobID); err != nil {
		appLogger.WithError(err).WithField("job_id", job.JobID).Error("Job did not complete")
		os.Exit(1)
	}

	appLogger.WithField("job_id", job.JobID).Info("Job completed")
}

func parseIDs(raw string) []uint {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	ids := make([]uint, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		v, err := strconv.ParseUint(p, 10, 32)
		if err != nil {
			logger.Fatal("Invalid indicator id %q", p)
		}
		ids = append(ids, uint(v))
	}
	return ids
}
