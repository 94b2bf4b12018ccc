package api

import (
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/nff/ingestion/internal/api/handler"
	"github.com/nff/ingestion/internal/api/middleware"
	"github.com/nff/ingestion/internal/etl"
	"github.com/nff/ingestion/internal/logger"
	"github.com/nff/ingestion/internal/repository"
	"github.com/nff/ingestion/internal/tasks"
	"github.com/nff/ingestion/internal/tracker"
)

// Deps bundles everything the HTTP layer needs.
type Deps struct {
	DB         *gorm.DB
	Service    *etl.Service
	Runner     *tasks.Runner
	Indicators *repository.IndicatorRepository
	Jobs       *repository.JobRepository
	Logs       *repository.ETLLogRepository
	Monitor    *tracker.Monitor // may be nil when tracking is disabled
	Logger     *logger.Logger
	Mode       string
	CORS       middleware.CORSConfig
}

// SetupRouter configures the Gin router with all routes
func SetupRouter(deps Deps) *gin.Engine {
	// Set Gin mode
	switch deps.Mode {
	case "release":
		gin.SetMode(gin.ReleaseMode)
	case "test":
		gin.SetMode(gin.TestMode)
	default:
		gin.SetMode(gin.DebugMode)
	}

	r := gin.New()

	// Add middleware
	r.Use(gin.Recovery())
	r.Use(middleware.LoggerMiddleware(deps.Logger))
	r.Use(middleware.CORS(deps.CORS))

	// Create handlers
	healthHandler := handler.NewHealthHandler(deps.DB)
	indicatorHandler := handler.NewIndicatorHandler(deps.Indicators, deps.Service)
	etlHandler := handler.NewETLHandler(deps.Service, deps.Runner, deps.Jobs, deps.Logs, deps.Monitor, deps.Logger)

	// Health check
	r.GET("/health", healthHandler.Health)

	// API v1 routes
	v1 := r.Group("/api/v1")
	{
		// Indicators
		v1.GET("/indicators", indicatorHandler.ListIndicators)
		v1.GET("/indicators/status", indicatorHandler.GetStatusSummary)
		v1.GET("/indicators/:id", indicatorHandler.GetIndicator)
		v1.GET("/indicators/:id/timeseries", indicatorHandler.GetIndicatorData)
		v1.POST("/indicators/:id/fetch", etlHandler.FetchIndicator)
		v1.POST("/indicators/:id/clear-blocked", indicatorHandler.ClearBlocked)

		// ETL jobs
		v1.POST("/etl/jobs", etlHandler.CreateJob)
		v1.POST("/etl/category-jobs", etlHandler.CreateCategoryJob)
		v1.POST("/etl/incremental-jobs", etlHandler.TriggerIncremental)
		v1.GET("/etl/jobs", etlHandler.ListJobs)
		v1.GET("/etl/jobs/:id", etlHandler.GetJob)
		v1.POST("/etl/jobs/:id/process", etlHandler.ProcessJob)
		v1.GET("/etl/summary", etlHandler.GetSummary)
	}

	return r
}
