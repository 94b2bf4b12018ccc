package handler

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/nff/ingestion/internal/domain"
	"github.com/nff/ingestion/internal/etl"
	"github.com/nff/ingestion/internal/logger"
	"github.com/nff/ingestion/internal/repository"
	"github.com/nff/ingestion/internal/tasks"
	"github.com/nff/ingestion/internal/tracker"
)

// ETLHandler handles pipeline job endpoints. Job creation is synchronous;
// processing runs through the task runner so HTTP requests return
// immediately with a job id to poll.
type ETLHandler struct {
	svc     *etl.Service
	runner  *tasks.Runner
	jobs    *repository.JobRepository
	logs    *repository.ETLLogRepository
	monitor *tracker.Monitor
	log     *logger.Logger
}

// NewETLHandler creates a new ETL handler.
// Parameters:
//   - svc: pipeline service.
//   - runner: background task runner.
//   - jobs: job repository.
//   - logs: per-indicator run log repository.
//   - monitor: optional job tracker, may be nil.
//   - log: structured logger.
// Returns:
//   - *ETLHandler: initialized handler.
func NewETLHandler(
	svc *etl.Service,
	runner *tasks.Runner,
	jobs *repository.JobRepository,
	logs *repository.ETLLogRepository,
	monitor *tracker.Monitor,
	log *logger.Logger,
) *ETLHandler {
	return &ETLHandler{
		svc:     svc,
		runner:  runner,
		jobs:    jobs,
		logs:    logs,
		monitor: monitor,
		log:     log,
	}
}

// CreateJobRequest is the payload for POST /api/v1/etl/jobs.
type CreateJobRequest struct {
	IndicatorIDs  []uint `json:"indicator_ids"`
	Category      string `json:"category"`
	Source        string `json:"source"`
	ImportanceMin int    `json:"importance_min"`
	StartDate     string `json:"start_date"`
	EndDate       string `json:"end_date"`
	ForceRefresh  bool   `json:"force_refresh"`
}

// CreateJob handles POST /api/v1/etl/jobs. The job row is created with its
// selection snapshot; processing starts via the process endpoint.
func (h *ETLHandler) CreateJob(c *gin.Context) {
	var req CreateJobRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid request: " + err.Error(),
		})
		return
	}
	if req.StartDate != "" && !isISODate(req.StartDate) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "start_date must be YYYY-MM-DD"})
		return
	}
	if req.EndDate != "" && !isISODate(req.EndDate) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "end_date must be YYYY-MM-DD"})
		return
	}

	job, err := h.svc.CreateJob(c.Request.Context(), domain.JobMetadata{
		IndicatorIDs:  req.IndicatorIDs,
		Category:      req.Category,
		Source:        req.Source,
		ImportanceMin: req.ImportanceMin,
		StartDate:     req.StartDate,
		EndDate:       req.EndDate,
		ForceRefresh:  req.ForceRefresh,
	})
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to create job: " + err.Error(),
		})
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"job_id":           job.JobID,
		"status":           job.Status,
		"total_indicators": job.TotalIndicators,
	})
}

// CreateCategoryJobRequest is the payload for POST /api/v1/etl/category-jobs.
type CreateCategoryJobRequest struct {
	Category      string `json:"category" binding:"required"`
	ImportanceMin int    `json:"importance_min"`
	StartDate     string `json:"start_date"`
	EndDate       string `json:"end_date"`
}

// CreateCategoryJob handles POST /api/v1/etl/category-jobs.
func (h *ETLHandler) CreateCategoryJob(c *gin.Context) {
	var req CreateCategoryJobRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid request: " + err.Error(),
		})
		return
	}
	if req.StartDate != "" && !isISODate(req.StartDate) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "start_date must be YYYY-MM-DD"})
		return
	}
	if req.EndDate != "" && !isISODate(req.EndDate) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "end_date must be YYYY-MM-DD"})
		return
	}

	job, err := h.svc.CreateCategoryJob(c.Request.Context(), req.Category, req.ImportanceMin, req.StartDate, req.EndDate)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to create category job: " + err.Error(),
		})
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"job_id":           job.JobID,
		"status":           job.Status,
		"total_indicators": job.TotalIndicators,
	})
}

// ProcessJob handles POST /api/v1/etl/jobs/:id/process, running a created
// job from its stored metadata. Also replays interrupted runs.
func (h *ETLHandler) ProcessJob(c *gin.Context) {
	jobID := c.Param("id")

	if _, err := h.svc.GetJobResult(c.Request.Context(), jobID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Job not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to get job: " + err.Error(),
		})
		return
	}

	h.launch(jobID)
	c.JSON(http.StatusAccepted, gin.H{"job_id": jobID, "status": "PROCESSING"})
}

// FetchIndicator handles POST /api/v1/indicators/:id/fetch, running the
// pipeline for a single indicator. Optional query parameter: force_refresh.
func (h *ETLHandler) FetchIndicator(c *gin.Context) {
	raw := c.Param("id")
	id, err := strconv.ParseUint(raw, 10, 32)
	if err != nil || id == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid indicator id"})
		return
	}

	job, err := h.svc.CreateJob(c.Request.Context(), domain.JobMetadata{
		IndicatorIDs: []uint{uint(id)},
		ForceRefresh: c.Query("force_refresh") == "true",
	})
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to create job: " + err.Error(),
		})
		return
	}
	if job.TotalIndicators == 0 {
		c.JSON(http.StatusNotFound, gin.H{
			"error": "Indicator is inactive, blocked, or unknown",
		})
		return
	}

	h.launch(job.JobID)
	c.JSON(http.StatusAccepted, gin.H{
		"job_id":       job.JobID,
		"indicator_id": id,
	})
}

// TriggerIncremental handles POST /api/v1/etl/incremental-jobs.
// Optional query parameter: days_back.
func (h *ETLHandler) TriggerIncremental(c *gin.Context) {
	daysBack := 0
	if raw := c.Query("days_back"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil || v < 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "days_back must be a non-negative integer"})
			return
		}
		daysBack = v
	}

	job, err := h.svc.CreateIncrementalJob(c.Request.Context(), daysBack)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to create incremental job: " + err.Error(),
		})
		return
	}

	h.launch(job.JobID)
	c.JSON(http.StatusAccepted, gin.H{
		"job_id":           job.JobID,
		"status":           job.Status,
		"total_indicators": job.TotalIndicators,
	})
}

// GetJob handles GET /api/v1/etl/jobs/:id, returning the job row plus its
// per-indicator run log.
func (h *ETLHandler) GetJob(c *gin.Context) {
	jobID := c.Param("id")
	ctx := c.Request.Context()

	job, err := h.svc.GetJobResult(ctx, jobID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Job not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to get job: " + err.Error(),
		})
		return
	}

	entries, err := h.logs.ListByJob(ctx, jobID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to load job log: " + err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"job":     job,
		"entries": entries,
	})
}

// ListJobs handles GET /api/v1/etl/jobs. Optional query parameters:
// days (history window, default 7), limit (default 50).
func (h *ETLHandler) ListJobs(c *gin.Context) {
	days := 7
	if raw := c.Query("days"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil || v <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "days must be a positive integer"})
			return
		}
		days = v
	}
	limit := 50
	if raw := c.Query("limit"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil || v <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a positive integer"})
			return
		}
		limit = v
	}

	since := time.Now().UTC().AddDate(0, 0, -days)
	jobs, err := h.jobs.ListRecent(c.Request.Context(), since, limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to list jobs: " + err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"jobs":  jobs,
		"total": len(jobs),
	})
}

// GetSummary handles GET /api/v1/etl/summary, returning tracker aggregates
// for the trailing week.
func (h *ETLHandler) GetSummary(c *gin.Context) {
	if h.monitor == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Job tracking is disabled"})
		return
	}

	summary, err := h.monitor.Summarize(0)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to summarize jobs: " + err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, summary)
}

// launch processes a job in the background, detached from the request
// context so client disconnects do not cancel the run.
func (h *ETLHandler) launch(jobID string) {
	h.log.WithField("job_id", jobID).Info("Job processing launched")
	h.runner.Go(context.Background(), "job-"+jobID, func(ctx context.Context) error {
		return h.svc.ProcessJob(ctx, jobID)
	})
}

func isISODate(s string) bool {
	_, err := time.Parse("2006-01-02", s)
	return err == nil
}
