package etl

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/nff/ingestion/internal/domain"
	"github.com/nff/ingestion/internal/logger"
)

// Job type markers stored in metadata and used as job id prefixes.
const (
	JobTypeETL         = "etl"
	JobTypeCategory    = "category"
	JobTypeIncremental = "incremental"
)

// newJobID builds an opaque, source-prefixed job id such as "ETL_1a2b3c4d5e6f".
func newJobID(jobType string) string {
	var prefix string
	switch jobType {
	case JobTypeCategory:
		prefix = "CATEGORY_"
	case JobTypeIncremental:
		prefix = "INCR_"
	default:
		prefix = "ETL_"
	}
	raw := strings.ReplaceAll(uuid.New().String(), "-", "")
	return prefix + raw[:12]
}

// CreateJob creates a batch job over an explicit indicator selection.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - meta: selection criteria; Type is overwritten with the etl marker.
// Returns:
//   - *domain.ETLJob: created job, status PROCESSING.
//   - error: non-nil if the selection or insert fails.
func (s *Service) CreateJob(ctx context.Context, meta domain.JobMetadata) (*domain.ETLJob, error) {
	meta.Type = JobTypeETL
	return s.createJob(ctx, meta)
}

// CreateCategoryJob creates a job over all indicators of a category at or
// above a minimum importance.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - category: category name.
//   - importanceMin: minimum importance (inclusive); 0 means all.
//   - startDate: optional ISO-8601 range start.
//   - endDate: optional ISO-8601 range end.
// Returns:
//   - *domain.ETLJob: created job.
//   - error: non-nil if the selection or insert fails.
func (s *Service) CreateCategoryJob(ctx context.Context, category string, importanceMin int, startDate, endDate string) (*domain.ETLJob, error) {
	return s.createJob(ctx, domain.JobMetadata{
		Type:          JobTypeCategory,
		Category:      category,
		ImportanceMin: importanceMin,
		StartDate:     startDate,
		EndDate:       endDate,
	})
}

// CreateIncrementalJob creates a job over stale indicators, snapshotting
// each indicator's watermark so the job is replayable from metadata alone.
// Indicators already current today are left out.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - daysBack: incremental range for never-fetched indicators; 0 selects
//     the configured default.
// Returns:
//   - *domain.ETLJob: created job; TotalIndicators may be zero when
//     everything is current.
//   - error: non-nil if the selection or insert fails.
func (s *Service) CreateIncrementalJob(ctx context.Context, daysBack int) (*domain.ETLJob, error) {
	if daysBack <= 0 {
		daysBack = s.cfg.DaysBack
	}
	cutoff := time.Now().UTC().Add(-s.cfg.Staleness)
	stale, err := s.indicators.ListStale(ctx, cutoff)
	if err != nil {
		return nil, fmt.Errorf("failed to select stale indicators: %w", err)
	}

	today := truncateToDay(time.Now().UTC())
	targets := make([]domain.IncrementalTarget, 0, len(stale))
	for _, ind := range stale {
		target := domain.IncrementalTarget{ID: ind.ID}
		if ind.LastSuccessfulAt != nil {
			target.LastSuccess = ind.LastSuccessfulAt.UTC().Format("2006-01-02")
		}
		if !s.incrementalStart(target.LastSuccess, today).Before(today) {
			continue
		}
		targets = append(targets, target)
	}

	return s.createJob(ctx, domain.JobMetadata{
		Type:       JobTypeIncremental,
		DaysBack:   daysBack,
		Indicators: targets,
	})
}

func (s *Service) createJob(ctx context.Context, meta domain.JobMetadata) (*domain.ETLJob, error) {
	total, err := s.countTargets(ctx, &meta)
	if err != nil {
		return nil, err
	}

	job := &domain.ETLJob{
		JobID:           newJobID(meta.Type),
		Status:          domain.JobStatusProcessing,
		TotalIndicators: total,
		StartedAt:       time.Now().UTC(),
		Metadata:        meta,
	}
	if err := s.jobs.Create(ctx, job); err != nil {
		return nil, fmt.Errorf("failed to create job: %w", err)
	}

	s.log(ctx).WithFields(logger.Fields{
		"job_id":   job.JobID,
		"job_type": meta.Type,
		"total":    total,
	}).Info("Job created")
	return job, nil
}

func (s *Service) countTargets(ctx context.Context, meta *domain.JobMetadata) (int, error) {
	targets, err := s.resolveTargets(ctx, meta)
	if err != nil {
		return 0, err
	}
	return len(targets), nil
}
