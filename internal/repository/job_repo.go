package repository

import (
	"context"
	"time"

	"github.com/nff/ingestion/internal/domain"
	"gorm.io/gorm"
)

// JobRepository handles ETL job records.
type JobRepository struct {
	db *gorm.DB
}

// NewJobRepository creates a new JobRepository.
// Parameters:
//   - db: GORM database handle used for queries.
// Returns:
//   - *JobRepository: repository instance bound to db.
func NewJobRepository(db *gorm.DB) *JobRepository {
	return &JobRepository{db: db}
}

// Create inserts a new job record.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - job: job record to persist.
// Returns:
//   - error: non-nil if the insert fails.
func (r *JobRepository) Create(ctx context.Context, job *domain.ETLJob) error {
	return r.db.WithContext(ctx).Create(job).Error
}

// GetByID retrieves a job by its ID.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - jobID: job identifier.
// Returns:
//   - *domain.ETLJob: job record if found.
//   - error: non-nil if lookup fails.
func (r *JobRepository) GetByID(ctx context.Context, jobID string) (*domain.ETLJob, error) {
	var job domain.ETLJob
	if err := r.db.WithContext(ctx).First(&job, "job_id = ?", jobID).Error; err != nil {
		return nil, err
	}
	return &job, nil
}

// Complete finalizes a job with its terminal status and counters.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - jobID: job identifier.
//   - status: terminal status (COMPLETED or FAILED).
//   - successful: indicators that finished OK.
//   - failed: indicators that errored.
//   - blocked: indicators rejected before fetch.
// Returns:
//   - error: non-nil if the update fails.
func (r *JobRepository) Complete(ctx context.Context, jobID string, status domain.JobStatus, successful, failed, blocked int) error {
	now := time.Now().UTC()
	return r.db.WithContext(ctx).Model(&domain.ETLJob{}).
		Where("job_id = ?", jobID).
		Updates(map[string]interface{}{
			"status":       status,
			"successful":   successful,
			"failed":       failed,
			"blocked":      blocked,
			"completed_at": now,
		}).Error
}

// ListRecent retrieves jobs created after the cutoff, newest first.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - since: inclusive lower bound on creation time.
//   - limit: maximum number of records to return; 0 means no limit.
// Returns:
//   - []domain.ETLJob: matching jobs.
//   - error: non-nil if the query fails.
func (r *JobRepository) ListRecent(ctx context.Context, since time.Time, limit int) ([]domain.ETLJob, error) {
	var jobs []domain.ETLJob
	query := r.db.WithContext(ctx).
		Where("created_at >= ?", since).
		Order("created_at DESC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	if err := query.Find(&jobs).Error; err != nil {
		return nil, err
	}
	return jobs, nil
}
