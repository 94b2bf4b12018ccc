package repository

import (
	"context"
	"time"

	"github.com/nff/ingestion/internal/domain"
	"gorm.io/gorm"
)

// ETLLogRepository handles per-indicator ETL attempt logs. Rows are written
// once at attempt start and finalized exactly once at completion; finished
// rows are never touched again.
type ETLLogRepository struct {
	db *gorm.DB
}

// NewETLLogRepository creates a new ETLLogRepository.
// Parameters:
//   - db: GORM database handle used for queries.
// Returns:
//   - *ETLLogRepository: repository instance bound to db.
func NewETLLogRepository(db *gorm.DB) *ETLLogRepository {
	return &ETLLogRepository{db: db}
}

// Start inserts the PROCESSING row for one indicator attempt.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - entry: log row to persist; ID is filled in on return.
// Returns:
//   - error: non-nil if the insert fails.
func (r *ETLLogRepository) Start(ctx context.Context, entry *domain.ETLLogEntry) error {
	return r.db.WithContext(ctx).Create(entry).Error
}

// Finish finalizes an attempt row with its outcome. The completed_at guard
// keeps finished rows immutable.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - entry: log row carrying the final status, error fields, and counts.
// Returns:
//   - error: non-nil if the update fails.
func (r *ETLLogRepository) Finish(ctx context.Context, entry *domain.ETLLogEntry) error {
	now := time.Now().UTC()
	return r.db.WithContext(ctx).Model(&domain.ETLLogEntry{}).
		Where("id = ? AND completed_at IS NULL", entry.ID).
		Updates(map[string]interface{}{
			"status":            entry.Status,
			"error_code":        entry.ErrorCode,
			"error_message":     entry.ErrorMessage,
			"error_category":    entry.ErrorCategory,
			"records_processed": entry.RecordsProcessed,
			"records_inserted":  entry.RecordsInserted,
			"completed_at":      now,
		}).Error
}

// ListByJob retrieves all attempt rows for a job in insertion order.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - jobID: job identifier.
// Returns:
//   - []domain.ETLLogEntry: attempt rows for the job.
//   - error: non-nil if the query fails.
func (r *ETLLogRepository) ListByJob(ctx context.Context, jobID string) ([]domain.ETLLogEntry, error) {
	var entries []domain.ETLLogEntry
	if err := r.db.WithContext(ctx).
		Where("job_id = ?", jobID).
		Order("id").
		Find(&entries).Error; err != nil {
		return nil, err
	}
	return entries, nil
}

// ListByIndicator retrieves the most recent attempt rows for one indicator.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - indicatorID: indicator ID.
//   - limit: maximum number of rows to return.
// Returns:
//   - []domain.ETLLogEntry: attempt rows, newest first.
//   - error: non-nil if the query fails.
func (r *ETLLogRepository) ListByIndicator(ctx context.Context, indicatorID uint, limit int) ([]domain.ETLLogEntry, error) {
	var entries []domain.ETLLogEntry
	if err := r.db.WithContext(ctx).
		Where("indicator_id = ?", indicatorID).
		Order("id DESC").
		Limit(limit).
		Find(&entries).Error; err != nil {
		return nil, err
	}
	return entries, nil
}
