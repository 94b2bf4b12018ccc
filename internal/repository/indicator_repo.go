package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/nff/ingestion/internal/domain"
	"gorm.io/gorm"
)

// IndicatorRepository handles indicator metadata operations.
type IndicatorRepository struct {
	db *gorm.DB
}

// NewIndicatorRepository creates a new IndicatorRepository.
// Parameters:
//   - db: GORM database handle used for queries.
// Returns:
//   - *IndicatorRepository: repository instance bound to db.
func NewIndicatorRepository(db *gorm.DB) *IndicatorRepository {
	return &IndicatorRepository{db: db}
}

// GetByID retrieves an indicator by its ID.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - id: indicator ID.
// Returns:
//   - *domain.Indicator: indicator record if found.
//   - error: non-nil if lookup fails.
func (r *IndicatorRepository) GetByID(ctx context.Context, id uint) (*domain.Indicator, error) {
	var ind domain.Indicator
	if err := r.db.WithContext(ctx).First(&ind, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &ind, nil
}

// GetByIDs retrieves indicators by a list of IDs, active only.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - ids: list of indicator IDs.
// Returns:
//   - []domain.Indicator: matching active indicators.
//   - error: non-nil if the query fails.
func (r *IndicatorRepository) GetByIDs(ctx context.Context, ids []uint) ([]domain.Indicator, error) {
	if len(ids) == 0 {
		return []domain.Indicator{}, nil
	}
	var indicators []domain.Indicator
	if err := r.db.WithContext(ctx).
		Where("id IN ? AND is_active = ?", ids, true).
		Order("id").
		Find(&indicators).Error; err != nil {
		return nil, fmt.Errorf("failed to get indicators by IDs: %w", err)
	}
	return indicators, nil
}

// ListActive retrieves all active indicators ordered by ID.
// Parameters:
//   - ctx: context for cancellation and deadlines.
// Returns:
//   - []domain.Indicator: active indicators.
//   - error: non-nil if the query fails.
func (r *IndicatorRepository) ListActive(ctx context.Context) ([]domain.Indicator, error) {
	var indicators []domain.Indicator
	if err := r.db.WithContext(ctx).
		Where("is_active = ?", true).
		Order("id").
		Find(&indicators).Error; err != nil {
		return nil, err
	}
	return indicators, nil
}

// ListByCategory retrieves active indicators in a named category at or above
// a minimum importance.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - category: category name to filter by.
//   - importanceMin: minimum importance (inclusive); 0 means all.
// Returns:
//   - []domain.Indicator: matching indicators.
//   - error: non-nil if the query fails.
func (r *IndicatorRepository) ListByCategory(ctx context.Context, category string, importanceMin int) ([]domain.Indicator, error) {
	var indicators []domain.Indicator
	query := r.db.WithContext(ctx).
		Joins("JOIN chart_categories ON chart_categories.id = indicator_metadata.category_id").
		Where("chart_categories.name = ? AND indicator_metadata.is_active = ?", category, true)
	if importanceMin > 0 {
		query = query.Where("indicator_metadata.importance >= ?", importanceMin)
	}
	if err := query.Order("indicator_metadata.id").Find(&indicators).Error; err != nil {
		return nil, err
	}
	return indicators, nil
}

// ListStale retrieves active, non-blocked indicators whose last successful
// run is older than the cutoff or missing entirely.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - cutoff: indicators successful after this instant are considered fresh.
// Returns:
//   - []domain.Indicator: stale indicators.
//   - error: non-nil if the query fails.
func (r *IndicatorRepository) ListStale(ctx context.Context, cutoff time.Time) ([]domain.Indicator, error) {
	var indicators []domain.Indicator
	if err := r.db.WithContext(ctx).
		Where("is_active = ? AND etl_status <> ?", true, domain.StatusBlocked).
		Where("last_successful_at IS NULL OR last_successful_at < ?", cutoff).
		Order("id").
		Find(&indicators).Error; err != nil {
		return nil, err
	}
	return indicators, nil
}

// MarkProcessing transitions an indicator into PROCESSING and stamps the run time.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - id: indicator ID.
//   - at: run start instant.
// Returns:
//   - error: non-nil if the update fails.
func (r *IndicatorRepository) MarkProcessing(ctx context.Context, id uint, at time.Time) error {
	return r.db.WithContext(ctx).Model(&domain.Indicator{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"etl_status":      domain.StatusProcessing,
			"etl_status_code": "",
			"etl_notes":       "",
			"last_etl_run_at": at,
		}).Error
}

// MarkSuccess transitions an indicator into OK and updates the watermark.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - id: indicator ID.
//   - at: completion instant, stored as the incremental watermark.
//   - recordsCount: number of rows now held for the indicator.
// Returns:
//   - error: non-nil if the update fails.
func (r *IndicatorRepository) MarkSuccess(ctx context.Context, id uint, at time.Time, recordsCount int) error {
	return r.db.WithContext(ctx).Model(&domain.Indicator{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"etl_status":         domain.StatusOK,
			"etl_status_code":    "",
			"etl_notes":          "",
			"last_successful_at": at,
			"records_count":      recordsCount,
		}).Error
}

// MarkFailure transitions an indicator into ERROR or BLOCKED with diagnostics.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - id: indicator ID.
//   - status: terminal status for this run (ERROR or BLOCKED).
//   - code: machine-readable error code.
//   - notes: human-readable error detail.
// Returns:
//   - error: non-nil if the update fails.
func (r *IndicatorRepository) MarkFailure(ctx context.Context, id uint, status domain.ETLStatus, code, notes string) error {
	return r.db.WithContext(ctx).Model(&domain.Indicator{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"etl_status":      status,
			"etl_status_code": code,
			"etl_notes":       notes,
		}).Error
}

// ClearBlocked resets a BLOCKED indicator back to UNKNOWN so it becomes
// eligible for fetching again. Manual operation; no-op for other statuses.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - id: indicator ID.
// Returns:
//   - error: non-nil if the update fails.
func (r *IndicatorRepository) ClearBlocked(ctx context.Context, id uint) error {
	return r.db.WithContext(ctx).Model(&domain.Indicator{}).
		Where("id = ? AND etl_status = ?", id, domain.StatusBlocked).
		Updates(map[string]interface{}{
			"etl_status":      domain.StatusUnknown,
			"etl_status_code": "",
			"etl_notes":       "",
		}).Error
}

// ResetStuckProcessing resets indicators stuck in PROCESSING longer than the
// cutoff back to UNKNOWN. Self-healing for crashed runs.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - cutoff: runs started before this instant are considered stuck.
// Returns:
//   - int64: number of indicators reset.
//   - error: non-nil if the update fails.
func (r *IndicatorRepository) ResetStuckProcessing(ctx context.Context, cutoff time.Time) (int64, error) {
	result := r.db.WithContext(ctx).Model(&domain.Indicator{}).
		Where("etl_status = ? AND (last_etl_run_at IS NULL OR last_etl_run_at < ?)", domain.StatusProcessing, cutoff).
		Updates(map[string]interface{}{
			"etl_status": domain.StatusUnknown,
			"etl_notes":  "reset from stuck PROCESSING",
		})
	return result.RowsAffected, result.Error
}

// CountByStatus counts active indicators grouped by ETL status.
// Parameters:
//   - ctx: context for cancellation and deadlines.
// Returns:
//   - map[domain.ETLStatus]int64: count per status.
//   - error: non-nil if the query fails.
func (r *IndicatorRepository) CountByStatus(ctx context.Context) (map[domain.ETLStatus]int64, error) {
	type row struct {
		ETLStatus domain.ETLStatus
		N         int64
	}
	var rows []row
	if err := r.db.WithContext(ctx).Model(&domain.Indicator{}).
		Select("etl_status, COUNT(*) AS n").
		Where("is_active = ?", true).
		Group("etl_status").
		Scan(&rows).Error; err != nil {
		return nil, err
	}
	counts := make(map[domain.ETLStatus]int64, len(rows))
	for _, r := range rows {
		counts[r.ETLStatus] = r.N
	}
	return counts, nil
}
