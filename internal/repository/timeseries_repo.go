package repository

import (
	"context"
	"errors"
	"time"

	"github.com/nff/ingestion/internal/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// TimeSeriesRepository handles observation storage. Writes are idempotent:
// the same batch stored twice leaves the table unchanged.
type TimeSeriesRepository struct {
	db *gorm.DB
}

// NewTimeSeriesRepository creates a new TimeSeriesRepository.
// Parameters:
//   - db: GORM database handle used for queries.
// Returns:
//   - *TimeSeriesRepository: repository instance bound to db.
func NewTimeSeriesRepository(db *gorm.DB) *TimeSeriesRepository {
	return &TimeSeriesRepository{db: db}
}

// UpsertBatch stores a batch of points for one indicator. Duplicate dates
// within the batch collapse to the last occurrence before writing; conflicts
// with existing rows on (indicator_id, date) update the stored values.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - points: observations to store, all for the same indicator.
// Returns:
//   - int: number of rows written after in-batch deduplication.
//   - int: number of in-batch duplicates dropped.
//   - error: non-nil if the write fails.
func (r *TimeSeriesRepository) UpsertBatch(ctx context.Context, points []domain.TimeSeriesPoint) (int, int, error) {
	deduped, dropped := dedupeByDate(points)
	if len(deduped) == 0 {
		return 0, dropped, nil
	}
	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "indicator_id"}, {Name: "date"}},
		UpdateAll: true,
	}).CreateInBatches(deduped, 500).Error
	if err != nil {
		return 0, dropped, err
	}
	return len(deduped), dropped, nil
}

// dedupeByDate collapses duplicate dates to the last occurrence, preserving
// the order of first appearance.
func dedupeByDate(points []domain.TimeSeriesPoint) ([]domain.TimeSeriesPoint, int) {
	seen := make(map[time.Time]int, len(points))
	out := make([]domain.TimeSeriesPoint, 0, len(points))
	dropped := 0
	for _, p := range points {
		key := p.Date.UTC().Truncate(24 * time.Hour)
		p.Date = key
		if idx, ok := seen[key]; ok {
			out[idx] = p
			dropped++
			continue
		}
		seen[key] = len(out)
		out = append(out, p)
	}
	return out, dropped
}

// GetRange retrieves points for one indicator within [start, end], ordered
// by date.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - indicatorID: indicator ID.
//   - start: inclusive lower bound.
//   - end: inclusive upper bound.
// Returns:
//   - []domain.TimeSeriesPoint: matching points in date order.
//   - error: non-nil if the query fails.
func (r *TimeSeriesRepository) GetRange(ctx context.Context, indicatorID uint, start, end time.Time) ([]domain.TimeSeriesPoint, error) {
	var points []domain.TimeSeriesPoint
	if err := r.db.WithContext(ctx).
		Where("indicator_id = ? AND date >= ? AND date <= ?", indicatorID, start, end).
		Order("date").
		Find(&points).Error; err != nil {
		return nil, err
	}
	return points, nil
}

// GetAll retrieves every stored point for one indicator in date order.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - indicatorID: indicator ID.
// Returns:
//   - []domain.TimeSeriesPoint: all points in date order.
//   - error: non-nil if the query fails.
func (r *TimeSeriesRepository) GetAll(ctx context.Context, indicatorID uint) ([]domain.TimeSeriesPoint, error) {
	var points []domain.TimeSeriesPoint
	if err := r.db.WithContext(ctx).
		Where("indicator_id = ?", indicatorID).
		Order("date").
		Find(&points).Error; err != nil {
		return nil, err
	}
	return points, nil
}

// Count returns the number of stored points for one indicator.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - indicatorID: indicator ID.
// Returns:
//   - int64: number of stored points.
//   - error: non-nil if the query fails.
func (r *TimeSeriesRepository) Count(ctx context.Context, indicatorID uint) (int64, error) {
	var count int64
	if err := r.db.WithContext(ctx).Model(&domain.TimeSeriesPoint{}).
		Where("indicator_id = ?", indicatorID).
		Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}

// LatestDate returns the most recent observation date for one indicator.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - indicatorID: indicator ID.
// Returns:
//   - *time.Time: latest date, nil when no rows exist.
//   - error: non-nil if the query fails.
func (r *TimeSeriesRepository) LatestDate(ctx context.Context, indicatorID uint) (*time.Time, error) {
	var point domain.TimeSeriesPoint
	err := r.db.WithContext(ctx).
		Where("indicator_id = ?", indicatorID).
		Order("date DESC").
		First(&point).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &point.Date, nil
}

// DeleteByIndicator removes every stored point for one indicator. Used by
// force-refresh jobs before a full re-fetch.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - indicatorID: indicator ID.
// Returns:
//   - error: non-nil if the delete fails.
func (r *TimeSeriesRepository) DeleteByIndicator(ctx context.Context, indicatorID uint) error {
	return r.db.WithContext(ctx).
		Delete(&domain.TimeSeriesPoint{}, "indicator_id = ?", indicatorID).Error
}
