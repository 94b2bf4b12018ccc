package repository

import (
	"context"
	"testing"
	"time"

	"github.com/nff/ingestion/internal/domain"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := db.AutoMigrate(
		&domain.Category{},
		&domain.Indicator{},
		&domain.ETLJob{},
		&domain.ETLLogEntry{},
		&domain.TimeSeriesPoint{},
	); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

func day(d int) time.Time {
	return time.Date(2024, 3, d, 0, 0, 0, 0, time.UTC)
}

func TestUpsertBatchIdempotent(t *testing.T) {
	repo := NewTimeSeriesRepository(newTestDB(t))
	ctx := context.Background()

	batch := []domain.TimeSeriesPoint{
		{IndicatorID: 1, Date: day(1), Value: 10},
		{IndicatorID: 1, Date: day(2), Value: 11},
		{IndicatorID: 1, Date: day(3), Value: 12},
	}

	written, dropped, err := repo.UpsertBatch(ctx, batch)
	if err != nil {
		t.Fatalf("first upsert: %v", err)
	}
	if written != 3 || dropped != 0 {
		t.Fatalf("first upsert: written=%d dropped=%d", written, dropped)
	}

	// Storing the identical batch again must leave the table unchanged.
	if _, _, err := repo.UpsertBatch(ctx, batch); err != nil {
		t.Fatalf("second upsert: %v", err)
	}
	count, err := repo.Count(ctx, 1)
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 3 {
		t.Fatalf("count after replay = %d, want 3", count)
	}
}

func TestUpsertBatchLastWinsOnDuplicateDates(t *testing.T) {
	repo := NewTimeSeriesRepository(newTestDB(t))
	ctx := context.Background()

	batch := []domain.TimeSeriesPoint{
		{IndicatorID: 7, Date: day(5), Value: 1},
		{IndicatorID: 7, Date: day(5), Value: 2},
		{IndicatorID: 7, Date: day(6), Value: 3},
	}
	written, dropped, err := repo.UpsertBatch(ctx, batch)
	if err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if written != 2 || dropped != 1 {
		t.Fatalf("written=%d dropped=%d, want 2 and 1", written, dropped)
	}

	points, err := repo.GetAll(ctx, 7)
	if err != nil {
		t.Fatalf("get all: %v", err)
	}
	if len(points) != 2 {
		t.Fatalf("stored %d points, want 2", len(points))
	}
	if points[0].Value != 2 {
		t.Errorf("duplicate date kept value %v, want the last occurrence 2", points[0].Value)
	}
}

func TestUpsertBatchUpdatesExistingRows(t *testing.T) {
	repo := NewTimeSeriesRepository(newTestDB(t))
	ctx := context.Background()

	if _, _, err := repo.UpsertBatch(ctx, []domain.TimeSeriesPoint{
		{IndicatorID: 3, Date: day(10), Value: 100},
	}); err != nil {
		t.Fatalf("seed: %v", err)
	}
	if _, _, err := repo.UpsertBatch(ctx, []domain.TimeSeriesPoint{
		{IndicatorID: 3, Date: day(10), Value: 101},
	}); err != nil {
		t.Fatalf("revise: %v", err)
	}

	points, err := repo.GetAll(ctx, 3)
	if err != nil {
		t.Fatalf("get all: %v", err)
	}
	if len(points) != 1 || points[0].Value != 101 {
		t.Fatalf("got %+v, want single row with value 101", points)
	}
}

func TestGetRangeAndLatestDate(t *testing.T) {
	repo := NewTimeSeriesRepository(newTestDB(t))
	ctx := context.Background()

	var batch []domain.TimeSeriesPoint
	for d := 1; d <= 9; d++ {
		batch = append(batch, domain.TimeSeriesPoint{IndicatorID: 2, Date: day(d), Value: float64(d)})
	}
	if _, _, err := repo.UpsertBatch(ctx, batch); err != nil {
		t.Fatalf("seed: %v", err)
	}

	points, err := repo.GetRange(ctx, 2, day(3), day(5))
	if err != nil {
		t.Fatalf("get range: %v", err)
	}
	if len(points) != 3 || !points[0].Date.Equal(day(3)) || !points[2].Date.Equal(day(5)) {
		t.Fatalf("range result wrong: %+v", points)
	}

	latest, err := repo.LatestDate(ctx, 2)
	if err != nil {
		t.Fatalf("latest date: %v", err)
	}
	if latest == nil || !latest.Equal(day(9)) {
		t.Fatalf("latest = %v, want %v", latest, day(9))
	}

	none, err := repo.LatestDate(ctx, 999)
	if err != nil {
		t.Fatalf("latest date empty: %v", err)
	}
	if none != nil {
		t.Fatalf("latest for empty indicator = %v, want nil", none)
	}
}
