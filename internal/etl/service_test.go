package etl

import (
	"context"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/nff/ingestion/internal/calc"
	"github.com/nff/ingestion/internal/domain"
	"github.com/nff/ingestion/internal/logger"
	"github.com/nff/ingestion/internal/repository"
	"github.com/nff/ingestion/internal/source"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// stubFetcher returns canned observations and records every call. Series
// listed in fail return their error instead.
type stubFetcher struct {
	mu    sync.Mutex
	calls int
	fail  map[string]error
}

func (s *stubFetcher) GetSourceID() string    { return "stub" }
func (s *stubFetcher) GetDisplayName() string { return "stub" }

func (s *stubFetcher) Fetch(ctx context.Context, seriesIDs []string, start, end time.Time) (map[string][]source.Observation, error) {
	s.mu.Lock()
	s.calls++
	s.mu.Unlock()

	out := make(map[string][]source.Observation, len(seriesIDs))
	for _, id := range seriesIDs {
		if err, ok := s.fail[id]; ok {
			return nil, err
		}
		base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
		obs := make([]source.Observation, 3)
		for i := range obs {
			obs[i] = source.Observation{SeriesID: id, Date: base.AddDate(0, i, 0), Value: float64(10 + i)}
		}
		out[id] = obs
	}
	return out, nil
}

func (s *stubFetcher) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

// stubResolver hands out the stub fetcher for everything except retired
// sources, mirroring the production factory's contract.
type stubResolver struct {
	fetcher *stubFetcher
}

func (r *stubResolver) ForSource(name string) (source.Fetcher, error) {
	return r.fetcher, nil
}

// cancellingFetcher cancels the run after its first fetch, simulating a
// shutdown arriving mid-job.
type cancellingFetcher struct {
	inner  *stubFetcher
	cancel context.CancelFunc
}

func (c *cancellingFetcher) GetSourceID() string    { return "stub" }
func (c *cancellingFetcher) GetDisplayName() string { return "stub" }

func (c *cancellingFetcher) Fetch(ctx context.Context, seriesIDs []string, start, end time.Time) (map[string][]source.Observation, error) {
	defer c.cancel()
	return c.inner.Fetch(ctx, seriesIDs, start, end)
}

type staticResolver struct {
	fetcher source.Fetcher
}

func (r *staticResolver) ForSource(name string) (source.Fetcher, error) {
	return r.fetcher, nil
}

type testEnv struct {
	svc        *Service
	db         *gorm.DB
	fetcher    *stubFetcher
	indicators *repository.IndicatorRepository
	jobs       *repository.JobRepository
	logs       *repository.ETLLogRepository
	series     *repository.TimeSeriesRepository
}

func newTestEnv(t *testing.T) *testEnv {
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

	fetcher := &stubFetcher{fail: map[string]error{}}
	log := logger.New(&logger.Config{Level: "error", Output: io.Discard})

	indicators := repository.NewIndicatorRepository(db)
	jobs := repository.NewJobRepository(db)
	logs := repository.NewETLLogRepository(db)
	series := repository.NewTimeSeriesRepository(db)

	svc := NewService(indicators, jobs, logs, series,
		&stubResolver{fetcher: fetcher}, calc.NewEngine(), nil, log,
		Config{IndicatorDelay: time.Millisecond})

	return &testEnv{
		svc:        svc,
		db:         db,
		fetcher:    fetcher,
		indicators: indicators,
		jobs:       jobs,
		logs:       logs,
		series:     series,
	}
}

func (e *testEnv) seedIndicator(t *testing.T, ind domain.Indicator) uint {
	t.Helper()
	if ind.Source == "" {
		ind.Source = "FRED"
	}
	ind.IsActive = true
	if ind.ETLStatus == "" {
		ind.ETLStatus = domain.StatusUnknown
	}
	if err := e.db.Create(&ind).Error; err != nil {
		t.Fatalf("seed indicator: %v", err)
	}
	return ind.ID
}

func TestProcessJobIsolatesFailures(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	var failingID uint
	for i := 1; i <= 5; i++ {
		seriesID := "S" + string(rune('0'+i))
		id := env.seedIndicator(t, domain.Indicator{Name: seriesID, SeriesIDs: seriesID})
		if i == 3 {
			failingID = id
			env.fetcher.fail[seriesID] = source.NewFetchError(source.ReasonNotFound, seriesID, "series not found")
		}
	}

	job, err := env.svc.CreateJob(ctx, domain.JobMetadata{})
	if err != nil {
		t.Fatalf("CreateJob: %v", err)
	}
	if job.TotalIndicators != 5 {
		t.Fatalf("TotalIndicators = %d, want 5", job.TotalIndicators)
	}
	if err := env.svc.ProcessJob(ctx, job.JobID); err != nil {
		t.Fatalf("ProcessJob: %v", err)
	}

	done, err := env.jobs.GetByID(ctx, job.JobID)
	if err != nil {
		t.Fatalf("reload job: %v", err)
	}
	if done.Status != domain.JobStatusCompleted {
		t.Errorf("job status = %s, want COMPLETED", done.Status)
	}
	if done.Successful != 4 || done.Failed != 1 || done.Blocked != 0 {
		t.Errorf("counters = %d/%d/%d, want 4/1/0", done.Successful, done.Failed, done.Blocked)
	}
	if done.CompletedAt == nil {
		t.Error("CompletedAt not set on terminal job")
	}

	failing, err := env.indicators.GetByID(ctx, failingID)
	if err != nil {
		t.Fatalf("reload failing indicator: %v", err)
	}
	if failing.ETLStatus != domain.StatusError {
		t.Errorf("failing indicator status = %s, want ERROR", failing.ETLStatus)
	}
	if failing.ETLStatusCode != CodeAPINotFound {
		t.Errorf("failing indicator code = %s, want %s", failing.ETLStatusCode, CodeAPINotFound)
	}
}

func TestProcessJobCancelledMarksFailed(t *testing.T) {
	env := newTestEnv(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	env.seedIndicator(t, domain.Indicator{Name: "first", SeriesIDs: "C1"})
	env.seedIndicator(t, domain.Indicator{Name: "second", SeriesIDs: "C2"})
	env.seedIndicator(t, domain.Indicator{Name: "third", SeriesIDs: "C3"})

	job, err := env.svc.CreateJob(ctx, domain.JobMetadata{})
	if err != nil {
		t.Fatalf("CreateJob: %v", err)
	}

	env.svc.sources = &staticResolver{
		fetcher: &cancellingFetcher{inner: env.fetcher, cancel: cancel},
	}

	if err := env.svc.ProcessJob(ctx, job.JobID); err == nil {
		t.Fatal("ProcessJob returned nil for an interrupted run")
	}

	done, err := env.jobs.GetByID(context.Background(), job.JobID)
	if err != nil {
		t.Fatalf("reload job: %v", err)
	}
	if done.Status != domain.JobStatusFailed {
		t.Errorf("job status = %s, want FAILED (partial run is not COMPLETED)", done.Status)
	}
	if env.fetcher.callCount() != 1 {
		t.Errorf("fetch calls = %d, want 1 (remaining targets skipped)", env.fetcher.callCount())
	}
}

func TestGetIndicatorTimeSeriesLimitReturnsLatest(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	id := env.seedIndicator(t, domain.Indicator{Name: "capped", SeriesIDs: "L1"})
	if res := env.svc.FetchIndicatorData(ctx, id, nil, nil, false, ""); res.Status != domain.LogStatusOK {
		t.Fatalf("fetch status = %s", res.Status)
	}

	points, err := env.svc.GetIndicatorTimeSeries(ctx, id, nil, nil, 2)
	if err != nil {
		t.Fatalf("GetIndicatorTimeSeries: %v", err)
	}
	if len(points) != 2 {
		t.Fatalf("points = %d, want 2", len(points))
	}
	// The stub emits 10, 11, 12 on consecutive months; a capped read keeps
	// the most recent rows, still date-ascending.
	if points[0].Value != 11 || points[1].Value != 12 {
		t.Errorf("values = %v, %v, want 11, 12", points[0].Value, points[1].Value)
	}
	if !points[0].Date.Before(points[1].Date) {
		t.Error("points not date-ascending")
	}
}

func TestFetchIndicatorBlocksBeforeNetwork(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	id := env.seedIndicator(t, domain.Indicator{
		Name:      "Stock Index",
		Source:    "Polygon.io",
		SeriesIDs: "SPY",
	})

	result := env.svc.FetchIndicatorData(ctx, id, nil, nil, false, "ETL_test")
	if result.Status != domain.LogStatusBlocked {
		t.Fatalf("status = %s, want BLOCKED", result.Status)
	}
	if result.ErrorCode != CodeInvalidSource {
		t.Errorf("code = %s, want %s", result.ErrorCode, CodeInvalidSource)
	}
	if env.fetcher.callCount() != 0 {
		t.Errorf("fetcher called %d times, want 0 (validation precedes network)", env.fetcher.callCount())
	}

	ind, err := env.indicators.GetByID(ctx, id)
	if err != nil {
		t.Fatalf("reload indicator: %v", err)
	}
	if ind.ETLStatus != domain.StatusBlocked {
		t.Errorf("indicator status = %s, want BLOCKED", ind.ETLStatus)
	}

	entries, err := env.logs.ListByIndicator(ctx, id, 10)
	if err != nil {
		t.Fatalf("list logs: %v", err)
	}
	if len(entries) != 1 || entries[0].Status != domain.LogStatusBlocked {
		t.Fatalf("log entries = %+v, want one BLOCKED row", entries)
	}
	if entries[0].ErrorCategory != CategoryConfigError {
		t.Errorf("log category = %s, want %s", entries[0].ErrorCategory, CategoryConfigError)
	}
}

func TestBlockedIndicatorsExcludedFromJobs(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	env.seedIndicator(t, domain.Indicator{Name: "ok", SeriesIDs: "OK1"})
	env.seedIndicator(t, domain.Indicator{
		Name: "blocked", SeriesIDs: "B1", ETLStatus: domain.StatusBlocked,
	})

	job, err := env.svc.CreateJob(ctx, domain.JobMetadata{})
	if err != nil {
		t.Fatalf("CreateJob: %v", err)
	}
	if job.TotalIndicators != 1 {
		t.Errorf("TotalIndicators = %d, want 1 (blocked excluded)", job.TotalIndicators)
	}
}

func TestCalculationFailureDegradesToRawData(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	// Ratio needs two series; with one the calculation fails and the raw
	// series is stored instead.
	id := env.seedIndicator(t, domain.Indicator{
		Name:        "Broken Ratio",
		SeriesIDs:   "ONLY",
		Calculation: "Ratio A / B",
	})

	result := env.svc.FetchIndicatorData(ctx, id, nil, nil, false, "")
	if result.Status != domain.LogStatusOK {
		t.Fatalf("status = %s, want OK (degraded, not failed)", result.Status)
	}
	if result.RecordsInserted != 3 {
		t.Errorf("inserted = %d, want 3 raw points", result.RecordsInserted)
	}

	points, err := env.series.GetAll(ctx, id)
	if err != nil {
		t.Fatalf("read points: %v", err)
	}
	for _, p := range points {
		if p.HasCalculation {
			t.Errorf("point %v marked calculated after fallback", p.Date)
		}
	}
}

func TestCalculationAppliedAndAudited(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	id := env.seedIndicator(t, domain.Indicator{
		Name:        "Payroll Change",
		SeriesIDs:   "PAYEMS",
		Calculation: "ΔMoM = t - t-1",
	})

	result := env.svc.FetchIndicatorData(ctx, id, nil, nil, false, "")
	if result.Status != domain.LogStatusOK {
		t.Fatalf("status = %s, want OK", result.Status)
	}
	// Three raw points produce two first differences.
	if result.RecordsInserted != 2 {
		t.Fatalf("inserted = %d, want 2", result.RecordsInserted)
	}

	points, err := env.series.GetAll(ctx, id)
	if err != nil {
		t.Fatalf("read points: %v", err)
	}
	for _, p := range points {
		if !p.HasCalculation || p.CalculatedValue == nil {
			t.Errorf("point %v missing calculation audit fields", p.Date)
		}
		if p.Value != 1 {
			t.Errorf("diff value = %v, want 1", p.Value)
		}
		if p.OriginalValue == nil {
			t.Errorf("point %v missing original value", p.Date)
		}
	}
}

func TestIncrementalTargetsSkipCurrentIndicators(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	yesterday := time.Now().UTC().AddDate(0, 0, -1)
	old := time.Now().UTC().AddDate(0, 0, -30)

	// Fresh success yesterday: not stale, never selected.
	fresh := domain.Indicator{Name: "fresh", SeriesIDs: "F1"}
	fresh.LastSuccessfulAt = &yesterday
	fresh.ETLStatus = domain.StatusOK
	env.seedIndicator(t, fresh)

	// Old success: stale, selected with a watermark start.
	stale := domain.Indicator{Name: "stale", SeriesIDs: "S1"}
	stale.LastSuccessfulAt = &old
	stale.ETLStatus = domain.StatusOK
	staleID := env.seedIndicator(t, stale)

	// Never fetched: selected with the days-back default.
	neverID := env.seedIndicator(t, domain.Indicator{Name: "never", SeriesIDs: "N1"})

	job, err := env.svc.CreateIncrementalJob(ctx, 0)
	if err != nil {
		t.Fatalf("CreateIncrementalJob: %v", err)
	}
	if job.TotalIndicators != 2 {
		t.Fatalf("TotalIndicators = %d, want 2", job.TotalIndicators)
	}

	ids := make(map[uint]bool)
	for _, target := range job.Metadata.Indicators {
		ids[target.ID] = true
	}
	if !ids[staleID] || !ids[neverID] {
		t.Errorf("targets = %v, want stale and never-fetched indicators", job.Metadata.Indicators)
	}

	if err := env.svc.ProcessJob(ctx, job.JobID); err != nil {
		t.Fatalf("ProcessJob: %v", err)
	}
	if env.fetcher.callCount() != 2 {
		t.Errorf("fetch calls = %d, want 2", env.fetcher.callCount())
	}
}

func TestIncrementalWatermarkAlreadyCurrentSkipsFetch(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	id := env.seedIndicator(t, domain.Indicator{Name: "current", SeriesIDs: "C1"})

	// Hand-build an incremental job whose watermark is yesterday: the next
	// fetch would start today, so there is nothing to do.
	yesterday := time.Now().UTC().AddDate(0, 0, -1).Format("2006-01-02")
	job := &domain.ETLJob{
		JobID:     newJobID(JobTypeIncremental),
		Status:    domain.JobStatusProcessing,
		StartedAt: time.Now().UTC(),
		Metadata: domain.JobMetadata{
			Type:       JobTypeIncremental,
			Indicators: []domain.IncrementalTarget{{ID: id, LastSuccess: yesterday}},
		},
	}
	if err := env.jobs.Create(ctx, job); err != nil {
		t.Fatalf("create job: %v", err)
	}

	if err := env.svc.ProcessJob(ctx, job.JobID); err != nil {
		t.Fatalf("ProcessJob: %v", err)
	}
	if env.fetcher.callCount() != 0 {
		t.Errorf("fetch calls = %d, want 0 (already current)", env.fetcher.callCount())
	}

	done, err := env.jobs.GetByID(ctx, job.JobID)
	if err != nil {
		t.Fatalf("reload job: %v", err)
	}
	if done.Status != domain.JobStatusCompleted {
		t.Errorf("job status = %s, want COMPLETED", done.Status)
	}
}

func TestStuckProcessingReset(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	twoHoursAgo := time.Now().UTC().Add(-2 * time.Hour)
	stuck := domain.Indicator{Name: "stuck", SeriesIDs: "ST1", ETLStatus: domain.StatusProcessing}
	stuck.LastETLRunAt = &twoHoursAgo
	id := env.seedIndicator(t, stuck)

	reset, err := env.indicators.ResetStuckProcessing(ctx, time.Now().UTC().Add(-time.Hour))
	if err != nil {
		t.Fatalf("ResetStuckProcessing: %v", err)
	}
	if reset != 1 {
		t.Fatalf("reset = %d, want 1", reset)
	}

	ind, err := env.indicators.GetByID(ctx, id)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if ind.ETLStatus != domain.StatusUnknown {
		t.Errorf("status = %s, want UNKNOWN", ind.ETLStatus)
	}
}

func TestFetchReplayIsIdempotent(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	id := env.seedIndicator(t, domain.Indicator{Name: "replay", SeriesIDs: "R1"})

	first := env.svc.FetchIndicatorData(ctx, id, nil, nil, false, "")
	if first.Status != domain.LogStatusOK {
		t.Fatalf("first run status = %s", first.Status)
	}
	second := env.svc.FetchIndicatorData(ctx, id, nil, nil, false, "")
	if second.Status != domain.LogStatusOK {
		t.Fatalf("second run status = %s", second.Status)
	}

	count, err := env.series.Count(ctx, id)
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 3 {
		t.Errorf("stored points = %d after replay, want 3", count)
	}
}
