package etl

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/nff/ingestion/internal/calc"
	"github.com/nff/ingestion/internal/domain"
	"github.com/nff/ingestion/internal/logger"
	"github.com/nff/ingestion/internal/repository"
	"github.com/nff/ingestion/internal/source"
)

// SourceResolver resolves a provider for an indicator's source column.
// Satisfied by *source.Factory.
type SourceResolver interface {
	ForSource(name string) (source.Fetcher, error)
}

// JobTracker receives lifecycle notifications for the lightweight job
// monitor. Implementations must be cheap; failures there never affect the
// pipeline.
type JobTracker interface {
	JobStarted(jobID, jobType string, total int)
	JobCompleted(jobID string, successful, failed, blocked int)
	JobFailed(jobID, reason string)
}

// Config holds pipeline tuning.
type Config struct {
	// Epoch is the start of full-history fetches.
	Epoch time.Time
	// FetchTimeout bounds one indicator's upstream fetch.
	FetchTimeout time.Duration
	// IndicatorDelay is the pause between indicators, keeping upstream
	// providers under their rate limits.
	IndicatorDelay time.Duration
	// Staleness is how old a successful run may be before the indicator is
	// selected again by incremental jobs.
	Staleness time.Duration
	// DaysBack seeds the incremental range for never-fetched indicators.
	DaysBack int
	// StuckAfter is how long an indicator may sit in PROCESSING before a
	// new run treats it as crashed and resets it.
	StuckAfter time.Duration
}

func (c *Config) applyDefaults() {
	if c.Epoch.IsZero() {
		c.Epoch = time.Date(2000, 1, 1, 0, 0, 0, 0, time.UTC)
	}
	if c.FetchTimeout <= 0 {
		c.FetchTimeout = 5 * time.Minute
	}
	if c.IndicatorDelay < 0 {
		c.IndicatorDelay = 0
	} else if c.IndicatorDelay == 0 {
		c.IndicatorDelay = 200 * time.Millisecond
	}
	if c.Staleness <= 0 {
		c.Staleness = 7 * 24 * time.Hour
	}
	if c.DaysBack <= 0 {
		c.DaysBack = 30
	}
	if c.StuckAfter <= 0 {
		c.StuckAfter = time.Hour
	}
}

// Service orchestrates the fetch, transform, and persist pipeline.
type Service struct {
	indicators *repository.IndicatorRepository
	jobs       *repository.JobRepository
	logs       *repository.ETLLogRepository
	series     *repository.TimeSeriesRepository
	sources    SourceResolver
	engine     *calc.Engine
	tracker    JobTracker
	logger     *logger.Logger
	cfg        Config
}

// NewService creates the ETL service.
// Parameters:
//   - indicators, jobs, logs, series: persistence repositories.
//   - sources: provider factory.
//   - engine: calculation engine.
//   - tracker: optional job monitor, may be nil.
//   - log: structured logger.
//   - cfg: pipeline tuning; zero values select defaults.
// Returns:
//   - *Service: service instance.
func NewService(
	indicators *repository.IndicatorRepository,
	jobs *repository.JobRepository,
	logs *repository.ETLLogRepository,
	series *repository.TimeSeriesRepository,
	sources SourceResolver,
	engine *calc.Engine,
	tracker JobTracker,
	log *logger.Logger,
	cfg Config,
) *Service {
	cfg.applyDefaults()
	return &Service{
		indicators: indicators,
		jobs:       jobs,
		logs:       logs,
		series:     series,
		sources:    sources,
		engine:     engine,
		tracker:    tracker,
		logger:     log,
		cfg:        cfg,
	}
}

// log returns a logger from context if available, otherwise returns the default logger
func (s *Service) log(ctx context.Context) *logger.Logger {
	if l := logger.FromContext(ctx); l != nil {
		return l
	}
	return s.logger
}

// FetchResult is the structured outcome of one indicator run.
type FetchResult struct {
	Status           domain.LogStatus
	IndicatorID      uint
	RecordsFetched   int
	RecordsProcessed int
	RecordsInserted  int
	ErrorCode        string
	ErrorMessage     string
}

// ProcessJob runs a job to completion. Indicator failures are isolated: a
// failing indicator increments the failed counter and the loop continues.
// The job itself only FAILs on infrastructure errors (job row unreadable,
// indicator selection impossible).
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - jobID: job identifier.
// Returns:
//   - error: non-nil only for infrastructure failures.
func (s *Service) ProcessJob(ctx context.Context, jobID string) error {
	job, err := s.jobs.GetByID(ctx, jobID)
	if err != nil {
		return fmt.Errorf("failed to load job %s: %w", jobID, err)
	}

	log := s.log(ctx).WithFields(logger.Fields{
		"job_id":   jobID,
		"job_type": job.Metadata.Type,
	})
	log.Info("Processing job")

	// Self-heal indicators left PROCESSING by a crashed run.
	if reset, err := s.indicators.ResetStuckProcessing(ctx, time.Now().UTC().Add(-s.cfg.StuckAfter)); err != nil {
		log.WithError(err).Warn("Failed to reset stuck indicators")
	} else if reset > 0 {
		log.WithField("count", reset).Warn("Reset indicators stuck in PROCESSING")
	}

	targets, err := s.resolveTargets(ctx, &job.Metadata)
	if err != nil {
		s.failJob(ctx, jobID, err)
		return err
	}

	if s.tracker != nil {
		s.tracker.JobStarted(jobID, job.Metadata.Type, len(targets))
	}

	successful, failed, blocked := 0, 0, 0
	for i, target := range targets {
		if ctx.Err() != nil {
			break
		}

		result := s.FetchIndicatorData(ctx, target.indicatorID, target.start, target.end, job.Metadata.ForceRefresh, jobID)
		switch result.Status {
		case domain.LogStatusOK:
			successful++
		case domain.LogStatusBlocked:
			blocked++
		default:
			failed++
		}

		if i < len(targets)-1 {
			select {
			case <-time.After(s.cfg.IndicatorDelay):
			case <-ctx.Done():
			}
		}
	}

	// A cancelled run skipped the remaining targets; the partial counters do
	// not represent a completed job. Finalize on a fresh context because the
	// request context is already dead.
	if err := ctx.Err(); err != nil {
		cause := fmt.Errorf("job interrupted after %d of %d indicators: %w",
			successful+failed+blocked, len(targets), err)
		s.failJob(context.Background(), jobID, cause)
		return cause
	}

	if err := s.jobs.Complete(ctx, jobID, domain.JobStatusCompleted, successful, failed, blocked); err != nil {
		log.WithError(err).Error("Failed to finalize job")
		return err
	}
	if s.tracker != nil {
		s.tracker.JobCompleted(jobID, successful, failed, blocked)
	}

	log.WithFields(logger.Fields{
		"successful": successful,
		"failed":     failed,
		"blocked":    blocked,
	}).Info("Job completed")
	return nil
}

func (s *Service) failJob(ctx context.Context, jobID string, cause error) {
	s.log(ctx).WithField("job_id", jobID).WithError(cause).Error("Job failed")
	if err := s.jobs.Complete(ctx, jobID, domain.JobStatusFailed, 0, 0, 0); err != nil {
		s.log(ctx).WithError(err).Error("Failed to mark job FAILED")
	}
	if s.tracker != nil {
		s.tracker.JobFailed(jobID, cause.Error())
	}
}

// fetchTarget is one indicator scheduled within a job, with an optional
// per-indicator date range.
type fetchTarget struct {
	indicatorID uint
	start       *time.Time
	end         *time.Time
}

// resolveTargets re-derives the indicator list from job metadata, never from
// request state, so jobs stay replayable.
func (s *Service) resolveTargets(ctx context.Context, meta *domain.JobMetadata) ([]fetchTarget, error) {
	var rangeStart, rangeEnd *time.Time
	if meta.StartDate != "" {
		t, err := time.Parse("2006-01-02", meta.StartDate)
		if err != nil {
			return nil, fmt.Errorf("invalid start_date %q: %w", meta.StartDate, err)
		}
		rangeStart = &t
	}
	if meta.EndDate != "" {
		t, err := time.Parse("2006-01-02", meta.EndDate)
		if err != nil {
			return nil, fmt.Errorf("invalid end_date %q: %w", meta.EndDate, err)
		}
		rangeEnd = &t
	}

	// Incremental jobs carry their own per-indicator watermark snapshot.
	if len(meta.Indicators) > 0 {
		targets := make([]fetchTarget, 0, len(meta.Indicators))
		today := truncateToDay(time.Now().UTC())
		for _, t := range meta.Indicators {
			start := s.incrementalStart(t.LastSuccess, today)
			if !start.Before(today) {
				// Already current, nothing to fetch.
				continue
			}
			startCopy := start
			targets = append(targets, fetchTarget{indicatorID: t.ID, start: &startCopy, end: rangeEnd})
		}
		return targets, nil
	}

	var (
		indicators []domain.Indicator
		err        error
	)
	switch {
	case len(meta.IndicatorIDs) > 0:
		indicators, err = s.indicators.GetByIDs(ctx, meta.IndicatorIDs)
	case meta.Category != "":
		indicators, err = s.indicators.ListByCategory(ctx, meta.Category, meta.ImportanceMin)
	default:
		indicators, err = s.indicators.ListActive(ctx)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to resolve indicators: %w", err)
	}

	targets := make([]fetchTarget, 0, len(indicators))
	for _, ind := range indicators {
		if meta.Source != "" && !containsFold(ind.Source, meta.Source) {
			continue
		}
		if ind.ETLStatus == domain.StatusBlocked {
			// Terminal until cleared manually.
			continue
		}
		targets = append(targets, fetchTarget{indicatorID: ind.ID, start: rangeStart, end: rangeEnd})
	}
	return targets, nil
}

// incrementalStart picks the fetch start for an incremental target: the day
// after the last success, or daysBack before today for never-fetched rows.
func (s *Service) incrementalStart(lastSuccess string, today time.Time) time.Time {
	if lastSuccess != "" {
		if t, err := time.Parse("2006-01-02", lastSuccess); err == nil {
			return truncateToDay(t).AddDate(0, 0, 1)
		}
	}
	return today.AddDate(0, 0, -s.cfg.DaysBack)
}

// FetchIndicatorData runs the single-indicator pipeline: validate, mark
// PROCESSING, fetch with a hard timeout, transform, persist, finalize state.
// All failures are captured in the returned result; the method never panics
// the surrounding job loop.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - indicatorID: indicator to fetch.
//   - startDate: explicit range start, nil selects full history from the epoch.
//   - endDate: explicit range end, nil selects today.
//   - forceRefresh: wipe stored rows before fetching.
//   - jobID: owning job id for the audit log, may be empty for ad-hoc runs.
// Returns:
//   - *FetchResult: structured outcome, never nil.
func (s *Service) FetchIndicatorData(ctx context.Context, indicatorID uint, startDate, endDate *time.Time, forceRefresh bool, jobID string) *FetchResult {
	now := time.Now().UTC()
	entry := &domain.ETLLogEntry{
		IndicatorID: indicatorID,
		JobID:       jobID,
		Status:      domain.LogStatusProcessing,
		StartedAt:   now,
	}
	if err := s.logs.Start(ctx, entry); err != nil {
		s.log(ctx).WithError(err).Error("Failed to create ETL log entry")
	}

	log := s.log(ctx).WithFields(logger.Fields{
		"indicator_id": indicatorID,
		"job_id":       jobID,
	})

	ind, err := s.indicators.GetByID(ctx, indicatorID)
	if err != nil {
		return s.fail(ctx, entry, fmt.Errorf("indicator %d not found: %w", indicatorID, err))
	}

	if verr := validateAPIConfig(ind); verr != nil {
		return s.block(ctx, entry, verr)
	}

	if ind.ETLStatus == domain.StatusProcessing {
		log.Warn("Indicator already PROCESSING, treating previous run as stuck")
	}
	if err := s.indicators.MarkProcessing(ctx, indicatorID, now); err != nil {
		return s.fail(ctx, entry, fmt.Errorf("failed to mark indicator PROCESSING: %w", err))
	}

	fetcher, err := s.sources.ForSource(ind.Source)
	if err != nil {
		if errors.Is(err, source.ErrSourceRetired) || errors.Is(err, source.ErrUnsupportedSource) {
			return s.block(ctx, entry, &validationError{
				code:    CodeInvalidSource,
				message: err.Error(),
			})
		}
		return s.fail(ctx, entry, err)
	}

	start := s.cfg.Epoch
	if startDate != nil {
		start = *startDate
	}
	end := truncateToDay(time.Now().UTC())
	if endDate != nil {
		end = *endDate
	}

	if forceRefresh {
		if err := s.series.DeleteByIndicator(ctx, indicatorID); err != nil {
			return s.fail(ctx, entry, fmt.Errorf("failed to clear data for refresh: %w", err))
		}
	}

	fetchCtx, cancel := context.WithTimeout(ctx, s.cfg.FetchTimeout)
	seriesIDs := SplitSeriesIDs(ind.SeriesIDs)
	raw, err := fetcher.Fetch(fetchCtx, seriesIDs, start, end)
	cancel()
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			err = fmt.Errorf("data fetch timeout after %s: %w", s.cfg.FetchTimeout, err)
		}
		return s.fail(ctx, entry, err)
	}

	recordsFetched := 0
	for _, obs := range raw {
		recordsFetched += len(obs)
	}
	if recordsFetched == 0 {
		return s.fail(ctx, entry, errors.New("no data returned from api"))
	}

	points, processed, hasCalculation := s.transform(ctx, ind, seriesIDs, raw)

	inserted, dropped, err := s.series.UpsertBatch(ctx, points)
	if err != nil {
		return s.fail(ctx, entry, fmt.Errorf("failed to save time series: %w", err))
	}
	if dropped > 0 {
		log.WithField("duplicates", dropped).Warn("Dropped duplicate dates within batch")
	}

	entry.Status = domain.LogStatusOK
	entry.RecordsProcessed = processed
	entry.RecordsInserted = inserted
	if err := s.logs.Finish(ctx, entry); err != nil {
		log.WithError(err).Error("Failed to finalize ETL log entry")
	}

	total, err := s.series.Count(ctx, indicatorID)
	if err != nil {
		total = int64(inserted)
	}
	if err := s.indicators.MarkSuccess(ctx, indicatorID, time.Now().UTC(), int(total)); err != nil {
		log.WithError(err).Error("Failed to mark indicator OK")
	}

	log.WithFields(logger.Fields{
		"fetched":     recordsFetched,
		"processed":   processed,
		"inserted":    inserted,
		"calculation": hasCalculation,
	}).Info("Indicator fetch completed")

	return &FetchResult{
		Status:           domain.LogStatusOK,
		IndicatorID:      indicatorID,
		RecordsFetched:   recordsFetched,
		RecordsProcessed: processed,
		RecordsInserted:  inserted,
	}
}

// transform applies the indicator's calculation descriptor when present. A
// calculation failure degrades to the raw series with a warning instead of
// failing the indicator.
func (s *Service) transform(ctx context.Context, ind *domain.Indicator, seriesIDs []string, raw map[string][]source.Observation) ([]domain.TimeSeriesPoint, int, bool) {
	primary := rawSeries(raw, seriesIDs)

	if ind.Calculation == "" {
		return observationPoints(ind.ID, primary), len(primary), false
	}

	set := calc.NewSeriesSet()
	for _, id := range seriesIDs {
		obs := raw[id]
		series := make(calc.Series, len(obs))
		for i, o := range obs {
			series[i] = calc.Point{Date: truncateToDay(o.Date), Value: o.Value}
		}
		set.Add(id, series)
	}

	result, err := s.engine.Apply(ind.Calculation, set, ind.Name)
	if err != nil {
		s.log(ctx).WithFields(logger.Fields{
			"indicator_id": ind.ID,
			"calculation":  ind.Calculation,
		}).WithError(err).Warn("Calculation failed, falling back to raw data")
		return observationPoints(ind.ID, primary), len(primary), false
	}

	// Keep the raw value alongside the calculated one where dates align.
	originals := make(map[time.Time]float64, len(primary))
	for _, o := range primary {
		originals[truncateToDay(o.Date)] = o.Value
	}

	points := make([]domain.TimeSeriesPoint, len(result.Series))
	for i, p := range result.Series {
		point := domain.TimeSeriesPoint{
			IndicatorID:    ind.ID,
			Date:           p.Date,
			Value:          p.Value,
			HasCalculation: true,
		}
		calculated := p.Value
		point.CalculatedValue = &calculated
		if orig, ok := originals[p.Date]; ok {
			original := orig
			point.OriginalValue = &original
		}
		points[i] = point
	}
	return points, len(points), true
}

// rawSeries picks the primary (first declared) series' observations.
func rawSeries(raw map[string][]source.Observation, seriesIDs []string) []source.Observation {
	for _, id := range seriesIDs {
		if obs, ok := raw[id]; ok && len(obs) > 0 {
			return obs
		}
	}
	return nil
}

func observationPoints(indicatorID uint, obs []source.Observation) []domain.TimeSeriesPoint {
	points := make([]domain.TimeSeriesPoint, len(obs))
	for i, o := range obs {
		points[i] = domain.TimeSeriesPoint{
			IndicatorID: indicatorID,
			Date:        truncateToDay(o.Date),
			Value:       o.Value,
		}
	}
	return points
}

// fail finalizes a failed indicator run: classify, log, mark ERROR.
func (s *Service) fail(ctx context.Context, entry *domain.ETLLogEntry, cause error) *FetchResult {
	code := ClassifyError(cause)
	category := ErrorCategory(code)

	s.log(ctx).WithFields(logger.Fields{
		"indicator_id": entry.IndicatorID,
		"error_code":   code,
	}).WithError(cause).Error("Indicator fetch failed")

	entry.Status = domain.LogStatusError
	entry.ErrorCode = code
	entry.ErrorMessage = cause.Error()
	entry.ErrorCategory = category
	if err := s.logs.Finish(ctx, entry); err != nil {
		s.log(ctx).WithError(err).Error("Failed to finalize ETL log entry")
	}
	if err := s.indicators.MarkFailure(ctx, entry.IndicatorID, domain.StatusError, code, cause.Error()); err != nil {
		s.log(ctx).WithError(err).Error("Failed to mark indicator ERROR")
	}

	return &FetchResult{
		Status:       domain.LogStatusError,
		IndicatorID:  entry.IndicatorID,
		ErrorCode:    code,
		ErrorMessage: cause.Error(),
	}
}

// block finalizes a configuration rejection: the indicator is BLOCKED and
// stays out of automatic selection until cleared.
func (s *Service) block(ctx context.Context, entry *domain.ETLLogEntry, verr *validationError) *FetchResult {
	category := ErrorCategory(verr.code)

	s.log(ctx).WithFields(logger.Fields{
		"indicator_id": entry.IndicatorID,
		"error_code":   verr.code,
	}).Warn("Indicator blocked by configuration validation")

	entry.Status = domain.LogStatusBlocked
	entry.ErrorCode = verr.code
	entry.ErrorMessage = verr.message
	entry.ErrorCategory = category
	if err := s.logs.Finish(ctx, entry); err != nil {
		s.log(ctx).WithError(err).Error("Failed to finalize ETL log entry")
	}
	if err := s.indicators.MarkFailure(ctx, entry.IndicatorID, domain.StatusBlocked, verr.code, verr.message); err != nil {
		s.log(ctx).WithError(err).Error("Failed to mark indicator BLOCKED")
	}

	return &FetchResult{
		Status:       domain.LogStatusBlocked,
		IndicatorID:  entry.IndicatorID,
		ErrorCode:    verr.code,
		ErrorMessage: verr.message,
	}
}

// GetJobResult returns a job's current status and counters. Never blocks on
// in-flight work; the row reflects whatever has been finalized so far.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - jobID: job identifier.
// Returns:
//   - *domain.ETLJob: job row with counters.
//   - error: non-nil if the job does not exist or the read fails.
func (s *Service) GetJobResult(ctx context.Context, jobID string) (*domain.ETLJob, error) {
	return s.jobs.GetByID(ctx, jobID)
}

// GetIndicatorTimeSeries reads stored points for an indicator, date-ordered.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - indicatorID: indicator to read.
//   - start, end: optional range bounds; nil selects the full history.
//   - limit: maximum rows returned, keeping the most recent; 0 means
//     unlimited.
// Returns:
//   - []domain.TimeSeriesPoint: stored points.
//   - error: non-nil on storage failure.
func (s *Service) GetIndicatorTimeSeries(ctx context.Context, indicatorID uint, start, end *time.Time, limit int) ([]domain.TimeSeriesPoint, error) {
	var (
		points []domain.TimeSeriesPoint
		err    error
	)
	if start != nil || end != nil {
		s0 := s.cfg.Epoch
		if start != nil {
			s0 = *start
		}
		e0 := truncateToDay(time.Now().UTC()).AddDate(1, 0, 0)
		if end != nil {
			e0 = *end
		}
		points, err = s.series.GetRange(ctx, indicatorID, s0, e0)
	} else {
		points, err = s.series.GetAll(ctx, indicatorID)
	}
	if err != nil {
		return nil, err
	}
	// Points come back date-ascending; the limit keeps the tail so a capped
	// read returns the latest observations.
	if limit > 0 && len(points) > limit {
		points = points[len(points)-limit:]
	}
	return points, nil
}

func containsFold(haystack, needle string) bool {
	return strings.Contains(strings.ToLower(haystack), strings.ToLower(needle))
}

func truncateToDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
