package scheduler

import (
	"context"
	"fmt"

	"github.com/robfig/cron/v3"

	"github.com/nff/ingestion/internal/etl"
	"github.com/nff/ingestion/internal/logger"
	"github.com/nff/ingestion/internal/tasks"
)

// Scheduler runs incremental refresh jobs on a cron schedule. Each tick
// creates a job over stale indicators and processes it through the task
// runner so in-flight runs survive until Stop drains them.
type Scheduler struct {
	svc    *etl.Service
	runner *tasks.Runner
	log    *logger.Logger
	spec   string
	cron   *cron.Cron
}

// New creates a scheduler.
// Parameters:
//   - svc: pipeline service used to create and process jobs.
//   - runner: task runner executing each tick in the background.
//   - log: structured logger.
//   - spec: standard five-field cron expression.
// Returns:
//   - *Scheduler: scheduler instance, not yet started.
func New(svc *etl.Service, runner *tasks.Runner, log *logger.Logger, spec string) *Scheduler {
	return &Scheduler{
		svc:    svc,
		runner: runner,
		log:    log,
		spec:   spec,
		cron:   cron.New(),
	}
}

// Start registers the cron entry and begins ticking.
// Returns:
//   - error: non-nil if the cron expression is invalid.
func (s *Scheduler) Start() error {
	if _, err := s.cron.AddFunc(s.spec, s.tick); err != nil {
		return fmt.Errorf("invalid schedule %q: %w", s.spec, err)
	}
	s.cron.Start()
	s.log.WithField("spec", s.spec).Info("Scheduler started")
	return nil
}

// Stop stops future ticks and waits for a running tick to finish.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	s.log.Info("Scheduler stopped")
}

// RunOnce executes one incremental refresh immediately, outside the
// schedule. Used by the CLI and by operators triggering a catch-up run.
// Parameters:
//   - ctx: context for cancellation and deadlines.
// Returns:
//   - error: non-nil if job creation or processing fails.
func (s *Scheduler) RunOnce(ctx context.Context) error {
	job, err := s.svc.CreateIncrementalJob(ctx, 0)
	if err != nil {
		return fmt.Errorf("failed to create incremental job: %w", err)
	}
	if job.TotalIndicators == 0 {
		s.log.WithField("job_id", job.JobID).Info("All indicators current, nothing to fetch")
	}
	return s.svc.ProcessJob(ctx, job.JobID)
}

func (s *Scheduler) tick() {
	s.log.Info("Scheduled incremental refresh starting")
	s.runner.Go(context.Background(), "scheduled-incremental", func(ctx context.Context) error {
		return s.RunOnce(ctx)
	})
}
