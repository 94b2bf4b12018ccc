package tracker

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/nff/ingestion/internal/etl"
	"github.com/nff/ingestion/internal/logger"
)

// Job statuses tracked by the monitor. Kept separate from the pipeline's own
// job table so operators can inspect run history even when the main database
// is unavailable.
const (
	StatusPending   = "PENDING"
	StatusRunning   = "RUNNING"
	StatusCompleted = "COMPLETED"
	StatusFailed    = "FAILED"
)

// JobRecord is one tracked pipeline run.
type JobRecord struct {
	ID          uint       `gorm:"primarykey" json:"id"`
	JobID       string     `gorm:"uniqueIndex;size:64" json:"job_id"`
	JobType     string     `gorm:"size:32" json:"job_type"`
	Status      string     `gorm:"size:16;index" json:"status"`
	Progress    string     `gorm:"size:32" json:"progress"`
	Total       int        `json:"total"`
	Successful  int        `json:"successful"`
	Failed      int        `json:"failed"`
	Blocked     int        `json:"blocked"`
	Notes       string     `gorm:"type:text" json:"notes,omitempty"`
	StartedAt   time.Time  `json:"started_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// TableName uses a dedicated table name to avoid clashing with the pipeline schema
func (JobRecord) TableName() string {
	return "etl_job_tracker"
}

// Summary aggregates run history over a window.
type Summary struct {
	Since       time.Time `json:"since"`
	TotalJobs   int64     `json:"total_jobs"`
	Completed   int64     `json:"completed"`
	Failed      int64     `json:"failed"`
	Running     int64     `json:"running"`
	SuccessRate float64   `json:"success_rate"`
}

// Monitor records job lifecycle events into a standalone SQLite file.
// All methods swallow storage errors after logging them; the monitor must
// never take the pipeline down.
type Monitor struct {
	db  *gorm.DB
	log *logger.Logger
}

var _ etl.JobTracker = (*Monitor)(nil)

// Open creates a Monitor backed by the SQLite file at path.
// Parameters:
//   - path: database file location; parent directories are created.
//   - log: structured logger.
// Returns:
//   - *Monitor: monitor instance.
//   - error: non-nil if the database cannot be opened or migrated.
func Open(path string, log *logger.Logger) (*Monitor, error) {
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create tracker directory: %w", err)
		}
	}

	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open tracker database: %w", err)
	}
	db.Exec("PRAGMA journal_mode=WAL")

	if err := db.AutoMigrate(&JobRecord{}); err != nil {
		return nil, fmt.Errorf("failed to migrate tracker database: %w", err)
	}

	return &Monitor{db: db, log: log}, nil
}

// JobStarted records a new run as RUNNING. Re-running a job ID resets its row.
func (m *Monitor) JobStarted(jobID, jobType string, total int) {
	now := time.Now().UTC()
	rec := JobRecord{
		JobID:     jobID,
		JobType:   jobType,
		Status:    StatusRunning,
		Progress:  "Processing...",
		Total:     total,
		StartedAt: now,
	}
	err := m.db.Where(JobRecord{JobID: jobID}).
		Assign(map[string]interface{}{
			"job_type":     jobType,
			"status":       StatusRunning,
			"progress":     "Processing...",
			"total":        total,
			"successful":   0,
			"failed":       0,
			"blocked":      0,
			"notes":        "",
			"started_at":   now,
			"completed_at": nil,
		}).
		FirstOrCreate(&rec).Error
	if err != nil {
		m.log.WithError(err).WithField("job_id", jobID).Warn("Tracker failed to record job start")
	}
}

// JobCompleted marks a run finished with its per-indicator tallies.
func (m *Monitor) JobCompleted(jobID string, successful, failed, blocked int) {
	now := time.Now().UTC()
	err := m.db.Model(&JobRecord{}).
		Where("job_id = ?", jobID).
		Updates(map[string]interface{}{
			"status":       StatusCompleted,
			"progress":     "100%",
			"successful":   successful,
			"failed":       failed,
			"blocked":      blocked,
			"completed_at": now,
		}).Error
	if err != nil {
		m.log.WithError(err).WithField("job_id", jobID).Warn("Tracker failed to record job completion")
	}
}

// JobFailed marks a run as failed before it could finish its targets.
func (m *Monitor) JobFailed(jobID, reason string) {
	now := time.Now().UTC()
	err := m.db.Model(&JobRecord{}).
		Where("job_id = ?", jobID).
		Updates(map[string]interface{}{
			"status":       StatusFailed,
			"progress":     "Failed",
			"notes":        reason,
			"completed_at": now,
		}).Error
	if err != nil {
		m.log.WithError(err).WithField("job_id", jobID).Warn("Tracker failed to record job failure")
	}
}

// Get returns the tracked record for a job ID.
func (m *Monitor) Get(jobID string) (*JobRecord, error) {
	var rec JobRecord
	if err := m.db.Where("job_id = ?", jobID).First(&rec).Error; err != nil {
		return nil, err
	}
	return &rec, nil
}

// ListRecent returns the most recently started runs, newest first.
func (m *Monitor) ListRecent(limit int) ([]JobRecord, error) {
	if limit <= 0 {
		limit = 20
	}
	var recs []JobRecord
	err := m.db.Order("started_at DESC").Limit(limit).Find(&recs).Error
	return recs, err
}

// Summarize aggregates run history for the trailing window.
// Parameters:
//   - window: how far back to look; zero defaults to seven days.
// Returns:
//   - *Summary: aggregate counts and success rate.
//   - error: non-nil on storage failure.
func (m *Monitor) Summarize(window time.Duration) (*Summary, error) {
	if window <= 0 {
		window = 7 * 24 * time.Hour
	}
	since := time.Now().UTC().Add(-window)

	s := &Summary{Since: since}
	base := m.db.Model(&JobRecord{}).Where("started_at >= ?", since)

	if err := base.Session(&gorm.Session{}).Count(&s.TotalJobs).Error; err != nil {
		return nil, err
	}
	if err := base.Session(&gorm.Session{}).Where("status = ?", StatusCompleted).Count(&s.Completed).Error; err != nil {
		return nil, err
	}
	if err := base.Session(&gorm.Session{}).Where("status = ?", StatusFailed).Count(&s.Failed).Error; err != nil {
		return nil, err
	}
	if err := base.Session(&gorm.Session{}).Where("status = ?", StatusRunning).Count(&s.Running).Error; err != nil {
		return nil, err
	}

	finished := s.Completed + s.Failed
	if finished > 0 {
		s.SuccessRate = float64(s.Completed) / float64(finished)
	}
	return s, nil
}
