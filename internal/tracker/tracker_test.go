package tracker

import (
	"io"
	"path/filepath"
	"testing"
	"time"

	"github.com/nff/ingestion/internal/logger"
)

func newTestMonitor(t *testing.T) *Monitor {
	t.Helper()
	log := logger.New(&logger.Config{Level: "error", Output: io.Discard})
	m, err := Open(filepath.Join(t.TempDir(), "tracker.db"), log)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	return m
}

func TestJobLifecycle(t *testing.T) {
	m := newTestMonitor(t)

	m.JobStarted("ETL_abc123def456", "etl", 5)

	rec, err := m.Get("ETL_abc123def456")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if rec.Status != StatusRunning {
		t.Errorf("status = %s, want %s", rec.Status, StatusRunning)
	}
	if rec.Progress != "Processing..." {
		t.Errorf("progress = %q", rec.Progress)
	}
	if rec.Total != 5 {
		t.Errorf("total = %d, want 5", rec.Total)
	}
	if rec.CompletedAt != nil {
		t.Error("completed_at should be unset while running")
	}

	m.JobCompleted("ETL_abc123def456", 4, 1, 0)

	rec, err = m.Get("ETL_abc123def456")
	if err != nil {
		t.Fatalf("Get after complete: %v", err)
	}
	if rec.Status != StatusCompleted {
		t.Errorf("status = %s, want %s", rec.Status, StatusCompleted)
	}
	if rec.Progress != "100%" {
		t.Errorf("progress = %q, want 100%%", rec.Progress)
	}
	if rec.Successful != 4 || rec.Failed != 1 {
		t.Errorf("tallies = %d/%d, want 4/1", rec.Successful, rec.Failed)
	}
	if rec.CompletedAt == nil {
		t.Error("completed_at should be set")
	}
}

func TestJobFailedRecordsReason(t *testing.T) {
	m := newTestMonitor(t)

	m.JobStarted("ETL_feedfeedfeed", "etl", 3)
	m.JobFailed("ETL_feedfeedfeed", "database connection lost")

	rec, err := m.Get("ETL_feedfeedfeed")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if rec.Status != StatusFailed {
		t.Errorf("status = %s, want %s", rec.Status, StatusFailed)
	}
	if rec.Progress != "Failed" {
		t.Errorf("progress = %q, want Failed", rec.Progress)
	}
	if rec.Notes != "database connection lost" {
		t.Errorf("notes = %q", rec.Notes)
	}
}

func TestJobStartedResetsPreviousRun(t *testing.T) {
	m := newTestMonitor(t)

	m.JobStarted("INCR_aaaaaaaaaaaa", "incremental", 2)
	m.JobCompleted("INCR_aaaaaaaaaaaa", 2, 0, 0)
	m.JobStarted("INCR_aaaaaaaaaaaa", "incremental", 4)

	rec, err := m.Get("INCR_aaaaaaaaaaaa")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if rec.Status != StatusRunning {
		t.Errorf("status = %s, want %s", rec.Status, StatusRunning)
	}
	if rec.Total != 4 || rec.Successful != 0 {
		t.Errorf("row not reset: total=%d successful=%d", rec.Total, rec.Successful)
	}
	if rec.CompletedAt != nil {
		t.Error("completed_at should be cleared on restart")
	}
}

func TestSummarize(t *testing.T) {
	m := newTestMonitor(t)

	m.JobStarted("ETL_000000000001", "etl", 1)
	m.JobCompleted("ETL_000000000001", 1, 0, 0)
	m.JobStarted("ETL_000000000002", "etl", 1)
	m.JobCompleted("ETL_000000000002", 1, 0, 0)
	m.JobStarted("ETL_000000000003", "etl", 1)
	m.JobFailed("ETL_000000000003", "boom")
	m.JobStarted("ETL_000000000004", "etl", 1)

	s, err := m.Summarize(7 * 24 * time.Hour)
	if err != nil {
		t.Fatalf("Summarize: %v", err)
	}
	if s.TotalJobs != 4 {
		t.Errorf("total = %d, want 4", s.TotalJobs)
	}
	if s.Completed != 2 || s.Failed != 1 || s.Running != 1 {
		t.Errorf("completed/failed/running = %d/%d/%d, want 2/1/1", s.Completed, s.Failed, s.Running)
	}
	if want := 2.0 / 3.0; s.SuccessRate < want-1e-9 || s.SuccessRate > want+1e-9 {
		t.Errorf("success rate = %f, want %f", s.SuccessRate, want)
	}
}

func TestListRecent(t *testing.T) {
	m := newTestMonitor(t)
	for _, id := range []string{"ETL_aaa000000000", "ETL_bbb000000000", "ETL_ccc000000000"} {
		m.JobStarted(id, "etl", 1)
		time.Sleep(2 * time.Millisecond)
	}

	recs, err := m.ListRecent(2)
	if err != nil {
		t.Fatalf("ListRecent: %v", err)
	}
	if len(recs) != 2 {
		t.Fatalf("len = %d, want 2", len(recs))
	}
	if recs[0].JobID != "ETL_ccc000000000" {
		t.Errorf("newest first: got %s", recs[0].JobID)
	}
}
