package domain

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"time"
)

// JobStatus represents the status of an ETL batch job.
// Values include JobStatusProcessing, JobStatusCompleted, and JobStatusFailed.
type JobStatus string

const (
	JobStatusProcessing JobStatus = "PROCESSING"
	JobStatusCompleted  JobStatus = "COMPLETED"
	JobStatusFailed     JobStatus = "FAILED"
)

// IncrementalTarget captures an indicator's watermark at job-creation time so
// incremental jobs stay replayable from their own metadata.
type IncrementalTarget struct {
	ID          uint   `json:"id"`
	LastSuccess string `json:"last_success,omitempty"` // ISO-8601 date, empty if never successful
}

// JobMetadata is the selection criteria snapshot stored with each job. A job
// is processed by re-reading this payload, never from request state.
type JobMetadata struct {
	Type          string              `json:"type,omitempty"`
	IndicatorIDs  []uint              `json:"indicator_ids,omitempty"`
	Category      string              `json:"category,omitempty"`
	Source        string              `json:"source,omitempty"`
	ForceRefresh  bool                `json:"force_refresh,omitempty"`
	StartDate     string              `json:"start_date,omitempty"` // ISO-8601 date
	EndDate       string              `json:"end_date,omitempty"`   // ISO-8601 date
	ImportanceMin int                 `json:"importance_min,omitempty"`
	DaysBack      int                 `json:"days_back,omitempty"`
	Indicators    []IncrementalTarget `json:"indicators,omitempty"`
}

// Value implements the driver.Valuer interface for database serialization.
func (m JobMetadata) Value() (driver.Value, error) {
	b, err := json.Marshal(m)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// Scan implements the sql.Scanner interface for database deserialization.
func (m *JobMetadata) Scan(value interface{}) error {
	if value == nil {
		*m = JobMetadata{}
		return nil
	}
	bytes, ok := value.([]byte)
	if !ok {
		str, ok := value.(string)
		if !ok {
			return errors.New("failed to scan JobMetadata")
		}
		bytes = []byte(str)
	}
	return json.Unmarshal(bytes, m)
}

// ETLJob is one batch invocation of the pipeline over a set of indicators.
// Counters sum to at most TotalIndicators; CompletedAt is set only when the
// job reaches a terminal status.
type ETLJob struct {
	JobID           string      `gorm:"type:text;primaryKey" json:"job_id"`
	Status          JobStatus   `gorm:"type:text;not null;index" json:"status"`
	TotalIndicators int         `gorm:"default:0" json:"total_indicators"`
	Successful      int         `gorm:"default:0" json:"successful"`
	Failed          int         `gorm:"default:0" json:"failed"`
	Blocked         int         `gorm:"default:0" json:"blocked"`
	StartedAt       time.Time   `json:"started_at"`
	CompletedAt     *time.Time  `json:"completed_at,omitempty"`
	Metadata        JobMetadata `gorm:"type:text" json:"metadata"`
	CreatedAt       time.Time   `json:"created_at"`
}

// TableName returns the database table name for ETLJob.
func (ETLJob) TableName() string {
	return "etl_jobs"
}
