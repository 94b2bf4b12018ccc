package domain

import "time"

// LogStatus represents the outcome of a single (indicator, job) attempt.
type LogStatus string

const (
	LogStatusProcessing LogStatus = "PROCESSING"
	LogStatusOK         LogStatus = "OK"
	LogStatusError      LogStatus = "ERROR"
	LogStatusBlocked    LogStatus = "BLOCKED"
)

// ETLLogEntry is the append-only audit row for one indicator fetch attempt.
// Once CompletedAt is set the row is never updated again.
type ETLLogEntry struct {
	ID            uint      `gorm:"primaryKey" json:"id"`
	IndicatorID   uint      `gorm:"not null;index" json:"indicator_id"`
	JobID         string    `gorm:"type:text;not null;index" json:"job_id"`
	Status        LogStatus `gorm:"type:text;not null" json:"status"`
	ErrorCode     string    `gorm:"type:text" json:"error_code,omitempty"`
	ErrorMessage  string    `gorm:"type:text" json:"error_message,omitempty"`
	ErrorCategory string    `gorm:"type:text" json:"error_category,omitempty"`

	RecordsProcessed int `gorm:"default:0" json:"records_processed"`
	RecordsInserted  int `gorm:"default:0" json:"records_inserted"`

	StartedAt   time.Time  `json:"started_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
}

// TableName returns the database table name for ETLLogEntry.
func (ETLLogEntry) TableName() string {
	return "indicator_etl_logs"
}
