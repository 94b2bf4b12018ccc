package domain

import "time"

// ETLStatus represents the current ETL state of an indicator.
// Values include StatusUnknown, StatusProcessing, StatusOK, StatusError, and StatusBlocked.
type ETLStatus string

const (
	StatusUnknown    ETLStatus = "UNKNOWN"
	StatusProcessing ETLStatus = "PROCESSING"
	StatusOK         ETLStatus = "OK"
	StatusError      ETLStatus = "ERROR"
	// StatusBlocked marks indicators that must not be selected for automatic
	// fetch (retired source, missing series configuration). It is terminal
	// until cleared manually.
	StatusBlocked ETLStatus = "BLOCKED"
)

// Category represents a chart category used to group indicators.
type Category struct {
	ID   uint   `gorm:"primaryKey" json:"id"`
	Name string `gorm:"type:text;not null;uniqueIndex" json:"name"`
}

// TableName returns the database table name for Category.
func (Category) TableName() string {
	return "chart_categories"
}

// Indicator is the metadata row for one tracked indicator: identity,
// data-source wiring, and ETL lifecycle state. Rows are never deleted,
// only deactivated.
type Indicator struct {
	ID         uint   `gorm:"primaryKey" json:"id"`
	Name       string `gorm:"type:text;not null" json:"name"`
	NameLocal  string `gorm:"type:text" json:"name_local,omitempty"`
	CategoryID uint   `gorm:"index" json:"category_id"`
	Source     string `gorm:"type:text;not null" json:"source"`
	Importance int    `gorm:"default:1" json:"importance"` // 1 (low) .. 5 (high)

	// SeriesIDs is pipe-delimited when the indicator is derived from more
	// than one upstream series.
	SeriesIDs   string `gorm:"column:series_ids;type:text" json:"series_ids"`
	APIExample  string `gorm:"column:api_example;type:text" json:"api_example,omitempty"`
	Calculation string `gorm:"type:text" json:"calculation,omitempty"`

	ETLStatus        ETLStatus  `gorm:"column:etl_status;type:text;default:UNKNOWN;index" json:"etl_status"`
	ETLStatusCode    string     `gorm:"column:etl_status_code;type:text" json:"etl_status_code,omitempty"`
	ETLNotes         string     `gorm:"column:etl_notes;type:text" json:"etl_notes,omitempty"`
	LastETLRunAt     *time.Time `gorm:"column:last_etl_run_at" json:"last_etl_run_at,omitempty"`
	LastSuccessfulAt *time.Time `json:"last_successful_at,omitempty"`
	RecordsCount     int        `gorm:"default:0" json:"records_count"`

	IsActive  bool      `gorm:"default:true;index" json:"is_active"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName returns the database table name for Indicator.
func (Indicator) TableName() string {
	return "indicator_metadata"
}
