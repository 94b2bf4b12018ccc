package domain

import "time"

// TimeSeriesPoint is one observation of one indicator, unique on
// (indicator_id, date). When a calculation was applied, OriginalValue holds
// the raw fetched value and CalculatedValue equals Value; otherwise both
// audit columns are null. The derived statistical columns are written by the
// feature calculator when it is enabled and stay null otherwise.
type TimeSeriesPoint struct {
	ID          uint      `gorm:"primaryKey" json:"-"`
	IndicatorID uint      `gorm:"not null;uniqueIndex:idx_series_indicator_date" json:"indicator_id"`
	Date        time.Time `gorm:"not null;uniqueIndex:idx_series_indicator_date" json:"date"`
	Value       float64   `json:"value"`

	OriginalValue   *float64 `json:"original_value,omitempty"`
	CalculatedValue *float64 `json:"calculated_value,omitempty"`
	HasCalculation  bool     `gorm:"default:false" json:"has_calculation"`

	ZScore        *float64 `gorm:"column:z_score" json:"z_score,omitempty"`
	Normalized    *float64 `json:"normalized,omitempty"`
	PctChange1M   *float64 `gorm:"column:pct_change_1m" json:"pct_change_1m,omitempty"`
	PctChange3M   *float64 `gorm:"column:pct_change_3m" json:"pct_change_3m,omitempty"`
	PctChange12M  *float64 `gorm:"column:pct_change_12m" json:"pct_change_12m,omitempty"`
	MA30D         *float64 `gorm:"column:ma_30d" json:"ma_30d,omitempty"`
	MA90D         *float64 `gorm:"column:ma_90d" json:"ma_90d,omitempty"`
	MA365D        *float64 `gorm:"column:ma_365d" json:"ma_365d,omitempty"`
	Volatility30D *float64 `gorm:"column:volatility_30d" json:"volatility_30d,omitempty"`
	Volatility90D *float64 `gorm:"column:volatility_90d" json:"volatility_90d,omitempty"`
	Trend         *string  `gorm:"type:text" json:"trend,omitempty"`
	IsOutlier     bool     `gorm:"default:false" json:"is_outlier"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName returns the database table name for TimeSeriesPoint.
func (TimeSeriesPoint) TableName() string {
	return "indicator_time_series"
}
