package source

import (
	"context"
	"time"
)

// Observation is one dated value fetched from an upstream provider.
type Observation struct {
	SeriesID string
	Date     time.Time
	Value    float64
}

// Fetcher defines the interface for upstream time-series providers.
type Fetcher interface {
	// GetSourceID returns the unique identifier for this provider.
	// Parameters: none.
	// Returns:
	//   - string: stable provider identifier.
	GetSourceID() string

	// GetDisplayName returns a human-readable name for this provider.
	// Parameters: none.
	// Returns:
	//   - string: display-friendly provider name.
	GetDisplayName() string

	// Fetch retrieves observations for the given series over [start, end].
	// Parameters:
	//   - ctx: context for cancellation and deadlines.
	//   - seriesIDs: upstream series identifiers, in declaration order.
	//   - start: inclusive start of the requested range.
	//   - end: inclusive end of the requested range.
	// Returns:
	//   - map[string][]Observation: observations keyed by series ID.
	//   - error: non-nil if fetching fails for any series.
	Fetch(ctx context.Context, seriesIDs []string, start, end time.Time) (map[string][]Observation, error)
}
