package source

import (
	"errors"
	"fmt"
)

// Reason categorizes why an upstream fetch failed. The fetch layer maps
// transport and HTTP outcomes onto these so callers never have to parse
// provider-specific payloads.
type Reason string

const (
	ReasonAuthentication Reason = "authentication"
	ReasonRateLimit      Reason = "rate_limit"
	ReasonTimeout        Reason = "timeout"
	ReasonNotFound       Reason = "not_found"
	ReasonBadRequest     Reason = "bad_request"
	ReasonEmpty          Reason = "empty"
	ReasonUnavailable    Reason = "unavailable"
)

// ErrSourceRetired marks providers that were turned down and must never be
// contacted again.
var ErrSourceRetired = errors.New("data source has been retired")

// ErrUnsupportedSource is returned by the factory for unknown providers.
var ErrUnsupportedSource = errors.New("unsupported data source")

// FetchError is a classified upstream failure.
type FetchError struct {
	Reason   Reason
	SeriesID string
	Message  string
}

// Error implements the error interface.
func (e *FetchError) Error() string {
	if e.SeriesID != "" {
		return fmt.Sprintf("%s (series %s): %s", e.Reason, e.SeriesID, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Reason, e.Message)
}

// NewFetchError builds a classified fetch error.
// Parameters:
//   - reason: failure category.
//   - seriesID: upstream series involved, may be empty.
//   - format: message format string.
//   - args: message format arguments.
// Returns:
//   - *FetchError: classified error.
func NewFetchError(reason Reason, seriesID, format string, args ...interface{}) *FetchError {
	return &FetchError{Reason: reason, SeriesID: seriesID, Message: fmt.Sprintf(format, args...)}
}

// ReasonOf extracts the failure reason from an error chain.
// Parameters:
//   - err: error to inspect.
// Returns:
//   - Reason: classified reason, empty when err carries none.
//   - bool: true when a FetchError was found.
func ReasonOf(err error) (Reason, bool) {
	var fe *FetchError
	if errors.As(err, &fe) {
		return fe.Reason, true
	}
	return "", false
}
