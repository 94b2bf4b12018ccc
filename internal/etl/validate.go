package etl

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/nff/ingestion/internal/domain"
)

var apiURLPattern = regexp.MustCompile(`^https?://`)

// validationError is a configuration rejection raised before any network
// call. Indicators failing validation are BLOCKED, not ERRORed, so they stay
// out of automatic selection until the configuration is fixed.
type validationError struct {
	code    string
	message string
}

// Error implements the error interface.
func (e *validationError) Error() string {
	return fmt.Sprintf("%s: %s", e.code, e.message)
}

// validateAPIConfig checks an indicator's data-source wiring.
// Parameters:
//   - ind: indicator to validate.
// Returns:
//   - *validationError: nil when the configuration is usable.
func validateAPIConfig(ind *domain.Indicator) *validationError {
	src := strings.ToLower(ind.Source)

	if strings.Contains(src, "polygon") {
		return &validationError{
			code:    CodeInvalidSource,
			message: "polygon api is no longer available, update the data source",
		}
	}

	if strings.TrimSpace(ind.SeriesIDs) == "" {
		return &validationError{
			code:    CodeMissingSeriesID,
			message: "series id is empty, cannot fetch data without a series identifier",
		}
	}

	if api := strings.TrimSpace(ind.APIExample); api != "" && !apiURLPattern.MatchString(api) {
		return &validationError{
			code:    CodeInvalidAPIURL,
			message: fmt.Sprintf("api example is not a valid url: %q", truncate(api, 100)),
		}
	}

	if strings.Contains(src, "fred") {
		for _, series := range SplitSeriesIDs(ind.SeriesIDs) {
			if !isFREDSeriesID(series) {
				return &validationError{
					code:    CodeInvalidFREDSeries,
					message: fmt.Sprintf("invalid fred series id format: %q", series),
				}
			}
		}
	}

	return nil
}

// SplitSeriesIDs splits the pipe-delimited series column, trimming
// whitespace and dropping empty segments.
// Parameters:
//   - seriesIDs: raw column value.
// Returns:
//   - []string: series ids in declaration order.
func SplitSeriesIDs(seriesIDs string) []string {
	parts := strings.Split(seriesIDs, "|")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

// isFREDSeriesID accepts alphanumeric ids, allowing underscores and hyphens.
func isFREDSeriesID(series string) bool {
	hasAlnum := false
	for _, r := range series {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			hasAlnum = true
		case r == '_', r == '-':
		default:
			return false
		}
	}
	return hasAlnum
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
