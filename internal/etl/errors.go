package etl

import (
	"context"
	"errors"
	"strings"

	"github.com/nff/ingestion/internal/source"
)

// Stable error codes persisted with failed runs. Dashboards and retry
// policies key off these, so the strings never change.
const (
	CodeAPIAuthenticationFailed = "API_AUTHENTICATION_FAILED"
	CodeAPIRateLimit            = "API_RATE_LIMIT"
	CodeAPITimeout              = "API_TIMEOUT"
	CodeAPINotFound             = "API_NOT_FOUND"
	CodeAPIBadRequest           = "API_BAD_REQUEST"
	CodeDataEmpty               = "DATA_EMPTY"
	CodeCalculationFailed       = "CALCULATION_FAILED"
	CodeUnexpectedError         = "UNEXPECTED_ERROR"

	// Configuration rejections, raised before any network call.
	CodeInvalidSource     = "INVALID_SOURCE"
	CodeMissingSeriesID   = "MISSING_SERIES_ID"
	CodeInvalidAPIURL     = "INVALID_API_URL"
	CodeInvalidFREDSeries = "INVALID_FRED_SERIES"
)

// Error categories derived from code prefixes.
const (
	CategoryAPIError    = "API_ERROR"
	CategoryDataError   = "DATA_ERROR"
	CategoryCalcError   = "CALC_ERROR"
	CategoryConfigError = "CONFIG_ERROR"
	CategorySystemError = "SYSTEM_ERROR"
)

// ClassifyError maps a pipeline failure onto its stable error code. Typed
// errors from the fetch layer are matched first; message substrings are the
// fallback so changed upstream wording degrades to a coarser code instead of
// breaking classification.
// Parameters:
//   - err: failure to classify.
// Returns:
//   - string: stable error code.
func ClassifyError(err error) string {
	if err == nil {
		return ""
	}

	if reason, ok := source.ReasonOf(err); ok {
		switch reason {
		case source.ReasonAuthentication:
			return CodeAPIAuthenticationFailed
		case source.ReasonRateLimit:
			return CodeAPIRateLimit
		case source.ReasonTimeout:
			return CodeAPITimeout
		case source.ReasonNotFound:
			return CodeAPINotFound
		case source.ReasonBadRequest:
			return CodeAPIBadRequest
		case source.ReasonEmpty:
			return CodeDataEmpty
		}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return CodeAPITimeout
	}

	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "api key"), strings.Contains(msg, "authentication"):
		return CodeAPIAuthenticationFailed
	case strings.Contains(msg, "rate limit"):
		return CodeAPIRateLimit
	case strings.Contains(msg, "timeout"):
		return CodeAPITimeout
	case strings.Contains(msg, "not found"), strings.Contains(msg, "404"):
		return CodeAPINotFound
	case strings.Contains(msg, "bad request"), strings.Contains(msg, "400"):
		return CodeAPIBadRequest
	case strings.Contains(msg, "no data"), strings.Contains(msg, "empty"):
		return CodeDataEmpty
	case strings.Contains(msg, "calculation"):
		return CodeCalculationFailed
	default:
		return CodeUnexpectedError
	}
}

// ErrorCategory derives the coarse category from an error code prefix.
// Parameters:
//   - code: stable error code.
// Returns:
//   - string: category name.
func ErrorCategory(code string) string {
	switch {
	case strings.HasPrefix(code, "API_"):
		return CategoryAPIError
	case strings.HasPrefix(code, "DATA_"):
		return CategoryDataError
	case strings.HasPrefix(code, "CALCULATION_"):
		return CategoryCalcError
	case strings.HasPrefix(code, "MISSING_"), strings.HasPrefix(code, "INVALID_"):
		return CategoryConfigError
	default:
		return CategorySystemError
	}
}
