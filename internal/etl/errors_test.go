package etl

import (
	"context"
	"errors"
	"testing"

	"github.com/nff/ingestion/internal/source"
)

func TestClassifyErrorFromTypedReasons(t *testing.T) {
	tests := []struct {
		name   string
		reason source.Reason
		want   string
	}{
		{"auth", source.ReasonAuthentication, CodeAPIAuthenticationFailed},
		{"rate limit", source.ReasonRateLimit, CodeAPIRateLimit},
		{"timeout", source.ReasonTimeout, CodeAPITimeout},
		{"not found", source.ReasonNotFound, CodeAPINotFound},
		{"bad request", source.ReasonBadRequest, CodeAPIBadRequest},
		{"empty", source.ReasonEmpty, CodeDataEmpty},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := source.NewFetchError(tc.reason, "S", "whatever the provider said")
			if got := ClassifyError(err); got != tc.want {
				t.Errorf("ClassifyError = %s, want %s", got, tc.want)
			}
		})
	}
}

func TestClassifyErrorFromMessageText(t *testing.T) {
	tests := []struct {
		name string
		msg  string
		want string
	}{
		{"api key", "invalid API key supplied", CodeAPIAuthenticationFailed},
		{"authentication", "authentication required", CodeAPIAuthenticationFailed},
		{"rate limit", "rate limit exceeded, slow down", CodeAPIRateLimit},
		{"timeout", "request timeout after 300s", CodeAPITimeout},
		{"404", "server returned 404", CodeAPINotFound},
		{"bad request", "bad request: malformed series", CodeAPIBadRequest},
		{"no data", "no data returned from api", CodeDataEmpty},
		{"empty", "result set was empty", CodeDataEmpty},
		{"calculation", "calculation produced no values", CodeCalculationFailed},
		{"unknown", "something inexplicable", CodeUnexpectedError},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := ClassifyError(errors.New(tc.msg)); got != tc.want {
				t.Errorf("ClassifyError(%q) = %s, want %s", tc.msg, got, tc.want)
			}
		})
	}
}

func TestClassifyErrorOrderingAuthBeforeNotFound(t *testing.T) {
	// "api key not found" mentions both; authentication wins by order.
	if got := ClassifyError(errors.New("api key not found")); got != CodeAPIAuthenticationFailed {
		t.Errorf("got %s, want %s", got, CodeAPIAuthenticationFailed)
	}
}

func TestClassifyErrorDeadline(t *testing.T) {
	if got := ClassifyError(context.DeadlineExceeded); got != CodeAPITimeout {
		t.Errorf("got %s, want %s", got, CodeAPITimeout)
	}
}

func TestErrorCategory(t *testing.T) {
	tests := []struct {
		code string
		want string
	}{
		{CodeAPIAuthenticationFailed, CategoryAPIError},
		{CodeAPITimeout, CategoryAPIError},
		{CodeDataEmpty, CategoryDataError},
		{CodeCalculationFailed, CategoryCalcError},
		{CodeMissingSeriesID, CategoryConfigError},
		{CodeInvalidSource, CategoryConfigError},
		{CodeInvalidFREDSeries, CategoryConfigError},
		{CodeUnexpectedError, CategorySystemError},
	}
	for _, tc := range tests {
		if got := ErrorCategory(tc.code); got != tc.want {
			t.Errorf("ErrorCategory(%s) = %s, want %s", tc.code, got, tc.want)
		}
	}
}
