package etl

import (
	"testing"

	"github.com/nff/ingestion/internal/domain"
)

func TestValidateAPIConfig(t *testing.T) {
	tests := []struct {
		name     string
		ind      domain.Indicator
		wantCode string // empty means valid
	}{
		{
			name:     "valid fred indicator",
			ind:      domain.Indicator{Source: "FRED", SeriesIDs: "UNRATE"},
			wantCode: "",
		},
		{
			name:     "valid multi series",
			ind:      domain.Indicator{Source: "FRED", SeriesIDs: "DGS10|DGS2"},
			wantCode: "",
		},
		{
			name:     "retired polygon source",
			ind:      domain.Indicator{Source: "Polygon.io", SeriesIDs: "AAPL"},
			wantCode: CodeInvalidSource,
		},
		{
			name:     "empty series ids",
			ind:      domain.Indicator{Source: "FRED", SeriesIDs: "   "},
			wantCode: CodeMissingSeriesID,
		},
		{
			name:     "malformed api example",
			ind:      domain.Indicator{Source: "FRED", SeriesIDs: "UNRATE", APIExample: "ftp://example.com"},
			wantCode: CodeInvalidAPIURL,
		},
		{
			name:     "valid api example",
			ind:      domain.Indicator{Source: "FRED", SeriesIDs: "UNRATE", APIExample: "https://api.stlouisfed.org/fred"},
			wantCode: "",
		},
		{
			name:     "fred series with spaces",
			ind:      domain.Indicator{Source: "FRED", SeriesIDs: "UN RATE"},
			wantCode: CodeInvalidFREDSeries,
		},
		{
			name:     "fred series underscores ok",
			ind:      domain.Indicator{Source: "FRED", SeriesIDs: "T10Y2Y|BAMLH0A0_HYM2"},
			wantCode: "",
		},
		{
			name:     "non-fred series not format checked",
			ind:      domain.Indicator{Source: "Shiller", SeriesIDs: "CAPE ratio"},
			wantCode: "",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			verr := validateAPIConfig(&tc.ind)
			if tc.wantCode == "" {
				if verr != nil {
					t.Fatalf("expected valid, got %v", verr)
				}
				return
			}
			if verr == nil {
				t.Fatalf("expected code %s, got valid", tc.wantCode)
			}
			if verr.code != tc.wantCode {
				t.Errorf("code = %s, want %s", verr.code, tc.wantCode)
			}
		})
	}
}

func TestSplitSeriesIDs(t *testing.T) {
	tests := []struct {
		in   string
		want []string
	}{
		{"UNRATE", []string{"UNRATE"}},
		{"DGS10|DGS2", []string{"DGS10", "DGS2"}},
		{" DGS10 | DGS2 ", []string{"DGS10", "DGS2"}},
		{"A||B", []string{"A", "B"}},
		{"", nil},
	}
	for _, tc := range tests {
		got := SplitSeriesIDs(tc.in)
		if len(got) != len(tc.want) {
			t.Errorf("SplitSeriesIDs(%q) = %v, want %v", tc.in, got, tc.want)
			continue
		}
		for i := range got {
			if got[i] != tc.want[i] {
				t.Errorf("SplitSeriesIDs(%q)[%d] = %q, want %q", tc.in, i, got[i], tc.want[i])
			}
		}
	}
}

func TestNewJobIDPrefixes(t *testing.T) {
	tests := []struct {
		jobType string
		prefix  string
	}{
		{JobTypeETL, "ETL_"},
		{JobTypeCategory, "CATEGORY_"},
		{JobTypeIncremental, "INCR_"},
	}
	for _, tc := range tests {
		id := newJobID(tc.jobType)
		if len(id) != len(tc.prefix)+12 {
			t.Errorf("newJobID(%s) = %q, want prefix %q plus 12 hex chars", tc.jobType, id, tc.prefix)
		}
		if id[:len(tc.prefix)] != tc.prefix {
			t.Errorf("newJobID(%s) = %q, want prefix %q", tc.jobType, id, tc.prefix)
		}
	}
	if newJobID(JobTypeETL) == newJobID(JobTypeETL) {
		t.Error("job ids must be unique")
	}
}
