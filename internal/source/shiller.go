package source

import (
	"bytes"
	"context"
	"io"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/xuri/excelize/v2"
)

const (
	ShillerSourceID   = "shiller"
	ShillerSourceName = "Shiller market data workbook"

	shillerDefaultSheet = "Data"
)

// shillerColumns maps logical series ids onto the column layout of the
// Shiller "Data" sheet: date fraction in A, composite price in B, dividends
// and earnings in C/D, CPI in E, long rate in G, CAPE in M.
var shillerColumns = map[string]int{
	"SP500":    1,
	"DIVIDEND": 2,
	"EARNINGS": 3,
	"CPI":      4,
	"GS10":     6,
	"CAPE":     12,
}

// ObjectFetcher reads stored feed objects. Satisfied by the storage layer.
type ObjectFetcher interface {
	Download(ctx context.Context, key string) (io.ReadCloser, error)
}

// ShillerFetcher parses series out of the Shiller market-data workbook. The
// workbook is read from object storage when a feed key is configured,
// otherwise downloaded from the public URL.
type ShillerFetcher struct {
	client    *resty.Client
	url       string
	sheet     string
	objects   ObjectFetcher
	objectKey string
}

// NewShillerFetcher creates a Shiller workbook fetcher.
// Parameters:
//   - url: HTTP location of the workbook.
//   - sheet: worksheet name; empty selects the standard "Data" sheet.
//   - objects: optional object store holding a mirrored workbook.
//   - objectKey: object key of the mirrored workbook; empty disables the mirror.
//   - timeout: download timeout.
// Returns:
//   - *ShillerFetcher: fetcher instance.
func NewShillerFetcher(url, sheet string, objects ObjectFetcher, objectKey string, timeout time.Duration) *ShillerFetcher {
	if sheet == "" {
		sheet = shillerDefaultSheet
	}
	return &ShillerFetcher{
		client:    resty.New().SetTimeout(timeout),
		url:       url,
		sheet:     sheet,
		objects:   objects,
		objectKey: objectKey,
	}
}

// GetSourceID returns the unique identifier for this provider
func (s *ShillerFetcher) GetSourceID() string {
	return ShillerSourceID
}

// GetDisplayName returns a human-readable name for this provider
func (s *ShillerFetcher) GetDisplayName() string {
	return ShillerSourceName
}

// Fetch parses the requested series out of the workbook, filtered to
// [start, end]. The whole workbook is downloaded once per call.
func (s *ShillerFetcher) Fetch(ctx context.Context, seriesIDs []string, start, end time.Time) (map[string][]Observation, error) {
	workbook, err := s.openWorkbook(ctx)
	if err != nil {
		return nil, err
	}
	defer workbook.Close()

	rows, err := workbook.GetRows(s.sheet)
	if err != nil {
		return nil, NewFetchError(ReasonBadRequest, "", "worksheet %q not found in workbook", s.sheet)
	}

	out := make(map[string][]Observation, len(seriesIDs))
	for _, id := range seriesIDs {
		col, ok := shillerColumns[strings.ToUpper(id)]
		if !ok {
			return nil, NewFetchError(ReasonNotFound, id, "series not present in workbook layout")
		}
		obs := parseShillerColumn(rows, id, col, start, end)
		if len(obs) == 0 {
			return nil, NewFetchError(ReasonEmpty, id, "no data returned for requested range")
		}
		out[id] = obs
	}
	return out, nil
}

func (s *ShillerFetcher) openWorkbook(ctx context.Context) (*excelize.File, error) {
	if s.objects != nil && s.objectKey != "" {
		body, err := s.objects.Download(ctx, s.objectKey)
		if err == nil {
			defer body.Close()
			return excelize.OpenReader(body)
		}
		// fall back to the public URL when the mirror is missing
	}

	resp, err := s.client.R().SetContext(ctx).Get(s.url)
	if err != nil {
		if isTimeout(err) {
			return nil, NewFetchError(ReasonTimeout, "", "workbook download timed out: %v", err)
		}
		return nil, NewFetchError(ReasonUnavailable, "", "workbook download failed: %v", err)
	}
	if resp.StatusCode() != 200 {
		return nil, NewFetchError(ReasonUnavailable, "", "workbook download returned status %d", resp.StatusCode())
	}
	return excelize.OpenReader(bytes.NewReader(resp.Body()))
}

// parseShillerColumn walks every row, keeping those whose first cell parses
// as a Shiller date fraction (e.g. "2023.01") and whose target cell holds a
// number.
func parseShillerColumn(rows [][]string, seriesID string, col int, start, end time.Time) []Observation {
	var out []Observation
	for _, row := range rows {
		if len(row) <= col {
			continue
		}
		date, ok := parseShillerDate(strings.TrimSpace(row[0]))
		if !ok || date.Before(start) || date.After(end) {
			continue
		}
		value, err := strconv.ParseFloat(strings.TrimSpace(row[col]), 64)
		if err != nil || math.IsNaN(value) {
			continue
		}
		out = append(out, Observation{SeriesID: seriesID, Date: date, Value: value})
	}
	return out
}

// parseShillerDate converts the workbook's fractional date ("1871.01" ..
// "2023.12") into the first day of that month. The October cell is written
// "YYYY.1", which must read as month 10, not January.
func parseShillerDate(cell string) (time.Time, bool) {
	parts := strings.SplitN(cell, ".", 2)
	if len(parts) != 2 {
		return time.Time{}, false
	}
	year, err := strconv.Atoi(parts[0])
	if err != nil || year < 1800 || year > 3000 {
		return time.Time{}, false
	}
	frac := parts[1]
	if frac == "1" {
		frac = "10"
	}
	month, err := strconv.Atoi(frac)
	if err != nil || month < 1 || month > 12 {
		return time.Time{}, false
	}
	return time.Date(year, time.Month(month), 1, 0, 0, 0, 0, time.UTC), true
}

var _ Fetcher = (*ShillerFetcher)(nil)
