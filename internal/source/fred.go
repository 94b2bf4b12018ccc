package source

import (
	"context"
	"errors"
	"net"
	"strconv"
	"time"

	"github.com/go-resty/resty/v2"
)

const (
	FREDSourceID   = "fred"
	FREDSourceName = "FRED (Federal Reserve Economic Data)"

	fredDefaultBaseURL = "https://api.stlouisfed.org/fred"
)

// fredObservationsResponse mirrors the observations payload of the FRED API.
type fredObservationsResponse struct {
	Observations []struct {
		Date  string `json:"date"`
		Value string `json:"value"`
	} `json:"observations"`
}

// FREDFetcher retrieves series observations from the FRED REST API.
type FREDFetcher struct {
	client *resty.Client
	apiKey string
}

// NewFREDFetcher creates a FRED fetcher.
// Parameters:
//   - apiKey: FRED API key.
//   - baseURL: API base URL; empty selects the public endpoint.
//   - timeout: per-request timeout.
// Returns:
//   - *FREDFetcher: fetcher instance.
func NewFREDFetcher(apiKey, baseURL string, timeout time.Duration) *FREDFetcher {
	if baseURL == "" {
		baseURL = fredDefaultBaseURL
	}
	client := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(timeout).
		SetRetryCount(2).
		SetRetryWaitTime(2 * time.Second).
		AddRetryCondition(func(r *resty.Response, err error) bool {
			return r != nil && r.StatusCode() == 429
		})
	return &FREDFetcher{client: client, apiKey: apiKey}
}

// GetSourceID returns the unique identifier for this provider
func (f *FREDFetcher) GetSourceID() string {
	return FREDSourceID
}

// GetDisplayName returns a human-readable name for this provider
func (f *FREDFetcher) GetDisplayName() string {
	return FREDSourceName
}

// Fetch retrieves observations for each series over [start, end]. Series are
// fetched sequentially; the first failure aborts the whole call so partial
// multi-series indicators never reach the calculation step.
func (f *FREDFetcher) Fetch(ctx context.Context, seriesIDs []string, start, end time.Time) (map[string][]Observation, error) {
	out := make(map[string][]Observation, len(seriesIDs))
	for _, id := range seriesIDs {
		obs, err := f.fetchSeries(ctx, id, start, end)
		if err != nil {
			return nil, err
		}
		out[id] = obs
	}
	return out, nil
}

func (f *FREDFetcher) fetchSeries(ctx context.Context, seriesID string, start, end time.Time) ([]Observation, error) {
	var payload fredObservationsResponse
	resp, err := f.client.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"series_id":         seriesID,
			"api_key":           f.apiKey,
			"file_type":         "json",
			"observation_start": start.Format("2006-01-02"),
			"observation_end":   end.Format("2006-01-02"),
		}).
		SetResult(&payload).
		Get("/series/observations")
	if err != nil {
		if isTimeout(err) {
			return nil, NewFetchError(ReasonTimeout, seriesID, "request timed out: %v", err)
		}
		return nil, NewFetchError(ReasonUnavailable, seriesID, "request failed: %v", err)
	}

	switch resp.StatusCode() {
	case 200:
		// fall through to parsing
	case 401, 403:
		return nil, NewFetchError(ReasonAuthentication, seriesID, "api key rejected (status %d)", resp.StatusCode())
	case 429:
		return nil, NewFetchError(ReasonRateLimit, seriesID, "rate limit exceeded")
	case 400:
		return nil, NewFetchError(ReasonBadRequest, seriesID, "bad request: %s", resp.String())
	case 404:
		return nil, NewFetchError(ReasonNotFound, seriesID, "series not found")
	default:
		return nil, NewFetchError(ReasonUnavailable, seriesID, "unexpected status %d", resp.StatusCode())
	}

	observations := make([]Observation, 0, len(payload.Observations))
	for _, o := range payload.Observations {
		// FRED publishes missing values as "."
		if o.Value == "." || o.Value == "" {
			continue
		}
		value, err := strconv.ParseFloat(o.Value, 64)
		if err != nil {
			continue
		}
		date, err := time.Parse("2006-01-02", o.Date)
		if err != nil {
			continue
		}
		observations = append(observations, Observation{SeriesID: seriesID, Date: date, Value: value})
	}
	if len(observations) == 0 {
		return nil, NewFetchError(ReasonEmpty, seriesID, "no data returned for requested range")
	}
	return observations, nil
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	return false
}

var _ Fetcher = (*FREDFetcher)(nil)
