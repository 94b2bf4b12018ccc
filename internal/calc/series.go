package calc

import (
	"math"
	"sort"
	"time"
)

// Point is one dated observation.
type Point struct {
	Date  time.Time
	Value float64
}

// Series is an ordered sequence of observations for a single upstream series.
// Transform primitives never emit NaN or Inf; a point whose result is
// undefined (zero denominator, std of a single sample) is omitted instead.
type Series []Point

// Sorted returns a copy of the series ordered by ascending date.
func (s Series) Sorted() Series {
	out := make(Series, len(s))
	copy(out, s)
	sort.Slice(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	return out
}

// Values returns the raw values in series order.
func (s Series) Values() []float64 {
	vals := make([]float64, len(s))
	for i, p := range s {
		vals[i] = p.Value
	}
	return vals
}

// Diff returns the first difference v_t - v_{t-1}, dropping the unseeded
// first observation.
func (s Series) Diff() Series {
	if len(s) < 2 {
		return Series{}
	}
	out := make(Series, 0, len(s)-1)
	for i := 1; i < len(s); i++ {
		out = append(out, Point{Date: s[i].Date, Value: s[i].Value - s[i-1].Value})
	}
	return out
}

// PctChange returns the percentage change 100*(v_t/v_{t-1} - 1), dropping
// the first observation and any point with a zero base.
func (s Series) PctChange() Series {
	out := make(Series, 0, len(s))
	for i := 1; i < len(s); i++ {
		if s[i-1].Value == 0 {
			continue
		}
		out = append(out, Point{Date: s[i].Date, Value: 100 * (s[i].Value/s[i-1].Value - 1)})
	}
	return out
}

// LagRatioPercent returns 100*(v_t/v_{t-lag} - 1), dropping the unseeded lag
// window and any point whose lagged base is zero.
func (s Series) LagRatioPercent(lag int) Series {
	out := make(Series, 0, len(s))
	for i := lag; i < len(s); i++ {
		base := s[i-lag].Value
		if base == 0 {
			continue
		}
		out = append(out, Point{Date: s[i].Date, Value: 100 * (s[i].Value/base - 1)})
	}
	return out
}

// RollingMean returns the rolling mean over the trailing window. Partial
// windows still emit a value (minimum period of 1).
func (s Series) RollingMean(window int) Series {
	if window < 1 {
		window = 1
	}
	out := make(Series, len(s))
	sum := 0.0
	for i, p := range s {
		sum += p.Value
		if i >= window {
			sum -= s[i-window].Value
		}
		n := i + 1
		if n > window {
			n = window
		}
		out[i] = Point{Date: p.Date, Value: sum / float64(n)}
	}
	return out
}

// RollingStd returns the rolling sample standard deviation over the trailing
// window. Windows holding fewer than two observations are omitted.
func (s Series) RollingStd(window int) Series {
	if window < 2 {
		window = 2
	}
	out := make(Series, 0, len(s))
	for i := range s {
		lo := i - window + 1
		if lo < 0 {
			lo = 0
		}
		n := i - lo + 1
		if n < 2 {
			continue
		}
		std, ok := sampleStd(s[lo : i+1])
		if !ok {
			continue
		}
		out = append(out, Point{Date: s[i].Date, Value: std})
	}
	return out
}

// GlobalZScore standardizes the series against its full-history mean and
// sample standard deviation. A degenerate series (zero or undefined std)
// standardizes to all zeros.
func (s Series) GlobalZScore() Series {
	out := make(Series, len(s))
	mean := meanOf(s)
	std, ok := sampleStd(s)
	if !ok || std == 0 {
		for i, p := range s {
			out[i] = Point{Date: p.Date, Value: 0}
		}
		return out
	}
	for i, p := range s {
		out[i] = Point{Date: p.Date, Value: (p.Value - mean) / std}
	}
	return out
}

// RollingZScore standardizes each point against the trailing window's mean
// and sample standard deviation, with a minimum period of 1. A zero or
// undefined window std falls back to 1 so partial windows still emit a value.
func (s Series) RollingZScore(window int) Series {
	if window < 1 {
		window = 1
	}
	out := make(Series, len(s))
	for i, p := range s {
		lo := i - window + 1
		if lo < 0 {
			lo = 0
		}
		win := s[lo : i+1]
		mean := meanOf(win)
		std, ok := sampleStd(win)
		if !ok || std == 0 {
			std = 1
		}
		out[i] = Point{Date: p.Date, Value: (p.Value - mean) / std}
	}
	return out
}

// PercentileRank replaces each value with its percentile rank (0-100)
// within the full series, averaging the ranks of ties.
func (s Series) PercentileRank() Series {
	n := len(s)
	if n == 0 {
		return Series{}
	}
	sorted := make([]float64, n)
	for i, p := range s {
		sorted[i] = p.Value
	}
	sort.Float64s(sorted)

	out := make(Series, n)
	for i, p := range s {
		lo := sort.SearchFloat64s(sorted, p.Value)
		hi := lo
		for hi < n && sorted[hi] == p.Value {
			hi++
		}
		// Average rank of ties, 1-based.
		avgRank := (float64(lo+1) + float64(hi)) / 2
		out[i] = Point{Date: p.Date, Value: avgRank / float64(n) * 100}
	}
	return out
}

// JoinedPoint is one date present in both sides of an inner join.
type JoinedPoint struct {
	Date time.Time
	A    float64
	B    float64
}

// InnerJoin aligns two series on exact date equality. Dates present in only
// one side are silently dropped. Both inputs must be date-sorted.
func InnerJoin(a, b Series) []JoinedPoint {
	out := make([]JoinedPoint, 0, len(a))
	i, j := 0, 0
	for i < len(a) && j < len(b) {
		switch {
		case a[i].Date.Before(b[j].Date):
			i++
		case b[j].Date.Before(a[i].Date):
			j++
		default:
			out = append(out, JoinedPoint{Date: a[i].Date, A: a[i].Value, B: b[j].Value})
			i++
			j++
		}
	}
	return out
}

// Spread returns a-b on the inner join of the two series.
func Spread(a, b Series) Series {
	joined := InnerJoin(a, b)
	out := make(Series, len(joined))
	for i, jp := range joined {
		out[i] = Point{Date: jp.Date, Value: jp.A - jp.B}
	}
	return out
}

// Ratio returns a/b on the inner join of the two series. Points with a zero
// denominator are omitted rather than divided.
func Ratio(a, b Series) Series {
	joined := InnerJoin(a, b)
	out := make(Series, 0, len(joined))
	for _, jp := range joined {
		if jp.B == 0 {
			continue
		}
		out = append(out, Point{Date: jp.Date, Value: jp.A / jp.B})
	}
	return out
}

// Sum returns a+b on the inner join of the two series.
func Sum(a, b Series) Series {
	joined := InnerJoin(a, b)
	out := make(Series, len(joined))
	for i, jp := range joined {
		out[i] = Point{Date: jp.Date, Value: jp.A + jp.B}
	}
	return out
}

// Product returns a*b on the inner join of the two series.
func Product(a, b Series) Series {
	joined := InnerJoin(a, b)
	out := make(Series, len(joined))
	for i, jp := range joined {
		out[i] = Point{Date: jp.Date, Value: jp.A * jp.B}
	}
	return out
}

// Scale multiplies every value by the given factor.
func (s Series) Scale(factor float64) Series {
	out := make(Series, len(s))
	for i, p := range s {
		out[i] = Point{Date: p.Date, Value: p.Value * factor}
	}
	return out
}

func meanOf(s Series) float64 {
	if len(s) == 0 {
		return 0
	}
	sum := 0.0
	for _, p := range s {
		sum += p.Value
	}
	return sum / float64(len(s))
}

// sampleStd computes the sample (n-1) standard deviation. It reports false
// when fewer than two observations are available.
func sampleStd(s Series) (float64, bool) {
	n := len(s)
	if n < 2 {
		return 0, false
	}
	mean := meanOf(s)
	var ss float64
	for _, p := range s {
		d := p.Value - mean
		ss += d * d
	}
	return math.Sqrt(ss / float64(n-1)), true
}

// SeriesSet is an insertion-ordered collection of named series. Ordering
// matters: several transforms operate on "the first" or "the first two"
// series, in the order the indicator's series ids were declared.
type SeriesSet struct {
	ids    []string
	series map[string]Series
}

// NewSeriesSet creates an empty series set.
func NewSeriesSet() *SeriesSet {
	return &SeriesSet{series: make(map[string]Series)}
}

// Add inserts a series under the given id, sorting it by date. Adding the
// same id twice replaces the series but keeps its original position.
func (ss *SeriesSet) Add(id string, s Series) {
	if _, exists := ss.series[id]; !exists {
		ss.ids = append(ss.ids, id)
	}
	ss.series[id] = s.Sorted()
}

// Get returns the series stored under id.
func (ss *SeriesSet) Get(id string) (Series, bool) {
	s, ok := ss.series[id]
	return s, ok
}

// IDs returns the series ids in insertion order.
func (ss *SeriesSet) IDs() []string {
	return ss.ids
}

// Len returns the number of series in the set.
func (ss *SeriesSet) Len() int {
	return len(ss.ids)
}

// First returns the first series in insertion order.
func (ss *SeriesSet) First() (string, Series) {
	if len(ss.ids) == 0 {
		return "", nil
	}
	return ss.ids[0], ss.series[ss.ids[0]]
}

// Pair returns the first two series in insertion order.
func (ss *SeriesSet) Pair() (Series, Series, bool) {
	if len(ss.ids) < 2 {
		return nil, nil, false
	}
	return ss.series[ss.ids[0]], ss.series[ss.ids[1]], true
}
