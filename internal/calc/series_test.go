package calc

import (
	"math"
	"testing"
	"time"
)

func TestRollingMeanPartialWindows(t *testing.T) {
	s := monthlySeries(2, 4, 6, 8)
	got := s.RollingMean(3)
	assertValues(t, got, []float64{2, 3, 4, 6})
}

func TestRollingStdSkipsSingleSample(t *testing.T) {
	s := monthlySeries(1, 2, 3, 4)
	got := s.RollingStd(2)
	if len(got) != 3 {
		t.Fatalf("got %d points, want 3", len(got))
	}
	for i, p := range got {
		if !almostEqual(p.Value, math.Sqrt(0.5)) {
			t.Errorf("point %d: got %v", i, p.Value)
		}
	}
	if !got[0].Date.Equal(s[1].Date) {
		t.Errorf("first std point should start at the second observation")
	}
}

func TestRollingZScoreFallsBackToUnitStd(t *testing.T) {
	// First window has one sample, second has two identical samples; both
	// divide by 1 instead of being dropped.
	s := monthlySeries(5, 5, 8)
	got := s.RollingZScore(2)
	assertValues(t, got, []float64{0, 0, 1.5 / math.Sqrt(4.5)})
}

func TestPercentileRankAveragesTies(t *testing.T) {
	s := monthlySeries(10, 20, 20, 30)
	got := s.PercentileRank()
	assertValues(t, got, []float64{25, 62.5, 62.5, 100})
}

func TestInnerJoinDropsUnmatchedDates(t *testing.T) {
	day := func(d int) time.Time { return time.Date(2024, 1, d, 0, 0, 0, 0, time.UTC) }
	a := Series{{day(1), 1}, {day(2), 2}, {day(4), 4}}
	b := Series{{day(2), 20}, {day(3), 30}, {day(4), 40}}
	joined := InnerJoin(a, b)
	if len(joined) != 2 {
		t.Fatalf("got %d joined points, want 2", len(joined))
	}
	if joined[0].A != 2 || joined[0].B != 20 || joined[1].A != 4 || joined[1].B != 40 {
		t.Errorf("unexpected join result: %+v", joined)
	}
}

func TestPctChangeSkipsZeroBase(t *testing.T) {
	s := monthlySeries(0, 5, 10)
	got := s.PctChange()
	// The move off the zero base is dropped, never divided.
	assertValues(t, got, []float64{100})
}

func TestSortedDoesNotMutateInput(t *testing.T) {
	day := func(d int) time.Time { return time.Date(2024, 1, d, 0, 0, 0, 0, time.UTC) }
	s := Series{{day(3), 3}, {day(1), 1}, {day(2), 2}}
	sorted := s.Sorted()
	if !sorted[0].Date.Equal(day(1)) || !sorted[2].Date.Equal(day(3)) {
		t.Errorf("Sorted order wrong: %+v", sorted)
	}
	if !s[0].Date.Equal(day(3)) {
		t.Errorf("Sorted mutated its receiver")
	}
}

func TestSeriesSetPreservesInsertionOrder(t *testing.T) {
	set := NewSeriesSet()
	set.Add("B", monthlySeries(1))
	set.Add("A", monthlySeries(2))
	set.Add("B", monthlySeries(3)) // replace keeps position

	ids := set.IDs()
	if len(ids) != 2 || ids[0] != "B" || ids[1] != "A" {
		t.Fatalf("ids = %v", ids)
	}
	id, first := set.First()
	if id != "B" || first[0].Value != 3 {
		t.Errorf("First() = %q, %v", id, first)
	}
}
