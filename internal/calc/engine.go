package calc

import (
	"errors"
	"fmt"
	"strings"
)

// Kind identifies which transform was applied to an indicator's series.
type Kind string

const (
	KindMoMDifference Kind = "mom_difference"
	KindLevel         Kind = "level"
	KindSpreadSeries  Kind = "spread_series"
	KindZScore        Kind = "z_score"
	KindYoYPercent    Kind = "yoy_percentage"
	KindMovingAverage Kind = "moving_average"
	KindSpread        Kind = "spread"
	KindRatio         Kind = "ratio"
	KindShillerERP    Kind = "shiller_erp"
	KindVolatility    Kind = "volatility"
	KindPercentile    Kind = "percentile"
	KindWeeklyChange  Kind = "weekly_change"
	KindComposite     Kind = "composite"
	KindArithmetic    Kind = "simple_arithmetic"
)

var (
	// ErrNoData is returned when the input set is empty or the primary
	// series holds no observations.
	ErrNoData = errors.New("no series data")
	// ErrMissingOperand is returned by two-operand transforms given a
	// single series.
	ErrMissingOperand = errors.New("requires two aligned series")
	// ErrNotImplemented marks descriptors that classify to a transform the
	// engine deliberately does not compute (Shiller ERP, composites).
	ErrNotImplemented = errors.New("transform not implemented")
	// ErrUnclassified is returned when no rule matched and the arithmetic
	// fallback found no operator to apply.
	ErrUnclassified = errors.New("descriptor could not be classified")
	// ErrEmptyResult is returned when a transform matched but produced no
	// output points, for example a spread of two disjoint series.
	ErrEmptyResult = errors.New("transform produced no values")
)

// Result is the outcome of applying one classified transform.
type Result struct {
	Kind   Kind
	Series Series
}

type ruleContext struct {
	descriptor string // normalized
	set        *SeriesSet
	indicator  string // lowercased indicator name
}

type rule struct {
	kind  Kind
	match func(rc ruleContext) bool
	apply func(rc ruleContext) (Series, error)
}

// Engine classifies free-text calculation descriptors against a fixed,
// priority-ordered rule table and executes the matching transform. The first
// matching rule wins; ordering is part of the contract because several rules
// share substrings ("3-month" must reach the moving-average rule before the
// spread rule sees its hyphen).
type Engine struct {
	rules []rule
}

// NewEngine builds the engine with its full rule table.
func NewEngine() *Engine {
	e := &Engine{}
	e.rules = []rule{
		{
			kind:  KindMoMDifference,
			match: matchAny("deltamom", "t - t-1", "mom =", "= t - t"),
			apply: func(rc ruleContext) (Series, error) {
				_, s := rc.set.First()
				return s.Diff(), nil
			},
		},
		{
			kind:  KindLevel,
			match: matchAny("percent as published", "level", "as published"),
			apply: applyLevel,
		},
		{
			// Descriptive guidance ("preferred", "monitor", "pair with")
			// carries no formula; the raw series is published as-is, with
			// an optional 20-period smoothing when the text asks for it.
			kind: KindLevel,
			match: matchAny("use target rate", "use published", "preferred",
				"headwind", "tailwind", "sensitivity", "driver for", "monitor",
				"context", "pair with", "utilities/chemicals", "rolling corr"),
			apply: applyLevel,
		},
		{
			// Series such as T10Y2Y arrive as a precomputed spread, so the
			// values pass through untouched.
			kind: KindSpreadSeries,
			match: func(rc ruleContext) bool {
				if containsAny(rc.descriptor, "t10y2y", "yield curve", "curve inversion") {
					return true
				}
				for _, id := range rc.set.IDs() {
					if strings.Contains(strings.ToLower(id), "t10y2y") {
						return true
					}
				}
				return false
			},
			apply: applyLevel,
		},
		{
			kind:  KindZScore,
			match: matchAny("z-score", "zscore", "12m z-score", "optional z-score"),
			apply: func(rc ruleContext) (Series, error) {
				_, s := rc.set.First()
				if window, rolling := zScoreWindow(rc.descriptor, len(s)); rolling {
					return s.RollingZScore(window), nil
				}
				return s.GlobalZScore(), nil
			},
		},
		{
			kind:  KindYoYPercent,
			match: matchAny("yoy", "year-over-year", "t/t-12", "100*(t/t-12"),
			apply: func(rc ruleContext) (Series, error) {
				_, s := rc.set.First()
				return s.LagRatioPercent(12), nil
			},
		},
		{
			kind:  KindMovingAverage,
			match: matchAny("ma", "moving average", "avg", "3-month", "3m"),
			apply: func(rc ruleContext) (Series, error) {
				_, s := rc.set.First()
				return s.RollingMean(movingAverageWindow(rc.descriptor, len(s))), nil
			},
		},
		{
			kind:  KindSpread,
			match: matchAny("spread", "subtract", "-", "dgs10 - dgs2"),
			apply: applySpread,
		},
		{
			kind:  KindRatio,
			match: matchAny("ratio", "divide", "/", "per"),
			apply: func(rc ruleContext) (Series, error) {
				a, b, ok := rc.set.Pair()
				if !ok {
					return nil, ErrMissingOperand
				}
				return Ratio(a, b), nil
			},
		},
		{
			// Shiller ERP needs earnings-yield data the pipeline does not
			// carry per-indicator yet. Classified so the failure is explicit
			// rather than falling through to arithmetic.
			kind: KindShillerERP,
			match: func(rc ruleContext) bool {
				return strings.Contains(rc.descriptor, "shiller") &&
					strings.Contains(rc.descriptor, "erp")
			},
			apply: func(rc ruleContext) (Series, error) {
				return nil, ErrNotImplemented
			},
		},
		{
			kind:  KindVolatility,
			match: matchAny("vol", "volatility", "std"),
			apply: func(rc ruleContext) (Series, error) {
				_, s := rc.set.First()
				return s.RollingStd(volatilityWindow(rc.descriptor, len(s))), nil
			},
		},
		{
			// Shadowed: "percentile" contains "per", so the ratio rule above
			// always matches first. Ordering is part of the contract, so the
			// rule keeps its slot instead of being moved up.
			kind:  KindPercentile,
			match: matchAny("percentile"),
			apply: func(rc ruleContext) (Series, error) {
				_, s := rc.set.First()
				return s.PercentileRank(), nil
			},
		},
		{
			kind:  KindWeeklyChange,
			match: matchAny("weekly change", "weekly delta", "wow", "x_t"),
			apply: applyWeeklyChange,
		},
		{
			kind: KindComposite,
			match: func(rc ruleContext) bool {
				return rc.set.Len() > 2 ||
					strings.Contains(rc.descriptor, "+") ||
					strings.Contains(rc.descriptor, "*")
			},
			apply: func(rc ruleContext) (Series, error) {
				return nil, ErrNotImplemented
			},
		},
		{
			kind:  KindArithmetic,
			match: func(ruleContext) bool { return true },
			apply: applyArithmetic,
		},
	}
	return e
}

// Classify reports which transform the descriptor resolves to, without
// executing it.
func (e *Engine) Classify(descriptor string, set *SeriesSet, indicatorName string) Kind {
	rc := ruleContext{
		descriptor: Normalize(descriptor),
		set:        set,
		indicator:  strings.ToLower(indicatorName),
	}
	for _, r := range e.rules {
		if r.match(rc) {
			return r.kind
		}
	}
	return KindArithmetic
}

// Apply classifies the descriptor and executes the matching transform over
// the series set. The same descriptor and input always produce the same
// result. Transforms that come back empty are reported as errors so callers
// can fall back to publishing the raw data.
func (e *Engine) Apply(descriptor string, set *SeriesSet, indicatorName string) (*Result, error) {
	if set == nil || set.Len() == 0 {
		return nil, ErrNoData
	}
	if _, first := set.First(); len(first) == 0 {
		return nil, ErrNoData
	}
	rc := ruleContext{
		descriptor: Normalize(descriptor),
		set:        set,
		indicator:  strings.ToLower(indicatorName),
	}
	for _, r := range e.rules {
		if !r.match(rc) {
			continue
		}
		out, err := r.apply(rc)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", r.kind, err)
		}
		if len(out) == 0 {
			return nil, fmt.Errorf("%s: %w", r.kind, ErrEmptyResult)
		}
		return &Result{Kind: r.kind, Series: out}, nil
	}
	return nil, ErrUnclassified
}

// greekReplacer rewrites the Greek letters that appear in hand-written
// descriptors ("ΔMoM", "12m α") into their spelled-out names. Input is
// lowercased first, so only the lowercase forms are needed.
var greekReplacer = strings.NewReplacer(
	"δ", "delta",
	"α", "alpha",
	"β", "beta",
	"γ", "gamma",
)

// Normalize lowercases a descriptor and spells out Greek letters so keyword
// matching sees a single canonical form.
func Normalize(descriptor string) string {
	return greekReplacer.Replace(strings.ToLower(strings.TrimSpace(descriptor)))
}

func matchAny(keywords ...string) func(ruleContext) bool {
	return func(rc ruleContext) bool {
		return containsAny(rc.descriptor, keywords...)
	}
}

func containsAny(s string, keywords ...string) bool {
	for _, k := range keywords {
		if strings.Contains(s, k) {
			return true
		}
	}
	return false
}

func applyLevel(rc ruleContext) (Series, error) {
	_, s := rc.set.First()
	if containsAny(rc.descriptor, "ma20", "ma 20") {
		return s.RollingMean(clampWindow(20, len(s))), nil
	}
	return s, nil
}

func applySpread(rc ruleContext) (Series, error) {
	a, b, ok := rc.set.Pair()
	if !ok {
		// A lone series can still satisfy a spread descriptor when the
		// upstream series is itself a published spread.
		id, s := rc.set.First()
		if strings.Contains(strings.ToLower(id), "t10y2y") ||
			strings.Contains(rc.indicator, "yield curve") {
			return s, nil
		}
		return nil, ErrMissingOperand
	}
	return Spread(a, b), nil
}

func applyWeeklyChange(rc ruleContext) (Series, error) {
	_, s := rc.set.First()
	switch {
	case containsAny(rc.descriptor, "bps", "basis points"):
		return s.Diff().Scale(100), nil
	case strings.Contains(rc.descriptor, "wow") && strings.Contains(rc.descriptor, "x_t"):
		return s.Diff(), nil
	case strings.Contains(rc.descriptor, "delta"):
		return s.Diff(), nil
	default:
		return s.PctChange(), nil
	}
}

func applyArithmetic(rc ruleContext) (Series, error) {
	if rc.set.Len() == 2 {
		a, b, _ := rc.set.Pair()
		switch {
		case strings.Contains(rc.descriptor, "+"):
			return Sum(a, b), nil
		case strings.Contains(rc.descriptor, "-"):
			return Spread(a, b), nil
		case strings.Contains(rc.descriptor, "/"):
			return Ratio(a, b), nil
		case strings.Contains(rc.descriptor, "*"):
			return Product(a, b), nil
		}
	}
	return nil, ErrUnclassified
}
