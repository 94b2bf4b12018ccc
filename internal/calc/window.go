package calc

import (
	"regexp"
	"strconv"
	"strings"
)

// windowTokenRe matches explicit window tokens such as "3m", "20d", "2y"
// inside an already-lowercased descriptor.
var windowTokenRe = regexp.MustCompile(`(\d+)([dwmy])`)

// findWindowToken scans the descriptor for the first window token whose unit
// is in the allowed set.
func findWindowToken(descriptor, allowedUnits string) (n int, unit byte, ok bool) {
	for _, m := range windowTokenRe.FindAllStringSubmatch(descriptor, -1) {
		u := m[2][0]
		if !strings.ContainsRune(allowedUnits, rune(u)) {
			continue
		}
		v, err := strconv.Atoi(m[1])
		if err != nil || v <= 0 {
			continue
		}
		return v, u, true
	}
	return 0, 0, false
}

// clampWindow bounds a window to the series length so short histories still
// produce output.
func clampWindow(window, seriesLen int) int {
	if seriesLen > 0 && window > seriesLen {
		window = seriesLen
	}
	if window < 1 {
		window = 1
	}
	return window
}

// movingAverageWindow resolves the window for a moving-average descriptor.
// Day and month counts are taken literally, weeks count four periods each
// and years twelve. Without an explicit token, a handful of free-text forms
// are recognized before falling back to a 3-period average.
func movingAverageWindow(descriptor string, seriesLen int) int {
	if n, unit, ok := findWindowToken(descriptor, "dwmy"); ok {
		switch unit {
		case 'w':
			n *= 4
		case 'y':
			n *= 12
		}
		return clampWindow(n, seriesLen)
	}
	switch {
	case containsAny(descriptor, "3-month", "3m"):
		return clampWindow(3, seriesLen)
	case strings.Contains(descriptor, "20"):
		return clampWindow(20, seriesLen)
	case strings.Contains(descriptor, "60"):
		return clampWindow(60, seriesLen)
	}
	return clampWindow(3, seriesLen)
}

// zScoreWindow resolves the rolling window for a z-score descriptor. It
// reports rolling=false when no window is named, in which case the score is
// computed against the full history.
func zScoreWindow(descriptor string, seriesLen int) (window int, rolling bool) {
	if n, unit, ok := findWindowToken(descriptor, "dmy"); ok {
		if unit == 'y' {
			n *= 12
		}
		window, rolling = n, true
	}
	if strings.Contains(descriptor, "12m") {
		window, rolling = 12, true
	} else if !rolling && strings.Contains(descriptor, "20d") {
		window, rolling = 20, true
	}
	if !rolling {
		return 0, false
	}
	return clampWindow(window, seriesLen), true
}

// volatilityWindow resolves the window for a volatility descriptor. The
// default is 30 observations; a non-day unit counts four periods each.
func volatilityWindow(descriptor string, seriesLen int) int {
	n, unit, ok := findWindowToken(descriptor, "dwmy")
	if !ok {
		n, unit = 30, 'd'
	}
	if unit != 'd' {
		n *= 4
	}
	return clampWindow(n, seriesLen)
}
