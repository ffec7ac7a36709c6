package metrics

import (
	"fmt"
	"math"
	"sort"
)

// safeDiv divides a by b, returning 0 when b is zero or either side is NaN.
// Every ratio in the aggregation pipeline goes through here so that sparse
// datasets degrade to zero signals instead of NaN propagation.
func safeDiv(a, b float64) float64 {
	if b == 0 || math.IsNaN(a) || math.IsNaN(b) {
		return 0
	}
	return a / b
}

// mean returns the arithmetic mean, 0 for an empty slice.
func mean(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	var sum float64
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}

// sampleStd returns the sample standard deviation (n-1 denominator).
// Fewer than two observations yield 0, which fails every ">" threshold
// the same way an undefined deviation would.
func sampleStd(xs []float64) float64 {
	if len(xs) < 2 {
		return 0
	}
	m := mean(xs)
	var ss float64
	for _, x := range xs {
		d := x - m
		ss += d * d
	}
	return math.Sqrt(ss / float64(len(xs)-1))
}

// quantile returns the q-th quantile (0..1) using linear interpolation
// between closest ranks. Input is copied; the caller's slice is untouched.
func quantile(xs []float64, q float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	sorted := make([]float64, len(xs))
	copy(sorted, xs)
	sort.Float64s(sorted)

	if q <= 0 {
		return sorted[0]
	}
	if q >= 1 {
		return sorted[len(sorted)-1]
	}
	pos := q * float64(len(sorted)-1)
	lo := int(math.Floor(pos))
	hi := int(math.Ceil(pos))
	if lo == hi {
		return sorted[lo]
	}
	frac := pos - float64(lo)
	return sorted[lo] + (sorted[hi]-sorted[lo])*frac
}

// cv is the coefficient of variation: std / mean. Zero-safe: a zero mean
// yields 0 rather than an infinite ratio, so a zero-mean price set never
// trips a volatility threshold. Only reachable when prices go negative.
func cv(xs []float64) float64 {
	return safeDiv(sampleStd(xs), mean(xs))
}

// FormatAmount renders a dollar amount with thousands separators and no
// decimal places, e.g. 1234567.8 -> "1,234,568".
func FormatAmount(v float64) string {
	s := fmt.Sprintf("%.0f", v)
	neg := false
	if len(s) > 0 && s[0] == '-' {
		neg = true
		s = s[1:]
	}
	for i := len(s) - 3; i > 0; i -= 3 {
		s = s[:i] + "," + s[i:]
	}
	if neg {
		return "-" + s
	}
	return s
}
