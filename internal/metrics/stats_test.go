package metrics

import (
	"math"
	"testing"
)

func almostEqual(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func TestSafeDiv(t *testing.T) {
	tests := []struct {
		name string
		a, b float64
		want float64
	}{
		{"normal", 10, 4, 2.5},
		{"zero denominator", 10, 0, 0},
		{"zero numerator", 0, 4, 0},
		{"nan numerator", math.NaN(), 4, 0},
		{"nan denominator", 4, math.NaN(), 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := safeDiv(tt.a, tt.b); !almostEqual(got, tt.want) {
				t.Errorf("safeDiv(%v, %v) = %v, want %v", tt.a, tt.b, got, tt.want)
			}
		})
	}
}

func TestMean(t *testing.T) {
	if got := mean(nil); got != 0 {
		t.Errorf("mean(nil) = %v, want 0", got)
	}
	if got := mean([]float64{2, 4, 6}); !almostEqual(got, 4) {
		t.Errorf("mean = %v, want 4", got)
	}
}

func TestSampleStd(t *testing.T) {
	tests := []struct {
		name string
		xs   []float64
		want float64
	}{
		{"empty", nil, 0},
		{"single observation", []float64{5}, 0},
		{"known value", []float64{2, 4, 4, 4, 5, 5, 7, 9}, 2.13808993529939},
		{"constant series", []float64{3, 3, 3}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := sampleStd(tt.xs); !almostEqual(got, tt.want) {
				t.Errorf("sampleStd(%v) = %v, want %v", tt.xs, got, tt.want)
			}
		})
	}
}

func TestQuantile(t *testing.T) {
	xs := []float64{1, 2, 3, 4}
	tests := []struct {
		name string
		q    float64
		want float64
	}{
		{"min", 0, 1},
		{"max", 1, 4},
		{"median interpolates", 0.5, 2.5},
		{"lower quartile", 0.25, 1.75},
		{"upper decile", 0.9, 3.7},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := quantile(xs, tt.q); !almostEqual(got, tt.want) {
				t.Errorf("quantile(%v, %v) = %v, want %v", xs, tt.q, got, tt.want)
			}
		})
	}

	if got := quantile(nil, 0.5); got != 0 {
		t.Errorf("quantile(nil) = %v, want 0", got)
	}

	// The input slice must not be reordered.
	unsorted := []float64{3, 1, 2}
	quantile(unsorted, 0.5)
	if unsorted[0] != 3 || unsorted[1] != 1 || unsorted[2] != 2 {
		t.Errorf("quantile mutated its input: %v", unsorted)
	}
}

func TestCV(t *testing.T) {
	if got := cv([]float64{10, 10, 10}); got != 0 {
		t.Errorf("cv of constant series = %v, want 0", got)
	}
	// std of {90, 100, 110} is 10, mean is 100.
	if got := cv([]float64{90, 100, 110}); !almostEqual(got, 0.1) {
		t.Errorf("cv = %v, want 0.1", got)
	}
	// Zero mean with nonzero spread stays finite at 0.
	if got := cv([]float64{-5, 5}); got != 0 {
		t.Errorf("cv of zero-mean series = %v, want 0", got)
	}
}

func TestFormatAmount(t *testing.T) {
	tests := []struct {
		in   float64
		want string
	}{
		{0, "0"},
		{999, "999"},
		{1000, "1,000"},
		{1234567.8, "1,234,568"},
		{-45000, "-45,000"},
	}
	for _, tt := range tests {
		if got := FormatAmount(tt.in); got != tt.want {
			t.Errorf("FormatAmount(%v) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
