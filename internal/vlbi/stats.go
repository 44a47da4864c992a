package vlbi

import (
	"math"
	"slices"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

// Finite returns the values that are neither NaN nor infinite.
func Finite(values []float64) []float64 {
	out := make([]float64, 0, len(values))
	for _, v := range values {
		if finite(v) {
			out = append(out, v)
		}
	}
	return out
}

// Median returns the median of the finite values, averaging the two middle
// values for even counts. NaN when nothing is finite.
func Median(values []float64) float64 {
	clean := Finite(values)
	if len(clean) == 0 {
		return math.NaN()
	}
	slices.Sort(clean)
	mid := len(clean) / 2
	if len(clean)%2 == 1 {
		return clean[mid]
	}
	return (clean[mid-1] + clean[mid]) / 2
}

// Mean returns the arithmetic mean of the finite values, NaN when empty.
func Mean(values []float64) float64 {
	clean := Finite(values)
	if len(clean) == 0 {
		return math.NaN()
	}
	return stat.Mean(clean, nil)
}

// Max returns the largest finite value, NaN when empty.
func Max(values []float64) float64 {
	clean := Finite(values)
	if len(clean) == 0 {
		return math.NaN()
	}
	return floats.Max(clean)
}

// Round rounds v to the given number of decimals.
func Round(v float64, decimals int) float64 {
	scale := math.Pow(10, float64(decimals))
	return math.Round(v*scale) / scale
}
