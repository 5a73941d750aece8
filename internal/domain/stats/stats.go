// Package stats computes the duration statistics stored on summary buckets.
package stats

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// Durations holds the statistics for one bucket of durations.
type Durations struct {
	Count  int64
	Min    float64
	Max    float64
	Mean   float64
	Total  float64
	P50    float64
	P95    float64
	P99    float64
	Stddev *float64 // nil when Count < 2
}

// Compute returns statistics over values. The input is not modified.
// An empty input yields the zero value.
func Compute(values []float64) Durations {
	n := len(values)
	if n == 0 {
		return Durations{}
	}
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)

	d := Durations{
		Count: int64(n),
		Min:   sorted[0],
		Max:   sorted[n-1],
		Mean:  stat.Mean(sorted, nil),
		Total: floats.Sum(sorted),
		P50:   Percentile(sorted, 0.50),
		P95:   Percentile(sorted, 0.95),
		P99:   Percentile(sorted, 0.99),
	}
	if n >= 2 {
		sd := stat.StdDev(sorted, nil)
		d.Stddev = &sd
	}
	return d
}

// Percentile interpolates linearly between order statistics of an ascending slice:
// index = floor(f*(n-1)), moving toward the next element by the fractional remainder.
func Percentile(sorted []float64, f float64) float64 {
	n := len(sorted)
	if n == 0 {
		return 0
	}
	if n == 1 {
		return sorted[0]
	}
	pos := f * float64(n-1)
	idx := int(math.Floor(pos))
	if idx < 0 {
		return sorted[0]
	}
	if idx >= n-1 {
		return sorted[n-1]
	}
	frac := pos - float64(idx)
	lower := sorted[idx]
	return lower + (sorted[idx+1]-lower)*frac
}
