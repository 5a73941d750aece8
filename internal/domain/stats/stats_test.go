package stats

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCompute_ReportJobScenario(t *testing.T) {
	d := Compute([]float64{300, 100, 200})

	assert.Equal(t, int64(3), d.Count)
	assert.InDelta(t, 100.0, d.Min, 1e-9)
	assert.InDelta(t, 300.0, d.Max, 1e-9)
	assert.InDelta(t, 200.0, d.Mean, 1e-9)
	assert.InDelta(t, 600.0, d.Total, 1e-9)
	assert.InDelta(t, 200.0, d.P50, 1e-9)
	assert.InDelta(t, 290.0, d.P95, 1e-9)
	assert.InDelta(t, 298.0, d.P99, 1e-9)
	require.NotNil(t, d.Stddev)
	assert.InDelta(t, 100.0, *d.Stddev, 1e-9)
}

func TestCompute_SingleValue(t *testing.T) {
	d := Compute([]float64{42})
	assert.Equal(t, int64(1), d.Count)
	assert.InDelta(t, 42.0, d.P50, 1e-9)
	assert.InDelta(t, 42.0, d.P99, 1e-9)
	assert.Nil(t, d.Stddev, "stddev is undefined for a single sample")
}

func TestCompute_Empty(t *testing.T) {
	assert.Equal(t, Durations{}, Compute(nil))
}

func TestCompute_DoesNotMutateInput(t *testing.T) {
	in := []float64{3, 1, 2}
	Compute(in)
	assert.Equal(t, []float64{3, 1, 2}, in)
}

func TestCompute_PercentileMonotonicity(t *testing.T) {
	r := rand.New(rand.NewSource(7))
	for i := 0; i < 200; i++ {
		n := 1 + r.Intn(60)
		vals := make([]float64, n)
		for j := range vals {
			vals[j] = r.Float64() * 5000
		}
		d := Compute(vals)
		assert.LessOrEqual(t, d.Min, d.P50)
		assert.LessOrEqual(t, d.P50, d.P95)
		assert.LessOrEqual(t, d.P95, d.P99)
		assert.LessOrEqual(t, d.P99, d.Max)
	}
}

func TestCompute_Deterministic(t *testing.T) {
	a := Compute([]float64{0.1, 0.7, 0.2, 1e6, 3.3})
	b := Compute([]float64{1e6, 3.3, 0.2, 0.7, 0.1})
	assert.Equal(t, a, b)
}

func TestPercentile(t *testing.T) {
	sorted := []float64{10, 20, 30, 40}
	assert.InDelta(t, 25.0, Percentile(sorted, 0.5), 1e-9)
	assert.InDelta(t, 10.0, Percentile(sorted, 0), 1e-9)
	assert.InDelta(t, 40.0, Percentile(sorted, 1), 1e-9)
	assert.Zero(t, Percentile(nil, 0.5))
}
