package features

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMedian(t *testing.T) {
	assert.Equal(t, 0.0, Median(nil))
	assert.Equal(t, 5.0, Median([]float64{5}))
	assert.Equal(t, 2.0, Median([]float64{1, 3}))
	assert.Equal(t, 2.0, Median([]float64{9, 1, 2}))
	assert.Equal(t, 2.5, Median([]float64{4, 1, 2, 3}))
}

func TestMedianDoesNotMutateInput(t *testing.T) {
	in := []float64{3, 1, 2}
	Median(in)
	assert.Equal(t, []float64{3, 1, 2}, in)
}

func TestAddStatsEmptyInputWritesZeros(t *testing.T) {
	m := FeatureMap{}
	m.AddStats("fees", nil, true)

	for _, key := range []string{"fees_total", "fees_min", "fees_max", "fees_mean", "fees_median"} {
		v, ok := m[key]
		assert.True(t, ok, "key %s must be present", key)
		assert.Equal(t, 0.0, v)
	}
}

func TestAddStats(t *testing.T) {
	m := FeatureMap{}
	m.AddStats("btc_sent", []float64{1, 2, 9}, true)

	assert.Equal(t, 12.0, m["btc_sent_total"])
	assert.Equal(t, 1.0, m["btc_sent_min"])
	assert.Equal(t, 9.0, m["btc_sent_max"])
	assert.InDelta(t, 4.0, m["btc_sent_mean"], 1e-12)
	assert.Equal(t, 2.0, m["btc_sent_median"])
}

func TestAddStatsWithoutTotal(t *testing.T) {
	m := FeatureMap{}
	m.AddStats("transacted_w_address", []float64{2, 4}, false)

	_, hasTotal := m["transacted_w_address_total"]
	assert.False(t, hasTotal)
	assert.Equal(t, 3.0, m["transacted_w_address_mean"])
}

func TestAddStatsStd(t *testing.T) {
	m := FeatureMap{}
	m.AddStatsStd("sol_sent", []float64{2, 4, 4, 4, 5, 5, 7, 9}, true)
	assert.InDelta(t, 2.0, m["sol_sent_std"], 1e-12)

	m.AddStatsStd("empty", nil, true)
	assert.Equal(t, 0.0, m["empty_std"])
}

func TestIntervals(t *testing.T) {
	assert.Nil(t, Intervals(nil, true))
	assert.Nil(t, Intervals([]uint64{100}, true))

	// Sorting applies before differencing.
	assert.Equal(t, []float64{5, 10}, Intervals([]uint64{115, 100, 105}, false))

	// Dedup collapses same-block transfers to one point.
	assert.Equal(t, []float64{5}, Intervals([]uint64{100, 100, 105}, true))
	assert.Nil(t, Intervals([]uint64{100, 100}, true))

	// Without dedup the zero gap survives.
	assert.Equal(t, []float64{0, 5}, Intervals([]uint64{100, 100, 105}, false))
}

func TestHasNonFinite(t *testing.T) {
	m := FeatureMap{"a": 1, "b": 2}
	assert.False(t, m.HasNonFinite())

	m["c"] = math.NaN()
	assert.True(t, m.HasNonFinite())

	m["c"] = math.Inf(1)
	assert.True(t, m.HasNonFinite())
}
