package features

import (
	"math"
	"sort"
)

// FeatureMap is a named-feature accumulator for one address analysis.
type FeatureMap map[string]float64

// Median returns the median of values: the middle element for odd lengths,
// the average of the middle pair for even lengths, 0 for empty input. The
// input is not modified.
func Median(values []float64) float64 {
	n := len(values)
	if n == 0 {
		return 0
	}
	sorted := make([]float64, n)
	copy(sorted, values)
	sort.Float64s(sorted)
	mid := n / 2
	if n%2 == 0 {
		return (sorted[mid-1] + sorted[mid]) / 2
	}
	return sorted[mid]
}

// Mean returns the arithmetic mean, 0 for empty input.
func Mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

// Std returns the population standard deviation, 0 for empty input.
func Std(values []float64) float64 {
	n := len(values)
	if n == 0 {
		return 0
	}
	mean := Mean(values)
	var ss float64
	for _, v := range values {
		d := v - mean
		ss += d * d
	}
	return math.Sqrt(ss / float64(n))
}

// AddStats inserts the five-number summary of values under
// "<prefix>_{total,min,max,mean,median}". Empty input writes all zeros; the
// keys are always present so projection never sees a missing name. When
// includeTotal is false the total key is skipped (some schemas carry the
// total separately as a distinct count).
func (m FeatureMap) AddStats(prefix string, values []float64, includeTotal bool) {
	if includeTotal {
		m[prefix+"_total"] = 0
	}
	m[prefix+"_min"] = 0
	m[prefix+"_max"] = 0
	m[prefix+"_mean"] = 0
	m[prefix+"_median"] = 0
	if len(values) == 0 {
		return
	}

	minV, maxV, sum := values[0], values[0], 0.0
	for _, v := range values {
		if v < minV {
			minV = v
		}
		if v > maxV {
			maxV = v
		}
		sum += v
	}
	if includeTotal {
		m[prefix+"_total"] = sum
	}
	m[prefix+"_min"] = minV
	m[prefix+"_max"] = maxV
	m[prefix+"_mean"] = sum / float64(len(values))
	m[prefix+"_median"] = Median(values)
}

// AddStatsStd is AddStats plus a "<prefix>_std" population deviation key,
// used by schemas trained with the extra moment.
func (m FeatureMap) AddStatsStd(prefix string, values []float64, includeTotal bool) {
	m.AddStats(prefix, values, includeTotal)
	m[prefix+"_std"] = Std(values)
}

// Intervals returns the successive differences of ordinals after sorting.
// When dedup is true, duplicate ordinals collapse to one point first (used
// for the combined sequence where several transfers share a block). Fewer
// than two distinct points yield nil.
func Intervals(ordinals []uint64, dedup bool) []float64 {
	if len(ordinals) < 2 {
		return nil
	}
	sorted := make([]uint64, len(ordinals))
	copy(sorted, ordinals)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
	if dedup {
		out := sorted[:1]
		for _, v := range sorted[1:] {
			if v != out[len(out)-1] {
				out = append(out, v)
			}
		}
		sorted = out
	}
	if len(sorted) < 2 {
		return nil
	}
	diffs := make([]float64, 0, len(sorted)-1)
	for i := 1; i < len(sorted); i++ {
		diffs = append(diffs, float64(sorted[i]-sorted[i-1]))
	}
	return diffs
}

// AddIntervalStats computes the five-number summary over successive gaps in
// a sorted, de-duplicated ordinal sequence.
func (m FeatureMap) AddIntervalStats(prefix string, ordinals []uint64) {
	m.AddStats(prefix, Intervals(ordinals, true), true)
}

// HasNonFinite reports whether any feature evaluated to NaN or an infinity.
// The assessor turns such maps into an INCONCLUSIVE result instead of
// feeding garbage to the model.
func (m FeatureMap) HasNonFinite() bool {
	for _, v := range m {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return true
		}
	}
	return false
}

// safeDiv guards ratio features with a small additive epsilon so empty
// aggregates never propagate NaN or Inf into the vector.
func safeDiv(num, den float64) float64 {
	return num / (den + 1e-8)
}

// nonZero replaces a zero denominator with 1, matching the training
// pipeline's guard for count-like denominators.
func nonZero(v float64) float64 {
	if v == 0 {
		return 1
	}
	return v
}
