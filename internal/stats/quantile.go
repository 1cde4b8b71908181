package stats

import (
	"errors"
	"fmt"
	"math"
	"sort"
)

var (
	ErrInvalidQuantile = errors.New("quantile must be within [0, 1]")
	ErrNoSamples       = errors.New("histogram holds no samples")
)

// WeightedQuantiles estimates quantiles of a sample where value i carries
// weight weights[i], for every i in the histogram.
//
// The cumulative weight W[i] is shifted back by half of weights[i], normalised
// so that W'[0] maps to 0 and W'[last] to 1, and the value axis is linearly
// interpolated against it. Runs of empty buckets leave W' flat; a quantile
// that lands exactly on a flat run takes its last index.
func WeightedQuantiles(weights []int64, qs []float64) ([]float64, error) {
	for _, q := range qs {
		if math.IsNaN(q) || q < 0 || q > 1 {
			return nil, fmt.Errorf("%w: got %v", ErrInvalidQuantile, q)
		}
	}

	cum := make([]float64, len(weights))
	var running float64
	for i, w := range weights {
		if w < 0 {
			w = 0
		}
		running += float64(w)
		cum[i] = running - 0.5*float64(w)
	}
	if running == 0 {
		return nil, ErrNoSamples
	}

	out := make([]float64, len(qs))
	lo, hi := cum[0], cum[len(cum)-1]
	if hi <= lo {
		// A single bucket.
		return out, nil
	}
	for i := range cum {
		cum[i] = (cum[i] - lo) / (hi - lo)
	}
	for i, q := range qs {
		out[i] = interpolate(q, cum)
	}
	return out, nil
}

// interpolate evaluates the piecewise-linear function through (xs[i], i) at
// x. xs must be non-decreasing.
func interpolate(x float64, xs []float64) float64 {
	last := len(xs) - 1
	// j is the last index with xs[j] <= x.
	j := sort.Search(len(xs), func(i int) bool { return xs[i] > x }) - 1
	switch {
	case j < 0:
		return 0
	case j >= last:
		return float64(last)
	case xs[j] == x:
		return float64(j)
	}
	return float64(j) + (x-xs[j])/(xs[j+1]-xs[j])
}

// WeightedMoments returns the weighted mean and population variance of the
// value axis.
func WeightedMoments(weights []int64) (mean, variance float64, err error) {
	var total, sum float64
	for i, w := range weights {
		if w <= 0 {
			continue
		}
		total += float64(w)
		sum += float64(w) * float64(i)
	}
	if total == 0 {
		return math.NaN(), math.NaN(), ErrNoSamples
	}
	mean = sum / total

	for i, w := range weights {
		if w <= 0 {
			continue
		}
		d := float64(i) - mean
		variance += float64(w) * d * d
	}
	variance /= total
	return mean, variance, nil
}
