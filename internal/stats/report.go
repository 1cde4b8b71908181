package stats

import (
	"errors"
	"fmt"
	"math"
)

// DefaultPercentiles are reported when the caller does not ask for others.
var DefaultPercentiles = []float64{25, 50, 75, 90, 99, 99.99}

type Percentile struct {
	Threshold float64 `json:"threshold"`
	Value     float64 `json:"value"`
}

// QuantileReport holds latency figures in histogram units (milliseconds by
// default). CV is a fraction, not a percentage.
type QuantileReport struct {
	Percentiles []Percentile
	Min         float64
	Max         float64
	Mean        float64
	Std         float64
	CV          float64
	QPS         float64
	RPS         float64
}

// Summarize derives the percentile table, moments and throughput of an
// aggregate. An aggregate without queries yields an empty table and NaN
// moments.
func Summarize(agg *Aggregate, percentiles []float64) (*QuantileReport, error) {
	if agg == nil || agg.Histogram == nil {
		return nil, ErrEmptyResultSet
	}
	if len(percentiles) == 0 {
		percentiles = DefaultPercentiles
	}

	qs := make([]float64, len(percentiles))
	for i, p := range percentiles {
		qs[i] = p / 100
	}

	scale := agg.Histogram.Scale()
	report := &QuantileReport{
		Min: scale.Value(float64(agg.MinLatency)),
		Max: scale.Value(float64(agg.MaxLatency)),
	}
	if secs := agg.Duration.Seconds(); secs > 0 {
		report.QPS = float64(agg.Queries) / secs
		report.RPS = float64(agg.Rows) / secs
	}

	counts := agg.Histogram.Counts()
	values, err := WeightedQuantiles(counts, qs)
	switch {
	case errors.Is(err, ErrNoSamples):
		report.Mean, report.Std, report.CV = math.NaN(), math.NaN(), math.NaN()
		return report, nil
	case err != nil:
		return nil, fmt.Errorf("percentiles: %w", err)
	}

	report.Percentiles = make([]Percentile, len(percentiles))
	for i, p := range percentiles {
		report.Percentiles[i] = Percentile{Threshold: p, Value: scale.Value(values[i])}
	}

	mean, variance, err := WeightedMoments(counts)
	if err != nil {
		return nil, fmt.Errorf("moments: %w", err)
	}
	report.Mean = scale.Value(mean)
	report.Std = scale.Value(math.Sqrt(variance))
	report.CV = report.Std / report.Mean
	return report, nil
}
