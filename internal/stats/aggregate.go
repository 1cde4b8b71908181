package stats

import (
	"errors"
	"fmt"
	"time"

	"github.com/OmJan/aiopg/internal/histogram"
)

var ErrEmptyResultSet = errors.New("no worker results to aggregate")

// WorkerResult is what one worker produced during a measured phase.
// Latencies are bucket positions on the histogram's scale.
type WorkerResult struct {
	Worker     int
	Queries    int64
	Rows       int64
	MinLatency int
	MaxLatency int
	Histogram  *histogram.Histogram
}

func (r WorkerResult) Overflows() int64 {
	if r.Histogram == nil {
		return 0
	}
	return r.Histogram.Overflows()
}

type Aggregate struct {
	Queries    int64
	Rows       int64
	Duration   time.Duration
	MinLatency int
	MaxLatency int
	Workers    int
	// Excluded counts failed workers left out of the merge.
	Excluded   int
	Histogram  *histogram.Histogram
}

func (a *Aggregate) Scale() histogram.Scale {
	return a.Histogram.Scale()
}

// Merge folds the worker results into one aggregate. Inputs are not modified.
// Workers that completed no query do not contribute to min/max.
func Merge(results []WorkerResult, duration time.Duration) (*Aggregate, error) {
	if len(results) == 0 {
		return nil, ErrEmptyResultSet
	}

	agg := &Aggregate{Duration: duration, Workers: len(results)}
	seen := false
	for _, r := range results {
		if r.Histogram == nil {
			return nil, fmt.Errorf("worker %d: %w: missing histogram", r.Worker, histogram.ErrShapeMismatch)
		}
		if agg.Histogram == nil {
			agg.Histogram = r.Histogram.Clone()
		} else if err := agg.Histogram.Merge(r.Histogram); err != nil {
			return nil, fmt.Errorf("worker %d: %w", r.Worker, err)
		}

		agg.Queries += r.Queries
		agg.Rows += r.Rows

		if r.Queries == 0 {
			continue
		}
		if !seen || r.MinLatency < agg.MinLatency {
			agg.MinLatency = r.MinLatency
		}
		if !seen || r.MaxLatency > agg.MaxLatency {
			agg.MaxLatency = r.MaxLatency
		}
		seen = true
	}
	return agg, nil
}
