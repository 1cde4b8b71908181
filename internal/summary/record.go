package summary

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/OmJan/aiopg/internal/histogram"
	"github.com/OmJan/aiopg/internal/stats"
)

var ErrInvalidRecord = errors.New("invalid benchmark record")

// Record is what one runner invocation prints for the orchestrator.
// Latencies are bucket positions; Resolution buckets make one millisecond.
// Percentiles are informational; ParseRecord recomputes them from the
// histogram.
type Record struct {
	Queries      int64        `json:"queries"`
	Rows         int64        `json:"rows"`
	Duration     float64      `json:"duration"`
	MinLatency   int          `json:"min_latency"`
	MaxLatency   int          `json:"max_latency"`
	LatencyStats []int64      `json:"latency_stats"`
	Resolution   int          `json:"resolution"`
	Overflows    int64        `json:"overflows"`
	Excluded     int          `json:"excluded_workers,omitempty"`
	Percentiles  []Percentile `json:"latency_percentiles,omitempty"`
}

func NewRecord(agg *stats.Aggregate) Record {
	return Record{
		Queries:      agg.Queries,
		Rows:         agg.Rows,
		Duration:     agg.Duration.Seconds(),
		MinLatency:   agg.MinLatency,
		MaxLatency:   agg.MaxLatency,
		LatencyStats: agg.Histogram.Counts(),
		Resolution:   agg.Histogram.Scale().Resolution,
		Overflows:    agg.Histogram.Overflows(),
		Excluded:     agg.Excluded,
	}
}

// ParseRecord decodes a runner record back into an aggregate.
func ParseRecord(data []byte) (*stats.Aggregate, error) {
	var r Record
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidRecord, err)
	}
	if r.Resolution == 0 {
		r.Resolution = histogram.DefaultResolution
	}

	h, err := histogram.Restore(r.LatencyStats, histogram.Scale{Unit: histogram.DefaultUnit, Resolution: r.Resolution}, r.Overflows)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidRecord, err)
	}
	if h.Total() != r.Queries {
		return nil, fmt.Errorf("%w: %d queries but %d histogram samples", ErrInvalidRecord, r.Queries, h.Total())
	}
	if r.Duration < 0 {
		return nil, fmt.Errorf("%w: negative duration %v", ErrInvalidRecord, r.Duration)
	}

	return &stats.Aggregate{
		Queries:    r.Queries,
		Rows:       r.Rows,
		Duration:   time.Duration(r.Duration * float64(time.Second)),
		MinLatency: r.MinLatency,
		MaxLatency: r.MaxLatency,
		Excluded:   r.Excluded,
		Histogram:  h,
	}, nil
}
