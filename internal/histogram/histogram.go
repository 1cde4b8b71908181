package histogram

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"time"
)

const (
	DefaultUnit       = time.Millisecond
	DefaultResolution = 100
)

var (
	ErrInvalidScale      = errors.New("invalid histogram scale")
	ErrLatencyOutOfRange = errors.New("latency out of range")
	ErrShapeMismatch     = errors.New("histogram shape mismatch")
)

// Scale maps a latency onto a bucket index: Resolution buckets per Unit.
type Scale struct {
	Unit       time.Duration `json:"unit"`
	Resolution int           `json:"resolution"`
}

func DefaultScale() Scale {
	return Scale{Unit: DefaultUnit, Resolution: DefaultResolution}
}

func (s Scale) Validate() error {
	if s.Unit <= 0 {
		return fmt.Errorf("%w: unit must be positive, got %s", ErrInvalidScale, s.Unit)
	}
	if s.Resolution < 1 {
		return fmt.Errorf("%w: resolution must be at least 1, got %d", ErrInvalidScale, s.Resolution)
	}
	return nil
}

// Quantize returns round(d / Unit * Resolution).
func (s Scale) Quantize(d time.Duration) int {
	units := float64(d) / float64(s.Unit)
	return int(math.Round(units * float64(s.Resolution)))
}

// Value converts a (possibly fractional) bucket position back into units.
func (s Scale) Value(position float64) float64 {
	return position / float64(s.Resolution)
}

// Buckets is the histogram length needed to hold latencies up to timeout.
func (s Scale) Buckets(timeout time.Duration) int {
	return s.Quantize(timeout)
}

type Histogram struct {
	counts    []int64
	scale     Scale
	overflows int64
}

func New(timeout time.Duration, scale Scale) (*Histogram, error) {
	if err := scale.Validate(); err != nil {
		return nil, err
	}
	n := scale.Buckets(timeout)
	if n < 1 {
		return nil, fmt.Errorf("%w: timeout %s yields %d buckets", ErrInvalidScale, timeout, n)
	}
	return &Histogram{counts: make([]int64, n), scale: scale}, nil
}

// FromCounts builds a histogram over a copy of counts.
func FromCounts(counts []int64, scale Scale) (*Histogram, error) {
	return Restore(counts, scale, 0)
}

// Restore rebuilds a serialised histogram together with its overflow count.
func Restore(counts []int64, scale Scale, overflows int64) (*Histogram, error) {
	if err := scale.Validate(); err != nil {
		return nil, err
	}
	if len(counts) == 0 {
		return nil, fmt.Errorf("%w: empty bucket list", ErrInvalidScale)
	}
	h := &Histogram{counts: make([]int64, len(counts)), scale: scale, overflows: overflows}
	copy(h.counts, counts)
	return h, nil
}

// Bucket validates q as an index without clamping.
func (h *Histogram) Bucket(q int) (int, error) {
	if q < 0 || q >= len(h.counts) {
		return 0, fmt.Errorf("%w: bucket %d not in [0, %d)", ErrLatencyOutOfRange, q, len(h.counts))
	}
	return q, nil
}

// Record counts one observation at bucket q. Values past the last bucket are
// clamped into it and counted as overflows.
func (h *Histogram) Record(q int) bool {
	if q < 0 {
		q = 0
	}
	if q >= len(h.counts) {
		h.counts[len(h.counts)-1]++
		h.overflows++
		return true
	}
	h.counts[q]++
	return false
}

func (h *Histogram) Merge(other *Histogram) error {
	if other == nil {
		return nil
	}
	if len(h.counts) != len(other.counts) {
		return fmt.Errorf("%w: length %d vs %d", ErrShapeMismatch, len(h.counts), len(other.counts))
	}
	if h.scale != other.scale {
		return fmt.Errorf("%w: scale %v vs %v", ErrShapeMismatch, h.scale, other.scale)
	}
	for i, c := range other.counts {
		h.counts[i] += c
	}
	h.overflows += other.overflows
	return nil
}

func (h *Histogram) Total() int64 {
	var total int64
	for _, c := range h.counts {
		total += c
	}
	return total
}

func (h *Histogram) Len() int {
	return len(h.counts)
}

// Counts exposes the buckets; callers must not modify the slice.
func (h *Histogram) Counts() []int64 {
	return h.counts
}

func (h *Histogram) Overflows() int64 {
	return h.overflows
}

func (h *Histogram) Scale() Scale {
	return h.scale
}

func (h *Histogram) Clone() *Histogram {
	c := &Histogram{
		counts:    make([]int64, len(h.counts)),
		scale:     h.scale,
		overflows: h.overflows,
	}
	copy(c.counts, h.counts)
	return c
}

func (h *Histogram) MarshalJSON() ([]byte, error) {
	return json.Marshal(h.counts)
}
