package summary

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/OmJan/aiopg/internal/stats"
)

// Float encodes non-finite values as JSON null.
type Float float64

func (f Float) MarshalJSON() ([]byte, error) {
	v := float64(f)
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return []byte("null"), nil
	}
	return json.Marshal(v)
}

func (f *Float) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*f = Float(math.NaN())
		return nil
	}
	var v float64
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	*f = Float(v)
	return nil
}

// Percentile encodes as a [threshold, value] pair.
type Percentile struct {
	Threshold float64
	Value     Float
}

func (p Percentile) MarshalJSON() ([]byte, error) {
	return json.Marshal([2]any{p.Threshold, p.Value})
}

func (p *Percentile) UnmarshalJSON(data []byte) error {
	var pair [2]Float
	if err := json.Unmarshal(data, &pair); err != nil {
		return fmt.Errorf("percentile pair: %w", err)
	}
	p.Threshold, p.Value = float64(pair[0]), pair[1]
	return nil
}

// Data is the final, rounded metric set of one measurement. Latencies are
// in milliseconds, CV in percent.
type Data struct {
	Queries            int64        `json:"queries"`
	Rows               int64        `json:"rows"`
	Duration           Float        `json:"duration"`
	QPS                Float        `json:"qps"`
	RPS                Float        `json:"rps"`
	LatencyMin         Float        `json:"latency_min"`
	LatencyMax         Float        `json:"latency_max"`
	LatencyMean        Float        `json:"latency_mean"`
	LatencyStd         Float        `json:"latency_std"`
	LatencyCV          Float        `json:"latency_cv"`
	LatencyPercentiles []Percentile `json:"latency_percentiles"`
	Overflows          int64        `json:"overflows,omitempty"`
	Excluded           int          `json:"excluded_workers,omitempty"`
}

func round(v float64, places int) Float {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return Float(v)
	}
	p := math.Pow(10, float64(places))
	return Float(math.Round(v*p) / p)
}

// Format turns an aggregate and its quantile report into the final figures.
func Format(agg *stats.Aggregate, report *stats.QuantileReport) Data {
	d := Data{
		Queries:     agg.Queries,
		Rows:        agg.Rows,
		Duration:    round(agg.Duration.Seconds(), 2),
		QPS:         round(report.QPS, 2),
		RPS:         round(report.RPS, 2),
		LatencyMin:  round(report.Min, 3),
		LatencyMax:  round(report.Max, 3),
		LatencyMean: round(report.Mean, 3),
		LatencyStd:  round(report.Std, 3),
		LatencyCV:   round(report.CV*100, 2),
		Excluded:    agg.Excluded,
	}
	if agg.Histogram != nil {
		d.Overflows = agg.Histogram.Overflows()
	}

	d.LatencyPercentiles = make([]Percentile, 0, len(report.Percentiles))
	for _, p := range report.Percentiles {
		d.LatencyPercentiles = append(d.LatencyPercentiles, Percentile{
			Threshold: p.Threshold,
			Value:     round(p.Value, 3),
		})
	}
	return d
}

func Text(d Data) string {
	dist := make([]string, 0, len(d.LatencyPercentiles))
	for _, p := range d.LatencyPercentiles {
		dist = append(dist, fmt.Sprintf("%s%% under %sms", number(p.Threshold), decimal(float64(p.Value))))
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%d queries in %s seconds\n", d.Queries, decimal(float64(d.Duration)))
	fmt.Fprintf(&b, "Latency: min %sms; max %sms; mean %sms; std: %sms (%s%%)\n",
		decimal(float64(d.LatencyMin)),
		decimal(float64(d.LatencyMax)),
		decimal(float64(d.LatencyMean)),
		decimal(float64(d.LatencyStd)),
		decimal(float64(d.LatencyCV)))
	fmt.Fprintf(&b, "Latency distribution: %s\n", strings.Join(dist, "; "))
	fmt.Fprintf(&b, "Queries/sec: %s\n", decimal(float64(d.QPS)))
	fmt.Fprintf(&b, "Rows/sec: %s\n", decimal(float64(d.RPS)))
	if d.Overflows > 0 {
		fmt.Fprintf(&b, "Over timeout: %d queries\n", d.Overflows)
	}
	if d.Excluded > 0 {
		fmt.Fprintf(&b, "Excluded workers: %d\n", d.Excluded)
	}
	return b.String()
}

func JSON(d Data) ([]byte, error) {
	return json.Marshal(d)
}

// number prints v in its shortest form.
func number(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// decimal prints v in its shortest form, always with a fractional part.
func decimal(v float64) string {
	switch {
	case math.IsNaN(v):
		return "nan"
	case math.IsInf(v, 1):
		return "inf"
	case math.IsInf(v, -1):
		return "-inf"
	}
	s := number(v)
	if !strings.Contains(s, ".") {
		s += ".0"
	}
	return s
}
