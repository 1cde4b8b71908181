package influx

import (
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/OmJan/aiopg/internal/container"
	"github.com/OmJan/aiopg/internal/platform"
	"github.com/OmJan/aiopg/internal/summary"
)

func variationTags(runID, benchmark string, v *summary.Variation) map[string]string {
	return map[string]string{
		"run_id":      runID,
		"benchmark":   benchmark,
		"query":       v.Query,
		"concurrency": strconv.Itoa(v.Concurrency),
	}
}

// finite drops NaN and infinite values, which line protocol cannot carry.
func finite(fields map[string]any, key string, v summary.Float) {
	f := float64(v)
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return
	}
	fields[key] = f
}

// percentileField names a percentile column, e.g. 99.99 -> "p99_99_ms".
func percentileField(threshold float64) string {
	s := strconv.FormatFloat(threshold, 'f', -1, 64)
	return "p" + strings.ReplaceAll(s, ".", "_") + "_ms"
}

func variationFields(d *summary.Data) map[string]any {
	fields := map[string]any{
		"queries":   d.Queries,
		"rows":      d.Rows,
		"overflows": d.Overflows,
		"excluded":  int64(d.Excluded),
	}
	finite(fields, "duration_s", d.Duration)
	finite(fields, "qps", d.QPS)
	finite(fields, "rps", d.RPS)
	finite(fields, "latency_min_ms", d.LatencyMin)
	finite(fields, "latency_max_ms", d.LatencyMax)
	finite(fields, "latency_mean_ms", d.LatencyMean)
	finite(fields, "latency_std_ms", d.LatencyStd)
	finite(fields, "latency_cv_pct", d.LatencyCV)
	for _, p := range d.LatencyPercentiles {
		finite(fields, percentileField(p.Threshold), p.Value)
	}
	return fields
}

// WriteVariation exports the measured metrics of one benchmark variation and
// the container resources sampled while it ran.
func (c *Client) WriteVariation(runID, benchmark string, v *summary.Variation, ts time.Time) {
	if c == nil || v == nil {
		return
	}

	tags := variationTags(runID, benchmark, v)
	c.WritePoint("query_latency", tags, variationFields(&v.Data), ts)
	c.writeResourceStats(tags, v.Resources, ts)
}

func (c *Client) writeResourceStats(tags map[string]string, stats *container.ResourceStats, ts time.Time) {
	if stats == nil || stats.Samples == 0 {
		return
	}

	c.WritePoint("resource_stats", tags,
		map[string]any{
			"memory_min_bytes": stats.Memory.MinBytes,
			"memory_avg_bytes": stats.Memory.AvgBytes,
			"memory_max_bytes": stats.Memory.MaxBytes,
			"cpu_min_percent":  stats.Cpu.MinPercent,
			"cpu_avg_percent":  stats.Cpu.AvgPercent,
			"cpu_max_percent":  stats.Cpu.MaxPercent,
			"samples":          int64(stats.Samples),
		},
		ts,
	)
}

func (c *Client) WriteRunMeta(runID string, info platform.Info, duration time.Duration) {
	if c == nil {
		return
	}

	tags := map[string]string{
		"run_id": runID,
		"arch":   info.Arch,
		"system": info.System,
	}
	if info.CPU != "" {
		tags["cpu"] = info.CPU
	}
	c.WritePoint("run_meta", tags,
		map[string]any{
			"duration_s": duration.Seconds(),
		},
		time.Now(),
	)
}
