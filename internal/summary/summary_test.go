package summary

import (
	"bytes"
	"encoding/json"
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/OmJan/aiopg/internal/histogram"
	"github.com/OmJan/aiopg/internal/stats"
)

func aggregate(t *testing.T, counts []int64, rows int64, duration time.Duration, minLat, maxLat int) *stats.Aggregate {
	t.Helper()
	h, err := histogram.FromCounts(counts, histogram.DefaultScale())
	require.NoError(t, err)
	return &stats.Aggregate{
		Queries:    h.Total(),
		Rows:       rows,
		Duration:   duration,
		MinLatency: minLat,
		MaxLatency: maxLat,
		Histogram:  h,
	}
}

func format(t *testing.T, agg *stats.Aggregate) Data {
	t.Helper()
	report, err := stats.Summarize(agg, nil)
	require.NoError(t, err)
	return Format(agg, report)
}

func TestText(t *testing.T) {
	d := format(t, aggregate(t, []int64{0, 1000, 0}, 2000, 10*time.Second, 1, 1))

	want := "1000 queries in 10.0 seconds\n" +
		"Latency: min 0.01ms; max 0.01ms; mean 0.01ms; std: 0.0ms (0.0%)\n" +
		"Latency distribution: 25% under 0.005ms; 50% under 0.01ms; 75% under 0.015ms; " +
		"90% under 0.018ms; 99% under 0.02ms; 99.99% under 0.02ms\n" +
		"Queries/sec: 100.0\n" +
		"Rows/sec: 200.0\n"
	assert.Equal(t, want, Text(d))
}

func TestFormat_Rounding(t *testing.T) {
	d := format(t, aggregate(t, []int64{5, 5, 5}, 15, 10*time.Second, 0, 2))

	assert.Equal(t, int64(15), d.Queries)
	assert.InDelta(t, 1.5, float64(d.QPS), 1e-9)
	assert.InDelta(t, 0.01, float64(d.LatencyMean), 1e-12)
	assert.InDelta(t, 0.008, float64(d.LatencyStd), 1e-12)
	assert.InDelta(t, 81.65, float64(d.LatencyCV), 1e-9)
	assert.InDelta(t, 0.02, float64(d.LatencyMax), 1e-12)
	require.Len(t, d.LatencyPercentiles, 6)
	assert.InDelta(t, 0.01, float64(d.LatencyPercentiles[1].Value), 1e-12)
}

func TestJSON_NonFinite(t *testing.T) {
	d := format(t, aggregate(t, []int64{0, 0}, 0, time.Second, 0, 0))

	data, err := JSON(d)
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Nil(t, decoded["latency_mean"])
	assert.Nil(t, decoded["latency_cv"])
	assert.Equal(t, []any{}, decoded["latency_percentiles"])

	var back Data
	require.NoError(t, json.Unmarshal(data, &back))
	assert.True(t, math.IsNaN(float64(back.LatencyMean)))
}

func TestJSON_PercentilePairs(t *testing.T) {
	d := Data{LatencyPercentiles: []Percentile{{Threshold: 99.99, Value: 1.5}}}

	data, err := JSON(d)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"latency_percentiles":[[99.99,1.5]]`)

	var back Data
	require.NoError(t, json.Unmarshal(data, &back))
	assert.Equal(t, d.LatencyPercentiles, back.LatencyPercentiles)
}

func TestRecord_RoundTrip(t *testing.T) {
	h, err := histogram.Restore([]int64{1, 2, 0, 4}, histogram.DefaultScale(), 4)
	require.NoError(t, err)
	agg := &stats.Aggregate{Queries: 7, Rows: 70, Duration: 1500 * time.Millisecond, MinLatency: 0, MaxLatency: 9, Histogram: h}

	data, err := json.Marshal(NewRecord(agg))
	require.NoError(t, err)

	parsed, err := ParseRecord(data)
	require.NoError(t, err)
	assert.Equal(t, agg.Queries, parsed.Queries)
	assert.Equal(t, agg.Rows, parsed.Rows)
	assert.Equal(t, agg.Duration, parsed.Duration)
	assert.Equal(t, 9, parsed.MaxLatency)
	assert.Equal(t, int64(4), parsed.Histogram.Overflows())
	assert.Equal(t, h.Counts(), parsed.Histogram.Counts())
}

func TestParseRecord_Invalid(t *testing.T) {
	cases := map[string]string{
		"not json":       `queries: 3`,
		"empty buckets":  `{"queries":0,"latency_stats":[]}`,
		"count mismatch": `{"queries":3,"latency_stats":[1,1]}`,
		"negative time":  `{"queries":1,"duration":-1,"latency_stats":[1]}`,
	}
	for name, raw := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := ParseRecord([]byte(raw))
			assert.ErrorIs(t, err, ErrInvalidRecord)
		})
	}
}

func TestParseRecord_LegacyResolution(t *testing.T) {
	agg, err := ParseRecord([]byte(`{"queries":2,"rows":2,"duration":1.0,"min_latency":1,"max_latency":1,"latency_stats":[0,2]}`))
	require.NoError(t, err)
	assert.Equal(t, histogram.DefaultResolution, agg.Histogram.Scale().Resolution)
}

func TestReport_ExportAndLoad(t *testing.T) {
	dir := t.TempDir()
	report := NewReport(time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC), 30*time.Second, []int{10}, []string{"simple_select"}, []string{"SELECT id FROM sa_tbl_1"})

	d := format(t, aggregate(t, []int64{0, 10}, 10, time.Second, 1, 1))
	report.Add("pgx", Variation{Query: "simple_select", Concurrency: 10, Data: d})
	report.Add("pgx", Variation{Query: "join_select", Concurrency: 10, Data: d})
	report.Add("pgxpool", Variation{Query: "simple_select", Concurrency: 10, Data: d})

	path, err := NewWriter(dir).Export(report, "")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, DefaultReport), path)

	loaded, err := LoadReport(path)
	require.NoError(t, err)
	assert.Equal(t, "2026-01-02T03:04:05+0000", loaded.Date)
	require.Len(t, loaded.Benchmarks, 2)
	assert.Len(t, loaded.Benchmarks[0].Variations, 2)
	assert.Equal(t, int64(10), loaded.Benchmarks[1].Variations[0].Queries)

	names, err := ListReports(dir)
	require.NoError(t, err)
	assert.Equal(t, []string{"report"}, names)
}

func TestLoadReport_Missing(t *testing.T) {
	_, err := LoadReport(filepath.Join(t.TempDir(), "nope.json"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestRank(t *testing.T) {
	slow := Data{Queries: 10, QPS: 10, LatencyPercentiles: []Percentile{{Threshold: 50, Value: 2}}}
	fast := Data{Queries: 99, QPS: 99, LatencyPercentiles: []Percentile{{Threshold: 50, Value: 1}}}

	report := &Report{QueryNames: []string{"q"}, ConcurrencyLevels: []int{4}}
	report.Add("slow", Variation{Query: "q", Concurrency: 4, Data: slow})
	report.Add("fast", Variation{Query: "q", Concurrency: 4, Data: fast})
	report.Add("other", Variation{Query: "q", Concurrency: 8, Data: fast})

	ranked := rank(report, "q", 4)
	require.Len(t, ranked, 2)
	assert.Equal(t, "fast", ranked[0].name)
	assert.InDelta(t, 1.0, ranked[0].p50, 1e-12)
	assert.True(t, math.IsNaN(ranked[0].p99))
}

func TestWriteSummary(t *testing.T) {
	report := &Report{Date: "2026-01-02T03:04:05+0000", QueryNames: []string{"q"}, ConcurrencyLevels: []int{4}}
	report.Add("pgx", Variation{Query: "q", Concurrency: 4, Data: Data{Queries: 10, QPS: 5}})

	var b bytes.Buffer
	WriteSummary(&b, report)
	assert.Contains(t, b.String(), "Rankings: q @ concurrency 4")
	assert.Contains(t, b.String(), "# benchmarks=1 variations=1 total_queries=10")

	b.Reset()
	WriteSummary(&b, &Report{})
	assert.Contains(t, b.String(), "No benchmarks to display.")
}
