package summary

import (
	"cmp"
	"fmt"
	"io"
	"math"
	"slices"
	"strings"

	"github.com/OmJan/aiopg/internal/cli"
)

func PrintVariation(v *Variation) {
	for _, line := range strings.Split(strings.TrimRight(Text(v.Data), "\n"), "\n") {
		cli.Linef("%s", line)
	}

	if v.Resources != nil && v.Resources.Samples > 0 {
		cli.Linef("Server: mem %s  cpu %s",
			cli.FormatMemory(v.Resources.Memory.AvgBytes),
			cli.FormatCpu(v.Resources.Cpu.AvgPercent, v.Resources.Samples))
	}
	if v.Overflows > 0 {
		cli.Warnf("%s queries exceeded the timeout budget", cli.FormatReqs(int(v.Overflows)))
	}
	cli.Blank()
}

type rankedBenchmark struct {
	name  string
	qps   float64
	p50   float64
	p99   float64
	mean  float64
	max   float64
	total int64
}

func percentileAt(d *Data, threshold float64) float64 {
	for _, p := range d.LatencyPercentiles {
		if p.Threshold == threshold {
			return float64(p.Value)
		}
	}
	return math.NaN()
}

const rule = "  ───────────────────────────────────────────────────────────────────────────────────────"

func PrintFinalSummary(report *Report) {
	cli.Header("BENCHMARK SUMMARY")
	WriteSummary(cli.Output(), report)
}

// WriteSummary renders the run configuration and one ranking table per
// (query, concurrency) pair.
func WriteSummary(w io.Writer, report *Report) {
	fmt.Fprintf(w, "%sConfig\n", cli.Indent)
	fmt.Fprintln(w, rule)
	fmt.Fprintf(w, "%sDate: %s  Duration: %gs  Concurrency: %s\n",
		cli.Indent, report.Date, report.Duration, joinInts(report.ConcurrencyLevels))
	fmt.Fprintf(w, "%sPlatform: %s (%s)  %s\n\n", cli.Indent, report.Platform.CPU, report.Platform.Arch, report.Platform.System)

	var variations int
	var totalQueries int64
	for _, query := range report.QueryNames {
		for _, level := range report.ConcurrencyLevels {
			ranked := rank(report, query, level)
			if len(ranked) == 0 {
				continue
			}
			variations += len(ranked)
			for _, r := range ranked {
				totalQueries += r.total
			}
			writeRanking(w, query, level, ranked)
		}
	}

	if variations == 0 {
		fmt.Fprintf(w, "%sNo benchmarks to display.\n", cli.Indent)
		return
	}

	fmt.Fprintln(w, rule)
	fmt.Fprintf(w, "  %d benchmarks │ %d variations │ Total: %s queries\n\n",
		len(report.Benchmarks), variations, cli.FormatReqs(int(totalQueries)))

	fmt.Fprintf(w, "# benchmarks=%d variations=%d total_queries=%d\n",
		len(report.Benchmarks), variations, totalQueries)
}

func rank(report *Report, query string, level int) []rankedBenchmark {
	var ranked []rankedBenchmark
	for i := range report.Benchmarks {
		b := &report.Benchmarks[i]
		for j := range b.Variations {
			v := &b.Variations[j]
			if v.Query != query || v.Concurrency != level {
				continue
			}
			ranked = append(ranked, rankedBenchmark{
				name:  b.Name,
				qps:   float64(v.QPS),
				p50:   percentileAt(&v.Data, 50),
				p99:   percentileAt(&v.Data, 99),
				mean:  float64(v.LatencyMean),
				max:   float64(v.LatencyMax),
				total: v.Queries,
			})
		}
	}

	slices.SortFunc(ranked, func(a, b rankedBenchmark) int {
		return cmp.Compare(b.qps, a.qps)
	})
	return ranked
}

func writeRanking(w io.Writer, query string, level int, ranked []rankedBenchmark) {
	fmt.Fprintf(w, "%sRankings: %s @ concurrency %d (by queries/sec)\n", cli.Indent, query, level)
	fmt.Fprintln(w, rule)
	fmt.Fprintf(w, "  %2s  %-14s  %10s  %9s  %9s  %9s  %9s  %9s\n",
		"#", "Benchmark", "QPS", "Mean", "P50", "P99", "Max", "Queries")

	for i, r := range ranked {
		fmt.Fprintf(w, "  %2d  %-14s  %10.2f  %9s  %9s  %9s  %9s  %9s\n",
			i+1, cli.Truncate(r.name, 14), r.qps,
			formatMs(r.mean), formatMs(r.p50), formatMs(r.p99), formatMs(r.max),
			cli.FormatReqs(int(r.total)))
	}
	fmt.Fprintln(w)
}

func formatMs(v float64) string {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return "-"
	}
	return fmt.Sprintf("%.3fms", v)
}

func joinInts(values []int) string {
	parts := make([]string, len(values))
	for i, v := range values {
		parts[i] = fmt.Sprint(v)
	}
	return strings.Join(parts, ",")
}
