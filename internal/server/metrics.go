package server

import (
	"errors"
	"io/fs"
	"math"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/OmJan/aiopg/internal/summary"
)

var variationLabels = []string{"report", "benchmark", "query", "concurrency"}

// reportCollector exposes the variations of every report in the results
// directory. Reports are read on each scrape.
type reportCollector struct {
	store *store

	qps     *prometheus.Desc
	latency *prometheus.Desc
	queries *prometheus.Desc
	errors  prometheus.Counter
}

func newReportCollector(s *store) *reportCollector {
	return &reportCollector{
		store: s,
		qps: prometheus.NewDesc("aiopg_report_qps",
			"Queries per second of a benchmark variation.", variationLabels, nil),
		latency: prometheus.NewDesc("aiopg_report_latency_ms",
			"Latency percentile of a benchmark variation in milliseconds.",
			append(variationLabels, "percentile"), nil),
		queries: prometheus.NewDesc("aiopg_report_queries",
			"Queries completed by a benchmark variation.", variationLabels, nil),
		errors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "aiopg_report_load_errors_total",
			Help: "Reports that could not be read while collecting.",
		}),
	}
}

func (c *reportCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.qps
	ch <- c.latency
	ch <- c.queries
	c.errors.Describe(ch)
}

func (c *reportCollector) Collect(ch chan<- prometheus.Metric) {
	names, err := c.store.list()
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		c.errors.Inc()
	}
	for _, name := range names {
		report, err := c.store.load(name)
		if err != nil {
			c.errors.Inc()
			continue
		}
		c.collectReport(ch, name, report)
	}
	c.errors.Collect(ch)
}

func (c *reportCollector) collectReport(ch chan<- prometheus.Metric, name string, report *summary.Report) {
	for _, b := range report.Benchmarks {
		for _, v := range b.Variations {
			labels := []string{name, b.Name, v.Query, itoa(v.Concurrency)}
			if qps := float64(v.QPS); !math.IsNaN(qps) && !math.IsInf(qps, 0) {
				ch <- prometheus.MustNewConstMetric(c.qps, prometheus.GaugeValue, qps, labels...)
			}
			ch <- prometheus.MustNewConstMetric(c.queries, prometheus.GaugeValue, float64(v.Queries), labels...)
			for _, p := range v.LatencyPercentiles {
				value := float64(p.Value)
				if math.IsNaN(value) || math.IsInf(value, 0) {
					continue
				}
				ch <- prometheus.MustNewConstMetric(c.latency, prometheus.GaugeValue, value,
					append(labels, formatThreshold(p.Threshold))...)
			}
		}
	}
}
