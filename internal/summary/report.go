package summary

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/OmJan/aiopg/internal/container"
	"github.com/OmJan/aiopg/internal/platform"
)

const (
	ReportDateLayout = "2006-01-02T15:04:05-0700"
	DefaultReport    = "report.json"
)

// Variation is one (query, concurrency) measurement of a benchmark.
type Variation struct {
	Query       string `json:"query"`
	Concurrency int    `json:"concurrency"`
	Data
	Resources *container.ResourceStats `json:"resources,omitempty"`
}

type Benchmark struct {
	Name       string      `json:"name"`
	Variations []Variation `json:"variations"`
}

type Report struct {
	Date              string        `json:"date"`
	Duration          float64       `json:"duration"`
	Platform          platform.Info `json:"platform"`
	ConcurrencyLevels []int         `json:"concurrency_levels"`
	QueryNames        []string      `json:"querynames"`
	Queries           []string      `json:"queries"`
	Benchmarks        []Benchmark   `json:"benchmarks"`
}

func NewReport(start time.Time, duration time.Duration, levels []int, names, queries []string) *Report {
	return &Report{
		Date:              start.Format(ReportDateLayout),
		Duration:          duration.Seconds(),
		Platform:          platform.Collect(),
		ConcurrencyLevels: levels,
		QueryNames:        names,
		Queries:           queries,
	}
}

// Add appends a variation under the named benchmark, creating it on first use.
func (r *Report) Add(benchmark string, v Variation) {
	for i := range r.Benchmarks {
		if r.Benchmarks[i].Name == benchmark {
			r.Benchmarks[i].Variations = append(r.Benchmarks[i].Variations, v)
			return
		}
	}
	r.Benchmarks = append(r.Benchmarks, Benchmark{Name: benchmark, Variations: []Variation{v}})
}

type Writer struct {
	resultsDir string
}

func NewWriter(resultsDir string) *Writer {
	return &Writer{resultsDir: resultsDir}
}

// Export writes the report as name inside the results directory. An
// absolute name is used as is.
func (w *Writer) Export(report *Report, name string) (string, error) {
	if name == "" {
		name = DefaultReport
	}
	path := name
	if !filepath.IsAbs(path) {
		path = filepath.Join(w.resultsDir, name)
	}

	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal report: %w", err)
	}

	if err = os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return "", fmt.Errorf("failed to create results dir: %w", err)
	}
	if err = os.WriteFile(path, data, 0o600); err != nil {
		return "", fmt.Errorf("failed to write report: %w", err)
	}
	return path, nil
}

func LoadReport(path string) (*Report, error) {
	data, err := os.ReadFile(path) //nolint:gosec // path is constructed from controlled results directory
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	var report Report
	if err = json.Unmarshal(data, &report); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	return &report, nil
}

// ListReports returns the report names found in dir, sorted.
func ListReports(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read results dir: %w", err)
	}

	var names []string
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, ".json") {
			continue
		}
		names = append(names, strings.TrimSuffix(name, ".json"))
	}
	slices.Sort(names)
	return names, nil
}
