package orchestrator

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"slices"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/OmJan/aiopg/internal/cli"
	"github.com/OmJan/aiopg/internal/client"
	"github.com/OmJan/aiopg/internal/config"
	"github.com/OmJan/aiopg/internal/container"
	"github.com/OmJan/aiopg/internal/driver"
	"github.com/OmJan/aiopg/internal/influx"
	"github.com/OmJan/aiopg/internal/queries"
	"github.com/OmJan/aiopg/internal/stats"
	"github.com/OmJan/aiopg/internal/summary"
)

var ErrNoResults = errors.New("no benchmark produced a result")

// RunnerError reports a run command that exited with a failure code. The
// orchestrator exits with the same code.
type RunnerError struct {
	Benchmark   string
	Query       string
	Concurrency int
	Code        int
}

func (e *RunnerError) Error() string {
	return fmt.Sprintf("%s %s (C=%d) exited with code %d", e.Benchmark, e.Query, e.Concurrency, e.Code)
}

type Orchestrator struct {
	cfg        *config.Config
	opts       cli.Options
	configFile string
	benchmarks []string
	queries    []string
	launcher   Launcher
	writer     *summary.Writer
	influx     *influx.Client
	log        *zap.Logger
	runId      string
	servers    map[driver.Backend]*container.Container
}

// New resolves the selected benchmarks and queries. configFile is forwarded
// to every run command.
func New(cfg *config.Config, opts cli.Options, configFile string, launcher Launcher, log *zap.Logger) (*Orchestrator, error) {
	benchmarks, err := config.Resolve("benchmark", opts.Benchmarks, driver.Names())
	if err != nil {
		return nil, err
	}
	names, err := config.Resolve("query", opts.Queries, queries.Names())
	if err != nil {
		return nil, err
	}
	if len(opts.Levels) == 0 {
		opts.Levels = cfg.Benchmark.Concurrency
	}
	if log == nil {
		log = zap.NewNop()
	}

	return &Orchestrator{
		cfg:        cfg,
		opts:       opts,
		configFile: configFile,
		benchmarks: benchmarks,
		queries:    names,
		launcher:   launcher,
		writer:     summary.NewWriter(cfg.Report.ResultsDir),
		log:        log,
		runId:      influx.RunID(time.Now()),
		servers:    make(map[driver.Backend]*container.Container),
	}, nil
}

// Run executes every benchmark x query x concurrency variation, prints the
// results and writes the report.
func (o *Orchestrator) Run(ctx context.Context) (*summary.Report, error) {
	start := time.Now()

	texts, err := queries.Texts(o.queries)
	if err != nil {
		return nil, err
	}

	cli.Section("Database servers")
	defer o.stopServers()
	for _, backend := range driver.Backends(o.benchmarks) {
		c, err := startServer(ctx, backend, o.cfg, o.log)
		if err != nil {
			return nil, err
		}
		if c != nil {
			o.servers[backend] = c
		}
	}

	if o.opts.Export || o.cfg.Influx.Enabled {
		o.influx = influx.NewClient(ctx, influx.Config{
			Enabled:  true,
			URL:      o.cfg.Influx.URL,
			Database: o.cfg.Influx.Database,
			Token:    o.cfg.Influx.Token,
		})
		defer o.influx.Close()
	}

	report := summary.NewReport(start, 0, o.opts.Levels, o.queries, texts)
	total := len(o.benchmarks) * len(o.queries) * len(o.opts.Levels)
	done := 0

	for _, name := range o.benchmarks {
		d, err := driver.Lookup(name)
		if err != nil {
			return nil, err
		}
		for _, query := range o.queries {
			for _, level := range o.opts.Levels {
				if err := ctx.Err(); err != nil {
					cli.Warnf("Interrupted, stopping...")
					return nil, err
				}

				v, err := o.variation(ctx, d, query, level, done, total)
				done++
				if err != nil {
					return nil, err
				}
				if v == nil {
					continue
				}

				report.Add(name, *v)
				summary.PrintVariation(v)
				o.influx.WriteVariation(o.runId, name, v, time.Now())

				if err := o.cooldown(ctx, done < total); err != nil {
					return nil, err
				}
			}
		}
	}

	report.Duration = time.Since(start).Seconds()
	if len(report.Benchmarks) == 0 {
		return report, ErrNoResults
	}

	path, err := o.writer.Export(report, o.cfg.Report.Path)
	if err != nil {
		return report, err
	}
	cli.Infof("Report: %s", path)
	summary.PrintFinalSummary(report)
	o.influx.WriteRunMeta(o.runId, report.Platform, time.Since(start))
	return report, nil
}

// variation measures one benchmark variation. It returns nil without an error
// when the variation is skipped or its record is unusable.
func (o *Orchestrator) variation(ctx context.Context, d driver.Driver, query string, level, done, total int) (*summary.Variation, error) {
	q, err := queries.Lookup(query)
	if err != nil {
		return nil, err
	}
	if _, err := q.Payload(d.Name, string(d.Backend)); err != nil {
		o.log.Debug("skipping unsupported query", zap.String("benchmark", d.Name), zap.String("query", query))
		return nil, nil
	}

	cli.BenchmarkHeader(d.Name, query, level)
	defer cli.BenchmarkFooter()

	var spinner *cli.ProgressSpinner
	if cli.Interactive() {
		spinner = cli.NewProgressSpinner()
		spinner.Start(total)
		spinner.Update(d.Name, query, level, done)
	}

	var sampler *container.Sampler
	if c, ok := o.servers[d.Backend]; ok && o.opts.Resources {
		sampler = container.NewSampler(c.Id, container.DockerSocket)
		sampler.Start(ctx)
	}

	stdout, code, err := o.launcher.Launch(ctx, o.request(d.Name, query, level))

	var resources *container.ResourceStats
	if sampler != nil {
		rs := sampler.Stop()
		resources = &rs
	}
	if spinner != nil {
		spinner.Stop()
	}

	if err != nil {
		return nil, err
	}
	switch code {
	case client.ExitOK:
	case client.ExitUnsupported:
		cli.Warnf("%s does not support %s, skipped", d.Name, query)
		return nil, nil
	default:
		cli.Failf("Runner exited with code %d", code)
		return nil, &RunnerError{Benchmark: d.Name, Query: query, Concurrency: level, Code: code}
	}

	agg, err := summary.ParseRecord(lastLine(stdout))
	if err != nil {
		o.log.Error("dropping unreadable result", zap.String("benchmark", d.Name),
			zap.String("query", query), zap.Int("concurrency", level), zap.Error(err))
		cli.Failf("Unreadable result dropped: %v", err)
		return nil, nil
	}

	qr, err := stats.Summarize(agg, o.cfg.Benchmark.Percentiles)
	if err != nil {
		return nil, err
	}
	return &summary.Variation{
		Query:       query,
		Concurrency: level,
		Data:        summary.Format(agg, qr),
		Resources:   resources,
	}, nil
}

func (o *Orchestrator) request(benchmark, query string, level int) Request {
	b := o.cfg.Benchmark
	warmup := b.WarmupDuration
	if !o.opts.Warmup {
		warmup = 0
	}

	args := []string{
		"--warmup", warmup.String(),
		"--duration", b.RunDuration.String(),
		"--timeout", b.TimeoutDuration.String(),
		"--resolution", strconv.Itoa(b.Resolution),
		"--policy", b.Policy,
		"--log-level", o.cfg.Log.Level,
		"--log-format", o.cfg.Log.Format,
	}
	if b.Mode != "" {
		args = append(args, "--mode", b.Mode)
	}
	if o.configFile != "" {
		args = append(args, "--config", o.configFile)
	}

	return Request{
		Benchmark:   benchmark,
		Query:       query,
		Concurrency: level,
		Args:        args,
		Env:         o.cfg.Environ(),
	}
}

func (o *Orchestrator) cooldown(ctx context.Context, more bool) error {
	if o.cfg.Benchmark.CooldownDuration <= 0 || !more {
		return nil
	}
	select {
	case <-ctx.Done():
		cli.Warnf("Interrupted, stopping...")
		return ctx.Err()
	case <-time.After(o.cfg.Benchmark.CooldownDuration):
		return nil
	}
}

func (o *Orchestrator) stopServers() {
	backends := make([]driver.Backend, 0, len(o.servers))
	for b := range o.servers {
		backends = append(backends, b)
	}
	slices.Sort(backends)
	for _, b := range backends {
		cli.Infof("Stopping %s container...", b)
		stopServer(o.servers[b])
	}
}

// lastLine returns the last non-empty line of out. The record is the final
// thing the run command prints.
func lastLine(out []byte) []byte {
	out = bytes.TrimRight(out, "\r\n\t ")
	if i := bytes.LastIndexByte(out, '\n'); i >= 0 {
		return out[i+1:]
	}
	return out
}
