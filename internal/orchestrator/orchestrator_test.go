package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/OmJan/aiopg/internal/cli"
	"github.com/OmJan/aiopg/internal/client"
	"github.com/OmJan/aiopg/internal/config"
	"github.com/OmJan/aiopg/internal/histogram"
	"github.com/OmJan/aiopg/internal/stats"
	"github.com/OmJan/aiopg/internal/summary"
)

type launch struct {
	stdout []byte
	code   int
	err    error
}

type fakeLauncher struct {
	mu       sync.Mutex
	requests []Request
	respond  func(Request) launch
}

func (f *fakeLauncher) Launch(_ context.Context, req Request) ([]byte, int, error) {
	f.mu.Lock()
	f.requests = append(f.requests, req)
	f.mu.Unlock()
	l := f.respond(req)
	return l.stdout, l.code, l.err
}

func record(t *testing.T) []byte {
	t.Helper()
	counts := make([]int64, 101)
	counts[100] = 500
	h, err := histogram.FromCounts(counts, histogram.DefaultScale())
	require.NoError(t, err)
	agg := &stats.Aggregate{
		Queries:    h.Total(),
		Rows:       500,
		Duration:   time.Second,
		MinLatency: 100,
		MaxLatency: 100,
		Histogram:  h,
	}
	data, err := json.Marshal(summary.NewRecord(agg))
	require.NoError(t, err)
	return append([]byte("warming up\n"), append(data, '\n')...)
}

func setup(t *testing.T) *config.Config {
	t.Helper()
	t.Chdir(t.TempDir())
	t.Setenv("PGHOST", "db.test")

	cli.SetOutput(io.Discard)
	t.Cleanup(func() { cli.SetOutput(os.Stdout) })

	cfg, err := config.Load("")
	require.NoError(t, err)
	cfg.Report.ResultsDir = t.TempDir()
	return cfg
}

func options(levels ...int) cli.Options {
	return cli.Options{
		Benchmarks: []string{"pgx"},
		Queries:    []string{"simple_select", "join_select"},
		Levels:     levels,
	}
}

func TestRun_Success(t *testing.T) {
	cfg := setup(t)
	out := record(t)
	l := &fakeLauncher{respond: func(Request) launch { return launch{stdout: out} }}

	o, err := New(cfg, options(1, 4), "", l, nil)
	require.NoError(t, err)

	report, err := o.Run(context.Background())
	require.NoError(t, err)

	require.Len(t, report.Benchmarks, 1)
	b := report.Benchmarks[0]
	assert.Equal(t, "pgx", b.Name)
	require.Len(t, b.Variations, 4)
	assert.Equal(t, "simple_select", b.Variations[0].Query)
	assert.Equal(t, 1, b.Variations[0].Concurrency)
	assert.Equal(t, int64(500), b.Variations[0].Queries)
	assert.Equal(t, []string{"simple_select", "join_select"}, report.QueryNames)

	assert.FileExists(t, filepath.Join(cfg.Report.ResultsDir, cfg.Report.Path))
	require.Len(t, l.requests, 4)
	assert.Contains(t, l.requests[0].Env, "PGHOST=db.test")
}

func TestRun_UnsupportedSkipped(t *testing.T) {
	cfg := setup(t)
	out := record(t)
	l := &fakeLauncher{respond: func(req Request) launch {
		if req.Query == "join_select" {
			return launch{code: client.ExitUnsupported}
		}
		return launch{stdout: out}
	}}

	o, err := New(cfg, options(2), "", l, nil)
	require.NoError(t, err)

	report, err := o.Run(context.Background())
	require.NoError(t, err)
	require.Len(t, report.Benchmarks[0].Variations, 1)
	assert.Equal(t, "simple_select", report.Benchmarks[0].Variations[0].Query)
}

func TestRun_UnreadableRecordDropped(t *testing.T) {
	cfg := setup(t)
	out := record(t)
	l := &fakeLauncher{respond: func(req Request) launch {
		if req.Query == "join_select" {
			return launch{stdout: []byte("{not json")}
		}
		return launch{stdout: out}
	}}

	o, err := New(cfg, options(2), "", l, nil)
	require.NoError(t, err)

	report, err := o.Run(context.Background())
	require.NoError(t, err)
	assert.Len(t, report.Benchmarks[0].Variations, 1)
}

func TestRun_RunnerFailureAborts(t *testing.T) {
	cfg := setup(t)
	l := &fakeLauncher{respond: func(Request) launch { return launch{code: client.ExitFailure} }}

	o, err := New(cfg, options(1, 2), "", l, nil)
	require.NoError(t, err)

	_, err = o.Run(context.Background())
	var runnerErr *RunnerError
	require.ErrorAs(t, err, &runnerErr)
	assert.Equal(t, "pgx", runnerErr.Benchmark)
	assert.Equal(t, "simple_select", runnerErr.Query)
	assert.Equal(t, 1, runnerErr.Concurrency)
	assert.Equal(t, client.ExitFailure, runnerErr.Code)
	assert.Len(t, l.requests, 1)
}

func TestRun_LaunchError(t *testing.T) {
	cfg := setup(t)
	boom := errors.New("exec format error")
	l := &fakeLauncher{respond: func(Request) launch { return launch{err: boom} }}

	o, err := New(cfg, options(1), "", l, nil)
	require.NoError(t, err)

	_, err = o.Run(context.Background())
	assert.ErrorIs(t, err, boom)
}

func TestRun_NothingProduced(t *testing.T) {
	cfg := setup(t)
	l := &fakeLauncher{respond: func(Request) launch { return launch{code: client.ExitUnsupported} }}

	o, err := New(cfg, options(1), "", l, nil)
	require.NoError(t, err)

	_, err = o.Run(context.Background())
	assert.ErrorIs(t, err, ErrNoResults)
}

func TestRun_Canceled(t *testing.T) {
	cfg := setup(t)
	l := &fakeLauncher{respond: func(Request) launch { return launch{} }}

	o, err := New(cfg, options(1), "", l, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = o.Run(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, l.requests)
}

func TestNew_UnknownNames(t *testing.T) {
	cfg := setup(t)

	_, err := New(cfg, cli.Options{Benchmarks: []string{"asyncpg"}}, "", nil, nil)
	assert.ErrorIs(t, err, config.ErrUnknownName)

	_, err = New(cfg, cli.Options{Queries: []string{"bulk_copy"}}, "", nil, nil)
	assert.ErrorIs(t, err, config.ErrUnknownName)
}

func TestNew_DefaultLevels(t *testing.T) {
	cfg := setup(t)
	cfg.Benchmark.Concurrency = []int{3, 7}

	o, err := New(cfg, cli.Options{}, "", nil, nil)
	require.NoError(t, err)
	assert.Equal(t, []int{3, 7}, o.opts.Levels)
}

func TestRequest(t *testing.T) {
	cfg := setup(t)
	cfg.Benchmark.Mode = "cooperative"

	o, err := New(cfg, cli.Options{}, "bench.yaml", nil, nil)
	require.NoError(t, err)

	req := o.request("pgxpool", "simple_insert", 8)
	assert.Equal(t, 8, req.Concurrency)
	assert.Subset(t, req.Args, []string{"--warmup", "0s", "--mode", "cooperative", "--config", "bench.yaml", "--policy", "abort"})

	args := (&ProcessLauncher{}).args(req)
	assert.Equal(t, []string{"run", "pgxpool", "simple_insert", "--concurrency", "8", "--output-format", "json"}, args[:7])
}

func TestServerSpec(t *testing.T) {
	cfg := setup(t)
	assert.Nil(t, serverSpec("postgres", cfg))

	spec := serverSpec("redis", cfg)
	require.NotNil(t, spec)
	assert.Equal(t, 6379, spec.Port)
	assert.Equal(t, "redis", spec.Image)
	assert.Equal(t, cfg.Container.Memory, spec.MemoryLimit)

	assert.Nil(t, serverSpec("sqlite", cfg))
}

func TestLastLine(t *testing.T) {
	assert.Equal(t, []byte(`{"a":1}`), lastLine([]byte("log line\n{\"a\":1}\n\n")))
	assert.Equal(t, []byte("only"), lastLine([]byte("only")))
	assert.Empty(t, lastLine(nil))
}
