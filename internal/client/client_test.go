package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/OmJan/aiopg/internal/config"
	"github.com/OmJan/aiopg/internal/database"
	"github.com/OmJan/aiopg/internal/driver"
	"github.com/OmJan/aiopg/internal/histogram"
	"github.com/OmJan/aiopg/internal/queries"
	"github.com/OmJan/aiopg/internal/runner"
	"github.com/OmJan/aiopg/internal/stats"
	"github.com/OmJan/aiopg/internal/summary"
)

type fakeFixture struct {
	setupErr    error
	teardownErr error
	setup       bool
	torn        bool
	closed      bool
}

func (f *fakeFixture) Setup(context.Context) error    { f.setup = true; return f.setupErr }
func (f *fakeFixture) Teardown(context.Context) error { f.torn = true; return f.teardownErr }
func (f *fakeFixture) Close(context.Context) error    { f.closed = true; return nil }

type fakeTarget struct {
	calls  atomic.Int64
	err    error
	closed bool
}

func (t *fakeTarget) Handles(_ context.Context, n int) ([]runner.Handle, error) {
	handles := make([]runner.Handle, n)
	for i := range handles {
		handles[i] = i
	}
	return handles, nil
}

func (t *fakeTarget) Execute(_ context.Context, _ runner.Handle, payload string) (int, error) {
	t.calls.Add(1)
	if t.err != nil {
		return 0, t.err
	}
	time.Sleep(100 * time.Microsecond)
	return len(strings.Fields(payload)), nil
}

func (t *fakeTarget) Close(context.Context) error {
	t.closed = true
	return nil
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	t.Chdir(t.TempDir())
	cfg, err := config.Load("", func(c *config.Config) error {
		c.Benchmark.Warmup = "10ms"
		c.Benchmark.Duration = "50ms"
		return nil
	})
	require.NoError(t, err)
	return cfg
}

func newTestSuite(t *testing.T, fixture *fakeFixture, target *fakeTarget) *Suite {
	t.Helper()
	return &Suite{
		cfg: testConfig(t),
		driver: driver.Driver{
			Name:    "fake",
			Backend: driver.BackendPostgres,
			Mode:    runner.ModePreemptive,
			Open: func(context.Context, *config.Config) (driver.Target, error) {
				return target, nil
			},
		},
		query:       queries.Query{Name: "simple_select"},
		payload:     "one two",
		concurrency: 2,
		log:         zap.NewNop(),
		clock:       clockwork.NewRealClock(),
		fixtures: func(context.Context, string, *config.Config) (database.Fixture, error) {
			return fixture, nil
		},
	}
}

func TestSuite_Run(t *testing.T) {
	fixture := &fakeFixture{}
	target := &fakeTarget{}
	s := newTestSuite(t, fixture, target)

	agg, err := s.Run(context.Background())
	require.NoError(t, err)

	assert.True(t, fixture.setup)
	assert.True(t, fixture.torn)
	assert.True(t, fixture.closed)
	assert.True(t, target.closed)
	assert.Positive(t, agg.Queries)
	assert.Equal(t, agg.Queries*2, agg.Rows)
	assert.Equal(t, agg.Queries, agg.Histogram.Total())
	assert.Equal(t, 2, agg.Workers)
}

func TestSuite_TeardownAfterFailure(t *testing.T) {
	fixture := &fakeFixture{teardownErr: errors.New("table busy")}
	target := &fakeTarget{err: errors.New("connection reset")}
	s := newTestSuite(t, fixture, target)

	_, err := s.Run(context.Background())
	require.Error(t, err)
	assert.True(t, fixture.torn)
	assert.Contains(t, err.Error(), "connection reset")
	assert.Contains(t, err.Error(), "table busy")

	var failure *runner.WorkerFailure
	assert.ErrorAs(t, err, &failure)
}

func TestSuite_SetupFailure(t *testing.T) {
	fixture := &fakeFixture{setupErr: errors.New("permission denied")}
	target := &fakeTarget{}
	s := newTestSuite(t, fixture, target)

	_, err := s.Run(context.Background())
	require.Error(t, err)
	assert.True(t, fixture.torn)
	assert.Zero(t, target.calls.Load())
}

func TestSuite_ModeOverride(t *testing.T) {
	s := newTestSuite(t, &fakeFixture{}, &fakeTarget{})
	s.cfg.Benchmark.Mode = "cooperative"

	mode, err := s.mode()
	require.NoError(t, err)
	assert.Equal(t, runner.ModeCooperative, mode)
}

func TestNewSuite(t *testing.T) {
	cfg := testConfig(t)

	s, err := NewSuite(cfg, "pgx", "simple_select", 4, nil)
	require.NoError(t, err)
	assert.Equal(t, "SELECT id from sa_tbl_1", s.payload)

	_, err = NewSuite(cfg, "redis", "join_select", 4, nil)
	assert.Equal(t, ExitUnsupported, ExitCode(err))

	_, err = NewSuite(cfg, "psycopg", "simple_select", 4, nil)
	assert.Equal(t, ExitUsage, ExitCode(err))

	_, err = NewSuite(cfg, "pgx", "simple_select", 0, nil)
	assert.Equal(t, ExitUsage, ExitCode(err))
}

func TestExitCode(t *testing.T) {
	assert.Equal(t, ExitOK, ExitCode(nil))
	assert.Equal(t, ExitFailure, ExitCode(errors.New("boom")))
	assert.Equal(t, ExitUnsupported, ExitCode(fmt.Errorf("wrapped: %w", queries.ErrUnsupported)))
	assert.Equal(t, ExitUsage, ExitCode(fmt.Errorf("%w: bad flag", ErrUsage)))
}

func aggregate(t *testing.T) *stats.Aggregate {
	t.Helper()
	h, err := histogram.FromCounts([]int64{0, 1000}, histogram.DefaultScale())
	require.NoError(t, err)
	return &stats.Aggregate{Queries: 1000, Rows: 2000, Duration: 10 * time.Second, MinLatency: 1, MaxLatency: 1, Histogram: h}
}

func TestWrite_JSON(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Write(&buf, aggregate(t), "json", nil))

	var raw map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &raw))
	assert.Contains(t, raw, "latency_percentiles")

	parsed, err := summary.ParseRecord(buf.Bytes())
	require.NoError(t, err)
	assert.Equal(t, int64(1000), parsed.Queries)
}

func TestWrite_Text(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Write(&buf, aggregate(t), "text", nil))
	assert.True(t, strings.HasPrefix(buf.String(), "1000 queries in 10.0 seconds\n"))

	assert.ErrorIs(t, Write(&buf, aggregate(t), "xml", nil), ErrUsage)
}
