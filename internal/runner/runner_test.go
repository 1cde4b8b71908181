package runner

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/OmJan/aiopg/internal/histogram"
	"github.com/OmJan/aiopg/internal/stats"
)

var errBoom = errors.New("boom")

type intFactory struct{}

func (intFactory) Handles(_ context.Context, n int) ([]Handle, error) {
	handles := make([]Handle, n)
	for i := range handles {
		handles[i] = i
	}
	return handles, nil
}

// stepping advances the fake clock by step on every call.
func stepping(clock *clockwork.FakeClock, step time.Duration, rows int) OperationFunc {
	return func(context.Context, Handle, string) (int, error) {
		clock.Advance(step)
		return rows, nil
	}
}

func newWorker(clock clockwork.Clock, op Operation, duration, timeout time.Duration) *Worker {
	return &Worker{
		Handle:    0,
		Operation: op,
		Clock:     clock,
		Start:     clock.Now(),
		Duration:  duration,
		Timeout:   timeout,
		Scale:     histogram.DefaultScale(),
	}
}

func TestWorker_Run(t *testing.T) {
	clock := clockwork.NewFakeClock()
	w := newWorker(clock, stepping(clock, time.Millisecond, 3), 100*time.Millisecond, 2*time.Second)

	res, err := w.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, int64(100), res.Queries)
	assert.Equal(t, int64(300), res.Rows)
	assert.Equal(t, res.Queries, res.Histogram.Total())
	assert.Equal(t, 100, res.MinLatency)
	assert.Equal(t, 100, res.MaxLatency)
	assert.Equal(t, int64(100), res.Histogram.Counts()[100])
	assert.Equal(t, 200000, res.Histogram.Len())
}

func TestWorker_ClampsSlowQueries(t *testing.T) {
	clock := clockwork.NewFakeClock()
	w := newWorker(clock, stepping(clock, 3*time.Millisecond, 1), 30*time.Millisecond, 2*time.Millisecond)

	res, err := w.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, int64(10), res.Queries)
	assert.Equal(t, int64(10), res.Overflows())
	assert.Equal(t, int64(10), res.Histogram.Counts()[199])
	assert.Equal(t, 300, res.MaxLatency)
}

func TestWorker_NonPositiveDuration(t *testing.T) {
	clock := clockwork.NewFakeClock()
	var calls atomic.Int32
	op := OperationFunc(func(context.Context, Handle, string) (int, error) {
		calls.Add(1)
		return 1, nil
	})

	res, err := newWorker(clock, op, 0, time.Second).Run(context.Background())
	require.NoError(t, err)

	assert.Zero(t, res.Queries)
	assert.Zero(t, res.Histogram.Total())
	assert.Zero(t, calls.Load())
}

func TestWorker_OperationFailure(t *testing.T) {
	clock := clockwork.NewFakeClock()
	calls := 0
	op := OperationFunc(func(context.Context, Handle, string) (int, error) {
		calls++
		clock.Advance(time.Millisecond)
		if calls == 5 {
			return 0, errBoom
		}
		return 1, nil
	})

	res, err := newWorker(clock, op, time.Second, time.Second).Run(context.Background())
	require.Error(t, err)

	var failure *WorkerFailure
	require.ErrorAs(t, err, &failure)
	assert.ErrorIs(t, err, errBoom)
	assert.Equal(t, int64(4), failure.Iterations)
	assert.Equal(t, int64(4), failure.Partial.Queries)
	assert.Equal(t, int64(4), res.Histogram.Total())
}

func TestWorker_NegativeSize(t *testing.T) {
	clock := clockwork.NewFakeClock()
	op := OperationFunc(func(context.Context, Handle, string) (int, error) {
		return -1, nil
	})

	_, err := newWorker(clock, op, time.Second, time.Second).Run(context.Background())
	assert.ErrorIs(t, err, ErrNegativeSize)
}

func TestRun_InvalidConcurrency(t *testing.T) {
	_, err := Run(context.Background(), Config{Concurrency: 0, Duration: time.Second, Timeout: time.Second}, intFactory{}, OperationFunc(nil))
	assert.ErrorIs(t, err, ErrInvalidConcurrency)
}

func TestRun_InvalidTimeout(t *testing.T) {
	_, err := Run(context.Background(), Config{Concurrency: 1, Duration: time.Second}, intFactory{}, OperationFunc(nil))
	assert.ErrorIs(t, err, histogram.ErrInvalidScale)
}

func TestRun_WarmupDiscarded(t *testing.T) {
	clock := clockwork.NewFakeClock()
	var calls atomic.Int64
	op := OperationFunc(func(context.Context, Handle, string) (int, error) {
		calls.Add(1)
		clock.Advance(time.Millisecond)
		return 2, nil
	})

	agg, err := Run(context.Background(), Config{
		Concurrency: 1,
		Warmup:      50 * time.Millisecond,
		Duration:    100 * time.Millisecond,
		Timeout:     time.Second,
		Clock:       clock,
	}, intFactory{}, op)
	require.NoError(t, err)

	assert.Equal(t, int64(150), calls.Load())
	assert.Equal(t, int64(100), agg.Queries)
	assert.Equal(t, int64(200), agg.Rows)
	assert.Equal(t, 100*time.Millisecond, agg.Duration)

	report, err := stats.Summarize(agg, nil)
	require.NoError(t, err)
	assert.InDelta(t, 1000.0, report.QPS, 1e-6)
	assert.InDelta(t, 1.0, report.Percentiles[1].Value, 1e-9)
}

func TestRun_Modes(t *testing.T) {
	for _, mode := range []Mode{ModePreemptive, ModeCooperative} {
		t.Run(string(mode), func(t *testing.T) {
			clock := clockwork.NewFakeClock()
			const workers = 4

			agg, err := Run(context.Background(), Config{
				Concurrency: workers,
				Duration:    100 * time.Millisecond,
				Timeout:     time.Second,
				Mode:        mode,
				Clock:       clock,
			}, intFactory{}, stepping(clock, time.Millisecond, 1))
			require.NoError(t, err)

			assert.Equal(t, workers, agg.Workers)
			assert.Equal(t, agg.Queries, agg.Histogram.Total())
			assert.Equal(t, agg.Queries, agg.Rows)
			assert.GreaterOrEqual(t, agg.Queries, int64(100))
			assert.LessOrEqual(t, agg.Queries, int64(100+workers))
		})
	}
}

// barrier blocks the first n calls until all n are in flight at once.
func barrier(n int32) OperationFunc {
	var entered atomic.Int32
	release := make(chan struct{})
	return func(ctx context.Context, _ Handle, _ string) (int, error) {
		switch k := entered.Add(1); {
		case k == n:
			close(release)
		case k > n:
			return 1, nil
		}
		select {
		case <-release:
			return 1, nil
		case <-ctx.Done():
			return 0, ctx.Err()
		}
	}
}

func TestRun_OperationsOverlap(t *testing.T) {
	for _, mode := range []Mode{ModePreemptive, ModeCooperative} {
		t.Run(string(mode), func(t *testing.T) {
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()

			agg, err := Run(ctx, Config{
				Concurrency: 3,
				Duration:    20 * time.Millisecond,
				Timeout:     time.Second,
				Mode:        mode,
			}, intFactory{}, barrier(3))
			require.NoError(t, err)
			assert.GreaterOrEqual(t, agg.Queries, int64(3))
		})
	}
}

// failOn fails every call made with the given handle.
func failOn(clock *clockwork.FakeClock, handle int) OperationFunc {
	return func(_ context.Context, h Handle, _ string) (int, error) {
		if h.(int) == handle {
			return 0, errBoom
		}
		clock.Advance(time.Millisecond)
		return 1, nil
	}
}

func TestRun_AbortPolicy(t *testing.T) {
	clock := clockwork.NewFakeClock()

	_, err := Run(context.Background(), Config{
		Concurrency: 3,
		Duration:    time.Hour,
		Timeout:     time.Second,
		Clock:       clock,
	}, intFactory{}, failOn(clock, 2))
	require.Error(t, err)

	assert.ErrorIs(t, err, errBoom)
	var failure *WorkerFailure
	require.ErrorAs(t, err, &failure)
}

func TestRun_ExcludePolicy(t *testing.T) {
	clock := clockwork.NewFakeClock()

	agg, err := Run(context.Background(), Config{
		Concurrency: 3,
		Duration:    50 * time.Millisecond,
		Timeout:     time.Second,
		Policy:      PolicyExclude,
		Clock:       clock,
	}, intFactory{}, failOn(clock, 2))
	require.NoError(t, err)

	assert.Equal(t, 2, agg.Workers)
	assert.Equal(t, 1, agg.Excluded)
	assert.Equal(t, agg.Queries, agg.Histogram.Total())
	assert.Positive(t, agg.Queries)
}

func TestRun_ExcludePolicyNoSurvivors(t *testing.T) {
	op := OperationFunc(func(context.Context, Handle, string) (int, error) {
		return 0, errBoom
	})

	_, err := Run(context.Background(), Config{
		Concurrency: 2,
		Duration:    time.Second,
		Timeout:     time.Second,
		Policy:      PolicyExclude,
		Clock:       clockwork.NewFakeClock(),
	}, intFactory{}, op)

	assert.ErrorIs(t, err, stats.ErrEmptyResultSet)
	assert.ErrorIs(t, err, errBoom)
}

func TestRun_WarmupFailureAbortsUnderExclude(t *testing.T) {
	clock := clockwork.NewFakeClock()
	var calls atomic.Int64
	op := OperationFunc(func(context.Context, Handle, string) (int, error) {
		if calls.Add(1) == 5 {
			return 0, errBoom
		}
		clock.Advance(time.Millisecond)
		return 1, nil
	})

	_, err := Run(context.Background(), Config{
		Concurrency: 1,
		Warmup:      50 * time.Millisecond,
		Duration:    100 * time.Millisecond,
		Timeout:     time.Second,
		Policy:      PolicyExclude,
		Clock:       clock,
	}, intFactory{}, op)

	require.ErrorIs(t, err, errBoom)
	assert.Contains(t, err.Error(), "warm-up")
	assert.Equal(t, int64(5), calls.Load())
}

func TestParseMode(t *testing.T) {
	m, err := ParseMode("cooperative")
	require.NoError(t, err)
	assert.Equal(t, ModeCooperative, m)

	m, err = ParseMode("")
	require.NoError(t, err)
	assert.Equal(t, ModePreemptive, m)

	_, err = ParseMode("green-threads")
	assert.ErrorIs(t, err, ErrUnknownMode)
}

func TestParsePolicy(t *testing.T) {
	p, err := ParsePolicy("exclude")
	require.NoError(t, err)
	assert.Equal(t, PolicyExclude, p)

	_, err = ParsePolicy("retry")
	assert.ErrorIs(t, err, ErrUnknownPolicy)
}
