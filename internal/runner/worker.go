package runner

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/OmJan/aiopg/internal/histogram"
	"github.com/OmJan/aiopg/internal/stats"
)

var ErrNegativeSize = errors.New("operation reported a negative size")

// Handle is an opaque per-worker resource (a connection, a session). A handle
// is used by exactly one worker.
type Handle any

// Operation is the measured unit of work. It returns a non-negative size
// metric, typically the number of rows produced.
type Operation interface {
	Execute(ctx context.Context, h Handle, payload string) (int, error)
}

type OperationFunc func(ctx context.Context, h Handle, payload string) (int, error)

func (f OperationFunc) Execute(ctx context.Context, h Handle, payload string) (int, error) {
	return f(ctx, h, payload)
}

// Factory hands out ready handles. It keeps ownership of them.
type Factory interface {
	Handles(ctx context.Context, n int) ([]Handle, error)
}

// WorkerFailure reports a worker that stopped on an error. Partial holds what
// the worker recorded before failing.
type WorkerFailure struct {
	Worker     int
	Iterations int64
	Partial    stats.WorkerResult
	Err        error
}

func (f *WorkerFailure) Error() string {
	return fmt.Sprintf("worker %d failed after %d queries: %v", f.Worker, f.Iterations, f.Err)
}

func (f *WorkerFailure) Unwrap() error {
	return f.Err
}

type Worker struct {
	ID        int
	Handle    Handle
	Operation Operation
	Payload   string
	Clock     clockwork.Clock
	Start     time.Time
	Duration  time.Duration
	Timeout   time.Duration
	Scale     histogram.Scale
}

// Run executes the operation back to back until Duration has elapsed since
// Start. Latencies past Timeout land in the last bucket.
func (w *Worker) Run(ctx context.Context) (stats.WorkerResult, error) {
	h, err := histogram.New(w.Timeout, w.Scale)
	if err != nil {
		return stats.WorkerResult{}, err
	}
	res := stats.WorkerResult{Worker: w.ID, Histogram: h}
	if w.Duration <= 0 {
		return res, nil
	}

	for w.Clock.Since(w.Start) < w.Duration {
		if err := ctx.Err(); err != nil {
			return res, w.fail(res, err)
		}

		before := w.Clock.Now()
		size, err := w.Operation.Execute(ctx, w.Handle, w.Payload)
		if err != nil {
			return res, w.fail(res, err)
		}
		if size < 0 {
			return res, w.fail(res, fmt.Errorf("%w: %d", ErrNegativeSize, size))
		}
		q := w.Scale.Quantize(w.Clock.Since(before))

		if res.Queries == 0 || q < res.MinLatency {
			res.MinLatency = q
		}
		if res.Queries == 0 || q > res.MaxLatency {
			res.MaxLatency = q
		}
		h.Record(q)
		res.Queries++
		res.Rows += int64(size)
	}
	return res, nil
}

func (w *Worker) fail(partial stats.WorkerResult, err error) *WorkerFailure {
	return &WorkerFailure{
		Worker:     w.ID,
		Iterations: partial.Queries,
		Partial:    partial,
		Err:        err,
	}
}
