package runner

import (
	"context"

	"golang.org/x/sync/semaphore"

	"github.com/OmJan/aiopg/internal/stats"
)

// Cooperative runs every worker under a single scheduler token. A worker
// holds the token while it runs its own bookkeeping and hands it back only
// while its operation is in flight.
type Cooperative struct{}

func (Cooperative) Execute(ctx context.Context, phase Phase) ([]stats.WorkerResult, error) {
	sched := semaphore.NewWeighted(1)

	return fanOut(ctx, phase, func(ctx context.Context, w *Worker) (stats.WorkerResult, error) {
		t := &token{sched: sched}
		if err := t.acquire(ctx); err != nil {
			return stats.WorkerResult{}, w.fail(stats.WorkerResult{}, err)
		}
		defer t.release()

		w.Operation = yielding{op: w.Operation, token: t}
		return w.Run(ctx)
	})
}

// token tracks whether one task currently holds the scheduler.
type token struct {
	sched *semaphore.Weighted
	held  bool
}

func (t *token) acquire(ctx context.Context) error {
	if err := t.sched.Acquire(ctx, 1); err != nil {
		return err
	}
	t.held = true
	return nil
}

func (t *token) release() {
	if t.held {
		t.held = false
		t.sched.Release(1)
	}
}

// yielding gives the scheduler up for the duration of the wrapped operation.
type yielding struct {
	op    Operation
	token *token
}

func (y yielding) Execute(ctx context.Context, h Handle, payload string) (int, error) {
	y.token.release()
	size, err := y.op.Execute(ctx, h, payload)
	if aerr := y.token.acquire(ctx); aerr != nil && err == nil {
		err = aerr
	}
	return size, err
}
