package runner

import (
	"context"
	"runtime"

	"github.com/OmJan/aiopg/internal/stats"
)

// Preemptive pins each worker to a dedicated OS thread for the whole phase.
type Preemptive struct{}

func (Preemptive) Execute(ctx context.Context, phase Phase) ([]stats.WorkerResult, error) {
	return fanOut(ctx, phase, func(ctx context.Context, w *Worker) (stats.WorkerResult, error) {
		runtime.LockOSThread()
		defer runtime.UnlockOSThread()
		return w.Run(ctx)
	})
}
