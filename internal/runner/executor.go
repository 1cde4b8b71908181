package runner

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/jonboulle/clockwork"
	"golang.org/x/sync/errgroup"

	"github.com/OmJan/aiopg/internal/histogram"
	"github.com/OmJan/aiopg/internal/stats"
)

var (
	ErrUnknownMode   = errors.New("unknown execution mode")
	ErrUnknownPolicy = errors.New("unknown failure policy")
)

// Mode selects how the workers of a phase are scheduled.
type Mode string

const (
	// ModePreemptive runs every worker on its own OS thread.
	ModePreemptive Mode = "preemptive"
	// ModeCooperative multiplexes the workers on one scheduler token that is
	// released while an operation waits on I/O.
	ModeCooperative Mode = "cooperative"
)

func ParseMode(s string) (Mode, error) {
	switch m := Mode(s); m {
	case ModePreemptive, ModeCooperative:
		return m, nil
	case "":
		return ModePreemptive, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownMode, s)
	}
}

// Policy decides what a worker failure does to the rest of the phase.
type Policy string

const (
	// PolicyAbort stops the phase at the first failure.
	PolicyAbort Policy = "abort"
	// PolicyExclude lets the other workers finish and drops the failed ones.
	PolicyExclude Policy = "exclude"
)

func ParsePolicy(s string) (Policy, error) {
	switch p := Policy(s); p {
	case PolicyAbort, PolicyExclude:
		return p, nil
	case "":
		return PolicyAbort, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownPolicy, s)
	}
}

// Phase is one timed execution of the pool: warm-up or measurement.
type Phase struct {
	Handles   []Handle
	Operation Operation
	Payload   string
	Start     time.Time
	Duration  time.Duration
	Timeout   time.Duration
	Scale     histogram.Scale
	Clock     clockwork.Clock
	Policy    Policy
}

func (p Phase) worker(id int, h Handle) *Worker {
	return &Worker{
		ID:        id,
		Handle:    h,
		Operation: p.Operation,
		Payload:   p.Payload,
		Clock:     p.Clock,
		Start:     p.Start,
		Duration:  p.Duration,
		Timeout:   p.Timeout,
		Scale:     p.Scale,
	}
}

// Executor runs one worker per handle and joins them. The returned error, if
// any, is a *multierror.Error of *WorkerFailure. Under PolicyExclude the
// results of the surviving workers are returned alongside it.
type Executor interface {
	Execute(ctx context.Context, phase Phase) ([]stats.WorkerResult, error)
}

func NewExecutor(mode Mode) (Executor, error) {
	switch mode {
	case ModePreemptive, "":
		return Preemptive{}, nil
	case ModeCooperative:
		return Cooperative{}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownMode, mode)
	}
}

type task func(ctx context.Context, w *Worker) (stats.WorkerResult, error)

// fanOut launches one task per handle and waits for all of them.
func fanOut(ctx context.Context, phase Phase, run task) ([]stats.WorkerResult, error) {
	n := len(phase.Handles)
	if n == 0 {
		return nil, ErrInvalidConcurrency
	}

	g, gctx := errgroup.WithContext(ctx)
	if phase.Policy == PolicyExclude {
		g, gctx = &errgroup.Group{}, ctx
	}
	g.SetLimit(n)

	var (
		mu       sync.Mutex
		failures *multierror.Error
	)
	results := make([]stats.WorkerResult, n)
	done := make([]bool, n)

	for i, h := range phase.Handles {
		w := phase.worker(i, h)
		g.Go(func() error {
			res, err := run(gctx, w)
			if err != nil {
				var failure *WorkerFailure
				if !errors.As(err, &failure) {
					failure = w.fail(res, err)
				}
				mu.Lock()
				failures = multierror.Append(failures, failure)
				mu.Unlock()
				if phase.Policy == PolicyExclude {
					return nil
				}
				return failure
			}
			results[i] = res
			done[i] = true
			return nil
		})
	}
	_ = g.Wait()

	survivors := make([]stats.WorkerResult, 0, n)
	for i, ok := range done {
		if ok {
			survivors = append(survivors, results[i])
		}
	}
	return survivors, failures.ErrorOrNil()
}
