package runner

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"github.com/OmJan/aiopg/internal/histogram"
	"github.com/OmJan/aiopg/internal/stats"
)

var ErrInvalidConcurrency = errors.New("concurrency must be positive")

type Config struct {
	Concurrency int
	Warmup      time.Duration
	Duration    time.Duration
	Timeout     time.Duration
	Scale       histogram.Scale
	Mode        Mode
	Policy      Policy
	Payload     string
	Clock       clockwork.Clock
	Logger      *zap.Logger
}

func (c *Config) applyDefaults() {
	if c.Scale == (histogram.Scale{}) {
		c.Scale = histogram.DefaultScale()
	}
	if c.Mode == "" {
		c.Mode = ModePreemptive
	}
	if c.Policy == "" {
		c.Policy = PolicyAbort
	}
	if c.Clock == nil {
		c.Clock = clockwork.NewRealClock()
	}
	if c.Logger == nil {
		c.Logger = zap.NewNop()
	}
}

func (c *Config) validate() error {
	if c.Concurrency <= 0 {
		return fmt.Errorf("%w: got %d", ErrInvalidConcurrency, c.Concurrency)
	}
	if _, err := ParsePolicy(string(c.Policy)); err != nil {
		return err
	}
	if err := c.Scale.Validate(); err != nil {
		return err
	}
	if n := c.Scale.Buckets(c.Timeout); n < 1 {
		return fmt.Errorf("%w: timeout %s yields no buckets", histogram.ErrInvalidScale, c.Timeout)
	}
	return nil
}

// Run warms the pool up, discards what it measured, then runs the measured
// phase and merges the worker results. Handles come from factory, which
// keeps ownership of them.
func Run(ctx context.Context, cfg Config, factory Factory, op Operation) (*stats.Aggregate, error) {
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	exec, err := NewExecutor(cfg.Mode)
	if err != nil {
		return nil, err
	}
	log := cfg.Logger.With(zap.String("mode", string(cfg.Mode)), zap.Int("concurrency", cfg.Concurrency))

	handles, err := factory.Handles(ctx, cfg.Concurrency)
	if err != nil {
		return nil, fmt.Errorf("acquire handles: %w", err)
	}
	if len(handles) != cfg.Concurrency {
		return nil, fmt.Errorf("acquire handles: got %d, want %d", len(handles), cfg.Concurrency)
	}

	phase := Phase{
		Handles:   handles,
		Operation: op,
		Payload:   cfg.Payload,
		Timeout:   cfg.Timeout,
		Scale:     cfg.Scale,
		Clock:     cfg.Clock,
		Policy:    cfg.Policy,
	}

	// A failure while warming up aborts the run under either policy.
	if cfg.Warmup > 0 {
		log.Debug("warm-up started", zap.Duration("duration", cfg.Warmup))
		warmup := phase
		warmup.Start = cfg.Clock.Now()
		warmup.Duration = cfg.Warmup
		warmup.Policy = PolicyAbort
		if _, err := exec.Execute(ctx, warmup); err != nil {
			return nil, fmt.Errorf("warm-up: %w", err)
		}
	}

	log.Debug("measurement started", zap.Duration("duration", cfg.Duration))
	phase.Start = cfg.Clock.Now()
	phase.Duration = cfg.Duration
	results, execErr := exec.Execute(ctx, phase)
	elapsed := cfg.Clock.Since(phase.Start)

	excluded := 0
	if execErr != nil {
		if cfg.Policy == PolicyAbort {
			return nil, execErr
		}
		var merr *multierror.Error
		if errors.As(execErr, &merr) {
			excluded = len(merr.Errors)
		}
		log.Warn("excluding failed workers", zap.Int("failed", excluded), zap.Error(execErr))
	}

	agg, err := stats.Merge(results, elapsed)
	if err != nil {
		if errors.Is(err, stats.ErrEmptyResultSet) && execErr != nil {
			return nil, fmt.Errorf("%w: %w", err, execErr)
		}
		return nil, err
	}
	agg.Excluded = excluded

	if overflows := agg.Histogram.Overflows(); overflows > 0 {
		log.Warn("latencies exceeded timeout budget", zap.Int64("overflows", overflows), zap.Duration("timeout", cfg.Timeout))
	}
	log.Debug("measurement finished", zap.Int64("queries", agg.Queries), zap.Duration("elapsed", elapsed))
	return agg, nil
}
