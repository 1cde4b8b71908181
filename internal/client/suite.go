package client

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/jonboulle/clockwork"
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

const cleanupTimeout = time.Minute

type fixtureOpener func(ctx context.Context, backend string, cfg *config.Config) (database.Fixture, error)

// Suite runs one driver against one query at one concurrency level: fixture
// setup, warm-up, measured phase, teardown.
type Suite struct {
	cfg         *config.Config
	driver      driver.Driver
	query       queries.Query
	payload     string
	concurrency int
	log         *zap.Logger
	clock       clockwork.Clock
	fixtures    fixtureOpener
}

// NewSuite resolves the driver and query by name. A query the driver has no
// payload for yields queries.ErrUnsupported.
func NewSuite(cfg *config.Config, driverName, queryName string, concurrency int, log *zap.Logger) (*Suite, error) {
	d, err := driver.Lookup(driverName)
	if err != nil {
		return nil, err
	}
	q, err := queries.Lookup(queryName)
	if err != nil {
		return nil, err
	}
	payload, err := q.Payload(d.Name, string(d.Backend))
	if err != nil {
		return nil, err
	}
	if concurrency <= 0 {
		return nil, fmt.Errorf("%w: concurrency must be positive, got %d", ErrUsage, concurrency)
	}
	if log == nil {
		log = zap.NewNop()
	}

	return &Suite{
		cfg:         cfg,
		driver:      d,
		query:       q,
		payload:     payload,
		concurrency: concurrency,
		log:         log.With(zap.String("driver", d.Name), zap.String("query", q.Name)),
		clock:       clockwork.NewRealClock(),
		fixtures:    database.Open,
	}, nil
}

func (s *Suite) mode() (runner.Mode, error) {
	if s.cfg.Benchmark.Mode != "" {
		return runner.ParseMode(s.cfg.Benchmark.Mode)
	}
	return s.driver.Mode, nil
}

// Run measures the variation. Teardown always runs once setup has started,
// and its failure is reported alongside any run failure.
func (s *Suite) Run(ctx context.Context) (agg *stats.Aggregate, err error) {
	mode, err := s.mode()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUsage, err)
	}
	policy, err := runner.ParsePolicy(s.cfg.Benchmark.Policy)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUsage, err)
	}

	fixture, err := s.fixtures(ctx, string(s.driver.Backend), s.cfg)
	if err != nil {
		return nil, err
	}
	defer func() { //nolint:contextcheck // cleanup must run even if ctx is canceled
		cleanupCtx, cancel := context.WithTimeout(context.Background(), cleanupTimeout)
		defer cancel()
		if tearErr := fixture.Teardown(cleanupCtx); tearErr != nil {
			s.log.Warn("teardown failed", zap.Error(tearErr))
			tearErr = fmt.Errorf("teardown: %w", tearErr)
			if err == nil {
				agg, err = nil, tearErr
			} else {
				err = multierror.Append(err, tearErr)
			}
		}
		if closeErr := fixture.Close(cleanupCtx); closeErr != nil {
			s.log.Warn("fixture close failed", zap.Error(closeErr))
		}
	}()

	s.log.Debug("setting up fixtures")
	if err = fixture.Setup(ctx); err != nil {
		return nil, fmt.Errorf("setup: %w", err)
	}

	target, err := s.driver.Open(ctx, s.cfg)
	if err != nil {
		return nil, err
	}
	defer func() { //nolint:contextcheck // cleanup must run even if ctx is canceled
		closeCtx, cancel := context.WithTimeout(context.Background(), cleanupTimeout)
		defer cancel()
		if closeErr := target.Close(closeCtx); closeErr != nil {
			s.log.Warn("closing driver failed", zap.Error(closeErr))
		}
	}()

	b := s.cfg.Benchmark
	return runner.Run(ctx, runner.Config{
		Concurrency: s.concurrency,
		Warmup:      b.WarmupDuration,
		Duration:    b.RunDuration,
		Timeout:     b.TimeoutDuration,
		Scale:       histogram.Scale{Unit: histogram.DefaultUnit, Resolution: b.Resolution},
		Mode:        mode,
		Policy:      policy,
		Payload:     s.payload,
		Clock:       s.clock,
		Logger:      s.log,
	}, target, target)
}

// Write prints the result in the configured output format: the boundary
// record as one JSON line, or the prose summary.
func Write(w io.Writer, agg *stats.Aggregate, format string, percentiles []float64) error {
	report, err := stats.Summarize(agg, percentiles)
	if err != nil {
		return err
	}
	data := summary.Format(agg, report)

	switch format {
	case "json":
		rec := summary.NewRecord(agg)
		rec.Percentiles = data.LatencyPercentiles
		out, err := json.Marshal(rec)
		if err != nil {
			return err
		}
		_, err = fmt.Fprintf(w, "%s\n", out)
		return err
	case "text", "":
		_, err = io.WriteString(w, summary.Text(data))
		return err
	default:
		return fmt.Errorf("%w: unknown output format %q", ErrUsage, format)
	}
}
