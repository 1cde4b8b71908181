package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/OmJan/aiopg/internal/cli"
	"github.com/OmJan/aiopg/internal/client"
	"github.com/OmJan/aiopg/internal/config"
	"github.com/OmJan/aiopg/internal/driver"
	"github.com/OmJan/aiopg/internal/logging"
	"github.com/OmJan/aiopg/internal/orchestrator"
	"github.com/OmJan/aiopg/internal/queries"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	code := execute(ctx, os.Args[1:])
	cancel()
	os.Exit(code)
}

func execute(ctx context.Context, args []string) int {
	root := newRootCmd()
	root.SetArgs(args)
	err := root.ExecuteContext(ctx)
	if err != nil {
		cli.Failf("%v", err)
	}
	return exitCode(err)
}

func exitCode(err error) int {
	var runnerErr *orchestrator.RunnerError
	if errors.As(err, &runnerErr) {
		return runnerErr.Code
	}
	return client.ExitCode(err)
}

func usageError(err error) error {
	return fmt.Errorf("%w: %w", client.ErrUsage, err)
}

func newRootCmd() *cobra.Command {
	f := &flags{}
	sel := &selection{}

	root := &cobra.Command{
		Use:           "benchmark [drivers...]",
		Short:         "Measure database driver throughput and latency",
		Long:          "Runs every selected driver against every selected query at every concurrency level, each in its own process, and writes a report.",
		Args:          cobra.ArbitraryArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			sel.benchmarks = append(sel.benchmarks, args...)
			return runOrchestrator(cmd, f, sel)
		},
	}
	root.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return usageError(err)
	})

	f.register(root)
	sel.register(root)

	root.AddCommand(newRunCmd(f), newServeCmd(f))
	return root
}

func runOrchestrator(cmd *cobra.Command, f *flags, sel *selection) error {
	cfg, err := f.load(cmd)
	if err != nil {
		return err
	}
	log, err := logging.New(logging.Config{Level: cfg.Log.Level, Format: cfg.Log.Format})
	if err != nil {
		return usageError(err)
	}
	defer func() { _ = log.Sync() }()

	opts, err := sel.options(cmd, cfg)
	if err != nil {
		return err
	}
	cfg.Print()

	launcher, err := orchestrator.NewProcessLauncher()
	if err != nil {
		return err
	}
	o, err := orchestrator.New(cfg, *opts, f.configFile, launcher, log)
	if err != nil {
		return usageError(err)
	}

	if _, err = o.Run(cmd.Context()); err != nil {
		log.Error("benchmark run failed", zap.Error(err))
		return err
	}
	return nil
}

// options come from the interactive prompt when the terminal allows it and
// no selection flag was given, otherwise from the flags.
func (s *selection) options(cmd *cobra.Command, cfg *config.Config) (*cli.Options, error) {
	if cli.Interactive() && !s.changed(cmd) {
		cli.PrintBanner()
		opts, err := cli.PromptOptions(driver.Names(), queries.Names(), cfg.Benchmark.Concurrency)
		if err != nil {
			return nil, usageError(err)
		}
		cli.PrintSummary(opts, len(opts.Benchmarks))
		return opts, nil
	}

	opts := cli.DefaultOptions()
	opts.Warmup = !s.noWarmup
	opts.Resources = !s.noResources
	opts.Export = s.export
	opts.Benchmarks = s.benchmarks
	if len(opts.Benchmarks) == 0 {
		opts.Benchmarks = cfg.Benchmark.Benchmarks
	}
	opts.Queries = s.queries
	if len(opts.Queries) == 0 {
		opts.Queries = cfg.Benchmark.Queries
	}
	opts.Levels = cfg.Benchmark.Concurrency
	return &opts, nil
}
