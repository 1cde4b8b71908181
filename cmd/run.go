package main

import (
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/OmJan/aiopg/internal/cli"
	"github.com/OmJan/aiopg/internal/client"
	"github.com/OmJan/aiopg/internal/config"
	"github.com/OmJan/aiopg/internal/logging"
)

func newRunCmd(f *flags) *cobra.Command {
	var concurrency int
	var outputFormat string

	cmd := &cobra.Command{
		Use:   "run <driver> <query>",
		Short: "Run one driver against one query and print the result",
		Args: func(cmd *cobra.Command, args []string) error {
			if err := cobra.ExactArgs(2)(cmd, args); err != nil {
				return usageError(err)
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			// stdout carries only the result.
			cli.SetOutput(os.Stderr)

			var extra []config.Option
			if cmd.Flags().Changed("output-format") {
				extra = append(extra, func(c *config.Config) error {
					c.Benchmark.OutputFormat = outputFormat
					return nil
				})
			}
			cfg, err := f.load(cmd, extra...)
			if err != nil {
				return err
			}
			log, err := logging.New(logging.Config{Level: cfg.Log.Level, Format: cfg.Log.Format})
			if err != nil {
				return usageError(err)
			}
			defer func() { _ = log.Sync() }()

			if concurrency == 0 {
				concurrency = cfg.Benchmark.Concurrency[0]
			}
			suite, err := client.NewSuite(cfg, args[0], args[1], concurrency, log)
			if err != nil {
				return err
			}

			agg, err := suite.Run(cmd.Context())
			if err != nil {
				log.Error("benchmark failed", zap.Error(err))
				return err
			}
			return client.Write(os.Stdout, agg, cfg.Benchmark.OutputFormat, cfg.Benchmark.Percentiles)
		},
	}
	cmd.Flags().IntVarP(&concurrency, "concurrency", "C", 0, "number of workers (default first configured level)")
	cmd.Flags().StringVar(&outputFormat, "output-format", "", "text or json")
	return cmd
}
