package main

import (
	"github.com/spf13/cobra"

	"github.com/OmJan/aiopg/internal/logging"
	"github.com/OmJan/aiopg/internal/server"
)

func newServeCmd(f *flags) *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Browse stored reports over HTTP",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := f.load(cmd)
			if err != nil {
				return err
			}
			log, err := logging.New(logging.Config{Level: cfg.Log.Level, Format: cfg.Log.Format})
			if err != nil {
				return usageError(err)
			}
			defer func() { _ = log.Sync() }()

			return server.New(cfg.Report.ResultsDir, log).Serve(cmd.Context(), addr)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", server.DefaultAddr, "listen address")
	return cmd
}
