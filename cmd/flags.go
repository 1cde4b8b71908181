package main

import (
	"github.com/spf13/cobra"

	"github.com/OmJan/aiopg/internal/cli"
	"github.com/OmJan/aiopg/internal/config"
)

// flags shared by every command. They override the config file and the
// environment.
type flags struct {
	configFile string
	levels     string
	warmup     string
	duration   string
	timeout    string
	cooldown   string
	resolution int
	mode       string
	policy     string
	logLevel   string
	logFormat  string
	resultsDir string
}

func (f *flags) register(cmd *cobra.Command) {
	pf := cmd.PersistentFlags()
	pf.StringVarP(&f.configFile, "config", "c", "", "config file (default "+config.DefaultConfigFile+" if present)")
	pf.StringVar(&f.levels, "levels", "", "comma-separated concurrency levels")
	pf.StringVar(&f.warmup, "warmup", "", "warm-up duration (seconds or Go duration)")
	pf.StringVar(&f.duration, "duration", "", "measured duration (seconds or Go duration)")
	pf.StringVar(&f.timeout, "timeout", "", "per-query timeout budget")
	pf.StringVar(&f.cooldown, "cooldown", "", "pause between variations")
	pf.IntVar(&f.resolution, "resolution", 0, "histogram buckets per millisecond")
	pf.StringVar(&f.mode, "mode", "", "executor override: preemptive or cooperative")
	pf.StringVar(&f.policy, "policy", "", "worker failure policy: abort or exclude")
	pf.StringVar(&f.logLevel, "log-level", "", "debug, info, warn or error")
	pf.StringVar(&f.logFormat, "log-format", "", "console or json")
	pf.StringVar(&f.resultsDir, "results-dir", "", "directory reports are written to")
}

// options turns the flags that were set into config options.
func (f *flags) options(cmd *cobra.Command) []config.Option {
	changed := cmd.Flags().Changed
	var opts []config.Option
	set := func(name string, apply func(*config.Config) error) {
		if changed(name) {
			opts = append(opts, apply)
		}
	}

	set("levels", func(c *config.Config) error {
		levels, err := cli.ParseLevels(f.levels)
		if err != nil {
			return err
		}
		c.Benchmark.Concurrency = levels
		return nil
	})
	set("warmup", func(c *config.Config) error { c.Benchmark.Warmup = f.warmup; return nil })
	set("duration", func(c *config.Config) error { c.Benchmark.Duration = f.duration; return nil })
	set("timeout", func(c *config.Config) error { c.Benchmark.Timeout = f.timeout; return nil })
	set("cooldown", func(c *config.Config) error { c.Benchmark.Cooldown = f.cooldown; return nil })
	set("resolution", func(c *config.Config) error { c.Benchmark.Resolution = f.resolution; return nil })
	set("mode", func(c *config.Config) error { c.Benchmark.Mode = f.mode; return nil })
	set("policy", func(c *config.Config) error { c.Benchmark.Policy = f.policy; return nil })
	set("log-level", func(c *config.Config) error { c.Log.Level = f.logLevel; return nil })
	set("log-format", func(c *config.Config) error { c.Log.Format = f.logFormat; return nil })
	set("results-dir", func(c *config.Config) error { c.Report.ResultsDir = f.resultsDir; return nil })
	return opts
}

func (f *flags) load(cmd *cobra.Command, extra ...config.Option) (*config.Config, error) {
	cfg, err := config.Load(f.configFile, append(f.options(cmd), extra...)...)
	if err != nil {
		return nil, usageError(err)
	}
	return cfg, nil
}

// selection holds the orchestrator-only flags.
type selection struct {
	benchmarks  []string
	queries     []string
	noWarmup    bool
	noResources bool
	export      bool
}

func (s *selection) register(cmd *cobra.Command) {
	fl := cmd.Flags()
	fl.StringSliceVarP(&s.benchmarks, "benchmarks", "b", nil, "drivers to run (default all)")
	fl.StringSliceVarP(&s.queries, "queries", "q", nil, "queries to run (default all)")
	fl.BoolVar(&s.noWarmup, "no-warmup", false, "skip the warm-up phase")
	fl.BoolVar(&s.noResources, "no-resources", false, "do not sample container resource usage")
	fl.BoolVar(&s.export, "export", false, "export results to InfluxDB")
}

func (s *selection) changed(cmd *cobra.Command) bool {
	for _, name := range []string{"benchmarks", "queries", "no-warmup", "no-resources", "export", "levels"} {
		if cmd.Flags().Changed(name) {
			return true
		}
	}
	return len(s.benchmarks) > 0
}
