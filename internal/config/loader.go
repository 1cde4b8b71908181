package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"runtime"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"go.yaml.in/yaml/v4"
)

const (
	DefaultConfigFile = "benchmark.yaml"
	DefaultEnvFile    = ".env"

	DefaultConcurrency  = 10
	DefaultWarmup       = "5s"
	DefaultDuration     = "30s"
	DefaultTimeout      = "2s"
	DefaultResolution   = 100
	DefaultPolicy       = "abort"
	DefaultOutputFormat = "text"
	DefaultCPU          = "1"
	DefaultMemory       = "1g"
	DefaultStartTimeout = "2m"

	DefaultPostgresPort  = 5432
	DefaultPostgresUser  = "postgres"
	DefaultPostgresImage = "postgres"
	DefaultPostgresTag   = "16"

	DefaultRedisImage      = "redis"
	DefaultRedisTag        = "7"
	DefaultMongoImage      = "mongo"
	DefaultMongoTag        = "7"
	DefaultMongoDatabase   = "benchmark"
	DefaultCassandraImage  = "cassandra"
	DefaultCassandraTag    = "4.1"
	DefaultCassandraPort   = 9042
	DefaultCassandraSpace  = "benchmark"
	DefaultInfluxURL       = "http://localhost:8181"
	DefaultInfluxDatabase  = "benchmarks"
	DefaultLogLevel        = "info"
	DefaultLogFormat       = "console"
	DefaultReportPath      = "report.json"
	DefaultResultsDir      = "results"
)

var DefaultPercentiles = []float64{25, 50, 75, 90, 99, 99.99}

// Option adjusts a loaded configuration before defaults and validation run.
// Command-line flags are applied this way.
type Option func(*Config) error

// Load reads filename (YAML), then the .env file and the process
// environment, then opts. An empty filename means DefaultConfigFile, which
// may be absent.
func Load(filename string, opts ...Option) (*Config, error) {
	optional := filename == ""
	if optional {
		filename = DefaultConfigFile
	}

	var cfg Config
	data, err := os.ReadFile(filename) //nolint:gosec // config file path is controlled
	switch {
	case err == nil:
		if err = yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse YAML config: %w", err)
		}
	case optional && errors.Is(err, fs.ErrNotExist):
	default:
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err = godotenv.Load(DefaultEnvFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load %s: %w", DefaultEnvFile, err)
	}
	if err = applyEnv(&cfg); err != nil {
		return nil, fmt.Errorf("invalid environment: %w", err)
	}

	for _, opt := range opts {
		if err = opt(&cfg); err != nil {
			return nil, err
		}
	}

	if err = applyDefaults(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	if err = validator.New().Struct(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

func applyEnv(cfg *Config) error {
	lookup := func(key string, target *string) {
		if v, ok := os.LookupEnv(key); ok && strings.TrimSpace(v) != "" {
			*target = strings.TrimSpace(v)
		}
	}

	lookup("PGHOST", &cfg.Postgres.Host)
	lookup("PGUSER", &cfg.Postgres.User)
	lookup("PGPASSWORD", &cfg.Postgres.Password)
	lookup("PGDATABASE", &cfg.Postgres.Database)
	if v, ok := os.LookupEnv("PGPORT"); ok && v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("PGPORT: %w", err)
		}
		cfg.Postgres.Port = port
	}

	lookup("REDIS_URL", &cfg.Redis.URL)
	lookup("MONGO_URI", &cfg.Mongo.URI)
	if v, ok := os.LookupEnv("CASSANDRA_HOSTS"); ok && v != "" {
		cfg.Cassandra.Hosts = splitList(v)
	}
	if v, ok := os.LookupEnv("CASSANDRA_PORT"); ok && v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("CASSANDRA_PORT: %w", err)
		}
		cfg.Cassandra.Port = port
	}

	lookup("INFLUX_URL", &cfg.Influx.URL)
	lookup("INFLUX_TOKEN", &cfg.Influx.Token)
	lookup("INFLUX_DATABASE", &cfg.Influx.Database)
	return nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func applyDefaults(cfg *Config) error {
	if cfg == nil {
		return errors.New("configuration is nil")
	}

	b := &cfg.Benchmark
	if len(b.Concurrency) == 0 {
		b.Concurrency = []int{DefaultConcurrency}
	}

	var err error
	if b.WarmupDuration, err = parseDuration(b.Warmup, DefaultWarmup); err != nil {
		return fmt.Errorf("benchmark warmup: %w", err)
	}
	if b.RunDuration, err = parseDuration(b.Duration, DefaultDuration); err != nil {
		return fmt.Errorf("benchmark duration: %w", err)
	}
	if b.TimeoutDuration, err = parseDuration(b.Timeout, DefaultTimeout); err != nil {
		return fmt.Errorf("benchmark timeout: %w", err)
	}
	if strings.TrimSpace(b.Cooldown) != "" {
		if b.CooldownDuration, err = parseDuration(b.Cooldown, ""); err != nil {
			return fmt.Errorf("benchmark cooldown: %w", err)
		}
	}

	if b.Resolution == 0 {
		b.Resolution = DefaultResolution
	}
	b.Mode = strings.ToLower(strings.TrimSpace(b.Mode))
	if b.Policy == "" {
		b.Policy = DefaultPolicy
	}
	if len(b.Percentiles) == 0 {
		b.Percentiles = DefaultPercentiles
	}
	if b.OutputFormat == "" {
		b.OutputFormat = DefaultOutputFormat
	}

	if strings.TrimSpace(cfg.Container.CPU) == "" {
		cfg.Container.CPU = DefaultCPU
	}
	if cfg.Container.CPU, err = cpuLimit(cfg.Container.CPU, runtime.NumCPU()); err != nil {
		return fmt.Errorf("container cpu: %w", err)
	}
	if strings.TrimSpace(cfg.Container.Memory) == "" {
		cfg.Container.Memory = DefaultMemory
	}
	if cfg.Container.Memory, err = memoryLimit(cfg.Container.Memory); err != nil {
		return fmt.Errorf("container memory: %w", err)
	}
	if cfg.Container.StartTimeoutDuration, err = parseDuration(cfg.Container.StartTimeout, DefaultStartTimeout); err != nil {
		return fmt.Errorf("container start_timeout: %w", err)
	}

	pg := &cfg.Postgres
	if pg.Port == 0 {
		pg.Port = DefaultPostgresPort
	}
	if pg.User == "" {
		pg.User = DefaultPostgresUser
	}
	if pg.Password == "" {
		pg.Password = DefaultPostgresUser
	}
	if pg.Database == "" {
		pg.Database = DefaultPostgresUser
	}
	if pg.Image == "" {
		pg.Image = DefaultPostgresImage
	}
	if pg.Tag == "" {
		pg.Tag = DefaultPostgresTag
	}

	if cfg.Redis.Image == "" {
		cfg.Redis.Image = DefaultRedisImage
	}
	if cfg.Redis.Tag == "" {
		cfg.Redis.Tag = DefaultRedisTag
	}
	if cfg.Mongo.Image == "" {
		cfg.Mongo.Image = DefaultMongoImage
	}
	if cfg.Mongo.Tag == "" {
		cfg.Mongo.Tag = DefaultMongoTag
	}
	if cfg.Mongo.Database == "" {
		cfg.Mongo.Database = DefaultMongoDatabase
	}
	if cfg.Cassandra.Image == "" {
		cfg.Cassandra.Image = DefaultCassandraImage
	}
	if cfg.Cassandra.Tag == "" {
		cfg.Cassandra.Tag = DefaultCassandraTag
	}
	if cfg.Cassandra.Port == 0 {
		cfg.Cassandra.Port = DefaultCassandraPort
	}
	if cfg.Cassandra.Keyspace == "" {
		cfg.Cassandra.Keyspace = DefaultCassandraSpace
	}

	if cfg.Influx.URL == "" {
		cfg.Influx.URL = DefaultInfluxURL
	}
	if cfg.Influx.Database == "" {
		cfg.Influx.Database = DefaultInfluxDatabase
	}

	if cfg.Log.Level == "" {
		cfg.Log.Level = DefaultLogLevel
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = DefaultLogFormat
	}

	if cfg.Report.Path == "" {
		cfg.Report.Path = DefaultReportPath
	}
	if cfg.Report.ResultsDir == "" {
		cfg.Report.ResultsDir = DefaultResultsDir
	}

	return nil
}
