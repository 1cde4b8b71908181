package config

import "time"

type Config struct {
	Benchmark BenchmarkConfig `yaml:"benchmark"`
	Container ContainerConfig `yaml:"container"`
	Postgres  PostgresConfig  `yaml:"postgres"`
	Redis     RedisConfig     `yaml:"redis"`
	Mongo     MongoConfig     `yaml:"mongo"`
	Cassandra CassandraConfig `yaml:"cassandra"`
	Influx    InfluxConfig    `yaml:"influx"`
	Log       LogConfig       `yaml:"log"`
	Report    ReportConfig    `yaml:"report"`
}

type BenchmarkConfig struct {
	Concurrency  []int     `yaml:"concurrency" validate:"min=1,dive,gt=0"`
	Warmup       string    `yaml:"warmup"`
	Duration     string    `yaml:"duration"`
	Timeout      string    `yaml:"timeout"`
	Cooldown     string    `yaml:"cooldown,omitempty"`
	Resolution   int       `yaml:"resolution" validate:"gt=0"`
	Mode         string    `yaml:"mode,omitempty" validate:"omitempty,oneof=preemptive cooperative"`
	Policy       string    `yaml:"policy" validate:"oneof=abort exclude"`
	Percentiles  []float64 `yaml:"percentiles" validate:"dive,gte=0,lte=100"`
	Benchmarks   []string  `yaml:"benchmarks,omitempty"`
	Queries      []string  `yaml:"queries,omitempty"`
	OutputFormat string    `yaml:"output_format" validate:"oneof=text json"`

	WarmupDuration   time.Duration `yaml:"-" validate:"gte=0"`
	RunDuration      time.Duration `yaml:"-" validate:"gt=0"`
	TimeoutDuration  time.Duration `yaml:"-" validate:"gt=0"`
	CooldownDuration time.Duration `yaml:"-" validate:"gte=0"`
}

type ContainerConfig struct {
	CPU          string `yaml:"cpu"`
	Memory       string `yaml:"memory"`
	Network      string `yaml:"network,omitempty"`
	StartTimeout string `yaml:"start_timeout"`

	StartTimeoutDuration time.Duration `yaml:"-" validate:"gt=0"`
}

// PostgresConfig describes the server under test. An empty Host means the
// orchestrator starts a container and fills the address in itself.
type PostgresConfig struct {
	Host     string `yaml:"host,omitempty"`
	Port     int    `yaml:"port" validate:"gt=0,lte=65535"`
	User     string `yaml:"user" validate:"required"`
	Password string `yaml:"password"`
	Database string `yaml:"database" validate:"required"`
	Image    string `yaml:"image" validate:"required"`
	Tag      string `yaml:"tag" validate:"required"`
}

type RedisConfig struct {
	URL   string `yaml:"url,omitempty" validate:"omitempty,url"`
	Image string `yaml:"image" validate:"required"`
	Tag   string `yaml:"tag" validate:"required"`
}

type MongoConfig struct {
	URI      string `yaml:"uri,omitempty"`
	Database string `yaml:"database" validate:"required"`
	Image    string `yaml:"image" validate:"required"`
	Tag      string `yaml:"tag" validate:"required"`
}

type CassandraConfig struct {
	Hosts    []string `yaml:"hosts,omitempty"`
	Port     int      `yaml:"port" validate:"gt=0,lte=65535"`
	Keyspace string   `yaml:"keyspace" validate:"required"`
	Image    string   `yaml:"image" validate:"required"`
	Tag      string   `yaml:"tag" validate:"required"`
}

type InfluxConfig struct {
	Enabled  bool   `yaml:"enabled"`
	URL      string `yaml:"url" validate:"omitempty,url"`
	Database string `yaml:"database"`
	Token    string `yaml:"token"`
}

type LogConfig struct {
	Level  string `yaml:"level" validate:"oneof=debug info warn error"`
	Format string `yaml:"format" validate:"oneof=console json"`
}

type ReportConfig struct {
	Path       string `yaml:"path" validate:"required"`
	ResultsDir string `yaml:"results_dir" validate:"required"`
}
