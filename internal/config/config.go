package config

import (
	"fmt"
	"net"
	"net/url"
	"strconv"
	"strings"

	"github.com/OmJan/aiopg/internal/cli"
)

// Managed reports whether the orchestrator has to start the server itself.
func (p PostgresConfig) Managed() bool {
	return strings.TrimSpace(p.Host) == ""
}

func (p PostgresConfig) Addr() string {
	host := p.Host
	if host == "" {
		host = "localhost"
	}
	return net.JoinHostPort(host, strconv.Itoa(p.Port))
}

// DSN is the libpq-style URL understood by pgx and database/sql.
func (p PostgresConfig) DSN() string {
	u := url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(p.User, p.Password),
		Host:   p.Addr(),
		Path:   "/" + p.Database,
	}
	q := url.Values{}
	q.Set("sslmode", "disable")
	u.RawQuery = q.Encode()
	return u.String()
}

func (r RedisConfig) Managed() bool {
	return strings.TrimSpace(r.URL) == ""
}

func (m MongoConfig) Managed() bool {
	return strings.TrimSpace(m.URI) == ""
}

func (c CassandraConfig) Managed() bool {
	return len(c.Hosts) == 0
}

// Environ renders the connection settings as environment variables. The
// orchestrator passes them to every runner subprocess so both sides agree on
// the servers under test.
func (c *Config) Environ() []string {
	env := []string{
		"PGHOST=" + c.Postgres.Host,
		"PGPORT=" + strconv.Itoa(c.Postgres.Port),
		"PGUSER=" + c.Postgres.User,
		"PGPASSWORD=" + c.Postgres.Password,
		"PGDATABASE=" + c.Postgres.Database,
	}
	if c.Redis.URL != "" {
		env = append(env, "REDIS_URL="+c.Redis.URL)
	}
	if c.Mongo.URI != "" {
		env = append(env, "MONGO_URI="+c.Mongo.URI)
	}
	if len(c.Cassandra.Hosts) > 0 {
		env = append(env,
			"CASSANDRA_HOSTS="+strings.Join(c.Cassandra.Hosts, ","),
			"CASSANDRA_PORT="+strconv.Itoa(c.Cassandra.Port),
		)
	}
	return env
}

func (c *Config) Print() {
	cli.Section("Configuration")

	levels := make([]string, len(c.Benchmark.Concurrency))
	for i, l := range c.Benchmark.Concurrency {
		levels[i] = strconv.Itoa(l)
	}

	cli.KeyValue("Concurrency", strings.Join(levels, ", "))
	cli.KeyValue("Warmup", cli.FormatDuration(c.Benchmark.WarmupDuration))
	cli.KeyValue("Duration", cli.FormatDuration(c.Benchmark.RunDuration))
	cli.KeyValue("Timeout", cli.FormatDuration(c.Benchmark.TimeoutDuration))
	cli.KeyValue("Failure policy", c.Benchmark.Policy)

	server := fmt.Sprintf("%s:%s (container)", c.Postgres.Image, c.Postgres.Tag)
	if !c.Postgres.Managed() {
		server = c.Postgres.Addr()
	}
	cli.KeyValue("PostgreSQL", server)
	cli.KeyValue("CPU Limit", c.Container.CPU)
	cli.KeyValue("Memory Limit", c.Container.Memory)

	cooldown := "disabled"
	if c.Benchmark.CooldownDuration > 0 {
		cooldown = cli.FormatDuration(c.Benchmark.CooldownDuration)
	}
	cli.KeyValue("Cooldown", cooldown)

	influx := "disabled"
	if c.Influx.Enabled {
		influx = c.Influx.URL
	}
	cli.KeyValue("InfluxDB", influx)
}
