package orchestrator

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/OmJan/aiopg/internal/cli"
	"github.com/OmJan/aiopg/internal/config"
	"github.com/OmJan/aiopg/internal/container"
	"github.com/OmJan/aiopg/internal/database"
	"github.com/OmJan/aiopg/internal/driver"
)

const (
	stopTimeout = time.Minute
	// Cassandra needs well over a minute to accept CQL connections.
	cassandraReadyAttempts = 90
)

// serverSpec describes the container for a backend that has no configured
// address, or nil when the configuration points at an existing server.
func serverSpec(backend driver.Backend, cfg *config.Config) *container.Spec {
	spec := &container.Spec{
		CPULimit:    cfg.Container.CPU,
		MemoryLimit: cfg.Container.Memory,
		Network:     cfg.Container.Network,
	}
	switch backend {
	case driver.BackendPostgres:
		if !cfg.Postgres.Managed() {
			return nil
		}
		spec.Image, spec.Tag, spec.Port = cfg.Postgres.Image, cfg.Postgres.Tag, 5432
		spec.Env = map[string]string{
			"POSTGRES_USER":     cfg.Postgres.User,
			"POSTGRES_PASSWORD": cfg.Postgres.Password,
			"POSTGRES_DB":       cfg.Postgres.Database,
		}
	case driver.BackendRedis:
		if !cfg.Redis.Managed() {
			return nil
		}
		spec.Image, spec.Tag, spec.Port = cfg.Redis.Image, cfg.Redis.Tag, 6379
	case driver.BackendMongo:
		if !cfg.Mongo.Managed() {
			return nil
		}
		spec.Image, spec.Tag, spec.Port = cfg.Mongo.Image, cfg.Mongo.Tag, 27017
	case driver.BackendCassandra:
		if !cfg.Cassandra.Managed() {
			return nil
		}
		spec.Image, spec.Tag, spec.Port = cfg.Cassandra.Image, cfg.Cassandra.Tag, 9042
		spec.Env = map[string]string{"MAX_HEAP_SIZE": "512M", "HEAP_NEWSIZE": "128M"}
	default:
		return nil
	}
	return spec
}

// point makes cfg address the container started for backend.
func point(backend driver.Backend, cfg *config.Config, c *container.Container) {
	port := c.HostPort
	switch backend {
	case driver.BackendPostgres:
		cfg.Postgres.Host = "127.0.0.1"
		cfg.Postgres.Port = port
	case driver.BackendRedis:
		cfg.Redis.URL = "redis://127.0.0.1:" + strconv.Itoa(port) + "/0"
	case driver.BackendMongo:
		cfg.Mongo.URI = "mongodb://127.0.0.1:" + strconv.Itoa(port)
	case driver.BackendCassandra:
		cfg.Cassandra.Hosts = []string{"127.0.0.1"}
		cfg.Cassandra.Port = port
	}
}

// startServer launches the container for backend, waits until it accepts
// connections and points cfg at it. It returns nil when backend is not
// managed.
func startServer(ctx context.Context, backend driver.Backend, cfg *config.Config, log *zap.Logger) (*container.Container, error) {
	spec := serverSpec(backend, cfg)
	if spec == nil {
		return nil, nil
	}

	image := spec.Ref()
	cli.Infof("Pulling %s...", image)
	if err := container.Pull(ctx, cfg.Container.StartTimeoutDuration, image); err != nil {
		return nil, err
	}

	cli.Infof("Starting %s...", image)
	c, err := container.Start(ctx, cfg.Container.StartTimeoutDuration, spec)
	if err != nil {
		return nil, fmt.Errorf("failed to start %s: %w", backend, err)
	}
	point(backend, cfg, c)
	log.Info("container started", zap.String("backend", string(backend)),
		zap.String("name", c.Name), zap.String("id", string(c.Id)), zap.Int("port", c.HostPort))

	var attempts uint = container.ReadyAttempts
	if backend == driver.BackendCassandra {
		attempts = cassandraReadyAttempts
	}
	err = container.WaitReady(ctx, attempts, func(ctx context.Context) error {
		return database.Ping(ctx, string(backend), cfg)
	})
	if err != nil {
		stopServer(c) //nolint:contextcheck // cleanup must run even if ctx is canceled
		return nil, fmt.Errorf("%s: %w", backend, err)
	}

	if backend == driver.BackendPostgres {
		if err = database.InstallHstore(ctx, cfg.Postgres.DSN()); err != nil {
			stopServer(c) //nolint:contextcheck // cleanup must run even if ctx is canceled
			return nil, fmt.Errorf("failed to install hstore: %w", err)
		}
	}

	cli.Successf("Ready at %s (container: %s)", c.Addr(), c.Name)
	return c, nil
}

func stopServer(c *container.Container) {
	stopCtx, stopCancel := context.WithTimeout(context.Background(), stopTimeout)
	defer stopCancel()
	if err := container.Remove(stopCtx, stopTimeout, c.Id); err != nil {
		cli.Warnf("Failed to stop container %s: %v", c.Name, err)
	}
}
