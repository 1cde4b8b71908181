package driver

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/OmJan/aiopg/internal/config"
	"github.com/OmJan/aiopg/internal/runner"
)

var (
	ErrUnknownDriver = errors.New("unknown driver")
	ErrWrongHandle   = errors.New("unexpected handle type")
)

type Backend string

const (
	BackendPostgres  Backend = "postgres"
	BackendRedis     Backend = "redis"
	BackendMongo     Backend = "mongo"
	BackendCassandra Backend = "cassandra"
)

// Target is an opened driver: it hands out one handle per worker, executes
// payloads on them and releases everything it opened on Close.
type Target interface {
	runner.Factory
	runner.Operation
	Close(ctx context.Context) error
}

type Opener func(ctx context.Context, cfg *config.Config) (Target, error)

type Driver struct {
	Name    string
	Backend Backend
	Mode    runner.Mode
	Open    Opener
}

var drivers = []Driver{
	{Name: "pgx", Backend: BackendPostgres, Mode: runner.ModePreemptive, Open: openConn(pgx.QueryExecModeSimpleProtocol)},
	{Name: "pgx_async", Backend: BackendPostgres, Mode: runner.ModeCooperative, Open: openConn(pgx.QueryExecModeSimpleProtocol)},
	{Name: "pgxpool", Backend: BackendPostgres, Mode: runner.ModeCooperative, Open: openPool(pgx.QueryExecModeDescribeExec)},
	{Name: "pgxpool_cache", Backend: BackendPostgres, Mode: runner.ModeCooperative, Open: openPool(pgx.QueryExecModeCacheStatement)},
	{Name: "stdlib", Backend: BackendPostgres, Mode: runner.ModePreemptive, Open: openStdlib},
	{Name: "redis", Backend: BackendRedis, Mode: runner.ModePreemptive, Open: openRedis},
	{Name: "mongo", Backend: BackendMongo, Mode: runner.ModePreemptive, Open: openMongo},
	{Name: "cassandra", Backend: BackendCassandra, Mode: runner.ModePreemptive, Open: openCassandra},
}

func Names() []string {
	names := make([]string, len(drivers))
	for i, d := range drivers {
		names[i] = d.Name
	}
	return names
}

func Lookup(name string) (Driver, error) {
	for _, d := range drivers {
		if d.Name == name {
			return d, nil
		}
	}
	return Driver{}, fmt.Errorf("%w: %q", ErrUnknownDriver, name)
}

// Backends lists the distinct backends the named drivers talk to, in
// registry order.
func Backends(names []string) []Backend {
	seen := make(map[Backend]bool)
	var backends []Backend
	for _, d := range drivers {
		for _, name := range names {
			if d.Name == name && !seen[d.Backend] {
				seen[d.Backend] = true
				backends = append(backends, d.Backend)
			}
		}
	}
	return backends
}

func handle[T any](h runner.Handle) (T, error) {
	v, ok := h.(T)
	if !ok {
		var zero T
		return zero, fmt.Errorf("%w: %T", ErrWrongHandle, h)
	}
	return v, nil
}
