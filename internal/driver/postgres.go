package driver

import (
	"context"
	"fmt"

	"github.com/hashicorp/go-multierror"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/OmJan/aiopg/internal/config"
	"github.com/OmJan/aiopg/internal/runner"
)

// connTarget gives every worker its own connection.
type connTarget struct {
	config *pgx.ConnConfig
	conns  []*pgx.Conn
}

func openConn(mode pgx.QueryExecMode) Opener {
	return func(_ context.Context, cfg *config.Config) (Target, error) {
		connConfig, err := pgx.ParseConfig(cfg.Postgres.DSN())
		if err != nil {
			return nil, fmt.Errorf("parse postgres config: %w", err)
		}
		connConfig.DefaultQueryExecMode = mode
		return &connTarget{config: connConfig}, nil
	}
}

func (t *connTarget) Handles(ctx context.Context, n int) ([]runner.Handle, error) {
	handles := make([]runner.Handle, 0, n)
	for i := range n {
		conn, err := pgx.ConnectConfig(ctx, t.config)
		if err != nil {
			return nil, fmt.Errorf("connection %d: %w", i, err)
		}
		t.conns = append(t.conns, conn)
		handles = append(handles, conn)
	}
	return handles, nil
}

func (t *connTarget) Execute(ctx context.Context, h runner.Handle, payload string) (int, error) {
	conn, err := handle[*pgx.Conn](h)
	if err != nil {
		return 0, err
	}
	rows, err := conn.Query(ctx, payload)
	if err != nil {
		return 0, err
	}
	return drain(rows)
}

func (t *connTarget) Close(ctx context.Context) error {
	var result *multierror.Error
	for _, conn := range t.conns {
		if err := conn.Close(ctx); err != nil {
			result = multierror.Append(result, err)
		}
	}
	t.conns = nil
	return result.ErrorOrNil()
}

// drain consumes a result set and reports the rows it produced or touched.
func drain(rows pgx.Rows) (int, error) {
	for rows.Next() {
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return 0, err
	}
	return int(rows.CommandTag().RowsAffected()), nil
}

// poolHandle is a worker's view of the shared pool. Each call acquires a
// connection for the duration of one query.
type poolHandle struct {
	pool *pgxpool.Pool
}

type poolTarget struct {
	mode pgx.QueryExecMode
	dsn  string
	pool *pgxpool.Pool
}

func openPool(mode pgx.QueryExecMode) Opener {
	return func(_ context.Context, cfg *config.Config) (Target, error) {
		return &poolTarget{mode: mode, dsn: cfg.Postgres.DSN()}, nil
	}
}

func (t *poolTarget) Handles(ctx context.Context, n int) ([]runner.Handle, error) {
	poolConfig, err := pgxpool.ParseConfig(t.dsn)
	if err != nil {
		return nil, fmt.Errorf("parse pool config: %w", err)
	}
	poolConfig.MaxConns = int32(n) //nolint:gosec // concurrency is validated positive
	poolConfig.MinConns = int32(n) //nolint:gosec // concurrency is validated positive
	poolConfig.ConnConfig.DefaultQueryExecMode = t.mode

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}
	if err = pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping pool: %w", err)
	}
	t.pool = pool

	handles := make([]runner.Handle, n)
	for i := range handles {
		handles[i] = &poolHandle{pool: pool}
	}
	return handles, nil
}

func (t *poolTarget) Execute(ctx context.Context, h runner.Handle, payload string) (int, error) {
	ph, err := handle[*poolHandle](h)
	if err != nil {
		return 0, err
	}
	rows, err := ph.pool.Query(ctx, payload)
	if err != nil {
		return 0, err
	}
	return drain(rows)
}

func (t *poolTarget) Close(context.Context) error {
	if t.pool != nil {
		t.pool.Close()
		t.pool = nil
	}
	return nil
}
