package driver

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/hashicorp/go-multierror"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/stdlib"

	"github.com/OmJan/aiopg/internal/config"
	"github.com/OmJan/aiopg/internal/runner"
)

// stdlibTarget runs payloads through database/sql, one *sql.Conn per worker.
type stdlibTarget struct {
	db    *sql.DB
	conns []*sql.Conn
}

func openStdlib(_ context.Context, cfg *config.Config) (Target, error) {
	connConfig, err := pgx.ParseConfig(cfg.Postgres.DSN())
	if err != nil {
		return nil, fmt.Errorf("parse postgres config: %w", err)
	}
	return &stdlibTarget{db: stdlib.OpenDB(*connConfig)}, nil
}

func (t *stdlibTarget) Handles(ctx context.Context, n int) ([]runner.Handle, error) {
	t.db.SetMaxOpenConns(n)
	t.db.SetMaxIdleConns(n)

	handles := make([]runner.Handle, 0, n)
	for i := range n {
		conn, err := t.db.Conn(ctx)
		if err != nil {
			return nil, fmt.Errorf("connection %d: %w", i, err)
		}
		t.conns = append(t.conns, conn)
		handles = append(handles, conn)
	}
	return handles, nil
}

func returnsRows(payload string) bool {
	fields := strings.Fields(payload)
	if len(fields) == 0 {
		return false
	}
	switch strings.ToUpper(fields[0]) {
	case "SELECT", "WITH", "VALUES", "SHOW", "TABLE":
		return true
	}
	return strings.Contains(strings.ToUpper(payload), " RETURNING ")
}

func (t *stdlibTarget) Execute(ctx context.Context, h runner.Handle, payload string) (int, error) {
	conn, err := handle[*sql.Conn](h)
	if err != nil {
		return 0, err
	}

	if !returnsRows(payload) {
		res, err := conn.ExecContext(ctx, payload)
		if err != nil {
			return 0, err
		}
		n, err := res.RowsAffected()
		return int(n), err
	}

	rows, err := conn.QueryContext(ctx, payload)
	if err != nil {
		return 0, err
	}
	defer rows.Close()

	n := 0
	for rows.Next() {
		n++
	}
	return n, rows.Err()
}

func (t *stdlibTarget) Close(context.Context) error {
	var result *multierror.Error
	for _, conn := range t.conns {
		if err := conn.Close(); err != nil {
			result = multierror.Append(result, err)
		}
	}
	t.conns = nil
	if err := t.db.Close(); err != nil {
		result = multierror.Append(result, err)
	}
	return result.ErrorOrNil()
}
