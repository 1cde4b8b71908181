package database

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
)

const (
	postgresSetup = "DROP TABLE IF EXISTS sa_tbl_2 CASCADE; DROP TABLE IF EXISTS sa_tbl_1 CASCADE; " +
		"CREATE TABLE sa_tbl_2 (id SERIAL NOT NULL, name VARCHAR(80), email VARCHAR(80), phone VARCHAR(80), " +
		"custom_json JSON, PRIMARY KEY (id)); " +
		"CREATE TABLE sa_tbl_1 (id SERIAL NOT NULL, name VARCHAR(80), email VARCHAR(80), phone VARCHAR(80), " +
		"satable2_id INTEGER, custom_json JSON, PRIMARY KEY (id), " +
		"FOREIGN KEY(satable2_id) REFERENCES sa_tbl_2 (id) ON DELETE SET NULL);"
	postgresTeardown = "DROP TABLE sa_tbl_2 CASCADE; DROP TABLE sa_tbl_1 CASCADE;"

	// HstoreExtension is installed once on a freshly started server.
	HstoreExtension = "CREATE EXTENSION IF NOT EXISTS hstore"
)

// statements splits a script on ';' and drops empty pieces.
func statements(script string) []string {
	var out []string
	for _, s := range strings.Split(script, ";") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

type postgresFixture struct {
	conn *pgx.Conn
}

func openPostgres(ctx context.Context, dsn string) (Fixture, error) {
	conn, err := pgx.Connect(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres fixture: %w", err)
	}
	return &postgresFixture{conn: conn}, nil
}

func (f *postgresFixture) exec(ctx context.Context, script string) error {
	for _, stmt := range statements(script) {
		if _, err := f.conn.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("%s: %w", stmt, err)
		}
	}
	return nil
}

func (f *postgresFixture) Setup(ctx context.Context) error {
	if err := f.exec(ctx, postgresSetup); err != nil {
		return err
	}

	rows := Rows()
	table2 := make([][]any, len(rows))
	table1 := make([][]any, len(rows))
	for i, r := range rows {
		table2[i] = []any{r.ID, r.Name, r.Email, r.Phone, r.CustomJSON}
		table1[i] = []any{r.Name, r.Email, r.Phone, r.CustomJSON, r.Table2ID}
	}

	if _, err := f.conn.CopyFrom(ctx, pgx.Identifier{"sa_tbl_2"},
		[]string{"id", "name", "email", "phone", "custom_json"}, pgx.CopyFromRows(table2)); err != nil {
		return fmt.Errorf("populate sa_tbl_2: %w", err)
	}
	if _, err := f.conn.CopyFrom(ctx, pgx.Identifier{"sa_tbl_1"},
		[]string{"name", "email", "phone", "custom_json", "satable2_id"}, pgx.CopyFromRows(table1)); err != nil {
		return fmt.Errorf("populate sa_tbl_1: %w", err)
	}
	return nil
}

func (f *postgresFixture) Teardown(ctx context.Context) error {
	return f.exec(ctx, postgresTeardown)
}

func (f *postgresFixture) Close(ctx context.Context) error {
	return f.conn.Close(ctx)
}

// InstallHstore prepares a new server the way the benchmarks expect it.
func InstallHstore(ctx context.Context, dsn string) error {
	conn, err := pgx.Connect(ctx, dsn)
	if err != nil {
		return err
	}
	defer conn.Close(ctx)

	_, err = conn.Exec(ctx, HstoreExtension)
	return err
}
