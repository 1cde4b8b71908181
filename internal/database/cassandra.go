package database

import (
	"context"
	"fmt"

	"github.com/gocql/gocql"

	"github.com/OmJan/aiopg/internal/config"
	"github.com/OmJan/aiopg/internal/driver"
)

func cassandraSetup(keyspace string) []string {
	return []string{
		fmt.Sprintf("CREATE KEYSPACE IF NOT EXISTS %s WITH replication = "+
			"{'class': 'SimpleStrategy', 'replication_factor': 1}", keyspace),
		fmt.Sprintf("DROP TABLE IF EXISTS %s.sa_tbl_1", keyspace),
		fmt.Sprintf("DROP TABLE IF EXISTS %s.sa_tbl_2", keyspace),
		fmt.Sprintf("CREATE TABLE %s.sa_tbl_2 (id int PRIMARY KEY, name text, email text, "+
			"phone text, custom_json text)", keyspace),
		fmt.Sprintf("CREATE TABLE %s.sa_tbl_1 (id uuid PRIMARY KEY, name text, email text, "+
			"phone text, satable2_id int, custom_json text)", keyspace),
	}
}

func cassandraTeardown(keyspace string) []string {
	return []string{
		fmt.Sprintf("DROP TABLE %s.sa_tbl_2", keyspace),
		fmt.Sprintf("DROP TABLE %s.sa_tbl_1", keyspace),
	}
}

type cassandraFixture struct {
	session  *gocql.Session
	keyspace string
}

func openCassandra(cfg config.CassandraConfig) (Fixture, error) {
	hosts := cfg.Hosts
	if len(hosts) == 0 {
		hosts = []string{"localhost"}
	}
	cluster := driver.Cluster(hosts, cfg.Port, "")
	cluster.Consistency = gocql.Quorum
	session, err := cluster.CreateSession()
	if err != nil {
		return nil, fmt.Errorf("cassandra fixture: %w", err)
	}
	return &cassandraFixture{session: session, keyspace: cfg.Keyspace}, nil
}

func (f *cassandraFixture) exec(ctx context.Context, stmts []string) error {
	for _, stmt := range stmts {
		if err := f.session.Query(stmt).WithContext(ctx).Exec(); err != nil {
			return fmt.Errorf("%s: %w", stmt, err)
		}
	}
	return nil
}

func (f *cassandraFixture) Setup(ctx context.Context) error {
	if err := f.exec(ctx, cassandraSetup(f.keyspace)); err != nil {
		return err
	}

	batch := f.session.NewBatch(gocql.UnloggedBatch).WithContext(ctx)
	for _, r := range Rows() {
		batch.Query(fmt.Sprintf("INSERT INTO %s.sa_tbl_2 (id, name, email, phone, custom_json) VALUES (?, ?, ?, ?, ?)", f.keyspace),
			r.ID, r.Name, r.Email, r.Phone, r.CustomJSON)
		batch.Query(fmt.Sprintf("INSERT INTO %s.sa_tbl_1 (id, name, email, phone, satable2_id, custom_json) VALUES (?, ?, ?, ?, ?, ?)", f.keyspace),
			gocql.TimeUUID(), r.Name, r.Email, r.Phone, r.Table2ID, r.CustomJSON)
	}
	if err := f.session.ExecuteBatch(batch); err != nil {
		return fmt.Errorf("populate: %w", err)
	}
	return nil
}

func (f *cassandraFixture) Teardown(ctx context.Context) error {
	return f.exec(ctx, cassandraTeardown(f.keyspace))
}

func (f *cassandraFixture) Close(context.Context) error {
	f.session.Close()
	return nil
}
