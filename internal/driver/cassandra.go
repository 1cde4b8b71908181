package driver

import (
	"context"
	"fmt"

	"github.com/gocql/gocql"

	"github.com/OmJan/aiopg/internal/config"
	"github.com/OmJan/aiopg/internal/runner"
)

// cassandraTarget opens one session per worker with a single connection per
// host. Payloads are CQL statements.
type cassandraTarget struct {
	hosts    []string
	port     int
	keyspace string
	sessions []*gocql.Session
}

func openCassandra(_ context.Context, cfg *config.Config) (Target, error) {
	hosts := cfg.Cassandra.Hosts
	if len(hosts) == 0 {
		hosts = []string{"localhost"}
	}
	return &cassandraTarget{hosts: hosts, port: cfg.Cassandra.Port, keyspace: cfg.Cassandra.Keyspace}, nil
}

// Cluster builds the cluster configuration shared by the driver and the
// fixtures. An empty keyspace connects without one.
func Cluster(hosts []string, port int, keyspace string) *gocql.ClusterConfig {
	cluster := gocql.NewCluster(hosts...)
	cluster.Port = port
	cluster.Keyspace = keyspace
	cluster.Consistency = gocql.One
	cluster.NumConns = 1
	return cluster
}

func (t *cassandraTarget) Handles(_ context.Context, n int) ([]runner.Handle, error) {
	cluster := Cluster(t.hosts, t.port, t.keyspace)
	handles := make([]runner.Handle, 0, n)
	for i := range n {
		session, err := cluster.CreateSession()
		if err != nil {
			return nil, fmt.Errorf("session %d: %w", i, err)
		}
		t.sessions = append(t.sessions, session)
		handles = append(handles, session)
	}
	return handles, nil
}

func (t *cassandraTarget) Execute(ctx context.Context, h runner.Handle, payload string) (int, error) {
	session, err := handle[*gocql.Session](h)
	if err != nil {
		return 0, err
	}

	iter := session.Query(payload).WithContext(ctx).Iter()
	if len(iter.Columns()) == 0 {
		if err := iter.Close(); err != nil {
			return 0, err
		}
		return 1, nil
	}

	n := 0
	row := make(map[string]any)
	for iter.MapScan(row) {
		n++
		clear(row)
	}
	if err := iter.Close(); err != nil {
		return 0, err
	}
	return n, nil
}

func (t *cassandraTarget) Close(context.Context) error {
	for _, session := range t.sessions {
		session.Close()
	}
	t.sessions = nil
	return nil
}
