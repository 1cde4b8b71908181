package database

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"github.com/OmJan/aiopg/internal/config"
)

// FixtureRows is how many rows each table is populated with.
const FixtureRows = 100

var ErrUnknownBackend = errors.New("unknown backend")

// Fixture prepares the sa_tbl_1 / sa_tbl_2 data set on one backend before a
// benchmark and removes it afterwards.
type Fixture interface {
	// Setup drops leftovers, creates the tables and populates them.
	Setup(ctx context.Context) error
	Teardown(ctx context.Context) error
	Close(ctx context.Context) error
}

// Open connects a fixture for backend. Backends are named like the driver
// backends: postgres, redis, mongo, cassandra.
func Open(ctx context.Context, backend string, cfg *config.Config) (Fixture, error) {
	switch backend {
	case "postgres":
		return openPostgres(ctx, cfg.Postgres.DSN())
	case "redis":
		return openRedis(ctx, cfg.Redis.URL)
	case "mongo":
		return openMongo(ctx, cfg.Mongo.URI, cfg.Mongo.Database)
	case "cassandra":
		return openCassandra(cfg.Cassandra)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownBackend, backend)
	}
}

// Row is one fixture record. Table2ID is only meaningful for sa_tbl_1.
type Row struct {
	ID         int
	Name       string
	Email      string
	Phone      string
	Table2ID   int
	CustomJSON string
}

type customJSON struct {
	ExternalID int    `json:"external_id"`
	Name       string `json:"name"`
}

// Rows generates the fixture data set: row i gets id i+1 and references
// sa_tbl_2 row i+1.
func Rows() []Row {
	rows := make([]Row, FixtureRows)
	for i := range rows {
		suffix := strconv.Itoa(i)
		doc, _ := json.Marshal(customJSON{ExternalID: i, Name: "name" + suffix})
		rows[i] = Row{
			ID:         i + 1,
			Name:       "name" + suffix,
			Email:      "email" + suffix + "@email.com",
			Phone:      "12345678" + suffix,
			Table2ID:   i + 1,
			CustomJSON: string(doc),
		}
	}
	return rows
}

// Ping reports whether backend accepts connections with the current
// settings. Freshly started containers are polled with it until ready.
func Ping(ctx context.Context, backend string, cfg *config.Config) error {
	f, err := Open(ctx, backend, cfg)
	if err != nil {
		return err
	}
	return f.Close(ctx)
}
