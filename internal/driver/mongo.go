package driver

import (
	"context"
	"fmt"
	"sync"

	"github.com/hashicorp/go-multierror"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/OmJan/aiopg/internal/config"
	"github.com/OmJan/aiopg/internal/runner"
)

const DefaultMongoURI = "mongodb://localhost:27017"

// mongoTarget gives every worker its own client limited to one connection.
// Payloads are database commands in extended JSON.
type mongoTarget struct {
	uri      string
	database string
	clients  []*mongo.Client
	commands sync.Map // payload -> bson.D
}

func openMongo(_ context.Context, cfg *config.Config) (Target, error) {
	uri := cfg.Mongo.URI
	if uri == "" {
		uri = DefaultMongoURI
	}
	return &mongoTarget{uri: uri, database: cfg.Mongo.Database}, nil
}

func (t *mongoTarget) Handles(ctx context.Context, n int) ([]runner.Handle, error) {
	handles := make([]runner.Handle, 0, n)
	for i := range n {
		client, err := mongo.Connect(options.Client().ApplyURI(t.uri).SetMaxPoolSize(1))
		if err != nil {
			return nil, fmt.Errorf("client %d: %w", i, err)
		}
		t.clients = append(t.clients, client)
		if err = client.Ping(ctx, nil); err != nil {
			return nil, fmt.Errorf("client %d: %w", i, err)
		}
		handles = append(handles, client.Database(t.database))
	}
	return handles, nil
}

func parseCommand(payload string) (bson.D, error) {
	var cmd bson.D
	if err := bson.UnmarshalExtJSON([]byte(payload), false, &cmd); err != nil {
		return nil, fmt.Errorf("parse mongo command: %w", err)
	}
	if len(cmd) == 0 {
		return nil, fmt.Errorf("parse mongo command: empty document")
	}
	return cmd, nil
}

func (t *mongoTarget) command(payload string) (bson.D, error) {
	if cmd, ok := t.commands.Load(payload); ok {
		return cmd.(bson.D), nil
	}
	cmd, err := parseCommand(payload)
	if err != nil {
		return nil, err
	}
	t.commands.Store(payload, cmd)
	return cmd, nil
}

// returnsCursor reports whether the command answers with a cursor.
func returnsCursor(cmd bson.D) bool {
	switch cmd[0].Key {
	case "find", "aggregate", "listCollections", "listIndexes":
		return true
	}
	return false
}

func (t *mongoTarget) Execute(ctx context.Context, h runner.Handle, payload string) (int, error) {
	db, err := handle[*mongo.Database](h)
	if err != nil {
		return 0, err
	}
	cmd, err := t.command(payload)
	if err != nil {
		return 0, err
	}

	if !returnsCursor(cmd) {
		var reply struct {
			N int `bson:"n"`
		}
		if err := db.RunCommand(ctx, cmd).Decode(&reply); err != nil {
			return 0, err
		}
		return reply.N, nil
	}

	cursor, err := db.RunCommandCursor(ctx, cmd)
	if err != nil {
		return 0, err
	}
	defer cursor.Close(ctx)

	n := 0
	for cursor.Next(ctx) {
		n++
	}
	return n, cursor.Err()
}

func (t *mongoTarget) Close(ctx context.Context) error {
	var result *multierror.Error
	for _, client := range t.clients {
		if err := client.Disconnect(ctx); err != nil {
			result = multierror.Append(result, err)
		}
	}
	t.clients = nil
	return result.ErrorOrNil()
}
