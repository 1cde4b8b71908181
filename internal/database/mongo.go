package database

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

var mongoCollections = []string{"sa_tbl_2", "sa_tbl_1"}

type mongoFixture struct {
	client   *mongo.Client
	database *mongo.Database
}

func openMongo(ctx context.Context, uri, database string) (Fixture, error) {
	if uri == "" {
		uri = "mongodb://localhost:27017"
	}
	client, err := mongo.Connect(options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("mongo fixture: %w", err)
	}
	if err = client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("mongo fixture: %w", err)
	}
	return &mongoFixture{client: client, database: client.Database(database)}, nil
}

func (f *mongoFixture) drop(ctx context.Context) error {
	for _, name := range mongoCollections {
		if err := f.database.Collection(name).Drop(ctx); err != nil {
			return fmt.Errorf("drop %s: %w", name, err)
		}
	}
	return nil
}

func (f *mongoFixture) Setup(ctx context.Context) error {
	if err := f.drop(ctx); err != nil {
		return err
	}

	rows := Rows()
	table2 := make([]any, len(rows))
	table1 := make([]any, len(rows))
	for i, r := range rows {
		custom := bson.D{{Key: "external_id", Value: i}, {Key: "name", Value: r.Name}}
		table2[i] = bson.D{
			{Key: "_id", Value: r.ID}, {Key: "name", Value: r.Name}, {Key: "email", Value: r.Email},
			{Key: "phone", Value: r.Phone}, {Key: "custom_json", Value: custom},
		}
		table1[i] = bson.D{
			{Key: "_id", Value: r.ID}, {Key: "name", Value: r.Name}, {Key: "email", Value: r.Email},
			{Key: "phone", Value: r.Phone}, {Key: "satable2_id", Value: r.Table2ID}, {Key: "custom_json", Value: custom},
		}
	}

	if _, err := f.database.Collection("sa_tbl_2").InsertMany(ctx, table2); err != nil {
		return fmt.Errorf("populate sa_tbl_2: %w", err)
	}
	if _, err := f.database.Collection("sa_tbl_1").InsertMany(ctx, table1); err != nil {
		return fmt.Errorf("populate sa_tbl_1: %w", err)
	}
	return nil
}

func (f *mongoFixture) Teardown(ctx context.Context) error {
	return f.drop(ctx)
}

func (f *mongoFixture) Close(ctx context.Context) error {
	return f.client.Disconnect(ctx)
}
