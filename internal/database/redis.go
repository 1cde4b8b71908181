package database

import (
	"context"
	"fmt"
	"strconv"

	"github.com/redis/go-redis/v9"
)

const redisPattern = "sa_tbl_*"

type redisFixture struct {
	client *redis.Client
}

func openRedis(ctx context.Context, url string) (Fixture, error) {
	if url == "" {
		url = "redis://localhost:6379/0"
	}
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("redis fixture: %w", err)
	}
	client := redis.NewClient(opt)
	if err = client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis fixture: %w", err)
	}
	return &redisFixture{client: client}, nil
}

func (f *redisFixture) clear(ctx context.Context) error {
	iter := f.client.Scan(ctx, 0, redisPattern, 1000).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return err
	}
	if len(keys) == 0 {
		return nil
	}
	return f.client.Del(ctx, keys...).Err()
}

// Setup stores every row as a hash under "<table>:<id>" and the ids of a
// table in the set "<table>:ids".
func (f *redisFixture) Setup(ctx context.Context) error {
	if err := f.clear(ctx); err != nil {
		return fmt.Errorf("clear: %w", err)
	}

	_, err := f.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, r := range Rows() {
			id := strconv.Itoa(r.ID)
			pipe.HSet(ctx, "sa_tbl_2:"+id, map[string]any{
				"name": r.Name, "email": r.Email, "phone": r.Phone, "custom_json": r.CustomJSON,
			})
			pipe.SAdd(ctx, "sa_tbl_2:ids", id)
			pipe.HSet(ctx, "sa_tbl_1:"+id, map[string]any{
				"name": r.Name, "email": r.Email, "phone": r.Phone, "custom_json": r.CustomJSON,
				"satable2_id": strconv.Itoa(r.Table2ID),
			})
			pipe.SAdd(ctx, "sa_tbl_1:ids", id)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("populate: %w", err)
	}
	return nil
}

func (f *redisFixture) Teardown(ctx context.Context) error {
	return f.clear(ctx)
}

func (f *redisFixture) Close(context.Context) error {
	return f.client.Close()
}
