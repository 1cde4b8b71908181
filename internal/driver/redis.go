package driver

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/hashicorp/go-multierror"
	"github.com/redis/go-redis/v9"

	"github.com/OmJan/aiopg/internal/config"
	"github.com/OmJan/aiopg/internal/runner"
)

const DefaultRedisURL = "redis://localhost:6379/0"

// redisTarget pins one dedicated connection to every worker. Payloads are
// whitespace separated commands, e.g. "SMEMBERS sa_tbl_1:ids".
type redisTarget struct {
	url    string
	client *redis.Client
	conns  []*redis.Conn
}

func openRedis(_ context.Context, cfg *config.Config) (Target, error) {
	url := cfg.Redis.URL
	if url == "" {
		url = DefaultRedisURL
	}
	return &redisTarget{url: url}, nil
}

func (t *redisTarget) Handles(ctx context.Context, n int) ([]runner.Handle, error) {
	opt, err := redis.ParseURL(t.url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	opt.PoolSize = n
	t.client = redis.NewClient(opt)

	handles := make([]runner.Handle, 0, n)
	for i := range n {
		conn := t.client.Conn()
		t.conns = append(t.conns, conn)
		if err := conn.Ping(ctx).Err(); err != nil {
			return nil, fmt.Errorf("connection %d: %w", i, err)
		}
		handles = append(handles, conn)
	}
	return handles, nil
}

func commandArgs(payload string) []any {
	fields := strings.Fields(payload)
	args := make([]any, len(fields))
	for i, f := range fields {
		args[i] = f
	}
	return args
}

// replySize counts the elements of an array reply; a scalar reply counts as
// one row and a nil reply as none.
func replySize(reply any) int {
	switch v := reply.(type) {
	case nil:
		return 0
	case []any:
		return len(v)
	case map[any]any:
		return len(v)
	default:
		return 1
	}
}

func (t *redisTarget) Execute(ctx context.Context, h runner.Handle, payload string) (int, error) {
	conn, err := handle[*redis.Conn](h)
	if err != nil {
		return 0, err
	}
	args := commandArgs(payload)
	if len(args) == 0 {
		return 0, errors.New("empty redis command")
	}

	reply, err := conn.Do(ctx, args...).Result()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return replySize(reply), nil
}

func (t *redisTarget) Close(context.Context) error {
	var result *multierror.Error
	for _, conn := range t.conns {
		if err := conn.Close(); err != nil {
			result = multierror.Append(result, err)
		}
	}
	t.conns = nil
	if t.client != nil {
		if err := t.client.Close(); err != nil {
			result = multierror.Append(result, err)
		}
	}
	return result.ErrorOrNil()
}
