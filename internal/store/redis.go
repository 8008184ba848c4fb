package store

import (
	"context"
	"fmt"
	"strconv"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

// Redis stores each document as a hash {data, mtime} under Prefix+key.
// Data and mtime are written in one MULTI/EXEC so readers see both or neither.
type Redis struct {
	c      *goredis.Client
	Prefix string
}

// OpenRedis connects to addr and verifies the connection with PING.
func OpenRedis(ctx context.Context, addr string, db int, prefix string) (*Redis, error) {
	c := goredis.NewClient(&goredis.Options{Addr: addr, DB: db})
	if err := c.Ping(ctx).Err(); err != nil {
		c.Close()
		return nil, fmt.Errorf("redis store: ping %s: %w", addr, err)
	}
	return NewRedis(c, prefix), nil
}

// NewRedis wraps an existing go-redis client.
func NewRedis(c *goredis.Client, prefix string) *Redis {
	return &Redis{c: c, Prefix: prefix}
}

func (r *Redis) Load(ctx context.Context, key string) (Document, error) {
	vals, err := r.c.HGetAll(ctx, r.Prefix+key).Result()
	if err != nil {
		return Document{}, fmt.Errorf("redis store load %s: %w", key, err)
	}
	data, ok := vals["data"]
	if !ok {
		return Document{}, ErrNotFound
	}
	mtime, _ := strconv.ParseInt(vals["mtime"], 10, 64)
	return Document{Data: []byte(data), ModTime: time.Unix(0, mtime)}, nil
}

func (r *Redis) Save(ctx context.Context, key string, data []byte) error {
	_, err := r.c.TxPipelined(ctx, func(p goredis.Pipeliner) error {
		p.HSet(ctx, r.Prefix+key, "data", data, "mtime", strconv.FormatInt(time.Now().UnixNano(), 10))
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis store save %s: %w", key, err)
	}
	return nil
}

func (r *Redis) Delete(ctx context.Context, key string) error {
	return r.c.Del(ctx, r.Prefix+key).Err()
}

func (r *Redis) Close() error { return r.c.Close() }
