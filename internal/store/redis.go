package store

import (
	"context"
	"fmt"

	"github.com/redis/rueidis"
)

// Redis stores each key as a plain string value.
type Redis struct {
	client rueidis.Client
}

func OpenRedis(ctx context.Context, opts RedisOptions) (*Redis, error) {
	if opts.Addr == "" {
		return nil, fmt.Errorf("store: redis addr is empty")
	}
	c, err := rueidis.NewClient(rueidis.ClientOption{
		InitAddress: []string{opts.Addr},
		Username:    opts.Username,
		Password:    opts.Password,
		SelectDB:    opts.DB,
		// Plain GET/SET only.
		DisableCache: true,
	})
	if err != nil {
		return nil, fmt.Errorf("redis connect: %w", err)
	}
	if err := c.Do(ctx, c.B().Ping().Build()).Error(); err != nil {
		c.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return &Redis{client: c}, nil
}

func (r *Redis) Get(ctx context.Context, key string) (string, bool, error) {
	v, err := r.client.Do(ctx, r.client.B().Get().Key(key).Build()).ToString()
	if rueidis.IsRedisNil(err) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return v, true, nil
}

func (r *Redis) Set(ctx context.Context, key, value string) error {
	return r.client.Do(ctx, r.client.B().Set().Key(key).Value(value).Build()).Error()
}

func (r *Redis) Remove(ctx context.Context, key string) error {
	return r.client.Do(ctx, r.client.B().Del().Key(key).Build()).Error()
}

func (r *Redis) Close() error {
	r.client.Close()
	return nil
}
