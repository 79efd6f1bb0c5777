// Package store provides the durable string key-value capability the cache
// and quota layers persist through.
package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

var ErrUnknownDriver = errors.New("store: unknown driver")

// KV is a string-keyed store that survives process restarts. Get reports
// found=false for a missing key; that is not an error.
//
//go:generate mockgen -package=cache_test -destination=../cache/mock_kv_test.go -source=store.go KV
//go:generate mockgen -package=quota_test -destination=../quota/mock_kv_test.go -source=store.go KV
type KV interface {
	Get(ctx context.Context, key string) (value string, found bool, err error)
	Set(ctx context.Context, key, value string) error
	Remove(ctx context.Context, key string) error
	Close() error
}

const (
	DriverMemory = "memory"
	DriverSQLite = "sqlite"
	DriverRedis  = "redis"
)

type RedisOptions struct {
	Addr     string
	Username string
	Password string
	DB       int
}

type Options struct {
	Driver     string
	SQLitePath string
	Redis      RedisOptions
}

// Open returns the driver named by opts.Driver.
func Open(ctx context.Context, opts Options) (KV, error) {
	switch strings.ToLower(strings.TrimSpace(opts.Driver)) {
	case DriverMemory:
		return NewMemory(), nil
	case DriverSQLite, "":
		if opts.SQLitePath == "" {
			return nil, fmt.Errorf("store: sqlite path is empty")
		}
		return OpenSQLite(ctx, opts.SQLitePath)
	case DriverRedis:
		return OpenRedis(ctx, opts.Redis)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownDriver, opts.Driver)
	}
}
