package config

import (
	"context"
	"fmt"

	"github.com/layer-3/planclient/adapters/store"
	"github.com/layer-3/planclient/ports"
	"github.com/redis/go-redis/v9"
)

// NewStoreBackend opens the session backend selected by store.driver.
// The returned close function releases it and is never nil.
func NewStoreBackend(ctx context.Context, c Config) (ports.Store, func() error, error) {
	noop := func() error { return nil }

	switch c.Store.Driver {
	case DriverMemory:
		return store.NewMemoryStore(), noop, nil
	case DriverFile:
		return store.NewFileStore(c.Store.Path), noop, nil
	case DriverRedis:
		client, err := NewRedisClient(ctx, c.Redis.URL)
		if err != nil {
			return nil, noop, err
		}
		s := store.NewRedisStore(client, "planner:")
		return s, s.Close, nil
	}
	return nil, noop, fmt.Errorf("unknown store driver %q", c.Store.Driver)
}

// NewRedisClient parses url and checks the server is reachable
func NewRedisClient(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis url: %w", err)
	}

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	return client, nil
}
