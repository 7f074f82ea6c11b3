package app

import (
	"context"
	"fmt"

	"github.com/agentuity/go-storefront/config"
	"github.com/agentuity/go-storefront/eventing"
	"github.com/agentuity/go-storefront/logger"
	"github.com/agentuity/go-storefront/persist"
	"github.com/redis/go-redis/v9"
)

// OpenRedis returns a client for cfg.RedisURL when a configured driver needs
// one, or nil otherwise. The caller closes it after the App has stopped.
func OpenRedis(ctx context.Context, cfg config.Config) (*redis.Client, error) {
	if cfg.Storage.Driver != config.DriverRedis && cfg.Events.Driver != config.DriverRedis {
		return nil, nil
	}
	opts, err := redis.ParseURL(cfg.RedisURL.Text())
	if err != nil {
		return nil, fmt.Errorf("error parsing redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("error connecting to redis: %w", err)
	}
	return client, nil
}

// OpenStorage builds the Storage selected by cfg.Storage.Driver.
func OpenStorage(ctx context.Context, cfg config.Config, rdb *redis.Client) (persist.Storage, error) {
	opts := []persist.Option{
		persist.WithQueryTimeout(cfg.Storage.QueryTimeout.Std()),
		persist.WithPrefix(cfg.Storage.Prefix),
	}
	switch cfg.Storage.Driver {
	case config.DriverMemory:
		return persist.NewMemory(), nil
	case config.DriverSQLite:
		return persist.NewSQLite(ctx, cfg.Storage.Path, opts...)
	case config.DriverRedis:
		if rdb == nil {
			return nil, fmt.Errorf("redis storage requires a redis client")
		}
		return persist.NewRedis(rdb, opts...), nil
	}
	return nil, fmt.Errorf("unknown storage driver %q", cfg.Storage.Driver)
}

// OpenEvents builds the eventing Client selected by cfg.Events.Driver.
func OpenEvents(ctx context.Context, cfg config.Config, log logger.Logger, rdb *redis.Client) (eventing.Client, error) {
	switch cfg.Events.Driver {
	case config.DriverMemory:
		return eventing.NewMemoryClient(log), nil
	case config.DriverRedis:
		if rdb == nil {
			return nil, fmt.Errorf("redis events require a redis client")
		}
		return eventing.NewRedisClient(ctx, log, rdb)
	}
	return nil, fmt.Errorf("unknown events driver %q", cfg.Events.Driver)
}
