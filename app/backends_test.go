package app

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/agentuity/go-storefront/config"
	"github.com/agentuity/go-storefront/logger"
	"github.com/agentuity/go-storefront/persist"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpenBackends(t *testing.T) {
	ctx := context.Background()
	cfg := config.Default()
	cfg.Storage.Path = filepath.Join(t.TempDir(), "session.db")

	rdb, err := OpenRedis(ctx, cfg)
	require.NoError(t, err)
	assert.Nil(t, rdb, "no driver needs redis")

	storage, err := OpenStorage(ctx, cfg, nil)
	require.NoError(t, err)
	defer storage.Close(ctx)
	require.NoError(t, persist.Save(ctx, storage, ptr("tok"), nil))

	cfg.Storage.Driver = config.DriverMemory
	mem, err := OpenStorage(ctx, cfg, nil)
	require.NoError(t, err)
	found, _, err := mem.Get(ctx, persist.KeyToken)
	require.NoError(t, err)
	assert.False(t, found)

	events, err := OpenEvents(ctx, cfg, logger.NewTestLogger(), nil)
	require.NoError(t, err)
	assert.NoError(t, events.Close())
}

func TestOpenBackendsErrors(t *testing.T) {
	ctx := context.Background()
	cfg := config.Default()

	cfg.Storage.Driver = config.DriverRedis
	_, err := OpenStorage(ctx, cfg, nil)
	assert.Error(t, err)
	cfg.Storage.Driver = "etcd"
	_, err = OpenStorage(ctx, cfg, nil)
	assert.Error(t, err)

	cfg.Events.Driver = config.DriverRedis
	_, err = OpenEvents(ctx, cfg, logger.NewTestLogger(), nil)
	assert.Error(t, err)
	cfg.Events.Driver = "nats"
	_, err = OpenEvents(ctx, cfg, logger.NewTestLogger(), nil)
	assert.Error(t, err)

	cfg.Events.Driver = config.DriverRedis
	cfg.RedisURL = "not a url"
	_, err = OpenRedis(ctx, cfg)
	assert.ErrorContains(t, err, "error parsing redis url")
}
