package persist

import (
	"context"

	"github.com/cockroachdb/errors"
	"github.com/redis/go-redis/v9"
)

type redisStorage struct {
	client *redis.Client
	cfg    config
}

var _ Storage = (*redisStorage)(nil)

// NewRedis returns a Storage backed by Redis. Keys never expire.
// The caller owns the redis.Client lifecycle; Close is a no-op on the client.
func NewRedis(client *redis.Client, opts ...Option) Storage {
	return &redisStorage{
		client: client,
		cfg:    applyOptions(opts),
	}
}

func (s *redisStorage) prefixKey(key string) string {
	if s.cfg.prefix == "" {
		return key
	}
	return s.cfg.prefix + ":" + key
}

func (s *redisStorage) Get(ctx context.Context, key string) (bool, []byte, error) {
	qctx, cancel := s.cfg.queryCtx(ctx)
	defer cancel()
	data, err := s.client.Get(qctx, s.prefixKey(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return false, nil, nil
	}
	if err != nil {
		return false, nil, errors.Wrapf(err, "redis get %s", key)
	}
	return true, data, nil
}

func (s *redisStorage) Set(ctx context.Context, key string, val []byte) error {
	qctx, cancel := s.cfg.queryCtx(ctx)
	defer cancel()
	if err := s.client.Set(qctx, s.prefixKey(key), val, 0).Err(); err != nil {
		return errors.Wrapf(err, "redis set %s", key)
	}
	return nil
}

func (s *redisStorage) Delete(ctx context.Context, key string) (bool, error) {
	qctx, cancel := s.cfg.queryCtx(ctx)
	defer cancel()
	n, err := s.client.Del(qctx, s.prefixKey(key)).Result()
	if err != nil {
		return false, errors.Wrapf(err, "redis del %s", key)
	}
	return n > 0, nil
}

// Close is a no-op; the caller owns the redis.Client lifecycle.
func (s *redisStorage) Close(_ context.Context) error {
	return nil
}
