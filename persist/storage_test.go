package persist

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func runStorageTests(t *testing.T, s Storage) {
	ctx := context.Background()

	t.Run("miss", func(t *testing.T) {
		found, val, err := s.Get(ctx, "missing")
		assert.NoError(t, err)
		assert.False(t, found)
		assert.Nil(t, val)
	})

	t.Run("set get", func(t *testing.T) {
		require.NoError(t, s.Set(ctx, "k", []byte("value")))
		found, val, err := s.Get(ctx, "k")
		assert.NoError(t, err)
		assert.True(t, found)
		assert.Equal(t, []byte("value"), val)
	})

	t.Run("overwrite", func(t *testing.T) {
		require.NoError(t, s.Set(ctx, "k", []byte("v1")))
		require.NoError(t, s.Set(ctx, "k", []byte("v2")))
		_, val, err := s.Get(ctx, "k")
		assert.NoError(t, err)
		assert.Equal(t, []byte("v2"), val)
	})

	t.Run("empty value is present", func(t *testing.T) {
		require.NoError(t, s.Set(ctx, "empty", []byte{}))
		found, val, err := s.Get(ctx, "empty")
		assert.NoError(t, err)
		assert.True(t, found)
		assert.Empty(t, val)
	})

	t.Run("delete", func(t *testing.T) {
		require.NoError(t, s.Set(ctx, "d", []byte("x")))
		ok, err := s.Delete(ctx, "d")
		assert.NoError(t, err)
		assert.True(t, ok)
		ok, err = s.Delete(ctx, "d")
		assert.NoError(t, err)
		assert.False(t, ok)
		found, _, err := s.Get(ctx, "d")
		assert.NoError(t, err)
		assert.False(t, found)
	})
}

func TestMemoryStorage(t *testing.T) {
	s := NewMemory()
	runStorageTests(t, s)

	t.Run("values are copied", func(t *testing.T) {
		buf := []byte("abc")
		require.NoError(t, s.Set(context.Background(), "c", buf))
		buf[0] = 'x'
		_, val, _ := s.Get(context.Background(), "c")
		assert.Equal(t, []byte("abc"), val)
	})

	require.NoError(t, s.Close(context.Background()))
	require.NoError(t, s.Close(context.Background()))
	_, _, err := s.Get(context.Background(), "k")
	assert.ErrorIs(t, err, ErrClosed)
	assert.ErrorIs(t, s.Set(context.Background(), "k", nil), ErrClosed)
}

func TestSQLiteStorage(t *testing.T) {
	s, err := NewSQLite(context.Background(), ":memory:", WithQueryTimeout(time.Second))
	require.NoError(t, err)
	defer s.Close(context.Background())
	runStorageTests(t, s)
}

func TestSQLiteStorageSurvivesReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "session.db")

	s, err := NewSQLite(ctx, path)
	require.NoError(t, err)
	require.NoError(t, s.Set(ctx, KeyToken, []byte("tok-A")))
	require.NoError(t, s.Close(ctx))
	require.NoError(t, s.Close(ctx))

	s, err = NewSQLite(ctx, path)
	require.NoError(t, err)
	defer s.Close(ctx)
	found, val, err := s.Get(ctx, KeyToken)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "tok-A", string(val))
}

func TestSQLiteStorageBadPath(t *testing.T) {
	_, err := NewSQLite(context.Background(), filepath.Join(t.TempDir(), "missing", "dir", "session.db"))
	assert.Error(t, err)
}

func newTestRedis(t *testing.T) *redis.Client {
	t.Helper()
	url := os.Getenv("REDIS_URL")
	if url == "" {
		t.Skip("REDIS_URL not set")
	}
	opts, err := redis.ParseURL(url)
	require.NoError(t, err)
	client := redis.NewClient(opts)
	t.Cleanup(func() { client.Close() })
	require.NoError(t, client.Ping(context.Background()).Err())
	return client
}

func TestRedisStorage(t *testing.T) {
	client := newTestRedis(t)
	prefix := "persist-test-" + time.Now().Format("150405.000000")
	s := NewRedis(client, WithPrefix(prefix))
	t.Cleanup(func() {
		keys, _ := client.Keys(context.Background(), prefix+":*").Result()
		if len(keys) > 0 {
			client.Del(context.Background(), keys...)
		}
	})
	runStorageTests(t, s)

	t.Run("prefixed keys", func(t *testing.T) {
		require.NoError(t, s.Set(context.Background(), "p", []byte("v")))
		val, err := client.Get(context.Background(), prefix+":p").Result()
		require.NoError(t, err)
		assert.Equal(t, "v", val)
	})
	assert.NoError(t, s.Close(context.Background()))
}

func TestRedisStorageUnreachable(t *testing.T) {
	client := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1", MaxRetries: -1, DialTimeout: 100 * time.Millisecond})
	defer client.Close()
	s := NewRedis(client, WithQueryTimeout(500*time.Millisecond))
	_, _, err := s.Get(context.Background(), "k")
	assert.ErrorContains(t, err, "redis get k")
	assert.Error(t, s.Set(context.Background(), "k", []byte("v")))
	_, err = s.Delete(context.Background(), "k")
	assert.Error(t, err)
}
