package eventing

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/agentuity/go-storefront/logger"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vmihailenco/msgpack/v5"
)

func TestMessageEnvelope(t *testing.T) {
	msg := &message{InternalData: []byte("test data"), InternalHeaders: Headers{"key": "value"}, subject: "ignored"}
	buf, err := msgpack.Marshal(msg)
	require.NoError(t, err)

	var decoded message
	require.NoError(t, msgpack.Unmarshal(buf, &decoded))
	assert.Equal(t, []byte("test data"), decoded.Data())
	assert.Equal(t, Headers{"key": "value"}, decoded.Headers())
	assert.Empty(t, decoded.Subject(), "subject comes from the channel, not the envelope")
}

func TestRedisInternalCallback(t *testing.T) {
	log := logger.NewTestLogger()
	c := &redisEventingClient{logger: log}

	t.Run("decodes envelope", func(t *testing.T) {
		buf, err := msgpack.Marshal(&message{InternalData: []byte("hi")})
		require.NoError(t, err)
		var got Message
		c.internalCallback(context.Background(), "storefront.a", buf, func(ctx context.Context, msg Message) { got = msg })
		require.NotNil(t, got)
		assert.Equal(t, []byte("hi"), got.Data())
		assert.Equal(t, "storefront.a", got.Subject())
		assert.NotNil(t, got.Headers())
	})

	t.Run("drops garbage", func(t *testing.T) {
		called := false
		c.internalCallback(context.Background(), "storefront.a", []byte{0xc1}, func(context.Context, Message) { called = true })
		assert.False(t, called)
		assert.True(t, log.Contains("ERROR", "failed to decode message"))
	})
}

func TestRedisClient(t *testing.T) {
	url := os.Getenv("REDIS_URL")
	if url == "" {
		t.Skip("REDIS_URL not set")
	}
	opts, err := redis.ParseURL(url)
	require.NoError(t, err)
	rdb := redis.NewClient(opts)
	defer rdb.Close()

	ctx := context.Background()
	client, err := NewRedisClient(ctx, logger.NewTestLogger(), rdb)
	require.NoError(t, err)

	subject := Subject("test." + time.Now().Format("150405.000000"))
	c := &collector{}
	sub, err := client.Subscribe(ctx, subject, c.callback)
	require.NoError(t, err)

	require.NoError(t, client.Publish(ctx, subject, []byte("hello"), WithHeader("k", "v")))
	require.Eventually(t, func() bool { return len(c.received()) == 1 }, 2*time.Second, 10*time.Millisecond)
	msg := c.received()[0]
	assert.Equal(t, []byte("hello"), msg.Data())
	assert.Equal(t, "v", msg.Headers().Get("k"))
	assert.Equal(t, subject, msg.Subject())

	require.NoError(t, sub.Close())
	require.NoError(t, client.Close())
	require.NoError(t, client.Close())
	assert.ErrorIs(t, client.Publish(ctx, subject, nil), ErrClosed)
}
