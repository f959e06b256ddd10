package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/cockroachdb/errors"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{
		Addr: mr.Addr(),
	})
	t.Cleanup(func() { client.Close() })
	return mr, client
}

func TestRedisProbe(t *testing.T) {
	mr, client := newTestRedis(t)
	b := NewRedis(client, WithQueryTimeout(time.Second))
	assert.NoError(t, b.Probe(context.Background()))

	mr.Close()
	err := b.Probe(context.Background())
	assert.Error(t, err)
	assert.True(t, errors.Is(err, ErrBackend))
}

func TestRedisSetGet(t *testing.T) {
	mr, client := newTestRedis(t)
	b := NewRedis(client)
	ctx := context.Background()

	data, found, err := b.Get(ctx, "ns:key")
	assert.NoError(t, err)
	assert.False(t, found)
	assert.Nil(t, data)

	require.NoError(t, b.SetWithTTL(ctx, "ns:key", []byte(`{"a":1}`), time.Minute))
	data, found, err = b.Get(ctx, "ns:key")
	assert.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, []byte(`{"a":1}`), data)

	// stored as a plain string readable by any client
	raw, err := mr.Get("ns:key")
	require.NoError(t, err)
	assert.Equal(t, `{"a":1}`, raw)
	assert.Equal(t, time.Minute, mr.TTL("ns:key"))
}

func TestRedisExpiry(t *testing.T) {
	mr, client := newTestRedis(t)
	b := NewRedis(client)
	ctx := context.Background()

	require.NoError(t, b.SetWithTTL(ctx, "key", []byte("value"), 2*time.Second))
	mr.FastForward(3 * time.Second)

	_, found, err := b.Get(ctx, "key")
	assert.NoError(t, err)
	assert.False(t, found)
}

func TestRedisDefaultTTL(t *testing.T) {
	mr, client := newTestRedis(t)
	b := NewRedis(client, WithExpires(time.Hour))

	require.NoError(t, b.SetWithTTL(context.Background(), "key", []byte("value"), 0))
	assert.Equal(t, time.Hour, mr.TTL("key"))
}

func TestRedisDelete(t *testing.T) {
	mr, client := newTestRedis(t)
	b := NewRedis(client)
	ctx := context.Background()

	require.NoError(t, b.SetWithTTL(ctx, "key", []byte("value"), time.Minute))
	assert.NoError(t, b.Delete(ctx, "key"))
	assert.False(t, mr.Exists("key"))
	assert.NoError(t, b.Delete(ctx, "missing"))
}

func TestRedisErrorsAreMarked(t *testing.T) {
	mr, client := newTestRedis(t)
	b := NewRedis(client, WithQueryTimeout(100*time.Millisecond))
	ctx := context.Background()
	mr.Close()

	_, _, err := b.Get(ctx, "key")
	assert.True(t, errors.Is(err, ErrBackend))
	assert.Contains(t, err.Error(), `redis get "key"`)

	err = b.SetWithTTL(ctx, "key", []byte("v"), time.Minute)
	assert.True(t, errors.Is(err, ErrBackend))

	err = b.Delete(ctx, "key")
	assert.True(t, errors.Is(err, ErrBackend))
}
