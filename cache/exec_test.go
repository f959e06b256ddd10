package cache

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/canonical/store-api-go/logger"
	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newExecCache(t *testing.T) *FallbackCache {
	t.Helper()
	c := New(context.Background(), nil, WithNamespace("exec"), WithLogger(logger.NewTestLogger()))
	t.Cleanup(func() { c.Close() })
	return c
}

func TestExecCacheMiss(t *testing.T) {
	ctx := context.Background()
	c := newExecCache(t)

	invoked := false
	found, val, err := Exec(ctx, c, ExecConfig{Key: "key", Expires: time.Minute}, func(ctx context.Context) (string, bool, error) {
		invoked = true
		return "fresh-value", true, nil
	})
	assert.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "fresh-value", val)
	assert.True(t, invoked)

	cached, cachedFound, err := GetAs[string](ctx, c, "key")
	assert.NoError(t, err)
	assert.True(t, cachedFound)
	assert.Equal(t, "fresh-value", cached)
}

func TestExecCacheHit(t *testing.T) {
	ctx := context.Background()
	c := newExecCache(t)
	require.NoError(t, c.Set(ctx, "key", "cached-value", time.Minute))

	invoked := false
	found, val, err := Exec(ctx, c, ExecConfig{Key: "key"}, func(ctx context.Context) (string, bool, error) {
		invoked = true
		return "fresh-value", true, nil
	})
	assert.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "cached-value", val)
	assert.False(t, invoked)
}

func TestExecStructuredValue(t *testing.T) {
	ctx := context.Background()
	c := newExecCache(t)
	cfg := ExecConfig{Key: "snap", Attrs: []Attr{{"name", "lxd"}}}

	fetch := func(ctx context.Context) (snapInfo, bool, error) {
		return snapInfo{Name: "lxd", Arches: []string{"amd64"}}, true, nil
	}
	_, _, err := Exec(ctx, c, cfg, fetch)
	require.NoError(t, err)

	found, val, err := Exec(ctx, c, cfg, func(ctx context.Context) (snapInfo, bool, error) {
		t.Fatal("must be served from cache")
		return snapInfo{}, false, nil
	})
	assert.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "lxd", val.Name)
	assert.Equal(t, []string{"amd64"}, val.Arches)
}

func TestExecInvokerError(t *testing.T) {
	ctx := context.Background()
	c := newExecCache(t)

	expectedErr := errors.New("invoke failed")
	found, val, err := Exec(ctx, c, ExecConfig{Key: "key", Expires: time.Minute}, func(ctx context.Context) (string, bool, error) {
		return "", false, expectedErr
	})
	assert.True(t, errors.Is(err, expectedErr))
	assert.False(t, found)
	assert.Empty(t, val)

	_, cached, _ := GetAs[string](ctx, c, "key")
	assert.False(t, cached)
}

func TestExecNotFoundIsNotCached(t *testing.T) {
	ctx := context.Background()
	c := newExecCache(t)

	var calls int
	for i := 0; i < 2; i++ {
		found, val, err := Exec(ctx, c, ExecConfig{Key: "missing"}, func(ctx context.Context) (int, bool, error) {
			calls++
			return 0, false, nil
		})
		assert.NoError(t, err)
		assert.False(t, found)
		assert.Zero(t, val)
	}
	assert.Equal(t, 2, calls)
}

func TestExecSerializationError(t *testing.T) {
	ctx := context.Background()
	c := newExecCache(t)

	found, _, err := Exec(ctx, c, ExecConfig{Key: "chan"}, func(ctx context.Context) (chan int, bool, error) {
		return make(chan int), true, nil
	})
	assert.False(t, found)
	assert.True(t, errors.Is(err, ErrSerialization))
}

func TestExecDecodeError(t *testing.T) {
	ctx := context.Background()
	c := newExecCache(t)
	require.NoError(t, c.Set(ctx, "key", "not a number", time.Minute))

	_, _, err := Exec(ctx, c, ExecConfig{Key: "key"}, func(ctx context.Context) (int, bool, error) {
		return 1, true, nil
	})
	assert.True(t, errors.Is(err, ErrDeserialization))
}

func TestExecCollapsesConcurrentMisses(t *testing.T) {
	ctx := context.Background()
	c := newExecCache(t)

	var calls atomic.Int32
	release := make(chan struct{})
	var wg sync.WaitGroup
	results := make([]int, 10)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, v, err := Exec(ctx, c, ExecConfig{Key: "slow"}, func(ctx context.Context) (int, bool, error) {
				calls.Add(1)
				<-release
				return 42, true, nil
			})
			assert.NoError(t, err)
			results[i] = v
		}(i)
	}

	require.Eventually(t, func() bool { return calls.Load() == 1 }, time.Second, time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.Equal(t, int32(1), calls.Load())
	for _, v := range results {
		assert.Equal(t, 42, v)
	}
}
