package cache

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
)

// ExecConfig configures the Exec helper.
type ExecConfig struct {
	// Key is the cache key. Required.
	Key string
	// Attrs are appended to Key the same way as for Get and Set.
	Attrs []Attr
	// Expires is the TTL for cached values. The cache default applies if zero.
	Expires time.Duration
}

// Invoker is a function that produces a value of type T.
// The bool return indicates whether a value was found. Return false to signal
// "not found" without caching a zero value (e.g. a 404 from upstream).
type Invoker[T any] func(ctx context.Context) (T, bool, error)

type execResult[T any] struct {
	value T
	found bool
}

// Exec is a cache-aside helper. On a hit it returns the cached value. On a
// miss it calls invoke, once per key no matter how many goroutines miss at
// the same time, stores the value when invoke reports it found, and returns
// it. Errors from invoke, from decoding a cached value and from serializing
// a fresh one are returned; backend failures are only logged.
func Exec[T any](ctx context.Context, c *FallbackCache, config ExecConfig, invoke Invoker[T]) (bool, T, error) {
	var zero T
	cached, found, err := GetAs[T](ctx, c, config.Key, config.Attrs...)
	if err != nil {
		return false, zero, err
	}
	if found {
		return true, cached, nil
	}

	res, err, _ := c.group.Do(c.Key(config.Key, config.Attrs...), func() (any, error) {
		result, ok, err := invoke(ctx)
		if err != nil || !ok {
			return execResult[T]{}, err
		}
		if err := c.Set(ctx, config.Key, result, config.Expires, config.Attrs...); err != nil {
			return execResult[T]{}, err
		}
		return execResult[T]{value: result, found: true}, nil
	})
	if err != nil {
		return false, zero, err
	}
	r, ok := res.(execResult[T])
	if !ok {
		return false, zero, errors.Newf("cache: concurrent Exec calls for %q disagree on the value type", config.Key)
	}
	return r.found, r.value, nil
}
