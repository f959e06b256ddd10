package cache

import (
	"context"
	"time"

	"github.com/canonical/store-api-go/logger"
	"golang.org/x/sync/singleflight"
)

// FallbackCache reads and writes through a networked Backend when it
// answered the probe made by New, and through a bounded Local store when it
// did not. The choice is made once; an unreachable backend is not retried
// for the lifetime of the cache.
//
// Backend failures are logged and never returned. Serialization and
// deserialization failures are always returned.
type FallbackCache struct {
	backend   Backend
	available bool
	local     *Local
	log       logger.Logger
	cfg       config
	group     singleflight.Group
}

// New probes backend once and returns a cache bound to the outcome. A nil
// backend yields a cache that only uses the local store.
func New(ctx context.Context, backend Backend, opts ...Option) *FallbackCache {
	cfg := applyOptions(opts)
	c := &FallbackCache{
		backend: backend,
		local:   NewLocal(ctx, opts...),
		log:     cfg.logger,
		cfg:     cfg,
	}
	if cfg.namespace != "" {
		c.log = logger.WithKV(c.log, "namespace", cfg.namespace)
	}
	switch {
	case backend == nil:
		c.log.Warn("no cache backend configured, using local store")
	default:
		qctx, cancel := queryCtx(ctx, cfg)
		err := backend.Probe(qctx)
		cancel()
		if err != nil {
			c.log.Warn("cache backend unavailable, using local store: %v", err)
		} else {
			c.available = true
		}
	}
	return c
}

// Available reports whether the backend answered the construction probe.
func (c *FallbackCache) Available() bool {
	return c.available
}

// Namespace returns the prefix applied to every key.
func (c *FallbackCache) Namespace() string {
	return c.cfg.namespace
}

// Key returns the full key used in both tiers for key and attrs.
func (c *FallbackCache) Key(key string, attrs ...Attr) string {
	return BuildKey(c.cfg.namespace, key, attrs...)
}

// Get returns the value stored under key read back as shape. A missing key
// yields (nil, false, nil).
func (c *FallbackCache) Get(ctx context.Context, key string, shape Shape, attrs ...Attr) (any, bool, error) {
	raw, found := c.lookup(ctx, c.Key(key, attrs...))
	if !found {
		return nil, false, nil
	}
	val, err := Deserialize(raw, shape)
	if err != nil {
		return nil, false, err
	}
	return val, true, nil
}

// GetAs is Get decoding into a T with Decode.
func GetAs[T any](ctx context.Context, c *FallbackCache, key string, attrs ...Attr) (T, bool, error) {
	var zero T
	raw, found := c.lookup(ctx, c.Key(key, attrs...))
	if !found {
		return zero, false, nil
	}
	val, err := Decode[T](raw)
	if err != nil {
		return zero, false, err
	}
	return val, true, nil
}

func (c *FallbackCache) lookup(ctx context.Context, fullKey string) (string, bool) {
	if c.available {
		data, found, err := c.backend.Get(ctx, fullKey)
		if err == nil {
			return string(data), found
		}
		c.log.Error("cache get %s: %v", fullKey, err)
	}
	return c.local.Get(fullKey)
}

// Set serializes value and stores it under key for ttl; ttl <= 0 uses the
// configured default. Only serialization errors are returned.
func (c *FallbackCache) Set(ctx context.Context, key string, value any, ttl time.Duration, attrs ...Attr) error {
	data, err := Serialize(value)
	if err != nil {
		return err
	}
	if ttl <= 0 {
		ttl = c.cfg.defaultExpires
	}
	fullKey := c.Key(key, attrs...)
	if c.available {
		if err := c.backend.SetWithTTL(ctx, fullKey, []byte(data), ttl); err != nil {
			c.log.Error("cache set %s: %v", fullKey, err)
		}
		return nil
	}
	c.local.Set(fullKey, data, ttl)
	return nil
}

// Delete removes key from the active tier. Missing keys are not an error.
func (c *FallbackCache) Delete(ctx context.Context, key string, attrs ...Attr) {
	fullKey := c.Key(key, attrs...)
	if c.available {
		if err := c.backend.Delete(ctx, fullKey); err != nil {
			c.log.Error("cache delete %s: %v", fullKey, err)
		}
		return
	}
	c.local.Delete(fullKey)
}

// Close stops the local store's sweeper. The backend is owned by the caller.
func (c *FallbackCache) Close() error {
	return c.local.Close()
}
