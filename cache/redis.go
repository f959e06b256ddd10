package cache

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/redis/go-redis/v9"
)

// Redis is a Backend storing each value as a plain Redis string with a
// native TTL, so other clients of the same server can read the entries.
type Redis struct {
	client redis.UniversalClient
	cfg    config
}

var _ Backend = (*Redis)(nil)

// NewRedis returns a Backend over client. The caller owns the client
// lifecycle.
func NewRedis(client redis.UniversalClient, opts ...Option) *Redis {
	return &Redis{
		client: client,
		cfg:    applyOptions(opts),
	}
}

func (c *Redis) Probe(ctx context.Context) error {
	qctx, cancel := queryCtx(ctx, c.cfg)
	defer cancel()
	if err := c.client.Ping(qctx).Err(); err != nil {
		return errors.Mark(errors.Wrap(err, "redis ping"), ErrBackend)
	}
	return nil
}

func (c *Redis) Get(ctx context.Context, key string) ([]byte, bool, error) {
	qctx, cancel := queryCtx(ctx, c.cfg)
	defer cancel()
	data, err := c.client.Get(qctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, backendError(err, "redis get", key)
	}
	return data, true, nil
}

func (c *Redis) SetWithTTL(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = c.cfg.defaultExpires
	}
	qctx, cancel := queryCtx(ctx, c.cfg)
	defer cancel()
	if err := c.client.Set(qctx, key, value, ttl).Err(); err != nil {
		return backendError(err, "redis set", key)
	}
	return nil
}

func (c *Redis) Delete(ctx context.Context, key string) error {
	qctx, cancel := queryCtx(ctx, c.cfg)
	defer cancel()
	if err := c.client.Del(qctx, key).Err(); err != nil {
		return backendError(err, "redis del", key)
	}
	return nil
}
