package cache

import (
	"context"
	"time"

	"github.com/canonical/store-api-go/logger"
)

// Backend is the networked tier of a FallbackCache. Implementations must be
// safe for concurrent use. Get reports a missing key as found=false with a
// nil error.
type Backend interface {
	// Probe checks that the backend is reachable.
	Probe(ctx context.Context) error
	Get(ctx context.Context, key string) ([]byte, bool, error)
	SetWithTTL(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}

// DefaultExpires is the TTL used when Set is called with ttl <= 0.
const DefaultExpires = 300 * time.Second

// DefaultQueryTimeout is the per-operation timeout for backends that
// perform I/O (SQLite, Redis). Prevents indefinite hangs on slow or
// unresponsive storage.
const DefaultQueryTimeout = 5 * time.Second

// DefaultCapacity is the number of entries the local store holds before it
// starts evicting the least recently used ones.
const DefaultCapacity = 1024

// config holds the resolved configuration for a cache or backend.
type config struct {
	namespace      string
	capacity       int
	defaultExpires time.Duration
	queryTimeout   time.Duration
	expiryCheck    time.Duration
	logger         logger.Logger
	now            func() time.Time
}

// Option configures a FallbackCache, its local store or a Backend. Each
// constructor ignores the options that do not apply to it.
type Option func(*config)

func defaultConfig() config {
	return config{
		capacity:       DefaultCapacity,
		defaultExpires: DefaultExpires,
		queryTimeout:   DefaultQueryTimeout,
		expiryCheck:    time.Minute,
		now:            time.Now,
	}
}

func applyOptions(opts []Option) config {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.capacity < 1 {
		cfg.capacity = DefaultCapacity
	}
	if cfg.defaultExpires <= 0 {
		cfg.defaultExpires = DefaultExpires
	}
	if cfg.queryTimeout <= 0 {
		cfg.queryTimeout = DefaultQueryTimeout
	}
	if cfg.expiryCheck <= 0 {
		cfg.expiryCheck = time.Minute
	}
	if cfg.now == nil {
		cfg.now = time.Now
	}
	if cfg.logger == nil {
		cfg.logger = logger.NewConsoleLogger(logger.LevelWarn)
	}
	return cfg
}

// WithNamespace prefixes every key with namespace and a colon.
func WithNamespace(namespace string) Option {
	return func(c *config) { c.namespace = namespace }
}

// WithCapacity bounds the local store. Defaults to DefaultCapacity.
func WithCapacity(n int) Option {
	return func(c *config) { c.capacity = n }
}

// WithExpires sets the default TTL for cached values. This is used when
// Set is called with ttl <= 0. Defaults to DefaultExpires (5 minutes).
func WithExpires(d time.Duration) Option {
	return func(c *config) { c.defaultExpires = d }
}

// WithQueryTimeout sets the per-operation timeout for I/O-backed backends
// (SQLite, Redis) and for the availability probe.
func WithQueryTimeout(d time.Duration) Option {
	return func(c *config) { c.queryTimeout = d }
}

// WithExpiryCheck sets the interval for background expired entry cleanup.
// Applies to the local store and the SQLite backend. Defaults to 1 minute.
func WithExpiryCheck(d time.Duration) Option {
	return func(c *config) { c.expiryCheck = d }
}

// WithLogger sets where backend failures and unavailability are reported.
// Defaults to a console logger at warn level.
func WithLogger(l logger.Logger) Option {
	return func(c *config) { c.logger = l }
}

// WithClock replaces time.Now for expiry decisions.
func WithClock(now func() time.Time) Option {
	return func(c *config) { c.now = now }
}

func queryCtx(parent context.Context, cfg config) (context.Context, context.CancelFunc) {
	return context.WithTimeout(parent, cfg.queryTimeout)
}
