package config

import (
	"net"
	"net/url"
	"os"
	"strconv"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/canonical/store-api-go/cache"
	"github.com/canonical/store-api-go/logger"
	"github.com/canonical/store-api-go/resilience"
	"github.com/canonical/store-api-go/storeapi"
	"github.com/cockroachdb/errors"
	"github.com/redis/go-redis/v9"
	"gopkg.in/yaml.v3"
)

// Cache backend names accepted by CacheConfig.Backend.
const (
	BackendRedis  = "redis"
	BackendSQLite = "sqlite"
	BackendNone   = "none"
)

// Delay policy names accepted by RetryConfig.Delay.
const (
	DelayNone        = "none"
	DelayConstant    = "constant"
	DelayRandom      = "random"
	DelayExponential = "exponential"
)

// Config is everything a process using the store API helpers can tune.
type Config struct {
	LogLevel        string                `yaml:"log_level" env:"STORE_API_LOG_LEVEL"`
	Redis           RedisConfig           `yaml:"redis"`
	Cache           CacheConfig           `yaml:"cache"`
	SQLite          SQLiteConfig          `yaml:"sqlite"`
	Retry           RetryConfig           `yaml:"retry"`
	Recommendations RecommendationsConfig `yaml:"recommendations"`
	Telemetry       TelemetryConfig       `yaml:"telemetry"`
}

type RedisConfig struct {
	Host        string   `yaml:"host" env:"REDIS_DB_HOSTNAME"`
	Port        int      `yaml:"port" env:"REDIS_DB_PORT"`
	Password    string   `yaml:"password" env:"REDIS_DB_PASSWORD"`
	DB          int      `yaml:"db" env:"REDIS_DB_INDEX"`
	DialTimeout Duration `yaml:"dial_timeout" env:"REDIS_DB_DIAL_TIMEOUT"`
}

// Addr returns host:port.
func (r RedisConfig) Addr() string {
	return net.JoinHostPort(r.Host, strconv.Itoa(r.Port))
}

// Client returns a go-redis client for r. The caller closes it.
func (r RedisConfig) Client() *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:        r.Addr(),
		Password:    r.Password,
		DB:          r.DB,
		DialTimeout: r.DialTimeout.Std(),
	})
}

type CacheConfig struct {
	// Backend is one of redis, sqlite or none.
	Backend      string   `yaml:"backend" env:"STORE_API_CACHE_BACKEND"`
	Namespace    string   `yaml:"namespace" env:"STORE_API_CACHE_NAMESPACE"`
	Capacity     int      `yaml:"capacity" env:"STORE_API_CACHE_CAPACITY"`
	TTL          Duration `yaml:"ttl" env:"STORE_API_CACHE_TTL"`
	QueryTimeout Duration `yaml:"query_timeout" env:"STORE_API_CACHE_QUERY_TIMEOUT"`
	ExpiryCheck  Duration `yaml:"expiry_check" env:"STORE_API_CACHE_EXPIRY_CHECK"`
}

// Options converts c into cache options.
func (c CacheConfig) Options(log logger.Logger) []cache.Option {
	opts := []cache.Option{
		cache.WithNamespace(c.Namespace),
		cache.WithCapacity(c.Capacity),
		cache.WithExpires(c.TTL.Std()),
		cache.WithQueryTimeout(c.QueryTimeout.Std()),
		cache.WithExpiryCheck(c.ExpiryCheck.Std()),
	}
	if log != nil {
		opts = append(opts, cache.WithLogger(log))
	}
	return opts
}

type SQLiteConfig struct {
	Path string `yaml:"path" env:"STORE_API_SQLITE_PATH"`
}

type RetryConfig struct {
	Limit int `yaml:"limit" env:"STORE_API_RETRY_LIMIT"`
	// Delay is one of none, constant, random or exponential.
	Delay      string   `yaml:"delay" env:"STORE_API_RETRY_DELAY"`
	Min        Duration `yaml:"min" env:"STORE_API_RETRY_MIN"`
	Max        Duration `yaml:"max" env:"STORE_API_RETRY_MAX"`
	Multiplier Duration `yaml:"multiplier" env:"STORE_API_RETRY_MULTIPLIER"`
	Base       float64  `yaml:"base" env:"STORE_API_RETRY_BASE"`
}

// Policy builds the delay policy named by r.Delay.
func (r RetryConfig) Policy() (resilience.DelayPolicy, error) {
	switch r.Delay {
	case DelayNone, "":
		return resilience.NoDelay, nil
	case DelayConstant:
		return resilience.DelayConstant(r.Min.Std())
	case DelayRandom:
		return resilience.DelayRandom(r.Min.Std(), r.Max.Std())
	case DelayExponential:
		if r.Max > 0 {
			return resilience.DelayExponential(r.Multiplier.Std(), r.Base, r.Max.Std())
		}
		return resilience.DelayExponential(r.Multiplier.Std(), r.Base)
	}
	return nil, errors.Newf("unknown retry delay %q", r.Delay)
}

// Options converts r into retry options. Callers append their own filter.
func (r RetryConfig) Options() ([]resilience.RetryOption, error) {
	policy, err := r.Policy()
	if err != nil {
		return nil, err
	}
	return []resilience.RetryOption{
		resilience.WithLimit(r.Limit),
		resilience.WithDelay(policy),
	}, nil
}

type RecommendationsConfig struct {
	URL      string   `yaml:"url" env:"SNAP_RECOMMENDATIONS_API_URL"`
	CacheTTL Duration `yaml:"cache_ttl" env:"SNAP_RECOMMENDATIONS_CACHE_TTL"`
	Timeout  Duration `yaml:"timeout" env:"SNAP_RECOMMENDATIONS_TIMEOUT"`
}

// TelemetryConfig enables span export when Endpoint is set.
type TelemetryConfig struct {
	Endpoint    string `yaml:"endpoint" env:"OTEL_EXPORTER_OTLP_ENDPOINT"`
	ServiceName string `yaml:"service_name" env:"OTEL_SERVICE_NAME"`
	Token       string `yaml:"token" env:"STORE_API_OTLP_TOKEN"`
}

// Enabled reports whether spans should be exported.
func (t TelemetryConfig) Enabled() bool {
	return t.Endpoint != ""
}

// Default returns the configuration used when nothing overrides it.
func Default() Config {
	return Config{
		LogLevel: "info",
		Redis: RedisConfig{
			Host:        "localhost",
			Port:        6379,
			DialTimeout: Duration(5 * time.Second),
		},
		Cache: CacheConfig{
			Backend:      BackendRedis,
			Capacity:     cache.DefaultCapacity,
			TTL:          Duration(cache.DefaultExpires),
			QueryTimeout: Duration(cache.DefaultQueryTimeout),
			ExpiryCheck:  Duration(time.Minute),
		},
		Retry: RetryConfig{
			Limit:      3,
			Delay:      DelayExponential,
			Multiplier: Duration(100 * time.Millisecond),
			Base:       2,
			Max:        Duration(5 * time.Second),
		},
		Recommendations: RecommendationsConfig{
			URL:      storeapi.DefaultRecommendationsURL,
			CacheTTL: Duration(time.Hour),
			Timeout:  Duration(10 * time.Second),
		},
		Telemetry: TelemetryConfig{
			ServiceName: "storecache",
		},
	}
}

// Load starts from Default, applies the YAML file at path when path is not
// empty, then applies environment variables, and validates the result.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, errors.Wrapf(err, "read config %s", path)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, errors.Wrapf(err, "parse config %s", path)
		}
	}
	if err := env.Parse(&cfg); err != nil {
		return cfg, errors.Wrap(err, "parse env")
	}
	return cfg, cfg.Validate()
}

// Validate reports the first invalid setting.
func (c Config) Validate() error {
	if _, ok := logger.ParseLevel(c.LogLevel); !ok {
		return errors.Newf("invalid log level %q", c.LogLevel)
	}
	switch c.Cache.Backend {
	case BackendRedis:
		if c.Redis.Host == "" {
			return errors.New("redis host is required")
		}
		if c.Redis.Port < 1 || c.Redis.Port > 65535 {
			return errors.Newf("redis port must be between 1 and 65535, got %d", c.Redis.Port)
		}
	case BackendSQLite, BackendNone:
	default:
		return errors.Newf("unknown cache backend %q", c.Cache.Backend)
	}
	if c.Cache.Capacity < 1 {
		return errors.Newf("cache capacity must be at least 1, got %d", c.Cache.Capacity)
	}
	if c.Cache.TTL <= 0 {
		return errors.Newf("cache ttl must be positive, got %s", c.Cache.TTL)
	}
	if c.Retry.Limit < 1 {
		return errors.Newf("retry limit must be at least 1, got %d", c.Retry.Limit)
	}
	if _, err := c.Retry.Policy(); err != nil {
		return errors.Wrap(err, "retry")
	}
	u, err := url.Parse(c.Recommendations.URL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return errors.Newf("invalid recommendations url %q", c.Recommendations.URL)
	}
	return nil
}
