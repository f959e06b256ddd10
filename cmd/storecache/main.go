package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/canonical/store-api-go/cache"
	"github.com/canonical/store-api-go/config"
	"github.com/canonical/store-api-go/logger"
	"github.com/canonical/store-api-go/storeapi"
	"github.com/canonical/store-api-go/telemetry"
	"github.com/cockroachdb/errors"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

var rootCmd = &cobra.Command{
	Use:           "storecache",
	Short:         "Inspect and exercise the store API cache and recommendations",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.String("config", "", "path to a YAML config file (env STORE_API_CONFIG)")
	flags.String("log-level", "", "log level: trace, debug, info, warn, error")
	flags.String("log-format", "text", "log format: text or json")
	flags.String("namespace", "", "cache namespace, overrides the config")
	flags.String("ttl", "", "cache ttl such as 90s, 15m or 1d, overrides the config")
	flags.Int("retries", 0, "maximum attempts for store API calls, overrides the config")

	rootCmd.AddCommand(pingCmd, getCmd, setCmd, delCmd, recommendationsCmd)
}

// app is what every subcommand works with once flags and config are resolved.
type app struct {
	cfg     config.Config
	log     logger.Logger
	cache   *cache.FallbackCache
	tracer  trace.TracerProvider
	closers []func() error
}

func (a *app) Close() {
	if a.cache != nil {
		_ = a.cache.Close()
	}
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			a.log.Debug("close: %v", err)
		}
	}
}

func loadConfig(cmd *cobra.Command) (config.Config, error) {
	cfg, err := config.Load(config.FlagOrEnv(cmd, "config", "STORE_API_CONFIG", ""))
	if err != nil {
		return cfg, err
	}
	flags := cmd.Flags()
	if flags.Changed("namespace") {
		cfg.Cache.Namespace, _ = flags.GetString("namespace")
	}
	if flags.Changed("ttl") {
		raw, _ := flags.GetString("ttl")
		ttl, err := config.ParseDuration(raw)
		if err != nil {
			return cfg, errors.Wrap(err, "--ttl")
		}
		cfg.Cache.TTL = config.Duration(ttl)
	}
	if flags.Changed("retries") {
		cfg.Retry.Limit, _ = flags.GetInt("retries")
	}
	if flags.Changed("log-level") {
		cfg.LogLevel, _ = flags.GetString("log-level")
	} else if err := flags.Set("log-level", cfg.LogLevel); err != nil {
		return cfg, err
	}
	return cfg, cfg.Validate()
}

func newApp(ctx context.Context, cmd *cobra.Command) (*app, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	a := &app{cfg: cfg, log: config.NewLogger(cmd), tracer: otel.GetTracerProvider()}
	if cfg.Telemetry.Enabled() {
		tp, shutdown, err := telemetry.New(ctx, cfg.Telemetry.Endpoint, cfg.Telemetry.ServiceName,
			telemetry.WithToken(cfg.Telemetry.Token),
			telemetry.WithServiceVersion(storeapi.Version),
			telemetry.WithLogger(a.log),
		)
		if err != nil {
			return nil, err
		}
		a.tracer = tp
		a.closers = append(a.closers, func() error {
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			return shutdown(ctx)
		})
	}
	opts := cfg.Cache.Options(a.log)

	var backend cache.Backend
	switch cfg.Cache.Backend {
	case config.BackendRedis:
		client := cfg.Redis.Client()
		a.closers = append(a.closers, client.Close)
		backend = cache.NewRedis(client, opts...)
	case config.BackendSQLite:
		db, err := cache.NewSQLite(ctx, cfg.SQLite.Path, opts...)
		if err != nil {
			a.log.Warn("open sqlite cache %s: %v", cfg.SQLite.Path, err)
			break
		}
		a.closers = append(a.closers, db.Close)
		backend = db
	}
	a.cache = cache.New(ctx, backend, opts...)
	return a, nil
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		cancel()
		os.Exit(1)
	}
}
