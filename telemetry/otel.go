package telemetry

import (
	"context"
	"net/url"
	"time"

	"github.com/canonical/store-api-go/logger"
	"github.com/cockroachdb/errors"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.27.0"
	"go.opentelemetry.io/otel/trace"
)

type ShutdownFunc func(ctx context.Context) error

type options struct {
	token   string
	version string
	logger  logger.Logger
	timeout time.Duration
}

type Option func(*options)

// WithToken sends token as a bearer token with every export.
func WithToken(token string) Option {
	return func(o *options) { o.token = token }
}

func WithServiceVersion(version string) Option {
	return func(o *options) { o.version = version }
}

func WithLogger(l logger.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithTimeout bounds a single export. Defaults to 10s.
func WithTimeout(d time.Duration) Option {
	return func(o *options) { o.timeout = d }
}

// New exports spans to the OTLP/HTTP collector at endpoint and installs the
// resulting provider and a W3C trace context propagator as the otel globals.
// Call the returned ShutdownFunc to flush pending spans.
func New(ctx context.Context, endpoint string, serviceName string, opts ...Option) (trace.TracerProvider, ShutdownFunc, error) {
	o := options{logger: logger.NewConsoleLogger(logger.LevelWarn), timeout: 10 * time.Second}
	for _, opt := range opts {
		opt(&o)
	}

	otlpURL, err := url.Parse(endpoint)
	if err != nil {
		return nil, nil, errors.Wrap(err, "error parsing otlp endpoint")
	}
	if otlpURL.Scheme == "" || otlpURL.Host == "" {
		return nil, nil, errors.Newf("otlp endpoint %q needs a scheme and host", endpoint)
	}
	otlpURL.Path = "/v1/traces"

	attrs := []resource.Option{
		resource.WithFromEnv(),
		resource.WithTelemetrySDK(),
		resource.WithProcess(),
		resource.WithOS(),
		resource.WithHost(),
		resource.WithAttributes(semconv.ServiceName(serviceName)),
	}
	if o.version != "" {
		attrs = append(attrs, resource.WithAttributes(semconv.ServiceVersion(o.version)))
	}
	res, err := resource.New(ctx, attrs...)
	if errors.Is(err, resource.ErrPartialResource) || errors.Is(err, resource.ErrSchemaURLConflict) {
		o.logger.Warn("telemetry resource: %v", err)
	} else if err != nil {
		return nil, nil, errors.Wrap(err, "error creating resource")
	}

	headers := make(map[string]string)
	if o.token != "" {
		headers["Authorization"] = "Bearer " + o.token
	}
	exporterOpts := []otlptracehttp.Option{
		otlptracehttp.WithEndpointURL(otlpURL.String()),
		otlptracehttp.WithHeaders(headers),
		otlptracehttp.WithTimeout(o.timeout),
		otlptracehttp.WithCompression(otlptracehttp.GzipCompression),
	}
	if otlpURL.Scheme == "http" {
		exporterOpts = append(exporterOpts, otlptracehttp.WithInsecure())
	}
	exporter, err := otlptracehttp.New(ctx, exporterOpts...)
	if err != nil {
		return nil, nil, errors.Wrap(err, "error creating trace exporter")
	}

	provider := sdktrace.NewTracerProvider(
		sdktrace.WithResource(res),
		sdktrace.WithBatcher(exporter),
	)
	otel.SetTracerProvider(provider)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(propagation.TraceContext{}, propagation.Baggage{}))

	return provider, provider.Shutdown, nil
}
