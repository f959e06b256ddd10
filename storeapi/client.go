package storeapi

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"net/url"
	"runtime/debug"
	"time"

	"github.com/canonical/store-api-go/logger"
	"github.com/canonical/store-api-go/resilience"
	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

var (
	Version = "dev"
	Commit  = "unknown"
)

const tracerName = "github.com/canonical/store-api-go/storeapi"

// DefaultTimeout bounds a single request made with the default Requester.
const DefaultTimeout = 10 * time.Second

// Requester sends one HTTP request. *http.Client satisfies it.
type Requester interface {
	Do(req *http.Request) (*http.Response, error)
}

// ResponseProcessor turns a response into its JSON body or an error from
// the store taxonomy. It must close the body.
type ResponseProcessor func(resp *http.Response) (json.RawMessage, error)

// Client calls a store API below a base URL. Every call is retried on
// connection failures and timeouts and goes through a circuit breaker.
type Client struct {
	baseURL    *url.URL
	requester  Requester
	logger     logger.Logger
	retryOpts  []resilience.RetryOption
	breaker    *resilience.CircuitBreaker
	tracer     trace.Tracer
	propagator propagation.TextMapPropagator
	userAgent  string
	headers    http.Header
	process    ResponseProcessor
}

type ClientOption func(*Client)

// WithRequester replaces the default *http.Client.
func WithRequester(r Requester) ClientOption {
	return func(c *Client) { c.requester = r }
}

func WithLogger(l logger.Logger) ClientOption {
	return func(c *Client) { c.logger = l }
}

// WithRetryOptions appends to the retry policy. The client always installs
// its own filter, sleep and abort callback bound to the call's context.
func WithRetryOptions(opts ...resilience.RetryOption) ClientOption {
	return func(c *Client) { c.retryOpts = append(c.retryOpts, opts...) }
}

// WithCircuitBreaker shares a breaker between clients of the same service.
func WithCircuitBreaker(cb *resilience.CircuitBreaker) ClientOption {
	return func(c *Client) { c.breaker = cb }
}

func WithTracerProvider(tp trace.TracerProvider) ClientOption {
	return func(c *Client) { c.tracer = tp.Tracer(tracerName) }
}

func WithPropagator(p propagation.TextMapPropagator) ClientOption {
	return func(c *Client) { c.propagator = p }
}

func WithUserAgent(ua string) ClientOption {
	return func(c *Client) { c.userAgent = ua }
}

// WithHeader sets a header on every request, e.g. an authorization header.
func WithHeader(key, value string) ClientOption {
	return func(c *Client) { c.headers.Set(key, value) }
}

// WithResponseProcessor replaces ProcessResponse.
func WithResponseProcessor(p ResponseProcessor) ClientOption {
	return func(c *Client) { c.process = p }
}

func UserAgent() string {
	gitSHA := Commit
	if info, ok := debug.ReadBuildInfo(); ok {
		for _, setting := range info.Settings {
			if setting.Key == "vcs.revision" {
				gitSHA = setting.Value
			}
		}
	}
	return "store-api-go/" + Version + " (" + gitSHA + ")"
}

// Retryable reports whether err is worth another attempt: connection
// failures, 5xx responses and timeouts.
func Retryable(err error) bool {
	return errors.Is(err, ErrConnection) || errors.Is(err, ErrTimeout)
}

// NewClient returns a client for the API rooted at baseURL.
func NewClient(baseURL string, opts ...ClientOption) (*Client, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, errors.Wrapf(err, "invalid base url %q", baseURL)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, errors.Newf("invalid base url %q: scheme and host are required", baseURL)
	}
	c := &Client{
		baseURL:   u,
		requester: &http.Client{Timeout: DefaultTimeout},
		logger:    logger.NewConsoleLogger(logger.LevelWarn),
		retryOpts: []resilience.RetryOption{
			resilience.WithLimit(3),
			resilience.WithDelay(resilience.MustDelay(resilience.DelayExponential(150*time.Millisecond, 2, 5*time.Second))),
		},
		tracer:     otel.Tracer(tracerName),
		propagator: otel.GetTextMapPropagator(),
		userAgent:  UserAgent(),
		headers:    http.Header{},
		process:    ProcessResponse,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.breaker == nil {
		config := resilience.DefaultCircuitBreakerConfig()
		config.IsFailure = Retryable
		if c.breaker, err = resilience.NewCircuitBreaker(config); err != nil {
			return nil, err
		}
	}
	if _, err := c.retryConfig(context.Background()); err != nil {
		return nil, err
	}
	return c, nil
}

// BaseURL returns the root every endpoint is resolved against.
func (c *Client) BaseURL() string {
	return c.baseURL.String()
}

func (c *Client) retryConfig(ctx context.Context) (*resilience.RetryConfig, error) {
	opts := append([]resilience.RetryOption{}, c.retryOpts...)
	opts = append(opts,
		resilience.WithFilter(Retryable),
		resilience.WithCallback(resilience.AbortOnContext(ctx)),
		resilience.WithSleep(resilience.SleepContext(ctx)),
		resilience.WithLogger(c.logger),
	)
	return resilience.NewRetryConfig(opts...)
}

// Endpoint resolves endpoint against the base URL and attaches query.
func (c *Client) Endpoint(endpoint string, query url.Values) *url.URL {
	u := c.baseURL.JoinPath(endpoint)
	if len(query) > 0 {
		u.RawQuery = query.Encode()
	}
	return u
}

// Get is Do with GET and no payload.
func (c *Client) Get(ctx context.Context, endpoint string, query url.Values) (json.RawMessage, error) {
	return c.Do(ctx, http.MethodGet, endpoint, query, nil)
}

// Do sends payload, JSON encoded when not nil, to endpoint and returns the
// processed response body.
func (c *Client) Do(ctx context.Context, method, endpoint string, query url.Values, payload any) (json.RawMessage, error) {
	u := c.Endpoint(endpoint, query)
	var body []byte
	if payload != nil {
		var err error
		if body, err = json.Marshal(payload); err != nil {
			return nil, errors.Wrap(err, "marshal payload")
		}
	}
	cfg, err := c.retryConfig(ctx)
	if err != nil {
		return nil, err
	}
	return resilience.Do(cfg, method+" "+u.Path, func() (json.RawMessage, error) {
		var out json.RawMessage
		err := c.breaker.Execute(func() error {
			var err error
			out, err = c.send(ctx, method, u, body)
			return err
		})
		if errors.Is(err, resilience.ErrCircuitOpen) {
			return nil, errors.Wrapf(ErrCircuitBreaker, "%s", u.Host)
		}
		return out, err
	})
}

func (c *Client) send(ctx context.Context, method string, u *url.URL, body []byte) (json.RawMessage, error) {
	ctx, span := c.tracer.Start(ctx, method+" "+u.Path,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("http.request.method", method),
			attribute.String("url.full", u.String()),
		),
	)
	defer span.End()

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, u.String(), reader)
	if err != nil {
		return nil, errors.Wrap(err, "create request")
	}
	requestID := uuid.NewString()
	for key, values := range c.headers {
		req.Header[key] = values
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-ID", requestID)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	c.propagator.Inject(ctx, propagation.HeaderCarrier(req.Header))
	span.SetAttributes(attribute.String("http.request.id", requestID))

	c.logger.Trace("sending request: %s %s (%s)", method, u, requestID)
	resp, err := c.requester.Do(req)
	if err != nil {
		err = transportError(ctx, err)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	c.logger.Debug("response status: %s (%s)", resp.Status, requestID)
	span.SetAttributes(attribute.Int("http.response.status_code", resp.StatusCode))

	out, err := c.process(resp)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	return out, nil
}

func transportError(ctx context.Context, err error) error {
	if errors.Is(ctx.Err(), context.Canceled) {
		return err
	}
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		return errors.WithSecondaryError(ErrTimeout, err)
	}
	return errors.WithSecondaryError(errors.Wrap(ErrConnection, "send request"), err)
}
