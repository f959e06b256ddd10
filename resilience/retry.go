package resilience

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/canonical/store-api-go/logger"
	"github.com/canonical/store-api-go/sys"
	"github.com/cockroachdb/errors"
)

// Attempter is a single attempt at some operation. Retry calls Attempt once
// per try and branches on the returned Result.
type Attempter[T any] interface {
	Attempt() sys.Result[T]
}

// AttemptFunc adapts a plain function to the Attempter interface.
type AttemptFunc[T any] func() sys.Result[T]

func (f AttemptFunc[T]) Attempt() sys.Result[T] {
	return f()
}

type namedOp[T any] struct {
	name string
	fn   func() (T, error)
}

func (o namedOp[T]) Attempt() sys.Result[T] {
	return sys.From(o.fn())
}

func (o namedOp[T]) String() string {
	return o.name
}

// Op wraps a conventional (value, error) function into a named Attempter.
// The name identifies the operation in retry log lines.
func Op[T any](name string, fn func() (T, error)) Attempter[T] {
	return namedOp[T]{name: name, fn: fn}
}

// RetryConfig is the immutable policy used by Retry. Build it once per call
// site with NewRetryConfig and share it freely between goroutines.
type RetryConfig struct {
	limit    int
	filters  []func(error) bool
	callback func(error) bool
	logf     func(msg string)
	delay    DelayPolicy
	sleep    func(time.Duration)
}

// RetryOption configures a RetryConfig.
type RetryOption func(*RetryConfig)

// WithLimit sets the maximum number of attempts, including the first one.
// Defaults to math.MaxInt.
func WithLimit(n int) RetryOption {
	return func(c *RetryConfig) { c.limit = n }
}

// WithFilter restricts retries to errors for which match returns true. Other
// errors are returned on first occurrence. Several filters are OR-ed.
func WithFilter(match func(error) bool) RetryOption {
	return func(c *RetryConfig) { c.filters = append(c.filters, match) }
}

// WithErrors retries only errors that match one of targets via errors.Is.
func WithErrors(targets ...error) RetryOption {
	return WithFilter(func(err error) bool {
		for _, target := range targets {
			if errors.Is(err, target) {
				return true
			}
		}
		return false
	})
}

// WithErrorType retries only errors that have an E somewhere in their chain.
func WithErrorType[E error]() RetryOption {
	return WithFilter(func(err error) bool {
		var target E
		return errors.As(err, &target)
	})
}

// WithCallback installs a hook that sees every retryable failure. Returning
// true aborts the loop and hands that failure straight back to the caller.
func WithCallback(fn func(error) bool) RetryOption {
	return func(c *RetryConfig) { c.callback = fn }
}

// WithLogFunc receives one line for every retryable failure that did not
// abort the loop, including the one that exhausts the budget.
func WithLogFunc(fn func(msg string)) RetryOption {
	return func(c *RetryConfig) { c.logf = fn }
}

// WithLogger routes retry log lines to l at warn level.
func WithLogger(l logger.Logger) RetryOption {
	return WithLogFunc(func(msg string) { l.Warn("%s", msg) })
}

// WithDelay sets the pause taken between attempts.
func WithDelay(policy DelayPolicy) RetryOption {
	return func(c *RetryConfig) { c.delay = policy }
}

// WithSleep replaces time.Sleep, e.g. with SleepContext or a recorder in tests.
func WithSleep(fn func(time.Duration)) RetryOption {
	return func(c *RetryConfig) { c.sleep = fn }
}

// NewRetryConfig validates the options and returns the resulting policy.
func NewRetryConfig(opts ...RetryOption) (*RetryConfig, error) {
	cfg := &RetryConfig{
		limit:    math.MaxInt,
		callback: func(error) bool { return false },
		logf:     func(string) {},
		delay:    NoDelay,
		sleep:    time.Sleep,
	}
	for _, opt := range opts {
		opt(cfg)
	}
	if cfg.limit < 1 {
		return nil, configErrorf("the limit must be at least 1, got %d", cfg.limit)
	}
	if cfg.delay == nil {
		return nil, configErrorf("a delay policy is required")
	}
	if cfg.sleep == nil {
		return nil, configErrorf("a sleep function is required")
	}
	if cfg.callback == nil {
		cfg.callback = func(error) bool { return false }
	}
	if cfg.logf == nil {
		cfg.logf = func(string) {}
	}
	return cfg, nil
}

// MustRetryConfig is NewRetryConfig for package level declarations.
func MustRetryConfig(opts ...RetryOption) *RetryConfig {
	cfg, err := NewRetryConfig(opts...)
	if err != nil {
		panic(err)
	}
	return cfg
}

// Limit returns the maximum number of attempts.
func (c *RetryConfig) Limit() int {
	return c.limit
}

func (c *RetryConfig) retryable(err error) bool {
	if len(c.filters) == 0 {
		return true
	}
	for _, match := range c.filters {
		if match(err) {
			return true
		}
	}
	return false
}

func opName(op any) string {
	if s, ok := op.(fmt.Stringer); ok {
		return s.String()
	}
	return "operation"
}

// Retry runs op until it succeeds, fails with an error outside the filter,
// the callback aborts, or the attempt limit is reached. The error in the
// returned Result is always the one op produced, never a wrapper.
func Retry[T any](cfg *RetryConfig, op Attempter[T]) sys.Result[T] {
	var lastErr error
	for attempt := 1; attempt <= cfg.limit; attempt++ {
		if attempt > 1 {
			cfg.sleep(cfg.delay(attempt - 1))
		}
		res := op.Attempt()
		if res.IsOk() {
			return res
		}
		if !cfg.retryable(res.Err) {
			return sys.Err[T](res.Err)
		}
		lastErr = res.Err
		if cfg.callback(res.Err) {
			return sys.Err[T](res.Err)
		}
		cfg.logf(fmt.Sprintf("retry (%d/%d) %s: %v", attempt, cfg.limit, opName(op), res.Err))
	}
	return sys.Err[T](lastErr)
}

// Do is Retry for a conventional (value, error) function.
func Do[T any](cfg *RetryConfig, name string, fn func() (T, error)) (T, error) {
	return Retry(cfg, Op(name, fn)).Unwrap()
}

// Execute retries fn, which only reports success or failure.
func (c *RetryConfig) Execute(name string, fn func() error) error {
	_, err := Do(c, name, func() (struct{}, error) {
		return struct{}{}, fn()
	})
	return err
}

// SleepContext returns a sleep function that wakes early when ctx is done.
// Pair it with AbortOnContext so the loop stops instead of retrying.
func SleepContext(ctx context.Context) func(time.Duration) {
	return func(d time.Duration) {
		if d <= 0 {
			return
		}
		t := time.NewTimer(d)
		defer t.Stop()
		select {
		case <-ctx.Done():
		case <-t.C:
		}
	}
}

// AbortOnContext is a callback that stops retrying once ctx is done.
func AbortOnContext(ctx context.Context) func(error) bool {
	return func(error) bool {
		return ctx.Err() != nil
	}
}
