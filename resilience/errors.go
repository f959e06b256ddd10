package resilience

import (
	"github.com/cockroachdb/errors"
)

var (
	// ErrConfiguration marks invalid retry, delay or breaker parameters. It is
	// only ever returned by constructors, never while executing.
	ErrConfiguration = errors.New("resilience: invalid configuration")

	// ErrCircuitOpen is returned by CircuitBreaker.Execute while the breaker
	// rejects calls.
	ErrCircuitOpen = errors.New("resilience: circuit breaker is open")
)

func configErrorf(format string, args ...interface{}) error {
	return errors.Mark(errors.Newf(format, args...), ErrConfiguration)
}
