package cache

import (
	"fmt"

	"github.com/cockroachdb/errors"
)

var (
	// ErrSerialization is matched by every error Serialize returns.
	ErrSerialization = errors.New("cache: serialization failed")
	// ErrDeserialization is matched by every error Deserialize and Decode return.
	ErrDeserialization = errors.New("cache: deserialization failed")
	// ErrBackend marks failures talking to a Backend. FallbackCache logs
	// these and carries on; they never reach its callers.
	ErrBackend = errors.New("cache: backend failure")
)

// SerializationError reports a value that has no text representation.
type SerializationError struct {
	// Type is the Go type that could not be encoded.
	Type string
	Err  error
}

func (e *SerializationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("cache: cannot serialize value of type %s: %v", e.Type, e.Err)
	}
	return fmt.Sprintf("cache: cannot serialize value of type %s", e.Type)
}

func (e *SerializationError) Unwrap() error { return e.Err }

func (e *SerializationError) Is(target error) bool { return target == ErrSerialization }

// DeserializationError reports stored text that does not parse as the
// requested shape.
type DeserializationError struct {
	Target string
	Err    error
}

func (e *DeserializationError) Error() string {
	return fmt.Sprintf("cache: cannot deserialize into %s: %v", e.Target, e.Err)
}

func (e *DeserializationError) Unwrap() error { return e.Err }

func (e *DeserializationError) Is(target error) bool { return target == ErrDeserialization }

func backendError(err error, op, key string) error {
	return errors.Mark(errors.Wrapf(err, "%s %q", op, key), ErrBackend)
}
