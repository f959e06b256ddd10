// Package sys holds small generic helpers shared by the other packages.
package sys

import (
	"slices"

	"github.com/cockroachdb/errors"
)

// Result carries either a value (Ok) or the error that prevented it (Err).
// A Result with a nil Err is a success even when Ok is the zero value.
type Result[T any] struct {
	Ok  T
	Err error
}

func (r Result[T]) IsOk() bool {
	return r.Err == nil
}

// IsErr reports a failure. With targets it only reports failures matching
// one of them under errors.Is, marks included.
func (r Result[T]) IsErr(targets ...error) bool {
	if r.Err == nil {
		return false
	}
	if len(targets) == 0 {
		return true
	}
	return slices.ContainsFunc(targets, func(target error) bool {
		return errors.Is(r.Err, target)
	})
}

// Unwrap splits the Result back into the conventional (value, error) pair.
// The value is zeroed on failure.
func (r Result[T]) Unwrap() (T, error) {
	if r.Err != nil {
		var zero T
		return zero, r.Err
	}
	return r.Ok, nil
}

func Ok[T any](value T) Result[T] {
	return Result[T]{Ok: value}
}

func Err[T any](err error) Result[T] {
	return Result[T]{Err: err}
}

// From builds a Result from a (value, error) pair.
func From[T any](value T, err error) Result[T] {
	if err != nil {
		return Err[T](err)
	}
	return Ok(value)
}
