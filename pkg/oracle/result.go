// Package oracle wraps the external embedding and text-understanding
// services behind calls that never panic, never hang past their timeout and
// report every outcome as a tagged Result.
package oracle

import "errors"

var (
	// ErrUnavailable is returned when no provider is configured.
	ErrUnavailable = errors.New("oracle unavailable")

	// ErrMalformed marks a response that could not be parsed.
	ErrMalformed = errors.New("malformed oracle response")
)

// Status tags the outcome of an oracle call.
type Status int

const (
	// StatusOK means the oracle answered with a usable value.
	StatusOK Status = iota
	// StatusDegraded means the oracle answered but the value was replaced
	// (fully or partly) by defaults.
	StatusDegraded
	// StatusFailure means the call itself failed or timed out.
	StatusFailure
)

// String returns the lower-case status name, also used as a metric label.
func (s Status) String() string {
	switch s {
	case StatusOK:
		return "ok"
	case StatusDegraded:
		return "degraded"
	case StatusFailure:
		return "failure"
	default:
		return "unknown"
	}
}

// Result is the outcome of one oracle call. Value is meaningful for
// StatusOK and StatusDegraded; Err is set for StatusDegraded and
// StatusFailure.
type Result[T any] struct {
	Value  T
	Status Status
	Err    error
}

// OK wraps a usable value.
func OK[T any](v T) Result[T] {
	return Result[T]{Value: v, Status: StatusOK}
}

// Degraded wraps the defaults that replaced an unusable answer.
func Degraded[T any](v T, err error) Result[T] {
	return Result[T]{Value: v, Status: StatusDegraded, Err: err}
}

// Failure reports a failed call.
func Failure[T any](err error) Result[T] {
	if err == nil {
		err = ErrUnavailable
	}
	return Result[T]{Status: StatusFailure, Err: err}
}

// IsOK reports whether the oracle produced a usable value.
func (r Result[T]) IsOK() bool {
	return r.Status == StatusOK
}

// Or returns the carried value, or def when the call failed.
func (r Result[T]) Or(def T) T {
	if r.Status == StatusFailure {
		return def
	}
	return r.Value
}
