// Package core provides the ai-brain client: one entry point that wires the
// episodic store, the chain builder, the personality and user model engines
// and the maintenance scheduler.
package core

import (
	"errors"
	"fmt"

	"github.com/odiumxp/ai-brain/pkg/episodic"
	"github.com/odiumxp/ai-brain/pkg/oracle"
	"github.com/odiumxp/ai-brain/pkg/scheduler"
	"github.com/odiumxp/ai-brain/pkg/storage"
	"github.com/odiumxp/ai-brain/pkg/usermodel"
)

// Predefined errors for common failure scenarios.
var (
	// ErrNotFound indicates that a requested record was not found.
	ErrNotFound = storage.ErrNotFound

	// ErrInvalidConfig indicates that the provided configuration is invalid.
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrInvalidInput indicates that the provided input is invalid.
	ErrInvalidInput = errors.New("invalid input")

	// ErrStorageOperation indicates that a storage operation failed.
	ErrStorageOperation = errors.New("storage operation failed")

	// ErrOracleUnavailable indicates that no oracle provider is configured
	// or that it could not be reached.
	ErrOracleUnavailable = oracle.ErrUnavailable

	// ErrJobRunning is returned when a maintenance job is already running.
	ErrJobRunning = scheduler.ErrJobRunning

	// ErrUnknownJob is returned for a job name that is not registered.
	ErrUnknownJob = scheduler.ErrUnknownJob

	// ErrClosed is returned by operations on a closed client.
	ErrClosed = errors.New("client closed")
)

// BrainError wraps errors with operation context.
//
// Example:
//
//	err := &BrainError{Op: "RecordTurn", Err: ErrInvalidInput}
//	// Error() returns: "aibrain: RecordTurn: invalid input"
type BrainError struct {
	// Op is the name of the operation that failed.
	Op string

	// Err is the underlying error.
	Err error
}

// Error returns "aibrain: <Op>: <Err>".
func (e *BrainError) Error() string {
	return fmt.Sprintf("aibrain: %s: %v", e.Op, e.Err)
}

// Unwrap returns the underlying error for errors.Is and errors.As.
func (e *BrainError) Unwrap() error {
	return e.Err
}

// NewBrainError wraps err with the operation name. It returns nil when err
// is nil, so it can wrap a call result directly:
//
//	return NewBrainError("Close", c.store.Close())
func NewBrainError(op string, err error) error {
	if err == nil {
		return nil
	}
	return &BrainError{Op: op, Err: err}
}

// classify maps engine errors onto the sentinels of this package. Errors
// that already match a sentinel keep their chain; any other failure is a
// store failure, the only kind the engines propagate.
func classify(op string, err error) error {
	if err == nil {
		return nil
	}
	switch {
	case errors.Is(err, ErrNotFound),
		errors.Is(err, ErrInvalidInput),
		errors.Is(err, ErrJobRunning),
		errors.Is(err, ErrUnknownJob),
		errors.Is(err, ErrClosed):
		return NewBrainError(op, err)
	case errors.Is(err, episodic.ErrInvalidTurn), errors.Is(err, usermodel.ErrInvalidStatus):
		return NewBrainError(op, fmt.Errorf("%w: %w", ErrInvalidInput, err))
	default:
		return NewBrainError(op, fmt.Errorf("%w: %w", ErrStorageOperation, err))
	}
}
