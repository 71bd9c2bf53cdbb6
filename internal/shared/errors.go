// Package shared contains common error types and utilities.
package shared

import (
	"errors"
	"fmt"
)

// Common harness errors used across adapters and infrastructure.
var (
	// ErrResource indicates a failure while acquiring or releasing a browser session
	ErrResource = errors.New("resource failure")

	// ErrReset indicates that the external data-reset collaborator failed
	ErrReset = errors.New("data reset failed")

	// ErrNotify indicates that an alert could not be delivered
	ErrNotify = errors.New("notification failed")

	// ErrHistory indicates a failure in the attempt-history store
	ErrHistory = errors.New("history store failure")

	// ErrConfig indicates invalid harness configuration
	ErrConfig = errors.New("invalid configuration")
)

// Wrap wraps an error with a context message, formatting as "context: err".
// Returns nil for a nil err; an empty context returns err unchanged.
func Wrap(err error, context string) error {
	if err == nil {
		return nil
	}
	if context == "" {
		return err
	}
	return fmt.Errorf("%s: %w", context, err)
}

// Wrapf wraps an error with a formatted context message.
func Wrapf(err error, format string, args ...any) error {
	if err == nil {
		return nil
	}
	return Wrap(err, fmt.Sprintf(format, args...))
}

// Mark attaches a sentinel to err while keeping the original in the chain,
// so both errors.Is(result, sentinel) and errors.Is(result, err) hold.
// Idempotent: err already carrying the sentinel is returned unchanged.
func Mark(err, sentinel error) error {
	if err == nil || sentinel == nil {
		return err
	}
	if errors.Is(err, sentinel) {
		return err
	}
	return fmt.Errorf("%w: %w", sentinel, err)
}
