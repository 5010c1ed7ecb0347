package task

import (
	"context"
	"errors"
)

var (
	// ErrPanic wraps a panic recovered from a unit of work.
	ErrPanic = errors.New("task panicked")

	// ErrNoTask is returned when a deferred builder produces no task.
	ErrNoTask = errors.New("deferred builder returned no task")
)

// IsCancellation reports whether err represents cooperative cancellation rather than
// a failure.
func IsCancellation(err error) bool {
	return errors.Is(err, context.Canceled)
}

// Cause unwraps err to the first underlying failure. Joined errors resolve to their
// first non-nil member and wrapped errors to the innermost error.
func Cause(err error) error {
	for err != nil {
		if joined, ok := err.(interface{ Unwrap() []error }); ok {
			next := error(nil)
			for _, e := range joined.Unwrap() {
				if e != nil {
					next = e
					break
				}
			}
			if next == nil {
				return err
			}
			err = next
			continue
		}

		inner := errors.Unwrap(err)
		if inner == nil {
			return err
		}
		err = inner
	}
	return nil
}
