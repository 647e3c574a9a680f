package singleton

import (
	"errors"
	"fmt"
)

// ErrClosed is returned by [Provider.Get] once [Provider.Close] has been
// called.
var ErrClosed = errors.New("singleton: provider is closed")

// ConstructionError wraps a factory failure. The provider that returned it
// is still empty, so calling [Provider.Get] again will retry construction.
type ConstructionError struct {
	cause error
}

func (e *ConstructionError) Error() string {
	return fmt.Sprintf("singleton: constructing instance: %s", e.cause)
}

func (e *ConstructionError) Unwrap() error {
	return e.cause
}

// ReentrancyError is returned when a factory transitively calls
// [Provider.Get] on the provider it is constructing for. Without this check
// the reentrant call would block forever waiting on its own construction.
type ReentrancyError struct {
	// Goroutine is the id of the goroutine that was running the factory.
	Goroutine int64
}

func (e *ReentrancyError) Error() string {
	return fmt.Sprintf(
		"singleton: reentrant Get from goroutine %d while its factory is still running",
		e.Goroutine,
	)
}
