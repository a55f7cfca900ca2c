package bus

import (
	"errors"
	"fmt"
)

// Sentinel errors returned by the bus.
var (
	// ErrNotCached is returned by Flush for a name that has no remembered
	// listener list (never fired, or already flushed).
	ErrNotCached = errors.New("bus: event has no cached listeners")

	// ErrBadPattern is matched by every *PatternError.
	ErrBadPattern = errors.New("bus: invalid listener pattern")

	// ErrNilListener is the panic value used when Bind receives a nil listener.
	ErrNilListener = errors.New("bus: listener cannot be nil")
)

// PatternError reports a bound pattern that failed to compile.
// It is returned by the Fire call that first had to evaluate it.
type PatternError struct {
	Pattern string
	Err     error
}

func (e *PatternError) Error() string {
	return fmt.Sprintf("bus: compile pattern %q: %v", e.Pattern, e.Err)
}

func (e *PatternError) Unwrap() error { return e.Err }

// Is allows errors.Is(err, ErrBadPattern).
func (e *PatternError) Is(target error) bool {
	return target == ErrBadPattern
}

// ListenerError wraps an error returned by a listener. Delivery stops at
// the failing listener and Fire returns this error.
type ListenerError struct {
	Event   string
	Pattern string
	Handle  Handle
	Err     error
}

func (e *ListenerError) Error() string {
	return fmt.Sprintf("bus: %s (pattern %q) failed on %q: %v", e.Handle, e.Pattern, e.Event, e.Err)
}

func (e *ListenerError) Unwrap() error { return e.Err }
