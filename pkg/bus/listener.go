package bus

import (
	"regexp"
	"strconv"
	"sync"
)

// Result is what a listener tells the dispatcher after handling an event.
type Result int

const (
	// Continue lets delivery proceed to the next listener. It is the zero value,
	// so a listener that has nothing to say does not stop delivery.
	Continue Result = iota

	// Veto stops delivery for the current Fire call.
	Veto
)

func (r Result) String() string {
	switch r {
	case Continue:
		return "continue"
	case Veto:
		return "veto"
	default:
		return "result(" + strconv.Itoa(int(r)) + ")"
	}
}

// MarshalText renders the result by name in JSON and logs.
func (r Result) MarshalText() ([]byte, error) {
	return []byte(r.String()), nil
}

// Listener receives events whose name matches the pattern it was bound to.
type Listener interface {
	Notify(name, pattern string, evt *Event) (Result, error)
}

// ListenerFunc adapts an ordinary function to the Listener interface.
type ListenerFunc func(name, pattern string, evt *Event) (Result, error)

// Notify calls f(name, pattern, evt).
func (f ListenerFunc) Notify(name, pattern string, evt *Event) (Result, error) {
	return f(name, pattern, evt)
}

// Handle identifies one binding. Handles are assigned by Bind, never reused
// by the same Bus, and are the only identity Unbind and Flush go by.
type Handle uint64

func (h Handle) String() string {
	return "listener#" + strconv.FormatUint(uint64(h), 10)
}

// Info describes a binding for diagnostics.
type Info struct {
	Handle  Handle `json:"handle"`
	Pattern string `json:"pattern"`
}

// binding is one (pattern, listener) registration.
type binding struct {
	handle   Handle
	pattern  string
	listener Listener

	compile sync.Once
	re      *regexp.Regexp
	err     error
}

func newBinding(h Handle, pattern string, l Listener) *binding {
	return &binding{handle: h, pattern: pattern, listener: l}
}

// match reports whether name matches the binding's pattern. The pattern is
// compiled on first use; a compile failure is remembered and returned on
// every later call.
func (b *binding) match(name string) (bool, error) {
	b.compile.Do(func() {
		b.re, b.err = regexp.Compile(b.pattern)
	})
	if b.err != nil {
		return false, &PatternError{Pattern: b.pattern, Err: b.err}
	}
	return b.re.MatchString(name), nil
}

func (b *binding) info() Info {
	return Info{Handle: b.handle, Pattern: b.pattern}
}
