package script

import (
	"errors"
	"fmt"
	"regexp"

	"github.com/shashiranjanraj/patternbus/pkg/bus"
)

// ErrNoMirror is returned when a binding asks for the mirror but the
// runner was built without one.
var ErrNoMirror = errors.New("script: binding wants mirror but none is configured")

// Call is one listener invocation observed while running a step.
type Call struct {
	Binding string     `json:"binding"`
	Event   string     `json:"event"`
	Pattern string     `json:"pattern"`
	Result  bus.Result `json:"result"`
	Err     string     `json:"error,omitempty"`
}

// StepResult is what one step did.
type StepResult struct {
	Index  int    `json:"index"`
	Action string `json:"action"`
	Target string `json:"target"`
	Calls  []Call `json:"calls,omitempty"`
	Err    error  `json:"-"`
}

// Report collects the results of a whole scenario.
type Report struct {
	Steps []StepResult `json:"steps"`
}

// Failed reports how many steps ended with an error.
func (r *Report) Failed() int {
	n := 0
	for _, s := range r.Steps {
		if s.Err != nil {
			n++
		}
	}
	return n
}

// Runner applies scenario bindings and steps to a bus and traces every
// scripted listener call.
type Runner struct {
	bus     *bus.Bus
	mirror  bus.Listener
	source  string
	handles map[string]bus.Handle
	calls   []Call
}

// RunnerOption configures a Runner.
type RunnerOption func(*Runner)

// WithMirror supplies the listener used by bindings with mirror: true.
func WithMirror(l bus.Listener) RunnerOption {
	return func(r *Runner) { r.mirror = l }
}

// NewRunner returns a Runner driving b.
func NewRunner(b *bus.Bus, opts ...RunnerOption) *Runner {
	r := &Runner{bus: b, handles: make(map[string]bus.Handle)}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Handle returns the bus handle of a scripted binding.
func (r *Runner) Handle(name string) (bus.Handle, bool) {
	h, ok := r.handles[name]
	return h, ok
}

// Run binds sc.Bindings, then applies each step in order. A failing step is
// recorded in the report and does not stop the run; only setup errors are
// returned.
func (r *Runner) Run(sc *Scenario) (*Report, error) {
	if sc.Source != "" {
		r.source = sc.Source
	}
	for _, b := range sc.Bindings {
		if err := r.Bind(b); err != nil {
			return nil, err
		}
	}

	rep := &Report{Steps: make([]StepResult, 0, len(sc.Steps))}
	for i, st := range sc.Steps {
		rep.Steps = append(rep.Steps, r.Apply(i, st))
	}
	return rep, nil
}

// Bind registers a scripted listener on the bus. A name is free again once
// its binding was unbound or flushed.
func (r *Runner) Bind(b Binding) error {
	if h, dup := r.handles[b.Name]; dup && r.bound(h) {
		return fmt.Errorf("%w: duplicate binding %q", ErrInvalidScenario, b.Name)
	}
	l, err := r.listener(b)
	if err != nil {
		return err
	}
	r.handles[b.Name] = r.bus.Bind(b.Pattern, l)
	return nil
}

// bound reports whether h is still registered on the bus. A Flush can
// unbind scripted listeners behind the runner's back.
func (r *Runner) bound(h bus.Handle) bool {
	for _, info := range r.bus.Bindings() {
		if info.Handle == h {
			return true
		}
	}
	return false
}

// Apply runs a single step and returns what it did.
func (r *Runner) Apply(i int, st Step) StepResult {
	res := StepResult{Index: i, Action: st.Action(), Target: st.Target()}
	r.calls = nil

	switch res.Action {
	case "fire":
		source := st.Source
		if source == "" {
			source = r.source
		}
		res.Err = r.bus.Fire(st.Fire, bus.NewEvent(source, st.Payload))
	case "flush":
		res.Err = r.bus.Flush(st.Flush)
	case "bind":
		res.Err = r.Bind(*st.Bind)
	case "unbind":
		h, ok := r.handles[st.Unbind]
		if !ok || !r.bus.Unbind(h) {
			res.Err = fmt.Errorf("script: unbind %q: not bound", st.Unbind)
		}
		delete(r.handles, st.Unbind)
	default:
		res.Err = fmt.Errorf("%w: empty step", ErrInvalidScenario)
	}

	res.Calls = r.calls
	r.calls = nil
	return res
}

// listener builds the traced listener for a scripted binding.
func (r *Runner) listener(b Binding) (bus.Listener, error) {
	var vetoOn *regexp.Regexp
	if b.VetoOn != "" {
		re, err := regexp.Compile(b.VetoOn)
		if err != nil {
			return nil, fmt.Errorf("%w: binding %q veto_on: %v", ErrInvalidScenario, b.Name, err)
		}
		vetoOn = re
	}
	if b.Mirror && r.mirror == nil {
		return nil, ErrNoMirror
	}

	return bus.ListenerFunc(func(name, pattern string, evt *bus.Event) (bus.Result, error) {
		call := Call{Binding: b.Name, Event: name, Pattern: pattern, Result: bus.Continue}

		if b.Mirror {
			if _, err := r.mirror.Notify(name, pattern, evt); err != nil {
				call.Err = err.Error()
				r.calls = append(r.calls, call)
				return bus.Continue, err
			}
		}
		if b.Fail != "" {
			err := errors.New(b.Fail)
			call.Err = err.Error()
			r.calls = append(r.calls, call)
			return bus.Continue, err
		}
		if b.Veto || (vetoOn != nil && vetoOn.MatchString(name)) {
			call.Result = bus.Veto
		}
		r.calls = append(r.calls, call)
		return call.Result, nil
	}), nil
}
