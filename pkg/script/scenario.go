// Package script loads and runs bus scenarios: a list of bindings plus an
// ordered list of steps (fire, flush, bind, unbind) written in YAML or JSON.
//
//	source: checkout
//	bindings:
//	  - name: audit
//	    pattern: '^order\..*$'
//	  - name: guard
//	    pattern: '^order\.cancelled$'
//	    veto: true
//	steps:
//	  - fire: order.created
//	    payload: {id: 1}
//	  - flush: order.created
//
// busctl uses it for both `run` (whole file) and `serve` (one step per
// stdin line, see ParseLine).
package script

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"strings"

	"sigs.k8s.io/yaml"
)

// ErrInvalidScenario is wrapped by every validation failure.
var ErrInvalidScenario = errors.New("script: invalid scenario")

// Scenario is a parsed scenario file.
type Scenario struct {
	Source   string    `json:"source,omitempty"`
	Bindings []Binding `json:"bindings"`
	Steps    []Step    `json:"steps,omitempty"`
}

// Binding describes one scripted listener.
type Binding struct {
	// Name labels the listener in traces and is what Unbind refers to.
	Name    string `json:"name"`
	Pattern string `json:"pattern"`

	// Veto makes the listener veto every event.
	Veto bool `json:"veto,omitempty"`
	// VetoOn makes it veto only names matching this expression.
	VetoOn string `json:"veto_on,omitempty"`
	// Fail makes it return an error with this message.
	Fail string `json:"fail,omitempty"`
	// Mirror forwards events to the Redis mirror instead of only tracing them.
	Mirror bool `json:"mirror,omitempty"`
}

// Step is one action. Exactly one of Fire, Flush, Bind or Unbind is set.
type Step struct {
	Fire    string   `json:"fire,omitempty"`
	Payload any      `json:"payload,omitempty"`
	Source  string   `json:"source,omitempty"`
	Flush   string   `json:"flush,omitempty"`
	Bind    *Binding `json:"bind,omitempty"`
	Unbind  string   `json:"unbind,omitempty"`
}

// Action names the step's action.
func (s Step) Action() string {
	switch {
	case s.Fire != "":
		return "fire"
	case s.Flush != "":
		return "flush"
	case s.Bind != nil:
		return "bind"
	case s.Unbind != "":
		return "unbind"
	default:
		return ""
	}
}

// Target is the event name or binding name the step acts on.
func (s Step) Target() string {
	switch s.Action() {
	case "fire":
		return s.Fire
	case "flush":
		return s.Flush
	case "bind":
		return s.Bind.Name
	case "unbind":
		return s.Unbind
	default:
		return ""
	}
}

// Load reads and parses a scenario file.
func Load(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("script: read %s: %w", path, err)
	}
	sc, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return sc, nil
}

// Parse decodes YAML or JSON and validates the result.
func Parse(data []byte) (*Scenario, error) {
	var sc Scenario
	if err := yaml.Unmarshal(data, &sc); err != nil {
		return nil, fmt.Errorf("script: decode: %w", err)
	}
	if err := sc.Validate(); err != nil {
		return nil, err
	}
	return &sc, nil
}

// Validate checks binding names are unique and every step has one action.
// An unbind step frees its name for a later bind step.
// Bound patterns are not compiled here; the bus reports bad ones on Fire.
func (sc *Scenario) Validate() error {
	names := make(map[string]bool, len(sc.Bindings))
	for i := range sc.Bindings {
		if err := validateBinding(sc.Bindings[i], names); err != nil {
			return fmt.Errorf("bindings[%d]: %w", i, err)
		}
	}

	for i, st := range sc.Steps {
		if err := validateStep(st, names); err != nil {
			return fmt.Errorf("steps[%d]: %w", i, err)
		}
	}
	return nil
}

func validateBinding(b Binding, names map[string]bool) error {
	if b.Name == "" {
		return fmt.Errorf("%w: binding without name", ErrInvalidScenario)
	}
	if names[b.Name] {
		return fmt.Errorf("%w: duplicate binding %q", ErrInvalidScenario, b.Name)
	}
	if b.Pattern == "" {
		return fmt.Errorf("%w: binding %q has no pattern", ErrInvalidScenario, b.Name)
	}
	if b.VetoOn != "" {
		if _, err := regexp.Compile(b.VetoOn); err != nil {
			return fmt.Errorf("%w: binding %q veto_on: %v", ErrInvalidScenario, b.Name, err)
		}
	}
	names[b.Name] = true
	return nil
}

func validateStep(st Step, names map[string]bool) error {
	set := 0
	for _, on := range []bool{st.Fire != "", st.Flush != "", st.Bind != nil, st.Unbind != ""} {
		if on {
			set++
		}
	}
	if set != 1 {
		return fmt.Errorf("%w: step must have exactly one of fire, flush, bind, unbind", ErrInvalidScenario)
	}
	if st.Bind != nil {
		return validateBinding(*st.Bind, names)
	}
	if st.Unbind != "" {
		delete(names, st.Unbind)
	}
	return nil
}

// ParseLine turns one interactive command into a Step:
//
//	fire <name> [payload]   payload is YAML or JSON, e.g. {"id": 1}
//	flush <name>
//	unbind <binding>
//	bind <binding> <pattern>
func ParseLine(line string) (Step, error) {
	fields := strings.Fields(line)
	if len(fields) < 2 {
		return Step{}, fmt.Errorf("%w: want <command> <argument>, got %q", ErrInvalidScenario, line)
	}

	switch cmd := strings.ToLower(fields[0]); cmd {
	case "fire":
		st := Step{Fire: fields[1]}
		args := strings.TrimSpace(strings.TrimSpace(line)[len(fields[0]):])
		if rest := strings.TrimSpace(args[len(fields[1]):]); rest != "" {
			if err := yaml.Unmarshal([]byte(rest), &st.Payload); err != nil {
				return Step{}, fmt.Errorf("%w: payload: %v", ErrInvalidScenario, err)
			}
		}
		return st, nil
	case "flush":
		return Step{Flush: fields[1]}, nil
	case "unbind":
		return Step{Unbind: fields[1]}, nil
	case "bind":
		if len(fields) != 3 {
			return Step{}, fmt.Errorf("%w: want bind <binding> <pattern>", ErrInvalidScenario)
		}
		return Step{Bind: &Binding{Name: fields[1], Pattern: fields[2]}}, nil
	default:
		return Step{}, fmt.Errorf("%w: unknown command %q", ErrInvalidScenario, cmd)
	}
}
