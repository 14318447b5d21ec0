// Package workload describes what the load run registers and drives: the
// state machine definition, the event applied to each instance and the
// identifiers of machines and instances.
package workload

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/oklog/ulid/v2"
	"gopkg.in/yaml.v3"
)

const (
	// DefaultEvent is applied repeatedly to every instance.
	DefaultEvent = "NEXT"
	// DefaultVersion is the machine version registered for the run.
	DefaultVersion uint32 = 1

	idPrefix     = "loadtest"
	suffixLength = 8
)

// Transition moves an instance from one state to another on an event.
type Transition struct {
	From  string `yaml:"from" json:"from"`
	Event string `yaml:"event" json:"event"`
	To    string `yaml:"to" json:"to"`
}

// Definition is a state machine definition as accepted by PUT_MACHINE.
type Definition struct {
	States      []string     `yaml:"states" json:"states"`
	Initial     string       `yaml:"initial" json:"initial"`
	Transitions []Transition `yaml:"transitions" json:"transitions"`
}

// DefaultDefinition is a five-state ring s0 -> s1 -> ... -> s4 -> s0 driven by
// DefaultEvent, so any number of applies keeps succeeding.
func DefaultDefinition() Definition {
	const n = 5
	def := Definition{Initial: "s0"}
	for i := 0; i < n; i++ {
		def.States = append(def.States, fmt.Sprintf("s%d", i))
		def.Transitions = append(def.Transitions, Transition{
			From:  fmt.Sprintf("s%d", i),
			Event: DefaultEvent,
			To:    fmt.Sprintf("s%d", (i+1)%n),
		})
	}
	return def
}

// LoadDefinition reads a YAML or JSON machine definition from path.
func LoadDefinition(path string) (Definition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Definition{}, fmt.Errorf("read machine definition: %w", err)
	}
	var def Definition
	if err := yaml.Unmarshal(data, &def); err != nil {
		return Definition{}, fmt.Errorf("parse machine definition %s: %w", path, err)
	}
	if err := def.Validate(); err != nil {
		return Definition{}, fmt.Errorf("machine definition %s: %w", path, err)
	}
	return def, nil
}

// Validate checks that the definition is self-consistent.
func (d Definition) Validate() error {
	if len(d.States) == 0 {
		return errors.New("no states defined")
	}
	known := make(map[string]struct{}, len(d.States))
	for _, s := range d.States {
		if strings.TrimSpace(s) == "" {
			return errors.New("state names must not be empty")
		}
		known[s] = struct{}{}
	}
	if _, ok := known[d.Initial]; !ok {
		return fmt.Errorf("initial state %q is not a declared state", d.Initial)
	}
	for i, t := range d.Transitions {
		if t.Event == "" {
			return fmt.Errorf("transitions[%d]: event is required", i)
		}
		if _, ok := known[t.From]; !ok {
			return fmt.Errorf("transitions[%d]: unknown from state %q", i, t.From)
		}
		if _, ok := known[t.To]; !ok {
			return fmt.Errorf("transitions[%d]: unknown to state %q", i, t.To)
		}
	}
	return nil
}

// HasEvent reports whether any transition is triggered by event.
func (d Definition) HasEvent(event string) bool {
	for _, t := range d.Transitions {
		if t.Event == event {
			return true
		}
	}
	return false
}

// JSON encodes the definition for the wire.
func (d Definition) JSON() (json.RawMessage, error) {
	raw, err := json.Marshal(d)
	if err != nil {
		return nil, fmt.Errorf("encode machine definition: %w", err)
	}
	return raw, nil
}

// Suffix returns a random lowercase token derived from a fresh ULID.
func Suffix() string {
	id := ulid.Make().String()
	return strings.ToLower(id[len(id)-suffixLength:])
}

// MachineName returns a machine name unique to this run.
func MachineName() string {
	return idPrefix + "-" + Suffix()
}

// InstanceID returns the identifier of the index-th item of a worker.
func InstanceID(worker, index int) string {
	return fmt.Sprintf("%s-%d-%d-%s", idPrefix, worker, index, Suffix())
}
