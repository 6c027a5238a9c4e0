// Package account tracks one account's runtime lifecycle: credential
// verification, initial timeline loading and the gate that holds streaming
// back until every timeline finished its first load.
package account

import (
	"fmt"
	"slices"
	"sync"

	"github.com/fastsm/fastsm/internal/bus"
)

// State represents an account's runtime state.
type State string

const (
	Booting      State = "BOOTING"
	AuthRequired State = "AUTH_REQUIRED"
	Verifying    State = "VERIFYING"
	Loading      State = "LOADING"
	Ready        State = "READY"
	Reconnecting State = "RECONNECTING"
	Degraded     State = "DEGRADED"
	Error        State = "ERROR"
)

// validTransitions defines allowed state transitions.
var validTransitions = map[State][]State{
	Booting:      {AuthRequired, Verifying, Error},
	AuthRequired: {Verifying, Error},
	Verifying:    {Loading, AuthRequired, Reconnecting, Error},
	Loading:      {Ready, Reconnecting, Degraded, Error},
	Ready:        {Reconnecting, Degraded, AuthRequired, Error},
	Reconnecting: {Verifying, Degraded, Error},
	Degraded:     {Verifying, Reconnecting, Ready, Error},
	Error:        {Booting},
}

// Machine tracks and enforces one account's state transitions.
type Machine struct {
	mu      sync.RWMutex
	name    string
	current State
	bus     *bus.Bus
}

// NewMachine creates a state machine for the named account, starting in
// Booting.
func NewMachine(name string, b *bus.Bus) *Machine {
	return &Machine{
		name:    name,
		current: Booting,
		bus:     b,
	}
}

// Current returns the current state.
func (m *Machine) Current() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current
}

// Transition attempts to move to a new state. Returns an error if the
// transition is invalid; the state does not change.
func (m *Machine) Transition(to State) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	allowed := validTransitions[m.current]
	if !slices.Contains(allowed, to) {
		return fmt.Errorf("invalid transition from %s to %s", m.current, to)
	}
	from := m.current
	m.current = to
	if m.bus != nil {
		m.bus.Publish(bus.Event{
			Kind:    bus.KindAccountState,
			Account: m.name,
			Payload: Change{From: from, To: to},
		})
	}
	return nil
}

// Change is the payload for account state events.
type Change struct {
	From State
	To   State
}
