package status

import (
	"fmt"
	"slices"
	"sync"

	"github.com/matheus3301/wisp/internal/bus"
)

// State represents the lifecycle state of a channel view.
type State string

const (
	// Opening: the view exists but the initial snapshot has not landed yet.
	Opening State = "OPENING"
	// Live: snapshot applied, change feed flowing.
	Live State = "LIVE"
	// Degraded: the change feed dropped events or the transport is
	// misbehaving; the view may lag until it resnapshots.
	Degraded State = "DEGRADED"
	// Closed: terminal. A closed view never transitions again.
	Closed State = "CLOSED"
)

// validTransitions defines allowed state transitions.
var validTransitions = map[State][]State{
	Opening:  {Live, Degraded, Closed},
	Live:     {Degraded, Closed},
	Degraded: {Live, Closed},
	Closed:   {},
}

// Machine tracks and enforces channel view state transitions.
type Machine struct {
	mu      sync.RWMutex
	current State
	channel string
	bus     *bus.Bus
}

// NewMachine creates a new state machine for the given channel,
// starting in Opening state.
func NewMachine(channelKey string, b *bus.Bus) *Machine {
	return &Machine{
		current: Opening,
		channel: channelKey,
		bus:     b,
	}
}

// Current returns the current state.
func (m *Machine) Current() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current
}

// Transition attempts to move to a new state. Returns error if transition is invalid.
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
		m.bus.Publish(bus.Emit(bus.KindChannelStatusChanged, StatusChange{
			ChannelKey: m.channel,
			From:       from,
			To:         to,
		}))
	}
	return nil
}

// StatusChange is the payload for channel status change events.
type StatusChange struct {
	ChannelKey string
	From       State
	To         State
}
