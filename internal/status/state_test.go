package status

import (
	"testing"
	"time"

	"github.com/matheus3301/wisp/internal/bus"
)

func TestInitialState(t *testing.T) {
	m := NewMachine("a_b", nil)
	if m.Current() != Opening {
		t.Errorf("initial state = %s, want OPENING", m.Current())
	}
}

func TestValidTransitions(t *testing.T) {
	tests := []struct {
		walk []State
	}{
		{[]State{Live}},
		{[]State{Live, Degraded}},
		{[]State{Live, Degraded, Live}},
		{[]State{Degraded, Closed}},
		{[]State{Live, Closed}},
		{[]State{Closed}},
	}
	for _, tt := range tests {
		m := NewMachine("a_b", nil)
		for _, to := range tt.walk {
			if err := m.Transition(to); err != nil {
				t.Errorf("walk %v: Transition(%s) error = %v", tt.walk, to, err)
				break
			}
		}
	}
}

func TestInvalidTransition(t *testing.T) {
	m := NewMachine("a_b", nil)
	if err := m.Transition(Opening); err == nil {
		t.Error("Transition(OPENING -> OPENING) should fail")
	}

	// Closed is terminal.
	if err := m.Transition(Closed); err != nil {
		t.Fatal(err)
	}
	for _, to := range []State{Opening, Live, Degraded} {
		if err := m.Transition(to); err == nil {
			t.Errorf("Transition(CLOSED -> %s) should fail", to)
		}
	}
}

func TestTransitionEmitsEvent(t *testing.T) {
	b := bus.New()
	sub := b.Subscribe("channel.", 10)
	defer sub.Cancel()

	m := NewMachine("a_b", b)
	if err := m.Transition(Live); err != nil {
		t.Fatal(err)
	}

	select {
	case evt := <-sub.C:
		if evt.Kind != bus.KindChannelStatusChanged {
			t.Errorf("event kind = %s", evt.Kind)
		}
		change, ok := evt.Payload.(StatusChange)
		if !ok {
			t.Fatalf("payload type = %T", evt.Payload)
		}
		if change.ChannelKey != "a_b" || change.From != Opening || change.To != Live {
			t.Errorf("change = %+v", change)
		}
	case <-time.After(time.Second):
		t.Fatal("no status event received")
	}
}
