package account

import (
	"testing"

	"github.com/fastsm/fastsm/internal/bus"
)

func TestInitialState(t *testing.T) {
	m := NewMachine("test", nil)
	if m.Current() != Booting {
		t.Errorf("initial state = %s, want BOOTING", m.Current())
	}
}

func TestValidTransitions(t *testing.T) {
	tests := []struct {
		from State
		to   State
	}{
		{Booting, AuthRequired},
		{Booting, Verifying},
		{Booting, Error},
		{AuthRequired, Verifying},
		{Verifying, Loading},
		{Loading, Ready},
		{Ready, Reconnecting},
		{Reconnecting, Verifying},
	}
	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			m := NewMachine("test", nil)
			walkTo(t, m, tt.from)
			if err := m.Transition(tt.to); err != nil {
				t.Errorf("Transition(%s -> %s) error = %v", tt.from, tt.to, err)
			}
			if m.Current() != tt.to {
				t.Errorf("state = %s, want %s", m.Current(), tt.to)
			}
		})
	}
}

func TestInvalidTransition(t *testing.T) {
	m := NewMachine("test", nil)
	if err := m.Transition(Ready); err == nil {
		t.Error("Transition(BOOTING -> READY) should fail")
	}
}

func TestTransitionEmitsEvent(t *testing.T) {
	b := bus.New()
	ch, unsub := b.Subscribe("account.", 10)
	defer unsub()

	m := NewMachine("test", b)
	if err := m.Transition(AuthRequired); err != nil {
		t.Fatal(err)
	}

	evt := <-ch
	if evt.Kind != bus.KindAccountState {
		t.Errorf("event kind = %q, want %s", evt.Kind, bus.KindAccountState)
	}
	if evt.Account != "test" {
		t.Errorf("event account = %q, want test", evt.Account)
	}
	change, ok := evt.Payload.(Change)
	if !ok {
		t.Fatalf("payload type = %T, want Change", evt.Payload)
	}
	if change.From != Booting || change.To != AuthRequired {
		t.Errorf("change = %v -> %v, want BOOTING -> AUTH_REQUIRED", change.From, change.To)
	}
}

// TestFirstRunLifecycle simulates a first run with no stored credentials:
// BOOTING → AUTH_REQUIRED → VERIFYING → LOADING → READY
func TestFirstRunLifecycle(t *testing.T) {
	m := NewMachine("test", nil)

	steps := []State{AuthRequired, Verifying, Loading, Ready}
	for _, s := range steps {
		if err := m.Transition(s); err != nil {
			t.Fatalf("Transition to %s: %v (current: %s)", s, err, m.Current())
		}
	}
	if m.Current() != Ready {
		t.Errorf("final state = %s, want READY", m.Current())
	}
}

// TestReturningUserLifecycle simulates a start with valid stored credentials:
// BOOTING → VERIFYING → LOADING → READY
func TestReturningUserLifecycle(t *testing.T) {
	m := NewMachine("test", nil)

	steps := []State{Verifying, Loading, Ready}
	for _, s := range steps {
		if err := m.Transition(s); err != nil {
			t.Fatalf("Transition to %s: %v (current: %s)", s, err, m.Current())
		}
	}
	if m.Current() != Ready {
		t.Errorf("final state = %s, want READY", m.Current())
	}
}

// TestStreamDropRecovery verifies the reconnect loop after a dropped stream:
// READY → RECONNECTING → VERIFYING → LOADING → READY
func TestStreamDropRecovery(t *testing.T) {
	m := NewMachine("test", nil)
	walkTo(t, m, Ready)

	steps := []State{Reconnecting, Verifying, Loading, Ready}
	for _, s := range steps {
		if err := m.Transition(s); err != nil {
			t.Fatalf("Transition to %s: %v (current: %s)", s, err, m.Current())
		}
	}
	if m.Current() != Ready {
		t.Errorf("final state = %s, want READY", m.Current())
	}
}

// TestRevokedTokenFromReady verifies that a credential failure from READY
// lands in AUTH_REQUIRED.
func TestRevokedTokenFromReady(t *testing.T) {
	m := NewMachine("test", nil)
	walkTo(t, m, Ready)

	if err := m.Transition(AuthRequired); err != nil {
		t.Fatalf("READY -> AUTH_REQUIRED: %v", err)
	}
	if m.Current() != AuthRequired {
		t.Errorf("state = %s, want AUTH_REQUIRED", m.Current())
	}
}

func TestGateOpensAfterAllCompletions(t *testing.T) {
	g := NewGate(3)
	select {
	case <-g.Done():
		t.Fatal("gate open before any completion")
	default:
	}

	if g.Complete() {
		t.Error("gate opened after 1 of 3")
	}
	g.Complete()
	if !g.Complete() {
		t.Error("final completion did not open the gate")
	}
	select {
	case <-g.Done():
	default:
		t.Error("Done() not closed after all completions")
	}

	// Extra completions after opening are ignored.
	if g.Complete() {
		t.Error("completion after open returned true")
	}
}

func TestGateWithZeroTimelines(t *testing.T) {
	g := NewGate(0)
	select {
	case <-g.Done():
	default:
		t.Error("empty gate should start open")
	}
}

// walkTo is a helper that transitions the machine to a target state.
func walkTo(t *testing.T, m *Machine, target State) {
	t.Helper()
	paths := map[State][]State{
		Booting:      {},
		AuthRequired: {AuthRequired},
		Verifying:    {AuthRequired, Verifying},
		Loading:      {Verifying, Loading},
		Ready:        {Verifying, Loading, Ready},
		Reconnecting: {Verifying, Loading, Ready, Reconnecting},
		Degraded:     {Verifying, Loading, Degraded},
		Error:        {Error},
	}
	for _, s := range paths[target] {
		if err := m.Transition(s); err != nil {
			t.Fatalf("walkTo(%s): %v", target, err)
		}
	}
}
