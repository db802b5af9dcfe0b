package connectivity

import "testing"

// TestMonitorInitialState verifies the constructor seeds the state.
func TestMonitorInitialState(t *testing.T) {
	if !NewMonitor(true).IsOnline() {
		t.Error("IsOnline() = false, want true")
	}
	if NewMonitor(false).IsOnline() {
		t.Error("IsOnline() = true, want false")
	}
}

// TestMonitorNotifiesOnTransition verifies subscribers fire only on change.
func TestMonitorNotifiesOnTransition(t *testing.T) {
	m := NewMonitor(false)

	var calls []bool
	m.Subscribe(func(online bool) {
		calls = append(calls, online)
	})

	m.SetOnline(false) // no transition
	m.SetOnline(true)
	m.SetOnline(true) // no transition
	m.SetOnline(false)

	if len(calls) != 2 {
		t.Fatalf("got %d notifications, want 2", len(calls))
	}
	if !calls[0] || calls[1] {
		t.Errorf("notifications = %v, want [true false]", calls)
	}
}

// TestMonitorUnsubscribe verifies a removed subscriber stops receiving.
func TestMonitorUnsubscribe(t *testing.T) {
	m := NewMonitor(false)

	count := 0
	cancel := m.Subscribe(func(bool) { count++ })

	m.SetOnline(true)
	cancel()
	m.SetOnline(false)

	if count != 1 {
		t.Errorf("got %d notifications after unsubscribe, want 1", count)
	}
}
