package sync

import "testing"

// TestEmitterDelivers verifies subscribers receive emitted events.
func TestEmitterDelivers(t *testing.T) {
	e := NewEmitter()

	var got []Event
	e.Subscribe(func(ev Event) { got = append(got, ev) })

	e.Emit(Event{Type: EventSyncStarted, Key: lockKey()})
	e.Emit(Event{Type: EventSyncFinished, Key: lockKey(), Updated: true})

	if len(got) != 2 {
		t.Fatalf("got %d events, want 2", len(got))
	}
	if got[0].Type != EventSyncStarted || got[1].Type != EventSyncFinished {
		t.Errorf("event types = [%s %s]", got[0].Type, got[1].Type)
	}
	if !got[1].Updated {
		t.Error("second event Updated = false, want true")
	}
}

// TestEmitterUnsubscribe verifies a removed subscriber stops receiving.
func TestEmitterUnsubscribe(t *testing.T) {
	e := NewEmitter()

	count := 0
	cancel := e.Subscribe(func(Event) { count++ })

	e.Emit(Event{Type: EventSyncStarted})
	cancel()
	e.Emit(Event{Type: EventSyncFinished})

	if count != 1 {
		t.Errorf("got %d deliveries after unsubscribe, want 1", count)
	}
}
