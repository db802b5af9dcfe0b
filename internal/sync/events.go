package sync

import (
	gosync "sync"

	"github.com/mviana/offcourse/internal/models"
)

// EventType discriminates sync lifecycle notifications.
type EventType string

const (
	// EventSyncStarted fires when an entity's run begins (not for joiners).
	EventSyncStarted EventType = "sync_started"

	// EventSyncFinished fires when an entity's run ends, success or not.
	EventSyncFinished EventType = "sync_finished"

	// EventAutoSynced fires when a scheduler sweep synced an entity that
	// had pending changes, so open views can refresh.
	EventAutoSynced EventType = "auto_synced"
)

// Event is one sync lifecycle notification.
type Event struct {
	Type     EventType        `json:"type"`
	Key      models.EntityKey `json:"key"`
	Updated  bool             `json:"updated"`
	Warnings []string         `json:"warnings,omitempty"`
	Error    string           `json:"error,omitempty"`
}

// Emitter fans events out to subscribers. Callbacks run synchronously on
// the emitting goroutine and must not block.
type Emitter struct {
	mu     gosync.Mutex
	subs   map[int]func(Event)
	nextID int
}

// NewEmitter creates an emitter with no subscribers.
func NewEmitter() *Emitter {
	return &Emitter{subs: make(map[int]func(Event))}
}

// Subscribe registers a callback and returns its removal function.
func (e *Emitter) Subscribe(fn func(Event)) func() {
	e.mu.Lock()
	id := e.nextID
	e.nextID++
	e.subs[id] = fn
	e.mu.Unlock()

	return func() {
		e.mu.Lock()
		delete(e.subs, id)
		e.mu.Unlock()
	}
}

// Emit delivers the event to every subscriber.
func (e *Emitter) Emit(ev Event) {
	e.mu.Lock()
	subs := make([]func(Event), 0, len(e.subs))
	for _, fn := range e.subs {
		subs = append(subs, fn)
	}
	e.mu.Unlock()

	for _, fn := range subs {
		fn(ev)
	}
}
