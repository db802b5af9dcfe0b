// Package connectivity tracks whether the device currently has a usable
// network connection. The host application reports transitions; the sync
// engine and scheduler consult and subscribe.
package connectivity

import "sync"

// Monitor holds the current online state and notifies subscribers on change.
type Monitor struct {
	mu          sync.RWMutex
	online      bool
	subscribers map[int]func(online bool)
	nextID      int
}

// NewMonitor returns a monitor that starts in the given state.
func NewMonitor(online bool) *Monitor {
	return &Monitor{
		online:      online,
		subscribers: make(map[int]func(online bool)),
	}
}

// IsOnline reports the current connectivity state.
func (m *Monitor) IsOnline() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.online
}

// SetOnline records a connectivity transition. Subscribers are notified
// only on an actual change, outside the lock.
func (m *Monitor) SetOnline(online bool) {
	m.mu.Lock()
	if m.online == online {
		m.mu.Unlock()
		return
	}
	m.online = online
	subs := make([]func(bool), 0, len(m.subscribers))
	for _, fn := range m.subscribers {
		subs = append(subs, fn)
	}
	m.mu.Unlock()

	for _, fn := range subs {
		fn(online)
	}
}

// Subscribe registers a callback for connectivity transitions and returns
// a function that removes it.
func (m *Monitor) Subscribe(fn func(online bool)) func() {
	m.mu.Lock()
	id := m.nextID
	m.nextID++
	m.subscribers[id] = fn
	m.mu.Unlock()

	return func() {
		m.mu.Lock()
		delete(m.subscribers, id)
		m.mu.Unlock()
	}
}
