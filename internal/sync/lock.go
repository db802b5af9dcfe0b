package sync

import (
	gosync "sync"

	apperrors "github.com/mviana/offcourse/internal/errors"
	"github.com/mviana/offcourse/internal/models"
)

// inflight is one running sync. done is closed once result and err are set.
type inflight struct {
	done   chan struct{}
	result *SyncResult
	err    error
}

// LockRegistry serializes sync runs per entity. A caller hitting a key that
// is already running joins the in-flight run instead of starting a second
// one. It also tracks blocked entities: operations like a course deletion
// block an entity's sync until released.
type LockRegistry struct {
	mu      gosync.Mutex
	running map[string]*inflight
	blocked map[string]int
}

// NewLockRegistry creates an empty registry.
func NewLockRegistry() *LockRegistry {
	return &LockRegistry{
		running: make(map[string]*inflight),
		blocked: make(map[string]int),
	}
}

// AcquireOrJoin runs fn under the entity's lock, or waits for the run
// already holding it and returns that run's result. fn executes on the
// caller's goroutine. The lock is released even if fn panics.
func (r *LockRegistry) AcquireOrJoin(key models.EntityKey, fn func() (*SyncResult, error)) (*SyncResult, error) {
	k := key.String()

	r.mu.Lock()
	if in, ok := r.running[k]; ok {
		r.mu.Unlock()
		<-in.done
		return in.result, in.err
	}
	in := &inflight{done: make(chan struct{})}
	r.running[k] = in
	r.mu.Unlock()

	completed := false
	defer func() {
		if !completed {
			// fn panicked. Joiners must still get an error, not a nil
			// result, before the panic unwinds past them.
			in.err = apperrors.Newf(apperrors.ErrInternal, "sync run for %s aborted", k)
		}
		r.mu.Lock()
		delete(r.running, k)
		r.mu.Unlock()
		close(in.done)
	}()

	in.result, in.err = fn()
	completed = true
	return in.result, in.err
}

// IsSyncing reports whether a run currently holds the entity's lock.
func (r *LockRegistry) IsSyncing(key models.EntityKey) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.running[key.String()]
	return ok
}

// Block marks an entity as not syncable. Calls nest: each Block needs a
// matching Unblock.
func (r *LockRegistry) Block(key models.EntityKey) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.blocked[key.String()]++
}

// Unblock releases one Block. Unblocking an entity that is not blocked is
// a no-op.
func (r *LockRegistry) Unblock(key models.EntityKey) {
	r.mu.Lock()
	defer r.mu.Unlock()
	k := key.String()
	if r.blocked[k] <= 1 {
		delete(r.blocked, k)
		return
	}
	r.blocked[k]--
}

// IsBlocked reports whether the entity currently rejects sync attempts.
func (r *LockRegistry) IsBlocked(key models.EntityKey) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.blocked[key.String()] > 0
}
