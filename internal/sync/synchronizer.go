package sync

import (
	"context"

	"github.com/mviana/offcourse/internal/connectivity"
	"github.com/mviana/offcourse/internal/db"
	apperrors "github.com/mviana/offcourse/internal/errors"
	"github.com/mviana/offcourse/internal/logging"
	"github.com/mviana/offcourse/internal/models"
	"github.com/mviana/offcourse/internal/rpc"
	"github.com/mviana/offcourse/internal/uploads"
)

// SyncOptions tunes one entity sync request.
type SyncOptions struct {
	// Force bypasses the minimum-interval throttle.
	Force bool
}

// Invalidator drops cached remote views of an entity after its queue has
// been replayed, so the next fetch reflects the server's state. Optional;
// invoked whenever a run contacted the server, including runs that stopped
// early on a transport failure.
type Invalidator interface {
	InvalidateEntity(ctx context.Context, key models.EntityKey) error
}

// Synchronizer replays one entity's pending actions against the remote
// server, in order, under the entity's lock.
//
// Outcome per action: success and permanent rejection are terminal (the
// action is deleted, rejection also leaves a warning); a transport failure
// stops the run and keeps the failed action and everything after it for the
// next attempt.
type Synchronizer struct {
	repo     db.SyncRepository
	locks    *LockRegistry
	tracker  *TimeTracker
	registry *Registry
	client   rpc.Client
	uploader uploads.Uploader
	files    *uploads.Manager
	monitor  *connectivity.Monitor
	events   *Emitter
	caches   Invalidator

	// retryable holds server error codes treated as transient. A rejection
	// carrying one of these stops the run like a transport failure instead
	// of discarding the action.
	retryable map[string]bool
}

// SynchronizerConfig collects the synchronizer's dependencies.
type SynchronizerConfig struct {
	Repo           db.SyncRepository
	Locks          *LockRegistry
	Tracker        *TimeTracker
	Registry       *Registry
	Client         rpc.Client
	Uploader       uploads.Uploader
	Files          *uploads.Manager
	Monitor        *connectivity.Monitor
	Events         *Emitter
	Invalidator    Invalidator
	RetryableCodes []string
}

// NewSynchronizer wires a synchronizer from its dependencies.
func NewSynchronizer(cfg SynchronizerConfig) *Synchronizer {
	retryable := make(map[string]bool, len(cfg.RetryableCodes))
	for _, code := range cfg.RetryableCodes {
		retryable[code] = true
	}
	return &Synchronizer{
		repo:      cfg.Repo,
		locks:     cfg.Locks,
		tracker:   cfg.Tracker,
		registry:  cfg.Registry,
		client:    cfg.Client,
		uploader:  cfg.Uploader,
		files:     cfg.Files,
		monitor:   cfg.Monitor,
		events:    cfg.Events,
		caches:    cfg.Invalidator,
		retryable: retryable,
	}
}

// Locks exposes the registry so callers can block entities around
// destructive operations.
func (s *Synchronizer) Locks() *LockRegistry {
	return s.locks
}

// SyncEntity syncs one entity. Concurrent calls for the same entity join
// the in-flight run and receive its result. A blocked entity fails
// immediately with no state touched.
func (s *Synchronizer) SyncEntity(ctx context.Context, key models.EntityKey, opts SyncOptions) (*SyncResult, error) {
	if s.locks.IsBlocked(key) {
		return nil, apperrors.Newf(apperrors.ErrSyncBlocked, "entity %s is blocked", key.String())
	}

	return s.locks.AcquireOrJoin(key, func() (*SyncResult, error) {
		result, err := s.run(ctx, key, opts)
		if s.events != nil {
			ev := Event{Type: EventSyncFinished, Key: key}
			if result != nil {
				ev.Updated = result.Updated
				ev.Warnings = result.Warnings
			}
			if err != nil {
				ev.Error = err.Error()
			}
			s.events.Emit(ev)
		}
		return result, err
	})
}

// run executes the sync under the entity's lock.
func (s *Synchronizer) run(ctx context.Context, key models.EntityKey, opts SyncOptions) (*SyncResult, error) {
	due, err := s.tracker.ShouldSync(key, opts.Force)
	if err != nil {
		return nil, err
	}
	if !due {
		// Recently synced: report the stored warnings without touching
		// the server.
		warnings, err := s.tracker.Warnings(key)
		if err != nil {
			return nil, err
		}
		logging.Debug("sync skipped, recently synced", map[string]interface{}{"entity": key.String()})
		return &SyncResult{Updated: false, Warnings: warnings}, nil
	}

	if s.events != nil {
		s.events.Emit(Event{Type: EventSyncStarted, Key: key})
	}

	actions, err := s.repo.ListActionsByEntity(key)
	if err != nil {
		return nil, err
	}

	result, runErr := s.replay(ctx, key, actions)

	// Stamp the attempt time whether the run completed or failed, so
	// automatic retries during a sustained outage stay on the normal
	// interval instead of busy-looping.
	if stampErr := s.tracker.MarkSynced(key, result.Warnings); stampErr != nil {
		if runErr == nil {
			return nil, stampErr
		}
		logging.Error("failed to record sync attempt", stampErr, map[string]interface{}{
			"entity": key.String(),
		})
	}
	if runErr != nil {
		return nil, runErr
	}

	logging.Info("entity synced", map[string]interface{}{
		"entity":   key.String(),
		"updated":  result.Updated,
		"warnings": len(result.Warnings),
	})
	return result, nil
}

// replay walks the queue in order. It always returns a result carrying the
// warnings accumulated before any failure, so they survive an early stop.
func (s *Synchronizer) replay(ctx context.Context, key models.EntityKey, actions []*models.OfflineAction) (*SyncResult, error) {
	result := &SyncResult{}
	if len(actions) == 0 {
		return result, nil
	}
	if !s.monitor.IsOnline() {
		return result, apperrors.New(apperrors.ErrOffline, "cannot sync while offline")
	}

	run := NewRunContext(s.client, s.uploader, s.files)

	contacted := false
	defer func() {
		if contacted {
			s.invalidate(ctx, key)
		}
	}()

	for _, action := range actions {
		if err := ctx.Err(); err != nil {
			return result, apperrors.Wrap(apperrors.ErrTransport, "sync cancelled", err)
		}

		handler, err := s.registry.Lookup(action.Kind)
		if err != nil {
			return result, err
		}

		contacted = true
		replayErr := handler(ctx, run, action)
		if replayErr == nil {
			if err := s.finishAction(action); err != nil {
				return result, err
			}
			result.Updated = true
			continue
		}

		switch {
		case apperrors.Is(replayErr, apperrors.ErrServerRejected):
			if code := rpc.ErrorCodeOf(replayErr); s.retryable[code] {
				// Transient by configuration: keep the action and stop.
				return result, replayErr
			}
			// The server will never accept this action. Drop it so it
			// cannot wedge the queue, and tell the user.
			warning := discardWarning(action, rejectionReason(replayErr))
			logging.Warn("offline action rejected by server", map[string]interface{}{
				"entity": key.String(),
				"kind":   string(action.Kind),
			})
			if err := s.finishAction(action); err != nil {
				return result, err
			}
			result.Updated = true
			result.Warnings = append(result.Warnings, warning)

		case apperrors.Is(replayErr, apperrors.ErrMissingParent):
			// The parent was rejected earlier in this run; this action
			// can never apply.
			warning := discardWarning(action, replayErr.Error())
			if err := s.finishAction(action); err != nil {
				return result, err
			}
			result.Updated = true
			result.Warnings = append(result.Warnings, warning)

		default:
			// Transport or storage failure: the action and everything
			// after it stay queued, in order, for the next run.
			return result, replayErr
		}
	}

	return result, nil
}

// invalidate asks the optional cache hook to drop stale views of the
// entity. Failures are logged, never fatal to the run.
func (s *Synchronizer) invalidate(ctx context.Context, key models.EntityKey) {
	if s.caches == nil {
		return
	}
	if err := s.caches.InvalidateEntity(ctx, key); err != nil {
		logging.Warn("cache invalidation failed", map[string]interface{}{
			"entity": key.String(),
			"error":  err.Error(),
		})
	}
}

// finishAction removes a terminally handled action and its staged files.
func (s *Synchronizer) finishAction(action *models.OfflineAction) error {
	if err := s.repo.DeleteOfflineAction(action.EntityKey(), action.SequenceID); err != nil {
		return err
	}
	if s.files != nil {
		if err := s.files.ReleaseAction(action.ID); err != nil {
			return err
		}
	}
	return nil
}

// rejectionReason extracts the server's message from a rejection error.
func rejectionReason(err error) string {
	for e := err; e != nil; {
		if se, ok := e.(*rpc.ServerError); ok {
			if se.Message != "" {
				return se.Message
			}
			return se.ErrorCode
		}
		u, ok := e.(interface{ Unwrap() error })
		if !ok {
			break
		}
		e = u.Unwrap()
	}
	return err.Error()
}
