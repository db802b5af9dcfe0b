package sync

import (
	"context"
	gosync "sync"

	"github.com/mviana/offcourse/internal/connectivity"
	"github.com/mviana/offcourse/internal/db"
	apperrors "github.com/mviana/offcourse/internal/errors"
	"github.com/mviana/offcourse/internal/logging"
)

// SweepResult summarizes one site-wide sweep.
type SweepResult struct {
	Entities int      `json:"entities"`
	Synced   int      `json:"synced"`
	Failed   int      `json:"failed"`
	Warnings []string `json:"warnings,omitempty"`
}

// sweepRun is an in-flight sweep for one site. Concurrent SyncAll calls
// for the same site join it.
type sweepRun struct {
	done   chan struct{}
	result *SweepResult
	err    error
}

// Orchestrator drives sync across every entity with pending work. One
// entity's failure does not stop the sweep.
type Orchestrator struct {
	repo    db.ActionRepository
	sync    *Synchronizer
	monitor *connectivity.Monitor
	events  *Emitter

	mu     gosync.Mutex
	sweeps map[string]*sweepRun
}

// NewOrchestrator wires a sweep orchestrator.
func NewOrchestrator(repo db.ActionRepository, sync *Synchronizer, monitor *connectivity.Monitor, events *Emitter) *Orchestrator {
	return &Orchestrator{
		repo:    repo,
		sync:    sync,
		monitor: monitor,
		events:  events,
		sweeps:  make(map[string]*sweepRun),
	}
}

// IsSweeping reports whether a sweep for the site is currently running.
func (o *Orchestrator) IsSweeping(siteID string) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	_, ok := o.sweeps[siteID]
	return ok
}

// SyncAll syncs every entity of the site that has pending actions. Pass ""
// to sweep all sites. A concurrent sweep of the same site is joined and
// its result shared.
func (o *Orchestrator) SyncAll(ctx context.Context, siteID string) (*SweepResult, error) {
	if !o.monitor.IsOnline() {
		return nil, apperrors.New(apperrors.ErrOffline, "cannot sweep while offline")
	}

	o.mu.Lock()
	if run, ok := o.sweeps[siteID]; ok {
		o.mu.Unlock()
		<-run.done
		return run.result, run.err
	}
	run := &sweepRun{done: make(chan struct{})}
	o.sweeps[siteID] = run
	o.mu.Unlock()

	defer func() {
		o.mu.Lock()
		delete(o.sweeps, siteID)
		o.mu.Unlock()
		close(run.done)
	}()

	run.result, run.err = o.sweep(ctx, siteID)
	return run.result, run.err
}

// sweep runs the per-entity loop.
func (o *Orchestrator) sweep(ctx context.Context, siteID string) (*SweepResult, error) {
	entities, err := o.repo.ListEntitiesWithActions(siteID)
	if err != nil {
		return nil, err
	}

	sweep := &SweepResult{Entities: len(entities)}
	for _, key := range entities {
		if err := ctx.Err(); err != nil {
			return nil, apperrors.Wrap(apperrors.ErrTransport, "sweep cancelled", err)
		}

		res, err := o.sync.SyncEntity(ctx, key, SyncOptions{})
		if err != nil {
			sweep.Failed++
			logging.Warn("entity sync failed during sweep", map[string]interface{}{
				"entity": key.String(),
				"error":  err.Error(),
			})
			continue
		}

		sweep.Synced++
		sweep.Warnings = append(sweep.Warnings, res.Warnings...)
		if res.Updated && o.events != nil {
			o.events.Emit(Event{
				Type:     EventAutoSynced,
				Key:      key,
				Updated:  true,
				Warnings: res.Warnings,
			})
		}
	}

	logging.Info("sweep finished", map[string]interface{}{
		"site":     siteID,
		"entities": sweep.Entities,
		"synced":   sweep.Synced,
		"failed":   sweep.Failed,
	})
	return sweep, nil
}
