// Package scheduler triggers background sweeps of pending offline actions.
// While online it sweeps on a fixed interval; it also sweeps immediately
// when connectivity comes back, which is when queued work is most likely
// waiting.
package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/mviana/offcourse/internal/connectivity"
	"github.com/mviana/offcourse/internal/logging"
	syncpkg "github.com/mviana/offcourse/internal/sync"
)

// Sweeper runs a site-wide sync sweep. Implemented by sync.Orchestrator.
type Sweeper interface {
	SyncAll(ctx context.Context, siteID string) (*syncpkg.SweepResult, error)
	IsSweeping(siteID string) bool
}

// Config holds scheduler tuning.
type Config struct {
	// SweepInterval is how often to sweep while online.
	SweepInterval time.Duration

	// SweepTimeout bounds one sweep.
	SweepTimeout time.Duration
}

// DefaultConfig returns the scheduler defaults.
func DefaultConfig() *Config {
	return &Config{
		SweepInterval: 15 * time.Minute,
		SweepTimeout:  5 * time.Minute,
	}
}

// Scheduler owns the background sweep loop for one site.
type Scheduler struct {
	sweeper  Sweeper
	monitor  *connectivity.Monitor
	siteID   string
	interval time.Duration
	timeout  time.Duration

	stopCh      chan struct{}
	wg          sync.WaitGroup
	unsubscribe func()

	mu        sync.RWMutex
	isRunning bool
	lastSweep time.Time
}

// New creates a scheduler for the given site.
func New(sweeper Sweeper, monitor *connectivity.Monitor, siteID string, config *Config) *Scheduler {
	if config == nil {
		config = DefaultConfig()
	}
	return &Scheduler{
		sweeper:  sweeper,
		monitor:  monitor,
		siteID:   siteID,
		interval: config.SweepInterval,
		timeout:  config.SweepTimeout,
	}
}

// Start launches the sweep loop and hooks connectivity transitions.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	if s.isRunning {
		s.mu.Unlock()
		return
	}
	s.isRunning = true
	// Fresh channel per Start, so the loop of a restarted scheduler does
	// not observe the close from a previous Stop.
	s.stopCh = make(chan struct{})
	stopCh := s.stopCh
	s.mu.Unlock()

	s.unsubscribe = s.monitor.Subscribe(func(online bool) {
		if online && s.IsRunning() {
			go s.runSweep(ctx)
		}
	})

	s.wg.Add(1)
	go s.loop(ctx, stopCh)

	logging.Info("sync scheduler started", map[string]interface{}{
		"site":     s.siteID,
		"interval": s.interval.String(),
	})
}

// Stop halts the loop and waits for it to exit. A sweep already in flight
// finishes on its own.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.isRunning {
		s.mu.Unlock()
		return
	}
	s.isRunning = false
	stopCh := s.stopCh
	s.mu.Unlock()

	if s.unsubscribe != nil {
		s.unsubscribe()
	}
	close(stopCh)
	s.wg.Wait()

	logging.Info("sync scheduler stopped", nil)
}

// loop ticks the periodic sweep while the scheduler runs.
func (s *Scheduler) loop(ctx context.Context, stopCh <-chan struct{}) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-stopCh:
			return
		case <-ticker.C:
			if !s.monitor.IsOnline() {
				continue
			}
			if s.sweeper.IsSweeping(s.siteID) {
				logging.Debug("sweep already in progress, skipping tick", nil)
				continue
			}
			s.runSweep(ctx)
		}
	}
}

// runSweep executes one sweep with the configured timeout.
func (s *Scheduler) runSweep(ctx context.Context) {
	if !s.monitor.IsOnline() {
		return
	}

	sweepCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	result, err := s.sweeper.SyncAll(sweepCtx, s.siteID)
	if err != nil {
		logging.Error("background sweep failed", err, map[string]interface{}{"site": s.siteID})
		return
	}

	s.mu.Lock()
	s.lastSweep = time.Now()
	s.mu.Unlock()

	logging.Info("background sweep completed", map[string]interface{}{
		"site":     s.siteID,
		"entities": result.Entities,
		"synced":   result.Synced,
		"failed":   result.Failed,
	})
}

// TriggerSweep starts a sweep now unless one is already running.
// Returns whether a sweep was started.
func (s *Scheduler) TriggerSweep(ctx context.Context) bool {
	if s.sweeper.IsSweeping(s.siteID) {
		return false
	}
	go s.runSweep(ctx)
	return true
}

// Status is a point-in-time snapshot of the scheduler.
type Status struct {
	IsRunning bool       `json:"is_running"`
	IsOnline  bool       `json:"is_online"`
	LastSweep *time.Time `json:"last_sweep,omitempty"`
}

// GetStatus reports the scheduler's current state.
func (s *Scheduler) GetStatus() Status {
	s.mu.RLock()
	defer s.mu.RUnlock()

	status := Status{
		IsRunning: s.isRunning,
		IsOnline:  s.monitor.IsOnline(),
	}
	if !s.lastSweep.IsZero() {
		last := s.lastSweep
		status.LastSweep = &last
	}
	return status
}

// IsRunning reports whether the loop is active.
func (s *Scheduler) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.isRunning
}
