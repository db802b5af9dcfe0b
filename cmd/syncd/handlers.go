// REST handlers for the localhost API surface.
package main

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/mviana/offcourse/internal/connectivity"
	"github.com/mviana/offcourse/internal/db"
	apperrors "github.com/mviana/offcourse/internal/errors"
	"github.com/mviana/offcourse/internal/models"
	syncpkg "github.com/mviana/offcourse/internal/sync"
	"github.com/mviana/offcourse/internal/sync/scheduler"
)

// apiServer bundles the dependencies the REST handlers need.
type apiServer struct {
	repo         db.SyncRepository
	synchronizer *syncpkg.Synchronizer
	orchestrator *syncpkg.Orchestrator
	scheduler    *scheduler.Scheduler
	monitor      *connectivity.Monitor
	siteID       string
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch apperrors.Code(err) {
	case apperrors.ErrOffline, apperrors.ErrSyncBlocked:
		status = http.StatusConflict
	case apperrors.ErrNotFound:
		status = http.StatusNotFound
	case apperrors.ErrInvalid, apperrors.ErrValidation:
		status = http.StatusBadRequest
	}
	writeJSON(w, status, map[string]string{
		"error": err.Error(),
		"code":  string(apperrors.Code(err)),
	})
}

// handleHealth reports liveness.
func (s *apiServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "ok",
		"service": "offcourse-syncd",
	})
}

// handlePending lists entities with queued actions and the total count.
func (s *apiServer) handlePending(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	entities, err := s.repo.ListEntitiesWithActions(s.siteID)
	if err != nil {
		writeError(w, err)
		return
	}
	total, err := s.repo.CountActions(s.siteID)
	if err != nil {
		writeError(w, err)
		return
	}

	type pendingEntity struct {
		Key   models.EntityKey `json:"key"`
		Count int              `json:"count"`
	}
	out := make([]pendingEntity, 0, len(entities))
	for _, key := range entities {
		n, err := s.repo.CountActionsByEntity(key)
		if err != nil {
			writeError(w, err)
			return
		}
		out = append(out, pendingEntity{Key: key, Count: n})
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"total":    total,
		"entities": out,
	})
}

// entityKeyFromQuery parses the entity key query parameters.
func entityKeyFromQuery(r *http.Request) (models.EntityKey, error) {
	q := r.URL.Query()
	instanceID, err := strconv.ParseInt(q.Get("instance_id"), 10, 64)
	if err != nil {
		return models.EntityKey{}, apperrors.Wrap(apperrors.ErrInvalid, "invalid instance_id", err)
	}
	userID, err := strconv.ParseInt(q.Get("user_id"), 10, 64)
	if err != nil {
		return models.EntityKey{}, apperrors.Wrap(apperrors.ErrInvalid, "invalid user_id", err)
	}
	key := models.EntityKey{
		SiteID:     q.Get("site_id"),
		Component:  q.Get("component"),
		InstanceID: instanceID,
		UserID:     userID,
	}
	if key.SiteID == "" || key.Component == "" {
		return models.EntityKey{}, apperrors.New(apperrors.ErrInvalid, "site_id and component are required")
	}
	return key, nil
}

// handleSyncEntity forces a sync of one entity and returns its result.
func (s *apiServer) handleSyncEntity(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	key, err := entityKeyFromQuery(r)
	if err != nil {
		writeError(w, err)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Minute)
	defer cancel()

	result, err := s.synchronizer.SyncEntity(ctx, key, syncpkg.SyncOptions{Force: true})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// handleSyncAll sweeps the whole site now.
func (s *apiServer) handleSyncAll(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Minute)
	defer cancel()

	result, err := s.orchestrator.SyncAll(ctx, s.siteID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// handleBlock blocks (PUT) or unblocks (DELETE) an entity's sync, for
// hosts running destructive operations over the entity's data.
func (s *apiServer) handleBlock(w http.ResponseWriter, r *http.Request) {
	key, err := entityKeyFromQuery(r)
	if err != nil {
		writeError(w, err)
		return
	}

	locks := s.synchronizer.Locks()
	switch r.Method {
	case http.MethodPut:
		locks.Block(key)
	case http.MethodDelete:
		locks.Unblock(key)
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"key":     key,
		"blocked": locks.IsBlocked(key),
	})
}

// handleStatus reports the scheduler state.
func (s *apiServer) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, http.StatusOK, s.scheduler.GetStatus())
}

// handleConnectivity reads or updates the reported online state. The host
// application owns connectivity detection and pushes transitions here.
func (s *apiServer) handleConnectivity(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		writeJSON(w, http.StatusOK, map[string]bool{"online": s.monitor.IsOnline()})

	case http.MethodPut:
		var body struct {
			Online bool `json:"online"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			writeError(w, apperrors.Wrap(apperrors.ErrInvalid, "malformed body", err))
			return
		}
		s.monitor.SetOnline(body.Online)
		writeJSON(w, http.StatusOK, map[string]bool{"online": body.Online})

	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}
