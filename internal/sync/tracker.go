package sync

import (
	"time"

	"github.com/mviana/offcourse/internal/db"
	"github.com/mviana/offcourse/internal/models"
)

// TimeTracker records when each entity last synced and throttles automatic
// re-syncs inside the configured minimum interval.
type TimeTracker struct {
	repo        db.SyncRecordRepository
	minInterval time.Duration
	now         func() time.Time
}

// NewTimeTracker builds a tracker over the sync record store.
func NewTimeTracker(repo db.SyncRecordRepository, minInterval time.Duration) *TimeTracker {
	return &TimeTracker{
		repo:        repo,
		minInterval: minInterval,
		now:         time.Now,
	}
}

// LastSync returns when the entity last completed a sync, or the zero time
// if it never has.
func (t *TimeTracker) LastSync(key models.EntityKey) (time.Time, error) {
	rec, err := t.repo.GetSyncRecord(key)
	if err != nil {
		return time.Time{}, err
	}
	if rec == nil {
		return time.Time{}, nil
	}
	return rec.LastSyncTime(), nil
}

// ShouldSync reports whether an automatic sync is due. Forced syncs bypass
// the throttle entirely.
func (t *TimeTracker) ShouldSync(key models.EntityKey, force bool) (bool, error) {
	if force {
		return true, nil
	}
	last, err := t.LastSync(key)
	if err != nil {
		return false, err
	}
	if last.IsZero() {
		return true, nil
	}
	return t.now().Sub(last) >= t.minInterval, nil
}

// MarkSynced stamps the entity with the current time and stores the run's
// warnings, replacing any previous ones.
func (t *TimeTracker) MarkSynced(key models.EntityKey, warnings []string) error {
	rec := &models.SyncRecord{
		SiteID:     key.SiteID,
		Component:  key.Component,
		InstanceID: key.InstanceID,
		UserID:     key.UserID,
		LastSync:   t.now().Unix(),
	}
	if err := rec.SetWarningList(warnings); err != nil {
		return err
	}
	return t.repo.SaveSyncRecord(rec)
}

// Warnings returns the warnings stored by the entity's last completed sync.
func (t *TimeTracker) Warnings(key models.EntityKey) ([]string, error) {
	rec, err := t.repo.GetSyncRecord(key)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, nil
	}
	return rec.WarningList()
}
