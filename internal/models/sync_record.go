// Package models provides data model definitions for the Offcourse sync core.
package models

import (
	"encoding/json"
	"time"
)

// SyncRecord stores the last completed sync attempt for one entity.
// LastSync means attempted, not necessarily successful; it only throttles
// automatic (non-forced) sync triggers.
type SyncRecord struct {
	SiteID     string `db:"site_id" json:"site_id"`
	Component  string `db:"component" json:"component"`
	InstanceID int64  `db:"instance_id" json:"instance_id"`
	UserID     int64  `db:"user_id" json:"user_id"`
	LastSync   int64  `db:"last_sync" json:"last_sync"`
	Warnings   string `db:"warnings" json:"warnings,omitempty"` // JSON array, last run's warnings
}

// TableName returns the table name for SyncRecord.
func (SyncRecord) TableName() string {
	return "sync_records"
}

// EntityKey returns the key the record belongs to.
func (r *SyncRecord) EntityKey() EntityKey {
	return EntityKey{
		SiteID:     r.SiteID,
		Component:  r.Component,
		InstanceID: r.InstanceID,
		UserID:     r.UserID,
	}
}

// LastSyncTime returns LastSync as time.Time.
func (r *SyncRecord) LastSyncTime() time.Time {
	return time.Unix(r.LastSync, 0)
}

// WarningList decodes the stored warnings.
func (r *SyncRecord) WarningList() ([]string, error) {
	if r.Warnings == "" {
		return nil, nil
	}
	var warnings []string
	if err := json.Unmarshal([]byte(r.Warnings), &warnings); err != nil {
		return nil, err
	}
	return warnings, nil
}

// SetWarningList encodes warnings onto the record.
func (r *SyncRecord) SetWarningList(warnings []string) error {
	if len(warnings) == 0 {
		r.Warnings = ""
		return nil
	}
	data, err := json.Marshal(warnings)
	if err != nil {
		return err
	}
	r.Warnings = string(data)
	return nil
}
