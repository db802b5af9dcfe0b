// Package models provides data model definitions for the Offcourse sync core.
package models

import (
	"encoding/json"
	"time"
)

// ActionKind discriminates the closed set of offline action types.
// Each kind has exactly one registered replay handler; an unregistered
// kind fails the sync run instead of silently falling through.
type ActionKind string

const (
	ActionCreateDiscussion ActionKind = "create_discussion"
	ActionReplyPost        ActionKind = "reply_post"
	ActionSendMessage      ActionKind = "send_message"
	ActionSetTrack         ActionKind = "set_track"
	ActionDeleteEntry      ActionKind = "delete_entry"
)

// KnownActionKinds lists every kind the synchronizer can replay.
func KnownActionKinds() []ActionKind {
	return []ActionKind{
		ActionCreateDiscussion,
		ActionReplyPost,
		ActionSendMessage,
		ActionSetTrack,
		ActionDeleteEntry,
	}
}

// OfflineAction represents one user intent recorded while offline (or after
// a retryable remote failure). Actions are immutable once written; the
// synchronizer deletes them after a terminal outcome, never updates them.
type OfflineAction struct {
	ID          UUID            `db:"id" json:"id"`
	SiteID      string          `db:"site_id" json:"site_id"`
	Component   string          `db:"component" json:"component"`
	InstanceID  int64           `db:"instance_id" json:"instance_id"`
	UserID      int64           `db:"user_id" json:"user_id"`
	SequenceID  int64           `db:"sequence_id" json:"sequence_id"` // per-entity, assigned by the store
	Kind        ActionKind      `db:"kind" json:"kind"`
	Name        string          `db:"name" json:"name"` // human-readable, used in discard warnings
	Payload     json.RawMessage `db:"payload" json:"payload"`
	Attachments string          `db:"attachments" json:"attachments,omitempty"` // JSON array of staged refs
	CreatedAt   int64           `db:"created_at" json:"created_at"`
}

// TableName returns the table name for OfflineAction.
func (OfflineAction) TableName() string {
	return "offline_actions"
}

// EntityKey returns the grouping/locking key of the action.
func (a *OfflineAction) EntityKey() EntityKey {
	return EntityKey{
		SiteID:     a.SiteID,
		Component:  a.Component,
		InstanceID: a.InstanceID,
		UserID:     a.UserID,
	}
}

// AttachmentRefs decodes the staged attachment references.
// Returns nil when the action carries no attachments.
func (a *OfflineAction) AttachmentRefs() ([]string, error) {
	if a.Attachments == "" {
		return nil, nil
	}
	var refs []string
	if err := json.Unmarshal([]byte(a.Attachments), &refs); err != nil {
		return nil, err
	}
	return refs, nil
}

// SetAttachmentRefs encodes staged attachment references onto the action.
func (a *OfflineAction) SetAttachmentRefs(refs []string) error {
	if len(refs) == 0 {
		a.Attachments = ""
		return nil
	}
	data, err := json.Marshal(refs)
	if err != nil {
		return err
	}
	a.Attachments = string(data)
	return nil
}

// CreatedAtTime returns the CreatedAt as time.Time.
func (a *OfflineAction) CreatedAtTime() time.Time {
	return time.Unix(a.CreatedAt, 0)
}
