// Package models provides data model definitions for the Offcourse sync core.
package models

import "time"

// StagedAttachment is the metadata row for a file staged locally while its
// owning offline action waits to be synced. The file content itself lives in
// the content-addressed staging store; ownership is exclusive to one action.
type StagedAttachment struct {
	ID            UUID   `db:"id" json:"id"`
	OwnerActionID UUID   `db:"owner_action_id" json:"owner_action_id"`
	ContentHash   string `db:"content_hash" json:"content_hash"`
	FileName      string `db:"file_name" json:"file_name"`
	Size          int64  `db:"size" json:"size"`
	CreatedAt     int64  `db:"created_at" json:"created_at"`
}

// TableName returns the table name for StagedAttachment.
func (StagedAttachment) TableName() string {
	return "staged_attachments"
}

// CreatedAtTime returns the CreatedAt as time.Time.
func (s *StagedAttachment) CreatedAtTime() time.Time {
	return time.Unix(s.CreatedAt, 0)
}
