// Package models provides data model definitions for the Offcourse sync core.
package models

import (
	"database/sql/driver"
	"fmt"

	"github.com/google/uuid"
)

// UUID is a wrapper around string for UUID v4 type safety.
type UUID string

// NewID generates a fresh v4 id for a record's primary key.
func NewID() UUID {
	return UUID(uuid.NewString())
}

// Value implements driver.Valuer for UUID.
func (u UUID) Value() (driver.Value, error) {
	return string(u), nil
}

// Scan implements sql.Scanner for UUID.
func (u *UUID) Scan(value interface{}) error {
	if value == nil {
		*u = ""
		return nil
	}
	switch v := value.(type) {
	case []byte:
		*u = UUID(v)
	case string:
		*u = UUID(v)
	default:
		return fmt.Errorf("cannot scan %T into UUID", value)
	}
	return nil
}

// String returns the string representation of the UUID.
func (u UUID) String() string {
	return string(u)
}

// EntityKey identifies the logical entity a set of offline actions belongs to.
// All actions sharing a key are replayed in order and guarded by a single
// sync lock. Examples: one forum's new discussions, one discussion's replies,
// one message conversation.
type EntityKey struct {
	SiteID     string `db:"site_id" json:"site_id"`
	Component  string `db:"component" json:"component"`     // e.g. "forum", "messages", "scorm"
	InstanceID int64  `db:"instance_id" json:"instance_id"` // forum id, conversation id, attempt id
	UserID     int64  `db:"user_id" json:"user_id"`
}

// String returns a stable identifier usable as a lock map key.
// Format: component#instanceID#userID@siteID.
func (k EntityKey) String() string {
	return fmt.Sprintf("%s#%d#%d@%s", k.Component, k.InstanceID, k.UserID, k.SiteID)
}

// IsZero reports whether the key has no fields set.
func (k EntityKey) IsZero() bool {
	return k == EntityKey{}
}
