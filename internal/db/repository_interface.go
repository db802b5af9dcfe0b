// Package db provides repository interfaces for Offcourse data models.
package db

import (
	"github.com/mviana/offcourse/internal/models"
)

// ActionRepository defines operations for offline action persistence.
// This interface allows mocking for testing and follows the Interface Segregation Principle.
type ActionRepository interface {
	// CreateOfflineAction persists one action, assigning its sequence id.
	CreateOfflineAction(action *models.OfflineAction) error

	// GetOfflineAction retrieves one action by entity key and sequence id.
	GetOfflineAction(key models.EntityKey, sequenceID int64) (*models.OfflineAction, error)

	// ListActionsByEntity returns one entity's actions in replay order.
	ListActionsByEntity(key models.EntityKey) ([]*models.OfflineAction, error)

	// ListEntitiesWithActions enumerates entities with pending work.
	ListEntitiesWithActions(siteID string) ([]models.EntityKey, error)

	// DeleteOfflineAction removes one action; idempotent.
	DeleteOfflineAction(key models.EntityKey, sequenceID int64) error

	// CountActionsByEntity returns the number of pending actions for one entity.
	CountActionsByEntity(key models.EntityKey) (int, error)

	// CountActions returns the number of pending actions for one or all sites.
	CountActions(siteID string) (int, error)
}

// SyncRecordRepository defines operations for last-sync bookkeeping.
type SyncRecordRepository interface {
	// GetSyncRecord returns the entity's record, or (nil, nil) if never synced.
	GetSyncRecord(key models.EntityKey) (*models.SyncRecord, error)

	// SaveSyncRecord upserts the entity's record.
	SaveSyncRecord(rec *models.SyncRecord) error
}

// AttachmentRepository defines operations for staged attachment metadata.
type AttachmentRepository interface {
	CreateStagedAttachment(att *models.StagedAttachment) error
	ListStagedAttachmentsByOwner(ownerActionID models.UUID) ([]*models.StagedAttachment, error)
	DeleteStagedAttachment(id models.UUID) error
	CountAttachmentsByHash(contentHash string) (int, error)
}

// SyncRepository combines repositories the synchronizer depends on.
// This is a marker interface that groups related repositories for convenience.
type SyncRepository interface {
	ActionRepository
	SyncRecordRepository
	AttachmentRepository
}

// Ensure *Repository implements the interfaces at compile time.
var (
	_ ActionRepository     = (*Repository)(nil)
	_ SyncRecordRepository = (*Repository)(nil)
	_ AttachmentRepository = (*Repository)(nil)
	_ SyncRepository       = (*Repository)(nil)
)
