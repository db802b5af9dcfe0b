// Package db provides CRUD repository operations for Offcourse data models.
package db

import (
	"database/sql"
	"fmt"
	"sync"
	"time"

	apperrors "github.com/mviana/offcourse/internal/errors"
	"github.com/mviana/offcourse/internal/models"
)

// Repository provides persistence for offline actions, sync records and
// staged attachment metadata. It is the local action store of the sync core:
// the UI side only appends actions, the synchronizer only reads and deletes
// them, so no row is ever updated in place.
type Repository struct {
	db *sql.DB

	// Prepared statement cache for frequently used queries.
	// Statements are prepared on first use and cached for reuse.
	stmtCache sync.Map // map[string]*sql.Stmt
}

// NewRepository creates a new Repository instance.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// PrepareStmt gets or creates a prepared statement from cache.
// Key is the query string, value is the prepared statement.
func (r *Repository) PrepareStmt(query string) (*sql.Stmt, error) {
	if stmt, ok := r.stmtCache.Load(query); ok {
		return stmt.(*sql.Stmt), nil
	}

	stmt, err := r.db.Prepare(query)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare statement: %w", err)
	}

	actual, loaded := r.stmtCache.LoadOrStore(query, stmt)
	if loaded {
		// Another goroutine already prepared this, close our duplicate
		stmt.Close()
		return actual.(*sql.Stmt), nil
	}

	return stmt, nil
}

// Close closes all cached prepared statements.
// Should be called when the Repository is no longer needed.
func (r *Repository) Close() error {
	var firstErr error
	r.stmtCache.Range(func(key, value interface{}) bool {
		stmt := value.(*sql.Stmt)
		if err := stmt.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		return true
	})
	return firstErr
}

// =====================================================
// OfflineAction Operations
// =====================================================

// CreateOfflineAction persists one offline action. The per-entity sequence id
// is assigned inside the insert transaction, so actions appended while a sync
// replay is running always sort after the replayed prefix.
func (r *Repository) CreateOfflineAction(action *models.OfflineAction) error {
	action.ID = models.NewID()
	if action.CreatedAt == 0 {
		action.CreatedAt = time.Now().Unix()
	}

	tx, err := r.db.Begin()
	if err != nil {
		return apperrors.Wrap(apperrors.ErrStorage, "failed to begin transaction", err)
	}
	defer tx.Rollback()

	var next int64
	seqQuery := `
	SELECT COALESCE(MAX(sequence_id), 0) + 1 FROM offline_actions
	WHERE site_id = ? AND component = ? AND instance_id = ? AND user_id = ?
	`
	err = tx.QueryRow(seqQuery, action.SiteID, action.Component, action.InstanceID, action.UserID).Scan(&next)
	if err != nil {
		return apperrors.Wrap(apperrors.ErrStorage, "failed to assign sequence id", err)
	}
	action.SequenceID = next

	insert := `
	INSERT INTO offline_actions (id, site_id, component, instance_id, user_id,
		sequence_id, kind, name, payload, attachments, created_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err = tx.Exec(insert, action.ID, action.SiteID, action.Component, action.InstanceID,
		action.UserID, action.SequenceID, action.Kind, action.Name,
		string(action.Payload), action.Attachments, action.CreatedAt)
	if err != nil {
		return apperrors.Wrap(apperrors.ErrStorage, "failed to insert offline action", err)
	}

	if err := tx.Commit(); err != nil {
		return apperrors.Wrap(apperrors.ErrStorage, "failed to commit offline action", err)
	}
	return nil
}

const offlineActionColumns = `id, site_id, component, instance_id, user_id,
	sequence_id, kind, name, payload, attachments, created_at`

// scanOfflineAction scans one offline action row.
func scanOfflineAction(row interface{ Scan(...interface{}) error }) (*models.OfflineAction, error) {
	var a models.OfflineAction
	var payload string
	err := row.Scan(&a.ID, &a.SiteID, &a.Component, &a.InstanceID, &a.UserID,
		&a.SequenceID, &a.Kind, &a.Name, &payload, &a.Attachments, &a.CreatedAt)
	if err != nil {
		return nil, err
	}
	a.Payload = []byte(payload)
	return &a, nil
}

// GetOfflineAction retrieves one action by entity key and sequence id.
// Returns an ErrNotFound AppError if no such action exists.
func (r *Repository) GetOfflineAction(key models.EntityKey, sequenceID int64) (*models.OfflineAction, error) {
	query := `
	SELECT ` + offlineActionColumns + ` FROM offline_actions
	WHERE site_id = ? AND component = ? AND instance_id = ? AND user_id = ? AND sequence_id = ?
	`
	stmt, err := r.PrepareStmt(query)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrStorage, "failed to prepare query", err)
	}

	action, err := scanOfflineAction(stmt.QueryRow(key.SiteID, key.Component, key.InstanceID, key.UserID, sequenceID))
	if err == sql.ErrNoRows {
		return nil, apperrors.Newf(apperrors.ErrNotFound, "offline action %s/%d not found", key, sequenceID)
	}
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrStorage, "failed to read offline action", err)
	}
	return action, nil
}

// ListActionsByEntity returns all pending actions of one entity ordered by
// sequence id ascending, which is the replay order.
func (r *Repository) ListActionsByEntity(key models.EntityKey) ([]*models.OfflineAction, error) {
	query := `
	SELECT ` + offlineActionColumns + ` FROM offline_actions
	WHERE site_id = ? AND component = ? AND instance_id = ? AND user_id = ?
	ORDER BY sequence_id ASC
	`
	rows, err := r.db.Query(query, key.SiteID, key.Component, key.InstanceID, key.UserID)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrStorage, "failed to list offline actions", err)
	}
	defer rows.Close()

	var actions []*models.OfflineAction
	for rows.Next() {
		action, err := scanOfflineAction(rows)
		if err != nil {
			return nil, apperrors.Wrap(apperrors.ErrStorage, "failed to scan offline action", err)
		}
		actions = append(actions, action)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.Wrap(apperrors.ErrStorage, "failed to iterate offline actions", err)
	}
	return actions, nil
}

// ListEntitiesWithActions enumerates distinct entity keys that have at least
// one pending action. Pass an empty siteID to search all sites.
func (r *Repository) ListEntitiesWithActions(siteID string) ([]models.EntityKey, error) {
	query := `
	SELECT DISTINCT site_id, component, instance_id, user_id FROM offline_actions
	`
	args := []interface{}{}
	if siteID != "" {
		query += ` WHERE site_id = ?`
		args = append(args, siteID)
	}
	query += ` ORDER BY site_id, component, instance_id, user_id`

	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrStorage, "failed to list entities", err)
	}
	defer rows.Close()

	var keys []models.EntityKey
	for rows.Next() {
		var key models.EntityKey
		if err := rows.Scan(&key.SiteID, &key.Component, &key.InstanceID, &key.UserID); err != nil {
			return nil, apperrors.Wrap(apperrors.ErrStorage, "failed to scan entity key", err)
		}
		keys = append(keys, key)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.Wrap(apperrors.ErrStorage, "failed to iterate entities", err)
	}
	return keys, nil
}

// DeleteOfflineAction removes one action. Deleting an already-absent action
// is not an error; replays and UI discards may race on the same row.
func (r *Repository) DeleteOfflineAction(key models.EntityKey, sequenceID int64) error {
	query := `
	DELETE FROM offline_actions
	WHERE site_id = ? AND component = ? AND instance_id = ? AND user_id = ? AND sequence_id = ?
	`
	_, err := r.db.Exec(query, key.SiteID, key.Component, key.InstanceID, key.UserID, sequenceID)
	if err != nil {
		return apperrors.Wrap(apperrors.ErrStorage, "failed to delete offline action", err)
	}
	return nil
}

// CountActionsByEntity returns the number of pending actions for one entity.
func (r *Repository) CountActionsByEntity(key models.EntityKey) (int, error) {
	query := `
	SELECT COUNT(*) FROM offline_actions
	WHERE site_id = ? AND component = ? AND instance_id = ? AND user_id = ?
	`
	stmt, err := r.PrepareStmt(query)
	if err != nil {
		return 0, apperrors.Wrap(apperrors.ErrStorage, "failed to prepare query", err)
	}

	var count int
	if err := stmt.QueryRow(key.SiteID, key.Component, key.InstanceID, key.UserID).Scan(&count); err != nil {
		return 0, apperrors.Wrap(apperrors.ErrStorage, "failed to count offline actions", err)
	}
	return count, nil
}

// CountActions returns the number of pending actions across all entities.
// Pass an empty siteID to count all sites.
func (r *Repository) CountActions(siteID string) (int, error) {
	query := `SELECT COUNT(*) FROM offline_actions`
	args := []interface{}{}
	if siteID != "" {
		query += ` WHERE site_id = ?`
		args = append(args, siteID)
	}

	var count int
	if err := r.db.QueryRow(query, args...).Scan(&count); err != nil {
		return 0, apperrors.Wrap(apperrors.ErrStorage, "failed to count offline actions", err)
	}
	return count, nil
}

// =====================================================
// SyncRecord Operations
// =====================================================

// GetSyncRecord retrieves the last-sync record of an entity.
// Returns (nil, nil) when the entity has never been synced.
func (r *Repository) GetSyncRecord(key models.EntityKey) (*models.SyncRecord, error) {
	query := `
	SELECT site_id, component, instance_id, user_id, last_sync, warnings
	FROM sync_records
	WHERE site_id = ? AND component = ? AND instance_id = ? AND user_id = ?
	`
	stmt, err := r.PrepareStmt(query)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrStorage, "failed to prepare query", err)
	}

	var rec models.SyncRecord
	err = stmt.QueryRow(key.SiteID, key.Component, key.InstanceID, key.UserID).Scan(
		&rec.SiteID, &rec.Component, &rec.InstanceID, &rec.UserID, &rec.LastSync, &rec.Warnings)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrStorage, "failed to read sync record", err)
	}
	return &rec, nil
}

// SaveSyncRecord upserts the last-sync record of an entity.
func (r *Repository) SaveSyncRecord(rec *models.SyncRecord) error {
	query := `
	INSERT INTO sync_records (site_id, component, instance_id, user_id, last_sync, warnings)
	VALUES (?, ?, ?, ?, ?, ?)
	ON CONFLICT(site_id, component, instance_id, user_id)
	DO UPDATE SET last_sync = excluded.last_sync, warnings = excluded.warnings
	`
	_, err := r.db.Exec(query, rec.SiteID, rec.Component, rec.InstanceID, rec.UserID,
		rec.LastSync, rec.Warnings)
	if err != nil {
		return apperrors.Wrap(apperrors.ErrStorage, "failed to save sync record", err)
	}
	return nil
}

// =====================================================
// StagedAttachment Operations
// =====================================================

// CreateStagedAttachment records metadata for a staged attachment file.
func (r *Repository) CreateStagedAttachment(att *models.StagedAttachment) error {
	att.ID = models.NewID()
	if att.CreatedAt == 0 {
		att.CreatedAt = time.Now().Unix()
	}

	query := `
	INSERT INTO staged_attachments (id, owner_action_id, content_hash, file_name, size, created_at)
	VALUES (?, ?, ?, ?, ?, ?)
	`
	_, err := r.db.Exec(query, att.ID, att.OwnerActionID, att.ContentHash,
		att.FileName, att.Size, att.CreatedAt)
	if err != nil {
		return apperrors.Wrap(apperrors.ErrStorage, "failed to insert staged attachment", err)
	}
	return nil
}

// ListStagedAttachmentsByOwner returns all staged attachments owned by one action.
func (r *Repository) ListStagedAttachmentsByOwner(ownerActionID models.UUID) ([]*models.StagedAttachment, error) {
	query := `
	SELECT id, owner_action_id, content_hash, file_name, size, created_at
	FROM staged_attachments WHERE owner_action_id = ?
	ORDER BY created_at ASC
	`
	rows, err := r.db.Query(query, ownerActionID)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrStorage, "failed to list staged attachments", err)
	}
	defer rows.Close()

	var atts []*models.StagedAttachment
	for rows.Next() {
		var att models.StagedAttachment
		err := rows.Scan(&att.ID, &att.OwnerActionID, &att.ContentHash,
			&att.FileName, &att.Size, &att.CreatedAt)
		if err != nil {
			return nil, apperrors.Wrap(apperrors.ErrStorage, "failed to scan staged attachment", err)
		}
		atts = append(atts, &att)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.Wrap(apperrors.ErrStorage, "failed to iterate staged attachments", err)
	}
	return atts, nil
}

// DeleteStagedAttachment removes one staged attachment row. Idempotent.
func (r *Repository) DeleteStagedAttachment(id models.UUID) error {
	_, err := r.db.Exec(`DELETE FROM staged_attachments WHERE id = ?`, id)
	if err != nil {
		return apperrors.Wrap(apperrors.ErrStorage, "failed to delete staged attachment", err)
	}
	return nil
}

// CountAttachmentsByHash returns how many staged attachments still reference a
// content hash. The staging store keeps the underlying file until this drops
// to zero.
func (r *Repository) CountAttachmentsByHash(contentHash string) (int, error) {
	var count int
	err := r.db.QueryRow(`SELECT COUNT(*) FROM staged_attachments WHERE content_hash = ?`, contentHash).Scan(&count)
	if err != nil {
		return 0, apperrors.Wrap(apperrors.ErrStorage, "failed to count attachments by hash", err)
	}
	return count, nil
}
