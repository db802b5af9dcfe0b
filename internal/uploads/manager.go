package uploads

import (
	"time"

	"github.com/mviana/offcourse/internal/db"
	apperrors "github.com/mviana/offcourse/internal/errors"
	"github.com/mviana/offcourse/internal/models"
)

// Manager ties the content-addressed store to the staged_attachments table.
// Records carry the filename and owning action; content is shared by hash,
// so releasing one action's files only deletes content no other pending
// action still references.
type Manager struct {
	store *Store
	repo  db.AttachmentRepository
}

// NewManager builds a Manager over the given store and repository.
func NewManager(store *Store, repo db.AttachmentRepository) *Manager {
	return &Manager{store: store, repo: repo}
}

// StageForAction stages file content on behalf of a pending action and
// records it. Returns the created record.
func (m *Manager) StageForAction(actionID models.UUID, fileName string, data []byte) (*models.StagedAttachment, error) {
	hash, err := m.store.Stage(data)
	if err != nil {
		return nil, err
	}

	att := &models.StagedAttachment{
		ID:            models.NewID(),
		OwnerActionID: actionID,
		ContentHash:   hash,
		FileName:      fileName,
		Size:          int64(len(data)),
		CreatedAt:     time.Now().Unix(),
	}
	if err := m.repo.CreateStagedAttachment(att); err != nil {
		return nil, err
	}
	return att, nil
}

// FilesForAction returns the staged records owned by an action.
func (m *Manager) FilesForAction(actionID models.UUID) ([]*models.StagedAttachment, error) {
	return m.repo.ListStagedAttachmentsByOwner(actionID)
}

// OpenFile returns the staged content for a record.
func (m *Manager) OpenFile(att *models.StagedAttachment) ([]byte, error) {
	return m.store.Open(att.ContentHash)
}

// ReleaseAction removes an action's staged records and garbage collects
// content no remaining record references.
func (m *Manager) ReleaseAction(actionID models.UUID) error {
	files, err := m.repo.ListStagedAttachmentsByOwner(actionID)
	if err != nil {
		return err
	}

	for _, f := range files {
		if err := m.repo.DeleteStagedAttachment(f.ID); err != nil {
			return err
		}
		remaining, err := m.repo.CountAttachmentsByHash(f.ContentHash)
		if err != nil {
			return err
		}
		if remaining == 0 {
			if err := m.store.Remove(f.ContentHash); err != nil {
				return apperrors.Wrap(apperrors.ErrAttachmentStaging, "failed to release staged content", err)
			}
		}
	}
	return nil
}
