// Package uploads stages attachment files for offline actions and pushes
// them to the LMS draft area when an action is replayed. Staged content is
// stored by SHA-256 hash so the same file attached to several pending
// actions occupies disk once.
package uploads

import (
	"crypto/sha256"
	"encoding/hex"
	"io"
	"os"
	"path/filepath"

	apperrors "github.com/mviana/offcourse/internal/errors"
)

// Store keeps staged file content under baseDir/{hash[0:2]}/{hash[2:4]}/{hash}.
type Store struct {
	baseDir string
}

// NewStore creates a content-addressed staging store rooted at baseDir.
func NewStore(baseDir string) *Store {
	return &Store{baseDir: baseDir}
}

// HashBytes returns the SHA-256 hex digest of data.
func HashBytes(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// Stage writes data into the store and returns its content hash.
// Staging identical content twice is a no-op returning the same hash.
func (s *Store) Stage(data []byte) (string, error) {
	hash := HashBytes(data)

	dir := filepath.Join(s.baseDir, hash[0:2], hash[2:4])
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", apperrors.Wrap(apperrors.ErrAttachmentStaging, "failed to create staging directory", err)
	}

	path := filepath.Join(dir, hash)
	if _, err := os.Stat(path); err == nil {
		return hash, nil
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", apperrors.Wrap(apperrors.ErrAttachmentStaging, "failed to write staged file", err)
	}
	return hash, nil
}

// StageFile copies a file from disk into the store and returns its hash.
// The source file is left untouched.
func (s *Store) StageFile(sourcePath string) (string, error) {
	src, err := os.Open(sourcePath)
	if err != nil {
		return "", apperrors.Wrap(apperrors.ErrAttachmentStaging, "failed to open source file", err)
	}
	defer src.Close()

	h := sha256.New()
	if _, err := io.Copy(h, src); err != nil {
		return "", apperrors.Wrap(apperrors.ErrAttachmentStaging, "failed to hash source file", err)
	}
	hash := hex.EncodeToString(h.Sum(nil))

	dir := filepath.Join(s.baseDir, hash[0:2], hash[2:4])
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", apperrors.Wrap(apperrors.ErrAttachmentStaging, "failed to create staging directory", err)
	}

	destPath := filepath.Join(dir, hash)
	if _, err := os.Stat(destPath); err == nil {
		return hash, nil
	}

	if _, err := src.Seek(0, io.SeekStart); err != nil {
		return "", apperrors.Wrap(apperrors.ErrAttachmentStaging, "failed to rewind source file", err)
	}
	dest, err := os.Create(destPath)
	if err != nil {
		return "", apperrors.Wrap(apperrors.ErrAttachmentStaging, "failed to create staged file", err)
	}
	defer dest.Close()

	if _, err := io.Copy(dest, src); err != nil {
		return "", apperrors.Wrap(apperrors.ErrAttachmentStaging, "failed to copy source file", err)
	}
	return hash, nil
}

// Open returns the staged content for a hash, verifying integrity.
func (s *Store) Open(hash string) ([]byte, error) {
	data, err := os.ReadFile(s.Path(hash))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, apperrors.Wrap(apperrors.ErrNotFound, "staged content not found", err)
		}
		return nil, apperrors.Wrap(apperrors.ErrAttachmentStaging, "failed to read staged file", err)
	}
	if got := HashBytes(data); got != hash {
		return nil, apperrors.Newf(apperrors.ErrAttachmentStaging, "staged content corrupted: expected %s, got %s", hash, got)
	}
	return data, nil
}

// Exists reports whether content for the hash is staged.
func (s *Store) Exists(hash string) bool {
	_, err := os.Stat(s.Path(hash))
	return err == nil
}

// Remove deletes staged content. Removing an absent hash is a no-op.
// Empty hash directories are cleaned up opportunistically.
func (s *Store) Remove(hash string) error {
	path := s.Path(hash)
	if err := os.Remove(path); err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return apperrors.Wrap(apperrors.ErrAttachmentStaging, "failed to remove staged file", err)
	}

	dir := filepath.Dir(path)
	os.Remove(dir)
	os.Remove(filepath.Dir(dir))
	return nil
}

// Path returns the on-disk location for a hash.
func (s *Store) Path(hash string) string {
	if len(hash) < 4 {
		return filepath.Join(s.baseDir, hash)
	}
	return filepath.Join(s.baseDir, hash[0:2], hash[2:4], hash)
}
