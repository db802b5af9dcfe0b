package uploads

import (
	"os"
	"path/filepath"
	"testing"

	apperrors "github.com/mviana/offcourse/internal/errors"
)

// TestStageAndOpen verifies staged content round-trips by hash.
func TestStageAndOpen(t *testing.T) {
	store := NewStore(t.TempDir())

	data := []byte("attachment body")
	hash, err := store.Stage(data)
	if err != nil {
		t.Fatalf("Stage() error = %v", err)
	}
	if len(hash) != 64 {
		t.Errorf("hash length = %d, want 64", len(hash))
	}

	got, err := store.Open(hash)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	if string(got) != string(data) {
		t.Errorf("Open() = %q, want %q", got, data)
	}
}

// TestStageDeduplicates verifies identical content stages to one file.
func TestStageDeduplicates(t *testing.T) {
	store := NewStore(t.TempDir())

	h1, err := store.Stage([]byte("same"))
	if err != nil {
		t.Fatalf("Stage() error = %v", err)
	}
	h2, err := store.Stage([]byte("same"))
	if err != nil {
		t.Fatalf("Stage() error = %v", err)
	}
	if h1 != h2 {
		t.Errorf("hashes differ: %s vs %s", h1, h2)
	}
}

// TestStageFile verifies staging from disk leaves the source intact.
func TestStageFile(t *testing.T) {
	store := NewStore(t.TempDir())

	src := filepath.Join(t.TempDir(), "report.pdf")
	if err := os.WriteFile(src, []byte("pdf bytes"), 0644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	hash, err := store.StageFile(src)
	if err != nil {
		t.Fatalf("StageFile() error = %v", err)
	}
	if hash != HashBytes([]byte("pdf bytes")) {
		t.Errorf("hash mismatch")
	}

	if _, err := os.Stat(src); err != nil {
		t.Errorf("source file removed: %v", err)
	}
	if !store.Exists(hash) {
		t.Error("Exists() = false after StageFile")
	}
}

// TestOpenDetectsCorruption verifies tampered content fails integrity check.
func TestOpenDetectsCorruption(t *testing.T) {
	store := NewStore(t.TempDir())

	hash, err := store.Stage([]byte("original"))
	if err != nil {
		t.Fatalf("Stage() error = %v", err)
	}
	if err := os.WriteFile(store.Path(hash), []byte("tampered"), 0644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	if _, err := store.Open(hash); !apperrors.Is(err, apperrors.ErrAttachmentStaging) {
		t.Errorf("Open() error = %v, want %s", err, apperrors.ErrAttachmentStaging)
	}
}

// TestRemoveIdempotent verifies removing twice succeeds.
func TestRemoveIdempotent(t *testing.T) {
	store := NewStore(t.TempDir())

	hash, err := store.Stage([]byte("gone soon"))
	if err != nil {
		t.Fatalf("Stage() error = %v", err)
	}
	if err := store.Remove(hash); err != nil {
		t.Fatalf("Remove() error = %v", err)
	}
	if store.Exists(hash) {
		t.Error("Exists() = true after Remove")
	}
	if err := store.Remove(hash); err != nil {
		t.Errorf("second Remove() error = %v", err)
	}
}

// TestOpenMissing verifies unknown hashes report not found.
func TestOpenMissing(t *testing.T) {
	store := NewStore(t.TempDir())

	_, err := store.Open(HashBytes([]byte("never staged")))
	if !apperrors.Is(err, apperrors.ErrNotFound) {
		t.Errorf("Open() error = %v, want %s", err, apperrors.ErrNotFound)
	}
}
