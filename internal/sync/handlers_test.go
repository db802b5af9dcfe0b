package sync

import (
	"testing"

	apperrors "github.com/mviana/offcourse/internal/errors"
	"github.com/mviana/offcourse/internal/models"
)

// TestResolveIDPassesPositive verifies real remote ids pass through.
func TestResolveIDPassesPositive(t *testing.T) {
	run := NewRunContext(nil, nil, nil)

	id, err := run.ResolveID(123)
	if err != nil {
		t.Fatalf("ResolveID() error = %v", err)
	}
	if id != 123 {
		t.Errorf("ResolveID() = %d, want 123", id)
	}
}

// TestResolveIDMapsLocal verifies a mapped placeholder resolves to the
// remote id.
func TestResolveIDMapsLocal(t *testing.T) {
	run := NewRunContext(nil, nil, nil)
	run.MapLocalID(-1, 500)

	id, err := run.ResolveID(-1)
	if err != nil {
		t.Fatalf("ResolveID() error = %v", err)
	}
	if id != 500 {
		t.Errorf("ResolveID() = %d, want 500", id)
	}
}

// TestResolveIDUnmapped verifies an unknown placeholder reports a missing
// parent.
func TestResolveIDUnmapped(t *testing.T) {
	run := NewRunContext(nil, nil, nil)

	_, err := run.ResolveID(-9)
	if !apperrors.Is(err, apperrors.ErrMissingParent) {
		t.Errorf("ResolveID() error = %v, want %s", err, apperrors.ErrMissingParent)
	}
}

// TestMapLocalIDIgnoresPositive verifies only placeholders are recorded.
func TestMapLocalIDIgnoresPositive(t *testing.T) {
	run := NewRunContext(nil, nil, nil)
	run.MapLocalID(7, 500)

	if id, err := run.ResolveID(7); err != nil || id != 7 {
		t.Errorf("ResolveID(7) = (%d, %v), want (7, nil)", id, err)
	}
	if len(run.localIDs) != 0 {
		t.Errorf("localIDs = %v, want empty", run.localIDs)
	}
}

// TestRegistryCoversKnownKinds verifies every declared kind has a handler.
func TestRegistryCoversKnownKinds(t *testing.T) {
	r := NewRegistry()
	for _, kind := range models.KnownActionKinds() {
		if _, err := r.Lookup(kind); err != nil {
			t.Errorf("Lookup(%s) error = %v", kind, err)
		}
	}
}

// TestRegistryUnknownKind verifies lookup of an unregistered kind fails
// with the unknown-action code.
func TestRegistryUnknownKind(t *testing.T) {
	r := NewRegistry()
	_, err := r.Lookup(models.ActionKind("vanish"))
	if !apperrors.Is(err, apperrors.ErrUnknownAction) {
		t.Errorf("Lookup() error = %v, want %s", err, apperrors.ErrUnknownAction)
	}
}

// TestDiscardWarningFormat pins the user-visible warning wording.
func TestDiscardWarningFormat(t *testing.T) {
	action := &models.OfflineAction{Component: "forum", Name: "Hi"}

	got := discardWarning(action, "invalid subject")
	want := `forum "Hi" could not be synced: invalid subject; offline data was discarded`
	if got != want {
		t.Errorf("discardWarning() = %q, want %q", got, want)
	}
}
