// Package models tests for data model definitions.
package models

import (
	"encoding/json"
	"regexp"
	"testing"
	"time"
)

// =====================================================
// UUID Type Tests
// =====================================================

// TestNewID verifies generated ids are unique v4 uuids.
func TestNewID(t *testing.T) {
	v4 := regexp.MustCompile(`^[0-9a-f]{8}-[0-9a-f]{4}-4[0-9a-f]{3}-[89ab][0-9a-f]{3}-[0-9a-f]{12}$`)
	seen := make(map[UUID]bool)
	for i := 0; i < 50; i++ {
		id := NewID()
		if !v4.MatchString(id.String()) {
			t.Fatalf("NewID() = %q, not a v4 uuid", id)
		}
		if seen[id] {
			t.Fatalf("NewID() repeated %q", id)
		}
		seen[id] = true
	}
}

// TestUUID_Value verifies the Value() method returns correct string.
func TestUUID_Value(t *testing.T) {
	uuid := UUID("123e4567-e89b-42d3-a456-426614174000")

	val, err := uuid.Value()
	if err != nil {
		t.Fatalf("Value() error = %v", err)
	}

	if val != "123e4567-e89b-42d3-a456-426614174000" {
		t.Errorf("Value() = %v, want '123e4567-e89b-42d3-a456-426614174000'", val)
	}
}

// TestUUID_Scan_nil verifies nil value handling.
func TestUUID_Scan_nil(t *testing.T) {
	var uuid UUID
	err := uuid.Scan(nil)

	if err != nil {
		t.Fatalf("Scan(nil) error = %v", err)
	}

	if uuid != "" {
		t.Errorf("Scan(nil) = %q, want empty string", uuid)
	}
}

// TestUUID_Scan_bytes verifies []byte handling.
func TestUUID_Scan_bytes(t *testing.T) {
	var uuid UUID
	input := []byte("123e4567-e89b-42d3-a456-426614174000")

	err := uuid.Scan(input)
	if err != nil {
		t.Fatalf("Scan([]byte) error = %v", err)
	}

	if uuid != "123e4567-e89b-42d3-a456-426614174000" {
		t.Errorf("Scan([]byte) = %q, want '123e4567-e89b-42d3-a456-426614174000'", uuid)
	}
}

// TestUUID_Scan_unsupported verifies error on unsupported types.
func TestUUID_Scan_unsupported(t *testing.T) {
	var uuid UUID
	if err := uuid.Scan(42); err == nil {
		t.Error("Scan(int) should return an error")
	}
}

// =====================================================
// EntityKey Tests
// =====================================================

// TestEntityKeyString verifies the lock-map key format.
func TestEntityKeyString(t *testing.T) {
	key := EntityKey{
		SiteID:     "site-1",
		Component:  "forum",
		InstanceID: 42,
		UserID:     7,
	}

	want := "forum#42#7@site-1"
	if got := key.String(); got != want {
		t.Errorf("String() = %q, want %q", got, want)
	}
}

// TestEntityKeyStringDistinct verifies different keys produce different strings.
func TestEntityKeyStringDistinct(t *testing.T) {
	a := EntityKey{SiteID: "s", Component: "forum", InstanceID: 1, UserID: 2}
	b := EntityKey{SiteID: "s", Component: "forum", InstanceID: 2, UserID: 1}

	if a.String() == b.String() {
		t.Errorf("keys %+v and %+v collide: %q", a, b, a.String())
	}
}

// TestEntityKeyIsZero verifies zero-key detection.
func TestEntityKeyIsZero(t *testing.T) {
	var zero EntityKey
	if !zero.IsZero() {
		t.Error("zero EntityKey should report IsZero")
	}

	key := EntityKey{SiteID: "s"}
	if key.IsZero() {
		t.Error("non-zero EntityKey should not report IsZero")
	}
}

// =====================================================
// OfflineAction Tests
// =====================================================

// TestOfflineActionEntityKey verifies key extraction from an action.
func TestOfflineActionEntityKey(t *testing.T) {
	action := &OfflineAction{
		SiteID:     "site-1",
		Component:  "forum",
		InstanceID: 10,
		UserID:     3,
		SequenceID: 1,
		Kind:       ActionCreateDiscussion,
	}

	key := action.EntityKey()
	if key.SiteID != "site-1" || key.Component != "forum" || key.InstanceID != 10 || key.UserID != 3 {
		t.Errorf("EntityKey() = %+v, want fields copied from action", key)
	}
}

// TestOfflineActionTableName verifies the table name.
func TestOfflineActionTableName(t *testing.T) {
	if got := (OfflineAction{}).TableName(); got != "offline_actions" {
		t.Errorf("TableName() = %q, want 'offline_actions'", got)
	}
}

// TestOfflineActionAttachmentRefs verifies attachment ref round trip.
func TestOfflineActionAttachmentRefs(t *testing.T) {
	action := &OfflineAction{}

	// No attachments
	refs, err := action.AttachmentRefs()
	if err != nil {
		t.Fatalf("AttachmentRefs() error = %v", err)
	}
	if refs != nil {
		t.Errorf("AttachmentRefs() = %v, want nil for empty field", refs)
	}

	// Set and decode
	want := []string{"sha256-aaa", "sha256-bbb"}
	if err := action.SetAttachmentRefs(want); err != nil {
		t.Fatalf("SetAttachmentRefs() error = %v", err)
	}

	refs, err = action.AttachmentRefs()
	if err != nil {
		t.Fatalf("AttachmentRefs() error = %v", err)
	}
	if len(refs) != 2 || refs[0] != want[0] || refs[1] != want[1] {
		t.Errorf("AttachmentRefs() = %v, want %v", refs, want)
	}

	// Clearing
	if err := action.SetAttachmentRefs(nil); err != nil {
		t.Fatalf("SetAttachmentRefs(nil) error = %v", err)
	}
	if action.Attachments != "" {
		t.Errorf("Attachments = %q, want empty after clearing", action.Attachments)
	}
}

// TestOfflineActionAttachmentRefs_invalid verifies error on bad JSON.
func TestOfflineActionAttachmentRefs_invalid(t *testing.T) {
	action := &OfflineAction{Attachments: "{not json"}

	if _, err := action.AttachmentRefs(); err == nil {
		t.Error("AttachmentRefs() should fail on invalid JSON")
	}
}

// TestOfflineActionCreatedAtTime verifies unix timestamp conversion.
func TestOfflineActionCreatedAtTime(t *testing.T) {
	now := time.Now().Unix()
	action := &OfflineAction{CreatedAt: now}

	if got := action.CreatedAtTime().Unix(); got != now {
		t.Errorf("CreatedAtTime().Unix() = %d, want %d", got, now)
	}
}

// TestOfflineActionPayload verifies payload survives JSON round trip.
func TestOfflineActionPayload(t *testing.T) {
	payload := map[string]interface{}{"subject": "Hi", "message": "First post"}
	data, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}

	action := &OfflineAction{
		Kind:    ActionCreateDiscussion,
		Payload: data,
	}

	var decoded map[string]interface{}
	if err := json.Unmarshal(action.Payload, &decoded); err != nil {
		t.Fatalf("unmarshal payload: %v", err)
	}
	if decoded["subject"] != "Hi" {
		t.Errorf("payload subject = %v, want 'Hi'", decoded["subject"])
	}
}

// TestKnownActionKinds verifies the closed kind set.
func TestKnownActionKinds(t *testing.T) {
	kinds := KnownActionKinds()

	if len(kinds) != 5 {
		t.Errorf("KnownActionKinds() returned %d kinds, want 5", len(kinds))
	}

	seen := make(map[ActionKind]bool)
	for _, k := range kinds {
		if k == "" {
			t.Error("empty action kind in KnownActionKinds()")
		}
		if seen[k] {
			t.Errorf("duplicate action kind %q", k)
		}
		seen[k] = true
	}
}

// =====================================================
// SyncRecord Tests
// =====================================================

// TestSyncRecordTableName verifies the table name.
func TestSyncRecordTableName(t *testing.T) {
	if got := (SyncRecord{}).TableName(); got != "sync_records" {
		t.Errorf("TableName() = %q, want 'sync_records'", got)
	}
}

// TestSyncRecordWarnings verifies warning list round trip.
func TestSyncRecordWarnings(t *testing.T) {
	rec := &SyncRecord{}

	warnings, err := rec.WarningList()
	if err != nil {
		t.Fatalf("WarningList() error = %v", err)
	}
	if warnings != nil {
		t.Errorf("WarningList() = %v, want nil for empty field", warnings)
	}

	want := []string{`forum "Hi" could not be synced: invalid subject; offline data was discarded`}
	if err := rec.SetWarningList(want); err != nil {
		t.Fatalf("SetWarningList() error = %v", err)
	}

	warnings, err = rec.WarningList()
	if err != nil {
		t.Fatalf("WarningList() error = %v", err)
	}
	if len(warnings) != 1 || warnings[0] != want[0] {
		t.Errorf("WarningList() = %v, want %v", warnings, want)
	}
}

// TestSyncRecordEntityKey verifies key extraction.
func TestSyncRecordEntityKey(t *testing.T) {
	rec := &SyncRecord{SiteID: "s", Component: "messages", InstanceID: 5, UserID: 9}

	key := rec.EntityKey()
	if key.String() != "messages#5#9@s" {
		t.Errorf("EntityKey().String() = %q, want 'messages#5#9@s'", key.String())
	}
}
