package sync

import (
	"context"
	"encoding/json"
	"net/url"
	"testing"

	apperrors "github.com/mviana/offcourse/internal/errors"
	"github.com/mviana/offcourse/internal/models"
)

// queueActionFor stores one pending message action under an arbitrary key.
func (env *syncTestEnv) queueActionFor(t *testing.T, key models.EntityKey, name string) {
	t.Helper()

	data, err := json.Marshal(sendMessagePayload{ToUserID: key.UserID, Text: name})
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}
	action := &models.OfflineAction{
		SiteID:     key.SiteID,
		Component:  key.Component,
		InstanceID: key.InstanceID,
		UserID:     key.UserID,
		Kind:       models.ActionSendMessage,
		Name:       name,
		Payload:    data,
	}
	if err := env.repo.CreateOfflineAction(action); err != nil {
		t.Fatalf("CreateOfflineAction() error = %v", err)
	}
}

func (env *syncTestEnv) orchestrator() *Orchestrator {
	return NewOrchestrator(env.repo, env.sync, env.monitor, env.events)
}

// TestSyncAllSweepsEveryEntity verifies each entity with pending work gets
// synced and announced.
func TestSyncAllSweepsEveryEntity(t *testing.T) {
	env := setupSyncTest(t)
	forum := testKey()
	messages := models.EntityKey{SiteID: "site-1", Component: "messages", InstanceID: 3, UserID: 7}
	env.queueActionFor(t, forum, "in forum")
	env.queueActionFor(t, messages, "in messages")

	var autoSynced []models.EntityKey
	env.events.Subscribe(func(ev Event) {
		if ev.Type == EventAutoSynced {
			autoSynced = append(autoSynced, ev.Key)
		}
	})

	sweep, err := env.orchestrator().SyncAll(context.Background(), "site-1")
	if err != nil {
		t.Fatalf("SyncAll() error = %v", err)
	}
	if sweep.Entities != 2 || sweep.Synced != 2 || sweep.Failed != 0 {
		t.Errorf("sweep = %+v, want 2 entities all synced", sweep)
	}
	if len(autoSynced) != 2 {
		t.Errorf("got %d auto_synced events, want 2", len(autoSynced))
	}
	if n, _ := env.repo.CountActions("site-1"); n != 0 {
		t.Errorf("pending = %d after sweep, want 0", n)
	}
}

// TestSyncAllIsolatesFailures verifies one failing entity does not stop
// the rest of the sweep.
func TestSyncAllIsolatesFailures(t *testing.T) {
	env := setupSyncTest(t)
	forum := testKey()
	messages := models.EntityKey{SiteID: "site-1", Component: "messages", InstanceID: 3, UserID: 7}
	env.queueActionFor(t, forum, "forum message")
	env.queueActionFor(t, messages, "direct message")

	env.client.respond = func(_ string, params url.Values) (json.RawMessage, error) {
		if params.Get("messages[0][text]") == "forum message" {
			return nil, transportFailure()
		}
		return json.RawMessage(`{}`), nil
	}

	sweep, err := env.orchestrator().SyncAll(context.Background(), "site-1")
	if err != nil {
		t.Fatalf("SyncAll() error = %v", err)
	}
	if sweep.Synced != 1 || sweep.Failed != 1 {
		t.Errorf("sweep = %+v, want 1 synced and 1 failed", sweep)
	}

	// The failed entity keeps its action for the next sweep.
	if n, _ := env.repo.CountActionsByEntity(forum); n != 1 {
		t.Errorf("failed entity pending = %d, want 1", n)
	}
	if n, _ := env.repo.CountActionsByEntity(messages); n != 0 {
		t.Errorf("synced entity pending = %d, want 0", n)
	}
}

// TestSyncAllOffline verifies a sweep refuses to start without a connection.
func TestSyncAllOffline(t *testing.T) {
	env := setupSyncTest(t)
	env.monitor.SetOnline(false)

	_, err := env.orchestrator().SyncAll(context.Background(), "site-1")
	if !apperrors.Is(err, apperrors.ErrOffline) {
		t.Fatalf("SyncAll() error = %v, want %s", err, apperrors.ErrOffline)
	}
}

// TestSyncAllCollectsWarnings verifies discard warnings surface in the
// sweep summary.
func TestSyncAllCollectsWarnings(t *testing.T) {
	env := setupSyncTest(t)
	env.queueActionFor(t, testKey(), "doomed")

	env.client.respond = func(string, url.Values) (json.RawMessage, error) {
		return nil, rejection("messagetoolong", "message too long")
	}

	sweep, err := env.orchestrator().SyncAll(context.Background(), "site-1")
	if err != nil {
		t.Fatalf("SyncAll() error = %v", err)
	}
	if len(sweep.Warnings) != 1 {
		t.Fatalf("got %d warnings, want 1", len(sweep.Warnings))
	}
	want := `forum "doomed" could not be synced: message too long; offline data was discarded`
	if sweep.Warnings[0] != want {
		t.Errorf("warning = %q, want %q", sweep.Warnings[0], want)
	}
}

// TestSyncAllSiteScoped verifies sweeping one site leaves other sites'
// queues alone.
func TestSyncAllSiteScoped(t *testing.T) {
	env := setupSyncTest(t)
	env.queueActionFor(t, testKey(), "mine")
	other := models.EntityKey{SiteID: "site-2", Component: "forum", InstanceID: 1, UserID: 1}
	env.queueActionFor(t, other, "theirs")

	sweep, err := env.orchestrator().SyncAll(context.Background(), "site-1")
	if err != nil {
		t.Fatalf("SyncAll() error = %v", err)
	}
	if sweep.Entities != 1 {
		t.Errorf("sweep.Entities = %d, want 1", sweep.Entities)
	}
	if n, _ := env.repo.CountActionsByEntity(other); n != 1 {
		t.Errorf("other site's pending = %d, want 1", n)
	}
}
