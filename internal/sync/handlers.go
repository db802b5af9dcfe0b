package sync

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"

	apperrors "github.com/mviana/offcourse/internal/errors"
	"github.com/mviana/offcourse/internal/models"
	"github.com/mviana/offcourse/internal/rpc"
	"github.com/mviana/offcourse/internal/uploads"
)

// RunContext carries per-run state through a sequence of replays: the
// remote client, attachment plumbing and the local-to-remote id map built
// as earlier actions in the same run create server-side records.
type RunContext struct {
	Client   rpc.Client
	Uploader uploads.Uploader
	Files    *uploads.Manager

	localIDs map[int64]int64
}

// NewRunContext starts a fresh run with an empty id map.
func NewRunContext(client rpc.Client, uploader uploads.Uploader, files *uploads.Manager) *RunContext {
	return &RunContext{
		Client:   client,
		Uploader: uploader,
		Files:    files,
		localIDs: make(map[int64]int64),
	}
}

// MapLocalID records that the negative local id now exists remotely as
// remoteID. Later actions in the same run resolve through this map.
func (c *RunContext) MapLocalID(localID, remoteID int64) {
	if localID < 0 {
		c.localIDs[localID] = remoteID
	}
}

// ResolveID translates an id that may be a negative local placeholder.
// Positive ids pass through. A placeholder with no mapping means the
// parent action failed or was discarded earlier in the run.
func (c *RunContext) ResolveID(id int64) (int64, error) {
	if id >= 0 {
		return id, nil
	}
	remote, ok := c.localIDs[id]
	if !ok {
		return 0, apperrors.Newf(apperrors.ErrMissingParent, "local id %d has no remote counterpart", id)
	}
	return remote, nil
}

// UploadAttachments pushes the action's staged files to the server draft
// area and returns the draft item id, or 0 when the action has none.
func (c *RunContext) UploadAttachments(ctx context.Context, action *models.OfflineAction) (int64, error) {
	if c.Files == nil || c.Uploader == nil {
		return 0, nil
	}
	files, err := c.Files.FilesForAction(action.ID)
	if err != nil {
		return 0, err
	}
	if len(files) == 0 {
		return 0, nil
	}
	return c.Uploader.Upload(ctx, files)
}

// HandlerFunc replays one offline action against the remote server.
type HandlerFunc func(ctx context.Context, run *RunContext, action *models.OfflineAction) error

// Registry maps action kinds to their replay handlers. The set is closed:
// replaying a kind with no handler fails the run rather than skipping.
type Registry struct {
	handlers map[models.ActionKind]HandlerFunc
}

// NewRegistry returns a registry with all built-in handlers installed.
func NewRegistry() *Registry {
	r := &Registry{handlers: make(map[models.ActionKind]HandlerFunc)}
	r.Register(models.ActionCreateDiscussion, replayCreateDiscussion)
	r.Register(models.ActionReplyPost, replayReplyPost)
	r.Register(models.ActionSendMessage, replaySendMessage)
	r.Register(models.ActionSetTrack, replaySetTrack)
	r.Register(models.ActionDeleteEntry, replayDeleteEntry)
	return r
}

// Register installs or replaces the handler for a kind.
func (r *Registry) Register(kind models.ActionKind, fn HandlerFunc) {
	r.handlers[kind] = fn
}

// Lookup returns the handler for a kind.
func (r *Registry) Lookup(kind models.ActionKind) (HandlerFunc, error) {
	fn, ok := r.handlers[kind]
	if !ok {
		return nil, apperrors.Newf(apperrors.ErrUnknownAction, "no handler registered for kind %q", kind)
	}
	return fn, nil
}

// discardWarning formats the user-visible message stored when an action's
// offline data is dropped.
func discardWarning(action *models.OfflineAction, reason string) string {
	return fmt.Sprintf("%s %q could not be synced: %s; offline data was discarded",
		action.Component, action.Name, reason)
}

// ============================================================================
// Built-in Handlers
// ============================================================================

// createDiscussionPayload is the offline form of a new forum discussion.
// LocalID is the negative placeholder the UI assigned to it.
type createDiscussionPayload struct {
	LocalID int64  `json:"local_id"`
	Subject string `json:"subject"`
	Message string `json:"message"`
	GroupID int64  `json:"group_id"`
}

func replayCreateDiscussion(ctx context.Context, run *RunContext, action *models.OfflineAction) error {
	var p createDiscussionPayload
	if err := json.Unmarshal(action.Payload, &p); err != nil {
		return apperrors.Wrap(apperrors.ErrInvalid, "malformed create_discussion payload", err)
	}

	itemID, err := run.UploadAttachments(ctx, action)
	if err != nil {
		return err
	}

	params := url.Values{
		"forumid": {strconv.FormatInt(action.InstanceID, 10)},
		"subject": {p.Subject},
		"message": {p.Message},
	}
	if p.GroupID != 0 {
		params.Set("groupid", strconv.FormatInt(p.GroupID, 10))
	}
	if itemID > 0 {
		params.Set("options[0][name]", "attachmentsid")
		params.Set("options[0][value]", strconv.FormatInt(itemID, 10))
	}

	raw, err := run.Client.Call(ctx, "mod_forum_add_discussion", params)
	if err != nil {
		return err
	}

	var resp struct {
		DiscussionID int64 `json:"discussionid"`
	}
	if err := json.Unmarshal(raw, &resp); err != nil {
		return apperrors.Wrap(apperrors.ErrTransport, "unexpected add_discussion response", err)
	}
	run.MapLocalID(p.LocalID, resp.DiscussionID)
	return nil
}

// replyPostPayload is the offline form of a forum reply. ParentID may be a
// negative placeholder referring to a discussion created earlier in the
// same run.
type replyPostPayload struct {
	LocalID  int64  `json:"local_id"`
	ParentID int64  `json:"parent_id"`
	Subject  string `json:"subject"`
	Message  string `json:"message"`
}

func replayReplyPost(ctx context.Context, run *RunContext, action *models.OfflineAction) error {
	var p replyPostPayload
	if err := json.Unmarshal(action.Payload, &p); err != nil {
		return apperrors.Wrap(apperrors.ErrInvalid, "malformed reply_post payload", err)
	}

	parentID, err := run.ResolveID(p.ParentID)
	if err != nil {
		return err
	}

	itemID, err := run.UploadAttachments(ctx, action)
	if err != nil {
		return err
	}

	params := url.Values{
		"postid":  {strconv.FormatInt(parentID, 10)},
		"subject": {p.Subject},
		"message": {p.Message},
	}
	if itemID > 0 {
		params.Set("options[0][name]", "attachmentsid")
		params.Set("options[0][value]", strconv.FormatInt(itemID, 10))
	}

	raw, err := run.Client.Call(ctx, "mod_forum_add_discussion_post", params)
	if err != nil {
		return err
	}

	var resp struct {
		PostID int64 `json:"postid"`
	}
	if err := json.Unmarshal(raw, &resp); err != nil {
		return apperrors.Wrap(apperrors.ErrTransport, "unexpected add_discussion_post response", err)
	}
	run.MapLocalID(p.LocalID, resp.PostID)
	return nil
}

// sendMessagePayload is one queued instant message.
type sendMessagePayload struct {
	ToUserID int64  `json:"to_user_id"`
	Text     string `json:"text"`
}

func replaySendMessage(ctx context.Context, run *RunContext, action *models.OfflineAction) error {
	var p sendMessagePayload
	if err := json.Unmarshal(action.Payload, &p); err != nil {
		return apperrors.Wrap(apperrors.ErrInvalid, "malformed send_message payload", err)
	}

	params := url.Values{
		"messages[0][touserid]": {strconv.FormatInt(p.ToUserID, 10)},
		"messages[0][text]":     {p.Text},
	}
	_, err := run.Client.Call(ctx, "core_message_send_instant_messages", params)
	return err
}

// setTrackPayload toggles read tracking for a forum.
type setTrackPayload struct {
	Track bool `json:"track"`
}

func replaySetTrack(ctx context.Context, run *RunContext, action *models.OfflineAction) error {
	var p setTrackPayload
	if err := json.Unmarshal(action.Payload, &p); err != nil {
		return apperrors.Wrap(apperrors.ErrInvalid, "malformed set_track payload", err)
	}

	params := url.Values{
		"forumid": {strconv.FormatInt(action.InstanceID, 10)},
		"track":   {strconv.FormatBool(p.Track)},
	}
	_, err := run.Client.Call(ctx, "mod_forum_set_tracking", params)
	return err
}

// deleteEntryPayload removes a glossary entry. EntryID may be a negative
// placeholder for an entry created offline in the same run.
type deleteEntryPayload struct {
	EntryID int64 `json:"entry_id"`
}

func replayDeleteEntry(ctx context.Context, run *RunContext, action *models.OfflineAction) error {
	var p deleteEntryPayload
	if err := json.Unmarshal(action.Payload, &p); err != nil {
		return apperrors.Wrap(apperrors.ErrInvalid, "malformed delete_entry payload", err)
	}

	entryID, err := run.ResolveID(p.EntryID)
	if err != nil {
		return err
	}

	params := url.Values{
		"entryid": {strconv.FormatInt(entryID, 10)},
	}
	_, err = run.Client.Call(ctx, "mod_glossary_delete_entry", params)
	return err
}
