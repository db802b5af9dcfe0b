package uploads

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"time"

	apperrors "github.com/mviana/offcourse/internal/errors"
	"github.com/mviana/offcourse/internal/models"
)

// Uploader pushes staged files to the remote server ahead of the action
// that references them. It returns the draft item id the action's remote
// call should carry.
type Uploader interface {
	Upload(ctx context.Context, files []*models.StagedAttachment) (int64, error)
}

// uploadResult is one entry of the LMS upload endpoint response.
type uploadResult struct {
	ItemID int64 `json:"itemid"`
}

// DraftUploader uploads staged content to the LMS draft file area via
// multipart POST. All files of one call land in the same draft item.
type DraftUploader struct {
	baseURL string
	token   string
	store   *Store
	client  *http.Client
}

// NewDraftUploader builds an uploader for the given LMS base URL and token.
func NewDraftUploader(baseURL, token string, store *Store, timeout time.Duration) *DraftUploader {
	return &DraftUploader{
		baseURL: baseURL,
		token:   token,
		store:   store,
		client:  &http.Client{Timeout: timeout},
	}
}

// Upload implements Uploader. The first file creates the draft item; the
// rest are appended to it.
func (u *DraftUploader) Upload(ctx context.Context, files []*models.StagedAttachment) (int64, error) {
	var itemID int64
	for _, f := range files {
		data, err := u.store.Open(f.ContentHash)
		if err != nil {
			return 0, err
		}
		itemID, err = u.uploadOne(ctx, f.FileName, data, itemID)
		if err != nil {
			return 0, apperrors.Wrap(apperrors.ErrAttachmentUpload, fmt.Sprintf("failed to upload %s", f.FileName), err)
		}
	}
	return itemID, nil
}

func (u *DraftUploader) uploadOne(ctx context.Context, fileName string, data []byte, itemID int64) (int64, error) {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)

	if err := mw.WriteField("token", u.token); err != nil {
		return 0, err
	}
	if itemID > 0 {
		if err := mw.WriteField("itemid", strconv.FormatInt(itemID, 10)); err != nil {
			return 0, err
		}
	}
	part, err := mw.CreateFormFile("file", fileName)
	if err != nil {
		return 0, err
	}
	if _, err := part.Write(data); err != nil {
		return 0, err
	}
	if err := mw.Close(); err != nil {
		return 0, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u.baseURL+"/webservice/upload.php", &body)
	if err != nil {
		return 0, err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := u.client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, err
	}
	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("upload returned HTTP %d", resp.StatusCode)
	}

	var results []uploadResult
	if err := json.Unmarshal(respBody, &results); err != nil {
		return 0, fmt.Errorf("unexpected upload response: %w", err)
	}
	if len(results) == 0 {
		return 0, fmt.Errorf("upload returned no items")
	}
	return results[0].ItemID, nil
}
