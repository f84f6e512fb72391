// legacy.go
//
// The combined draft-content-with-links endpoint kept for publishing
// applications that predate the split v2 surface. With a content_id it
// replaces the stored links wholesale before running the normal mutation;
// without one it writes straight to the draft store, synchronously, because
// there is no document row for the asynchronous pipeline to reload.

package services

import (
	"context"
	"encoding/json"
	"time"

	"gorm.io/gorm"

	"github.com/ThomasJones4/publishing-api/internal/downstream"
	"github.com/ThomasJones4/publishing-api/internal/models"
	"github.com/ThomasJones4/publishing-api/internal/types"
)

// legacyStoreTimeout bounds the synchronous draft-store write. The caller is
// a blocked HTTP request, so this is much tighter than the worker timeout.
const legacyStoreTimeout = 10 * time.Second

// LegacyPutRequest is the legacy endpoint body. BasePath comes from the URL,
// not the body.
type LegacyPutRequest struct {
	ContentID       string                            `json:"content_id"`
	Locale          string                            `json:"locale"`
	BasePath        string                            `json:"-"`
	SchemaName      string                            `json:"schema_name"`
	DocumentType    string                            `json:"document_type"`
	UpdateType      string                            `json:"update_type"`
	Details         json.RawMessage                   `json:"details"`
	Links           map[string]types.FlexList[string] `json:"links"`
	PublishingApp   string                            `json:"publishing_app"`
	BulkPublishing  bool                              `json:"bulk_publishing"`
	PreviousVersion *types.FlexUint64                 `json:"previous_version"`
}

// PutDraftContentWithLinks handles the legacy combined mutation.
func (s *ContentService) PutDraftContentWithLinks(req *LegacyPutRequest) (*EditionSnapshot, error) {
	if req.ContentID != "" {
		return s.legacyPutWithContentID(req)
	}
	return s.legacyPutWithoutContentID(req)
}

// legacyPutWithContentID clears the previously stored links so the request
// body's links become the full set. The clear runs inside the mutation's
// own transaction, so a failing mutation leaves the stored links untouched.
// Protected link types survive the clear, and allow-listed applications skip
// it entirely.
func (s *ContentService) legacyPutWithContentID(req *LegacyPutRequest) (*EditionSnapshot, error) {
	return s.putContent(&PutContentRequest{
		ContentID:       req.ContentID,
		Locale:          req.Locale,
		BasePath:        req.BasePath,
		SchemaName:      req.SchemaName,
		DocumentType:    req.DocumentType,
		UpdateType:      req.UpdateType,
		Details:         req.Details,
		Links:           req.Links,
		PublishingApp:   req.PublishingApp,
		BulkPublishing:  req.BulkPublishing,
		PreviousVersion: req.PreviousVersion,
	}, func(tx *gorm.DB, doc *models.Document) error {
		return ReplaceLinksExceptProtected(tx, doc, req.PublishingApp, s.ProtectedLinkTypes, s.ProtectedApps)
	})
}

// legacyPutWithoutContentID reserves the path and pushes the item to the
// draft store inside the transaction. A store failure rolls everything back,
// so a failed write leaves no trace in the history.
func (s *ContentService) legacyPutWithoutContentID(req *LegacyPutRequest) (*EditionSnapshot, error) {
	if s.DraftStore == nil {
		return nil, types.SinkUnavailableError("draft", nil)
	}
	if req.Locale == "" {
		req.Locale = models.DefaultLocale
	}
	if req.BasePath == "" {
		return nil, types.ValidationError(map[string]string{"base_path": "is required"})
	}

	var snapshot *EditionSnapshot

	err := s.DB.Transaction(func(tx *gorm.DB) error {
		if err := ReserveBasePath(tx, req.BasePath, req.PublishingApp); err != nil {
			return err
		}

		event, err := recordEvent(tx, "PutDraftContent", "", req.Locale, req)
		if err != nil {
			return err
		}

		var details json.RawMessage
		if len(req.Details) > 0 && string(req.Details) != "null" {
			details = req.Details
		}

		payload := &downstream.Payload{
			Locale:       req.Locale,
			Version:      event.ID,
			BasePath:     req.BasePath,
			State:        models.StateDraft,
			SchemaName:   req.SchemaName,
			DocumentType: req.DocumentType,
			UpdateType:   req.UpdateType,
			Details:      details,
			Links:        []downstream.LinkGroup{},
		}

		ctx, cancel := context.WithTimeout(context.Background(), legacyStoreTimeout)
		defer cancel()
		if err := s.DraftStore.Apply(ctx, payload); err != nil {
			return err
		}

		snapshot = &EditionSnapshot{
			Locale:     req.Locale,
			State:      models.StateDraft,
			BasePath:   req.BasePath,
			SchemaName: req.SchemaName,
			UpdateType: req.UpdateType,
			Details:    details,
			Links:      map[string][]string{},
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return snapshot, nil
}
