// publish.go
//
// Publish and unpublish transitions, and the links-only mutation path.

package services

import (
	"errors"

	"github.com/ThomasJones4/publishing-api/internal/models"
	"github.com/ThomasJones4/publishing-api/internal/types"
	"gorm.io/gorm"
)

// PublishRequest is the publish transition body. UpdateType, when present,
// overrides the routing token used for the message broadcast only; the
// edition keeps the update type it was drafted with.
type PublishRequest struct {
	Locale          string            `json:"locale"`
	UpdateType      string            `json:"update_type"`
	PreviousVersion *types.FlexUint64 `json:"previous_version"`
	BulkPublishing  bool              `json:"bulk_publishing"`
}

// Publish moves the document's draft to published, superseding any prior
// published edition, and refreshes the live store and broker post-commit.
func (s *ContentService) Publish(contentID string, req *PublishRequest) (*EditionSnapshot, error) {
	if req.Locale == "" {
		req.Locale = models.DefaultLocale
	}

	var (
		snapshot *EditionSnapshot
		edition  *models.Edition
		version  uint64
	)

	err := s.DB.Transaction(func(tx *gorm.DB) error {
		doc, err := FindLocked(tx, contentID, req.Locale)
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return types.NotFoundError("no content found for " + contentID)
		}
		if err != nil {
			return err
		}

		if req.PreviousVersion != nil && req.PreviousVersion.Uint64() != doc.LockVersion {
			return types.ConflictError("Conflict: stale lock_version supplied")
		}

		edition, err = draftEdition(tx, doc)
		if err != nil {
			return err
		}
		if edition == nil {
			return &types.CustomError{
				Code:    422,
				Message: "Cannot publish: no draft exists for " + contentID,
				Type:    types.KindValidation,
			}
		}

		previous, err := previouslyPublishedEdition(tx, doc)
		if err != nil {
			return err
		}
		if previous != nil && previous.State == models.StatePublished {
			if err := tx.Model(previous).
				Update("state", models.StateSuperseded).Error; err != nil {
				return err
			}
		}

		if err := tx.Model(edition).
			Update("state", models.StatePublished).Error; err != nil {
			return err
		}
		edition.State = models.StatePublished

		if err := incrementLockVersion(tx, doc); err != nil {
			return err
		}

		event, err := recordEvent(tx, "Publish", doc.ContentID, doc.Locale, req)
		if err != nil {
			return err
		}
		version = event.ID

		snapshot, err = presentEdition(tx, doc, edition, nil)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.Downstream.SendLive(edition.ID, contentID, req.Locale, version, req.BulkPublishing, req.UpdateType, true)
	s.Downstream.SendDraft(edition.ID, contentID, req.Locale, version, req.BulkPublishing, false)

	return snapshot, nil
}

// UnpublishRequest is the unpublish transition body.
type UnpublishRequest struct {
	Locale          string            `json:"locale"`
	PreviousVersion *types.FlexUint64 `json:"previous_version"`
	BulkPublishing  bool              `json:"bulk_publishing"`
}

// Unpublish moves the published edition to unpublished. The live store still
// receives the payload (unpublished content renders as withdrawn); nothing is
// broadcast because the edition is no longer published.
func (s *ContentService) Unpublish(contentID string, req *UnpublishRequest) (*EditionSnapshot, error) {
	if req.Locale == "" {
		req.Locale = models.DefaultLocale
	}

	var (
		snapshot *EditionSnapshot
		edition  *models.Edition
		version  uint64
	)

	err := s.DB.Transaction(func(tx *gorm.DB) error {
		doc, err := FindLocked(tx, contentID, req.Locale)
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return types.NotFoundError("no content found for " + contentID)
		}
		if err != nil {
			return err
		}

		if req.PreviousVersion != nil && req.PreviousVersion.Uint64() != doc.LockVersion {
			return types.ConflictError("Conflict: stale lock_version supplied")
		}

		var published models.Edition
		err = tx.Where("document_id = ? AND state = ?", doc.ID, models.StatePublished).
			First(&published).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return &types.CustomError{
				Code:    422,
				Message: "Cannot unpublish: no published edition for " + contentID,
				Type:    types.KindValidation,
			}
		}
		if err != nil {
			return err
		}
		edition = &published

		if err := tx.Model(edition).
			Update("state", models.StateUnpublished).Error; err != nil {
			return err
		}
		edition.State = models.StateUnpublished

		if err := incrementLockVersion(tx, doc); err != nil {
			return err
		}

		event, err := recordEvent(tx, "Unpublish", doc.ContentID, doc.Locale, req)
		if err != nil {
			return err
		}
		version = event.ID

		snapshot, err = presentEdition(tx, doc, edition, nil)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.Downstream.SendLive(edition.ID, contentID, req.Locale, version, req.BulkPublishing, "", false)
	s.Downstream.SendDraft(edition.ID, contentID, req.Locale, version, req.BulkPublishing, false)

	return snapshot, nil
}

// PatchLinksRequest is the links-only mutation body.
type PatchLinksRequest struct {
	Locale          string                            `json:"locale"`
	Links           map[string]types.FlexList[string] `json:"links"`
	PreviousVersion *types.FlexUint64                 `json:"previous_version"`
	BulkPublishing  bool                              `json:"bulk_publishing"`
}

// PatchLinks merges link targets into the document's current edition without
// touching any content field. When the edition is live the broadcast carries
// the links routing token rather than the edition's own update type.
func (s *ContentService) PatchLinks(contentID string, req *PatchLinksRequest) (*EditionSnapshot, error) {
	if req.Locale == "" {
		req.Locale = models.DefaultLocale
	}

	if err := validateLinkTargets(flattenLinks(req.Links)); err != nil {
		return nil, err
	}

	var (
		snapshot *EditionSnapshot
		edition  *models.Edition
		version  uint64
	)

	err := s.DB.Transaction(func(tx *gorm.DB) error {
		doc, err := FindLocked(tx, contentID, req.Locale)
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return types.NotFoundError("no content found for " + contentID)
		}
		if err != nil {
			return err
		}

		if req.PreviousVersion != nil && req.PreviousVersion.Uint64() != doc.LockVersion {
			return types.ConflictError("Conflict: stale lock_version supplied")
		}

		edition, err = draftEdition(tx, doc)
		if err != nil {
			return err
		}
		if edition == nil {
			edition, err = previouslyPublishedEdition(tx, doc)
			if err != nil {
				return err
			}
		}
		if edition == nil {
			return types.NotFoundError("no edition found for " + contentID)
		}

		if err := MergeLinksByType(tx, edition, flattenLinks(req.Links)); err != nil {
			return err
		}

		event, err := recordEvent(tx, "PatchLinkSet", doc.ContentID, doc.Locale, req)
		if err != nil {
			return err
		}
		version = event.ID

		snapshot, err = presentEdition(tx, doc, edition, nil)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.Downstream.SendDraft(edition.ID, contentID, req.Locale, version, req.BulkPublishing, true)
	if edition.Live() {
		s.Downstream.SendLive(edition.ID, contentID, req.Locale, version, req.BulkPublishing, models.UpdateTypeLinks, true)
	}

	return snapshot, nil
}
