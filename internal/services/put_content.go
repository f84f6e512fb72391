// put_content.go
//
// The content mutation transaction: registry lock, edition upsert, link
// mutation, access control, redirect and event recording as one atomic unit.
// Downstream dispatch happens strictly after commit; a rolled-back mutation
// is never observable by any sink.

package services

import (
	"encoding/json"
	"time"

	"github.com/ThomasJones4/publishing-api/internal/downstream"
	"github.com/ThomasJones4/publishing-api/internal/models"
	"github.com/ThomasJones4/publishing-api/internal/types"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// DownstreamDispatcher is the post-commit hand-off consumed by the mutation
// commands. The implementation lives in the downstream package.
type DownstreamDispatcher interface {
	SendDraft(editionID uint64, contentID, locale string, version uint64, bulk, resolveDependencies bool)
	SendLive(editionID uint64, contentID, locale string, version uint64, bulk bool, updateTypeOverride string, resolveDependencies bool)
}

// ContentService orchestrates the mutation commands against the relational
// store and hands committed versions to the downstream dispatcher.
type ContentService struct {
	DB                 *gorm.DB
	Downstream         DownstreamDispatcher
	// DraftStore is used only by the legacy synchronous path; the v2
	// commands always go through the dispatcher.
	DraftStore         downstream.ContentStore
	ProtectedLinkTypes []string
	ProtectedApps      []string
}

// PutContentRequest is the v2 content mutation body.
type PutContentRequest struct {
	ContentID      string                           `json:"content_id"`
	Locale         string                           `json:"locale"`
	BasePath       string                           `json:"base_path"`
	SchemaName     string                           `json:"schema_name"`
	DocumentType   string                           `json:"document_type"`
	UpdateType     string                           `json:"update_type"`
	Details        json.RawMessage                  `json:"details"`
	Links          map[string]types.FlexList[string] `json:"links"`
	AccessLimited  *AccessLimitSpec                 `json:"access_limited"`
	PublishingApp  string                           `json:"publishing_app"`
	BulkPublishing bool                             `json:"bulk_publishing"`
	LastEditedAt   *time.Time                       `json:"last_edited_at"`
	PreviousVersion *types.FlexUint64               `json:"previous_version"`
}

// EditionSnapshot is the structural response for a successful mutation.
type EditionSnapshot struct {
	ContentID         string            `json:"content_id"`
	Locale            string            `json:"locale"`
	State             string            `json:"state"`
	BasePath          string            `json:"base_path,omitempty"`
	SchemaName        string            `json:"schema_name"`
	DocumentType      string            `json:"document_type,omitempty"`
	UpdateType        string            `json:"update_type"`
	UserFacingVersion uint64            `json:"user_facing_version"`
	LockVersion       uint64            `json:"lock_version"`
	LastEditedAt      *time.Time        `json:"last_edited_at,omitempty"`
	Details           json.RawMessage   `json:"details,omitempty"`
	Links             map[string][]string `json:"links"`
	AccessLimited     bool              `json:"access_limited"`
	Warnings          map[string]string `json:"warnings,omitempty"`
}

// PutContent runs the v2 content mutation. On success the draft store is
// refreshed asynchronously on the queue class selected by bulk_publishing.
func (s *ContentService) PutContent(req *PutContentRequest) (*EditionSnapshot, error) {
	return s.putContent(req, nil)
}

// putContent is the shared mutation body. prepare, when given, runs inside
// the mutation transaction right after the registry lock, so the legacy
// surface can rewrite stored links atomically with the rest of the mutation.
func (s *ContentService) putContent(req *PutContentRequest, prepare func(tx *gorm.DB, doc *models.Document) error) (*EditionSnapshot, error) {
	warnings := map[string]string{}
	if err := s.normalizeAndValidate(req, warnings); err != nil {
		return nil, err
	}

	users, bypassIDs, err := ValidateAccessLimit(req.AccessLimited)
	if err != nil {
		return nil, err
	}

	var (
		snapshot *EditionSnapshot
		edition  *models.Edition
		version  uint64
	)

	err = s.DB.Transaction(func(tx *gorm.DB) error {
		doc, err := FindOrCreateLocked(tx, req.ContentID, req.Locale)
		if err != nil {
			return err
		}

		if req.PreviousVersion != nil && req.PreviousVersion.Uint64() != doc.LockVersion {
			return types.ConflictError("Conflict: stale lock_version supplied")
		}

		if prepare != nil {
			if err := prepare(tx, doc); err != nil {
				return err
			}
		}

		previous, err := previouslyPublishedEdition(tx, doc)
		if err != nil {
			return err
		}

		if s.contentWithBasePath(req) {
			if err := ReserveBasePath(tx, req.BasePath, req.PublishingApp); err != nil {
				return err
			}
			if err := clearCompetingDrafts(tx, doc, req.DocumentType, req.BasePath); err != nil {
				return err
			}
		}

		edition, err = createOrUpdateEdition(tx, doc, editionAttributes{
			BasePath:      req.BasePath,
			UpdateType:    req.UpdateType,
			SchemaName:    req.SchemaName,
			DocumentType:  req.DocumentType,
			PublishingApp: req.PublishingApp,
			Details:       req.Details,
		})
		if err != nil {
			return err
		}

		if s.contentWithBasePath(req) {
			if err := createRedirectIfMoved(tx, doc, previous, req.BasePath, req.PublishingApp); err != nil {
				return err
			}
		}

		if err := applyAccessLimit(tx, edition, users, bypassIDs, req.AccessLimited != nil); err != nil {
			return err
		}

		if err := updateLastEditedAt(tx, edition, req.LastEditedAt, req.UpdateType); err != nil {
			return err
		}

		if err := MergeLinksByType(tx, edition, flattenLinks(req.Links)); err != nil {
			return err
		}

		event, err := recordEvent(tx, "PutContent", doc.ContentID, doc.Locale, req)
		if err != nil {
			return err
		}
		version = event.ID

		snapshot, err = presentEdition(tx, doc, edition, warnings)
		return err
	})
	if err != nil {
		return nil, err
	}

	// Strictly post-commit: nothing above this line may have enqueued.
	s.Downstream.SendDraft(edition.ID, req.ContentID, req.Locale, version, req.BulkPublishing, true)

	return snapshot, nil
}

func (s *ContentService) normalizeAndValidate(req *PutContentRequest, warnings map[string]string) error {
	fields := map[string]string{}

	if req.Locale == "" {
		req.Locale = models.DefaultLocale
	}

	if _, err := uuid.Parse(req.ContentID); err != nil {
		fields["content_id"] = "must be a UUID"
	}

	if req.SchemaName == "" {
		fields["schema_name"] = "is required"
	}

	switch req.UpdateType {
	case models.UpdateTypeMajor, models.UpdateTypeMinor, models.UpdateTypeLinks:
	case "":
		warnings["update_type"] = "missing update_type, defaulting to minor"
		req.UpdateType = models.UpdateTypeMinor
	default:
		fields["update_type"] = "must be one of major, minor, links"
	}

	if req.BasePath == "" && models.BasePathRequired(req.SchemaName) {
		fields["base_path"] = "is required for schema " + req.SchemaName
	}

	if err := validateLinkTargets(flattenLinks(req.Links)); err != nil {
		return err
	}

	if len(fields) > 0 {
		return types.ValidationError(fields)
	}
	return nil
}

func (s *ContentService) contentWithBasePath(req *PutContentRequest) bool {
	return req.BasePath != ""
}

func flattenLinks(links map[string]types.FlexList[string]) map[string][]string {
	if links == nil {
		return nil
	}
	out := make(map[string][]string, len(links))
	for linkType, targets := range links {
		out[linkType] = targets.Slice()
	}
	return out
}

func presentEdition(tx *gorm.DB, doc *models.Document, edition *models.Edition, warnings map[string]string) (*EditionSnapshot, error) {
	links, err := LinksForEdition(tx, edition.ID)
	if err != nil {
		return nil, err
	}

	var limitCount int64
	if err := tx.Model(&models.AccessLimit{}).
		Where("edition_id = ?", edition.ID).Count(&limitCount).Error; err != nil {
		return nil, err
	}

	if len(warnings) == 0 {
		warnings = nil
	}

	var details json.RawMessage
	if raw := edition.Details.String(); raw != "" && raw != "null" {
		details = json.RawMessage(raw)
	}

	return &EditionSnapshot{
		ContentID:         doc.ContentID,
		Locale:            doc.Locale,
		State:             edition.State,
		BasePath:          edition.BasePath,
		SchemaName:        edition.SchemaName,
		DocumentType:      edition.DocumentType,
		UpdateType:        edition.UpdateType,
		UserFacingVersion: edition.UserFacingVersion,
		LockVersion:       doc.LockVersion,
		LastEditedAt:      edition.LastEditedAt,
		Details:           details,
		Links:             links,
		AccessLimited:     limitCount > 0,
		Warnings:          warnings,
	}, nil
}
