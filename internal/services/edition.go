// edition.go
//
// Edition lifecycle and version-numbering rules. Editions move
// draft -> published -> superseded, published -> unpublished, and a fresh
// draft may follow any terminal state. Counters resume across republish
// cycles rather than restarting.

package services

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/ThomasJones4/publishing-api/internal/models"
	"gorm.io/gorm"
)

// editionAttributes carries the mutable fields of a draft edition.
type editionAttributes struct {
	BasePath      string
	UpdateType    string
	SchemaName    string
	DocumentType  string
	PublishingApp string
	Details       json.RawMessage
}

// draftEdition returns the document's draft, nil when none exists.
func draftEdition(tx *gorm.DB, doc *models.Document) (*models.Edition, error) {
	var edition models.Edition
	err := tx.Where("document_id = ? AND state = ?", doc.ID, models.StateDraft).
		First(&edition).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &edition, nil
}

// previouslyPublishedEdition returns the most recent published or
// unpublished edition, nil when the document has never been live. Its
// counters seed any new draft so that republishing resumes version history.
func previouslyPublishedEdition(tx *gorm.DB, doc *models.Document) (*models.Edition, error) {
	var edition models.Edition
	err := tx.Where("document_id = ? AND state IN ?",
		doc.ID, []string{models.StatePublished, models.StateUnpublished}).
		Order("user_facing_version DESC, id DESC").
		First(&edition).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &edition, nil
}

// createOrUpdateEdition updates the existing draft in place, or creates a
// new draft seeded from the previously published edition's user-facing
// version. Draft edits do not advance counters; creating a draft after a
// published or unpublished edition advances both the user-facing version and
// the document lock version.
func createOrUpdateEdition(tx *gorm.DB, doc *models.Document, attrs editionAttributes) (*models.Edition, error) {
	draft, err := draftEdition(tx, doc)
	if err != nil {
		return nil, err
	}

	if draft != nil {
		updates := map[string]interface{}{
			"base_path":      attrs.BasePath,
			"update_type":    attrs.UpdateType,
			"schema_name":    attrs.SchemaName,
			"document_type":  attrs.DocumentType,
			"publishing_app": attrs.PublishingApp,
		}
		if attrs.Details != nil {
			updates["details"] = models.NewJSON(attrs.Details)
		}
		if err := tx.Model(draft).Updates(updates).Error; err != nil {
			return nil, err
		}
		return draft, nil
	}

	previous, err := previouslyPublishedEdition(tx, doc)
	if err != nil {
		return nil, err
	}

	var seedVersion uint64
	if previous != nil {
		seedVersion = previous.UserFacingVersion
	}

	edition := models.Edition{
		DocumentID:        doc.ID,
		State:             models.StateDraft,
		UserFacingVersion: seedVersion + 1,
		BasePath:          attrs.BasePath,
		UpdateType:        attrs.UpdateType,
		SchemaName:        attrs.SchemaName,
		DocumentType:      attrs.DocumentType,
		PublishingApp:     attrs.PublishingApp,
		Details:           models.NewJSON(attrs.Details),
	}
	if err := tx.Create(&edition).Error; err != nil {
		return nil, err
	}

	if err := incrementLockVersion(tx, doc); err != nil {
		return nil, err
	}
	return &edition, nil
}

// incrementLockVersion advances the document's monotonic lock counter with a
// guarded conditional update; zero rows affected means a concurrent writer
// got there first despite the row lock, which indicates a broken lock path.
func incrementLockVersion(tx *gorm.DB, doc *models.Document) error {
	result := tx.Model(doc).Where("lock_version = ?", doc.LockVersion).
		Update("lock_version", doc.LockVersion+1)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return errors.New("lock_version moved under an exclusive lock")
	}
	doc.LockVersion++
	return nil
}

// createRedirectIfMoved records a forwarding entry when a path-bearing
// mutation changes the base path relative to the previously published item.
func createRedirectIfMoved(tx *gorm.DB, doc *models.Document, previous *models.Edition, newBasePath, publishingApp string) error {
	if previous == nil || previous.BasePath == "" {
		return nil
	}
	if newBasePath == "" || previous.BasePath == newBasePath {
		return nil
	}

	redirect := models.Redirect{
		ContentID:     doc.ContentID,
		Locale:        doc.Locale,
		OldBasePath:   previous.BasePath,
		NewBasePath:   newBasePath,
		PublishingApp: publishingApp,
	}
	return tx.Create(&redirect).Error
}

// updateLastEditedAt stamps the edition. An explicit timestamp always wins;
// otherwise only major and minor updates count as edits.
func updateLastEditedAt(tx *gorm.DB, edition *models.Edition, explicit *time.Time, updateType string) error {
	stamp := explicit
	if stamp == nil && (updateType == models.UpdateTypeMajor || updateType == models.UpdateTypeMinor) {
		now := time.Now().UTC()
		stamp = &now
	}
	if stamp == nil {
		return nil
	}
	return tx.Model(edition).Update("last_edited_at", stamp).Error
}
