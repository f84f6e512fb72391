// substitution.go
//
// When a mutation claims a base path for its draft, competing draft editions
// of other documents holding the same path and locale are discarded before
// the new draft lands. Only placeholder formats substitute; real content
// never displaces other real content.

package services

import (
	"gorm.io/gorm"

	"github.com/ThomasJones4/publishing-api/internal/models"
)

// SubstitutableDocumentTypes are placeholder formats that may displace, or
// be displaced by, another document's draft at the same base path.
var SubstitutableDocumentTypes = []string{"gone", "redirect", "unpublishing", "vanish"}

func substitutable(documentType string) bool {
	for _, t := range SubstitutableDocumentTypes {
		if t == documentType {
			return true
		}
	}
	return false
}

// clearCompetingDrafts discards draft editions of other documents that hold
// the claimed base path in the same locale, provided either side of the
// pairing is substitutable. Link rows and access limits go with the edition.
func clearCompetingDrafts(tx *gorm.DB, doc *models.Document, newDocumentType, basePath string) error {
	if basePath == "" {
		return nil
	}

	var competitors []models.Edition
	err := tx.Select("editions.*").
		Joins("JOIN documents ON documents.id = editions.document_id").
		Where("editions.state = ? AND editions.base_path = ?", models.StateDraft, basePath).
		Where("documents.locale = ? AND documents.content_id <> ?", doc.Locale, doc.ContentID).
		Find(&competitors).Error
	if err != nil {
		return err
	}

	for i := range competitors {
		competitor := &competitors[i]
		if !substitutable(newDocumentType) && !substitutable(competitor.DocumentType) {
			continue
		}
		if err := discardDraft(tx, competitor); err != nil {
			return err
		}
	}
	return nil
}

func discardDraft(tx *gorm.DB, edition *models.Edition) error {
	if err := tx.Where("edition_id = ?", edition.ID).Delete(&models.Link{}).Error; err != nil {
		return err
	}
	if err := tx.Where("edition_id = ?", edition.ID).Delete(&models.AccessLimit{}).Error; err != nil {
		return err
	}
	return tx.Delete(edition).Error
}
