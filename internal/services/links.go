// links.go
//
// Link graph mutation. Two policies coexist: the primary merge-by-type path
// used by the v2 content mutation, and a legacy replace-except-protected path
// kept for applications still publishing through the combined v1 endpoint.

package services

import (
	"errors"

	"github.com/ThomasJones4/publishing-api/internal/models"
	"github.com/ThomasJones4/publishing-api/internal/types"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// MergeLinksByType creates a link row for each target of each link type
// present in links. Link types absent from the payload are left untouched;
// this policy never deletes. Target ids must be UUIDs.
func MergeLinksByType(tx *gorm.DB, edition *models.Edition, links map[string][]string) error {
	if err := validateLinkTargets(links); err != nil {
		return err
	}

	for linkType, targets := range links {
		for position, target := range targets {
			var existing models.Link
			err := tx.Where(
				"edition_id = ? AND link_type = ? AND target_content_id = ?",
				edition.ID, linkType, target,
			).First(&existing).Error
			if err == nil {
				continue
			}
			if !errors.Is(err, gorm.ErrRecordNotFound) {
				return err
			}

			link := models.Link{
				EditionID:       edition.ID,
				LinkType:        linkType,
				TargetContentID: target,
				Position:        position,
			}
			if err := tx.Create(&link).Error; err != nil {
				return err
			}
		}
	}
	return nil
}

// ReplaceLinksExceptProtected deletes every link row owned by the document's
// editions except those whose link type is protected. Publishing apps on the
// allow-list are skipped entirely, deletions included; those apps are
// mid-migration to the v2 endpoints and their link data must not be touched
// here. Callers apply MergeLinksByType afterwards.
//
// TODO: drop the app allow-list once specialist-publisher is fully on the v2
// endpoints; the protected-type behavior stays.
func ReplaceLinksExceptProtected(tx *gorm.DB, doc *models.Document, publishingApp string, protectedTypes, allowListedApps []string) error {
	for _, app := range allowListedApps {
		if app == publishingApp {
			return nil
		}
	}

	q := tx.Where(
		"edition_id IN (?)",
		tx.Model(&models.Edition{}).Select("id").Where("document_id = ?", doc.ID),
	)
	if len(protectedTypes) > 0 {
		q = q.Where("link_type NOT IN ?", protectedTypes)
	}
	return q.Delete(&models.Link{}).Error
}

// LinksForEdition returns the edition's link graph grouped by type, targets
// in insertion order.
func LinksForEdition(tx *gorm.DB, editionID uint64) (map[string][]string, error) {
	var rows []models.Link
	if err := tx.Where("edition_id = ?", editionID).
		Order("link_type, position, id").Find(&rows).Error; err != nil {
		return nil, err
	}

	links := make(map[string][]string)
	for _, row := range rows {
		links[row.LinkType] = append(links[row.LinkType], row.TargetContentID)
	}
	return links, nil
}

func validateLinkTargets(links map[string][]string) error {
	fields := map[string]string{}
	for linkType, targets := range links {
		for _, target := range targets {
			if _, err := uuid.Parse(target); err != nil {
				fields["links."+linkType] = "target content ids must be UUIDs"
			}
		}
	}
	if len(fields) > 0 {
		return types.ValidationError(fields)
	}
	return nil
}
