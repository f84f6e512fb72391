// data.go
//
// Row factories shared by the test suites.

package helpers

import (
	"testing"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/ThomasJones4/publishing-api/internal/models"
)

// CreateDocument inserts a document row for the given pair.
func CreateDocument(t *testing.T, db *gorm.DB, contentID, locale string) *models.Document {
	t.Helper()
	doc := models.Document{ContentID: contentID, Locale: locale}
	if err := db.Create(&doc).Error; err != nil {
		t.Fatalf("Failed to create document: %v", err)
	}
	return &doc
}

// CreateEdition inserts an edition row in the given state.
func CreateEdition(t *testing.T, db *gorm.DB, doc *models.Document, state string, userFacingVersion uint64, basePath string) *models.Edition {
	t.Helper()
	edition := models.Edition{
		DocumentID:        doc.ID,
		State:             state,
		UserFacingVersion: userFacingVersion,
		BasePath:          basePath,
		SchemaName:        "news_article",
		DocumentType:      "press_release",
		UpdateType:        models.UpdateTypeMajor,
		PublishingApp:     "whitehall",
		Details:           models.NewJSON([]byte(`{"body":"text"}`)),
	}
	if err := db.Create(&edition).Error; err != nil {
		t.Fatalf("Failed to create edition: %v", err)
	}
	return &edition
}

// CreateLink inserts a link row from an edition to a target content item.
func CreateLink(t *testing.T, db *gorm.DB, edition *models.Edition, linkType, target string, position int) *models.Link {
	t.Helper()
	link := models.Link{
		EditionID:       edition.ID,
		LinkType:        linkType,
		TargetContentID: target,
		Position:        position,
	}
	if err := db.Create(&link).Error; err != nil {
		t.Fatalf("Failed to create link: %v", err)
	}
	return &link
}

// NewContentID returns a fresh content id.
func NewContentID() string {
	return uuid.NewString()
}
