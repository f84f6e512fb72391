// registry.go
//
// Document identity and the per-(content_id, locale) exclusive-access gate.

package services

import (
	"encoding/json"
	"errors"

	"github.com/ThomasJones4/publishing-api/internal/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// FindOrCreateLocked returns the document row for (contentID, locale),
// creating it when absent, and holds an exclusive row lock on it for the
// duration of the enclosing transaction. Two concurrent mutations for the
// same pair serialize here; the second waits until the first's transaction
// completes.
func FindOrCreateLocked(tx *gorm.DB, contentID, locale string) (*models.Document, error) {
	var doc models.Document
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("content_id = ? AND locale = ?", contentID, locale).
		First(&doc).Error
	if err == nil {
		return &doc, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	doc = models.Document{ContentID: contentID, Locale: locale}
	if err := tx.Create(&doc).Error; err != nil {
		return nil, err
	}

	// Re-select under the lock so a concurrent creator loses the race
	// cleanly instead of both transactions proceeding.
	if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("content_id = ? AND locale = ?", contentID, locale).
		First(&doc).Error; err != nil {
		return nil, err
	}
	return &doc, nil
}

// FindLocked is FindOrCreateLocked without the create path; missing document
// returns gorm.ErrRecordNotFound.
func FindLocked(tx *gorm.DB, contentID, locale string) (*models.Document, error) {
	var doc models.Document
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("content_id = ? AND locale = ?", contentID, locale).
		First(&doc).Error
	if err != nil {
		return nil, err
	}
	return &doc, nil
}

// recordEvent appends one event inside the mutation transaction. The
// auto-increment id it receives on insert is the version stamped on every
// downstream payload for this mutation.
func recordEvent(tx *gorm.DB, action, contentID, locale string, payload interface{}) (*models.Event, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	event := models.Event{
		Action:    action,
		ContentID: contentID,
		Locale:    locale,
		Payload:   models.NewJSON(raw),
	}
	if err := tx.Create(&event).Error; err != nil {
		return nil, err
	}
	return &event, nil
}
