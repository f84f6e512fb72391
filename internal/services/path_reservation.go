// path_reservation.go
//
// Base path ownership guard. A path may only be persisted to an edition once
// this reservation succeeds for the submitting application.

package services

import (
	"errors"

	"github.com/ThomasJones4/publishing-api/internal/models"
	"github.com/ThomasJones4/publishing-api/internal/types"
	"gorm.io/gorm"
)

// ReserveBasePath records ownership of basePath by publishingApp. A path
// already reserved by a different application fails with a
// PathReservationConflict; re-reserving an owned path is an idempotent
// success.
func ReserveBasePath(tx *gorm.DB, basePath, publishingApp string) error {
	var reservation models.PathReservation
	err := tx.Where("base_path = ?", basePath).First(&reservation).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		reservation = models.PathReservation{
			BasePath:      basePath,
			PublishingApp: publishingApp,
		}
		return tx.Create(&reservation).Error
	}
	if err != nil {
		return err
	}

	if reservation.PublishingApp != publishingApp {
		return types.PathReservationError(basePath, reservation.PublishingApp)
	}
	return nil
}
