// access_limit.go
//
// Draft access restriction. One row per edition at most; absence means the
// edition is unrestricted.

package services

import (
	"encoding/json"
	"errors"

	"github.com/ThomasJones4/publishing-api/internal/models"
	"github.com/ThomasJones4/publishing-api/internal/types"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// AccessLimitSpec is the access_limited request fragment. FactCheckIDs is
// the pre-rename field some publishing apps still send; it feeds the same
// bypass-id set.
type AccessLimitSpec struct {
	Users         []interface{} `json:"users"`
	AuthBypassIDs []interface{} `json:"auth_bypass_ids"`
	FactCheckIDs  []interface{} `json:"fact_check_ids"`
}

// ValidateAccessLimit checks the spec before any row is written: users must
// all be string identifiers, bypass ids must all be UUID strings.
func ValidateAccessLimit(spec *AccessLimitSpec) ([]string, []string, error) {
	if spec == nil {
		return nil, nil, nil
	}

	fields := map[string]string{}

	users := make([]string, 0, len(spec.Users))
	for _, u := range spec.Users {
		s, ok := u.(string)
		if !ok || s == "" {
			fields["access_limited.users"] = "must be an array of string identifiers"
			continue
		}
		users = append(users, s)
	}

	rawIDs := spec.AuthBypassIDs
	field := "access_limited.auth_bypass_ids"
	if len(rawIDs) == 0 && len(spec.FactCheckIDs) > 0 {
		rawIDs = spec.FactCheckIDs
		field = "access_limited.fact_check_ids"
	}

	bypassIDs := make([]string, 0, len(rawIDs))
	for _, id := range rawIDs {
		s, ok := id.(string)
		if !ok {
			fields[field] = "must be an array of UUIDs"
			continue
		}
		if _, err := uuid.Parse(s); err != nil {
			fields[field] = "must be an array of UUIDs"
			continue
		}
		bypassIDs = append(bypassIDs, s)
	}

	if len(fields) > 0 {
		return nil, nil, types.ValidationError(fields)
	}
	return users, bypassIDs, nil
}

// applyAccessLimit upserts the edition's access limit as a full replace when
// a spec is present, and removes any existing row when it is absent.
// Validation must have run before the enclosing transaction started writing.
func applyAccessLimit(tx *gorm.DB, edition *models.Edition, users, bypassIDs []string, present bool) error {
	if !present {
		return tx.Where("edition_id = ?", edition.ID).Delete(&models.AccessLimit{}).Error
	}

	usersJSON, err := json.Marshal(users)
	if err != nil {
		return err
	}
	bypassJSON, err := json.Marshal(bypassIDs)
	if err != nil {
		return err
	}

	var limit models.AccessLimit
	err = tx.Where("edition_id = ?", edition.ID).First(&limit).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		limit = models.AccessLimit{
			EditionID:     edition.ID,
			Users:         models.NewJSON(usersJSON),
			AuthBypassIDs: models.NewJSON(bypassJSON),
		}
		return tx.Create(&limit).Error
	}
	if err != nil {
		return err
	}

	return tx.Model(&limit).Updates(map[string]interface{}{
		"users":           models.NewJSON(usersJSON),
		"auth_bypass_ids": models.NewJSON(bypassJSON),
	}).Error
}
