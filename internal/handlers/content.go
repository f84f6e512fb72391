// content.go
//
// The v2 content surface: content mutation, lifecycle transitions and link
// patching. Handlers parse and hand off; every decision about state lives in
// the services package.

package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/ThomasJones4/publishing-api/internal/services"
	"github.com/ThomasJones4/publishing-api/internal/types"
	"github.com/ThomasJones4/publishing-api/internal/utils"
)

// ContentHandler handles the v2 content routes
type ContentHandler struct {
	Service *services.ContentService
}

// PutContent handles PUT /v2/content/:content_id
// @Summary Create or update a draft edition
// @Description Upserts the draft edition for a content item in one locale
// @Tags Content
// @Accept json
// @Produce json
// @Param content_id path string true "Content ID (UUID)"
// @Param body body services.PutContentRequest true "Content attributes"
// @Success 200 {object} services.EditionSnapshot
// @Failure 409 {object} map[string]interface{}
// @Failure 422 {object} map[string]interface{}
// @Router /v2/content/{content_id} [put]
func (h *ContentHandler) PutContent(c *fiber.Ctx) error {
	req := new(services.PutContentRequest)
	if err := c.BodyParser(req); err != nil {
		return utils.ErrorResponse(c, types.ValidationError(map[string]string{
			"body": "is not valid JSON",
		}))
	}
	req.ContentID = c.Params("content_id")

	snapshot, err := h.Service.PutContent(req)
	if err != nil {
		return utils.ErrorResponse(c, err)
	}
	return utils.SuccessResponse(c, snapshot, fiber.StatusOK)
}

// Publish handles POST /v2/content/:content_id/publish
// @Summary Publish the draft edition
// @Description Transitions the draft edition to published, superseding any previously published edition
// @Tags Content
// @Accept json
// @Produce json
// @Param content_id path string true "Content ID (UUID)"
// @Param body body services.PublishRequest true "Publish options"
// @Success 200 {object} services.EditionSnapshot
// @Failure 404 {object} map[string]interface{}
// @Failure 409 {object} map[string]interface{}
// @Failure 422 {object} map[string]interface{}
// @Router /v2/content/{content_id}/publish [post]
func (h *ContentHandler) Publish(c *fiber.Ctx) error {
	req := new(services.PublishRequest)
	if err := c.BodyParser(req); err != nil {
		return utils.ErrorResponse(c, types.ValidationError(map[string]string{
			"body": "is not valid JSON",
		}))
	}

	snapshot, err := h.Service.Publish(c.Params("content_id"), req)
	if err != nil {
		return utils.ErrorResponse(c, err)
	}
	return utils.SuccessResponse(c, snapshot, fiber.StatusOK)
}

// Unpublish handles POST /v2/content/:content_id/unpublish
// @Summary Unpublish the published edition
// @Description Withdraws the published edition while keeping it visible to the live store
// @Tags Content
// @Accept json
// @Produce json
// @Param content_id path string true "Content ID (UUID)"
// @Param body body services.UnpublishRequest true "Unpublish options"
// @Success 200 {object} services.EditionSnapshot
// @Failure 404 {object} map[string]interface{}
// @Failure 409 {object} map[string]interface{}
// @Failure 422 {object} map[string]interface{}
// @Router /v2/content/{content_id}/unpublish [post]
func (h *ContentHandler) Unpublish(c *fiber.Ctx) error {
	req := new(services.UnpublishRequest)
	if err := c.BodyParser(req); err != nil {
		return utils.ErrorResponse(c, types.ValidationError(map[string]string{
			"body": "is not valid JSON",
		}))
	}

	snapshot, err := h.Service.Unpublish(c.Params("content_id"), req)
	if err != nil {
		return utils.ErrorResponse(c, err)
	}
	return utils.SuccessResponse(c, snapshot, fiber.StatusOK)
}

// PatchLinks handles PATCH /v2/links/:content_id
// @Summary Patch the link set of a content item
// @Description Merges the supplied link groups into the item's current edition
// @Tags Links
// @Accept json
// @Produce json
// @Param content_id path string true "Content ID (UUID)"
// @Param body body services.PatchLinksRequest true "Link groups"
// @Success 200 {object} services.EditionSnapshot
// @Failure 404 {object} map[string]interface{}
// @Failure 409 {object} map[string]interface{}
// @Failure 422 {object} map[string]interface{}
// @Router /v2/links/{content_id} [patch]
func (h *ContentHandler) PatchLinks(c *fiber.Ctx) error {
	req := new(services.PatchLinksRequest)
	if err := c.BodyParser(req); err != nil {
		return utils.ErrorResponse(c, types.ValidationError(map[string]string{
			"body": "is not valid JSON",
		}))
	}

	snapshot, err := h.Service.PatchLinks(c.Params("content_id"), req)
	if err != nil {
		return utils.ErrorResponse(c, err)
	}
	return utils.SuccessResponse(c, snapshot, fiber.StatusOK)
}
