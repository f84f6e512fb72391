package handlers

import (
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/ThomasJones4/publishing-api/internal/services"
	"github.com/ThomasJones4/publishing-api/internal/types"
	"github.com/ThomasJones4/publishing-api/internal/utils"
)

// LegacyHandler handles the pre-v2 combined content-with-links route
type LegacyHandler struct {
	Service *services.ContentService
}

// PutDraftContentWithLinks handles PUT /content/+
// @Summary Create or update draft content with links (legacy)
// @Description Combined content and links mutation addressed by base path
// @Tags Legacy
// @Accept json
// @Produce json
// @Param base_path path string true "Base path of the content item"
// @Param body body services.LegacyPutRequest true "Content attributes"
// @Success 200 {object} services.EditionSnapshot
// @Failure 409 {object} map[string]interface{}
// @Failure 422 {object} map[string]interface{}
// @Failure 500 {object} map[string]interface{}
// @Router /content/{base_path} [put]
func (h *LegacyHandler) PutDraftContentWithLinks(c *fiber.Ctx) error {
	req := new(services.LegacyPutRequest)
	if err := c.BodyParser(req); err != nil {
		return utils.ErrorResponse(c, types.ValidationError(map[string]string{
			"body": "is not valid JSON",
		}))
	}

	// The wildcard arrives without its leading slash.
	req.BasePath = "/" + strings.TrimPrefix(c.Params("*"), "/")

	snapshot, err := h.Service.PutDraftContentWithLinks(req)
	if err != nil {
		return utils.ErrorResponse(c, err)
	}
	return utils.SuccessResponse(c, snapshot, fiber.StatusOK)
}
