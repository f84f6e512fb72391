package handlers

import (
	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"

	"github.com/ThomasJones4/publishing-api/internal/config"
	"github.com/ThomasJones4/publishing-api/internal/services"
)

// HealthHandler handles the healthcheck route
type HealthHandler struct {
	Config *config.Config
	DB     *gorm.DB
}

// Healthcheck handles GET /healthcheck
// @Summary Service health
// @Description Reports database, content store and broker reachability
// @Tags Health
// @Produce json
// @Success 200 {object} services.HealthCheckResult
// @Failure 503 {object} services.HealthCheckResult
// @Router /healthcheck [get]
func (h *HealthHandler) Healthcheck(c *fiber.Ctx) error {
	result := services.HealthCheck(h.Config, h.DB)
	status := fiber.StatusOK
	if result.Status != "healthy" {
		status = fiber.StatusServiceUnavailable
	}
	return c.Status(status).JSON(result)
}
