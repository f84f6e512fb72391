package utils

import (
	"errors"

	"github.com/gofiber/fiber/v2"

	"github.com/ThomasJones4/publishing-api/internal/types"
)

// SuccessResponse sends a standard success response
func SuccessResponse(c *fiber.Ctx, data interface{}, status int) error {
	return c.Status(status).JSON(data)
}

// ErrorResponse maps a service error onto the errors envelope. Unknown error
// values become an opaque 500 so internals never leak into a response body.
func ErrorResponse(c *fiber.Ctx, err error) error {
	var ce *types.CustomError
	if !errors.As(err, &ce) {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"errors": fiber.Map{"base": "internal error"},
		})
	}

	body := fiber.Map{}
	if len(ce.Fields) > 0 {
		for field, message := range ce.Fields {
			body[field] = message
		}
	} else {
		body["base"] = ce.Message
	}

	return c.Status(ce.Code).JSON(fiber.Map{"errors": body})
}

// NotFoundResponse sends a 404 with the errors envelope
func NotFoundResponse(c *fiber.Ctx, message string) error {
	return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
		"errors": fiber.Map{"base": message},
	})
}
