package handlers

import (
	"github.com/fenilmodi00/ipo-sim-backend/shared"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

// statusFor maps a ServiceError category onto an HTTP status code.
func statusFor(err error) int {
	category, ok := shared.CategoryOf(err)
	if !ok {
		return fiber.StatusInternalServerError
	}
	switch category {
	case shared.ErrorCategoryValidation:
		return fiber.StatusBadRequest
	case shared.ErrorCategoryNotFound:
		return fiber.StatusNotFound
	case shared.ErrorCategoryStateConflict:
		return fiber.StatusConflict
	case shared.ErrorCategoryAuthorization:
		return fiber.StatusForbidden
	default:
		return fiber.StatusInternalServerError
	}
}

func respondError(c *fiber.Ctx, err error) error {
	status := statusFor(err)
	body := fiber.Map{
		"success": false,
		"error":   err.Error(),
	}
	if category, ok := shared.CategoryOf(err); ok {
		body["category"] = category
	}
	return c.Status(status).JSON(body)
}

func respondData(c *fiber.Ctx, data interface{}) error {
	return c.JSON(fiber.Map{
		"success": true,
		"data":    data,
	})
}

func badRequest(c *fiber.Ctx, message string) error {
	return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
		"success": false,
		"error":   message,
	})
}

// parseUUID reads a uuid path or query value.
func parseUUID(value, field string) (uuid.UUID, error) {
	id, err := uuid.Parse(value)
	if err != nil {
		return uuid.Nil, shared.NewValidationError("INVALID_"+field, field+" must be a valid uuid", "Handlers", "parseUUID")
	}
	return id, nil
}
