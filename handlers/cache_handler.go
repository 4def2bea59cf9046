package handlers

import (
	"github.com/fenilmodi00/ipo-sim-backend/services"
	"github.com/gofiber/fiber/v2"
)

type CacheHandler struct {
	Service *services.CacheService
}

func NewCacheHandler(service *services.CacheService) *CacheHandler {
	return &CacheHandler{Service: service}
}

func (h *CacheHandler) GetStats(c *fiber.Ctx) error {
	return respondData(c, fiber.Map{
		"size": h.Service.Size(),
		"type": "in-memory",
	})
}

// ClearCache drops every cached feed; the next read derives from the rotation engine.
func (h *CacheHandler) ClearCache(c *fiber.Ctx) error {
	h.Service.Clear()
	return c.JSON(fiber.Map{
		"success": true,
		"message": "Cache cleared",
	})
}
