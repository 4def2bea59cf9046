package handlers

import (
	"strings"

	"github.com/fenilmodi00/ipo-sim-backend/services"
	"github.com/gofiber/fiber/v2"
)

type IPOHandler struct {
	Feed *services.CatalogFeedService
}

func NewIPOHandler(feed *services.CatalogFeedService) *IPOHandler {
	return &IPOHandler{Feed: feed}
}

// GetIPOs returns today's catalog filtered by ?status=open|upcoming|closed|all
func (h *IPOHandler) GetIPOs(c *fiber.Ctx) error {
	status := c.Query("status", "all")
	entries, err := h.Feed.ListByStatus(c.UserContext(), status)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{
		"success": true,
		"data":    entries,
		"count":   len(entries),
	})
}

// GetFeed returns all three buckets with the IST date they were derived for
func (h *IPOHandler) GetFeed(c *fiber.Ctx) error {
	feed, err := h.Feed.GetFeed(c.UserContext())
	if err != nil {
		return respondError(c, err)
	}
	return respondData(c, feed)
}

func (h *IPOHandler) GetIPOBySymbol(c *fiber.Ctx) error {
	symbol := strings.ToUpper(c.Params("symbol"))
	entry, err := h.Feed.FindBySymbol(c.UserContext(), symbol)
	if err != nil {
		return respondError(c, err)
	}
	return respondData(c, entry)
}
