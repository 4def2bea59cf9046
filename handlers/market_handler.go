package handlers

import (
	"github.com/fenilmodi00/ipo-sim-backend/services"
	"github.com/gofiber/fiber/v2"
)

type MarketHandler struct {
	Feed *services.CatalogFeedService
}

func NewMarketHandler(feed *services.CatalogFeedService) *MarketHandler {
	return &MarketHandler{Feed: feed}
}

// GetMarketPrices quotes listed IPOs at their actual listing prices
func (h *MarketHandler) GetMarketPrices(c *fiber.Ctx) error {
	prices, err := h.Feed.ListedPrices(c.UserContext())
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{
		"success": true,
		"data":    prices,
		"count":   len(prices),
	})
}
