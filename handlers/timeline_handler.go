package handlers

import (
	"strings"

	"github.com/fenilmodi00/ipo-sim-backend/models"
	"github.com/fenilmodi00/ipo-sim-backend/services"
	"github.com/gofiber/fiber/v2"
)

type TimelineHandler struct {
	Scheduler *services.TimelineScheduler
}

func NewTimelineHandler(scheduler *services.TimelineScheduler) *TimelineHandler {
	return &TimelineHandler{Scheduler: scheduler}
}

func (h *TimelineHandler) ListTimelines(c *fiber.Ctx) error {
	timelines := []*models.AcceleratedTimeline{}
	if h.Scheduler != nil {
		timelines = h.Scheduler.ActiveTimelines()
	}
	return c.JSON(fiber.Map{
		"success": true,
		"data":    timelines,
		"count":   len(timelines),
	})
}

func (h *TimelineHandler) GetTimeline(c *fiber.Ctx) error {
	symbol := strings.ToUpper(c.Params("symbol"))
	if h.Scheduler != nil {
		if tl, ok := h.Scheduler.Timeline(symbol); ok {
			return respondData(c, tl)
		}
	}
	return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
		"success": false,
		"error":   "Timeline not found",
	})
}
