package handlers

import (
	"crypto/subtle"
	"time"

	"github.com/fenilmodi00/ipo-sim-backend/jobs"
	"github.com/fenilmodi00/ipo-sim-backend/services"
	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"
)

type AdminHandler struct {
	Feed       *services.CatalogFeedService
	Recovery   *jobs.TimelineRecoveryJob
	Settlement *jobs.ListingSettlementJob
}

func NewAdminHandler(feed *services.CatalogFeedService, recovery *jobs.TimelineRecoveryJob, settlement *jobs.ListingSettlementJob) *AdminHandler {
	return &AdminHandler{
		Feed:       feed,
		Recovery:   recovery,
		Settlement: settlement,
	}
}

// AdminAuth requires the X-Admin-Token header to match token. An empty token
// leaves the admin routes open, which is only meant for local runs.
func AdminAuth(token string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if token == "" {
			return c.Next()
		}
		if subtle.ConstantTimeCompare([]byte(c.Get("X-Admin-Token")), []byte(token)) != 1 {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"success": false,
				"error":   "invalid admin token",
			})
		}
		return c.Next()
	}
}

// ResetRotation clears rotation state and cached feeds
func (h *AdminHandler) ResetRotation(c *fiber.Ctx) error {
	logrus.Info("Rotation reset triggered via admin endpoint")
	h.Feed.Reset()

	feed, err := h.Feed.GetFeed(c.UserContext())
	if err != nil {
		return respondError(c, err)
	}
	return respondData(c, feed)
}

// RefreshRotation re-derives today's feed and settles listed entries when
// the calendar driver is active
func (h *AdminHandler) RefreshRotation(c *fiber.Ctx) error {
	startTime := time.Now()

	feed, err := h.Feed.Refresh(c.UserContext())
	if err != nil {
		return respondError(c, err)
	}

	if h.Settlement != nil {
		if err := h.Settlement.Run(); err != nil {
			logrus.WithError(err).Warn("Listing settlement reported failures")
		}
	}

	return c.JSON(fiber.Map{
		"success":  true,
		"data":     feed,
		"duration": time.Since(startTime).String(),
	})
}

// RecoverTimelines rebuilds accelerated timelines from stored applications
func (h *AdminHandler) RecoverTimelines(c *fiber.Ctx) error {
	if h.Recovery == nil {
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{
			"success": false,
			"error":   "accelerated timelines are disabled",
		})
	}

	accepted, err := h.Recovery.Recover(c.UserContext())
	if err != nil {
		return respondError(c, err)
	}
	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{
		"success":  true,
		"accepted": accepted,
	})
}
