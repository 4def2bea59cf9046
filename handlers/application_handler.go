package handlers

import (
	"github.com/fenilmodi00/ipo-sim-backend/models"
	"github.com/fenilmodi00/ipo-sim-backend/services"
	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"
)

type ApplicationHandler struct {
	Service *services.ApplicationService
}

func NewApplicationHandler(service *services.ApplicationService) *ApplicationHandler {
	return &ApplicationHandler{Service: service}
}

type applyRequest struct {
	UserID     string `json:"user_id"`
	Symbol     string `json:"symbol"`
	Shares     int    `json:"shares"`
	RefundMode string `json:"refund_mode"`
}

type withdrawRequest struct {
	UserID string `json:"user_id"`
}

// Apply creates a pending application against an open IPO
func (h *ApplicationHandler) Apply(c *fiber.Ctx) error {
	var req applyRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "Invalid request body")
	}

	userID, err := parseUUID(req.UserID, "USER_ID")
	if err != nil {
		return respondError(c, err)
	}

	app, err := h.Service.Apply(c.UserContext(), services.ApplyRequest{
		UserID:     userID,
		Symbol:     req.Symbol,
		Shares:     req.Shares,
		RefundMode: models.RefundMode(req.RefundMode),
	})
	if err != nil {
		logrus.WithError(err).WithField("symbol", req.Symbol).Debug("Application rejected")
		return respondError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"success": true,
		"data":    app,
	})
}

func (h *ApplicationHandler) GetApplication(c *fiber.Ctx) error {
	id, err := parseUUID(c.Params("id"), "APPLICATION_ID")
	if err != nil {
		return respondError(c, err)
	}

	app, err := h.Service.Get(c.UserContext(), id)
	if err != nil {
		return respondError(c, err)
	}
	return respondData(c, app)
}

// Withdraw pays out an application to its owner
func (h *ApplicationHandler) Withdraw(c *fiber.Ctx) error {
	id, err := parseUUID(c.Params("id"), "APPLICATION_ID")
	if err != nil {
		return respondError(c, err)
	}

	var req withdrawRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "Invalid request body")
	}
	userID, err := parseUUID(req.UserID, "USER_ID")
	if err != nil {
		return respondError(c, err)
	}

	app, err := h.Service.Withdraw(c.UserContext(), id, userID)
	if err != nil {
		return respondError(c, err)
	}
	return respondData(c, app)
}

func (h *ApplicationHandler) ListUserApplications(c *fiber.Ctx) error {
	userID, err := parseUUID(c.Params("user_id"), "USER_ID")
	if err != nil {
		return respondError(c, err)
	}

	apps, err := h.Service.ListByUser(c.UserContext(), userID)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{
		"success": true,
		"data":    apps,
		"count":   len(apps),
	})
}

func (h *ApplicationHandler) GetUserBalance(c *fiber.Ctx) error {
	userID, err := parseUUID(c.Params("user_id"), "USER_ID")
	if err != nil {
		return respondError(c, err)
	}

	balance, err := h.Service.Balance(c.UserContext(), userID)
	if err != nil {
		return respondError(c, err)
	}
	return respondData(c, fiber.Map{
		"user_id": userID,
		"balance": balance,
	})
}
