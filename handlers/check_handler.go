package handlers

import (
	"github.com/fenilmodi00/ipo-sim-backend/services"
	"github.com/gofiber/fiber/v2"
)

// CheckHandler answers withdrawal eligibility questions.
type CheckHandler struct {
	Applications *services.ApplicationService
}

func NewCheckHandler(applications *services.ApplicationService) *CheckHandler {
	return &CheckHandler{Applications: applications}
}

// CheckWithdrawal handles GET /withdrawals/eligibility?symbol=&user_id=
func (h *CheckHandler) CheckWithdrawal(c *fiber.Ctx) error {
	symbol := c.Query("symbol")
	if symbol == "" {
		return badRequest(c, "symbol is required")
	}
	userID, err := parseUUID(c.Query("user_id"), "USER_ID")
	if err != nil {
		return respondError(c, err)
	}

	eligibility := h.Applications.Eligibility(symbol, userID)
	return respondData(c, eligibility)
}
