package services

import (
	"github.com/fenilmodi00/ipo-sim-backend/models"
	"github.com/google/uuid"
)

// TimelineSource is the read side of the timeline scheduler.
type TimelineSource interface {
	Timeline(symbol string) (*models.AcceleratedTimeline, bool)
}

// WithdrawalOracle decides whether a user may withdraw from a symbol right now.
type WithdrawalOracle struct {
	timelines TimelineSource
}

func NewWithdrawalOracle(timelines TimelineSource) *WithdrawalOracle {
	return &WithdrawalOracle{timelines: timelines}
}

// CanWithdraw answers from the symbol's timeline. Untracked symbols are
// eligible so that a lost in-memory timeline never locks funds.
func (o *WithdrawalOracle) CanWithdraw(symbol string, userID uuid.UUID) models.WithdrawalEligibility {
	var tl *models.AcceleratedTimeline
	var ok bool
	if o.timelines != nil {
		tl, ok = o.timelines.Timeline(symbol)
	}
	if !ok {
		return models.WithdrawalEligibility{Eligible: true, Reason: "timeline not tracked"}
	}

	if tl.UserID != userID {
		return models.WithdrawalEligibility{Eligible: false, Reason: "unauthorized"}
	}

	switch tl.Phase {
	case models.TimelineNotAllotted:
		return models.WithdrawalEligibility{Eligible: true, Reason: "not allotted, funds can be released"}
	case models.TimelineListed:
		return models.WithdrawalEligibility{Eligible: true, Reason: "listed, holding can be sold"}
	case models.TimelineApplied:
		return models.WithdrawalEligibility{Eligible: false, Reason: "allotment pending"}
	case models.TimelineAllotted:
		return models.WithdrawalEligibility{Eligible: false, Reason: "allotted, waiting for listing"}
	case models.TimelineClosed:
		return models.WithdrawalEligibility{Eligible: false, Reason: "timeline closed"}
	default:
		return models.WithdrawalEligibility{Eligible: false, Reason: "unknown timeline phase"}
	}
}
