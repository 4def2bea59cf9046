package models

import (
	"time"

	"github.com/google/uuid"
)

// TimelinePhase is the phase of an accelerated timeline.
type TimelinePhase string

const (
	TimelineApplied     TimelinePhase = "applied"
	TimelineAllotted    TimelinePhase = "allotted"
	TimelineNotAllotted TimelinePhase = "not_allotted"
	TimelineListed      TimelinePhase = "listed"
	TimelineClosed      TimelinePhase = "closed"
)

// PhaseForStatus maps a persisted application status to the timeline phase it implies.
func PhaseForStatus(s ApplicationStatus) TimelinePhase {
	switch s {
	case StatusAllotted:
		return TimelineAllotted
	case StatusNotAllotted:
		return TimelineNotAllotted
	case StatusListed:
		return TimelineListed
	case StatusRefunded:
		return TimelineClosed
	}
	return TimelineApplied
}

// AcceleratedTimeline is the in-memory compressed lifecycle of one symbol.
type AcceleratedTimeline struct {
	Symbol        string        `json:"symbol"`
	ApplicationID uuid.UUID     `json:"application_id"`
	UserID        uuid.UUID     `json:"user_id"`
	AppliedAt     time.Time     `json:"applied_at"`
	AllotmentAt   time.Time     `json:"allotment_at"`
	ListingAt     time.Time     `json:"listing_at"`
	AutoCloseAt   time.Time     `json:"auto_close_at"`
	Phase         TimelinePhase `json:"phase"`
	AppliedAmount float64       `json:"applied_amount"`
	Allotted      bool          `json:"allotted"`
	ListingPrice  *float64      `json:"listing_price"`
	Profit        *float64      `json:"profit"`
}

func (t *AcceleratedTimeline) Clone() *AcceleratedTimeline {
	c := *t
	c.ListingPrice = cloneFloat(t.ListingPrice)
	c.Profit = cloneFloat(t.Profit)
	return &c
}
