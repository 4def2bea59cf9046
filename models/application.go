package models

import (
	"time"

	"github.com/google/uuid"
)

// ApplicationStatus is the settlement status of an application.
type ApplicationStatus string

const (
	StatusPending     ApplicationStatus = "pending"
	StatusAllotted    ApplicationStatus = "allotted"
	StatusNotAllotted ApplicationStatus = "not_allotted"
	StatusListed      ApplicationStatus = "listed"
	StatusRefunded    ApplicationStatus = "refunded"
)

// rank orders statuses along pending -> {allotted|not_allotted} -> listed -> refunded.
func (s ApplicationStatus) rank() int {
	switch s {
	case StatusPending:
		return 0
	case StatusAllotted, StatusNotAllotted:
		return 1
	case StatusListed:
		return 2
	case StatusRefunded:
		return 3
	}
	return -1
}

// CanAdvanceTo reports whether moving from s to next keeps the status monotonic.
// not_allotted is absorbing.
func (s ApplicationStatus) CanAdvanceTo(next ApplicationStatus) bool {
	if s == StatusNotAllotted {
		return false
	}
	if s == StatusPending {
		return next == StatusAllotted || next == StatusNotAllotted
	}
	return next.rank() == s.rank()+1
}

func (s ApplicationStatus) Valid() bool { return s.rank() >= 0 }

// RefundMode selects how unallotted money is treated at allotment.
type RefundMode string

const (
	// RefundImmediate releases the unallotted remainder at allotment and
	// settles profit/loss against the allotted amount.
	RefundImmediate RefundMode = "immediate_refund"
	// RefundFullBlock keeps the whole applied amount blocked until
	// withdrawal and settles profit/loss against it.
	RefundFullBlock RefundMode = "full_block"
)

func (m RefundMode) Valid() bool {
	return m == RefundImmediate || m == RefundFullBlock
}

// Application is one user's subscription against one catalog entry.
type Application struct {
	ID         uuid.UUID  `json:"id"`
	UserID     uuid.UUID  `json:"user_id"`
	IPOSymbol  string     `json:"ipo_symbol"`
	IPOName    string     `json:"ipo_name"`
	IssuePrice float64    `json:"issue_price"`
	RefundMode RefundMode `json:"refund_mode"`

	AmountApplied  float64 `json:"amount_applied"`
	SharesApplied  int     `json:"shares_applied"`
	SharesAllotted int     `json:"shares_allotted"`
	AmountAllotted float64 `json:"amount_allotted"`
	RefundAmount   float64 `json:"refund_amount"`

	Status ApplicationStatus `json:"status"`
	Phase  TimelinePhase     `json:"timeline_phase"`

	ApplicationDate time.Time  `json:"application_date"`
	AllotmentDate   *time.Time `json:"allotment_date"`
	ListingDate     *time.Time `json:"listing_date"`
	WithdrawalDate  *time.Time `json:"withdrawal_date"`

	ListingPrice         *float64 `json:"listing_price"`
	ProfitLoss           *float64 `json:"profit_loss"`
	ProfitLossPercentage *float64 `json:"profit_loss_percentage"`
	WithdrawalAmount     *float64 `json:"withdrawal_amount"`
	Withdrawn            bool     `json:"withdrawn"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// BlockedAmount is the money of this application still held by the system.
func (a *Application) BlockedAmount() float64 {
	if a.Withdrawn {
		return 0
	}
	if a.RefundMode == RefundImmediate && a.Status != StatusPending {
		return a.AmountApplied - a.RefundAmount
	}
	return a.AmountApplied
}

// InvestedValue is the base profit/loss is measured against.
func (a *Application) InvestedValue() float64 {
	if a.RefundMode == RefundFullBlock {
		return a.AmountApplied
	}
	return a.AmountAllotted
}

// Clone copies the application including pointer fields.
func (a *Application) Clone() *Application {
	c := *a
	c.AllotmentDate = cloneTime(a.AllotmentDate)
	c.ListingDate = cloneTime(a.ListingDate)
	c.WithdrawalDate = cloneTime(a.WithdrawalDate)
	c.ListingPrice = cloneFloat(a.ListingPrice)
	c.ProfitLoss = cloneFloat(a.ProfitLoss)
	c.ProfitLossPercentage = cloneFloat(a.ProfitLossPercentage)
	c.WithdrawalAmount = cloneFloat(a.WithdrawalAmount)
	return &c
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}

func cloneFloat(f *float64) *float64 {
	if f == nil {
		return nil
	}
	v := *f
	return &v
}

// AllotmentResult is the outcome of the settlement allot step.
type AllotmentResult struct {
	Mode           RefundMode `json:"mode"`
	Allotted       bool       `json:"allotted"`
	Ratio          float64    `json:"ratio"`
	SharesAllotted int        `json:"shares_allotted"`
	AmountAllotted float64    `json:"amount_allotted"`
	RefundAmount   float64    `json:"refund_amount"`
}

// ListingResult is the outcome of the settlement list step.
type ListingResult struct {
	ListingPrice         float64 `json:"listing_price"`
	CurrentValue         float64 `json:"current_value"`
	InvestedValue        float64 `json:"invested_value"`
	ProfitLoss           float64 `json:"profit_loss"`
	ProfitLossPercentage float64 `json:"profit_loss_percentage"`
}

// WithdrawalEligibility is the answer of the withdrawal oracle.
type WithdrawalEligibility struct {
	Eligible bool   `json:"eligible"`
	Reason   string `json:"reason"`
}
