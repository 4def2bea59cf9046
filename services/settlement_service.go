package services

import (
	"math"

	"github.com/fenilmodi00/ipo-sim-backend/models"
	"github.com/shopspring/decimal"
)

const (
	minAllotmentRatio = 0.10
	maxAllotmentRatio = 0.40
)

var (
	lossCapRate = decimal.RequireFromString("0.10")
	hundred     = decimal.NewFromInt(100)
)

// SettlementService computes allotment, listing and withdrawal outcomes.
// It has no side effects; the only state it holds is its random source.
type SettlementService struct {
	rng              RandomSource
	listingMinFactor float64
	listingMaxFactor float64
}

// NewSettlementService creates a settlement calculator. A nil source uses a clock-seeded one.
func NewSettlementService(rng RandomSource) *SettlementService {
	if rng == nil {
		rng = NewDefaultRandomSource()
	}
	return &SettlementService{
		rng:              rng,
		listingMinFactor: 0.9,
		listingMaxFactor: 1.3,
	}
}

// AllotWithImmediateRefund allots a random 10-40% of the requested shares and
// releases the unallotted remainder.
func (s *SettlementService) AllotWithImmediateRefund(app *models.Application, entry *models.CatalogEntry) models.AllotmentResult {
	return s.allot(app, entry, models.RefundImmediate)
}

// AllotWithFullBlock allots a random 10-40% of the requested shares and keeps
// the entire applied amount blocked until withdrawal.
func (s *SettlementService) AllotWithFullBlock(app *models.Application, entry *models.CatalogEntry) models.AllotmentResult {
	return s.allot(app, entry, models.RefundFullBlock)
}

// Allot dispatches on an explicit refund mode. Callers validate the mode first.
func (s *SettlementService) Allot(app *models.Application, entry *models.CatalogEntry, mode models.RefundMode) models.AllotmentResult {
	if mode == models.RefundImmediate {
		return s.AllotWithImmediateRefund(app, entry)
	}
	return s.AllotWithFullBlock(app, entry)
}

func (s *SettlementService) allot(app *models.Application, entry *models.CatalogEntry, mode models.RefundMode) models.AllotmentResult {
	ratio := uniform(s.rng, minAllotmentRatio, maxAllotmentRatio)
	shares := int(math.Floor(float64(app.SharesApplied) * ratio))
	if shares < 0 {
		shares = 0
	}
	if shares > app.SharesApplied {
		shares = app.SharesApplied
	}

	amountAllotted := decimal.NewFromInt(int64(shares)).Mul(decimal.NewFromFloat(entry.IssuePrice))
	refund := decimal.Zero
	if mode == models.RefundImmediate {
		refund = decimal.NewFromFloat(app.AmountApplied).Sub(amountAllotted)
	}

	return models.AllotmentResult{
		Mode:           mode,
		Allotted:       true,
		Ratio:          ratio,
		SharesAllotted: shares,
		AmountAllotted: money(amountAllotted),
		RefundAmount:   money(refund),
	}
}

// NotAllotted is the outcome for an application that received nothing: the
// whole applied amount becomes refundable.
func (s *SettlementService) NotAllotted(app *models.Application) models.AllotmentResult {
	return models.AllotmentResult{
		Mode:         app.RefundMode,
		Allotted:     false,
		RefundAmount: app.AmountApplied,
	}
}

// List values an allotted holding at listingPrice. The invested value must
// follow the mode the application was allotted under.
func (s *SettlementService) List(app *models.Application, listingPrice float64, mode models.RefundMode) models.ListingResult {
	current := decimal.NewFromInt(int64(app.SharesAllotted)).Mul(decimal.NewFromFloat(listingPrice))

	invested := decimal.NewFromFloat(app.AmountAllotted)
	if mode == models.RefundFullBlock {
		invested = decimal.NewFromFloat(app.AmountApplied)
	}

	profitLoss := current.Sub(invested)
	percentage := decimal.Zero
	if !invested.IsZero() {
		percentage = profitLoss.Div(invested).Mul(hundred)
	}

	return models.ListingResult{
		ListingPrice:         listingPrice,
		CurrentValue:         money(current),
		InvestedValue:        money(invested),
		ProfitLoss:           money(profitLoss),
		ProfitLossPercentage: money(percentage),
	}
}

// DrawListingPrice draws a listing price between -10% and +30% of the issue price.
func (s *SettlementService) DrawListingPrice(issuePrice float64) float64 {
	return drawListingPrice(s.rng, issuePrice, s.listingMinFactor, s.listingMaxFactor)
}

// CalculateWithdrawal returns the payout for a holding. A nil profitLoss means
// the holding has not listed yet and only the principal is returned.
//
// NOTE: a profitable exit returns the principal plus the full market value.
// This doubled return is the rule product asked for and is kept until they
// sign off on a change.
func CalculateWithdrawal(investedValue float64, profitLoss *float64) float64 {
	invested := decimal.NewFromFloat(investedValue)
	if profitLoss == nil {
		return money(invested)
	}

	pl := decimal.NewFromFloat(*profitLoss)
	if pl.IsNegative() {
		return money(invested.Sub(invested.Mul(lossCapRate)))
	}

	current := invested.Add(pl)
	return money(invested.Add(current))
}

// WithdrawalFor computes the payout of an application in its persisted refund mode.
func (s *SettlementService) WithdrawalFor(app *models.Application) float64 {
	switch app.Status {
	case models.StatusListed:
		if app.ProfitLoss != nil {
			return CalculateWithdrawal(app.InvestedValue(), app.ProfitLoss)
		}
		return CalculateWithdrawal(app.BlockedAmount(), nil)
	default:
		return CalculateWithdrawal(app.BlockedAmount(), nil)
	}
}

// drawListingPrice rounds issuePrice × U[minFactor, maxFactor] to whole rupees,
// keeping the rounded price inside the factor band.
func drawListingPrice(rng RandomSource, issuePrice, minFactor, maxFactor float64) float64 {
	multiplier := uniform(rng, minFactor, maxFactor)
	price := math.Round(issuePrice * multiplier)

	low := math.Ceil(issuePrice * minFactor)
	high := math.Floor(issuePrice * maxFactor)
	if low <= high {
		if price < low {
			price = low
		}
		if price > high {
			price = high
		}
	}
	return price
}

// money rounds to paise.
func money(d decimal.Decimal) float64 {
	return d.Round(2).InexactFloat64()
}
