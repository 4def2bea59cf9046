package models

import (
	"github.com/google/uuid"
)

// CatalogPhase is the cached lifecycle tag of a catalog entry.
type CatalogPhase string

const (
	PhaseUpcoming CatalogPhase = "upcoming"
	PhaseOpen     CatalogPhase = "open"
	PhaseClosed   CatalogPhase = "closed"
	PhaseListed   CatalogPhase = "listed"
)

type RiskLevel string

const (
	RiskLow    RiskLevel = "Low"
	RiskMedium RiskLevel = "Medium"
	RiskHigh   RiskLevel = "High"
)

// CatalogEntry is one IPO offering with its subscription window.
type CatalogEntry struct {
	// Primary identification
	ID     uuid.UUID `json:"id"`
	Symbol string    `json:"symbol"`
	Name   string    `json:"name"`
	Sector string    `json:"sector"`

	// Pricing
	IssuePrice    float64   `json:"issue_price"`
	LotSize       int       `json:"lot_size"`
	MinInvestment float64   `json:"min_investment"`
	PriceBandLow  float64   `json:"price_band_low"`
	PriceBandHigh float64   `json:"price_band_high"`
	RiskLevel     RiskLevel `json:"risk_level"`

	// Lifecycle
	Status      CatalogPhase `json:"status"`
	OpenDate    Date         `json:"open_date"`
	CloseDate   Date         `json:"close_date"`
	ListingDate Date         `json:"listing_date"`
	Allotted    bool         `json:"allotted"`
	Listed      bool         `json:"listed"`

	// Set once listed
	ActualListingPrice *float64 `json:"actual_listing_price"`
	ListingGain        *float64 `json:"listing_gain"`
}

// Clone returns a deep copy, including the nullable listing fields.
func (e *CatalogEntry) Clone() *CatalogEntry {
	c := *e
	if e.ActualListingPrice != nil {
		v := *e.ActualListingPrice
		c.ActualListingPrice = &v
	}
	if e.ListingGain != nil {
		v := *e.ListingGain
		c.ListingGain = &v
	}
	return &c
}

// PhaseOn derives the phase an entry should carry on the given day.
func (e *CatalogEntry) PhaseOn(today Date) CatalogPhase {
	switch {
	case today.Before(e.OpenDate):
		return PhaseUpcoming
	case !today.After(e.CloseDate):
		return PhaseOpen
	case e.Listed:
		return PhaseListed
	default:
		return PhaseClosed
	}
}

// CatalogFeed is the rotation output for a single IST day.
type CatalogFeed struct {
	Date     Date            `json:"date"`
	Open     []*CatalogEntry `json:"open"`
	Upcoming []*CatalogEntry `json:"upcoming"`
	Closed   []*CatalogEntry `json:"closed"`
}

// Clone deep-copies every bucket.
func (f *CatalogFeed) Clone() *CatalogFeed {
	return &CatalogFeed{
		Date:     f.Date,
		Open:     cloneEntries(f.Open),
		Upcoming: cloneEntries(f.Upcoming),
		Closed:   cloneEntries(f.Closed),
	}
}

// Find looks a symbol up across all buckets.
func (f *CatalogFeed) Find(symbol string) (*CatalogEntry, bool) {
	for _, bucket := range [][]*CatalogEntry{f.Open, f.Upcoming, f.Closed} {
		for _, e := range bucket {
			if e.Symbol == symbol {
				return e, true
			}
		}
	}
	return nil, false
}

func cloneEntries(in []*CatalogEntry) []*CatalogEntry {
	out := make([]*CatalogEntry, 0, len(in))
	for _, e := range in {
		out = append(out, e.Clone())
	}
	return out
}
