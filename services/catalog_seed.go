package services

import (
	"math"

	"github.com/fenilmodi00/ipo-sim-backend/models"
	"github.com/google/uuid"
)

// CatalogSeed is the static catalog the rotation engine starts every epoch from.
// The three lists carry the phase each entry was originally authored with.
type CatalogSeed struct {
	Open     []models.CatalogEntry
	Upcoming []models.CatalogEntry
	Closed   []models.CatalogEntry
}

// All returns copies of every seed entry in open, upcoming, closed order.
func (s CatalogSeed) All() []*models.CatalogEntry {
	out := make([]*models.CatalogEntry, 0, len(s.Open)+len(s.Upcoming)+len(s.Closed))
	for _, list := range [][]models.CatalogEntry{s.Open, s.Upcoming, s.Closed} {
		for i := range list {
			out = append(out, list[i].Clone())
		}
	}
	return out
}

// seedEntryNamespace derives stable ids for seed entries from their symbol.
var seedEntryNamespace = uuid.MustParse("5b0f6f8e-3c1a-4a57-9d0e-2f61c8a4b7d2")

func seedEntry(symbol, name, sector string, issuePrice float64, lotSize int, risk models.RiskLevel, open, close, listing string, phase models.CatalogPhase) models.CatalogEntry {
	return models.CatalogEntry{
		ID:            uuid.NewSHA1(seedEntryNamespace, []byte(symbol)),
		Symbol:        symbol,
		Name:          name,
		Sector:        sector,
		IssuePrice:    issuePrice,
		LotSize:       lotSize,
		MinInvestment: issuePrice * float64(lotSize),
		PriceBandLow:  math.Round(issuePrice * 0.95),
		PriceBandHigh: issuePrice,
		RiskLevel:     risk,
		Status:        phase,
		OpenDate:      models.MustParseDate(open),
		CloseDate:     models.MustParseDate(close),
		ListingDate:   models.MustParseDate(listing),
	}
}

// DefaultCatalogSeed is the catalog shipped with the service.
func DefaultCatalogSeed() CatalogSeed {
	return CatalogSeed{
		Open: []models.CatalogEntry{
			seedEntry("SUNRISEPWR", "Sunrise Power Grid Ltd", "Energy", 242, 61, models.RiskMedium, "2026-10-14", "2026-10-19", "2026-10-22", models.PhaseOpen),
			seedEntry("NAVYUGFIN", "Navyug Finserv Ltd", "Financial Services", 118, 127, models.RiskHigh, "2026-10-15", "2026-10-20", "2026-10-23", models.PhaseOpen),
			seedEntry("KESARAGRO", "Kesar Agro Foods Ltd", "FMCG", 76, 197, models.RiskLow, "2026-10-16", "2026-10-21", "2026-10-26", models.PhaseOpen),
		},
		Upcoming: []models.CatalogEntry{
			seedEntry("TRIVENILOG", "Triveni Logistics Ltd", "Logistics", 315, 47, models.RiskMedium, "2026-10-22", "2026-10-26", "2026-10-29", models.PhaseUpcoming),
			seedEntry("AAKASHSEMI", "Aakash Semiconductors Ltd", "Technology", 540, 27, models.RiskHigh, "2026-10-27", "2026-10-29", "2026-11-03", models.PhaseUpcoming),
			seedEntry("MEGHDOOT", "Meghdoot Airways Ltd", "Aviation", 96, 156, models.RiskHigh, "2026-11-02", "2026-11-04", "2026-11-09", models.PhaseUpcoming),
			seedEntry("PRAKRITI", "Prakriti Healthcare Ltd", "Healthcare", 428, 35, models.RiskLow, "2026-11-05", "2026-11-09", "2026-11-12", models.PhaseUpcoming),
		},
		Closed: []models.CatalogEntry{
			seedEntry("VEDANTCHEM", "Vedant Specialty Chemicals Ltd", "Chemicals", 184, 81, models.RiskMedium, "2026-09-22", "2026-09-24", "2026-09-29", models.PhaseClosed),
			seedEntry("SWARNARAIL", "Swarna Rail Systems Ltd", "Infrastructure", 265, 56, models.RiskMedium, "2026-09-28", "2026-09-30", "2026-10-05", models.PhaseClosed),
			seedEntry("UDAYTEXT", "Uday Textiles Ltd", "Textiles", 58, 258, models.RiskHigh, "2026-10-05", "2026-10-07", "2026-10-12", models.PhaseClosed),
			seedEntry("NIRMALBANK", "Nirmal Small Finance Bank Ltd", "Banking", 137, 109, models.RiskMedium, "2026-10-08", "2026-10-12", "2026-10-15", models.PhaseClosed),
		},
	}
}
