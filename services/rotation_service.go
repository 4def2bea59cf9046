package services

import (
	"fmt"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/fenilmodi00/ipo-sim-backend/models"
	"github.com/fenilmodi00/ipo-sim-backend/shared"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

const relistedSuffix = " (Re-listed)"

// RotationService derives the open/upcoming/closed catalog buckets for the
// current IST day. The derivation runs at most once per day; repeated calls on
// the same day return the cached result until Reset is called.
type RotationService struct {
	mu      sync.Mutex
	seed    CatalogSeed
	cfg     shared.RotationConfig
	loc     *time.Location
	now     func() time.Time
	rng     RandomSource
	metrics *shared.ServiceMetrics
	logger  *logrus.Entry

	// derived state, cleared by Reset
	initialized bool
	pool        []*models.CatalogEntry
	closed      []*models.CatalogEntry
	lastDay     models.Date
	lastFeed    *models.CatalogFeed
	synthesized int
	recycled    int
}

// RotationOptions configures a RotationService. Zero values fall back to defaults.
type RotationOptions struct {
	Seed     *CatalogSeed
	Config   *shared.RotationConfig
	Location *time.Location
	Now      func() time.Time
	Random   RandomSource
}

// NewRotationService creates a rotation engine over the given seed.
func NewRotationService(opts RotationOptions) *RotationService {
	cfg := shared.NewDefaultUnifiedConfiguration().Rotation
	if opts.Config != nil {
		cfg = *opts.Config
	}

	seed := DefaultCatalogSeed()
	if opts.Seed != nil {
		seed = *opts.Seed
	}

	loc := opts.Location
	if loc == nil {
		loc = cfg.Location()
	}

	now := opts.Now
	if now == nil {
		now = time.Now
	}

	rng := opts.Random
	if rng == nil {
		rng = NewDefaultRandomSource()
	}

	return &RotationService{
		seed:    seed,
		cfg:     cfg,
		loc:     loc,
		now:     now,
		rng:     rng,
		metrics: shared.NewServiceMetrics("Rotation_Service"),
		logger:  logrus.WithField("component", "RotationService"),
	}
}

// Today returns the current calendar date in the rotation timezone.
func (s *RotationService) Today() models.Date {
	return models.DateOf(s.now(), s.loc)
}

// GetCurrentStatus returns the catalog buckets for today. The result is a deep
// copy; callers may mutate it freely.
func (s *RotationService) GetCurrentStatus() *models.CatalogFeed {
	s.mu.Lock()
	defer s.mu.Unlock()

	today := s.Today()
	if s.lastFeed != nil && s.lastDay == today {
		return s.lastFeed.Clone()
	}

	start := time.Now()
	feed := s.rotate(today)
	s.lastDay = today
	s.lastFeed = feed
	s.metrics.RecordRequest(true, time.Since(start))
	s.metrics.IncrementCounter("rotations")

	s.logger.WithFields(logrus.Fields{
		"date":     today,
		"open":     len(feed.Open),
		"upcoming": len(feed.Upcoming),
		"closed":   len(feed.Closed),
	}).Info("Catalog rotated")

	return feed.Clone()
}

// Reset drops all derived state; the next GetCurrentStatus re-initializes from the seed.
func (s *RotationService) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.initialized = false
	s.pool = nil
	s.closed = nil
	s.lastDay = ""
	s.lastFeed = nil
	s.synthesized = 0
	s.recycled = 0
	s.metrics.IncrementCounter("resets")
	s.logger.Info("Rotation state reset")
}

// Metrics exposes the engine's counters.
func (s *RotationService) Metrics() *shared.ServiceMetrics {
	return s.metrics
}

func (s *RotationService) rotate(today models.Date) *models.CatalogFeed {
	if !s.initialized {
		s.pool = s.seed.All()
		s.closed = nil
		s.initialized = true
	}

	yesterday := today.AddDays(-1)

	var open, upcoming, newlyClosed []*models.CatalogEntry
	for _, e := range s.pool {
		switch {
		case today.Before(e.OpenDate):
			upcoming = append(upcoming, e)
		case !today.After(e.CloseDate):
			open = append(open, e)
		default:
			newlyClosed = append(newlyClosed, e)
		}
	}

	inClosed := make(map[uuid.UUID]bool, len(s.closed))
	for _, e := range s.closed {
		inClosed[e.ID] = true
	}

	var listedToday []*models.CatalogEntry
	for _, e := range newlyClosed {
		if e.CloseDate.Equal(yesterday) && !e.Allotted {
			s.listEntry(e, today)
			if inClosed[e.ID] {
				s.closed = removeEntry(s.closed, e.ID)
			}
			listedToday = append(listedToday, e)
			inClosed[e.ID] = true
			continue
		}
		if !inClosed[e.ID] {
			e.Status = models.PhaseClosed
			e.ListingDate = e.CloseDate.AddDays(1)
			s.closed = append(s.closed, e)
			inClosed[e.ID] = true
		}
	}
	if len(listedToday) > 0 {
		s.closed = append(listedToday, s.closed...)
	}

	for i := 0; len(open) < s.cfg.MinOpen; i++ {
		e := s.synthesize(today, models.PhaseOpen, i)
		s.pool = append(s.pool, e)
		open = append(open, e)
	}
	for i := 0; len(upcoming) < s.cfg.MinUpcoming; i++ {
		e := s.synthesize(today, models.PhaseUpcoming, i)
		s.pool = append(s.pool, e)
		upcoming = append(upcoming, e)
	}

	if len(upcoming) < s.cfg.RecycleUpcomingLT && len(s.closed) > s.cfg.RecycleClosedGT {
		oldest := s.closed[len(s.closed)-1]
		s.closed = s.closed[:len(s.closed)-1]
		s.recycle(oldest, today)
		upcoming = append(upcoming, oldest)
	}

	for _, e := range open {
		e.Status = models.PhaseOpen
	}
	for _, e := range upcoming {
		e.Status = models.PhaseUpcoming
	}

	return &models.CatalogFeed{
		Date:     today,
		Open:     open,
		Upcoming: upcoming,
		Closed:   append([]*models.CatalogEntry(nil), s.closed...),
	}
}

// listEntry performs the allotment/listing transition of an entry that closed yesterday.
func (s *RotationService) listEntry(e *models.CatalogEntry, today models.Date) {
	price := drawListingPrice(s.rng, e.IssuePrice, s.cfg.ListingMinFactor, s.cfg.ListingMaxFactor)
	gain := 0.0
	if e.IssuePrice > 0 {
		gain = math.Round((price-e.IssuePrice)/e.IssuePrice*100*100) / 100
	}

	e.Allotted = true
	e.Listed = true
	e.ActualListingPrice = &price
	e.ListingGain = &gain
	e.ListingDate = today
	e.Status = models.PhaseListed
	s.metrics.IncrementCounter("entries_listed")

	s.logger.WithFields(logrus.Fields{
		"symbol":        e.Symbol,
		"issue_price":   e.IssuePrice,
		"listing_price": price,
		"listing_gain":  gain,
	}).Info("Catalog entry listed")
}

// recycle moves an aged closed entry back into the upcoming pool under a new identity.
func (s *RotationService) recycle(e *models.CatalogEntry, today models.Date) {
	s.recycled++
	oldSymbol := e.Symbol

	base := e.Symbol
	if idx := strings.Index(base, "-R"); idx > 0 {
		base = base[:idx]
	}

	open := today.AddDays(intBetween(s.rng, 30, 45))
	e.ID = uuid.New()
	e.Symbol = fmt.Sprintf("%s-R%d", base, s.recycled)
	e.Name = strings.TrimSuffix(e.Name, relistedSuffix) + relistedSuffix
	e.OpenDate = open
	e.CloseDate = open.AddDays(3)
	e.ListingDate = e.CloseDate.AddDays(3)
	e.Allotted = false
	e.Listed = false
	e.ActualListingPrice = nil
	e.ListingGain = nil
	e.Status = models.PhaseUpcoming
	s.metrics.IncrementCounter("entries_recycled")

	s.logger.WithFields(logrus.Fields{
		"old_symbol": oldSymbol,
		"new_symbol": e.Symbol,
		"open_date":  e.OpenDate,
	}).Info("Closed catalog entry recycled")
}

type syntheticNoun struct {
	word   string
	sector string
}

var (
	syntheticAdjectives = []string{"Apex", "Bharat", "Crest", "Deccan", "Everest", "Ganga", "Horizon", "Indus", "Jyoti", "Kaveri", "Lotus", "Meru"}
	syntheticNouns      = []syntheticNoun{
		{"Infra Projects", "Infrastructure"},
		{"Pharma", "Healthcare"},
		{"Fintech", "Financial Services"},
		{"Motors", "Automobile"},
		{"Renewables", "Energy"},
		{"Foods", "FMCG"},
		{"Digital", "Technology"},
		{"Steel", "Metals"},
		{"Realty", "Real Estate"},
		{"Logistics", "Logistics"},
	}
	syntheticRisks = []models.RiskLevel{models.RiskLow, models.RiskMedium, models.RiskHigh}
)

// synthesize builds a fresh entry to keep the open or upcoming bucket at its minimum depth.
func (s *RotationService) synthesize(today models.Date, phase models.CatalogPhase, index int) *models.CatalogEntry {
	s.synthesized++

	adjective := syntheticAdjectives[s.rng.Intn(len(syntheticAdjectives))]
	noun := syntheticNouns[s.rng.Intn(len(syntheticNouns))]
	issuePrice := float64(intBetween(s.rng, 50, 950))
	lotSize := int(math.Max(1, math.Round(15000/issuePrice)))

	var open, close models.Date
	if phase == models.PhaseOpen {
		open = today
		close = today.AddDays(2 + index).NextBusinessDay()
	} else {
		base := today
		if wd := today.Weekday(); wd == time.Saturday || wd == time.Sunday {
			base = today.NextBusinessDay()
		}
		open = base.AddDays(3 + 2*index).NextBusinessDay()
		close = open.AddDays(3).NextBusinessDay()
	}

	symbol := strings.ToUpper(adjective[:min(4, len(adjective))] + strings.ReplaceAll(noun.word, " ", "")[:3])
	entry := &models.CatalogEntry{
		ID:            uuid.New(),
		Symbol:        fmt.Sprintf("%s%03d", symbol, s.synthesized),
		Name:          fmt.Sprintf("%s %s Ltd", adjective, noun.word),
		Sector:        noun.sector,
		IssuePrice:    issuePrice,
		LotSize:       lotSize,
		MinInvestment: issuePrice * float64(lotSize),
		PriceBandLow:  math.Round(issuePrice * 0.95),
		PriceBandHigh: issuePrice,
		RiskLevel:     syntheticRisks[s.rng.Intn(len(syntheticRisks))],
		Status:        phase,
		OpenDate:      open,
		CloseDate:     close,
		ListingDate:   close.AddDays(3).NextBusinessDay(),
	}
	s.metrics.IncrementCounter("entries_synthesized")

	s.logger.WithFields(logrus.Fields{
		"symbol":     entry.Symbol,
		"phase":      phase,
		"open_date":  entry.OpenDate,
		"close_date": entry.CloseDate,
	}).Debug("Synthesized catalog entry")

	return entry
}

func removeEntry(list []*models.CatalogEntry, id uuid.UUID) []*models.CatalogEntry {
	out := list[:0]
	for _, e := range list {
		if e.ID != id {
			out = append(out, e)
		}
	}
	return out
}
