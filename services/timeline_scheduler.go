package services

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/fenilmodi00/ipo-sim-backend/models"
	"github.com/fenilmodi00/ipo-sim-backend/shared"
	"github.com/sirupsen/logrus"
)

const persistTimeout = 10 * time.Second

// TimerFunc runs f once after d has elapsed.
type TimerFunc func(d time.Duration, f func())

// AfterFunc is the production TimerFunc.
func AfterFunc(d time.Duration, f func()) {
	time.AfterFunc(d, f)
}

// trackedTimeline pairs a timeline with the application snapshot it was armed for.
// Callbacks hold the pointer and compare it against the map entry before acting.
type trackedTimeline struct {
	tl  models.AcceleratedTimeline
	app *models.Application
}

// TimelineScheduler drives accelerated allotment, listing and auto-close
// transitions with timers. The in-memory timelines are a cache rebuilt from
// the store by RecoverTimelines.
type TimelineScheduler struct {
	mu        sync.Mutex
	timelines map[string]*trackedTimeline

	cfg        shared.TimelineConfig
	now        func() time.Time
	after      TimerFunc
	rng        RandomSource
	settlement *SettlementService
	store      ApplicationStore
	ledger     UserLedger
	metrics    *shared.ServiceMetrics
	logger     *logrus.Entry

	recoveries sync.WaitGroup
}

// TimelineOptions configures a TimelineScheduler. Nil fields fall back to defaults.
type TimelineOptions struct {
	Config     *shared.TimelineConfig
	Now        func() time.Time
	Timer      TimerFunc
	Random     RandomSource
	Settlement *SettlementService
	Store      ApplicationStore
	Ledger     UserLedger
}

// NewTimelineScheduler creates a scheduler writing back through store and ledger.
func NewTimelineScheduler(opts TimelineOptions) *TimelineScheduler {
	cfg := shared.NewDefaultUnifiedConfiguration().Timeline
	if opts.Config != nil {
		cfg = *opts.Config
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	after := opts.Timer
	if after == nil {
		after = AfterFunc
	}
	rng := opts.Random
	if rng == nil {
		rng = NewDefaultRandomSource()
	}
	settlement := opts.Settlement
	if settlement == nil {
		settlement = NewSettlementService(rng)
	}

	return &TimelineScheduler{
		timelines:  make(map[string]*trackedTimeline),
		cfg:        cfg,
		now:        now,
		after:      after,
		rng:        rng,
		settlement: settlement,
		store:      opts.Store,
		ledger:     opts.Ledger,
		metrics:    shared.NewServiceMetrics("Timeline_Scheduler"),
		logger:     logrus.WithField("component", "TimelineScheduler"),
	}
}

// Metrics exposes transition and persistence counters.
func (s *TimelineScheduler) Metrics() *shared.ServiceMetrics {
	return s.metrics
}

func (s *TimelineScheduler) newTimeline(app *models.Application) *trackedTimeline {
	allotmentAt := app.ApplicationDate.Add(s.cfg.AllotmentDelay)
	listingAt := allotmentAt.Add(s.cfg.ListingDelay)

	return &trackedTimeline{
		tl: models.AcceleratedTimeline{
			Symbol:        app.IPOSymbol,
			ApplicationID: app.ID,
			UserID:        app.UserID,
			AppliedAt:     app.ApplicationDate,
			AllotmentAt:   allotmentAt,
			ListingAt:     listingAt,
			AutoCloseAt:   listingAt.Add(s.cfg.AutoCloseDelay),
			Phase:         models.TimelineApplied,
			AppliedAmount: app.AmountApplied,
		},
		app: app.Clone(),
	}
}

// Schedule starts the accelerated lifecycle for a freshly created application,
// replacing any timeline already tracked for the symbol.
func (s *TimelineScheduler) Schedule(app *models.Application) *models.AcceleratedTimeline {
	tr := s.newTimeline(app)

	s.mu.Lock()
	if prev, ok := s.timelines[tr.tl.Symbol]; ok {
		s.logger.WithFields(logrus.Fields{
			"symbol":                  tr.tl.Symbol,
			"replaced_application_id": prev.tl.ApplicationID,
		}).Warn("Replacing tracked timeline")
	}
	s.timelines[tr.tl.Symbol] = tr
	snapshot := tr.tl.Clone()
	s.setActiveGaugeLocked()
	s.mu.Unlock()

	s.arm(tr, models.TimelineApplied)
	s.metrics.IncrementCounter("timelines_scheduled")

	s.logger.WithFields(logrus.Fields{
		"symbol":         tr.tl.Symbol,
		"application_id": tr.tl.ApplicationID,
		"allotment_at":   tr.tl.AllotmentAt,
		"listing_at":     tr.tl.ListingAt,
		"auto_close_at":  tr.tl.AutoCloseAt,
	}).Info("Timeline scheduled")

	return snapshot
}

// arm registers the callback for the stage that follows phase. Each callback
// arms its successor only after its own write-back, so stages that are
// already overdue still run one at a time and in order.
func (s *TimelineScheduler) arm(tr *trackedTimeline, phase models.TimelinePhase) {
	remaining := func(at time.Time) time.Duration {
		if d := at.Sub(s.now()); d > 0 {
			return d
		}
		return 0
	}

	switch phase {
	case models.TimelineApplied:
		s.after(remaining(tr.tl.AllotmentAt), func() { s.allot(tr) })
	case models.TimelineAllotted:
		s.after(remaining(tr.tl.ListingAt), func() { s.list(tr) })
	default:
		s.after(remaining(tr.tl.AutoCloseAt), func() { s.autoClose(tr) })
	}
}

// currentLocked reports whether tr is still the tracked timeline for its symbol.
func (s *TimelineScheduler) currentLocked(tr *trackedTimeline) bool {
	cur, ok := s.timelines[tr.tl.Symbol]
	return ok && cur == tr
}

func (s *TimelineScheduler) allot(tr *trackedTimeline) {
	s.mu.Lock()
	if !s.currentLocked(tr) || tr.tl.Phase != models.TimelineApplied {
		s.mu.Unlock()
		s.metrics.IncrementCounter("stale_callbacks")
		return
	}

	var result models.AllotmentResult
	if s.rng.Float64() < s.cfg.AllotmentProbability {
		entry := &models.CatalogEntry{Symbol: tr.app.IPOSymbol, IssuePrice: tr.app.IssuePrice}
		result = s.settlement.Allot(tr.app, entry, tr.app.RefundMode)

		allotted := tr.app.Clone()
		allotted.SharesAllotted = result.SharesAllotted
		allotted.AmountAllotted = result.AmountAllotted
		allotted.RefundAmount = result.RefundAmount

		price := s.settlement.DrawListingPrice(tr.app.IssuePrice)
		listing := s.settlement.List(allotted, price, tr.app.RefundMode)

		tr.tl.Phase = models.TimelineAllotted
		tr.tl.Allotted = true
		tr.tl.ListingPrice = &price
		tr.tl.Profit = &listing.ProfitLoss
		s.metrics.IncrementCounter("allotments")
	} else {
		result = s.settlement.NotAllotted(tr.app)
		tr.tl.Phase = models.TimelineNotAllotted
		s.metrics.IncrementCounter("non_allotments")
	}
	at := tr.tl.AllotmentAt
	next := tr.tl.Phase
	s.mu.Unlock()

	s.logger.WithFields(logrus.Fields{
		"symbol":          tr.tl.Symbol,
		"application_id":  tr.tl.ApplicationID,
		"allotted":        result.Allotted,
		"shares_allotted": result.SharesAllotted,
		"refund_amount":   result.RefundAmount,
	}).Info("Allotment decided")

	s.persistAllotment(tr, result, at)
	s.arm(tr, next)
}

func (s *TimelineScheduler) persistAllotment(tr *trackedTimeline, result models.AllotmentResult, at time.Time) {
	ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()

	target := models.StatusNotAllotted
	if result.Allotted {
		target = models.StatusAllotted
	}

	app, ok := s.loadForTransition(ctx, tr, target, "persistAllotment")
	if !ok {
		return
	}

	expected := app.Status
	app.SharesAllotted = result.SharesAllotted
	app.AmountAllotted = result.AmountAllotted
	app.RefundAmount = result.RefundAmount
	app.Status = target
	app.Phase = models.PhaseForStatus(target)
	app.AllotmentDate = &at
	app.UpdatedAt = s.now()

	if err := s.store.Update(ctx, app, expected); err != nil {
		s.writeBackFailed(err, "persistAllotment", tr)
		return
	}

	if app.RefundMode == models.RefundImmediate && app.RefundAmount > 0 && s.ledger != nil {
		if _, err := s.ledger.IncrementBalance(ctx, app.UserID, app.RefundAmount); err != nil {
			s.persistenceFailed(err, "creditRefund", tr)
		}
	}
}

func (s *TimelineScheduler) list(tr *trackedTimeline) {
	s.mu.Lock()
	if !s.currentLocked(tr) || tr.tl.Phase != models.TimelineAllotted {
		s.mu.Unlock()
		s.metrics.IncrementCounter("stale_callbacks")
		return
	}
	tr.tl.Phase = models.TimelineListed
	var price float64
	if tr.tl.ListingPrice != nil {
		price = *tr.tl.ListingPrice
	} else {
		price = s.settlement.DrawListingPrice(tr.app.IssuePrice)
		tr.tl.ListingPrice = &price
	}
	at := tr.tl.ListingAt
	s.mu.Unlock()

	s.metrics.IncrementCounter("listings")
	s.logger.WithFields(logrus.Fields{
		"symbol":        tr.tl.Symbol,
		"listing_price": price,
	}).Info("Timeline listed")

	s.persistListing(tr, price, at)
	s.arm(tr, models.TimelineListed)
}

func (s *TimelineScheduler) persistListing(tr *trackedTimeline, price float64, at time.Time) {
	ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()

	app, ok := s.loadForTransition(ctx, tr, models.StatusListed, "persistListing")
	if !ok {
		return
	}

	expected := app.Status
	listing := s.settlement.List(app, price, app.RefundMode)
	app.ListingPrice = &listing.ListingPrice
	app.ProfitLoss = &listing.ProfitLoss
	app.ProfitLossPercentage = &listing.ProfitLossPercentage
	app.ListingDate = &at
	app.Status = models.StatusListed
	app.Phase = models.TimelineListed
	app.UpdatedAt = s.now()

	if err := s.store.Update(ctx, app, expected); err != nil {
		s.writeBackFailed(err, "persistListing", tr)
	}
}

func (s *TimelineScheduler) autoClose(tr *trackedTimeline) {
	s.mu.Lock()
	if !s.currentLocked(tr) {
		s.mu.Unlock()
		s.metrics.IncrementCounter("stale_callbacks")
		return
	}
	delete(s.timelines, tr.tl.Symbol)
	s.setActiveGaugeLocked()

	previous := tr.tl.Phase
	if previous != models.TimelineNotAllotted {
		tr.tl.Phase = models.TimelineClosed
	}
	s.mu.Unlock()

	s.metrics.IncrementCounter("auto_closes")
	s.logger.WithFields(logrus.Fields{
		"symbol": tr.tl.Symbol,
		"phase":  previous,
	}).Info("Timeline auto-closed")

	if previous == models.TimelineNotAllotted || previous == models.TimelineClosed {
		return
	}
	s.persistClosed(tr)
}

func (s *TimelineScheduler) persistClosed(tr *trackedTimeline) {
	if s.store == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()

	app, err := s.store.FindActive(ctx, tr.tl.Symbol, tr.tl.UserID)
	if err != nil {
		if !shared.IsNotFound(err) {
			s.persistenceFailed(err, "persistClosed", tr)
		}
		return
	}
	if app.Phase == models.TimelineClosed {
		return
	}

	expected := app.Status
	app.Phase = models.TimelineClosed
	app.UpdatedAt = s.now()
	if err := s.store.Update(ctx, app, expected); err != nil {
		s.writeBackFailed(err, "persistClosed", tr)
	}
}

// loadForTransition fetches the live application for tr and checks that it may
// move to target. Withdrawn or already-advanced applications are skipped.
func (s *TimelineScheduler) loadForTransition(ctx context.Context, tr *trackedTimeline, target models.ApplicationStatus, operation string) (*models.Application, bool) {
	if s.store == nil {
		return nil, false
	}

	app, err := s.store.FindActive(ctx, tr.tl.Symbol, tr.tl.UserID)
	if err != nil {
		if shared.IsNotFound(err) {
			s.logger.WithFields(logrus.Fields{
				"symbol":    tr.tl.Symbol,
				"operation": operation,
			}).Debug("No active application, skipping write-back")
			return nil, false
		}
		s.persistenceFailed(err, operation, tr)
		return nil, false
	}

	if app.Withdrawn || !app.Status.CanAdvanceTo(target) {
		s.metrics.IncrementCounter("writebacks_skipped")
		s.logger.WithFields(logrus.Fields{
			"symbol":         tr.tl.Symbol,
			"application_id": app.ID,
			"status":         app.Status,
			"target":         target,
		}).Debug("Application not eligible for transition, skipping write-back")
		return nil, false
	}

	return app, true
}

// writeBackFailed treats a lost conditional write as a skipped write-back.
func (s *TimelineScheduler) writeBackFailed(err error, operation string, tr *trackedTimeline) {
	if shared.IsStateConflict(err) {
		s.metrics.IncrementCounter("writebacks_skipped")
		s.logger.WithFields(logrus.Fields{
			"symbol":         tr.tl.Symbol,
			"application_id": tr.tl.ApplicationID,
			"operation":      operation,
		}).Debug("Application changed before write-back, skipping")
		return
	}
	s.persistenceFailed(err, operation, tr)
}

func (s *TimelineScheduler) persistenceFailed(err error, operation string, tr *trackedTimeline) {
	s.metrics.IncrementCounter("persistence_failures")
	shared.NewPersistenceError(err, "TimelineScheduler", operation).
		WithDetails(map[string]interface{}{
			"symbol":         tr.tl.Symbol,
			"application_id": tr.tl.ApplicationID,
		}).LogError()
}

// RecoverTimelines rebuilds timelines for persisted applications after a
// restart. It returns how many applications were accepted; the rebuild itself
// runs in the background, see Wait.
func (s *TimelineScheduler) RecoverTimelines(apps []*models.Application) int {
	now := s.now()
	total := s.cfg.AllotmentDelay + s.cfg.ListingDelay + s.cfg.AutoCloseDelay

	accepted := make([]*models.Application, 0, len(apps))
	for _, app := range apps {
		if app == nil || app.Withdrawn {
			continue
		}
		if !now.Before(app.ApplicationDate.Add(total)) {
			continue
		}
		accepted = append(accepted, app.Clone())
	}

	if len(accepted) == 0 {
		return 0
	}

	s.recoveries.Add(1)
	go func() {
		defer s.recoveries.Done()
		for _, app := range accepted {
			s.recover(app, now)
		}
		s.logger.WithField("count", len(accepted)).Info("Timeline recovery finished")
	}()

	return len(accepted)
}

// inferPhase derives the phase from elapsed time alone.
func (s *TimelineScheduler) inferPhase(appliedAt, now time.Time) models.TimelinePhase {
	elapsed := now.Sub(appliedAt)
	switch {
	case elapsed < s.cfg.AllotmentDelay:
		return models.TimelineApplied
	case elapsed < s.cfg.AllotmentDelay+s.cfg.ListingDelay:
		return models.TimelineAllotted
	default:
		return models.TimelineListed
	}
}

// behindSchedule reports whether elapsed time has passed stages the stored
// phase has not reached yet.
func behindSchedule(stored, elapsed models.TimelinePhase) bool {
	switch stored {
	case models.TimelineApplied:
		return elapsed != models.TimelineApplied
	case models.TimelineAllotted:
		return elapsed == models.TimelineListed
	}
	return false
}

func (s *TimelineScheduler) recover(app *models.Application, now time.Time) {
	tr := s.newTimeline(app)

	phase := models.PhaseForStatus(app.Status)
	if app.Phase == models.TimelineClosed {
		phase = models.TimelineClosed
	}
	elapsed := s.inferPhase(app.ApplicationDate, now)
	if behindSchedule(phase, elapsed) {
		s.metrics.IncrementCounter("recoveries_behind_schedule")
		s.logger.WithFields(logrus.Fields{
			"symbol":         app.IPOSymbol,
			"application_id": app.ID,
			"stored_phase":   phase,
			"elapsed_phase":  elapsed,
		}).Info("Recovered timeline is behind schedule, catching up")
	}

	tr.tl.Phase = phase
	switch app.Status {
	case models.StatusAllotted, models.StatusListed, models.StatusRefunded:
		tr.tl.Allotted = true
	}
	if app.ListingPrice != nil {
		price := *app.ListingPrice
		tr.tl.ListingPrice = &price
	} else if phase == models.TimelineAllotted {
		price := s.settlement.DrawListingPrice(app.IssuePrice)
		tr.tl.ListingPrice = &price
	}
	if app.ProfitLoss != nil {
		profit := *app.ProfitLoss
		tr.tl.Profit = &profit
	}

	s.mu.Lock()
	if _, exists := s.timelines[tr.tl.Symbol]; exists {
		s.mu.Unlock()
		return
	}
	s.timelines[tr.tl.Symbol] = tr
	s.setActiveGaugeLocked()
	s.mu.Unlock()

	s.arm(tr, phase)
	s.metrics.IncrementCounter("timelines_recovered")

	s.logger.WithFields(logrus.Fields{
		"symbol":         tr.tl.Symbol,
		"application_id": tr.tl.ApplicationID,
		"phase":          phase,
	}).Info("Timeline recovered")
}

// Wait blocks until every background recovery has finished.
func (s *TimelineScheduler) Wait() {
	s.recoveries.Wait()
}

// Timeline returns a copy of the timeline tracked for symbol.
func (s *TimelineScheduler) Timeline(symbol string) (*models.AcceleratedTimeline, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tr, ok := s.timelines[symbol]
	if !ok {
		return nil, false
	}
	return tr.tl.Clone(), true
}

// ActiveTimelines lists copies of every tracked timeline ordered by symbol.
func (s *TimelineScheduler) ActiveTimelines() []*models.AcceleratedTimeline {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]*models.AcceleratedTimeline, 0, len(s.timelines))
	for _, tr := range s.timelines {
		out = append(out, tr.tl.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Symbol < out[j].Symbol })
	return out
}

func (s *TimelineScheduler) setActiveGaugeLocked() {
	s.metrics.SetGauge("active_timelines", float64(len(s.timelines)))
}
