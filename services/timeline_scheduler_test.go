package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/fenilmodi00/ipo-sim-backend/database"
	"github.com/fenilmodi00/ipo-sim-backend/models"
	"github.com/fenilmodi00/ipo-sim-backend/shared"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type schedulerFixture struct {
	scheduler *TimelineScheduler
	timers    *manualTimers
	store     *database.MemoryApplicationStore
	ledger    *database.MemoryLedger
	clock     *testClock
}

func newSchedulerFixture(t *testing.T, probability float64) *schedulerFixture {
	t.Helper()

	cfg := shared.TimelineConfig{
		Driver:               shared.DriverAccelerated,
		AllotmentDelay:       2 * time.Minute,
		ListingDelay:         3 * time.Minute,
		AutoCloseDelay:       5 * time.Minute,
		AllotmentProbability: probability,
	}
	f := &schedulerFixture{
		timers: &manualTimers{},
		store:  database.NewMemoryApplicationStore(),
		ledger: database.NewMemoryLedger(),
		clock:  newTestClock(time.Date(2024, 1, 8, 10, 0, 0, 0, time.UTC)),
	}
	rng := fixedRandom{f: 0.5000001}
	f.scheduler = NewTimelineScheduler(TimelineOptions{
		Config:     &cfg,
		Now:        f.clock.Now,
		Timer:      f.timers.After,
		Random:     rng,
		Settlement: NewSettlementService(rng),
		Store:      f.store,
		Ledger:     f.ledger,
	})
	return f
}

// seedApplication stores a pending application whose amount was already debited.
func (f *schedulerFixture) seedApplication(t *testing.T, symbol string, mode models.RefundMode) *models.Application {
	t.Helper()
	ctx := context.Background()

	app := &models.Application{
		ID:              uuid.New(),
		UserID:          uuid.New(),
		IPOSymbol:       symbol,
		IPOName:         symbol + " Ltd",
		IssuePrice:      10,
		RefundMode:      mode,
		AmountApplied:   10000,
		SharesApplied:   1000,
		Status:          models.StatusPending,
		Phase:           models.TimelineApplied,
		ApplicationDate: f.clock.Now(),
		CreatedAt:       f.clock.Now(),
		UpdatedAt:       f.clock.Now(),
	}
	_, err := f.ledger.EnsureUser(ctx, app.UserID, 100000)
	require.NoError(t, err)
	_, err = f.ledger.IncrementBalance(ctx, app.UserID, -app.AmountApplied)
	require.NoError(t, err)
	require.NoError(t, f.store.Create(ctx, app))
	return app
}

func (f *schedulerFixture) load(t *testing.T, id uuid.UUID) *models.Application {
	t.Helper()
	app, err := f.store.FindByID(context.Background(), id)
	require.NoError(t, err)
	return app
}

func TestScheduleArmsTransitionsInSequence(t *testing.T) {
	f := newSchedulerFixture(t, 1)
	app := f.seedApplication(t, "ALPHA", models.RefundFullBlock)

	tl := f.scheduler.Schedule(app)

	assert.Equal(t, models.TimelineApplied, tl.Phase)
	assert.Equal(t, app.ApplicationDate.Add(2*time.Minute), tl.AllotmentAt)
	assert.Equal(t, app.ApplicationDate.Add(5*time.Minute), tl.ListingAt)
	assert.Equal(t, app.ApplicationDate.Add(10*time.Minute), tl.AutoCloseAt)
	assert.Equal(t, []time.Duration{2 * time.Minute}, f.timers.Durations())
	assert.Len(t, f.scheduler.ActiveTimelines(), 1)

	f.clock.Advance(2 * time.Minute)
	require.True(t, f.timers.FireNext())
	assert.Equal(t, []time.Duration{3 * time.Minute}, f.timers.Durations(), "listing armed after allotment")

	f.clock.Advance(3 * time.Minute)
	require.True(t, f.timers.FireNext())
	assert.Equal(t, []time.Duration{5 * time.Minute}, f.timers.Durations(), "auto-close armed after listing")
}

func TestAllottedTimelineRunsToClose(t *testing.T) {
	f := newSchedulerFixture(t, 1)
	app := f.seedApplication(t, "ALPHA", models.RefundImmediate)
	f.scheduler.Schedule(app)

	require.True(t, f.timers.FireNext())
	tl, ok := f.scheduler.Timeline("ALPHA")
	require.True(t, ok)
	assert.Equal(t, models.TimelineAllotted, tl.Phase)
	assert.True(t, tl.Allotted)
	require.NotNil(t, tl.ListingPrice)
	require.NotNil(t, tl.Profit)

	stored := f.load(t, app.ID)
	assert.Equal(t, models.StatusAllotted, stored.Status)
	assert.Equal(t, 250, stored.SharesAllotted)
	assert.Equal(t, 2500.0, stored.AmountAllotted)
	assert.Equal(t, 7500.0, stored.RefundAmount)
	require.NotNil(t, stored.AllotmentDate)

	balance, err := f.ledger.GetBalance(context.Background(), app.UserID)
	require.NoError(t, err)
	assert.Equal(t, 97500.0, balance, "immediate refund credited at allotment")

	require.True(t, f.timers.FireNext())
	stored = f.load(t, app.ID)
	assert.Equal(t, models.StatusListed, stored.Status)
	assert.Equal(t, models.TimelineListed, stored.Phase)
	require.NotNil(t, stored.ListingPrice)
	assert.Equal(t, *tl.ListingPrice, *stored.ListingPrice)
	assert.Equal(t, *tl.Profit, *stored.ProfitLoss)

	require.True(t, f.timers.FireNext())
	_, ok = f.scheduler.Timeline("ALPHA")
	assert.False(t, ok)
	assert.Equal(t, models.TimelineClosed, f.load(t, app.ID).Phase)
	assert.Equal(t, models.StatusListed, f.load(t, app.ID).Status)

	m := f.scheduler.Metrics()
	assert.Equal(t, int64(1), m.Counter("allotments"))
	assert.Equal(t, int64(1), m.Counter("listings"))
	assert.Equal(t, int64(1), m.Counter("auto_closes"))
}

func TestNotAllottedTimelineSkipsListing(t *testing.T) {
	f := newSchedulerFixture(t, 0)
	app := f.seedApplication(t, "BETA", models.RefundFullBlock)
	f.scheduler.Schedule(app)

	f.timers.FireNext()
	tl, ok := f.scheduler.Timeline("BETA")
	require.True(t, ok)
	assert.Equal(t, models.TimelineNotAllotted, tl.Phase)

	stored := f.load(t, app.ID)
	assert.Equal(t, models.StatusNotAllotted, stored.Status)
	assert.Equal(t, 10000.0, stored.RefundAmount)

	// full block keeps the money until withdrawal
	balance, _ := f.ledger.GetBalance(context.Background(), app.UserID)
	assert.Equal(t, 90000.0, balance)

	assert.Equal(t, []time.Duration{10 * time.Minute}, f.timers.Durations(), "only auto-close remains")
	f.timers.FireAll()
	assert.Equal(t, int64(0), f.scheduler.Metrics().Counter("stale_callbacks"))
	_, ok = f.scheduler.Timeline("BETA")
	assert.False(t, ok)

	stored = f.load(t, app.ID)
	assert.Equal(t, models.StatusNotAllotted, stored.Status)
	assert.Equal(t, models.TimelineNotAllotted, stored.Phase)
}

func TestNotAllottedImmediateRefundIsCredited(t *testing.T) {
	f := newSchedulerFixture(t, 0)
	app := f.seedApplication(t, "GAMMA", models.RefundImmediate)
	f.scheduler.Schedule(app)

	f.timers.FireNext()

	balance, _ := f.ledger.GetBalance(context.Background(), app.UserID)
	assert.Equal(t, 100000.0, balance)
}

func TestReplacedTimelineCallbacksAreStale(t *testing.T) {
	f := newSchedulerFixture(t, 1)
	first := f.seedApplication(t, "ALPHA", models.RefundFullBlock)
	f.scheduler.Schedule(first)
	firstTimers := &manualTimers{pending: f.timers.pending}
	f.timers.pending = nil

	second := f.seedApplication(t, "ALPHA", models.RefundFullBlock)
	f.scheduler.Schedule(second)

	firstTimers.FireAll()
	assert.Equal(t, int64(1), f.scheduler.Metrics().Counter("stale_callbacks"))
	assert.Len(t, f.timers.Durations(), 1, "stale callbacks arm nothing")
	assert.Equal(t, models.StatusPending, f.load(t, first.ID).Status)

	tl, ok := f.scheduler.Timeline("ALPHA")
	require.True(t, ok)
	assert.Equal(t, second.ID, tl.ApplicationID)
	assert.Equal(t, models.TimelineApplied, tl.Phase)

	f.timers.FireNext()
	assert.Equal(t, models.StatusAllotted, f.load(t, second.ID).Status)
}

func TestWithdrawnApplicationIsNotWrittenBack(t *testing.T) {
	f := newSchedulerFixture(t, 1)
	app := f.seedApplication(t, "ALPHA", models.RefundFullBlock)
	f.scheduler.Schedule(app)

	withdrawn := f.load(t, app.ID)
	withdrawn.Withdrawn = true
	require.NoError(t, f.store.Update(context.Background(), withdrawn, models.StatusPending))

	f.timers.FireAll()

	stored := f.load(t, app.ID)
	assert.True(t, stored.Withdrawn)
	assert.Equal(t, models.StatusPending, stored.Status)
	assert.Nil(t, stored.ListingPrice)
}

func TestRecoverTimelines(t *testing.T) {
	f := newSchedulerFixture(t, 1)
	applied := f.clock.Now()

	allotted := f.seedApplication(t, "ALPHA", models.RefundFullBlock)
	allotted.Status = models.StatusAllotted
	allotted.Phase = models.TimelineAllotted
	allotted.SharesAllotted = 250
	allotted.AmountAllotted = 2500
	require.NoError(t, f.store.Update(context.Background(), allotted, models.StatusPending))

	expired := f.seedApplication(t, "OLD", models.RefundFullBlock)
	expired.ApplicationDate = applied.Add(-time.Hour)

	withdrawn := f.seedApplication(t, "GONE", models.RefundFullBlock)
	withdrawn.Withdrawn = true

	f.clock.Set(applied.Add(3 * time.Minute))
	accepted := f.scheduler.RecoverTimelines([]*models.Application{f.load(t, allotted.ID), expired, withdrawn, nil})
	f.scheduler.Wait()

	assert.Equal(t, 1, accepted)
	tl, ok := f.scheduler.Timeline("ALPHA")
	require.True(t, ok)
	assert.Equal(t, models.TimelineAllotted, tl.Phase)
	assert.True(t, tl.Allotted)
	require.NotNil(t, tl.ListingPrice, "a listing price is drawn for recovered allotted timelines")
	assert.Equal(t, []time.Duration{2 * time.Minute}, f.timers.Durations())

	_, ok = f.scheduler.Timeline("OLD")
	assert.False(t, ok)

	f.timers.FireNext()
	stored := f.load(t, allotted.ID)
	assert.Equal(t, models.StatusListed, stored.Status)
	assert.Equal(t, *tl.ListingPrice, *stored.ListingPrice)
	assert.Equal(t, []time.Duration{7 * time.Minute}, f.timers.Durations())
	assert.Equal(t, int64(1), f.scheduler.Metrics().Counter("timelines_recovered"))
	assert.Equal(t, int64(0), f.scheduler.Metrics().Counter("recoveries_behind_schedule"))
}

func TestRecoverSkipsTrackedSymbols(t *testing.T) {
	f := newSchedulerFixture(t, 1)
	app := f.seedApplication(t, "ALPHA", models.RefundFullBlock)
	f.scheduler.Schedule(app)

	assert.Equal(t, 1, f.scheduler.RecoverTimelines([]*models.Application{app}))
	f.scheduler.Wait()

	assert.Equal(t, int64(0), f.scheduler.Metrics().Counter("timelines_recovered"))
	assert.Len(t, f.timers.Durations(), 1)
}

func TestRecoverNothing(t *testing.T) {
	f := newSchedulerFixture(t, 1)
	assert.Equal(t, 0, f.scheduler.RecoverTimelines(nil))
	f.scheduler.Wait()
}

func TestRecoverOverduePendingRunsStagesInOrder(t *testing.T) {
	f := newSchedulerFixture(t, 1)
	app := f.seedApplication(t, "ALPHA", models.RefundFullBlock)

	f.clock.Advance(6 * time.Minute)
	require.Equal(t, 1, f.scheduler.RecoverTimelines([]*models.Application{app}))
	f.scheduler.Wait()

	assert.Equal(t, int64(1), f.scheduler.Metrics().Counter("recoveries_behind_schedule"))
	assert.Equal(t, []time.Duration{0}, f.timers.Durations(), "only the allotment is armed")

	require.True(t, f.timers.FireNext())
	assert.Equal(t, models.StatusAllotted, f.load(t, app.ID).Status)
	assert.Equal(t, []time.Duration{0}, f.timers.Durations(), "listing armed once allotment is stored")

	require.True(t, f.timers.FireNext())
	stored := f.load(t, app.ID)
	assert.Equal(t, models.StatusListed, stored.Status)
	require.NotNil(t, stored.ListingPrice)
	assert.Equal(t, 250, stored.SharesAllotted)
	assert.Equal(t, []time.Duration{4 * time.Minute}, f.timers.Durations())
}

func TestRecoverOverduePendingWithRealTimers(t *testing.T) {
	for i := 0; i < 50; i++ {
		f := newSchedulerFixture(t, 1)
		f.scheduler.after = AfterFunc
		app := f.seedApplication(t, "ALPHA", models.RefundFullBlock)

		f.clock.Advance(6 * time.Minute)
		require.Equal(t, 1, f.scheduler.RecoverTimelines([]*models.Application{app}))
		f.scheduler.Wait()

		require.Eventually(t, func() bool {
			stored, err := f.store.FindByID(context.Background(), app.ID)
			return err == nil && stored.Status == models.StatusListed
		}, 2*time.Second, 5*time.Millisecond, "run %d never listed", i)
	}
}

// interleavingStore runs hook once, right after the first FindActive.
type interleavingStore struct {
	*database.MemoryApplicationStore
	once sync.Once
	hook func()
}

func (s *interleavingStore) FindActive(ctx context.Context, symbol string, userID uuid.UUID) (*models.Application, error) {
	app, err := s.MemoryApplicationStore.FindActive(ctx, symbol, userID)
	s.once.Do(s.hook)
	return app, err
}

func TestAllotmentWriteBackLosesToWithdrawal(t *testing.T) {
	f := newSchedulerFixture(t, 0)
	app := f.seedApplication(t, "GAMMA", models.RefundImmediate)

	f.scheduler.store = &interleavingStore{
		MemoryApplicationStore: f.store,
		hook: func() {
			withdrawn := f.load(t, app.ID)
			withdrawn.Withdrawn = true
			require.NoError(t, f.store.Update(context.Background(), withdrawn, models.StatusPending))
		},
	}
	f.scheduler.Schedule(app)
	require.True(t, f.timers.FireNext())

	stored := f.load(t, app.ID)
	assert.True(t, stored.Withdrawn)
	assert.Equal(t, models.StatusPending, stored.Status)
	assert.Equal(t, int64(1), f.scheduler.Metrics().Counter("writebacks_skipped"))

	balance, err := f.ledger.GetBalance(context.Background(), app.UserID)
	require.NoError(t, err)
	assert.Equal(t, 90000.0, balance, "refund is not credited to a withdrawn application")
}
