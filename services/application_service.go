package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/fenilmodi00/ipo-sim-backend/models"
	"github.com/fenilmodi00/ipo-sim-backend/shared"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

// ApplicationStore persists applications. Lookups that find nothing return a
// shared not-found error.
type ApplicationStore interface {
	Create(ctx context.Context, app *models.Application) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.Application, error)
	// FindActive returns the non-withdrawn application of userID for symbol.
	FindActive(ctx context.Context, symbol string, userID uuid.UUID) (*models.Application, error)
	// Update writes app only while the stored row is not withdrawn and still
	// has status expected. A row that moved on fails with a state conflict.
	Update(ctx context.Context, app *models.Application, expected models.ApplicationStatus) error
	// RestoreWithdrawal writes app back over a withdrawn row whose payout failed.
	RestoreWithdrawal(ctx context.Context, app *models.Application) error
	ListActive(ctx context.Context) ([]*models.Application, error)
	ListBySymbolAndStatus(ctx context.Context, symbol string, status models.ApplicationStatus) ([]*models.Application, error)
	ListByUser(ctx context.Context, userID uuid.UUID) ([]*models.Application, error)
}

// UserLedger holds user cash balances.
type UserLedger interface {
	GetBalance(ctx context.Context, userID uuid.UUID) (float64, error)
	// IncrementBalance adds delta atomically and returns the new balance. A
	// delta that would take the balance below zero fails with a state conflict.
	IncrementBalance(ctx context.Context, userID uuid.UUID, delta float64) (float64, error)
	// EnsureUser creates the user with startingBalance unless it already exists.
	EnsureUser(ctx context.Context, userID uuid.UUID, startingBalance float64) (*models.User, error)
}

// ApplyRequest is a subscription request against an open catalog entry.
type ApplyRequest struct {
	UserID     uuid.UUID         `json:"user_id"`
	Symbol     string            `json:"symbol"`
	Shares     int               `json:"shares"`
	RefundMode models.RefundMode `json:"refund_mode"`
}

// ApplicationService coordinates applying, withdrawing and calendar settlement.
type ApplicationService struct {
	store      ApplicationStore
	ledger     UserLedger
	feed       *CatalogFeedService
	settlement *SettlementService
	scheduler  *TimelineScheduler
	oracle     *WithdrawalOracle
	cfg        *shared.UnifiedConfiguration
	now        func() time.Time
	audit      *ApplicationAuditLogger
	metrics    *shared.ServiceMetrics
	logger     *logrus.Entry
}

// ApplicationServiceOptions wires an ApplicationService. Scheduler may be nil
// when the calendar driver is in use.
type ApplicationServiceOptions struct {
	Store      ApplicationStore
	Ledger     UserLedger
	Feed       *CatalogFeedService
	Settlement *SettlementService
	Scheduler  *TimelineScheduler
	Oracle     *WithdrawalOracle
	Config     *shared.UnifiedConfiguration
	Now        func() time.Time
}

func NewApplicationService(opts ApplicationServiceOptions) *ApplicationService {
	cfg := opts.Config
	if cfg == nil {
		cfg = shared.NewDefaultUnifiedConfiguration()
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	settlement := opts.Settlement
	if settlement == nil {
		settlement = NewSettlementService(nil)
	}
	oracle := opts.Oracle
	if oracle == nil && opts.Scheduler != nil {
		oracle = NewWithdrawalOracle(opts.Scheduler)
	}
	if oracle == nil {
		oracle = NewWithdrawalOracle(nil)
	}

	return &ApplicationService{
		store:      opts.Store,
		ledger:     opts.Ledger,
		feed:       opts.Feed,
		settlement: settlement,
		scheduler:  opts.Scheduler,
		oracle:     oracle,
		cfg:        cfg,
		now:        now,
		audit:      NewApplicationAuditLogger(),
		metrics:    shared.NewServiceMetrics("Application_Service"),
		logger:     logrus.WithField("component", "ApplicationService"),
	}
}

// Metrics exposes the service's counters.
func (s *ApplicationService) Metrics() *shared.ServiceMetrics {
	return s.metrics
}

// Apply validates the request, debits the applied amount and records a
// pending application.
func (s *ApplicationService) Apply(ctx context.Context, req ApplyRequest) (*models.Application, error) {
	start := time.Now()
	app, err := s.apply(ctx, req)
	s.metrics.RecordRequest(err == nil, time.Since(start))
	if err != nil {
		s.audit.LogRejected("APPLY", req.Symbol, req.UserID.String(), err)
		return nil, err
	}
	s.audit.LogApplication(app)
	return app, nil
}

func (s *ApplicationService) apply(ctx context.Context, req ApplyRequest) (*models.Application, error) {
	const op = "Apply"

	mode := req.RefundMode
	if mode == "" {
		mode = models.RefundMode(s.cfg.Service.DefaultRefundMode)
	}
	if !mode.Valid() {
		return nil, shared.NewValidationError("INVALID_REFUND_MODE",
			fmt.Sprintf("refund mode must be %s or %s", models.RefundImmediate, models.RefundFullBlock),
			"ApplicationService", op)
	}
	if req.UserID == uuid.Nil {
		return nil, shared.NewValidationError("INVALID_USER", "user_id is required", "ApplicationService", op)
	}

	symbol := strings.ToUpper(strings.TrimSpace(req.Symbol))
	entry, err := s.feed.FindBySymbol(ctx, symbol)
	if err != nil {
		return nil, err
	}
	if entry.Status != models.PhaseOpen {
		return nil, shared.NewStateConflictError("IPO_NOT_OPEN",
			fmt.Sprintf("%s is %s, applications are only accepted while open", symbol, entry.Status),
			"ApplicationService", op)
	}
	if req.Shares <= 0 || entry.LotSize <= 0 || req.Shares%entry.LotSize != 0 {
		return nil, shared.NewValidationError("INVALID_SHARES",
			fmt.Sprintf("shares must be a positive multiple of the lot size %d", entry.LotSize),
			"ApplicationService", op)
	}

	if existing, err := s.store.FindActive(ctx, symbol, req.UserID); err == nil && existing != nil {
		return nil, shared.NewStateConflictError("DUPLICATE_APPLICATION",
			fmt.Sprintf("user already holds an active application for %s", symbol),
			"ApplicationService", op).WithDetails(map[string]interface{}{"application_id": existing.ID})
	} else if err != nil && !shared.IsNotFound(err) {
		return nil, shared.NewPersistenceError(err, "ApplicationService", op)
	}

	if _, err := s.ledger.EnsureUser(ctx, req.UserID, s.cfg.Service.StartingBalance); err != nil {
		return nil, shared.WrapError(err, shared.ErrorCategoryDatabase, "ENSURE_USER_FAILED", "ApplicationService", op, true)
	}

	amount := money(decimal.NewFromInt(int64(req.Shares)).Mul(decimal.NewFromFloat(entry.IssuePrice)))
	if _, err := s.ledger.IncrementBalance(ctx, req.UserID, -amount); err != nil {
		if shared.IsStateConflict(err) {
			return nil, shared.NewStateConflictError("INSUFFICIENT_BALANCE",
				fmt.Sprintf("balance does not cover the applied amount %.2f", amount),
				"ApplicationService", op)
		}
		return nil, shared.WrapError(err, shared.ErrorCategoryDatabase, "DEBIT_FAILED", "ApplicationService", op, true)
	}

	now := s.now()
	app := &models.Application{
		ID:              uuid.New(),
		UserID:          req.UserID,
		IPOSymbol:       entry.Symbol,
		IPOName:         entry.Name,
		IssuePrice:      entry.IssuePrice,
		RefundMode:      mode,
		AmountApplied:   amount,
		SharesApplied:   req.Shares,
		Status:          models.StatusPending,
		Phase:           models.TimelineApplied,
		ApplicationDate: now,
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	if err := s.store.Create(ctx, app); err != nil {
		if _, creditErr := s.ledger.IncrementBalance(ctx, req.UserID, amount); creditErr != nil {
			shared.NewPersistenceError(creditErr, "ApplicationService", "compensateDebit").LogError()
		}
		if shared.IsStateConflict(err) {
			return nil, err
		}
		return nil, shared.NewPersistenceError(err, "ApplicationService", op)
	}

	s.metrics.IncrementCounter("applications_created")
	s.logger.WithFields(logrus.Fields{
		"application_id": app.ID,
		"user_id":        app.UserID,
		"symbol":         app.IPOSymbol,
		"shares":         app.SharesApplied,
		"amount":         app.AmountApplied,
		"refund_mode":    app.RefundMode,
	}).Info("Application created")

	if s.scheduler != nil && s.cfg.Timeline.Driver == shared.DriverAccelerated {
		s.scheduler.Schedule(app)
	}

	return app, nil
}

// Withdraw pays out an application and marks it withdrawn.
func (s *ApplicationService) Withdraw(ctx context.Context, applicationID, userID uuid.UUID) (*models.Application, error) {
	start := time.Now()
	app, err := s.withdraw(ctx, applicationID, userID)
	s.metrics.RecordRequest(err == nil, time.Since(start))
	if err != nil {
		s.audit.LogRejected("WITHDRAW", applicationID.String(), userID.String(), err)
		return nil, err
	}
	s.audit.LogWithdrawal(app, *app.WithdrawalAmount)
	return app, nil
}

func (s *ApplicationService) withdraw(ctx context.Context, applicationID, userID uuid.UUID) (*models.Application, error) {
	const op = "Withdraw"

	app, err := s.store.FindByID(ctx, applicationID)
	if err != nil {
		if shared.IsNotFound(err) {
			return nil, err
		}
		return nil, shared.NewPersistenceError(err, "ApplicationService", op)
	}
	if app.UserID != userID {
		return nil, shared.NewAuthorizationError("UNAUTHORIZED",
			"application belongs to another user", "ApplicationService", op)
	}
	if app.Withdrawn {
		return nil, shared.NewStateConflictError("ALREADY_WITHDRAWN",
			"application has already been withdrawn", "ApplicationService", op)
	}

	eligibility := s.oracle.CanWithdraw(app.IPOSymbol, userID)
	if !eligibility.Eligible {
		return nil, shared.NewStateConflictError("WITHDRAWAL_NOT_ALLOWED", eligibility.Reason,
			"ApplicationService", op).WithDetails(eligibility)
	}

	amount := s.settlement.WithdrawalFor(app)
	now := s.now()
	previous := app.Clone()

	app.Withdrawn = true
	app.WithdrawalAmount = &amount
	app.WithdrawalDate = &now
	app.UpdatedAt = now
	if app.Status == models.StatusListed {
		app.Status = models.StatusRefunded
		app.Phase = models.TimelineClosed
	}

	// The conditional write claims the withdrawal; a concurrent withdrawal or
	// timeline write-back that got there first makes it fail.
	if err := s.store.Update(ctx, app, previous.Status); err != nil {
		if shared.IsStateConflict(err) {
			return nil, s.withdrawConflict(ctx, applicationID, err)
		}
		return nil, shared.NewPersistenceError(err, "ApplicationService", op)
	}

	if amount > 0 {
		if _, err := s.ledger.IncrementBalance(ctx, userID, amount); err != nil {
			if restoreErr := s.store.RestoreWithdrawal(ctx, previous); restoreErr != nil {
				s.metrics.IncrementCounter("persistence_failures")
				shared.NewPersistenceError(restoreErr, "ApplicationService", "restoreWithdrawal").
					WithDetails(map[string]interface{}{"application_id": app.ID, "amount": amount}).
					LogError()
			}
			return nil, shared.WrapError(err, shared.ErrorCategoryDatabase, "CREDIT_FAILED", "ApplicationService", op, true)
		}
	}

	s.metrics.IncrementCounter("withdrawals")
	s.logger.WithFields(logrus.Fields{
		"application_id": app.ID,
		"symbol":         app.IPOSymbol,
		"status":         app.Status,
		"amount":         amount,
	}).Info("Application withdrawn")

	return app, nil
}

// withdrawConflict explains a lost withdrawal claim.
func (s *ApplicationService) withdrawConflict(ctx context.Context, applicationID uuid.UUID, cause error) error {
	current, err := s.store.FindByID(ctx, applicationID)
	if err == nil && current.Withdrawn {
		return shared.NewStateConflictError("ALREADY_WITHDRAWN",
			"application has already been withdrawn", "ApplicationService", "Withdraw")
	}
	return cause
}

func (s *ApplicationService) Get(ctx context.Context, id uuid.UUID) (*models.Application, error) {
	return s.store.FindByID(ctx, id)
}

func (s *ApplicationService) ListByUser(ctx context.Context, userID uuid.UUID) ([]*models.Application, error) {
	return s.store.ListByUser(ctx, userID)
}

// Balance returns the user's cash balance.
func (s *ApplicationService) Balance(ctx context.Context, userID uuid.UUID) (float64, error) {
	return s.ledger.GetBalance(ctx, userID)
}

// Eligibility asks the withdrawal oracle about symbol for userID.
func (s *ApplicationService) Eligibility(symbol string, userID uuid.UUID) models.WithdrawalEligibility {
	return s.oracle.CanWithdraw(strings.ToUpper(strings.TrimSpace(symbol)), userID)
}

// SettleListedEntry allots and lists every pending application for an entry
// that listed on the calendar. It returns how many applications were settled.
func (s *ApplicationService) SettleListedEntry(ctx context.Context, entry *models.CatalogEntry) (int, error) {
	const op = "SettleListedEntry"

	if entry == nil || !entry.Listed || entry.ActualListingPrice == nil {
		return 0, shared.NewValidationError("ENTRY_NOT_LISTED", "entry has no listing price yet", "ApplicationService", op)
	}

	pending, err := s.store.ListBySymbolAndStatus(ctx, entry.Symbol, models.StatusPending)
	if err != nil {
		return 0, shared.NewPersistenceError(err, "ApplicationService", op)
	}

	price := *entry.ActualListingPrice
	settled := 0
	for _, app := range pending {
		if err := ctx.Err(); err != nil {
			return settled, err
		}
		if app.Withdrawn {
			continue
		}

		now := s.now()
		allotment := s.settlement.Allot(app, entry, app.RefundMode)
		app.SharesAllotted = allotment.SharesAllotted
		app.AmountAllotted = allotment.AmountAllotted
		app.RefundAmount = allotment.RefundAmount
		app.AllotmentDate = &now

		listing := s.settlement.List(app, price, app.RefundMode)
		app.ListingPrice = &listing.ListingPrice
		app.ProfitLoss = &listing.ProfitLoss
		app.ProfitLossPercentage = &listing.ProfitLossPercentage
		app.ListingDate = &now
		app.Status = models.StatusListed
		app.Phase = models.TimelineListed
		app.UpdatedAt = now

		if err := s.store.Update(ctx, app, models.StatusPending); err != nil {
			if shared.IsStateConflict(err) {
				s.metrics.IncrementCounter("settlements_skipped")
				continue
			}
			s.metrics.IncrementCounter("persistence_failures")
			shared.NewPersistenceError(err, "ApplicationService", op).
				WithDetails(map[string]interface{}{"application_id": app.ID, "symbol": entry.Symbol}).
				LogError()
			continue
		}

		if app.RefundMode == models.RefundImmediate && app.RefundAmount > 0 {
			if _, err := s.ledger.IncrementBalance(ctx, app.UserID, app.RefundAmount); err != nil {
				s.metrics.IncrementCounter("persistence_failures")
				shared.NewPersistenceError(err, "ApplicationService", "creditRefund").LogError()
			}
		}
		settled++
	}

	s.metrics.AddCounter("applications_settled", int64(settled))
	s.logger.WithFields(logrus.Fields{
		"symbol":        entry.Symbol,
		"listing_price": price,
		"pending":       len(pending),
		"settled":       settled,
	}).Info("Listed entry settled")

	return settled, nil
}
