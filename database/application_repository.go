package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/fenilmodi00/ipo-sim-backend/models"
	"github.com/fenilmodi00/ipo-sim-backend/shared"
	"github.com/google/uuid"
)

const applicationColumns = `
	id, user_id, ipo_symbol, ipo_name, issue_price, refund_mode,
	amount_applied, shares_applied, shares_allotted, amount_allotted, refund_amount,
	status, timeline_phase, application_date, allotment_date, listing_date, withdrawal_date,
	listing_price, profit_loss, profit_loss_percentage, withdrawal_amount, withdrawn,
	created_at, updated_at`

// ApplicationRepository stores applications in the ipo_applications table.
type ApplicationRepository struct {
	db    *sql.DB
	retry RetryPolicy
}

func NewApplicationRepository(db *sql.DB) *ApplicationRepository {
	return &ApplicationRepository{db: db, retry: DefaultRetryPolicy()}
}

// queryOne loads a single application, retrying transient failures.
func (r *ApplicationRepository) queryOne(ctx context.Context, query string, args ...interface{}) (*models.Application, error) {
	var app *models.Application
	err := executeWithRetry(ctx, r.retry, func() error {
		var err error
		app, err = scanApplication(r.db.QueryRowContext(ctx, query, args...))
		return err
	})
	return app, err
}

func (r *ApplicationRepository) Create(ctx context.Context, app *models.Application) error {
	query := `
		INSERT INTO ipo_applications (` + applicationColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17,
		        $18, $19, $20, $21, $22, $23, $24)`

	_, err := r.db.ExecContext(ctx, query,
		app.ID, app.UserID, app.IPOSymbol, app.IPOName, app.IssuePrice, string(app.RefundMode),
		app.AmountApplied, app.SharesApplied, app.SharesAllotted, app.AmountAllotted, app.RefundAmount,
		string(app.Status), string(app.Phase), app.ApplicationDate,
		nullTime(app.AllotmentDate), nullTime(app.ListingDate), nullTime(app.WithdrawalDate),
		nullFloat(app.ListingPrice), nullFloat(app.ProfitLoss), nullFloat(app.ProfitLossPercentage),
		nullFloat(app.WithdrawalAmount), app.Withdrawn, app.CreatedAt, app.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return shared.NewStateConflictError("DUPLICATE_APPLICATION",
				fmt.Sprintf("user already holds an active application for %s", app.IPOSymbol),
				"ApplicationRepository", "Create")
		}
		return fmt.Errorf("failed to insert application: %w", err)
	}
	return nil
}

func (r *ApplicationRepository) FindByID(ctx context.Context, id uuid.UUID) (*models.Application, error) {
	query := `SELECT ` + applicationColumns + ` FROM ipo_applications WHERE id = $1`

	app, err := r.queryOne(ctx, query, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, shared.NewNotFoundError("APPLICATION_NOT_FOUND",
				fmt.Sprintf("application %s not found", id), "ApplicationRepository", "FindByID")
		}
		return nil, fmt.Errorf("failed to load application: %w", err)
	}
	return app, nil
}

func (r *ApplicationRepository) FindActive(ctx context.Context, symbol string, userID uuid.UUID) (*models.Application, error) {
	query := `SELECT ` + applicationColumns + `
		FROM ipo_applications
		WHERE ipo_symbol = $1 AND user_id = $2 AND withdrawn = FALSE
		ORDER BY application_date DESC
		LIMIT 1`

	app, err := r.queryOne(ctx, query, symbol, userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, shared.NewNotFoundError("APPLICATION_NOT_FOUND",
				fmt.Sprintf("no active application for %s", symbol), "ApplicationRepository", "FindActive")
		}
		return nil, fmt.Errorf("failed to load active application: %w", err)
	}
	return app, nil
}

func (r *ApplicationRepository) Update(ctx context.Context, app *models.Application, expected models.ApplicationStatus) error {
	return r.update(ctx, app, "Update", `AND withdrawn = FALSE AND status = $16`, string(expected))
}

func (r *ApplicationRepository) RestoreWithdrawal(ctx context.Context, app *models.Application) error {
	err := r.update(ctx, app, "RestoreWithdrawal", `AND withdrawn = TRUE`)
	if err != nil && isUniqueViolation(err) {
		return shared.NewStateConflictError("DUPLICATE_APPLICATION",
			fmt.Sprintf("user already holds an active application for %s", app.IPOSymbol),
			"ApplicationRepository", "RestoreWithdrawal")
	}
	return err
}

// update writes the mutable columns of app when the row also matches guard.
// Guard placeholders start at $16.
func (r *ApplicationRepository) update(ctx context.Context, app *models.Application, operation, guard string, guardArgs ...interface{}) error {
	query := `
		UPDATE ipo_applications SET
			shares_allotted = $2, amount_allotted = $3, refund_amount = $4,
			status = $5, timeline_phase = $6,
			allotment_date = $7, listing_date = $8, withdrawal_date = $9,
			listing_price = $10, profit_loss = $11, profit_loss_percentage = $12,
			withdrawal_amount = $13, withdrawn = $14, updated_at = $15
		WHERE id = $1 ` + guard

	args := []interface{}{
		app.ID, app.SharesAllotted, app.AmountAllotted, app.RefundAmount,
		string(app.Status), string(app.Phase),
		nullTime(app.AllotmentDate), nullTime(app.ListingDate), nullTime(app.WithdrawalDate),
		nullFloat(app.ListingPrice), nullFloat(app.ProfitLoss), nullFloat(app.ProfitLossPercentage),
		nullFloat(app.WithdrawalAmount), app.Withdrawn, app.UpdatedAt,
	}
	args = append(args, guardArgs...)

	var result sql.Result
	err := executeWithRetry(ctx, r.retry, func() error {
		var err error
		result, err = r.db.ExecContext(ctx, query, args...)
		return err
	})
	if err != nil {
		return fmt.Errorf("failed to update application: %w", err)
	}

	if rows, _ := result.RowsAffected(); rows > 0 {
		return nil
	}

	var exists bool
	if err := r.db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM ipo_applications WHERE id = $1)`, app.ID,
	).Scan(&exists); err != nil {
		return fmt.Errorf("failed to check application: %w", err)
	}
	if !exists {
		return shared.NewNotFoundError("APPLICATION_NOT_FOUND",
			fmt.Sprintf("application %s not found", app.ID), "ApplicationRepository", operation)
	}
	return applicationChanged(app.ID, "ApplicationRepository", operation)
}

// applicationChanged reports a conditional write that lost to a concurrent one.
func applicationChanged(id uuid.UUID, component, operation string) error {
	return shared.NewStateConflictError("APPLICATION_CHANGED",
		fmt.Sprintf("application %s was changed concurrently", id), component, operation)
}

func (r *ApplicationRepository) ListActive(ctx context.Context) ([]*models.Application, error) {
	query := `SELECT ` + applicationColumns + `
		FROM ipo_applications
		WHERE withdrawn = FALSE
		ORDER BY application_date ASC`
	return r.list(ctx, query)
}

func (r *ApplicationRepository) ListBySymbolAndStatus(ctx context.Context, symbol string, status models.ApplicationStatus) ([]*models.Application, error) {
	query := `SELECT ` + applicationColumns + `
		FROM ipo_applications
		WHERE ipo_symbol = $1 AND status = $2
		ORDER BY application_date ASC`
	return r.list(ctx, query, symbol, string(status))
}

func (r *ApplicationRepository) ListByUser(ctx context.Context, userID uuid.UUID) ([]*models.Application, error) {
	query := `SELECT ` + applicationColumns + `
		FROM ipo_applications
		WHERE user_id = $1
		ORDER BY application_date DESC`
	return r.list(ctx, query, userID)
}

func (r *ApplicationRepository) list(ctx context.Context, query string, args ...interface{}) ([]*models.Application, error) {
	var apps []*models.Application
	err := executeWithRetry(ctx, r.retry, func() error {
		var err error
		apps, err = r.queryList(ctx, query, args...)
		return err
	})
	return apps, err
}

func (r *ApplicationRepository) queryList(ctx context.Context, query string, args ...interface{}) ([]*models.Application, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query applications: %w", err)
	}
	defer rows.Close()

	apps := make([]*models.Application, 0)
	for rows.Next() {
		app, err := scanApplication(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan application: %w", err)
		}
		apps = append(apps, app)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate applications: %w", err)
	}
	return apps, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanApplication(row rowScanner) (*models.Application, error) {
	var (
		app                                      models.Application
		refundMode, status, phase                string
		allotmentDate, listingDate, withdrawDate sql.NullTime
		listingPrice, profitLoss, profitPct      sql.NullFloat64
		withdrawalAmount                         sql.NullFloat64
	)

	err := row.Scan(
		&app.ID, &app.UserID, &app.IPOSymbol, &app.IPOName, &app.IssuePrice, &refundMode,
		&app.AmountApplied, &app.SharesApplied, &app.SharesAllotted, &app.AmountAllotted, &app.RefundAmount,
		&status, &phase, &app.ApplicationDate, &allotmentDate, &listingDate, &withdrawDate,
		&listingPrice, &profitLoss, &profitPct, &withdrawalAmount, &app.Withdrawn,
		&app.CreatedAt, &app.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	app.RefundMode = models.RefundMode(refundMode)
	app.Status = models.ApplicationStatus(status)
	app.Phase = models.TimelinePhase(phase)
	app.AllotmentDate = timePtr(allotmentDate)
	app.ListingDate = timePtr(listingDate)
	app.WithdrawalDate = timePtr(withdrawDate)
	app.ListingPrice = floatPtr(listingPrice)
	app.ProfitLoss = floatPtr(profitLoss)
	app.ProfitLossPercentage = floatPtr(profitPct)
	app.WithdrawalAmount = floatPtr(withdrawalAmount)

	return &app, nil
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

func nullFloat(f *float64) sql.NullFloat64 {
	if f == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *f, Valid: true}
}

func timePtr(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time
	return &v
}

func floatPtr(f sql.NullFloat64) *float64 {
	if !f.Valid {
		return nil
	}
	v := f.Float64
	return &v
}
