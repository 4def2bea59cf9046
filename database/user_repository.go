package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/fenilmodi00/ipo-sim-backend/models"
	"github.com/fenilmodi00/ipo-sim-backend/shared"
	"github.com/google/uuid"
)

// UserRepository is the Postgres-backed balance ledger.
type UserRepository struct {
	db *sql.DB
}

func NewUserRepository(db *sql.DB) *UserRepository {
	return &UserRepository{db: db}
}

func (r *UserRepository) EnsureUser(ctx context.Context, userID uuid.UUID, startingBalance float64) (*models.User, error) {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO users (id, balance, created_at, updated_at)
		VALUES ($1, $2, NOW(), NOW())
		ON CONFLICT (id) DO NOTHING`, userID, startingBalance)
	if err != nil {
		return nil, fmt.Errorf("failed to ensure user: %w", err)
	}

	var user models.User
	err = r.db.QueryRowContext(ctx, `
		SELECT id, name, balance, created_at, updated_at FROM users WHERE id = $1`, userID,
	).Scan(&user.ID, &user.Name, &user.Balance, &user.CreatedAt, &user.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to load user: %w", err)
	}
	return &user, nil
}

func (r *UserRepository) GetBalance(ctx context.Context, userID uuid.UUID) (float64, error) {
	var balance float64
	err := r.db.QueryRowContext(ctx, `SELECT balance FROM users WHERE id = $1`, userID).Scan(&balance)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, userNotFound(userID, "GetBalance")
		}
		return 0, fmt.Errorf("failed to load balance: %w", err)
	}
	return balance, nil
}

// IncrementBalance applies delta in a single statement so concurrent debits
// cannot overdraw the account.
func (r *UserRepository) IncrementBalance(ctx context.Context, userID uuid.UUID, delta float64) (float64, error) {
	var balance float64
	err := r.db.QueryRowContext(ctx, `
		UPDATE users SET balance = balance + $2, updated_at = NOW()
		WHERE id = $1 AND balance + $2 >= 0
		RETURNING balance`, userID, delta,
	).Scan(&balance)
	if err == nil {
		return balance, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("failed to update balance: %w", err)
	}

	if _, err := r.GetBalance(ctx, userID); err != nil {
		return 0, err
	}
	return 0, shared.NewStateConflictError("INSUFFICIENT_BALANCE",
		fmt.Sprintf("balance cannot cover %.2f", -delta), "UserRepository", "IncrementBalance")
}

func userNotFound(userID uuid.UUID, operation string) error {
	return shared.NewNotFoundError("USER_NOT_FOUND", fmt.Sprintf("user %s not found", userID), "UserRepository", operation)
}
