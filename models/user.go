package models

import (
	"time"

	"github.com/google/uuid"
)

// User is an account in the cash ledger.
type User struct {
	ID        uuid.UUID `json:"id"`
	Name      string    `json:"name"`
	Balance   float64   `json:"balance"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
