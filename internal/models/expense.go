package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Expense represents a financial expense record owned by a single user.
type Expense struct {
	ID          int64           `json:"id"`
	UserID      int64           `json:"-"`
	Amount      decimal.Decimal `json:"amount"`
	Category    string          `json:"category"`
	Description string          `json:"description"`
	CreatedAt   time.Time       `json:"-"`
	UpdatedAt   time.Time       `json:"-"`
}

// CategoryTotal aggregates a user's spending in one category.
type CategoryTotal struct {
	Category string
	Total    decimal.Decimal
	Count    int
}

// User represents a user account.
type User struct {
	ID           int64     `json:"id"`
	Username     string    `json:"username"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
}

// Session represents a user session.
type Session struct {
	Token        string    `json:"token"`
	UserID       int64     `json:"user_id"`
	ExpiresAt    time.Time `json:"expires_at"`
	LastActivity time.Time `json:"last_activity"`
}
