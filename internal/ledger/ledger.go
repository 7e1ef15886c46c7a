// Package ledger owns the CRUD operations over a user's expenses.
//
// Every operation reads the acting user from the context and refuses to run
// without one. Mutations are followed (or, for delete, preceded) by an audit
// entry; a failed audit write is logged but never undoes a committed change.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"expense-ledger/internal/audit"
	"expense-ledger/internal/auth"
	"expense-ledger/internal/models"
	"expense-ledger/internal/storage"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

var (
	// ErrNotFoundOrForbidden is returned both when an expense does not exist
	// and when it belongs to someone else.
	ErrNotFoundOrForbidden = errors.New("not found")
	// ErrValidation is returned when a required field is missing or malformed.
	ErrValidation = errors.New("validation failed")
)

// Ledger implements list, add, edit and delete over expenses.
type Ledger struct {
	db       *storage.DB
	recorder *audit.Recorder
	logger   *zap.Logger
	now      func() time.Time
}

// New creates a ledger.
func New(db *storage.DB, recorder *audit.Recorder, logger *zap.Logger) *Ledger {
	return &Ledger{db: db, recorder: recorder, logger: logger, now: time.Now}
}

// AddInput carries the raw fields of a new expense.
type AddInput struct {
	Amount      string
	Category    string
	Description string
}

// ParseAmount accepts any decimal number, including negative ones.
func ParseAmount(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Decimal{}, fmt.Errorf("%w: amount is required", ErrValidation)
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("%w: amount %q is not a number", ErrValidation, s)
	}
	return d, nil
}

// List returns every expense owned by the current user in insertion order.
func (l *Ledger) List(ctx context.Context) ([]models.Expense, error) {
	user, err := auth.RequireAuthenticated(ctx)
	if err != nil {
		return nil, err
	}
	return l.db.ListExpensesByUser(ctx, user.ID)
}

// Add stores a new expense for the current user and returns its id.
func (l *Ledger) Add(ctx context.Context, in AddInput) (int64, error) {
	user, err := auth.RequireAuthenticated(ctx)
	if err != nil {
		return 0, err
	}

	amount, err := ParseAmount(in.Amount)
	if err != nil {
		return 0, err
	}
	category := strings.TrimSpace(in.Category)
	if category == "" {
		return 0, fmt.Errorf("%w: category is required", ErrValidation)
	}

	now := l.now().UTC()
	expense := &models.Expense{
		UserID:      user.ID,
		Amount:      amount,
		Category:    category,
		Description: in.Description,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	var id int64
	err = l.db.WithTx(ctx, func(tx *storage.Tx) error {
		var err error
		id, err = tx.InsertExpense(ctx, expense)
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("add expense: %w", err)
	}

	l.audit(ctx, user.ID, models.ActionAdd, id)
	return id, nil
}

// Edit changes the category of an expense owned by the current user.
func (l *Ledger) Edit(ctx context.Context, id int64, category string) error {
	user, err := auth.RequireAuthenticated(ctx)
	if err != nil {
		return err
	}
	category = strings.TrimSpace(category)
	if category == "" {
		return fmt.Errorf("%w: category is required", ErrValidation)
	}

	err = l.db.WithTx(ctx, func(tx *storage.Tx) error {
		if err := checkOwner(ctx, tx, id, user.ID); err != nil {
			return err
		}
		return tx.UpdateExpenseCategory(ctx, id, user.ID, category, l.now().UTC())
	})
	if errors.Is(err, storage.ErrNotFound) {
		return ErrNotFoundOrForbidden
	}
	if err != nil {
		return err
	}

	l.audit(ctx, user.ID, models.ActionEdit, id)
	return nil
}

// Delete removes an expense owned by the current user. The audit entry is
// written before the row is removed and stays even if the removal fails.
func (l *Ledger) Delete(ctx context.Context, id int64) error {
	user, err := auth.RequireAuthenticated(ctx)
	if err != nil {
		return err
	}

	err = l.db.WithTx(ctx, func(tx *storage.Tx) error {
		return checkOwner(ctx, tx, id, user.ID)
	})
	if err != nil {
		return err
	}

	l.audit(ctx, user.ID, models.ActionDelete, id)

	err = l.db.WithTx(ctx, func(tx *storage.Tx) error {
		return tx.DeleteExpense(ctx, id, user.ID)
	})
	if errors.Is(err, storage.ErrNotFound) {
		return ErrNotFoundOrForbidden
	}
	if err != nil {
		return fmt.Errorf("delete expense: %w", err)
	}
	return nil
}

// Statistics returns the current user's spending per category, largest
// first, together with the overall total.
func (l *Ledger) Statistics(ctx context.Context) ([]models.CategoryTotal, decimal.Decimal, error) {
	user, err := auth.RequireAuthenticated(ctx)
	if err != nil {
		return nil, decimal.Zero, err
	}
	totals, err := l.db.CategoryTotals(ctx, user.ID)
	if err != nil {
		return nil, decimal.Zero, err
	}
	sum := decimal.Zero
	for _, t := range totals {
		sum = sum.Add(t.Total)
	}
	return totals, sum, nil
}

// AuditTrail returns the current user's audit entries.
func (l *Ledger) AuditTrail(ctx context.Context) ([]models.AuditLogEntry, error) {
	user, err := auth.RequireAuthenticated(ctx)
	if err != nil {
		return nil, err
	}
	return l.recorder.List(ctx, user.ID)
}

// checkOwner maps both a missing row and a foreign owner to the same error.
func checkOwner(ctx context.Context, tx *storage.Tx, id, userID int64) error {
	expense, err := tx.GetExpense(ctx, id)
	if errors.Is(err, storage.ErrNotFound) {
		return ErrNotFoundOrForbidden
	}
	if err != nil {
		return err
	}
	if expense.UserID != userID {
		return ErrNotFoundOrForbidden
	}
	return nil
}

// audit records a mutation that has already been applied. The recorder logs
// its own failures, and the mutation stands either way.
func (l *Ledger) audit(ctx context.Context, userID int64, action models.AuditAction, expenseID int64) {
	if err := l.recorder.Record(ctx, userID, action, &expenseID); err != nil {
		return
	}
	l.logger.Debug("expense mutated",
		zap.Int64("user_id", userID),
		zap.String("action", string(action)),
		zap.Int64("expense_id", expenseID),
	)
}
