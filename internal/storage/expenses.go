package storage

import (
	"context"
	"database/sql"
	"sort"
	"time"

	"expense-ledger/internal/models"

	"github.com/shopspring/decimal"
)

const expenseColumns = "id, user_id, amount, category, description, created_at, updated_at"

// InsertExpense stores a new expense owned by e.UserID and returns its id.
// Amounts are stored as decimal text so no precision is lost.
func (q queries) InsertExpense(ctx context.Context, e *models.Expense) (int64, error) {
	now := time.Now().UTC()
	if e.CreatedAt.IsZero() {
		e.CreatedAt = now
	}
	if e.UpdatedAt.IsZero() {
		e.UpdatedAt = e.CreatedAt
	}
	result, err := q.q.ExecContext(ctx,
		"INSERT INTO expenses (user_id, amount, category, description, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?)",
		e.UserID, e.Amount.String(), e.Category, e.Description, e.CreatedAt, e.UpdatedAt,
	)
	if err != nil {
		return 0, classify(err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return 0, classify(err)
	}
	e.ID = id
	return id, nil
}

// GetExpense retrieves a single expense by ID regardless of owner.
func (q queries) GetExpense(ctx context.Context, id int64) (*models.Expense, error) {
	row := q.q.QueryRowContext(ctx,
		"SELECT "+expenseColumns+" FROM expenses WHERE id = ?",
		id,
	)

	var e models.Expense
	if err := scanExpense(row, &e); err != nil {
		return nil, classify(err)
	}
	return &e, nil
}

// ListExpensesByUser returns every expense owned by userID in insertion order.
func (q queries) ListExpensesByUser(ctx context.Context, userID int64) ([]models.Expense, error) {
	rows, err := q.q.QueryContext(ctx,
		"SELECT "+expenseColumns+" FROM expenses WHERE user_id = ? ORDER BY id",
		userID,
	)
	if err != nil {
		return nil, classify(err)
	}
	defer rows.Close()

	expenses := []models.Expense{}
	for rows.Next() {
		var e models.Expense
		if err := scanExpense(rows, &e); err != nil {
			return nil, classify(err)
		}
		expenses = append(expenses, e)
	}
	return expenses, classify(rows.Err())
}

// UpdateExpenseCategory sets the category and update timestamp of an
// expense owned by userID. ErrNotFound is returned when no such row exists.
func (q queries) UpdateExpenseCategory(ctx context.Context, id, userID int64, category string, at time.Time) error {
	result, err := q.q.ExecContext(ctx,
		"UPDATE expenses SET category = ?, updated_at = ? WHERE id = ? AND user_id = ?",
		category, at, id, userID,
	)
	return affectedOne(result, err)
}

// DeleteExpense removes an expense owned by userID.
func (q queries) DeleteExpense(ctx context.Context, id, userID int64) error {
	result, err := q.q.ExecContext(ctx,
		"DELETE FROM expenses WHERE id = ? AND user_id = ?",
		id, userID,
	)
	return affectedOne(result, err)
}

// CategoryTotals sums a user's expenses per category, largest first.
// Totals are added up in Go to keep decimal precision.
func (q queries) CategoryTotals(ctx context.Context, userID int64) ([]models.CategoryTotal, error) {
	expenses, err := q.ListExpensesByUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	index := make(map[string]int)
	var totals []models.CategoryTotal
	for _, e := range expenses {
		i, ok := index[e.Category]
		if !ok {
			i = len(totals)
			index[e.Category] = i
			totals = append(totals, models.CategoryTotal{Category: e.Category, Total: decimal.Zero})
		}
		totals[i].Total = totals[i].Total.Add(e.Amount)
		totals[i].Count++
	}
	sortCategoryTotals(totals)
	return totals, nil
}

func sortCategoryTotals(totals []models.CategoryTotal) {
	sort.SliceStable(totals, func(i, j int) bool {
		return totals[i].Total.GreaterThan(totals[j].Total)
	})
}

type scanner interface {
	Scan(dest ...any) error
}

func scanExpense(s scanner, e *models.Expense) error {
	var amount string
	if err := s.Scan(&e.ID, &e.UserID, &amount, &e.Category, &e.Description, &e.CreatedAt, &e.UpdatedAt); err != nil {
		return err
	}
	d, err := decimal.NewFromString(amount)
	if err != nil {
		return err
	}
	e.Amount = d
	return nil
}

func affectedOne(result sql.Result, err error) error {
	if err != nil {
		return classify(err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return classify(err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
