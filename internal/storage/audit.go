package storage

import (
	"context"
	"database/sql"

	"expense-ledger/internal/models"
)

// InsertAuditEntry appends an audit row and returns its id.
func (q queries) InsertAuditEntry(ctx context.Context, entry *models.AuditLogEntry) (int64, error) {
	var expenseID sql.NullInt64
	if entry.ExpenseID != nil {
		expenseID = sql.NullInt64{Int64: *entry.ExpenseID, Valid: true}
	}
	result, err := q.q.ExecContext(ctx,
		"INSERT INTO audit_logs (user_id, action, expense_id, timestamp) VALUES (?, ?, ?, ?)",
		entry.UserID, string(entry.Action), expenseID, entry.Timestamp,
	)
	if err != nil {
		return 0, classify(err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return 0, classify(err)
	}
	entry.ID = id
	return id, nil
}

// ListAuditEntries returns a user's audit trail in the order it was written.
func (q queries) ListAuditEntries(ctx context.Context, userID int64) ([]models.AuditLogEntry, error) {
	rows, err := q.q.QueryContext(ctx,
		"SELECT id, user_id, action, expense_id, timestamp FROM audit_logs WHERE user_id = ? ORDER BY id",
		userID,
	)
	if err != nil {
		return nil, classify(err)
	}
	defer rows.Close()

	entries := []models.AuditLogEntry{}
	for rows.Next() {
		var (
			e         models.AuditLogEntry
			action    string
			expenseID sql.NullInt64
		)
		if err := rows.Scan(&e.ID, &e.UserID, &action, &expenseID, &e.Timestamp); err != nil {
			return nil, classify(err)
		}
		e.Action = models.AuditAction(action)
		if expenseID.Valid {
			id := expenseID.Int64
			e.ExpenseID = &id
		}
		entries = append(entries, e)
	}
	return entries, classify(rows.Err())
}
