// Package audit appends the immutable trail of expense mutations.
package audit

import (
	"context"
	"fmt"
	"time"

	"expense-ledger/internal/models"
	"expense-ledger/internal/storage"

	"go.uber.org/zap"
)

// Recorder writes audit entries. Entries are never updated or deleted.
type Recorder struct {
	db     *storage.DB
	logger *zap.Logger
	now    func() time.Time
}

// NewRecorder creates a recorder backed by db.
func NewRecorder(db *storage.DB, logger *zap.Logger) *Recorder {
	return &Recorder{db: db, logger: logger, now: time.Now}
}

// Record appends an entry for action by userID. expenseID may be nil.
// A failed write breaks traceability, so it is logged here as well as
// returned.
func (r *Recorder) Record(ctx context.Context, userID int64, action models.AuditAction, expenseID *int64) error {
	if !action.Valid() {
		return fmt.Errorf("audit: unknown action %q", action)
	}

	entry := &models.AuditLogEntry{
		UserID:    userID,
		Action:    action,
		ExpenseID: expenseID,
		Timestamp: r.now().UTC(),
	}
	err := r.db.WithTx(ctx, func(tx *storage.Tx) error {
		_, err := tx.InsertAuditEntry(ctx, entry)
		return err
	})
	if err != nil {
		fields := []zap.Field{
			zap.Int64("user_id", userID),
			zap.String("action", string(action)),
			zap.Error(err),
		}
		if expenseID != nil {
			fields = append(fields, zap.Int64("expense_id", *expenseID))
		}
		r.logger.Error("failed to write audit entry", fields...)
		return fmt.Errorf("audit: %w", err)
	}
	return nil
}

// List returns the audit trail of userID, oldest first.
func (r *Recorder) List(ctx context.Context, userID int64) ([]models.AuditLogEntry, error) {
	return r.db.ListAuditEntries(ctx, userID)
}
