package models

import "time"

// AuditAction is the kind of mutation an audit entry records.
type AuditAction string

const (
	ActionAdd    AuditAction = "add"
	ActionEdit   AuditAction = "edit"
	ActionDelete AuditAction = "delete"
)

// Valid reports whether a is one of the known actions.
func (a AuditAction) Valid() bool {
	switch a {
	case ActionAdd, ActionEdit, ActionDelete:
		return true
	}
	return false
}

// AuditLogEntry is a write-once record of a mutation. ExpenseID is a weak
// reference and may point at an expense that no longer exists.
type AuditLogEntry struct {
	ID        int64       `json:"id"`
	UserID    int64       `json:"user_id"`
	Action    AuditAction `json:"action"`
	ExpenseID *int64      `json:"expense_id"`
	Timestamp time.Time   `json:"timestamp"`
}
