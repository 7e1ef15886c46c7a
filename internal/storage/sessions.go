package storage

import (
	"context"
	"time"

	"expense-ledger/internal/models"
)

// SessionInfo holds session validation data.
type SessionInfo struct {
	User         *models.User
	LastActivity time.Time
	ExpiresAt    time.Time
}

// CreateSession creates a new session for a user.
func (q queries) CreateSession(ctx context.Context, token string, userID int64, expiresAt time.Time) error {
	now := time.Now().UTC()
	_, err := q.q.ExecContext(ctx,
		"INSERT INTO sessions (token, user_id, expires_at, last_activity) VALUES (?, ?, ?, ?)",
		token, userID, expiresAt.UTC(), now,
	)
	return classify(err)
}

// ValidateSession checks if a session token is valid and returns the associated user.
func (q queries) ValidateSession(ctx context.Context, token string) (*models.User, error) {
	info, err := q.ValidateSessionWithInfo(ctx, token)
	if err != nil {
		return nil, err
	}
	return info.User, nil
}

// ValidateSessionWithInfo checks if a session token is valid and returns
// session details. Expired sessions and sessions of deleted users are
// reported as ErrNotFound.
func (q queries) ValidateSessionWithInfo(ctx context.Context, token string) (*SessionInfo, error) {
	row := q.q.QueryRowContext(ctx, `
		SELECT u.id, u.username, u.password_hash, u.created_at, s.last_activity, s.expires_at
		FROM sessions s
		JOIN users u ON s.user_id = u.id
		WHERE s.token = ? AND s.expires_at > ?
	`, token, time.Now().UTC())

	var u models.User
	var lastActivity, expiresAt time.Time
	if err := row.Scan(&u.ID, &u.Username, &u.PasswordHash, &u.CreatedAt, &lastActivity, &expiresAt); err != nil {
		return nil, classify(err)
	}
	return &SessionInfo{
		User:         &u,
		LastActivity: lastActivity,
		ExpiresAt:    expiresAt,
	}, nil
}

// RenewSession updates the last_activity and expires_at for a session.
func (q queries) RenewSession(ctx context.Context, token string, newExpiresAt time.Time) error {
	now := time.Now().UTC()
	_, err := q.q.ExecContext(ctx,
		"UPDATE sessions SET last_activity = ?, expires_at = ? WHERE token = ?",
		now, newExpiresAt.UTC(), token,
	)
	return classify(err)
}

// DeleteSession removes a session by token.
func (q queries) DeleteSession(ctx context.Context, token string) error {
	_, err := q.q.ExecContext(ctx, "DELETE FROM sessions WHERE token = ?", token)
	return classify(err)
}

// CleanExpiredSessions removes all expired sessions and reports how many went.
func (q queries) CleanExpiredSessions(ctx context.Context) (int64, error) {
	result, err := q.q.ExecContext(ctx, "DELETE FROM sessions WHERE expires_at <= ?", time.Now().UTC())
	if err != nil {
		return 0, classify(err)
	}
	n, err := result.RowsAffected()
	return n, classify(err)
}
