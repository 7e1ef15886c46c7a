package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"expense-ledger/internal/auth/secret"
	"expense-ledger/internal/models"
	"expense-ledger/internal/storage"

	"go.uber.org/zap"
)

// SessionDuration is how long sessions last (30 days).
const SessionDuration = 30 * 24 * time.Hour

// Resolver maps session tokens to users.
type Resolver struct {
	db          *storage.DB
	credentials *Credentials
	logger      *zap.Logger
	now         func() time.Time
}

// NewResolver creates a resolver backed by db.
func NewResolver(db *storage.DB, credentials *Credentials, logger *zap.Logger) *Resolver {
	return &Resolver{db: db, credentials: credentials, logger: logger, now: time.Now}
}

// Login verifies the credentials and opens a session bound to the user.
// Unknown users and wrong passwords are indistinguishable to the caller.
func (r *Resolver) Login(ctx context.Context, username, password string) (*models.Session, error) {
	user, err := r.credentials.FindByUsername(ctx, username)
	if err != nil {
		return nil, fmt.Errorf("find user: %w", err)
	}
	if user == nil || !secret.CheckPassword(password, user.PasswordHash) {
		return nil, ErrInvalidCredentials
	}

	token, err := secret.NewSessionToken()
	if err != nil {
		return nil, fmt.Errorf("generate session token: %w", err)
	}

	now := r.now()
	session := &models.Session{
		Token:        token,
		UserID:       user.ID,
		ExpiresAt:    now.Add(SessionDuration),
		LastActivity: now,
	}
	err = r.db.WithTx(ctx, func(tx *storage.Tx) error {
		return tx.CreateSession(ctx, session.Token, session.UserID, session.ExpiresAt)
	})
	if err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}

	r.logger.Info("user logged in", zap.Int64("user_id", user.ID))
	return session, nil
}

// Resolve returns the user owning token. An empty, unknown or expired token,
// or one whose user no longer exists, yields a nil user and no error.
//
// Sessions in the second half of their lifetime are renewed; renewed
// reports whether that happened so the caller can refresh the cookie.
func (r *Resolver) Resolve(ctx context.Context, token string) (user *models.User, renewed bool, err error) {
	if token == "" {
		return nil, false, nil
	}

	info, err := r.db.ValidateSessionWithInfo(ctx, token)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("validate session: %w", err)
	}

	now := r.now()
	if info.ExpiresAt.Sub(now) < SessionDuration/2 {
		if err := r.db.RenewSession(ctx, token, now.Add(SessionDuration)); err != nil {
			r.logger.Warn("failed to renew session", zap.Int64("user_id", info.User.ID), zap.Error(err))
		} else {
			renewed = true
		}
	}
	return info.User, renewed, nil
}

// Logout invalidates the session behind token.
func (r *Resolver) Logout(ctx context.Context, token string) error {
	if token == "" {
		return nil
	}
	if err := r.db.DeleteSession(ctx, token); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}

// SweepExpired deletes expired sessions.
func (r *Resolver) SweepExpired(ctx context.Context) (int64, error) {
	return r.db.CleanExpiredSessions(ctx)
}
