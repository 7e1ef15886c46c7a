package auth

import (
	"context"

	"expense-ledger/internal/models"
)

type contextKey struct{}

// WithUser returns a copy of ctx carrying the authenticated user.
func WithUser(ctx context.Context, user *models.User) context.Context {
	return context.WithValue(ctx, contextKey{}, user)
}

// UserFromContext returns the authenticated user, or nil.
func UserFromContext(ctx context.Context) *models.User {
	if user, ok := ctx.Value(contextKey{}).(*models.User); ok {
		return user
	}
	return nil
}

// RequireAuthenticated guards protected operations.
func RequireAuthenticated(ctx context.Context) (*models.User, error) {
	user := UserFromContext(ctx)
	if user == nil {
		return nil, ErrUnauthenticated
	}
	return user, nil
}
