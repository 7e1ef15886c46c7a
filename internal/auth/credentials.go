// Package auth implements the credential store and the session based
// identity resolver that gates every expense operation.
package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"expense-ledger/internal/auth/secret"
	"expense-ledger/internal/models"
	"expense-ledger/internal/storage"
)

var (
	// ErrValidation is returned when a required field is missing.
	ErrValidation = errors.New("username and password required")
	// ErrUsernameTaken is returned when registering an existing username.
	ErrUsernameTaken = errors.New("username taken")
	// ErrInvalidCredentials covers both an unknown user and a wrong password.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrUnauthenticated is returned when no identity is attached to the request.
	ErrUnauthenticated = errors.New("unauthenticated")
)

// Credentials persists user identities and password hashes.
type Credentials struct {
	db *storage.DB
}

// NewCredentials creates a credential store backed by db.
func NewCredentials(db *storage.DB) *Credentials {
	return &Credentials{db: db}
}

// Register hashes password and creates a user. It returns the new user id.
func (c *Credentials) Register(ctx context.Context, username, password string) (int64, error) {
	username = strings.TrimSpace(username)
	if username == "" || password == "" {
		return 0, ErrValidation
	}

	hash, err := secret.HashPassword(password)
	if err != nil {
		return 0, fmt.Errorf("hash password: %w", err)
	}

	var id int64
	err = c.db.WithTx(ctx, func(tx *storage.Tx) error {
		user, err := tx.CreateUser(ctx, username, hash)
		if err != nil {
			return err
		}
		id = user.ID
		return nil
	})
	if errors.Is(err, storage.ErrDuplicate) {
		return 0, ErrUsernameTaken
	}
	if err != nil {
		return 0, fmt.Errorf("create user: %w", err)
	}
	return id, nil
}

// FindByUsername returns the user with the given name, or nil if none exists.
func (c *Credentials) FindByUsername(ctx context.Context, username string) (*models.User, error) {
	return optional(c.db.GetUserByUsername(ctx, username))
}

// FindByID returns the user with the given id, or nil if none exists.
func (c *Credentials) FindByID(ctx context.Context, id int64) (*models.User, error) {
	return optional(c.db.GetUserByID(ctx, id))
}

func optional(u *models.User, err error) (*models.User, error) {
	if errors.Is(err, storage.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return u, nil
}
