package storage

import (
	"context"

	"expense-ledger/internal/models"
)

// CreateUser creates a new user with the given username and password hash.
// A taken username yields ErrDuplicate.
func (q queries) CreateUser(ctx context.Context, username, passwordHash string) (*models.User, error) {
	result, err := q.q.ExecContext(ctx,
		"INSERT INTO users (username, password_hash) VALUES (?, ?)",
		username, passwordHash,
	)
	if err != nil {
		return nil, classify(err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, classify(err)
	}

	return q.GetUserByID(ctx, id)
}

// GetUserByID retrieves a user by ID.
func (q queries) GetUserByID(ctx context.Context, id int64) (*models.User, error) {
	row := q.q.QueryRowContext(ctx,
		"SELECT id, username, password_hash, created_at FROM users WHERE id = ?",
		id,
	)

	var u models.User
	if err := row.Scan(&u.ID, &u.Username, &u.PasswordHash, &u.CreatedAt); err != nil {
		return nil, classify(err)
	}
	return &u, nil
}

// GetUserByUsername retrieves a user by username.
func (q queries) GetUserByUsername(ctx context.Context, username string) (*models.User, error) {
	row := q.q.QueryRowContext(ctx,
		"SELECT id, username, password_hash, created_at FROM users WHERE username = ?",
		username,
	)

	var u models.User
	if err := row.Scan(&u.ID, &u.Username, &u.PasswordHash, &u.CreatedAt); err != nil {
		return nil, classify(err)
	}
	return &u, nil
}

// UserCount returns the number of users in the database.
func (q queries) UserCount(ctx context.Context) (int, error) {
	var count int
	if err := q.q.QueryRowContext(ctx, "SELECT COUNT(*) FROM users").Scan(&count); err != nil {
		return 0, classify(err)
	}
	return count, nil
}
