package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

const userColumns = "id, username, full_name, email, hashed_password, disabled, created_at"

func scanUser(row interface{ Scan(...any) error }) (*User, error) {
	var user User
	var fullName sql.NullString
	if err := row.Scan(&user.ID, &user.Username, &fullName, &user.Email, &user.HashedPassword, &user.Disabled, &user.CreatedAt); err != nil {
		return nil, err
	}
	if fullName.Valid {
		user.FullName = &fullName.String
	}
	return &user, nil
}

func (s *SQLiteStore) CreateUser(ctx context.Context, username string, fullName *string, email, hashedPassword string) (*User, error) {
	res, err := s.db.ExecContext(ctx,
		"INSERT INTO users (username, full_name, email, hashed_password, created_at) VALUES (?, ?, ?, ?, ?)",
		username, fullName, email, hashedPassword, time.Now().UTC())
	if err != nil {
		if isUniqueViolation(err) {
			return nil, ErrUserExists
		}
		return nil, fmt.Errorf("failed to insert user: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("failed to read user id: %w", err)
	}
	return s.getUserByID(ctx, id)
}

// GetUserByUsername returns ErrNotFound when no such user exists.
func (s *SQLiteStore) GetUserByUsername(ctx context.Context, username string) (*User, error) {
	user, err := scanUser(s.db.QueryRowContext(ctx, "SELECT "+userColumns+" FROM users WHERE username = ?", username))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to query user: %w", err)
	}
	return user, nil
}

func (s *SQLiteStore) getUserByID(ctx context.Context, id int64) (*User, error) {
	user, err := scanUser(s.db.QueryRowContext(ctx, "SELECT "+userColumns+" FROM users WHERE id = ?", id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get user by id: %w", err)
	}
	return user, nil
}

// UpdateUserProfile rewrites the profile fields of user id. Renaming onto an
// existing username returns ErrUserExists.
func (s *SQLiteStore) UpdateUserProfile(ctx context.Context, id int64, username string, fullName *string, email string) (*User, error) {
	res, err := s.db.ExecContext(ctx,
		"UPDATE users SET username = ?, full_name = ?, email = ? WHERE id = ?",
		username, fullName, email, id)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, ErrUserExists
		}
		return nil, fmt.Errorf("failed to update user profile: %w", err)
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return nil, ErrNotFound
	}
	return s.getUserByID(ctx, id)
}

func (s *SQLiteStore) UpdateUserPassword(ctx context.Context, id int64, hashedPassword string) error {
	res, err := s.db.ExecContext(ctx, "UPDATE users SET hashed_password = ? WHERE id = ?", hashedPassword, id)
	if err != nil {
		return fmt.Errorf("failed to update password: %w", err)
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return ErrNotFound
	}
	return nil
}

// SetUserDisabled blocks or unblocks a user. Disabled users cannot authenticate.
func (s *SQLiteStore) SetUserDisabled(ctx context.Context, username string, disabled bool) error {
	res, err := s.db.ExecContext(ctx, "UPDATE users SET disabled = ? WHERE username = ?", disabled, username)
	if err != nil {
		return fmt.Errorf("failed to update user status: %w", err)
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return ErrNotFound
	}
	return nil
}
