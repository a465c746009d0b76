package store

import (
	"database/sql"
	"log/slog"
	"time"

	"github.com/pavelanni/gradesheet/internal/model"
)

// CreateUser inserts a new user.
func (s *Store) CreateUser(u model.User) error {
	_, err := s.db.Exec(s.rebind(
		`INSERT INTO users (username, password_hash, role, active, created_at) VALUES (?, ?, ?, ?, ?)`),
		u.Username, u.PasswordHash, u.Role, u.Active, time.Now().UTC(),
	)
	if err != nil {
		slog.Error("failed to create user", "username", u.Username, "error", err)
		return err
	}
	slog.Info("created user", "username", u.Username, "role", u.Role)
	return nil
}

// GetUserByUsername returns a user by username.
func (s *Store) GetUserByUsername(username string) (*model.User, error) {
	var u model.User
	err := s.db.QueryRow(s.rebind(
		`SELECT username, password_hash, role, active, created_at FROM users WHERE username = ?`), username,
	).Scan(&u.Username, &u.PasswordHash, &u.Role, &u.Active, &u.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

// UserCount returns the total number of users.
func (s *Store) UserCount() (int, error) {
	var count int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM users`).Scan(&count)
	return count, err
}
