package store

import (
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/pigeonchat/pigeon/internal/model"
)

// CreateUser registers a user with a fresh ID and bearer token.
func (db *DB) CreateUser(username, displayName string) (*model.User, string, error) {
	u := &model.User{
		ID:          uuid.New().String(),
		Username:    username,
		DisplayName: displayName,
	}
	token := uuid.New().String()
	_, err := db.Exec(`
		INSERT INTO users (id, username, display_name, token, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		u.ID, u.Username, u.DisplayName, token, time.Now().UnixMilli())
	if err != nil {
		return nil, "", err
	}
	return u, token, nil
}

// UserByToken resolves a bearer token to a user, or nil if unknown.
func (db *DB) UserByToken(token string) (*model.User, error) {
	var u model.User
	err := db.QueryRow(`
		SELECT id, username, display_name FROM users WHERE token = ?`, token).
		Scan(&u.ID, &u.Username, &u.DisplayName)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

// ListUsers returns all users except excludeID, ordered by username.
func (db *DB) ListUsers(excludeID string) ([]model.User, error) {
	return db.queryUsers(`
		SELECT id, username, display_name FROM users
		WHERE id != ? ORDER BY username ASC`, excludeID)
}

// SearchUsers returns users whose username or display name contains the
// query, excluding excludeID.
func (db *DB) SearchUsers(query, excludeID string) ([]model.User, error) {
	pattern := "%" + query + "%"
	return db.queryUsers(`
		SELECT id, username, display_name FROM users
		WHERE id != ? AND (username LIKE ? OR display_name LIKE ?)
		ORDER BY username ASC`, excludeID, pattern, pattern)
}

func (db *DB) queryUsers(query string, args ...any) ([]model.User, error) {
	rows, err := db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var users []model.User
	for rows.Next() {
		var u model.User
		if err := rows.Scan(&u.ID, &u.Username, &u.DisplayName); err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	return users, rows.Err()
}
