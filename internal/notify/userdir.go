// Package notify holds the user directory and the proactive
// notification scheduler.
package notify

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// User statuses. Blocked users stay in the directory but receive no
// proactive messages.
const (
	StatusActive  = "active"
	StatusBlocked = "blocked"
)

// Directory is the SQLite-backed registry of known users. The chat path
// upserts on every follow event; the scheduler reads the active set.
type Directory struct {
	db *sql.DB
}

// NewDirectory creates the directory table if needed.
func NewDirectory(db *sql.DB) (*Directory, error) {
	d := &Directory{db: db}
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS users (
			user_id    TEXT NOT NULL PRIMARY KEY,
			location   TEXT NOT NULL DEFAULT '',
			status     TEXT NOT NULL DEFAULT 'active',
			updated_at TEXT NOT NULL
		)
	`)
	if err != nil {
		return nil, fmt.Errorf("user directory migration: %w", err)
	}
	return d, nil
}

// Register adds a user or reactivates a previously blocked one.
func (d *Directory) Register(ctx context.Context, userID string) error {
	_, err := d.db.ExecContext(ctx, `
		INSERT INTO users (user_id, status, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(user_id) DO UPDATE SET
			status = excluded.status,
			updated_at = excluded.updated_at
	`, userID, StatusActive, now())
	if err != nil {
		return fmt.Errorf("register user: %w", err)
	}
	return nil
}

// Block marks a user as unreachable (LINE unfollow event).
func (d *Directory) Block(ctx context.Context, userID string) error {
	_, err := d.db.ExecContext(ctx, `
		UPDATE users SET status = ?, updated_at = ? WHERE user_id = ?
	`, StatusBlocked, now(), userID)
	if err != nil {
		return fmt.Errorf("block user: %w", err)
	}
	return nil
}

// ActiveUsers returns the IDs of users eligible for proactive messages.
func (d *Directory) ActiveUsers(ctx context.Context) ([]string, error) {
	rows, err := d.db.QueryContext(ctx, `
		SELECT user_id FROM users WHERE status = ? ORDER BY user_id
	`, StatusActive)
	if err != nil {
		return nil, fmt.Errorf("list active users: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

// Location returns the user's registered location, empty if none.
func (d *Directory) Location(ctx context.Context, userID string) (string, error) {
	var location string
	err := d.db.QueryRowContext(ctx, `
		SELECT location FROM users WHERE user_id = ?
	`, userID).Scan(&location)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("get location: %w", err)
	}
	return location, nil
}

// SetLocation stores the user's location, registering the user if they
// are not in the directory yet.
func (d *Directory) SetLocation(ctx context.Context, userID, location string) error {
	_, err := d.db.ExecContext(ctx, `
		INSERT INTO users (user_id, location, status, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(user_id) DO UPDATE SET
			location = excluded.location,
			updated_at = excluded.updated_at
	`, userID, location, StatusActive, now())
	if err != nil {
		return fmt.Errorf("set location: %w", err)
	}
	return nil
}

func now() string {
	return time.Now().UTC().Format(time.RFC3339Nano)
}
