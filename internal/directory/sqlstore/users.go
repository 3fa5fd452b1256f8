package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/mridulmehra/CyberGaurd-Backend/internal/directory"
)

const userColumns = "id, username, room, toxicity_score"

func scanUser(row rowScanner) (*directory.User, error) {
	var u directory.User
	if err := row.Scan(&u.ID, &u.Username, &u.Room, &u.ToxicityScore); err != nil {
		return nil, err
	}
	return &u, nil
}

func (s *Store) GetUser(ctx context.Context, username string) (*directory.User, error) {
	query := s.rebind("SELECT " + userColumns + " FROM users WHERE username = ?")
	u, err := scanUser(s.db.QueryRowContext(ctx, query, username))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, directory.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("sqlstore: get user: %w", err)
	}
	return u, nil
}

func (s *Store) ListUsersInRoom(ctx context.Context, room string) ([]directory.User, error) {
	query := s.rebind("SELECT " + userColumns + " FROM users WHERE room = ? ORDER BY id")
	rows, err := s.db.QueryContext(ctx, query, room)
	if err != nil {
		return nil, fmt.Errorf("sqlstore: list users: %w", err)
	}
	defer rows.Close()

	users := make([]directory.User, 0)
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("sqlstore: scan user: %w", err)
		}
		users = append(users, *u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlstore: list users: %w", err)
	}
	return users, nil
}

func (s *Store) CreateUser(ctx context.Context, username, room string) (*directory.User, error) {
	query := s.rebind("INSERT INTO users (username, room, toxicity_score) VALUES (?, ?, 0) RETURNING " + userColumns)
	u, err := scanUser(s.db.QueryRowContext(ctx, query, username, room))
	if isUniqueViolation(err) {
		return nil, directory.ErrUserExists
	}
	if err != nil {
		return nil, fmt.Errorf("sqlstore: create user: %w", err)
	}
	return u, nil
}

func (s *Store) DeleteUser(ctx context.Context, username string) error {
	query := s.rebind("DELETE FROM users WHERE username = ?")
	if _, err := s.db.ExecContext(ctx, query, username); err != nil {
		return fmt.Errorf("sqlstore: delete user: %w", err)
	}
	return nil
}

func (s *Store) SetToxicityScore(ctx context.Context, username string, score int) (*directory.User, error) {
	query := s.rebind("UPDATE users SET toxicity_score = ? WHERE username = ? RETURNING " + userColumns)
	u, err := scanUser(s.db.QueryRowContext(ctx, query, directory.ClampScore(score), username))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, directory.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("sqlstore: set toxicity score: %w", err)
	}
	return u, nil
}

func (s *Store) PurgeUsers(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx, "DELETE FROM users")
	if err != nil {
		return 0, fmt.Errorf("sqlstore: purge users: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("sqlstore: purge users: %w", err)
	}
	return n, nil
}
