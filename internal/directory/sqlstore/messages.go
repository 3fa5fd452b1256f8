package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/mridulmehra/CyberGaurd-Backend/internal/directory"
)

const messageColumns = "id, text, username, room, is_modified, created_at"

func scanMessage(row rowScanner) (*directory.Message, error) {
	var m directory.Message
	if err := row.Scan(&m.ID, &m.Text, &m.Username, &m.Room, &m.IsModified, &m.Timestamp); err != nil {
		return nil, err
	}
	return &m, nil
}

func (s *Store) CreateMessage(ctx context.Context, msg directory.Message) (*directory.Message, error) {
	if msg.Timestamp == "" {
		msg.Timestamp = directory.FormatTimestamp(s.now())
	}

	query := s.rebind("INSERT INTO messages (text, username, room, is_modified, created_at) VALUES (?, ?, ?, ?, ?) RETURNING id")
	if err := s.db.QueryRowContext(ctx, query, msg.Text, msg.Username, msg.Room, msg.IsModified, msg.Timestamp).Scan(&msg.ID); err != nil {
		return nil, fmt.Errorf("sqlstore: create message: %w", err)
	}
	return &msg, nil
}

func (s *Store) GetMessage(ctx context.Context, id int64) (*directory.Message, error) {
	query := s.rebind("SELECT " + messageColumns + " FROM messages WHERE id = ?")
	m, err := scanMessage(s.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, directory.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("sqlstore: get message: %w", err)
	}
	return m, nil
}

func (s *Store) ListMessages(ctx context.Context, room string, limit int) ([]directory.Message, error) {
	query := s.rebind(`SELECT ` + messageColumns + ` FROM (
		SELECT ` + messageColumns + ` FROM messages
		WHERE room = ?
		ORDER BY created_at DESC, id DESC
		LIMIT ?
	) recent
	ORDER BY created_at ASC, id ASC`)

	rows, err := s.db.QueryContext(ctx, query, room, directory.NormalizeLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("sqlstore: list messages: %w", err)
	}
	defer rows.Close()

	msgs := make([]directory.Message, 0)
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, fmt.Errorf("sqlstore: scan message: %w", err)
		}
		msgs = append(msgs, *m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlstore: list messages: %w", err)
	}
	return msgs, nil
}

// DeleteMessagesInRoom removes dependent rows explicitly as well, so the
// cascade holds even on a SQLite connection opened without foreign keys.
func (s *Store) DeleteMessagesInRoom(ctx context.Context, room string) (int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("sqlstore: delete messages: %w", err)
	}
	defer tx.Rollback()

	for _, stmt := range []string{
		"DELETE FROM reports WHERE message_id IN (SELECT id FROM messages WHERE room = ?)",
		"DELETE FROM toxic_messages WHERE message_id IN (SELECT id FROM messages WHERE room = ?)",
	} {
		if _, err := tx.ExecContext(ctx, s.rebind(stmt), room); err != nil {
			return 0, fmt.Errorf("sqlstore: delete messages: %w", err)
		}
	}

	res, err := tx.ExecContext(ctx, s.rebind("DELETE FROM messages WHERE room = ?"), room)
	if err != nil {
		return 0, fmt.Errorf("sqlstore: delete messages: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("sqlstore: delete messages: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("sqlstore: delete messages: %w", err)
	}
	return n, nil
}
