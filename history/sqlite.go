package history

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"chathub/types"

	"github.com/google/uuid"
)

type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore expects db to be migrated already (see db.InitSQLite).
func NewSQLiteStore(db *sql.DB) *SQLiteStore {
	return &SQLiteStore{db: db}
}

func (s *SQLiteStore) Save(ctx context.Context, msg types.ChatMessage) error {
	query := `INSERT INTO messages (id, username, body, sent_at) VALUES (?, ?, ?, ?)`
	_, err := s.db.ExecContext(ctx, query, msg.ID.String(), msg.Username, msg.Body, msg.SentAt.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("%w: insert message %s: %w", ErrStorage, msg.ID, err)
	}
	return nil
}

func (s *SQLiteStore) Recent(ctx context.Context, limit int) ([]types.ChatMessage, error) {
	if limit <= 0 {
		return nil, nil
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, username, body, sent_at FROM (
			SELECT seq, id, username, body, sent_at
			FROM messages
			ORDER BY seq DESC
			LIMIT ?
		) ORDER BY seq ASC
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("%w: query recent messages: %w", ErrStorage, err)
	}
	defer rows.Close()

	var messages []types.ChatMessage
	for rows.Next() {
		var id, sentAt string
		var msg types.ChatMessage
		if err := rows.Scan(&id, &msg.Username, &msg.Body, &sentAt); err != nil {
			return nil, fmt.Errorf("%w: scan message: %w", ErrStorage, err)
		}
		if msg.ID, err = uuid.Parse(id); err != nil {
			return nil, fmt.Errorf("%w: message id %q: %w", ErrStorage, id, err)
		}
		if msg.SentAt, err = time.Parse(time.RFC3339Nano, sentAt); err != nil {
			return nil, fmt.Errorf("%w: message %s timestamp: %w", ErrStorage, id, err)
		}
		messages = append(messages, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: row iteration: %w", ErrStorage, err)
	}
	return messages, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
