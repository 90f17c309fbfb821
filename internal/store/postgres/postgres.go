package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/lib/pq"

	"github.com/kitalumni/alumnichat/internal/store"
)

const schema = `
CREATE TABLE IF NOT EXISTS users (
	id         TEXT PRIMARY KEY,
	is_online  BOOLEAN NOT NULL DEFAULT FALSE,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS chats (
	id         UUID PRIMARY KEY,
	seq        BIGSERIAL,
	sender     TEXT NOT NULL,
	receiver   TEXT NOT NULL,
	message    TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL
);

ALTER TABLE chats ADD COLUMN IF NOT EXISTS seq BIGSERIAL;

CREATE INDEX IF NOT EXISTS idx_chats_pair ON chats(sender, receiver, created_at DESC);
`

// PostgresStore implements store.Store for PostgreSQL.
type PostgresStore struct {
	db  *sql.DB
	now func() time.Time
}

var _ store.Store = (*PostgresStore)(nil)

// New opens a connection pool for dsn, pings it and applies the schema.
func New(ctx context.Context, dsn string) (*PostgresStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}

	return &PostgresStore{db: db, now: time.Now}, nil
}

// Close closes the connection pool.
func (s *PostgresStore) Close() error {
	return s.db.Close()
}

// Append persists a chat message.
func (s *PostgresStore) Append(ctx context.Context, sender, receiver, body string) (*store.ChatMessage, error) {
	if sender == "" || receiver == "" {
		return nil, store.ErrEmptyID
	}

	// Postgres keeps microsecond precision.
	msg := &store.ChatMessage{
		ID:        uuid.NewString(),
		Sender:    sender,
		Receiver:  receiver,
		Body:      body,
		CreatedAt: s.now().UTC().Truncate(time.Microsecond),
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO chats (id, sender, receiver, message, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`, msg.ID, msg.Sender, msg.Receiver, msg.Body, msg.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("insert chat: %w", err)
	}

	return msg, nil
}

// History returns the latest messages between two users in chronological order.
func (s *PostgresStore) History(ctx context.Context, userA, userB string, limit int) ([]store.ChatMessage, error) {
	if userA == "" || userB == "" {
		return nil, store.ErrEmptyID
	}

	// seq orders messages that share a timestamp by insertion.
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, sender, receiver, message, created_at
		FROM (
			SELECT id, sender, receiver, message, created_at, seq
			FROM chats
			WHERE (sender = $1 AND receiver = $2) OR (sender = $2 AND receiver = $1)
			ORDER BY created_at DESC, seq DESC
			LIMIT $3
		) latest
		ORDER BY created_at ASC, seq ASC
	`, userA, userB, store.NormalizeLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("query chats: %w", err)
	}
	defer rows.Close()

	var out []store.ChatMessage
	for rows.Next() {
		var m store.ChatMessage
		if err := rows.Scan(&m.ID, &m.Sender, &m.Receiver, &m.Body, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan chat: %w", err)
		}
		m.CreatedAt = m.CreatedAt.UTC()
		out = append(out, m)
	}

	return out, rows.Err()
}

// SetOnline updates the is_online flag of a user.
func (s *PostgresStore) SetOnline(ctx context.Context, userID string, online bool) error {
	if userID == "" {
		return store.ErrEmptyID
	}

	_, err := s.db.ExecContext(ctx, `
		UPDATE users SET is_online = $1, updated_at = now() WHERE id = $2
	`, online, userID)
	if err != nil {
		return fmt.Errorf("update user online flag: %w", err)
	}
	return nil
}

// IsOnline reads the is_online flag of a user.
func (s *PostgresStore) IsOnline(ctx context.Context, userID string) (bool, error) {
	if userID == "" {
		return false, store.ErrEmptyID
	}

	var online bool
	err := s.db.QueryRowContext(ctx, `SELECT is_online FROM users WHERE id = $1`, userID).Scan(&online)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("query user online flag: %w", err)
	}
	return online, nil
}

// ResetOnline marks all users offline.
func (s *PostgresStore) ResetOnline(ctx context.Context) (int64, error) {
	result, err := s.db.ExecContext(ctx, `UPDATE users SET is_online = FALSE, updated_at = now() WHERE is_online`)
	if err != nil {
		return 0, fmt.Errorf("reset online flags: %w", err)
	}
	return result.RowsAffected()
}
