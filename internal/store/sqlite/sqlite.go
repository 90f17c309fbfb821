package sqlite

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"github.com/kitalumni/alumnichat/internal/store"
)

//go:embed schema.sql
var schema string

// SQLiteStore implements store.Store for SQLite.
type SQLiteStore struct {
	db  *sql.DB
	now func() time.Time
}

var _ store.Store = (*SQLiteStore)(nil)

// New opens the database at dbPath and applies the schema.
func New(dbPath string) (*SQLiteStore, error) {
	return NewWithSetup(dbPath, Migrate)
}

// NewWithSetup creates a new SQLite store and runs a setup function.
// Useful for tests to apply a custom schema or seed rows.
func NewWithSetup(dbPath string, setup func(*sql.DB) error) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	// SQLite works best with a single connection; it also keeps ":memory:" databases alive.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if setup != nil {
		if err := setup(db); err != nil {
			db.Close()
			return nil, fmt.Errorf("setup: %w", err)
		}
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	return &SQLiteStore{db: db, now: time.Now}, nil
}

// Migrate creates the chats and users tables when they do not exist yet.
func Migrate(db *sql.DB) error {
	if _, err := db.Exec(schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// ==== MessageStore implementation ====

// Append persists a chat message with a fresh UUID and the current UTC time.
func (s *SQLiteStore) Append(ctx context.Context, sender, receiver, body string) (*store.ChatMessage, error) {
	if sender == "" || receiver == "" {
		return nil, store.ErrEmptyID
	}

	msg := &store.ChatMessage{
		ID:        uuid.NewString(),
		Sender:    sender,
		Receiver:  receiver,
		Body:      body,
		CreatedAt: s.now().UTC(),
	}

	query := `
		INSERT INTO chats (id, sender, receiver, message, created_at)
		VALUES (?, ?, ?, ?, ?)
	`
	if _, err := s.db.ExecContext(ctx, query, msg.ID, msg.Sender, msg.Receiver, msg.Body, msg.CreatedAt); err != nil {
		return nil, fmt.Errorf("insert chat: %w", err)
	}

	return msg, nil
}

// History returns the latest messages between two users in chronological order.
func (s *SQLiteStore) History(ctx context.Context, userA, userB string, limit int) ([]store.ChatMessage, error) {
	if userA == "" || userB == "" {
		return nil, store.ErrEmptyID
	}

	query := `
		SELECT id, sender, receiver, message, created_at
		FROM chats
		WHERE (sender = ? AND receiver = ?) OR (sender = ? AND receiver = ?)
		ORDER BY created_at DESC, rowid DESC
		LIMIT ?
	`
	rows, err := s.db.QueryContext(ctx, query, userA, userB, userB, userA, store.NormalizeLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("query chats: %w", err)
	}
	defer rows.Close()

	var messages []store.ChatMessage
	for rows.Next() {
		var msg store.ChatMessage
		if err := rows.Scan(&msg.ID, &msg.Sender, &msg.Receiver, &msg.Body, &msg.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan chat: %w", err)
		}
		messages = append(messages, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate chats: %w", err)
	}

	// Reverse to get chronological order
	for i := 0; i < len(messages)/2; i++ {
		messages[i], messages[len(messages)-1-i] = messages[len(messages)-1-i], messages[i]
	}

	return messages, nil
}

// ==== UserStore implementation ====

// SetOnline updates the is_online flag of a user.
func (s *SQLiteStore) SetOnline(ctx context.Context, userID string, online bool) error {
	if userID == "" {
		return store.ErrEmptyID
	}

	query := `
		UPDATE users
		SET is_online = ?, updated_at = ?
		WHERE id = ?
	`
	if _, err := s.db.ExecContext(ctx, query, online, s.now().UTC(), userID); err != nil {
		return fmt.Errorf("update user online flag: %w", err)
	}
	return nil
}

// IsOnline reads the is_online flag of a user.
func (s *SQLiteStore) IsOnline(ctx context.Context, userID string) (bool, error) {
	if userID == "" {
		return false, store.ErrEmptyID
	}

	var online bool
	err := s.db.QueryRowContext(ctx, `SELECT is_online FROM users WHERE id = ?`, userID).Scan(&online)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("query user online flag: %w", err)
	}
	return online, nil
}

// ResetOnline marks all users offline.
func (s *SQLiteStore) ResetOnline(ctx context.Context) (int64, error) {
	result, err := s.db.ExecContext(ctx, `UPDATE users SET is_online = 0, updated_at = ? WHERE is_online = 1`, s.now().UTC())
	if err != nil {
		return 0, fmt.Errorf("reset online flags: %w", err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("get rows affected: %w", err)
	}
	return n, nil
}
