//go:generate go run go.uber.org/mock/mockgen -source=store.go -destination=mocks/mock_store.go -package=mocks
package store

import (
	"context"
	"errors"
	"time"
)

// ErrEmptyID is returned when a user identifier required by the query is empty.
var ErrEmptyID = errors.New("user id is empty")

// DefaultHistoryLimit caps History when the caller passes a non-positive limit.
const DefaultHistoryLimit = 50

// ChatMessage is a persisted direct message between two users.
type ChatMessage struct {
	ID        string
	Sender    string
	Receiver  string
	Body      string
	CreatedAt time.Time
}

// MessageStore is the append-only record of chat messages.
type MessageStore interface {
	// Append assigns an id and timestamp, persists the message and returns the stored record.
	Append(ctx context.Context, sender, receiver, body string) (*ChatMessage, error)

	// History returns up to limit messages exchanged between userA and userB,
	// oldest first.
	History(ctx context.Context, userA, userB string, limit int) ([]ChatMessage, error)
}

// UserStore exposes the presence flag kept on user records.
type UserStore interface {
	// SetOnline updates the online flag of a user. Unknown users are not an error.
	SetOnline(ctx context.Context, userID string, online bool) error

	// IsOnline reports the persisted flag. Unknown users are reported offline.
	IsOnline(ctx context.Context, userID string) (bool, error)

	// ResetOnline marks every user offline and returns how many records changed.
	ResetOnline(ctx context.Context) (int64, error)
}

// Store combines every persistence interface used by the server.
type Store interface {
	MessageStore
	UserStore
	Close() error
}

// NormalizeLimit returns DefaultHistoryLimit for non-positive limits.
func NormalizeLimit(limit int) int {
	if limit <= 0 {
		return DefaultHistoryLimit
	}
	return limit
}
