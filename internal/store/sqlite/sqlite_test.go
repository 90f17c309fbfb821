package sqlite

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/kitalumni/alumnichat/internal/store"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()

	s, err := NewWithSetup(":memory:", func(db *sql.DB) error {
		if err := Migrate(db); err != nil {
			return err
		}
		_, err := db.Exec(`INSERT INTO users (id, is_online) VALUES ('u1', 0), ('u2', 0), ('u3', 1)`)
		return err
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	return s
}

// tick makes the store clock advance one second per call.
func tick(s *SQLiteStore) {
	base := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	n := 0
	s.now = func() time.Time {
		n++
		return base.Add(time.Duration(n) * time.Second)
	}
}

func isOnline(t *testing.T, s *SQLiteStore, id string) bool {
	t.Helper()
	online, err := s.IsOnline(context.Background(), id)
	require.NoError(t, err)
	return online
}

func TestAppendReturnsPersistedRecord(t *testing.T) {
	req := require.New(t)
	s := newTestStore(t)
	ctx := context.Background()

	msg, err := s.Append(ctx, "u1", "u2", "hi")
	req.NoError(err)
	req.NotEmpty(msg.ID)
	req.Equal("u1", msg.Sender)
	req.Equal("u2", msg.Receiver)
	req.Equal("hi", msg.Body)
	req.False(msg.CreatedAt.IsZero())

	history, err := s.History(ctx, "u1", "u2", 10)
	req.NoError(err)
	req.Len(history, 1)
	req.Equal(msg.ID, history[0].ID)
	req.True(msg.CreatedAt.Equal(history[0].CreatedAt))
}

func TestAppendRejectsEmptyIdentifiers(t *testing.T) {
	s := newTestStore(t)

	_, err := s.Append(context.Background(), "", "u2", "hi")
	require.ErrorIs(t, err, store.ErrEmptyID)

	_, err = s.Append(context.Background(), "u1", "", "hi")
	require.ErrorIs(t, err, store.ErrEmptyID)
}

func TestHistoryIsChronologicalAndScopedToPair(t *testing.T) {
	req := require.New(t)
	s := newTestStore(t)
	tick(s)
	ctx := context.Background()

	for _, m := range []struct{ from, to, body string }{
		{"u1", "u2", "one"},
		{"u2", "u1", "two"},
		{"u1", "u3", "elsewhere"},
		{"u1", "u2", "three"},
	} {
		_, err := s.Append(ctx, m.from, m.to, m.body)
		req.NoError(err)
	}

	history, err := s.History(ctx, "u2", "u1", 0)
	req.NoError(err)

	var bodies []string
	for _, m := range history {
		bodies = append(bodies, m.Body)
	}
	req.Equal([]string{"one", "two", "three"}, bodies)
}

func TestHistoryLimitKeepsLatest(t *testing.T) {
	req := require.New(t)
	s := newTestStore(t)
	tick(s)
	ctx := context.Background()

	for _, body := range []string{"a", "b", "c", "d"} {
		_, err := s.Append(ctx, "u1", "u2", body)
		req.NoError(err)
	}

	history, err := s.History(ctx, "u1", "u2", 2)
	req.NoError(err)
	req.Len(history, 2)
	req.Equal("c", history[0].Body)
	req.Equal("d", history[1].Body)
}

func TestSetOnlineAndReset(t *testing.T) {
	req := require.New(t)
	s := newTestStore(t)
	ctx := context.Background()

	req.NoError(s.SetOnline(ctx, "u1", true))
	req.True(isOnline(t, s, "u1"))

	req.NoError(s.SetOnline(ctx, "u1", false))
	req.False(isOnline(t, s, "u1"))

	// Unknown users are ignored like a findByIdAndUpdate miss.
	req.NoError(s.SetOnline(ctx, "ghost", true))
	req.ErrorIs(s.SetOnline(ctx, "", true), store.ErrEmptyID)

	req.NoError(s.SetOnline(ctx, "u2", true))
	n, err := s.ResetOnline(ctx)
	req.NoError(err)
	req.EqualValues(2, n)
	req.False(isOnline(t, s, "u2"))
	req.False(isOnline(t, s, "u3"))
}

func TestIsOnlineUnknownUserIsOffline(t *testing.T) {
	req := require.New(t)
	s := newTestStore(t)

	online, err := s.IsOnline(context.Background(), "ghost")
	req.NoError(err)
	req.False(online)

	_, err = s.IsOnline(context.Background(), "")
	req.ErrorIs(err, store.ErrEmptyID)
}
