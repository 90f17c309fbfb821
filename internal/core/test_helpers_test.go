package core

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/kitalumni/alumnichat/internal/store"
	"github.com/kitalumni/alumnichat/internal/store/sqlite"
)

const eventWait = 2 * time.Second

// newTestStore returns an in-memory store seeded with users u1..u3, all offline.
func newTestStore(t *testing.T) *sqlite.SQLiteStore {
	t.Helper()

	st, err := sqlite.NewWithSetup(":memory:", func(db *sql.DB) error {
		if err := sqlite.Migrate(db); err != nil {
			return err
		}
		_, err := db.Exec(`INSERT INTO users (id) VALUES ('u1'), ('u2'), ('u3')`)
		return err
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	return st
}

// startHub runs a hub until the test ends.
func startHub(t *testing.T, messages store.MessageStore, users store.UserStore, opts Options) *Hub {
	t.Helper()

	hub := NewHub(messages, users, nil, opts)
	ctx, cancel := context.WithCancel(context.Background())
	go hub.Run(ctx)
	t.Cleanup(cancel)
	return hub
}

func connect(t *testing.T, hub *Hub) *Client {
	t.Helper()

	c := hub.NewClient(uuid.NewString())
	require.NoError(t, hub.RegisterClient(c))
	return c
}

// bind announces userID on c and consumes the resulting online broadcast on every
// client in observers (which must include every connected client).
func bind(t *testing.T, c *Client, userID string, observers ...*Client) {
	t.Helper()

	c.Commands <- &Command{Kind: CommandBindIdentity, UserID: userID}
	for _, o := range observers {
		requireStatus(t, nextEvent(t, o), userID, true)
	}
}

func disconnect(t *testing.T, hub *Hub, c *Client) {
	t.Helper()

	hub.UnregisterClient(c)
	select {
	case <-c.Done():
	case <-time.After(eventWait):
		t.Fatalf("client %s was not closed", c.ID)
	}
}

func nextEvent(t *testing.T, c *Client) *Event {
	t.Helper()

	select {
	case ev := <-c.Events:
		return ev
	case <-time.After(eventWait):
		t.Fatalf("client %s: no event received", c.ID)
		return nil
	}
}

func mustEvent(t *testing.T, ch <-chan *Event, kind EventKind) *Event {
	t.Helper()

	deadline := time.Now().Add(eventWait)
	for time.Now().Before(deadline) {
		select {
		case ev := <-ch:
			if ev == nil {
				continue
			}
			if ev.Kind == kind {
				return ev
			}
		default:
			time.Sleep(10 * time.Millisecond)
		}
	}
	t.Fatalf("expected event kind %v not received", kind)
	return nil
}

func expectNoEvent(t *testing.T, c *Client) {
	t.Helper()

	select {
	case ev := <-c.Events:
		t.Fatalf("client %s: unexpected event %+v", c.ID, ev)
	case <-time.After(100 * time.Millisecond):
	}
}

func requireStatus(t *testing.T, ev *Event, userID string, online bool) {
	t.Helper()

	require.Equal(t, EventStatusUpdate, ev.Kind, "event: %+v", ev)
	require.Equal(t, userID, ev.Status.UserID)
	require.Equal(t, online, ev.Status.Online)
}

// registered returns the client currently registered for userID.
func registered(t *testing.T, hub *Hub, userID string) *Client {
	t.Helper()

	var c *Client
	require.NoError(t, hub.do(func() { c, _ = hub.registry.Get(userID) }))
	return c
}

func userOnline(t *testing.T, users store.UserStore, userID string) bool {
	t.Helper()

	online, err := users.IsOnline(context.Background(), userID)
	require.NoError(t, err)
	return online
}
