package http

import (
	"context"
	"database/sql"
	"encoding/json"
	stdhttp "net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/stretchr/testify/require"

	"github.com/kitalumni/alumnichat/internal/config"
	"github.com/kitalumni/alumnichat/internal/core"
	"github.com/kitalumni/alumnichat/internal/proto"
	"github.com/kitalumni/alumnichat/internal/store/sqlite"
)

type testEnv struct {
	ts    *httptest.Server
	store *sqlite.SQLiteStore
	hub   *core.Hub
}

func startTestServer(t *testing.T, mutate func(*config.Config)) *testEnv {
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

	cfg := config.Default()
	cfg.Server.RateLimitPerMinute = 0
	if mutate != nil {
		mutate(&cfg)
	}

	hub := core.NewHub(st, st, nil, core.Options{
		ClientBuffer:          cfg.Hub.ClientBuffer,
		RequireBoundSender:    cfg.Hub.RequireBoundSender,
		EvictReplacedSessions: cfg.Hub.EvictReplacedSessions,
		ReportErrors:          cfg.Hub.ReportErrors,
		OperationTimeout:      cfg.Store.OperationTimeout,
	})
	ctx, cancel := context.WithCancel(context.Background())
	go hub.Run(ctx)
	t.Cleanup(cancel)

	server := NewServer(hub, cfg, nil)
	ts := httptest.NewServer(server.Handler)
	t.Cleanup(ts.Close)

	return &testEnv{ts: ts, store: st, hub: hub}
}

func (e *testEnv) dial(t *testing.T, ctx context.Context) *websocket.Conn {
	t.Helper()

	conn, _, err := websocket.Dial(ctx, strings.Replace(e.ts.URL, "http", "ws", 1)+"/ws", nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close(websocket.StatusNormalClosure, "done") })
	return conn
}

type outboundFrame struct {
	Type  string          `json:"type"`
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
	Error *proto.Error    `json:"error"`
}

func send(t *testing.T, ctx context.Context, conn *websocket.Conn, typ string, data any) {
	t.Helper()

	payload, err := json.Marshal(data)
	require.NoError(t, err)
	require.NoError(t, wsjson.Write(ctx, conn, proto.Inbound{Type: typ, Data: payload}))
}

// readUntil skips frames until match accepts one.
func readUntil(t *testing.T, ctx context.Context, conn *websocket.Conn, match func(outboundFrame) bool) outboundFrame {
	t.Helper()

	for {
		var frame outboundFrame
		require.NoError(t, wsjson.Read(ctx, conn, &frame))
		if match(frame) {
			return frame
		}
	}
}

func isEvent(name string) func(outboundFrame) bool {
	return func(f outboundFrame) bool { return f.Type == proto.OutboundTypeEvent && f.Event == name }
}

func isStatus(userID string, online bool) func(outboundFrame) bool {
	return func(f outboundFrame) bool {
		if !isEvent(proto.EventUserStatusUpdate)(f) {
			return false
		}
		var st proto.UserStatusUpdate
		return json.Unmarshal(f.Data, &st) == nil && st.UserID == userID && st.IsOnline == online
	}
}

// goOnline binds userID on conn and waits until the hub has announced it.
func goOnline(t *testing.T, ctx context.Context, conn *websocket.Conn, userID string) {
	t.Helper()

	send(t, ctx, conn, proto.InboundTypeUserOnline, userID)
	readUntil(t, ctx, conn, isStatus(userID, true))
}

func TestHealthEndpoint(t *testing.T) {
	env := startTestServer(t, nil)

	resp, err := env.ts.Client().Get(env.ts.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, stdhttp.StatusOK, resp.StatusCode)
}

func TestWebSocketDirectMessage(t *testing.T) {
	req := require.New(t)
	env := startTestServer(t, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	c1 := env.dial(t, ctx)
	c2 := env.dial(t, ctx)
	c3 := env.dial(t, ctx)

	goOnline(t, ctx, c1, "u1")
	goOnline(t, ctx, c2, "u2")
	// Object form of the user-online payload.
	send(t, ctx, c3, proto.InboundTypeUserOnline, proto.UserOnlineData{UserID: "u3"})
	readUntil(t, ctx, c3, isStatus("u3", true))

	send(t, ctx, c1, proto.InboundTypeSendMessage, proto.SendMessageData{FromUserID: "u1", ToUserID: "u2", Message: "hi"})

	var received proto.ChatEvent
	frame := readUntil(t, ctx, c2, isEvent(proto.EventReceiveMessage))
	req.NoError(json.Unmarshal(frame.Data, &received))
	req.Equal("u1", received.Chat.Sender)
	req.Equal("u2", received.Chat.Receiver)
	req.Equal("hi", received.Chat.Message)
	req.NotEmpty(received.Chat.ID)

	var sent proto.ChatEvent
	frame = readUntil(t, ctx, c1, isEvent(proto.EventMessageSent))
	req.NoError(json.Unmarshal(frame.Data, &sent))
	req.Equal(received.Chat.ID, sent.Chat.ID)

	// c3 only ever sees presence updates.
	quiet, stop := context.WithTimeout(ctx, 200*time.Millisecond)
	defer stop()
	for {
		var f outboundFrame
		if err := wsjson.Read(quiet, c3, &f); err != nil {
			break
		}
		req.Equal(proto.EventUserStatusUpdate, f.Event)
	}

	history, err := env.store.History(ctx, "u1", "u2", 10)
	req.NoError(err)
	req.Len(history, 1)
}

func TestWebSocketUnboundConnectionSeesOnlyPresence(t *testing.T) {
	req := require.New(t)
	env := startTestServer(t, func(cfg *config.Config) { cfg.Hub.ReportErrors = true })

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	// c3 never binds. An empty user-online is answered with an error, which also
	// shows the connection is registered before the others go online.
	c3 := env.dial(t, ctx)
	send(t, ctx, c3, proto.InboundTypeUserOnline, "")
	readUntil(t, ctx, c3, func(f outboundFrame) bool { return f.Type == proto.OutboundTypeError })

	c1 := env.dial(t, ctx)
	c2 := env.dial(t, ctx)
	goOnline(t, ctx, c1, "u1")
	goOnline(t, ctx, c2, "u2")

	readUntil(t, ctx, c3, isStatus("u1", true))
	readUntil(t, ctx, c3, isStatus("u2", true))

	send(t, ctx, c1, proto.InboundTypeSendMessage, proto.SendMessageData{FromUserID: "u1", ToUserID: "u2", Message: "hi"})
	readUntil(t, ctx, c2, isEvent(proto.EventReceiveMessage))
	readUntil(t, ctx, c1, isEvent(proto.EventMessageSent))

	quiet, stop := context.WithTimeout(ctx, 200*time.Millisecond)
	defer stop()
	for {
		var f outboundFrame
		if err := wsjson.Read(quiet, c3, &f); err != nil {
			break
		}
		req.Equal(proto.EventUserStatusUpdate, f.Event)
	}
}

func TestWebSocketDisconnectBroadcastsOffline(t *testing.T) {
	req := require.New(t)
	env := startTestServer(t, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	c1 := env.dial(t, ctx)
	c2 := env.dial(t, ctx)
	goOnline(t, ctx, c1, "u1")
	goOnline(t, ctx, c2, "u2")

	req.NoError(c2.Close(websocket.StatusNormalClosure, "bye"))
	readUntil(t, ctx, c1, isStatus("u2", false))

	online, err := env.store.IsOnline(ctx, "u2")
	req.NoError(err)
	req.False(online)
}

func TestWebSocketOriginAdmission(t *testing.T) {
	env := startTestServer(t, func(c *config.Config) {
		c.Server.AllowedOrigins = []string{"https://alumni.example"}
	})
	wsURL := strings.Replace(env.ts.URL, "http", "ws", 1) + "/ws"

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, resp, err := websocket.Dial(ctx, wsURL, &websocket.DialOptions{
		HTTPHeader: stdhttp.Header{"Origin": []string{"https://evil.example"}},
	})
	require.Error(t, err)
	require.NotNil(t, resp)
	require.Equal(t, stdhttp.StatusForbidden, resp.StatusCode)

	conn, _, err := websocket.Dial(ctx, wsURL, &websocket.DialOptions{
		HTTPHeader: stdhttp.Header{"Origin": []string{"https://alumni.example"}},
	})
	require.NoError(t, err)
	conn.Close(websocket.StatusNormalClosure, "done")
}

func TestWebSocketReplacedSessionIsClosed(t *testing.T) {
	req := require.New(t)
	env := startTestServer(t, func(c *config.Config) {
		c.Hub.EvictReplacedSessions = true
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	stale := env.dial(t, ctx)
	goOnline(t, ctx, stale, "u1")

	fresh := env.dial(t, ctx)
	goOnline(t, ctx, fresh, "u1")

	readUntil(t, ctx, stale, isEvent(proto.EventSessionReplaced))
	var f outboundFrame
	err := wsjson.Read(ctx, stale, &f)
	req.Error(err)
	req.Equal(websocket.StatusPolicyViolation, websocket.CloseStatus(err))

	// The fresh connection still owns u1.
	online, err := env.hub.OnlineUsers()
	req.NoError(err)
	req.Equal([]string{"u1"}, online)
}

func TestWebSocketReportsRejectedFrames(t *testing.T) {
	req := require.New(t)
	env := startTestServer(t, func(c *config.Config) {
		c.Hub.ReportErrors = true
		c.Hub.RequireBoundSender = true
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn := env.dial(t, ctx)

	req.NoError(conn.Write(ctx, websocket.MessageText, []byte("{not json")))
	var f outboundFrame
	req.NoError(wsjson.Read(ctx, conn, &f))
	req.Equal(proto.OutboundTypeError, f.Type)
	req.Equal(errCodeInvalidMessage, f.Error.Code)

	send(t, ctx, conn, "typing", nil)
	req.NoError(wsjson.Read(ctx, conn, &f))
	req.Equal(errCodeInvalidMessage, f.Error.Code)

	send(t, ctx, conn, proto.InboundTypeSendMessage, proto.SendMessageData{ToUserID: "u2", Message: "early"})
	req.NoError(wsjson.Read(ctx, conn, &f))
	req.Equal(core.ErrCodeNotBound, f.Error.Code)

	// The connection survives every rejection.
	goOnline(t, ctx, conn, "u1")
}

func TestWebSocketRateLimit(t *testing.T) {
	env := startTestServer(t, func(c *config.Config) {
		c.Server.RateLimitPerMinute = 1
		c.Hub.ReportErrors = true
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn := env.dial(t, ctx)
	goOnline(t, ctx, conn, "u1")

	send(t, ctx, conn, proto.InboundTypeSendMessage, proto.SendMessageData{ToUserID: "u2", Message: "too fast"})
	f := readUntil(t, ctx, conn, func(f outboundFrame) bool { return f.Type == proto.OutboundTypeError })
	require.Equal(t, errCodeRateLimited, f.Error.Code)
}
