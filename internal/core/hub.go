package core

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"github.com/kitalumni/alumnichat/internal/store"
)

// Moderator rewrites a message body before it is persisted.
type Moderator interface {
	Censor(text string) string
}

// Options tunes session behaviour.
type Options struct {
	// ClientBuffer sizes the command and event channels of new clients.
	ClientBuffer int
	// RequireBoundSender rejects send-message from sessions that never sent user-online,
	// and from bound sessions naming another sender.
	RequireBoundSender bool
	// EvictReplacedSessions notifies a session whose identity was taken by a newer
	// connection so the transport can close it.
	EvictReplacedSessions bool
	// ReportErrors delivers EventError to the client whose command failed.
	ReportErrors bool
	// OperationTimeout bounds each store call. Zero disables the bound.
	OperationTimeout time.Duration
	// Moderator, when set, censors message bodies before persistence.
	Moderator Moderator
}

// Hub coordinates sessions, presence and direct messages. The registry and the
// broadcaster belong to the loop started by Run; sessions reach them through do.
type Hub struct {
	messages store.MessageStore
	users    store.UserStore
	opts     Options
	log      *zerolog.Logger

	registry    *Registry
	broadcaster *Broadcaster

	ops     chan func()
	stopped chan struct{}

	// ctx parents store calls and is cancelled when Run returns.
	ctx    context.Context
	cancel context.CancelFunc
}

// NewHub creates a hub. Run must be started before clients are registered.
func NewHub(messages store.MessageStore, users store.UserStore, logger *zerolog.Logger, opts Options) *Hub {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Hub{
		messages:    messages,
		users:       users,
		opts:        opts,
		log:         logger,
		registry:    NewRegistry(),
		broadcaster: NewBroadcaster(),
		ops:         make(chan func()),
		stopped:     make(chan struct{}),
		ctx:         ctx,
		cancel:      cancel,
	}
}

// Run processes hub operations one at a time until ctx is cancelled.
func (h *Hub) Run(ctx context.Context) {
	defer h.cancel()
	defer close(h.stopped)

	for {
		select {
		case op := <-h.ops:
			op()
		case <-ctx.Done():
			h.log.Debug().Int("sessions", h.broadcaster.Len()).Msg("hub stopped")
			return
		}
	}
}

// Done is closed when Run has returned.
func (h *Hub) Done() <-chan struct{} {
	return h.stopped
}

// NewClient constructs a client using the hub's buffer size.
func (h *Hub) NewClient(id string) *Client {
	return NewClient(id, h.opts.ClientBuffer)
}

// RegisterClient subscribes the client to presence broadcasts and starts
// processing its commands in order.
func (h *Hub) RegisterClient(c *Client) error {
	if err := h.do(func() { h.broadcaster.Subscribe(c) }); err != nil {
		return err
	}
	h.log.Debug().Str("client_id", c.ID).Msg("client registered")

	go h.serve(c)
	return nil
}

// UnregisterClient queues the disconnect behind the client's pending commands.
func (h *Hub) UnregisterClient(c *Client) {
	select {
	case c.Commands <- &Command{Kind: CommandDisconnect}:
	case <-c.done:
	case <-h.stopped:
	}
}

// OnlineUsers returns the ids currently present in the registry.
func (h *Hub) OnlineUsers() ([]string, error) {
	var ids []string
	err := h.do(func() { ids = h.registry.Online() })
	return ids, err
}

// History returns stored messages between two users.
func (h *Hub) History(ctx context.Context, userA, userB string, limit int) ([]Message, error) {
	ctx, cancel := h.withTimeout(ctx)
	defer cancel()

	records, err := h.messages.History(ctx, userA, userB, limit)
	if err != nil {
		return nil, coreError(ErrCodePersistenceFailed, "load history", err)
	}

	out := make([]Message, 0, len(records))
	for i := range records {
		out = append(out, messageFromStore(&records[i]))
	}
	return out, nil
}

func (h *Hub) serve(c *Client) {
	defer close(c.done)

	for {
		select {
		case cmd := <-c.Commands:
			if cmd == nil {
				continue
			}
			if cmd.Kind == CommandDisconnect {
				if err := h.closeSession(c); err != nil {
					h.report(c, cmd, err)
				}
				return
			}
			h.report(c, cmd, h.dispatch(c, cmd))
		case <-h.stopped:
			c.close()
			return
		}
	}
}

func (h *Hub) dispatch(c *Client, cmd *Command) error {
	switch cmd.Kind {
	case CommandBindIdentity:
		return h.bindIdentity(c, cmd.UserID)
	case CommandSendMessage:
		return h.sendMessage(c, cmd)
	default:
		return coreError(ErrCodeBadRequest, "unknown command", ErrBadRequest)
	}
}

// report decides what a failed command produces: a log line and, when enabled,
// an error event for the client. The connection stays open either way.
func (h *Hub) report(c *Client, cmd *Command, err error) {
	if err == nil {
		return
	}

	var ce *CoreError
	if !errors.As(err, &ce) {
		ce = coreError(ErrCodeUnavailable, "internal error", err)
	}

	logEvent := h.log.Error()
	if ce.ClientFault() {
		logEvent = h.log.Debug()
	}
	logEvent.Err(err).
		Str("client_id", c.ID).
		Str("user_id", c.UserID()).
		Str("command", cmd.Kind.String()).
		Str("code", ce.Code).
		Msg("command failed")

	if h.opts.ReportErrors && cmd.Kind != CommandDisconnect {
		c.Deliver(&Event{Kind: EventError, Error: ce})
	}
}

// do runs fn on the hub loop and waits for it to finish.
func (h *Hub) do(fn func()) error {
	done := make(chan struct{})
	select {
	case h.ops <- func() { fn(); close(done) }:
	case <-h.stopped:
		return ErrHubStopped
	}
	<-done
	return nil
}

func (h *Hub) withTimeout(parent context.Context) (context.Context, context.CancelFunc) {
	if h.opts.OperationTimeout > 0 {
		return context.WithTimeout(parent, h.opts.OperationTimeout)
	}
	return context.WithCancel(parent)
}

func (h *Hub) publish(event *Event) error {
	var delivered, dropped int
	if err := h.do(func() { delivered, dropped = h.broadcaster.Publish(event) }); err != nil {
		return err
	}
	h.log.Debug().
		Str("user_id", event.Status.UserID).
		Bool("online", event.Status.Online).
		Int("delivered", delivered).
		Int("dropped", dropped).
		Msg("presence broadcast")
	return nil
}
