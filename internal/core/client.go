package core

import "sync"

const defaultClientBuffer = 16

// SessionState is the lifecycle stage of a client session.
type SessionState int

const (
	// StateUnbound is a connected session that has not announced a user yet.
	StateUnbound SessionState = iota
	// StateBound is a session registered for a user in the presence registry.
	StateBound
	// StateClosed is terminal.
	StateClosed
)

func (s SessionState) String() string {
	switch s {
	case StateUnbound:
		return "unbound"
	case StateBound:
		return "bound"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Client is one live connection as seen by the core layer.
type Client struct {
	ID       string
	Commands chan *Command
	Events   chan *Event

	mu     sync.Mutex
	state  SessionState
	userID string

	done chan struct{}
}

// NewClient constructs an unbound client with buffered channels.
// A non-positive buffer selects the default size.
func NewClient(id string, buffer int) *Client {
	if buffer <= 0 {
		buffer = defaultClientBuffer
	}
	return &Client{
		ID:       id,
		Commands: make(chan *Command, buffer),
		Events:   make(chan *Event, buffer),
		done:     make(chan struct{}),
	}
}

// State returns the current session state.
func (c *Client) State() SessionState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// UserID returns the bound identity, or "" while unbound.
func (c *Client) UserID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.userID
}

// Done is closed once the hub stopped serving the client.
func (c *Client) Done() <-chan struct{} {
	return c.done
}

// Deliver queues an event without blocking. It reports false when the buffer is full
// and the event was dropped.
func (c *Client) Deliver(event *Event) bool {
	select {
	case c.Events <- event:
		return true
	default:
		return false
	}
}

func (c *Client) bind(userID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state = StateBound
	c.userID = userID
}

func (c *Client) close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state = StateClosed
}
