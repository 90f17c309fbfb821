package core

// EventKind is a notification the core emits to clients.
type EventKind int

const (
	// EventStatusUpdate tells every connected client that a user went online or offline.
	EventStatusUpdate EventKind = iota
	// EventReceiveMessage delivers a direct message to its receiver.
	EventReceiveMessage
	// EventMessageSent acknowledges a persisted message to its sender.
	EventMessageSent
	// EventSessionReplaced tells a client that a newer connection took over its identity.
	EventSessionReplaced
	// EventError notifies clients about a domain error.
	EventError
)

// Event is sent to clients to describe what happened in the system.
type Event struct {
	Kind    EventKind
	Status  StatusUpdate // EventStatusUpdate
	User    string       // EventSessionReplaced
	Message Message      // EventReceiveMessage, EventMessageSent
	Error   *CoreError
}

// StatusUpdate is the payload of a presence transition.
type StatusUpdate struct {
	UserID string
	Online bool
}

func statusEvent(userID string, online bool) *Event {
	return &Event{Kind: EventStatusUpdate, Status: StatusUpdate{UserID: userID, Online: online}}
}
