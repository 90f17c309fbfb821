package core

// CommandKind describes what the client wants to do.
type CommandKind int

const (
	// CommandBindIdentity announces the user behind the connection (user-online).
	CommandBindIdentity CommandKind = iota
	// CommandSendMessage persists a direct message and forwards it to the receiver.
	CommandSendMessage
	// CommandDisconnect tears the session down after the transport closed.
	CommandDisconnect
)

func (k CommandKind) String() string {
	switch k {
	case CommandBindIdentity:
		return "bind_identity"
	case CommandSendMessage:
		return "send_message"
	case CommandDisconnect:
		return "disconnect"
	default:
		return "unknown"
	}
}

// Command represents an action requested by a client.
type Command struct {
	Kind   CommandKind
	UserID string // CommandBindIdentity
	From   string // CommandSendMessage; empty means the bound identity
	To     string
	Text   string
}
