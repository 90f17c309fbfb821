package core

import (
	"time"

	"github.com/kitalumni/alumnichat/internal/store"
)

// Message is the domain model for a direct chat message.
type Message struct {
	ID        string
	From      string
	To        string
	Text      string
	CreatedAt time.Time
}

func messageFromStore(m *store.ChatMessage) Message {
	return Message{
		ID:        m.ID,
		From:      m.Sender,
		To:        m.Receiver,
		Text:      m.Body,
		CreatedAt: m.CreatedAt,
	}
}
