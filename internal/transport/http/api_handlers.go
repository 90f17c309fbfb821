package http

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/samber/lo"

	"github.com/kitalumni/alumnichat/internal/core"
	"github.com/kitalumni/alumnichat/internal/proto"
)

// APIHandlers serves the read-only REST endpoints backed by the hub.
type APIHandlers struct {
	hub *core.Hub
	log *zerolog.Logger
}

// NewAPIHandlers creates a new API handlers instance.
func NewAPIHandlers(hub *core.Hub, logger *zerolog.Logger) *APIHandlers {
	return &APIHandlers{
		hub: hub,
		log: logger,
	}
}

// ErrorResponse represents an error response body.
type ErrorResponse struct {
	Error string `json:"error"`
}

// PresenceResponse lists the users with a live connection on this process.
type PresenceResponse struct {
	Count int      `json:"count"`
	Users []string `json:"users"`
}

// HistoryQuery are the query parameters of the history endpoint. Limit is a pointer
// so an explicit limit=0 is rejected while an absent limit means the store default.
type HistoryQuery struct {
	User  string `form:"user" binding:"required"`
	Peer  string `form:"peer" binding:"required"`
	Limit *int   `form:"limit" binding:"omitempty,min=1,max=500"`
}

// HistoryResponse wraps the conversation, oldest message first.
type HistoryResponse struct {
	Chats []proto.Chat `json:"chats"`
}

// Presence lists online users.
// GET /api/presence
func (h *APIHandlers) Presence(c *gin.Context) {
	users, err := h.hub.OnlineUsers()
	if err != nil {
		h.log.Error().Err(err).Msg("failed to list online users")
		c.JSON(http.StatusServiceUnavailable, ErrorResponse{Error: "service unavailable"})
		return
	}
	if users == nil {
		users = []string{}
	}

	c.JSON(http.StatusOK, PresenceResponse{Count: len(users), Users: users})
}

// History returns the messages exchanged by two users.
// GET /api/chat/history?user=<id>&peer=<id>&limit=<n>
func (h *APIHandlers) History(c *gin.Context) {
	var q HistoryQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		h.log.Debug().Err(err).Msg("invalid history query")
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "user and peer are required, limit must be between 1 and 500"})
		return
	}

	messages, err := h.hub.History(c.Request.Context(), q.User, q.Peer, lo.FromPtr(q.Limit))
	if err != nil {
		h.log.Error().Err(err).Str("user_id", q.User).Str("peer_id", q.Peer).Msg("failed to load chat history")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return
	}

	c.JSON(http.StatusOK, HistoryResponse{
		Chats: lo.Map(messages, func(m core.Message, _ int) proto.Chat { return chatFromMessage(m) }),
	})
}
