package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/xtendplex/chat-server/internal/domain/message"
	"github.com/xtendplex/chat-server/internal/interfaces/httpserver/middlewares"
	"github.com/xtendplex/chat-server/internal/utils/apperrors"
)

// MessageHandler serves the backfill endpoint clients use to catch up
// after a reconnect.
type MessageHandler struct {
	messages     *message.Service
	defaultLimit int
}

func NewMessageHandler(messages *message.Service, defaultLimit int) *MessageHandler {
	return &MessageHandler{messages: messages, defaultLimit: defaultLimit}
}

// ListAfter returns messages in a room with id greater than the given
// cursor, ordered by (created_at, id). The cursor is the last message
// id the client already holds; an empty cursor starts from the top.
func (h *MessageHandler) ListAfter(c *gin.Context) {
	limit := h.defaultLimit
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			respondError(c, apperrors.New(apperrors.KindValidation, "limit must be a positive integer"))
			return
		}
		if parsed < limit {
			limit = parsed
		}
	}

	msgs, err := h.messages.ListAfter(c.Request.Context(), middlewares.UserID(c), c.Param("id"), c.Query("after"), limit)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"messages": msgs})
}
