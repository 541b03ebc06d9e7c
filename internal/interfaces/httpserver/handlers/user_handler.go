package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/xtendplex/chat-server/internal/domain/user"
	"github.com/xtendplex/chat-server/internal/interfaces/httpserver/middlewares"
	"github.com/xtendplex/chat-server/internal/utils/apperrors"
)

// UserHandler serves the user directory and presence updates.
type UserHandler struct {
	users user.Repository
}

func NewUserHandler(users user.Repository) *UserHandler {
	return &UserHandler{users: users}
}

type statusRequest struct {
	Status user.Status `json:"status" binding:"required"`
}

// List returns all known users.
func (h *UserHandler) List(c *gin.Context) {
	all, err := h.users.List(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"users": all})
}

// Me returns the caller's profile.
func (h *UserHandler) Me(c *gin.Context) {
	me, err := h.users.GetByID(c.Request.Context(), middlewares.UserID(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, me)
}

// UpdateStatus sets the caller's advertised presence.
func (h *UserHandler) UpdateStatus(c *gin.Context) {
	var req statusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, apperrors.Wrap(apperrors.KindValidation, "invalid status payload", err))
		return
	}
	switch req.Status {
	case user.StatusOnline, user.StatusAway, user.StatusOffline:
	default:
		respondError(c, apperrors.New(apperrors.KindValidation, "status must be online, away or offline"))
		return
	}
	if err := h.users.UpdateStatus(c.Request.Context(), middlewares.UserID(c), req.Status); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
