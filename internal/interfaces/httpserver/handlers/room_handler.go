package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/xtendplex/chat-server/internal/domain/room"
	"github.com/xtendplex/chat-server/internal/interfaces/httpserver/middlewares"
	"github.com/xtendplex/chat-server/internal/utils/apperrors"
)

// RoomHandler serves room management and the direct room resolver.
type RoomHandler struct {
	rooms *room.Service
}

func NewRoomHandler(rooms *room.Service) *RoomHandler {
	return &RoomHandler{rooms: rooms}
}

type createRoomRequest struct {
	Name      string   `json:"name" binding:"required"`
	MemberIDs []string `json:"member_ids"`
}

type resolveDirectRequest struct {
	UserID string `json:"user_id" binding:"required"`
}

type renameRoomRequest struct {
	Name string `json:"name" binding:"required"`
}

type memberRequest struct {
	UserID string `json:"user_id" binding:"required"`
}

// List returns the caller's rooms ordered by recent activity.
func (h *RoomHandler) List(c *gin.Context) {
	rooms, err := h.rooms.ListForUser(c.Request.Context(), middlewares.UserID(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"rooms": rooms})
}

// Create makes a group room with the caller as admin.
func (h *RoomHandler) Create(c *gin.Context) {
	var req createRoomRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, apperrors.Wrap(apperrors.KindValidation, "invalid room payload", err))
		return
	}
	created, err := h.rooms.CreateGroup(c.Request.Context(), middlewares.UserID(c), req.Name, req.MemberIDs)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, created)
}

// Get returns one room the caller belongs to.
func (h *RoomHandler) Get(c *gin.Context) {
	got, err := h.rooms.Get(c.Request.Context(), middlewares.UserID(c), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, got)
}

// Rename changes a group room's name. Admin only.
func (h *RoomHandler) Rename(c *gin.Context) {
	var req renameRoomRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, apperrors.Wrap(apperrors.KindValidation, "invalid rename payload", err))
		return
	}
	updated, err := h.rooms.Rename(c.Request.Context(), middlewares.UserID(c), c.Param("id"), req.Name)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, updated)
}

// ResolveDirect returns the direct room between the caller and the
// given user, creating it when absent. Safe to call concurrently from
// both sides; both land on the same room.
func (h *RoomHandler) ResolveDirect(c *gin.Context) {
	var req resolveDirectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, apperrors.Wrap(apperrors.KindValidation, "invalid direct payload", err))
		return
	}
	resolved, err := h.rooms.Resolve(c.Request.Context(), middlewares.UserID(c), req.UserID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, resolved)
}

// Members lists the user ids in a room.
func (h *RoomHandler) Members(c *gin.Context) {
	ids, err := h.rooms.MemberIDs(c.Request.Context(), middlewares.UserID(c), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"member_ids": ids})
}

// AddMember adds a user to a group room. Admin only.
func (h *RoomHandler) AddMember(c *gin.Context) {
	var req memberRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, apperrors.Wrap(apperrors.KindValidation, "invalid member payload", err))
		return
	}
	if err := h.rooms.AddMember(c.Request.Context(), middlewares.UserID(c), c.Param("id"), req.UserID); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// RemoveMember removes a user from a group room. Admins can remove
// anyone; members can remove themselves.
func (h *RoomHandler) RemoveMember(c *gin.Context) {
	err := h.rooms.RemoveMember(c.Request.Context(), middlewares.UserID(c), c.Param("id"), c.Param("userID"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
