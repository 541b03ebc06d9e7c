// Package handlers holds the REST handlers behind the versioned routes.
package handlers

import (
	"github.com/xtendplex/chat-server/internal/domain/message"
	"github.com/xtendplex/chat-server/internal/domain/room"
	"github.com/xtendplex/chat-server/internal/domain/user"
)

// Provider wires all HTTP handlers for dependency injection.
type Provider struct {
	Rooms    *RoomHandler
	Messages *MessageHandler
	Users    *UserHandler
}

// NewProvider constructs the handler provider with domain services.
func NewProvider(rooms *room.Service, messages *message.Service, users user.Repository, backfillLimit int) *Provider {
	return &Provider{
		Rooms:    NewRoomHandler(rooms),
		Messages: NewMessageHandler(messages, backfillLimit),
		Users:    NewUserHandler(users),
	}
}
