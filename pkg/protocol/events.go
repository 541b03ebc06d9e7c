// Package protocol defines the realtime wire format: one JSON envelope
// per event, with a closed set of event types per direction. Payloads
// are decoded and validated at the gateway boundary before any core
// logic sees them.
package protocol

import (
	"encoding/json"
	"fmt"
	"time"
)

// EventType tags an envelope.
type EventType string

// Client-to-server events.
const (
	EventAuthenticate   EventType = "authenticate"
	EventJoinRoom       EventType = "join_room"
	EventSendMessage    EventType = "send_message"
	EventUpdateMessage  EventType = "update_message"
	EventDeleteMessage  EventType = "delete_message"
	EventToggleReaction EventType = "toggle_reaction"
	EventTyping         EventType = "typing"
)

// Server-to-client events.
const (
	EventAuthenticated   EventType = "authenticated"
	EventAuthError       EventType = "auth_error"
	EventRoomJoined      EventType = "room_joined"
	EventMessage         EventType = "message"
	EventMessageUpdate   EventType = "message_update"
	EventMessageDelete   EventType = "message_delete"
	EventReactionAdded   EventType = "reaction_added"
	EventReactionRemoved EventType = "reaction_removed"
	EventUserTyping      EventType = "user_typing"
	EventError           EventType = "error"
)

// Envelope is the wire format for every realtime event.
type Envelope struct {
	Type    EventType       `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// User is the profile shape carried on the wire.
type User struct {
	ID        string    `json:"id"`
	Username  string    `json:"username"`
	Avatar    string    `json:"avatar,omitempty"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Attachment is the file metadata carried with a message.
type Attachment struct {
	ID        string `json:"id"`
	MessageID string `json:"message_id"`
	FilePath  string `json:"file_path"`
	FileType  string `json:"file_type"`
	FileName  string `json:"file_name"`
	FileSize  int64  `json:"file_size"`
}

// AttachmentInput is the client-supplied attachment descriptor; the
// server assigns ids on persist.
type AttachmentInput struct {
	FilePath string `json:"file_path"`
	FileType string `json:"file_type"`
	FileName string `json:"file_name"`
	FileSize int64  `json:"file_size"`
}

// Message is a chat message as broadcast to subscribers, hydrated with
// the author profile. The id is assigned server-side exactly once and
// is what clients deduplicate on; within a room ids sort by creation
// order.
type Message struct {
	ID          string       `json:"id"`
	RoomID      string       `json:"room_id"`
	UserID      string       `json:"user_id"`
	Content     string       `json:"content"`
	ParentID    *string      `json:"parent_id,omitempty"`
	Edited      bool         `json:"edited"`
	CreatedAt   time.Time    `json:"created_at"`
	UpdatedAt   time.Time    `json:"updated_at"`
	Author      *User        `json:"author,omitempty"`
	Attachments []Attachment `json:"attachments,omitempty"`
}

// Reaction is one (message, user, emoji) row, hydrated with the
// reactor's profile when broadcast.
type Reaction struct {
	ID        string    `json:"id"`
	MessageID string    `json:"message_id"`
	UserID    string    `json:"user_id"`
	Emoji     string    `json:"emoji"`
	CreatedAt time.Time `json:"created_at"`
	User      *User     `json:"user,omitempty"`
}

// AuthenticatePayload carries the bearer token for the handshake.
type AuthenticatePayload struct {
	Token string `json:"token"`
}

// AuthenticatedPayload confirms the handshake with the caller's profile.
type AuthenticatedPayload struct {
	User User `json:"user"`
}

// JoinRoomPayload subscribes the connection to a room.
type JoinRoomPayload struct {
	RoomID string `json:"room_id"`
}

// RoomJoinedPayload acknowledges a join. Events broadcast to the room
// after this frame are guaranteed to reach the connection.
type RoomJoinedPayload struct {
	RoomID string `json:"room_id"`
}

// SendMessagePayload submits a new message.
type SendMessagePayload struct {
	RoomID      string            `json:"room_id"`
	Content     string            `json:"content"`
	ParentID    *string           `json:"parent_id,omitempty"`
	Attachments []AttachmentInput `json:"attachments,omitempty"`
}

// UpdateMessagePayload edits an existing message.
type UpdateMessagePayload struct {
	MessageID string `json:"message_id"`
	Content   string `json:"content"`
}

// DeleteMessagePayload removes a message.
type DeleteMessagePayload struct {
	MessageID string `json:"message_id"`
}

// MessageDeletePayload announces a deletion to subscribers.
type MessageDeletePayload struct {
	MessageID string `json:"message_id"`
	RoomID    string `json:"room_id"`
}

// ToggleReactionPayload flips a reaction row.
type ToggleReactionPayload struct {
	MessageID string `json:"message_id"`
	Emoji     string `json:"emoji"`
}

// ReactionRemovedPayload announces a removed reaction.
type ReactionRemovedPayload struct {
	MessageID string `json:"message_id"`
	UserID    string `json:"user_id"`
	Emoji     string `json:"emoji"`
	RoomID    string `json:"room_id"`
}

// TypingPayload signals local input activity in a room.
type TypingPayload struct {
	RoomID string `json:"room_id"`
}

// UserTypingPayload relays typing activity to other subscribers.
type UserTypingPayload struct {
	RoomID   string `json:"room_id"`
	UserID   string `json:"user_id"`
	Username string `json:"username"`
}

// ErrorPayload surfaces a request failure on the socket.
type ErrorPayload struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// Encode wraps a payload into a marshalled envelope.
func Encode(t EventType, payload any) ([]byte, error) {
	var raw json.RawMessage
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("marshal %s payload: %w", t, err)
		}
		raw = b
	}
	return json.Marshal(Envelope{Type: t, Payload: raw})
}

// MustEncode is Encode for payloads that cannot fail to marshal.
func MustEncode(t EventType, payload any) []byte {
	b, err := Encode(t, payload)
	if err != nil {
		panic(err)
	}
	return b
}

// MustEncodePayload marshals a payload into the raw form carried by an
// envelope, for payloads that cannot fail to marshal.
func MustEncodePayload(payload any) json.RawMessage {
	b, err := json.Marshal(payload)
	if err != nil {
		panic(err)
	}
	return b
}

// Decode parses a raw frame into an envelope.
func Decode(data []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return Envelope{}, fmt.Errorf("decode envelope: %w", err)
	}
	if env.Type == "" {
		return Envelope{}, fmt.Errorf("envelope missing type")
	}
	return env, nil
}

// DecodePayload parses the envelope payload into the typed struct.
func DecodePayload[T any](env Envelope) (T, error) {
	var payload T
	if len(env.Payload) == 0 {
		return payload, fmt.Errorf("%s: missing payload", env.Type)
	}
	if err := json.Unmarshal(env.Payload, &payload); err != nil {
		return payload, fmt.Errorf("%s: decode payload: %w", env.Type, err)
	}
	return payload, nil
}
