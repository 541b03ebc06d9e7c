package gateway_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xtendplex/chat-server/internal/domain/message"
	"github.com/xtendplex/chat-server/internal/domain/reaction"
	"github.com/xtendplex/chat-server/internal/domain/room"
	"github.com/xtendplex/chat-server/internal/gateway"
	"github.com/xtendplex/chat-server/internal/infrastructure/identity"
	"github.com/xtendplex/chat-server/internal/infrastructure/repository/inmemory"
	"github.com/xtendplex/chat-server/pkg/protocol"
	"github.com/xtendplex/chat-server/pkg/testhelpers"
)

const testSecret = "gateway-test-secret"

type testServer struct {
	server *httptest.Server
	rooms  *room.Service
}

// newTestServer runs a gateway over httptest with in-memory storage,
// seeded with alice, bob and mallory and a group room for alice+bob.
func newTestServer(t *testing.T) (*testServer, string) {
	t.Helper()

	users := testhelpers.SeedUsers("alice", "bob", "mallory")
	roomRepo := inmemory.NewRoomRepository()
	msgRepo := inmemory.NewMessageRepository()

	roomSvc, err := room.NewService(roomRepo, users, 64, zerolog.Nop())
	require.NoError(t, err)
	msgSvc := message.NewService(msgRepo, roomRepo, users, 0, zerolog.Nop())
	reactSvc := reaction.NewService(inmemory.NewReactionRepository(), msgRepo, roomRepo, users, zerolog.Nop())

	gw := gateway.New(gateway.Config{
		HandshakeTimeout: 2 * time.Second,
		PongTimeout:      5 * time.Second,
	}, identity.NewHMACValidator(testSecret), users, roomSvc, msgSvc, reactSvc, zerolog.Nop())

	server := httptest.NewServer(http.HandlerFunc(gw.HandleWS))
	t.Cleanup(server.Close)

	created, err := roomSvc.CreateGroup(context.Background(), "alice", "general", []string{"bob"})
	require.NoError(t, err)

	return &testServer{server: server, rooms: roomSvc}, created.ID
}

func dial(t *testing.T, ts *testServer) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(ts.server.URL, "http")
	sock, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { sock.Close() })
	return sock
}

func send(t *testing.T, sock *websocket.Conn, eventType protocol.EventType, payload any) {
	t.Helper()
	frame, err := protocol.Encode(eventType, payload)
	require.NoError(t, err)
	require.NoError(t, sock.WriteMessage(websocket.TextMessage, frame))
}

// recv reads frames until one of the wanted types arrives.
func recv(t *testing.T, sock *websocket.Conn, want ...protocol.EventType) protocol.Envelope {
	t.Helper()
	sock.SetReadDeadline(time.Now().Add(3 * time.Second))
	for {
		_, data, err := sock.ReadMessage()
		require.NoError(t, err)
		env, err := protocol.Decode(data)
		require.NoError(t, err)
		for _, w := range want {
			if env.Type == w {
				return env
			}
		}
	}
}

func authenticate(t *testing.T, sock *websocket.Conn, userID string) {
	t.Helper()
	token := testhelpers.MustMintToken(testSecret, userID, time.Minute)
	send(t, sock, protocol.EventAuthenticate, protocol.AuthenticatePayload{Token: token})
	env := recv(t, sock, protocol.EventAuthenticated, protocol.EventAuthError)
	require.Equal(t, protocol.EventAuthenticated, env.Type)
}

// join subscribes the connection and waits for the ack, so broadcasts
// sent afterwards are guaranteed to reach it.
func join(t *testing.T, sock *websocket.Conn, roomID string) {
	t.Helper()
	send(t, sock, protocol.EventJoinRoom, protocol.JoinRoomPayload{RoomID: roomID})
	env := recv(t, sock, protocol.EventRoomJoined, protocol.EventError)
	require.Equal(t, protocol.EventRoomJoined, env.Type)
	payload, err := protocol.DecodePayload[protocol.RoomJoinedPayload](env)
	require.NoError(t, err)
	require.Equal(t, roomID, payload.RoomID)
}

func TestAuthenticateReturnsProfile(t *testing.T) {
	ts, _ := newTestServer(t)
	sock := dial(t, ts)

	token := testhelpers.MustMintToken(testSecret, "alice", time.Minute)
	send(t, sock, protocol.EventAuthenticate, protocol.AuthenticatePayload{Token: token})

	env := recv(t, sock, protocol.EventAuthenticated, protocol.EventAuthError)
	require.Equal(t, protocol.EventAuthenticated, env.Type)
	payload, err := protocol.DecodePayload[protocol.AuthenticatedPayload](env)
	require.NoError(t, err)
	assert.Equal(t, "alice", payload.User.ID)
}

func TestAuthenticateRejectsBadToken(t *testing.T) {
	ts, _ := newTestServer(t)
	sock := dial(t, ts)

	send(t, sock, protocol.EventAuthenticate, protocol.AuthenticatePayload{Token: "garbage"})
	env := recv(t, sock, protocol.EventAuthenticated, protocol.EventAuthError)
	assert.Equal(t, protocol.EventAuthError, env.Type)
}

func TestAuthenticateRejectsExpiredToken(t *testing.T) {
	ts, _ := newTestServer(t)
	sock := dial(t, ts)

	token := testhelpers.MustMintToken(testSecret, "alice", -time.Minute)
	send(t, sock, protocol.EventAuthenticate, protocol.AuthenticatePayload{Token: token})
	env := recv(t, sock, protocol.EventAuthenticated, protocol.EventAuthError)
	assert.Equal(t, protocol.EventAuthError, env.Type)
}

func TestEventsRequireAuthentication(t *testing.T) {
	ts, roomID := newTestServer(t)
	sock := dial(t, ts)

	send(t, sock, protocol.EventJoinRoom, protocol.JoinRoomPayload{RoomID: roomID})
	env := recv(t, sock, protocol.EventAuthError)
	assert.Equal(t, protocol.EventAuthError, env.Type)
}

func TestNonMemberJoinRejected(t *testing.T) {
	ts, roomID := newTestServer(t)
	sock := dial(t, ts)
	authenticate(t, sock, "mallory")

	send(t, sock, protocol.EventJoinRoom, protocol.JoinRoomPayload{RoomID: roomID})
	env := recv(t, sock, protocol.EventError)
	payload, err := protocol.DecodePayload[protocol.ErrorPayload](env)
	require.NoError(t, err)
	assert.Equal(t, "forbidden_error", payload.Type)
}

func TestJoinRoomAcknowledged(t *testing.T) {
	ts, roomID := newTestServer(t)
	sock := dial(t, ts)
	authenticate(t, sock, "alice")

	// Joining is idempotent; each join_room gets its own ack.
	join(t, sock, roomID)
	join(t, sock, roomID)
}

func TestSendMessageBroadcastToAllSubscribers(t *testing.T) {
	ts, roomID := newTestServer(t)

	alice := dial(t, ts)
	authenticate(t, alice, "alice")
	join(t, alice, roomID)

	bob := dial(t, ts)
	authenticate(t, bob, "bob")
	join(t, bob, roomID)

	send(t, alice, protocol.EventSendMessage, protocol.SendMessagePayload{
		RoomID:  roomID,
		Content: "hello room",
	})

	for _, sock := range []*websocket.Conn{alice, bob} {
		env := recv(t, sock, protocol.EventMessage)
		m, err := protocol.DecodePayload[protocol.Message](env)
		require.NoError(t, err)
		assert.Equal(t, "hello room", m.Content)
		assert.Equal(t, "alice", m.UserID)
		require.NotNil(t, m.Author, "broadcast message must be hydrated")
		assert.Equal(t, "alice", m.Author.Username)
	}
}

func TestSendEmptyMessageRejected(t *testing.T) {
	ts, roomID := newTestServer(t)
	sock := dial(t, ts)
	authenticate(t, sock, "alice")
	join(t, sock, roomID)

	send(t, sock, protocol.EventSendMessage, protocol.SendMessagePayload{
		RoomID:  roomID,
		Content: "   ",
	})
	env := recv(t, sock, protocol.EventError, protocol.EventMessage)
	require.Equal(t, protocol.EventError, env.Type)
	payload, err := protocol.DecodePayload[protocol.ErrorPayload](env)
	require.NoError(t, err)
	assert.Equal(t, "validation_error", payload.Type)
}

func TestMessageOrderPreservedWithinRoom(t *testing.T) {
	ts, roomID := newTestServer(t)

	alice := dial(t, ts)
	authenticate(t, alice, "alice")
	join(t, alice, roomID)

	const n = 10
	for i := 0; i < n; i++ {
		send(t, alice, protocol.EventSendMessage, protocol.SendMessagePayload{
			RoomID:  roomID,
			Content: "msg",
		})
	}

	var lastID string
	for i := 0; i < n; i++ {
		env := recv(t, alice, protocol.EventMessage)
		m, err := protocol.DecodePayload[protocol.Message](env)
		require.NoError(t, err)
		assert.Greater(t, m.ID, lastID, "ids must be strictly increasing in delivery order")
		lastID = m.ID
	}
}

func TestReactionToggleBroadcasts(t *testing.T) {
	ts, roomID := newTestServer(t)

	alice := dial(t, ts)
	authenticate(t, alice, "alice")
	join(t, alice, roomID)

	send(t, alice, protocol.EventSendMessage, protocol.SendMessagePayload{RoomID: roomID, Content: "react"})
	m, err := protocol.DecodePayload[protocol.Message](recv(t, alice, protocol.EventMessage))
	require.NoError(t, err)

	send(t, alice, protocol.EventToggleReaction, protocol.ToggleReactionPayload{MessageID: m.ID, Emoji: "👍"})
	added := recv(t, alice, protocol.EventReactionAdded)
	r, err := protocol.DecodePayload[protocol.Reaction](added)
	require.NoError(t, err)
	assert.Equal(t, "👍", r.Emoji)
	require.NotNil(t, r.User)

	send(t, alice, protocol.EventToggleReaction, protocol.ToggleReactionPayload{MessageID: m.ID, Emoji: "👍"})
	removed := recv(t, alice, protocol.EventReactionRemoved)
	rp, err := protocol.DecodePayload[protocol.ReactionRemovedPayload](removed)
	require.NoError(t, err)
	assert.Equal(t, m.ID, rp.MessageID)
	assert.Equal(t, "alice", rp.UserID)
}

func TestTypingRelayedToOthersOnly(t *testing.T) {
	ts, roomID := newTestServer(t)

	alice := dial(t, ts)
	authenticate(t, alice, "alice")
	join(t, alice, roomID)

	bob := dial(t, ts)
	authenticate(t, bob, "bob")
	join(t, bob, roomID)

	send(t, alice, protocol.EventTyping, protocol.TypingPayload{RoomID: roomID})

	env := recv(t, bob, protocol.EventUserTyping)
	payload, err := protocol.DecodePayload[protocol.UserTypingPayload](env)
	require.NoError(t, err)
	assert.Equal(t, "alice", payload.UserID)
	assert.Equal(t, roomID, payload.RoomID)

	// Alice must not receive her own typing relay; the next frame she
	// sees should be the message broadcast below, not user_typing.
	send(t, alice, protocol.EventSendMessage, protocol.SendMessagePayload{RoomID: roomID, Content: "done"})
	after := recv(t, alice, protocol.EventMessage, protocol.EventUserTyping)
	assert.Equal(t, protocol.EventMessage, after.Type)
}

func TestUpdateAndDeleteBroadcast(t *testing.T) {
	ts, roomID := newTestServer(t)

	alice := dial(t, ts)
	authenticate(t, alice, "alice")
	join(t, alice, roomID)

	send(t, alice, protocol.EventSendMessage, protocol.SendMessagePayload{RoomID: roomID, Content: "v1"})
	m, err := protocol.DecodePayload[protocol.Message](recv(t, alice, protocol.EventMessage))
	require.NoError(t, err)

	send(t, alice, protocol.EventUpdateMessage, protocol.UpdateMessagePayload{MessageID: m.ID, Content: "v2"})
	updated, err := protocol.DecodePayload[protocol.Message](recv(t, alice, protocol.EventMessageUpdate))
	require.NoError(t, err)
	assert.Equal(t, "v2", updated.Content)
	assert.True(t, updated.Edited)

	send(t, alice, protocol.EventDeleteMessage, protocol.DeleteMessagePayload{MessageID: m.ID})
	deleted, err := protocol.DecodePayload[protocol.MessageDeletePayload](recv(t, alice, protocol.EventMessageDelete))
	require.NoError(t, err)
	assert.Equal(t, m.ID, deleted.MessageID)
	assert.Equal(t, roomID, deleted.RoomID)
}
