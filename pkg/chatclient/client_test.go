package chatclient_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xtendplex/chat-server/internal/domain/message"
	"github.com/xtendplex/chat-server/internal/domain/reaction"
	"github.com/xtendplex/chat-server/internal/domain/room"
	"github.com/xtendplex/chat-server/internal/gateway"
	"github.com/xtendplex/chat-server/internal/infrastructure/identity"
	"github.com/xtendplex/chat-server/internal/infrastructure/repository/inmemory"
	"github.com/xtendplex/chat-server/pkg/chatclient"
	"github.com/xtendplex/chat-server/pkg/protocol"
	"github.com/xtendplex/chat-server/pkg/retry"
	"github.com/xtendplex/chat-server/pkg/testhelpers"
)

const clientTestSecret = "chatclient-test-secret"

type testEnv struct {
	server   *httptest.Server
	url      string
	roomID   string
	messages *message.Service
}

// newGateway spins up a full gateway over httptest with in-memory
// storage and a seeded room for alice+bob.
func newGateway(t *testing.T) *testEnv {
	t.Helper()

	users := testhelpers.SeedUsers("alice", "bob")
	roomRepo := inmemory.NewRoomRepository()
	msgRepo := inmemory.NewMessageRepository()

	roomSvc, err := room.NewService(roomRepo, users, 64, zerolog.Nop())
	require.NoError(t, err)
	msgSvc := message.NewService(msgRepo, roomRepo, users, 0, zerolog.Nop())
	reactSvc := reaction.NewService(inmemory.NewReactionRepository(), msgRepo, roomRepo, users, zerolog.Nop())

	gw := gateway.New(gateway.Config{
		HandshakeTimeout: 2 * time.Second,
	}, identity.NewHMACValidator(clientTestSecret), users, roomSvc, msgSvc, reactSvc, zerolog.Nop())

	server := httptest.NewServer(http.HandlerFunc(gw.HandleWS))
	t.Cleanup(server.Close)

	created, err := roomSvc.CreateGroup(context.Background(), "alice", "general", []string{"bob"})
	require.NoError(t, err)

	return &testEnv{
		server:   server,
		url:      "ws" + strings.TrimPrefix(server.URL, "http"),
		roomID:   created.ID,
		messages: msgSvc,
	}
}

func newClient(t *testing.T, url, userID string, refresher chatclient.Refresher) *chatclient.Client {
	t.Helper()
	token := testhelpers.MustMintToken(clientTestSecret, userID, time.Minute)
	if refresher == nil {
		refresher = &fakeRefresher{err: chatclient.ErrRefreshFailed}
	}
	c := chatclient.New(chatclient.Config{
		URL:              url,
		Session:          chatclient.NewSessionStore(refresher, token, "refresh-token"),
		HandshakeTimeout: 2 * time.Second,
		Logger:           zerolog.Nop(),
	})
	t.Cleanup(c.Disconnect)
	return c
}

func waitFor(t *testing.T, ch <-chan protocol.Envelope, what string) protocol.Envelope {
	t.Helper()
	select {
	case env := <-ch:
		return env
	case <-time.After(3 * time.Second):
		t.Fatalf("timed out waiting for %s", what)
		return protocol.Envelope{}
	}
}

func TestConnectAuthenticates(t *testing.T) {
	env := newGateway(t)
	c := newClient(t, env.url, "alice", nil)

	connected := make(chan protocol.Envelope, 1)
	c.On(chatclient.EventConnected, func(env protocol.Envelope) { connected <- env })

	require.NoError(t, c.Connect(context.Background()))
	waitFor(t, connected, "connected event")
	assert.Equal(t, chatclient.StateAuthenticated, c.State())

	// A second Connect while authenticated is a no-op.
	require.NoError(t, c.Connect(context.Background()))
}

func TestMessagesFlowIntoTimeline(t *testing.T) {
	env := newGateway(t)

	alice := newClient(t, env.url, "alice", nil)
	require.NoError(t, alice.Connect(context.Background()))
	require.NoError(t, alice.JoinRoom(env.roomID))

	bob := newClient(t, env.url, "bob", nil)
	joined := make(chan protocol.Envelope, 1)
	bob.On(protocol.EventRoomJoined, func(env protocol.Envelope) { joined <- env })
	received := make(chan protocol.Envelope, 4)
	bob.On(protocol.EventMessage, func(env protocol.Envelope) { received <- env })
	require.NoError(t, bob.Connect(context.Background()))
	require.NoError(t, bob.JoinRoom(env.roomID))
	waitFor(t, joined, "bob's join ack")

	require.NoError(t, bob.SendMessage(env.roomID, "ready", nil, nil))
	waitFor(t, received, "bob's own message")

	require.NoError(t, alice.SendMessage(env.roomID, "hello bob", nil, nil))
	env2 := waitFor(t, received, "alice's message")
	m, err := protocol.DecodePayload[protocol.Message](env2)
	require.NoError(t, err)
	assert.Equal(t, "hello bob", m.Content)

	require.Eventually(t, func() bool {
		return bob.Timeline(env.roomID).Len() == 2
	}, 2*time.Second, 20*time.Millisecond)

	msgs := bob.Timeline(env.roomID).Messages()
	assert.Equal(t, "ready", msgs[0].Content)
	assert.Equal(t, "hello bob", msgs[1].Content)
}

func TestExpiredTokenSilentlyRefreshes(t *testing.T) {
	env := newGateway(t)

	// The stored access token is already expired; the refresher mints a
	// good one. The handshake must recover without surfacing an error.
	fresh := testhelpers.MustMintToken(clientTestSecret, "alice", time.Minute)
	refresher := &fakeRefresher{pair: chatclient.TokenPair{AccessToken: fresh, RefreshToken: "next"}}

	expired := testhelpers.MustMintToken(clientTestSecret, "alice", -time.Minute)
	c := chatclient.New(chatclient.Config{
		URL:              env.url,
		Session:          chatclient.NewSessionStore(refresher, expired, "refresh-token"),
		HandshakeTimeout: 2 * time.Second,
		Logger:           zerolog.Nop(),
	})
	t.Cleanup(c.Disconnect)

	require.NoError(t, c.Connect(context.Background()))
	assert.Equal(t, chatclient.StateAuthenticated, c.State())
	assert.Equal(t, int32(1), refresher.calls.Load(), "exactly one refresh attempt")
}

func TestFailedRefreshSurfacesAuthError(t *testing.T) {
	env := newGateway(t)

	refresher := &fakeRefresher{err: chatclient.ErrRefreshFailed}
	expired := testhelpers.MustMintToken(clientTestSecret, "alice", -time.Minute)
	c := chatclient.New(chatclient.Config{
		URL:              env.url,
		Session:          chatclient.NewSessionStore(refresher, expired, "refresh-token"),
		HandshakeTimeout: 2 * time.Second,
		Logger:           zerolog.Nop(),
	})
	t.Cleanup(c.Disconnect)

	err := c.Connect(context.Background())
	require.Error(t, err)
	assert.Equal(t, chatclient.StateDisconnected, c.State())
}

func TestReconnectRejoinsAndBackfills(t *testing.T) {
	env := newGateway(t)

	token := testhelpers.MustMintToken(clientTestSecret, "alice", time.Minute)
	var backfills atomic.Int32
	c := chatclient.New(chatclient.Config{
		URL:              env.url,
		Session:          chatclient.NewSessionStore(&fakeRefresher{err: chatclient.ErrRefreshFailed}, token, "refresh-token"),
		HandshakeTimeout: 2 * time.Second,
		Reconnect: retry.Policy{
			MaxAttempts:  10,
			InitialDelay: 20 * time.Millisecond,
			MaxDelay:     100 * time.Millisecond,
			JitterFactor: 0.2,
		},
		Backfill: func(ctx context.Context, roomID, afterID string) ([]*protocol.Message, error) {
			backfills.Add(1)
			msgs, err := env.messages.ListAfter(ctx, "alice", roomID, afterID, 50)
			if err != nil {
				return nil, err
			}
			out := make([]*protocol.Message, 0, len(msgs))
			for _, m := range msgs {
				out = append(out, &protocol.Message{
					ID:        m.ID,
					RoomID:    m.RoomID,
					UserID:    m.UserID,
					Content:   m.Content,
					CreatedAt: m.CreatedAt,
					UpdatedAt: m.UpdatedAt,
				})
			}
			return out, nil
		},
		Logger: zerolog.Nop(),
	})
	t.Cleanup(c.Disconnect)

	joined := make(chan protocol.Envelope, 4)
	c.On(protocol.EventRoomJoined, func(env protocol.Envelope) { joined <- env })
	connected := make(chan protocol.Envelope, 4)
	c.On(chatclient.EventConnected, func(env protocol.Envelope) { connected <- env })

	require.NoError(t, c.Connect(context.Background()))
	waitFor(t, connected, "initial connect")
	require.NoError(t, c.JoinRoom(env.roomID))
	waitFor(t, joined, "join ack")

	// Persist a message without broadcasting it, then sever every live
	// socket. The only way the client can ever see it is the backfill
	// after its automatic reconnect.
	_, err := env.messages.Send(context.Background(), "bob", env.roomID, "while you were away", nil, nil)
	require.NoError(t, err)
	env.server.CloseClientConnections()

	waitFor(t, connected, "automatic reconnect")
	ack, errDecode := protocol.DecodePayload[protocol.RoomJoinedPayload](waitFor(t, joined, "re-join ack"))
	require.NoError(t, errDecode)
	assert.Equal(t, env.roomID, ack.RoomID)
	assert.Equal(t, chatclient.StateAuthenticated, c.State())

	require.Eventually(t, func() bool {
		msgs := c.Timeline(env.roomID).Messages()
		return len(msgs) == 1 && msgs[0].Content == "while you were away"
	}, 3*time.Second, 20*time.Millisecond, "missed message must arrive through backfill")
	assert.GreaterOrEqual(t, backfills.Load(), int32(1))

	// The re-issued subscription is live again: a post-reconnect send
	// reaches the client over the socket.
	bob := newClient(t, env.url, "bob", nil)
	require.NoError(t, bob.Connect(context.Background()))
	require.NoError(t, bob.JoinRoom(env.roomID))
	require.NoError(t, bob.SendMessage(env.roomID, "welcome back", nil, nil))

	require.Eventually(t, func() bool {
		return c.Timeline(env.roomID).Len() == 2
	}, 3*time.Second, 20*time.Millisecond)
}

func TestDisconnectedFiresOnceWhenRetriesExhausted(t *testing.T) {
	env := newGateway(t)

	token := testhelpers.MustMintToken(clientTestSecret, "alice", time.Minute)
	c := chatclient.New(chatclient.Config{
		URL:              env.url,
		Session:          chatclient.NewSessionStore(&fakeRefresher{err: chatclient.ErrRefreshFailed}, token, "refresh-token"),
		HandshakeTimeout: time.Second,
		Reconnect: retry.Policy{
			MaxAttempts:  3,
			InitialDelay: 10 * time.Millisecond,
			MaxDelay:     30 * time.Millisecond,
		},
		Logger: zerolog.Nop(),
	})
	t.Cleanup(c.Disconnect)

	var disconnects atomic.Int32
	c.On(chatclient.EventDisconnected, func(protocol.Envelope) { disconnects.Add(1) })

	require.NoError(t, c.Connect(context.Background()))
	env.server.Close()

	// Every retry against the dead server fails; the event must fire
	// exactly once, at exhaustion, not per failed attempt.
	require.Eventually(t, func() bool {
		return disconnects.Load() == 1
	}, 5*time.Second, 20*time.Millisecond)
	time.Sleep(150 * time.Millisecond)
	assert.Equal(t, int32(1), disconnects.Load())
	assert.Equal(t, chatclient.StateDisconnected, c.State())
}

func TestDisconnectIsIdempotent(t *testing.T) {
	env := newGateway(t)
	c := newClient(t, env.url, "alice", nil)
	require.NoError(t, c.Connect(context.Background()))

	c.Disconnect()
	c.Disconnect()
	assert.Equal(t, chatclient.StateDisconnected, c.State())

	// A closed client refuses to reconnect.
	require.Error(t, c.Connect(context.Background()))
}

func TestSendWhileDisconnectedRejected(t *testing.T) {
	env := newGateway(t)
	c := newClient(t, env.url, "alice", nil)

	err := c.SendMessage(env.roomID, "too early", nil, nil)
	require.Error(t, err)
}
