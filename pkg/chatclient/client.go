// Package chatclient is the client half of the realtime sync layer: a
// reconnecting websocket client with in-band authentication, room
// re-join on reconnect, a multi-subscriber event bus and idempotent
// timeline reconciliation.
package chatclient

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/xtendplex/chat-server/internal/utils/apperrors"
	"github.com/xtendplex/chat-server/pkg/protocol"
	"github.com/xtendplex/chat-server/pkg/retry"
)

// State is the connection manager state.
type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateAwaitingAuth
	StateAuthenticated
	StateReconnecting
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateAwaitingAuth:
		return "awaiting_auth"
	case StateAuthenticated:
		return "authenticated"
	case StateReconnecting:
		return "reconnecting"
	default:
		return "unknown"
	}
}

// Config carries the client settings.
type Config struct {
	// URL is the websocket endpoint, e.g. ws://host:8090/ws.
	URL     string
	Session *SessionStore
	// HandshakeTimeout bounds dial plus in-band authentication.
	HandshakeTimeout time.Duration
	// Reconnect is the backoff policy for automatic reconnects.
	Reconnect retry.Policy
	// Backfill, when set, is called for every joined room after each
	// successful handshake with the last message id seen in that room.
	// Fetched messages are merged into the room's Timeline.
	Backfill func(ctx context.Context, roomID, afterID string) ([]*protocol.Message, error)
	Logger   zerolog.Logger
	Dialer   *websocket.Dialer
}

// Client is the connection manager. All socket events are delivered
// sequentially through the dispatcher, in arrival order.
type Client struct {
	cfg    Config
	events *Dispatcher
	typing *TypingMonitor

	// writeMu serializes frame writes; gorilla connections allow only
	// one concurrent writer.
	writeMu sync.Mutex

	mu             sync.Mutex
	state          State
	sock           *websocket.Conn
	rooms          map[string]struct{}
	timelines      map[string]*Timeline
	lastSeen       map[string]string
	attempt        int
	reconnectTimer *time.Timer
	closed         bool
	connecting     bool
}

// New builds a client. Connect must be called to open the transport.
func New(cfg Config) *Client {
	if cfg.HandshakeTimeout == 0 {
		cfg.HandshakeTimeout = 10 * time.Second
	}
	if cfg.Reconnect.MaxAttempts == 0 {
		cfg.Reconnect = retry.ReconnectPolicy()
	}
	if cfg.Dialer == nil {
		cfg.Dialer = websocket.DefaultDialer
	}
	c := &Client{
		cfg:       cfg,
		events:    NewDispatcher(),
		rooms:     make(map[string]struct{}),
		timelines: make(map[string]*Timeline),
		lastSeen:  make(map[string]string),
	}
	c.typing = NewTypingMonitor(4*time.Second, c.events)
	return c
}

// On subscribes a handler to one event type. Returns the unsubscribe
// function.
func (c *Client) On(t protocol.EventType, h Handler) func() {
	return c.events.Subscribe(t, h)
}

// State returns the current connection state.
func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Timeline returns the reconciled message timeline for a room,
// creating it on first use.
func (c *Client) Timeline(roomID string) *Timeline {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.timelineLocked(roomID)
}

func (c *Client) timelineLocked(roomID string) *Timeline {
	tl, ok := c.timelines[roomID]
	if !ok {
		tl = NewTimeline()
		c.timelines[roomID] = tl
	}
	return tl
}

// TypingStates returns the aggregator tracking who is typing where.
func (c *Client) TypingStates() *TypingMonitor { return c.typing }

// Connect opens the transport and runs the handshake. It is a no-op
// while a connect is already in flight or the client is authenticated.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return apperrors.New(apperrors.KindValidation, "client is closed")
	}
	if c.connecting || c.state == StateConnecting || c.state == StateAwaitingAuth || c.state == StateAuthenticated {
		c.mu.Unlock()
		return nil
	}
	c.connecting = true
	c.state = StateConnecting
	c.mu.Unlock()

	err := c.runHandshake(ctx)

	c.mu.Lock()
	c.connecting = false
	c.mu.Unlock()
	return err
}

// runHandshake dials, authenticates in-band and, on success, starts
// the read loop and re-joins rooms.
func (c *Client) runHandshake(ctx context.Context) error {
	dialCtx, cancel := context.WithTimeout(ctx, c.cfg.HandshakeTimeout)
	defer cancel()

	sock, _, err := c.cfg.Dialer.DialContext(dialCtx, c.cfg.URL, nil)
	if err != nil {
		c.mu.Lock()
		if c.attempt > 0 {
			c.state = StateReconnecting
		} else {
			c.state = StateDisconnected
		}
		c.mu.Unlock()
		return apperrors.Wrap(apperrors.KindTransient, "dial failed", err)
	}

	c.mu.Lock()
	c.sock = sock
	c.state = StateAwaitingAuth
	c.mu.Unlock()

	env, err := c.authenticate(sock, c.cfg.Session.Token())
	if err == nil && env.Type == protocol.EventAuthError {
		// One silent refresh-and-retry covers the expired token case.
		var token string
		token, err = c.cfg.Session.Refresh(ctx)
		if err == nil {
			env, err = c.authenticate(sock, token)
		}
	}
	if err == nil && env.Type == protocol.EventAuthError {
		payload, decodeErr := protocol.DecodePayload[protocol.ErrorPayload](env)
		if decodeErr != nil {
			err = apperrors.New(apperrors.KindAuth, "authentication rejected")
		} else {
			err = apperrors.New(apperrors.KindAuth, payload.Message)
		}
	}
	if err != nil {
		sock.Close()
		terminal := apperrors.KindOf(err) == apperrors.KindAuth
		c.mu.Lock()
		c.sock = nil
		if terminal || c.attempt == 0 {
			c.state = StateDisconnected
		} else {
			c.state = StateReconnecting
		}
		c.mu.Unlock()
		// Disconnected is reserved for giving up. An auth failure here is
		// final (the refresh already ran); transient handshake failures
		// feed the reconnect cycle instead.
		if terminal {
			c.events.Dispatch(protocol.Envelope{Type: EventDisconnected})
		}
		return err
	}

	c.mu.Lock()
	c.state = StateAuthenticated
	c.attempt = 0
	rooms := make([]string, 0, len(c.rooms))
	for id := range c.rooms {
		rooms = append(rooms, id)
	}
	c.mu.Unlock()

	// Subscriptions do not survive the transport; re-issue every join.
	for _, roomID := range rooms {
		c.sendEnvelope(protocol.EventJoinRoom, protocol.JoinRoomPayload{RoomID: roomID})
	}
	c.backfill(ctx, rooms)

	go c.readLoop(sock)

	c.events.Dispatch(env)
	c.events.Dispatch(protocol.Envelope{Type: EventConnected})
	return nil
}

// authenticate sends the handshake and reads frames until an auth
// verdict arrives.
func (c *Client) authenticate(sock *websocket.Conn, token string) (protocol.Envelope, error) {
	frame, err := protocol.Encode(protocol.EventAuthenticate, protocol.AuthenticatePayload{Token: token})
	if err != nil {
		return protocol.Envelope{}, err
	}
	deadline := time.Now().Add(c.cfg.HandshakeTimeout)
	sock.SetWriteDeadline(deadline)
	if err := sock.WriteMessage(websocket.TextMessage, frame); err != nil {
		return protocol.Envelope{}, apperrors.Wrap(apperrors.KindTransient, "handshake write failed", err)
	}

	sock.SetReadDeadline(deadline)
	defer sock.SetReadDeadline(time.Time{})
	for {
		_, data, err := sock.ReadMessage()
		if err != nil {
			return protocol.Envelope{}, apperrors.Wrap(apperrors.KindTransient, "handshake read failed", err)
		}
		env, err := protocol.Decode(data)
		if err != nil {
			continue
		}
		if env.Type == protocol.EventAuthenticated || env.Type == protocol.EventAuthError {
			return env, nil
		}
	}
}

func (c *Client) backfill(ctx context.Context, rooms []string) {
	if c.cfg.Backfill == nil {
		return
	}
	for _, roomID := range rooms {
		c.mu.Lock()
		afterID := c.lastSeen[roomID]
		tl := c.timelineLocked(roomID)
		c.mu.Unlock()

		msgs, err := c.cfg.Backfill(ctx, roomID, afterID)
		if err != nil {
			c.cfg.Logger.Warn().Err(err).Str("room_id", roomID).Msg("backfill failed")
			continue
		}
		for _, m := range msgs {
			tl.Add(m)
			c.noteSeen(roomID, m.ID)
		}
	}
}

func (c *Client) readLoop(sock *websocket.Conn) {
	for {
		_, data, err := sock.ReadMessage()
		if err != nil {
			c.onTransportClosed(sock)
			return
		}
		env, decodeErr := protocol.Decode(data)
		if decodeErr != nil {
			c.cfg.Logger.Debug().Err(decodeErr).Msg("dropping malformed frame")
			continue
		}
		c.apply(env)
		c.events.Dispatch(env)
	}
}

// apply folds server events into the local timelines before handlers
// observe them.
func (c *Client) apply(env protocol.Envelope) {
	switch env.Type {
	case protocol.EventMessage:
		m, err := protocol.DecodePayload[protocol.Message](env)
		if err != nil {
			return
		}
		c.Timeline(m.RoomID).Add(&m)
		c.noteSeen(m.RoomID, m.ID)
	case protocol.EventMessageUpdate:
		m, err := protocol.DecodePayload[protocol.Message](env)
		if err != nil {
			return
		}
		c.Timeline(m.RoomID).ApplyUpdate(&m)
	case protocol.EventMessageDelete:
		payload, err := protocol.DecodePayload[protocol.MessageDeletePayload](env)
		if err != nil {
			return
		}
		c.Timeline(payload.RoomID).ApplyDelete(payload.MessageID)
	case protocol.EventUserTyping:
		payload, err := protocol.DecodePayload[protocol.UserTypingPayload](env)
		if err != nil {
			return
		}
		c.typing.Observe(payload.RoomID, payload.UserID, payload.Username)
	}
}

func (c *Client) noteSeen(roomID, messageID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if messageID > c.lastSeen[roomID] {
		c.lastSeen[roomID] = messageID
	}
}

// onTransportClosed handles an unexpected close: transition to
// Reconnecting and schedule the next attempt with backoff.
func (c *Client) onTransportClosed(sock *websocket.Conn) {
	c.mu.Lock()
	if c.sock != sock {
		// A newer connection already replaced this one.
		c.mu.Unlock()
		return
	}
	c.sock = nil
	if c.closed {
		c.state = StateDisconnected
		c.mu.Unlock()
		return
	}
	c.state = StateReconnecting
	c.attempt++
	attempt := c.attempt
	exhausted := attempt > c.cfg.Reconnect.MaxAttempts
	if exhausted {
		c.state = StateDisconnected
	}
	c.mu.Unlock()

	if exhausted {
		c.cfg.Logger.Error().Int("attempts", attempt-1).Msg("reconnect attempts exhausted")
		c.events.Dispatch(protocol.Envelope{Type: EventDisconnected})
		return
	}

	delay := c.cfg.Reconnect.Delay(attempt)
	c.cfg.Logger.Info().Dur("delay", delay).Int("attempt", attempt).Msg("scheduling reconnect")

	c.mu.Lock()
	c.reconnectTimer = time.AfterFunc(delay, func() {
		c.mu.Lock()
		if c.closed {
			c.mu.Unlock()
			return
		}
		c.connecting = true
		c.state = StateConnecting
		c.mu.Unlock()

		err := c.runHandshake(context.Background())

		c.mu.Lock()
		c.connecting = false
		c.mu.Unlock()

		if err != nil {
			if apperrors.KindOf(err) == apperrors.KindAuth {
				// Refresh already failed inside the handshake; the
				// application must re-authenticate.
				return
			}
			c.onTransportClosed(nil)
		}
	})
	c.mu.Unlock()
}

// Disconnect tears the client down. Idempotent; cancels any pending
// reconnect timer.
func (c *Client) Disconnect() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.state = StateDisconnected
	if c.reconnectTimer != nil {
		c.reconnectTimer.Stop()
		c.reconnectTimer = nil
	}
	sock := c.sock
	c.sock = nil
	c.mu.Unlock()

	if sock != nil {
		sock.Close()
	}
	c.typing.Stop()
	c.events.Dispatch(protocol.Envelope{Type: EventDisconnected})
}

// JoinRoom subscribes to a room. The subscription is remembered and
// re-issued after every reconnect.
func (c *Client) JoinRoom(roomID string) error {
	c.mu.Lock()
	c.rooms[roomID] = struct{}{}
	authenticated := c.state == StateAuthenticated
	c.mu.Unlock()
	if !authenticated {
		return nil
	}
	return c.sendEnvelope(protocol.EventJoinRoom, protocol.JoinRoomPayload{RoomID: roomID})
}

// SendMessage submits a message to a room.
func (c *Client) SendMessage(roomID, content string, parentID *string, attachments []protocol.AttachmentInput) error {
	return c.sendEnvelope(protocol.EventSendMessage, protocol.SendMessagePayload{
		RoomID:      roomID,
		Content:     content,
		ParentID:    parentID,
		Attachments: attachments,
	})
}

// UpdateMessage edits one of the caller's messages.
func (c *Client) UpdateMessage(messageID, content string) error {
	return c.sendEnvelope(protocol.EventUpdateMessage, protocol.UpdateMessagePayload{
		MessageID: messageID,
		Content:   content,
	})
}

// DeleteMessage removes one of the caller's messages.
func (c *Client) DeleteMessage(messageID string) error {
	return c.sendEnvelope(protocol.EventDeleteMessage, protocol.DeleteMessagePayload{MessageID: messageID})
}

// ToggleReaction flips the caller's reaction on a message.
func (c *Client) ToggleReaction(messageID, emoji string) error {
	return c.sendEnvelope(protocol.EventToggleReaction, protocol.ToggleReactionPayload{
		MessageID: messageID,
		Emoji:     emoji,
	})
}

// Typing signals local input activity in a room. Calls are debounced;
// at most one typing event per interval reaches the wire.
func (c *Client) Typing(roomID string) error {
	if !c.typing.shouldSend(roomID) {
		return nil
	}
	return c.sendEnvelope(protocol.EventTyping, protocol.TypingPayload{RoomID: roomID})
}

func (c *Client) sendEnvelope(t protocol.EventType, payload any) error {
	frame, err := protocol.Encode(t, payload)
	if err != nil {
		return err
	}

	c.mu.Lock()
	sock := c.sock
	state := c.state
	c.mu.Unlock()
	if sock == nil || state != StateAuthenticated {
		return apperrors.New(apperrors.KindValidation, fmt.Sprintf("cannot send %s while %s", t, state))
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := sock.WriteMessage(websocket.TextMessage, frame); err != nil {
		return apperrors.Wrap(apperrors.KindTransient, "write failed", err)
	}
	return nil
}
