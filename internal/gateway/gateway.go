// Package gateway is the server side of the realtime sync layer: it
// owns connection lifecycles, the authenticated room registry, and
// event fan-out.
package gateway

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/xtendplex/chat-server/internal/domain/message"
	"github.com/xtendplex/chat-server/internal/domain/reaction"
	"github.com/xtendplex/chat-server/internal/domain/room"
	"github.com/xtendplex/chat-server/internal/domain/user"
	"github.com/xtendplex/chat-server/internal/infrastructure/identity"
	"github.com/xtendplex/chat-server/internal/infrastructure/metrics"
	"github.com/xtendplex/chat-server/internal/utils/apperrors"
	"github.com/xtendplex/chat-server/internal/utils/chatid"
	"github.com/xtendplex/chat-server/pkg/protocol"
)

// Config carries the gateway tunables.
type Config struct {
	HandshakeTimeout time.Duration
	WriteTimeout     time.Duration
	PongTimeout      time.Duration
	SendBuffer       int
	MaxMessageBytes  int64
	CheckOrigin      func(r *http.Request) bool
}

func (c *Config) defaults() {
	if c.HandshakeTimeout == 0 {
		c.HandshakeTimeout = 10 * time.Second
	}
	if c.WriteTimeout == 0 {
		c.WriteTimeout = 10 * time.Second
	}
	if c.PongTimeout == 0 {
		c.PongTimeout = 60 * time.Second
	}
	if c.SendBuffer == 0 {
		c.SendBuffer = 64
	}
	if c.MaxMessageBytes == 0 {
		c.MaxMessageBytes = 64 * 1024
	}
}

// Gateway accepts websocket connections and dispatches their events to
// the domain services.
type Gateway struct {
	cfg       Config
	validator identity.TokenValidator
	users     user.Repository
	rooms     *room.Service
	messages  *message.Service
	reactions *reaction.Service

	registry *Registry
	locks    *roomLocks
	presence *presenceTracker
	upgrader websocket.Upgrader
	log      zerolog.Logger
}

// New wires the gateway with its collaborators.
func New(cfg Config, validator identity.TokenValidator, users user.Repository, rooms *room.Service, messages *message.Service, reactions *reaction.Service, log zerolog.Logger) *Gateway {
	cfg.defaults()
	gw := &Gateway{
		cfg:       cfg,
		validator: validator,
		users:     users,
		rooms:     rooms,
		messages:  messages,
		reactions: reactions,
		registry:  NewRegistry(),
		locks:     newRoomLocks(),
		presence:  newPresenceTracker(),
		log:       log.With().Str("component", "gateway").Logger(),
	}
	gw.upgrader = websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin:     cfg.CheckOrigin,
	}
	return gw
}

// Registry exposes the subscriber registry so the HTTP surface can
// broadcast events for REST-initiated mutations.
func (g *Gateway) Registry() *Registry { return g.registry }

// HandleWS upgrades the request and runs the connection until the
// transport closes. The peer must complete the authentication handshake
// within the configured timeout or the connection is dropped.
func (g *Gateway) HandleWS(w http.ResponseWriter, r *http.Request) {
	sock, err := g.upgrader.Upgrade(w, r, nil)
	if err != nil {
		g.log.Debug().Err(err).Msg("websocket upgrade failed")
		return
	}

	c := &Conn{
		id:       chatid.NewConnectionID(),
		sock:     sock,
		gw:       g,
		send:     make(chan []byte, g.cfg.SendBuffer),
		done:     make(chan struct{}),
		rooms:    make(map[string]struct{}),
		lastSeen: time.Now(),
	}
	metrics.ConnectionsActive.Inc()
	g.log.Debug().Str("conn_id", c.id).Msg("connection opened")

	time.AfterFunc(g.cfg.HandshakeTimeout, func() {
		if !c.authenticated() {
			g.log.Debug().Str("conn_id", c.id).Msg("handshake timeout")
			c.close()
		}
	})

	go c.writePump()
	c.readPump()
}

func (g *Gateway) onDisconnect(c *Conn) {
	g.registry.Drop(c, c.joinedRooms())
	metrics.ConnectionsActive.Dec()

	userID := c.UserID()
	if userID != "" && g.presence.disconnect(userID) {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := g.users.UpdateStatus(ctx, userID, user.StatusOffline); err != nil {
			g.log.Warn().Err(err).Str("user_id", userID).Msg("mark offline")
		}
	}
	g.log.Debug().Str("conn_id", c.id).Str("user_id", userID).Msg("connection closed")
}

func (g *Gateway) dispatch(c *Conn, data []byte) {
	env, err := protocol.Decode(data)
	if err != nil {
		metrics.EventsReceivedTotal.WithLabelValues("invalid", "error").Inc()
		g.sendError(c, apperrors.New(apperrors.KindValidation, "malformed event"))
		return
	}

	ctx := context.Background()

	if env.Type != protocol.EventAuthenticate && !c.authenticated() {
		metrics.EventsReceivedTotal.WithLabelValues(string(env.Type), "unauthenticated").Inc()
		g.sendAuthError(c, apperrors.New(apperrors.KindAuth, "authenticate first"))
		return
	}

	var handlerErr error
	switch env.Type {
	case protocol.EventAuthenticate:
		handlerErr = g.handleAuthenticate(ctx, c, env)
	case protocol.EventJoinRoom:
		handlerErr = g.handleJoinRoom(ctx, c, env)
	case protocol.EventSendMessage:
		handlerErr = g.handleSendMessage(ctx, c, env)
	case protocol.EventUpdateMessage:
		handlerErr = g.handleUpdateMessage(ctx, c, env)
	case protocol.EventDeleteMessage:
		handlerErr = g.handleDeleteMessage(ctx, c, env)
	case protocol.EventToggleReaction:
		handlerErr = g.handleToggleReaction(ctx, c, env)
	case protocol.EventTyping:
		handlerErr = g.handleTyping(ctx, c, env)
	default:
		handlerErr = apperrors.New(apperrors.KindValidation, "unknown event type")
	}

	status := "ok"
	if handlerErr != nil {
		status = "error"
		if env.Type == protocol.EventAuthenticate {
			g.sendAuthError(c, handlerErr)
		} else {
			g.sendError(c, handlerErr)
		}
	}
	metrics.EventsReceivedTotal.WithLabelValues(string(env.Type), status).Inc()
}

func (g *Gateway) handleAuthenticate(ctx context.Context, c *Conn, env protocol.Envelope) error {
	payload, err := protocol.DecodePayload[protocol.AuthenticatePayload](env)
	if err != nil {
		return apperrors.Wrap(apperrors.KindValidation, "bad authenticate payload", err)
	}

	ident, err := g.validator.Validate(ctx, payload.Token)
	if err != nil {
		return err
	}
	profile, err := g.users.GetByID(ctx, ident.UserID)
	if err != nil {
		return apperrors.Wrap(apperrors.KindAuth, "unknown user", err)
	}

	c.bind(profile)
	if g.presence.connect(profile.ID) {
		if err := g.users.UpdateStatus(ctx, profile.ID, user.StatusOnline); err != nil {
			g.log.Warn().Err(err).Str("user_id", profile.ID).Msg("mark online")
		}
		profile.Status = user.StatusOnline
	}

	g.sendEvent(c, protocol.EventAuthenticated, protocol.AuthenticatedPayload{User: wireUser(*profile)})
	g.log.Info().Str("conn_id", c.id).Str("user_id", profile.ID).Msg("connection authenticated")
	return nil
}

func (g *Gateway) handleJoinRoom(ctx context.Context, c *Conn, env protocol.Envelope) error {
	payload, err := protocol.DecodePayload[protocol.JoinRoomPayload](env)
	if err != nil {
		return apperrors.Wrap(apperrors.KindValidation, "bad join_room payload", err)
	}
	if err := g.rooms.RequireMember(ctx, payload.RoomID, c.UserID()); err != nil {
		return err
	}
	g.registry.Join(payload.RoomID, c)
	c.trackRoom(payload.RoomID)
	// Ack after the subscription is live; the peer can rely on receiving
	// everything broadcast to the room from here on.
	g.sendEvent(c, protocol.EventRoomJoined, protocol.RoomJoinedPayload{RoomID: payload.RoomID})
	return nil
}

func (g *Gateway) handleSendMessage(ctx context.Context, c *Conn, env protocol.Envelope) error {
	payload, err := protocol.DecodePayload[protocol.SendMessagePayload](env)
	if err != nil {
		return apperrors.Wrap(apperrors.KindValidation, "bad send_message payload", err)
	}

	start := time.Now()
	// The room lock spans persist and broadcast so subscribers see
	// messages in persist order.
	unlock := g.locks.Lock(payload.RoomID)
	defer unlock()

	m, err := g.messages.Send(ctx, c.UserID(), payload.RoomID, payload.Content, payload.ParentID, attachmentInputs(payload.Attachments))
	if err != nil {
		return err
	}
	g.broadcast(payload.RoomID, protocol.EventMessage, wireMessage(m))
	metrics.SendDuration.Observe(time.Since(start).Seconds())
	return nil
}

func (g *Gateway) handleUpdateMessage(ctx context.Context, c *Conn, env protocol.Envelope) error {
	payload, err := protocol.DecodePayload[protocol.UpdateMessagePayload](env)
	if err != nil {
		return apperrors.Wrap(apperrors.KindValidation, "bad update_message payload", err)
	}
	m, err := g.messages.Update(ctx, c.UserID(), payload.MessageID, payload.Content)
	if err != nil {
		return err
	}
	g.broadcast(m.RoomID, protocol.EventMessageUpdate, wireMessage(m))
	return nil
}

func (g *Gateway) handleDeleteMessage(ctx context.Context, c *Conn, env protocol.Envelope) error {
	payload, err := protocol.DecodePayload[protocol.DeleteMessagePayload](env)
	if err != nil {
		return apperrors.Wrap(apperrors.KindValidation, "bad delete_message payload", err)
	}
	roomID, err := g.messages.Delete(ctx, c.UserID(), payload.MessageID)
	if err != nil {
		return err
	}
	g.broadcast(roomID, protocol.EventMessageDelete, protocol.MessageDeletePayload{
		MessageID: payload.MessageID,
		RoomID:    roomID,
	})
	return nil
}

func (g *Gateway) handleToggleReaction(ctx context.Context, c *Conn, env protocol.Envelope) error {
	payload, err := protocol.DecodePayload[protocol.ToggleReactionPayload](env)
	if err != nil {
		return apperrors.Wrap(apperrors.KindValidation, "bad toggle_reaction payload", err)
	}
	result, err := g.reactions.Toggle(ctx, c.UserID(), payload.MessageID, payload.Emoji)
	if err != nil {
		return err
	}
	if result.Added {
		g.broadcast(result.RoomID, protocol.EventReactionAdded, wireReaction(result.Reaction))
	} else {
		g.broadcast(result.RoomID, protocol.EventReactionRemoved, protocol.ReactionRemovedPayload{
			MessageID: result.MessageID,
			UserID:    result.UserID,
			Emoji:     result.Emoji,
			RoomID:    result.RoomID,
		})
	}
	return nil
}

func (g *Gateway) handleTyping(_ context.Context, c *Conn, env protocol.Envelope) error {
	payload, err := protocol.DecodePayload[protocol.TypingPayload](env)
	if err != nil {
		return apperrors.Wrap(apperrors.KindValidation, "bad typing payload", err)
	}
	// Typing relays only flow to rooms this connection has joined; no
	// storage round-trip, no persistence, no acknowledgment.
	if !c.inRoom(payload.RoomID) {
		return room.ErrNotAMember
	}

	profile := c.Profile()
	frame := protocol.MustEncode(protocol.EventUserTyping, protocol.UserTypingPayload{
		RoomID:   payload.RoomID,
		UserID:   profile.ID,
		Username: profile.Username,
	})
	g.registry.BroadcastExcept(payload.RoomID, frame, c)
	metrics.EventsSentTotal.WithLabelValues(string(protocol.EventUserTyping)).Inc()
	return nil
}

// broadcast encodes once and fans the frame out to the room.
func (g *Gateway) broadcast(roomID string, t protocol.EventType, payload any) {
	frame, err := protocol.Encode(t, payload)
	if err != nil {
		g.log.Error().Err(err).Str("type", string(t)).Msg("encode broadcast")
		return
	}
	g.registry.Broadcast(roomID, frame)
	metrics.EventsSentTotal.WithLabelValues(string(t)).Inc()
}

func (g *Gateway) sendEvent(c *Conn, t protocol.EventType, payload any) {
	frame, err := protocol.Encode(t, payload)
	if err != nil {
		g.log.Error().Err(err).Str("type", string(t)).Msg("encode event")
		return
	}
	c.enqueue(frame)
	metrics.EventsSentTotal.WithLabelValues(string(t)).Inc()
}

func (g *Gateway) sendError(c *Conn, err error) {
	g.sendEvent(c, protocol.EventError, protocol.ErrorPayload{
		Type:    apperrors.TypeString(apperrors.KindOf(err)),
		Message: err.Error(),
	})
}

func (g *Gateway) sendAuthError(c *Conn, err error) {
	g.sendEvent(c, protocol.EventAuthError, protocol.ErrorPayload{
		Type:    apperrors.TypeString(apperrors.KindOf(err)),
		Message: err.Error(),
	})
}

// presenceTracker reference-counts connections per user so presence only
// flips on the first connect and the last disconnect.
type presenceTracker struct {
	mu    sync.Mutex
	conns map[string]int
}

func newPresenceTracker() *presenceTracker {
	return &presenceTracker{conns: make(map[string]int)}
}

// connect returns true when this is the user's first live connection.
func (p *presenceTracker) connect(userID string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.conns[userID]++
	return p.conns[userID] == 1
}

// disconnect returns true when this was the user's last live connection.
func (p *presenceTracker) disconnect(userID string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.conns[userID] == 0 {
		return false
	}
	p.conns[userID]--
	if p.conns[userID] == 0 {
		delete(p.conns, userID)
		return true
	}
	return false
}
