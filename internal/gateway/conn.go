package gateway

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/xtendplex/chat-server/internal/domain/user"
	"github.com/xtendplex/chat-server/internal/infrastructure/metrics"
)

// Conn is one live transport session. The user binding is set only
// after a successful authentication handshake; everything else is
// rejected until then.
type Conn struct {
	id   string
	sock *websocket.Conn
	gw   *Gateway

	send chan []byte
	done chan struct{}

	closeOnce sync.Once

	mu       sync.Mutex
	userID   string
	profile  *user.User
	rooms    map[string]struct{}
	lastSeen time.Time
}

// ID returns the connection id.
func (c *Conn) ID() string { return c.id }

// UserID returns the bound user id, empty before authentication.
func (c *Conn) UserID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.userID
}

// Profile returns the bound user profile, nil before authentication.
func (c *Conn) Profile() *user.User {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.profile
}

func (c *Conn) bind(u *user.User) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.userID = u.ID
	c.profile = u
}

func (c *Conn) authenticated() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.userID != ""
}

// trackRoom records the subscription locally so teardown is
// O(rooms joined by this connection).
func (c *Conn) trackRoom(roomID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.rooms[roomID] = struct{}{}
}

func (c *Conn) inRoom(roomID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.rooms[roomID]
	return ok
}

func (c *Conn) joinedRooms() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	rooms := make([]string, 0, len(c.rooms))
	for id := range c.rooms {
		rooms = append(rooms, id)
	}
	return rooms
}

func (c *Conn) touch() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lastSeen = time.Now()
}

// enqueue hands a frame to the write pump without blocking. A full
// buffer means the subscriber is too slow; the frame is dropped and the
// client recovers via backfill on its next reconnect.
func (c *Conn) enqueue(frame []byte) {
	select {
	case c.send <- frame:
	case <-c.done:
	default:
		metrics.DroppedFramesTotal.Inc()
	}
}

func (c *Conn) close() {
	c.closeOnce.Do(func() {
		close(c.done)
		c.sock.Close()
	})
}

func (c *Conn) readPump() {
	defer c.gw.onDisconnect(c)
	defer c.close()

	c.sock.SetReadLimit(c.gw.cfg.MaxMessageBytes)
	c.sock.SetReadDeadline(time.Now().Add(c.gw.cfg.PongTimeout))
	c.sock.SetPongHandler(func(string) error {
		c.touch()
		return c.sock.SetReadDeadline(time.Now().Add(c.gw.cfg.PongTimeout))
	})

	for {
		_, data, err := c.sock.ReadMessage()
		if err != nil {
			return
		}
		c.touch()
		c.gw.dispatch(c, data)
	}
}

func (c *Conn) writePump() {
	pingInterval := c.gw.cfg.PongTimeout * 9 / 10
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()
	defer c.close()

	for {
		select {
		case frame := <-c.send:
			c.sock.SetWriteDeadline(time.Now().Add(c.gw.cfg.WriteTimeout))
			if err := c.sock.WriteMessage(websocket.TextMessage, frame); err != nil {
				return
			}
		case <-ticker.C:
			c.sock.SetWriteDeadline(time.Now().Add(c.gw.cfg.WriteTimeout))
			if err := c.sock.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-c.done:
			return
		}
	}
}
