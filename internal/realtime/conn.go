package realtime

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"nhooyr.io/websocket"
)

// Conn is one authenticated websocket connection. Outbound events pass
// through a buffered queue drained by a single writer goroutine, so a
// slow client backs up only its own queue.
type Conn struct {
	id       string
	userID   string
	userName string

	hub  *Hub
	sock *websocket.Conn
	send chan []byte

	closeOnce sync.Once
	done      chan struct{}

	// joined rooms; guarded by hub.mu
	rooms map[string]struct{}
}

func newConn(hub *Hub, sock *websocket.Conn, userID, userName string, queueSize int) *Conn {
	if queueSize <= 0 {
		queueSize = 64
	}
	return &Conn{
		id:       uuid.NewString(),
		userID:   userID,
		userName: userName,
		hub:      hub,
		sock:     sock,
		send:     make(chan []byte, queueSize),
		done:     make(chan struct{}),
		rooms:    make(map[string]struct{}),
	}
}

func (c *Conn) UserID() string { return c.userID }

// trySend queues a payload without blocking. False means the queue is
// full or the connection is closing.
func (c *Conn) trySend(payload []byte) bool {
	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.send <- payload:
		return true
	default:
		return false
	}
}

// writePump drains the send queue onto the socket until the connection
// closes or a write fails.
func (c *Conn) writePump(ctx context.Context) {
	for {
		select {
		case <-c.done:
			return
		case <-ctx.Done():
			c.close()
			return
		case payload := <-c.send:
			if err := c.sock.Write(ctx, websocket.MessageText, payload); err != nil {
				c.close()
				return
			}
		}
	}
}

// close tears the connection down exactly once: room membership first
// (synchronously, so no event can race into a dead connection's rooms),
// then the socket.
func (c *Conn) close() {
	c.closeOnce.Do(func() {
		close(c.done)
		c.hub.unregister(c)
		if c.sock != nil {
			_ = c.sock.Close(websocket.StatusNormalClosure, "")
		}
	})
}
