package realtime

import (
	"sync"

	log "github.com/sirupsen/logrus"
)

// Hub is the process-local room registry: connection → joined rooms and
// room → member connections. All membership changes are synchronous under
// one mutex so teardown on disconnect is deterministic and a reconnecting
// client can never observe stale membership.
type Hub struct {
	logger *log.Logger

	mu    sync.Mutex
	conns map[*Conn]struct{}
	rooms map[string]map[*Conn]struct{}
}

func NewHub(logger *log.Logger) *Hub {
	if logger == nil {
		logger = log.StandardLogger()
	}
	return &Hub{
		logger: logger,
		conns:  make(map[*Conn]struct{}),
		rooms:  make(map[string]map[*Conn]struct{}),
	}
}

func (h *Hub) register(c *Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.conns[c] = struct{}{}
}

// unregister removes the connection from the hub and every room it
// joined, dropping rooms that become empty.
func (h *Hub) unregister(c *Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.conns, c)
	for room := range c.rooms {
		h.removeFromRoomLocked(room, c)
	}
	c.rooms = make(map[string]struct{})
}

func (h *Hub) removeFromRoomLocked(room string, c *Conn) {
	members, ok := h.rooms[room]
	if !ok {
		return
	}
	delete(members, c)
	if len(members) == 0 {
		delete(h.rooms, room)
	}
}

// Join adds a connection to a room. Joining twice is a no-op.
func (h *Hub) Join(c *Conn, room string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, registered := h.conns[c]; !registered {
		return
	}
	members, ok := h.rooms[room]
	if !ok {
		members = make(map[*Conn]struct{})
		h.rooms[room] = members
	}
	members[c] = struct{}{}
	c.rooms[room] = struct{}{}
}

// Leave removes a connection from a room. Leaving a room the connection
// never joined is a no-op.
func (h *Hub) Leave(c *Conn, room string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(c.rooms, room)
	h.removeFromRoomLocked(room, c)
}

// Broadcast delivers an event to every connection currently in the room.
// A connection whose send queue is full is dropped rather than allowed to
// stall the caller.
func (h *Hub) Broadcast(room string, event Event) {
	payload, err := event.encode()
	if err != nil {
		h.logger.WithError(err).WithField("event", event.Name).Error("encode event")
		return
	}
	h.send(room, payload, nil)
}

// BroadcastUser targets the user's private room.
func (h *Hub) BroadcastUser(userID string, event Event) {
	h.Broadcast(UserRoom(userID), event)
}

// Relay delivers an ephemeral event to the room, skipping the sender.
// If nobody else is in the room the event is dropped silently.
func (h *Hub) Relay(room string, sender *Conn, event Event) {
	payload, err := event.encode()
	if err != nil {
		h.logger.WithError(err).WithField("event", event.Name).Error("encode event")
		return
	}
	h.send(room, payload, sender)
}

func (h *Hub) send(room string, payload []byte, skip *Conn) {
	h.mu.Lock()
	var stalled []*Conn
	for c := range h.rooms[room] {
		if c == skip {
			continue
		}
		if !c.trySend(payload) {
			stalled = append(stalled, c)
		}
	}
	h.mu.Unlock()

	// Closing calls back into unregister, so it happens outside the lock.
	for _, c := range stalled {
		h.logger.WithFields(log.Fields{"room": room, "conn": c.id, "user": c.userID}).
			Warn("send queue full, dropping connection")
		c.close()
	}
}

// CloseAll closes every registered connection. Used on shutdown.
func (h *Hub) CloseAll() {
	h.mu.Lock()
	conns := make([]*Conn, 0, len(h.conns))
	for c := range h.conns {
		conns = append(conns, c)
	}
	h.mu.Unlock()

	for _, c := range conns {
		c.close()
	}
}

// RoomSize reports current room membership.
func (h *Hub) RoomSize(room string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.rooms[room])
}

// ConnCount reports the number of registered connections.
func (h *Hub) ConnCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.conns)
}

// InRoom reports whether the connection is currently joined to room.
func (h *Hub) InRoom(c *Conn, room string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	members, ok := h.rooms[room]
	if !ok {
		return false
	}
	_, in := members[c]
	return in
}
