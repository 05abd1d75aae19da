package realtime

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/bytedance/sonic"
	log "github.com/sirupsen/logrus"
	"nhooyr.io/websocket"
)

// Identity is the authenticated principal behind a connection.
type Identity struct {
	UserID   string
	UserName string
}

// Authenticator validates the bearer credential presented at connect time.
type Authenticator func(ctx context.Context, token string) (Identity, error)

// AccessChecker gates board room joins; it returns an error when the user
// is not a member of the board.
type AccessChecker func(ctx context.Context, boardID, userID string) error

// Handler upgrades HTTP requests to websocket connections and runs the
// per-connection protocol: authenticate, auto-join the user room, then
// serve explicit board joins/leaves and ephemeral relays.
type Handler struct {
	hub       *Hub
	auth      Authenticator
	access    AccessChecker
	queueSize int
	logger    *log.Logger
}

func NewHandler(hub *Hub, auth Authenticator, access AccessChecker, queueSize int, logger *log.Logger) *Handler {
	if logger == nil {
		logger = log.StandardLogger()
	}
	return &Handler{hub: hub, auth: auth, access: access, queueSize: queueSize, logger: logger}
}

type clientFrame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

type roomFrame struct {
	BoardID string `json:"boardId"`
}

const (
	closeAuthRequired      websocket.StatusCode = 4401
	closeInvalidCredential websocket.StatusCode = 4403
)

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	sock, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		return
	}

	token := connectToken(r)
	if token == "" {
		_ = sock.Close(closeAuthRequired, "AuthRequired")
		return
	}
	identity, err := h.auth(r.Context(), token)
	if err != nil {
		_ = sock.Close(closeInvalidCredential, "InvalidCredential")
		return
	}

	conn := newConn(h.hub, sock, identity.UserID, identity.UserName, h.queueSize)
	h.hub.register(conn)
	h.hub.Join(conn, UserRoom(identity.UserID))
	defer conn.close()

	ctx := r.Context()
	go conn.writePump(ctx)

	h.logger.WithFields(log.Fields{"conn": conn.id, "user": identity.UserID}).Debug("websocket connected")

	for {
		typ, payload, err := sock.Read(ctx)
		if err != nil {
			return
		}
		if typ != websocket.MessageText {
			continue
		}
		h.handleFrame(ctx, conn, payload)
	}
}

func (h *Handler) handleFrame(ctx context.Context, conn *Conn, payload []byte) {
	var frame clientFrame
	if err := sonic.Unmarshal(payload, &frame); err != nil {
		conn.trySend(mustEncode(Event{Name: "error", Payload: map[string]string{
			"code": "BAD_FRAME", "message": "malformed frame",
		}}))
		return
	}

	switch frame.Event {
	case "board:join":
		var room roomFrame
		if err := sonic.Unmarshal(frame.Data, &room); err != nil || room.BoardID == "" {
			conn.trySend(mustEncode(Event{Name: "error", Payload: map[string]string{
				"code": "BAD_FRAME", "message": "boardId is required",
			}}))
			return
		}
		if err := h.access(ctx, room.BoardID, conn.userID); err != nil {
			conn.trySend(mustEncode(Event{Name: "error", Payload: map[string]string{
				"code": "FORBIDDEN", "message": "not a member of this board",
			}}))
			return
		}
		h.hub.Join(conn, BoardRoom(room.BoardID))
		conn.trySend(mustEncode(Event{Name: "board:joined", Payload: map[string]string{"boardId": room.BoardID}}))

	case "board:leave":
		var room roomFrame
		if err := sonic.Unmarshal(frame.Data, &room); err != nil || room.BoardID == "" {
			return
		}
		h.hub.Leave(conn, BoardRoom(room.BoardID))
		conn.trySend(mustEncode(Event{Name: "board:left", Payload: map[string]string{"boardId": room.BoardID}}))

	case EventTyping, EventPresence:
		// Ephemeral relay: forwarded to board peers only, never stored,
		// dropped silently when the sender is not in the room.
		var body struct {
			BoardID string `json:"boardId"`
			TaskID  string `json:"taskId,omitempty"`
		}
		if err := sonic.Unmarshal(frame.Data, &body); err != nil || body.BoardID == "" {
			return
		}
		room := BoardRoom(body.BoardID)
		if !h.hub.InRoom(conn, room) {
			return
		}
		h.hub.Relay(room, conn, Event{Name: frame.Event, Payload: map[string]any{
			"boardId":  body.BoardID,
			"taskId":   body.TaskID,
			"userId":   conn.userID,
			"userName": conn.userName,
		}})

	default:
		conn.trySend(mustEncode(Event{Name: "error", Payload: map[string]string{
			"code": "UNKNOWN_EVENT", "message": frame.Event,
		}}))
	}
}

func connectToken(r *http.Request) string {
	if raw := strings.TrimSpace(r.Header.Get("Authorization")); raw != "" {
		parts := strings.SplitN(raw, " ", 2)
		if len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") {
			return strings.TrimSpace(parts[1])
		}
	}
	return strings.TrimSpace(r.URL.Query().Get("token"))
}

func mustEncode(event Event) []byte {
	payload, err := event.encode()
	if err != nil {
		return []byte(`{"event":"error"}`)
	}
	return payload
}
