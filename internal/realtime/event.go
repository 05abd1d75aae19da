// Package realtime fans typed events out to websocket clients grouped in
// rooms. Rooms are process-local and rebuilt by clients on reconnect;
// delivery is best-effort, at most once per connection, ordered within a
// room by the commit order of the mutations that produced the events.
package realtime

import "github.com/bytedance/sonic"

// Event names carried on the wire. Structural events mirror committed
// mutations one-to-one; typing and presence are relay-only and never
// persisted.
const (
	EventListCreated    = "list:created"
	EventListUpdated    = "list:updated"
	EventListDeleted    = "list:deleted"
	EventListsReordered = "lists:reordered"
	EventTaskCreated    = "task:created"
	EventTaskUpdated    = "task:updated"
	EventTaskDeleted    = "task:deleted"
	EventTaskMoved      = "task:moved"
	EventCommentCreated = "comment:created"
	EventLabelCreated   = "label:created"
	EventLabelDeleted   = "label:deleted"
	EventAttachCreated  = "attachment:created"
	EventAttachDeleted  = "attachment:deleted"
	EventBoardUpdated   = "board:updated"
	EventBoardDeleted   = "board:deleted"
	EventMemberAdded    = "member:added"
	EventMemberUpdated  = "member:updated"
	EventMemberRemoved  = "member:removed"
	EventNotification   = "notification"
	EventTyping         = "typing"
	EventPresence       = "presence"
)

// Event is a named payload delivered to every connection in a room.
type Event struct {
	Name    string `json:"event"`
	Payload any    `json:"data,omitempty"`
}

func (e Event) encode() ([]byte, error) {
	return sonic.Marshal(e)
}

// BoardRoom names the room scoped to one board.
func BoardRoom(boardID string) string {
	return "board:" + boardID
}

// UserRoom names the room every authenticated connection of a user joins.
func UserRoom(userID string) string {
	return "user:" + userID
}
