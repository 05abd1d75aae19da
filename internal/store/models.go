package store

import "time"

type User struct {
	ID           string
	Name         string
	Email        string
	PasswordHash string
	CreatedAt    time.Time
}

type Board struct {
	ID        string
	Title     string
	OwnerID   string
	CreatedAt time.Time
	UpdatedAt time.Time
}

type BoardMember struct {
	BoardID  string
	UserID   string
	UserName string
	Role     string
	AddedAt  time.Time
}

// List is an ordered column on a board. Position is board-scoped and
// contiguous: the lists of a board always occupy 0..n-1.
type List struct {
	ID        string
	BoardID   string
	Title     string
	Position  int
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Task belongs to exactly one list; Position is list-scoped and contiguous.
// UpdatedAt doubles as the revision stamp carried on realtime events.
type Task struct {
	ID          string
	ListID      string
	Title       string
	Description string
	Priority    string
	DueDate     *time.Time
	AssigneeID  *string
	Position    int
	LabelIDs    []string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

type Label struct {
	ID      string
	BoardID string
	Name    string
	Color   string
}

type Comment struct {
	ID         string
	TaskID     string
	AuthorID   string
	AuthorName string
	Body       string
	CreatedAt  time.Time
}

// Activity is an append-only audit record scoped to a board.
type Activity struct {
	ID          string
	BoardID     string
	TaskID      *string
	ActorID     string
	ActorName   string
	Type        string
	Description string
	CreatedAt   time.Time
}

type Attachment struct {
	ID          string
	TaskID      string
	ObjectKey   string
	FileName    string
	ContentType string
	SizeBytes   int64
	CreatedAt   time.Time
}

// BoardContents is a board with its fully ordered lists and tasks.
type BoardContents struct {
	Board Board
	Lists []List
	Tasks map[string][]Task // keyed by list id, ordered by position
}

// TaskMove describes the outcome of a completed move for event fan-out.
type TaskMove struct {
	Task       Task
	FromListID string
	ToListID   string
}
