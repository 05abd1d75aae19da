package app

import (
	"time"

	"flowboard/api/internal/store"
)

// Wire representations returned by the API and carried on realtime events.

type BoardDTO struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	OwnerID   string    `json:"ownerId"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

type ListDTO struct {
	ID        string    `json:"id"`
	BoardID   string    `json:"boardId"`
	Title     string    `json:"title"`
	Position  int       `json:"position"`
	Tasks     []TaskDTO `json:"tasks,omitempty"`
	UpdatedAt time.Time `json:"updatedAt"`
}

type TaskDTO struct {
	ID          string     `json:"id"`
	ListID      string     `json:"listId"`
	Title       string     `json:"title"`
	Description string     `json:"description"`
	Priority    string     `json:"priority"`
	DueDate     *time.Time `json:"dueDate,omitempty"`
	AssigneeID  *string    `json:"assigneeId,omitempty"`
	Position    int        `json:"position"`
	LabelIDs    []string   `json:"labelIds"`
	UpdatedAt   time.Time  `json:"updatedAt"`
}

type MemberDTO struct {
	UserID   string    `json:"userId"`
	UserName string    `json:"userName"`
	Role     string    `json:"role"`
	AddedAt  time.Time `json:"addedAt"`
}

type LabelDTO struct {
	ID      string `json:"id"`
	BoardID string `json:"boardId"`
	Name    string `json:"name"`
	Color   string `json:"color"`
}

type CommentDTO struct {
	ID         string    `json:"id"`
	TaskID     string    `json:"taskId"`
	AuthorID   string    `json:"authorId"`
	AuthorName string    `json:"authorName"`
	Body       string    `json:"body"`
	CreatedAt  time.Time `json:"createdAt"`
}

type ActivityDTO struct {
	ID          string    `json:"id"`
	BoardID     string    `json:"boardId"`
	TaskID      *string   `json:"taskId,omitempty"`
	ActorID     string    `json:"actorId"`
	ActorName   string    `json:"actorName"`
	Type        string    `json:"type"`
	Description string    `json:"description"`
	CreatedAt   time.Time `json:"createdAt"`
}

type AttachmentDTO struct {
	ID          string    `json:"id"`
	TaskID      string    `json:"taskId"`
	FileName    string    `json:"fileName"`
	ContentType string    `json:"contentType"`
	SizeBytes   int64     `json:"sizeBytes"`
	CreatedAt   time.Time `json:"createdAt"`
	UploadURL   string    `json:"uploadUrl,omitempty"`
}

type Pagination struct {
	Page       int `json:"page"`
	Limit      int `json:"limit"`
	Total      int `json:"total"`
	TotalPages int `json:"totalPages"`
}

type ActivityFeed struct {
	Activities []ActivityDTO `json:"activities"`
	Pagination Pagination    `json:"pagination"`
}

type BoardContentsDTO struct {
	Board BoardDTO `json:"board"`
	Lists []ListDTO `json:"lists"`
}

func boardDTO(b store.Board) BoardDTO {
	return BoardDTO{ID: b.ID, Title: b.Title, OwnerID: b.OwnerID, CreatedAt: b.CreatedAt, UpdatedAt: b.UpdatedAt}
}

func listDTO(l store.List) ListDTO {
	return ListDTO{ID: l.ID, BoardID: l.BoardID, Title: l.Title, Position: l.Position, UpdatedAt: l.UpdatedAt}
}

func listDTOs(lists []store.List) []ListDTO {
	out := make([]ListDTO, 0, len(lists))
	for _, l := range lists {
		out = append(out, listDTO(l))
	}
	return out
}

func taskDTO(t store.Task) TaskDTO {
	labels := t.LabelIDs
	if labels == nil {
		labels = []string{}
	}
	return TaskDTO{
		ID:          t.ID,
		ListID:      t.ListID,
		Title:       t.Title,
		Description: t.Description,
		Priority:    t.Priority,
		DueDate:     t.DueDate,
		AssigneeID:  t.AssigneeID,
		Position:    t.Position,
		LabelIDs:    labels,
		UpdatedAt:   t.UpdatedAt,
	}
}

func memberDTO(m store.BoardMember) MemberDTO {
	return MemberDTO{UserID: m.UserID, UserName: m.UserName, Role: m.Role, AddedAt: m.AddedAt}
}

func labelDTO(l store.Label) LabelDTO {
	return LabelDTO{ID: l.ID, BoardID: l.BoardID, Name: l.Name, Color: l.Color}
}

func commentDTO(c store.Comment) CommentDTO {
	return CommentDTO{ID: c.ID, TaskID: c.TaskID, AuthorID: c.AuthorID, AuthorName: c.AuthorName, Body: c.Body, CreatedAt: c.CreatedAt}
}

func activityDTO(a store.Activity) ActivityDTO {
	return ActivityDTO{
		ID:          a.ID,
		BoardID:     a.BoardID,
		TaskID:      a.TaskID,
		ActorID:     a.ActorID,
		ActorName:   a.ActorName,
		Type:        a.Type,
		Description: a.Description,
		CreatedAt:   a.CreatedAt,
	}
}

func attachmentDTO(a store.Attachment) AttachmentDTO {
	return AttachmentDTO{
		ID:          a.ID,
		TaskID:      a.TaskID,
		FileName:    a.FileName,
		ContentType: a.ContentType,
		SizeBytes:   a.SizeBytes,
		CreatedAt:   a.CreatedAt,
	}
}
