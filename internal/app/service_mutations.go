package app

import (
	"context"
	"fmt"
	"strings"
	"time"

	"flowboard/api/internal/rbac"
	"flowboard/api/internal/realtime"
	"flowboard/api/internal/store"
	"flowboard/api/internal/util"
)

// Structural mutation entry points. Each follows the same sequence:
// access check, store transaction, then the post-commit hook chain
// (activity record, board-room event, targeted notifications). Nothing
// after the transaction can fail the request, and nothing before a
// successful commit emits an event or an activity record.

// --- lists ---

func (s *Service) CreateList(ctx context.Context, sess Session, boardID, title string) (ListDTO, error) {
	if err := s.requireAccess(ctx, boardID, sess.UserID, rbac.ActionWrite); err != nil {
		return ListDTO{}, err
	}
	title = strings.TrimSpace(title)
	if title == "" {
		return ListDTO{}, errBadRequest("title is required")
	}
	list, err := s.store.CreateList(ctx, boardID, util.NewID("list"), title)
	if err != nil {
		return ListDTO{}, err
	}
	dto := listDTO(list)
	s.afterCommit(ctx, mutation{
		boardID:  boardID,
		event:    &realtime.Event{Name: realtime.EventListCreated, Payload: dto},
		activity: &store.Activity{ActorID: sess.UserID, Type: "list:created", Description: fmt.Sprintf("%s added list %q", sess.UserName, title)},
	})
	return dto, nil
}

func (s *Service) RenameList(ctx context.Context, sess Session, listID, title string) (ListDTO, error) {
	boardID, err := s.store.BoardIDForList(ctx, listID)
	if err != nil {
		return ListDTO{}, err
	}
	if err := s.requireAccess(ctx, boardID, sess.UserID, rbac.ActionWrite); err != nil {
		return ListDTO{}, err
	}
	title = strings.TrimSpace(title)
	if title == "" {
		return ListDTO{}, errBadRequest("title is required")
	}
	list, err := s.store.RenameList(ctx, listID, title)
	if err != nil {
		return ListDTO{}, err
	}
	dto := listDTO(list)
	s.afterCommit(ctx, mutation{
		boardID:  boardID,
		event:    &realtime.Event{Name: realtime.EventListUpdated, Payload: dto},
		activity: &store.Activity{ActorID: sess.UserID, Type: "list:renamed", Description: fmt.Sprintf("%s renamed a list to %q", sess.UserName, title)},
	})
	return dto, nil
}

func (s *Service) DeleteList(ctx context.Context, sess Session, listID string) error {
	boardID, err := s.store.BoardIDForList(ctx, listID)
	if err != nil {
		return err
	}
	if err := s.requireAccess(ctx, boardID, sess.UserID, rbac.ActionWrite); err != nil {
		return err
	}
	if _, err := s.store.DeleteList(ctx, listID); err != nil {
		return err
	}
	s.afterCommit(ctx, mutation{
		boardID:  boardID,
		event:    &realtime.Event{Name: realtime.EventListDeleted, Payload: map[string]string{"listId": listID, "boardId": boardID}},
		activity: &store.Activity{ActorID: sess.UserID, Type: "list:deleted", Description: fmt.Sprintf("%s deleted a list", sess.UserName)},
	})
	return nil
}

// ReorderLists moves a list to a new position on its board and returns
// the board's final list order. The event carries the whole layout so
// clients replace rather than patch.
func (s *Service) ReorderLists(ctx context.Context, sess Session, listID string, position int) ([]ListDTO, error) {
	boardID, err := s.store.BoardIDForList(ctx, listID)
	if err != nil {
		return nil, err
	}
	if err := s.requireAccess(ctx, boardID, sess.UserID, rbac.ActionWrite); err != nil {
		return nil, err
	}
	boardID, lists, err := s.store.ReorderLists(ctx, listID, position)
	if err != nil {
		return nil, err
	}
	dtos := listDTOs(lists)
	s.afterCommit(ctx, mutation{
		boardID:  boardID,
		event:    &realtime.Event{Name: realtime.EventListsReordered, Payload: map[string]any{"boardId": boardID, "lists": dtos}},
		activity: &store.Activity{ActorID: sess.UserID, Type: "lists:reordered", Description: fmt.Sprintf("%s reordered the lists", sess.UserName)},
	})
	return dtos, nil
}

// --- tasks ---

// TaskInput is the request body for creating a task.
type TaskInput struct {
	Title       string  `json:"title"`
	Description string  `json:"description"`
	Priority    string  `json:"priority"`
	DueDate     *string `json:"dueDate"`
	AssigneeID  *string `json:"assigneeId"`
}

var validPriorities = map[string]struct{}{
	"low":    {},
	"medium": {},
	"high":   {},
}

func parseDueDate(raw *string) (*time.Time, error) {
	if raw == nil || strings.TrimSpace(*raw) == "" {
		return nil, nil
	}
	parsed, err := time.Parse(time.RFC3339, *raw)
	if err != nil {
		return nil, errBadRequest("dueDate must be RFC 3339")
	}
	return &parsed, nil
}

func (s *Service) CreateTask(ctx context.Context, sess Session, listID string, input TaskInput) (TaskDTO, error) {
	boardID, err := s.store.BoardIDForList(ctx, listID)
	if err != nil {
		return TaskDTO{}, err
	}
	if err := s.requireAccess(ctx, boardID, sess.UserID, rbac.ActionWrite); err != nil {
		return TaskDTO{}, err
	}
	input.Title = strings.TrimSpace(input.Title)
	if input.Title == "" {
		return TaskDTO{}, errBadRequest("title is required")
	}
	if input.Priority != "" {
		if _, ok := validPriorities[input.Priority]; !ok {
			return TaskDTO{}, errBadRequest("priority must be low, medium or high")
		}
	}
	due, err := parseDueDate(input.DueDate)
	if err != nil {
		return TaskDTO{}, err
	}

	task, err := s.store.CreateTask(ctx, listID, util.NewID("task"), store.TaskDraft{
		Title:       input.Title,
		Description: input.Description,
		Priority:    input.Priority,
		DueDate:     due,
		AssigneeID:  input.AssigneeID,
	})
	if err != nil {
		return TaskDTO{}, err
	}
	dto := taskDTO(task)
	m := mutation{
		boardID:  boardID,
		event:    &realtime.Event{Name: realtime.EventTaskCreated, Payload: dto},
		activity: &store.Activity{TaskID: &task.ID, ActorID: sess.UserID, Type: "task:created", Description: fmt.Sprintf("%s added task %q", sess.UserName, task.Title)},
	}
	if task.AssigneeID != nil && *task.AssigneeID != sess.UserID {
		m.notify = append(m.notify, notification{
			userID: *task.AssigneeID,
			event: realtime.Event{Name: realtime.EventNotification, Payload: map[string]string{
				"kind":    "task:assigned",
				"boardId": boardID,
				"taskId":  task.ID,
			}},
		})
	}
	s.afterCommit(ctx, m)
	return dto, nil
}

// TaskUpdateInput is the request body for field edits; absent fields stay
// untouched, explicit nulls clear dueDate and assigneeId.
type TaskUpdateInput struct {
	Title       *string      `json:"title"`
	Description *string      `json:"description"`
	Priority    *string      `json:"priority"`
	DueDate     jsonOptional `json:"dueDate"`
	AssigneeID  jsonOptional `json:"assigneeId"`
}

func (s *Service) GetTask(ctx context.Context, sess Session, taskID string) (TaskDTO, error) {
	boardID, err := s.store.BoardIDForTask(ctx, taskID)
	if err != nil {
		return TaskDTO{}, err
	}
	if err := s.requireAccess(ctx, boardID, sess.UserID, rbac.ActionRead); err != nil {
		return TaskDTO{}, err
	}
	task, err := s.store.GetTask(ctx, taskID)
	if err != nil {
		return TaskDTO{}, err
	}
	return taskDTO(task), nil
}

func (s *Service) UpdateTask(ctx context.Context, sess Session, taskID string, input TaskUpdateInput) (TaskDTO, error) {
	boardID, err := s.store.BoardIDForTask(ctx, taskID)
	if err != nil {
		return TaskDTO{}, err
	}
	if err := s.requireAccess(ctx, boardID, sess.UserID, rbac.ActionWrite); err != nil {
		return TaskDTO{}, err
	}

	update := store.TaskUpdate{
		Title:       input.Title,
		Description: input.Description,
		Priority:    input.Priority,
	}
	if input.Title != nil && strings.TrimSpace(*input.Title) == "" {
		return TaskDTO{}, errBadRequest("title cannot be empty")
	}
	if input.Priority != nil {
		if _, ok := validPriorities[*input.Priority]; !ok {
			return TaskDTO{}, errBadRequest("priority must be low, medium or high")
		}
	}
	if input.DueDate.Present {
		update.SetDueDate = true
		if input.DueDate.Value != nil {
			if _, err := parseDueDate(input.DueDate.Value); err != nil {
				return TaskDTO{}, err
			}
			update.DueDate = input.DueDate.Value
		}
	}
	if input.AssigneeID.Present {
		update.SetAssignee = true
		update.AssigneeID = input.AssigneeID.Value
	}

	task, err := s.store.UpdateTask(ctx, taskID, update)
	if err != nil {
		return TaskDTO{}, err
	}
	dto := taskDTO(task)
	m := mutation{
		boardID:  boardID,
		event:    &realtime.Event{Name: realtime.EventTaskUpdated, Payload: dto},
		activity: &store.Activity{TaskID: &task.ID, ActorID: sess.UserID, Type: "task:updated", Description: fmt.Sprintf("%s updated task %q", sess.UserName, task.Title)},
	}
	if update.SetAssignee && update.AssigneeID != nil && *update.AssigneeID != sess.UserID {
		m.notify = append(m.notify, notification{
			userID: *update.AssigneeID,
			event: realtime.Event{Name: realtime.EventNotification, Payload: map[string]string{
				"kind":    "task:assigned",
				"boardId": boardID,
				"taskId":  task.ID,
			}},
		})
	}
	s.afterCommit(ctx, m)
	return dto, nil
}

func (s *Service) DeleteTask(ctx context.Context, sess Session, taskID string) error {
	boardID, err := s.store.BoardIDForTask(ctx, taskID)
	if err != nil {
		return err
	}
	if err := s.requireAccess(ctx, boardID, sess.UserID, rbac.ActionWrite); err != nil {
		return err
	}
	task, err := s.store.DeleteTask(ctx, taskID)
	if err != nil {
		return err
	}
	s.afterCommit(ctx, mutation{
		boardID:  boardID,
		event:    &realtime.Event{Name: realtime.EventTaskDeleted, Payload: map[string]string{"taskId": taskID, "listId": task.ListID}},
		activity: &store.Activity{ActorID: sess.UserID, Type: "task:deleted", Description: fmt.Sprintf("%s deleted task %q", sess.UserName, task.Title)},
	})
	return nil
}

// MoveTask moves a task within its list or across lists of the same
// board. The task:moved event carries both endpoints so clients animate
// one move instead of a delete plus an insert.
func (s *Service) MoveTask(ctx context.Context, sess Session, taskID, toListID string, position int) (TaskDTO, error) {
	boardID, err := s.store.BoardIDForTask(ctx, taskID)
	if err != nil {
		return TaskDTO{}, err
	}
	if err := s.requireAccess(ctx, boardID, sess.UserID, rbac.ActionWrite); err != nil {
		return TaskDTO{}, err
	}
	move, err := s.store.MoveTask(ctx, taskID, toListID, position)
	if err != nil {
		return TaskDTO{}, err
	}
	dto := taskDTO(move.Task)
	s.afterCommit(ctx, mutation{
		boardID: boardID,
		event: &realtime.Event{Name: realtime.EventTaskMoved, Payload: map[string]any{
			"task":       dto,
			"fromListId": move.FromListID,
			"toListId":   move.ToListID,
		}},
		activity: &store.Activity{TaskID: &move.Task.ID, ActorID: sess.UserID, Type: "task:moved", Description: fmt.Sprintf("%s moved task %q", sess.UserName, move.Task.Title)},
	})
	return dto, nil
}

func (s *Service) ListTasks(ctx context.Context, sess Session, listID string) ([]TaskDTO, error) {
	boardID, err := s.store.BoardIDForList(ctx, listID)
	if err != nil {
		return nil, err
	}
	if err := s.requireAccess(ctx, boardID, sess.UserID, rbac.ActionRead); err != nil {
		return nil, err
	}
	tasks, err := s.store.ListTasks(ctx, listID)
	if err != nil {
		return nil, err
	}
	out := make([]TaskDTO, 0, len(tasks))
	for _, t := range tasks {
		out = append(out, taskDTO(t))
	}
	return out, nil
}

// --- comments ---

func (s *Service) AddComment(ctx context.Context, sess Session, taskID, body string) (CommentDTO, error) {
	boardID, err := s.store.BoardIDForTask(ctx, taskID)
	if err != nil {
		return CommentDTO{}, err
	}
	if err := s.requireAccess(ctx, boardID, sess.UserID, rbac.ActionWrite); err != nil {
		return CommentDTO{}, err
	}
	body = strings.TrimSpace(body)
	if body == "" {
		return CommentDTO{}, errBadRequest("body is required")
	}
	comment, err := s.store.InsertComment(ctx, store.Comment{
		ID:       util.NewID("comment"),
		TaskID:   taskID,
		AuthorID: sess.UserID,
		Body:     body,
	})
	if err != nil {
		return CommentDTO{}, err
	}
	comment.AuthorName = sess.UserName
	dto := commentDTO(comment)

	m := mutation{
		boardID:  boardID,
		event:    &realtime.Event{Name: realtime.EventCommentCreated, Payload: dto},
		activity: &store.Activity{TaskID: &taskID, ActorID: sess.UserID, Type: "comment:added", Description: fmt.Sprintf("%s commented on a task", sess.UserName)},
	}
	// Comment notifications go to the assignee's private room; the
	// lookup happens after commit and never fails the request.
	if task, taskErr := s.store.GetTask(ctx, taskID); taskErr == nil &&
		task.AssigneeID != nil && *task.AssigneeID != sess.UserID {
		m.notify = append(m.notify, notification{
			userID: *task.AssigneeID,
			event: realtime.Event{Name: realtime.EventNotification, Payload: map[string]string{
				"kind":    "task:commented",
				"boardId": boardID,
				"taskId":  taskID,
			}},
		})
	}
	s.afterCommit(ctx, m)
	return dto, nil
}

func (s *Service) ListComments(ctx context.Context, sess Session, taskID string) ([]CommentDTO, error) {
	boardID, err := s.store.BoardIDForTask(ctx, taskID)
	if err != nil {
		return nil, err
	}
	if err := s.requireAccess(ctx, boardID, sess.UserID, rbac.ActionRead); err != nil {
		return nil, err
	}
	comments, err := s.store.ListComments(ctx, taskID)
	if err != nil {
		return nil, err
	}
	out := make([]CommentDTO, 0, len(comments))
	for _, c := range comments {
		out = append(out, commentDTO(c))
	}
	return out, nil
}

// --- labels ---

func (s *Service) CreateLabel(ctx context.Context, sess Session, boardID, name, color string) (LabelDTO, error) {
	if err := s.requireAccess(ctx, boardID, sess.UserID, rbac.ActionWrite); err != nil {
		return LabelDTO{}, err
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return LabelDTO{}, errBadRequest("name is required")
	}
	if color == "" {
		color = "#888888"
	}
	label, err := s.store.CreateLabel(ctx, store.Label{
		ID:      util.NewID("label"),
		BoardID: boardID,
		Name:    name,
		Color:   color,
	})
	if err != nil {
		return LabelDTO{}, err
	}
	dto := labelDTO(label)
	s.afterCommit(ctx, mutation{
		boardID:  boardID,
		event:    &realtime.Event{Name: realtime.EventLabelCreated, Payload: dto},
		activity: &store.Activity{ActorID: sess.UserID, Type: "label:created", Description: fmt.Sprintf("%s created label %q", sess.UserName, name)},
	})
	return dto, nil
}

func (s *Service) ListLabels(ctx context.Context, sess Session, boardID string) ([]LabelDTO, error) {
	if err := s.requireAccess(ctx, boardID, sess.UserID, rbac.ActionRead); err != nil {
		return nil, err
	}
	labels, err := s.store.ListLabels(ctx, boardID)
	if err != nil {
		return nil, err
	}
	out := make([]LabelDTO, 0, len(labels))
	for _, l := range labels {
		out = append(out, labelDTO(l))
	}
	return out, nil
}

func (s *Service) DeleteLabel(ctx context.Context, sess Session, labelID, boardID string) error {
	if err := s.requireAccess(ctx, boardID, sess.UserID, rbac.ActionWrite); err != nil {
		return err
	}
	// The delete is scoped to the board the guard checked; a label id
	// from another board comes back as ErrNotFound, untouched.
	if err := s.store.DeleteLabel(ctx, labelID, boardID); err != nil {
		return err
	}
	s.afterCommit(ctx, mutation{
		boardID:  boardID,
		event:    &realtime.Event{Name: realtime.EventLabelDeleted, Payload: map[string]string{"labelId": labelID, "boardId": boardID}},
		activity: &store.Activity{ActorID: sess.UserID, Type: "label:deleted", Description: fmt.Sprintf("%s deleted a label", sess.UserName)},
	})
	return nil
}

func (s *Service) AttachLabel(ctx context.Context, sess Session, taskID, labelID string) (TaskDTO, error) {
	boardID, err := s.store.BoardIDForTask(ctx, taskID)
	if err != nil {
		return TaskDTO{}, err
	}
	if err := s.requireAccess(ctx, boardID, sess.UserID, rbac.ActionWrite); err != nil {
		return TaskDTO{}, err
	}
	task, err := s.store.AttachLabel(ctx, taskID, labelID)
	if err != nil {
		return TaskDTO{}, err
	}
	dto := taskDTO(task)
	s.afterCommit(ctx, mutation{
		boardID:  boardID,
		event:    &realtime.Event{Name: realtime.EventTaskUpdated, Payload: dto},
		activity: &store.Activity{TaskID: &taskID, ActorID: sess.UserID, Type: "label:attached", Description: fmt.Sprintf("%s labeled task %q", sess.UserName, task.Title)},
	})
	return dto, nil
}

func (s *Service) DetachLabel(ctx context.Context, sess Session, taskID, labelID string) (TaskDTO, error) {
	boardID, err := s.store.BoardIDForTask(ctx, taskID)
	if err != nil {
		return TaskDTO{}, err
	}
	if err := s.requireAccess(ctx, boardID, sess.UserID, rbac.ActionWrite); err != nil {
		return TaskDTO{}, err
	}
	task, err := s.store.DetachLabel(ctx, taskID, labelID)
	if err != nil {
		return TaskDTO{}, err
	}
	dto := taskDTO(task)
	s.afterCommit(ctx, mutation{
		boardID:  boardID,
		event:    &realtime.Event{Name: realtime.EventTaskUpdated, Payload: dto},
		activity: &store.Activity{TaskID: &taskID, ActorID: sess.UserID, Type: "label:detached", Description: fmt.Sprintf("%s removed a label from task %q", sess.UserName, task.Title)},
	})
	return dto, nil
}
