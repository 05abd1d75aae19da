package app

import (
	"context"
	"sync"
	"time"

	"flowboard/api/internal/config"
	"flowboard/api/internal/realtime"
	"flowboard/api/internal/session"
	"flowboard/api/internal/store"
)

type fakeStore struct {
	insertUserFn       func(context.Context, store.User) error
	getUserByEmailFn   func(context.Context, string) (store.User, error)
	getUserByIDFn      func(context.Context, string) (store.User, error)
	insertBoardFn      func(context.Context, store.Board) (store.Board, error)
	getBoardFn         func(context.Context, string) (store.Board, error)
	getBoardContentsFn func(context.Context, string) (store.BoardContents, error)
	listBoardsFn       func(context.Context, string) ([]store.Board, error)
	renameBoardFn      func(context.Context, string, string) (store.Board, error)
	deleteBoardFn      func(context.Context, string) error
	getMemberRoleFn    func(context.Context, string, string) (string, error)
	listMembersFn      func(context.Context, string) ([]store.BoardMember, error)
	addMemberFn        func(context.Context, string, string, string) (store.BoardMember, error)
	updateMemberRoleFn func(context.Context, string, string, string) error
	removeMemberFn     func(context.Context, string, string) error
	boardIDForListFn   func(context.Context, string) (string, error)
	boardIDForTaskFn   func(context.Context, string) (string, error)
	createListFn       func(context.Context, string, string, string) (store.List, error)
	renameListFn       func(context.Context, string, string) (store.List, error)
	deleteListFn       func(context.Context, string) (string, error)
	reorderListsFn     func(context.Context, string, int) (string, []store.List, error)
	createTaskFn       func(context.Context, string, string, store.TaskDraft) (store.Task, error)
	getTaskFn          func(context.Context, string) (store.Task, error)
	updateTaskFn       func(context.Context, string, store.TaskUpdate) (store.Task, error)
	deleteTaskFn       func(context.Context, string) (store.Task, error)
	moveTaskFn         func(context.Context, string, string, int) (store.TaskMove, error)
	listTasksFn        func(context.Context, string) ([]store.Task, error)
	insertActivityFn   func(context.Context, store.Activity) error
	listActivitiesFn   func(context.Context, string, int, int) ([]store.Activity, int, error)
	insertCommentFn    func(context.Context, store.Comment) (store.Comment, error)
	listCommentsFn     func(context.Context, string) ([]store.Comment, error)
	createLabelFn      func(context.Context, store.Label) (store.Label, error)
	listLabelsFn       func(context.Context, string) ([]store.Label, error)
	deleteLabelFn      func(context.Context, string, string) error
	attachLabelFn      func(context.Context, string, string) (store.Task, error)
	detachLabelFn      func(context.Context, string, string) (store.Task, error)
	insertAttachmentFn func(context.Context, store.Attachment) (store.Attachment, error)
	getAttachmentFn    func(context.Context, string) (store.Attachment, error)
	listAttachmentsFn  func(context.Context, string) ([]store.Attachment, error)
	deleteAttachmentFn func(context.Context, string) (store.Attachment, error)
}

func (f *fakeStore) Ping(context.Context) error { return nil }

func (f *fakeStore) InsertUser(ctx context.Context, u store.User) error {
	if f.insertUserFn != nil {
		return f.insertUserFn(ctx, u)
	}
	return nil
}

func (f *fakeStore) GetUserByEmail(ctx context.Context, email string) (store.User, error) {
	if f.getUserByEmailFn != nil {
		return f.getUserByEmailFn(ctx, email)
	}
	return store.User{}, store.ErrNotFound
}

func (f *fakeStore) GetUserByID(ctx context.Context, id string) (store.User, error) {
	if f.getUserByIDFn != nil {
		return f.getUserByIDFn(ctx, id)
	}
	return store.User{}, store.ErrNotFound
}

func (f *fakeStore) InsertBoard(ctx context.Context, b store.Board) (store.Board, error) {
	if f.insertBoardFn != nil {
		return f.insertBoardFn(ctx, b)
	}
	return b, nil
}

func (f *fakeStore) GetBoard(ctx context.Context, id string) (store.Board, error) {
	if f.getBoardFn != nil {
		return f.getBoardFn(ctx, id)
	}
	return store.Board{}, store.ErrNotFound
}

func (f *fakeStore) GetBoardContents(ctx context.Context, id string) (store.BoardContents, error) {
	if f.getBoardContentsFn != nil {
		return f.getBoardContentsFn(ctx, id)
	}
	return store.BoardContents{}, store.ErrNotFound
}

func (f *fakeStore) ListBoardsForUser(ctx context.Context, userID string) ([]store.Board, error) {
	if f.listBoardsFn != nil {
		return f.listBoardsFn(ctx, userID)
	}
	return nil, nil
}

func (f *fakeStore) RenameBoard(ctx context.Context, id, title string) (store.Board, error) {
	if f.renameBoardFn != nil {
		return f.renameBoardFn(ctx, id, title)
	}
	return store.Board{ID: id, Title: title}, nil
}

func (f *fakeStore) DeleteBoard(ctx context.Context, id string) error {
	if f.deleteBoardFn != nil {
		return f.deleteBoardFn(ctx, id)
	}
	return nil
}

func (f *fakeStore) GetMemberRole(ctx context.Context, boardID, userID string) (string, error) {
	if f.getMemberRoleFn != nil {
		return f.getMemberRoleFn(ctx, boardID, userID)
	}
	return "", store.ErrNotFound
}

func (f *fakeStore) ListMembers(ctx context.Context, boardID string) ([]store.BoardMember, error) {
	if f.listMembersFn != nil {
		return f.listMembersFn(ctx, boardID)
	}
	return nil, nil
}

func (f *fakeStore) AddMember(ctx context.Context, boardID, userID, role string) (store.BoardMember, error) {
	if f.addMemberFn != nil {
		return f.addMemberFn(ctx, boardID, userID, role)
	}
	return store.BoardMember{BoardID: boardID, UserID: userID, Role: role}, nil
}

func (f *fakeStore) UpdateMemberRole(ctx context.Context, boardID, userID, role string) error {
	if f.updateMemberRoleFn != nil {
		return f.updateMemberRoleFn(ctx, boardID, userID, role)
	}
	return nil
}

func (f *fakeStore) RemoveMember(ctx context.Context, boardID, userID string) error {
	if f.removeMemberFn != nil {
		return f.removeMemberFn(ctx, boardID, userID)
	}
	return nil
}

func (f *fakeStore) BoardIDForList(ctx context.Context, listID string) (string, error) {
	if f.boardIDForListFn != nil {
		return f.boardIDForListFn(ctx, listID)
	}
	return "", store.ErrNotFound
}

func (f *fakeStore) BoardIDForTask(ctx context.Context, taskID string) (string, error) {
	if f.boardIDForTaskFn != nil {
		return f.boardIDForTaskFn(ctx, taskID)
	}
	return "", store.ErrNotFound
}

func (f *fakeStore) CreateList(ctx context.Context, boardID, id, title string) (store.List, error) {
	if f.createListFn != nil {
		return f.createListFn(ctx, boardID, id, title)
	}
	return store.List{ID: id, BoardID: boardID, Title: title}, nil
}

func (f *fakeStore) RenameList(ctx context.Context, listID, title string) (store.List, error) {
	if f.renameListFn != nil {
		return f.renameListFn(ctx, listID, title)
	}
	return store.List{ID: listID, Title: title}, nil
}

func (f *fakeStore) DeleteList(ctx context.Context, listID string) (string, error) {
	if f.deleteListFn != nil {
		return f.deleteListFn(ctx, listID)
	}
	return "", nil
}

func (f *fakeStore) ReorderLists(ctx context.Context, listID string, position int) (string, []store.List, error) {
	if f.reorderListsFn != nil {
		return f.reorderListsFn(ctx, listID, position)
	}
	return "", nil, nil
}

func (f *fakeStore) CreateTask(ctx context.Context, listID, id string, draft store.TaskDraft) (store.Task, error) {
	if f.createTaskFn != nil {
		return f.createTaskFn(ctx, listID, id, draft)
	}
	return store.Task{ID: id, ListID: listID, Title: draft.Title, Description: draft.Description, Priority: draft.Priority, DueDate: draft.DueDate, AssigneeID: draft.AssigneeID}, nil
}

func (f *fakeStore) GetTask(ctx context.Context, taskID string) (store.Task, error) {
	if f.getTaskFn != nil {
		return f.getTaskFn(ctx, taskID)
	}
	return store.Task{}, store.ErrNotFound
}

func (f *fakeStore) UpdateTask(ctx context.Context, taskID string, update store.TaskUpdate) (store.Task, error) {
	if f.updateTaskFn != nil {
		return f.updateTaskFn(ctx, taskID, update)
	}
	return store.Task{ID: taskID}, nil
}

func (f *fakeStore) DeleteTask(ctx context.Context, taskID string) (store.Task, error) {
	if f.deleteTaskFn != nil {
		return f.deleteTaskFn(ctx, taskID)
	}
	return store.Task{ID: taskID}, nil
}

func (f *fakeStore) MoveTask(ctx context.Context, taskID, toListID string, position int) (store.TaskMove, error) {
	if f.moveTaskFn != nil {
		return f.moveTaskFn(ctx, taskID, toListID, position)
	}
	return store.TaskMove{Task: store.Task{ID: taskID, ListID: toListID, Position: position}, ToListID: toListID}, nil
}

func (f *fakeStore) ListTasks(ctx context.Context, listID string) ([]store.Task, error) {
	if f.listTasksFn != nil {
		return f.listTasksFn(ctx, listID)
	}
	return nil, nil
}

func (f *fakeStore) InsertActivity(ctx context.Context, a store.Activity) error {
	if f.insertActivityFn != nil {
		return f.insertActivityFn(ctx, a)
	}
	return nil
}

func (f *fakeStore) ListActivities(ctx context.Context, boardID string, page, limit int) ([]store.Activity, int, error) {
	if f.listActivitiesFn != nil {
		return f.listActivitiesFn(ctx, boardID, page, limit)
	}
	return nil, 0, nil
}

func (f *fakeStore) InsertComment(ctx context.Context, c store.Comment) (store.Comment, error) {
	if f.insertCommentFn != nil {
		return f.insertCommentFn(ctx, c)
	}
	return c, nil
}

func (f *fakeStore) ListComments(ctx context.Context, taskID string) ([]store.Comment, error) {
	if f.listCommentsFn != nil {
		return f.listCommentsFn(ctx, taskID)
	}
	return nil, nil
}

func (f *fakeStore) CreateLabel(ctx context.Context, l store.Label) (store.Label, error) {
	if f.createLabelFn != nil {
		return f.createLabelFn(ctx, l)
	}
	return l, nil
}

func (f *fakeStore) ListLabels(ctx context.Context, boardID string) ([]store.Label, error) {
	if f.listLabelsFn != nil {
		return f.listLabelsFn(ctx, boardID)
	}
	return nil, nil
}

func (f *fakeStore) DeleteLabel(ctx context.Context, labelID, boardID string) error {
	if f.deleteLabelFn != nil {
		return f.deleteLabelFn(ctx, labelID, boardID)
	}
	return store.ErrNotFound
}

func (f *fakeStore) AttachLabel(ctx context.Context, taskID, labelID string) (store.Task, error) {
	if f.attachLabelFn != nil {
		return f.attachLabelFn(ctx, taskID, labelID)
	}
	return store.Task{ID: taskID, LabelIDs: []string{labelID}}, nil
}

func (f *fakeStore) DetachLabel(ctx context.Context, taskID, labelID string) (store.Task, error) {
	if f.detachLabelFn != nil {
		return f.detachLabelFn(ctx, taskID, labelID)
	}
	return store.Task{ID: taskID}, nil
}

func (f *fakeStore) InsertAttachment(ctx context.Context, a store.Attachment) (store.Attachment, error) {
	if f.insertAttachmentFn != nil {
		return f.insertAttachmentFn(ctx, a)
	}
	return a, nil
}

func (f *fakeStore) GetAttachment(ctx context.Context, id string) (store.Attachment, error) {
	if f.getAttachmentFn != nil {
		return f.getAttachmentFn(ctx, id)
	}
	return store.Attachment{}, store.ErrNotFound
}

func (f *fakeStore) ListAttachments(ctx context.Context, taskID string) ([]store.Attachment, error) {
	if f.listAttachmentsFn != nil {
		return f.listAttachmentsFn(ctx, taskID)
	}
	return nil, nil
}

func (f *fakeStore) DeleteAttachment(ctx context.Context, id string) (store.Attachment, error) {
	if f.deleteAttachmentFn != nil {
		return f.deleteAttachmentFn(ctx, id)
	}
	return store.Attachment{}, store.ErrNotFound
}

// fakeSessions is an in-memory refresh token store.
type fakeSessions struct {
	mu      sync.Mutex
	records map[string]session.Record
}

func newFakeSessions() *fakeSessions {
	return &fakeSessions{records: make(map[string]session.Record)}
}

func (f *fakeSessions) Save(_ context.Context, tokenHash string, record session.Record, _ time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.records[tokenHash] = record
	return nil
}

func (f *fakeSessions) Lookup(_ context.Context, tokenHash string) (session.Record, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	record, ok := f.records[tokenHash]
	if !ok {
		return session.Record{}, session.ErrNotFound
	}
	return record, nil
}

func (f *fakeSessions) Revoke(_ context.Context, tokenHash string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.records, tokenHash)
	return nil
}

func (f *fakeSessions) Ping(context.Context) error { return nil }

// fakeHub records every fan-out for assertions.
type sentEvent struct {
	room  string
	user  string
	event realtime.Event
}

type fakeHub struct {
	mu   sync.Mutex
	sent []sentEvent
}

func (f *fakeHub) Broadcast(room string, event realtime.Event) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, sentEvent{room: room, event: event})
}

func (f *fakeHub) BroadcastUser(userID string, event realtime.Event) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, sentEvent{user: userID, event: event})
}

func (f *fakeHub) roomEvents(room string) []realtime.Event {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []realtime.Event
	for _, s := range f.sent {
		if s.room == room {
			out = append(out, s.event)
		}
	}
	return out
}

func (f *fakeHub) userEvents(userID string) []realtime.Event {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []realtime.Event
	for _, s := range f.sent {
		if s.user == userID {
			out = append(out, s.event)
		}
	}
	return out
}

func testConfig() config.Config {
	return config.Config{
		JWTSecret:    "test-secret",
		AccessTTL:    time.Minute,
		RefreshTTL:   time.Hour,
		ActivityPage: 20,
	}
}

func newTestService(st *fakeStore, hub *fakeHub) *Service {
	return New(testConfig(), st, newFakeSessions(), hub, nil, nil)
}
