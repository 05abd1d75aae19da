package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"

	"flowboard/api/internal/config"
	"flowboard/api/internal/rbac"
	"flowboard/api/internal/realtime"
	"flowboard/api/internal/session"
	"flowboard/api/internal/store"
	"flowboard/api/internal/util"
)

// Session is the authenticated caller resolved from an access token.
type Session struct {
	UserID   string
	UserName string
	JTI      string
}

type dataStore interface {
	Ping(context.Context) error
	InsertUser(context.Context, store.User) error
	GetUserByEmail(context.Context, string) (store.User, error)
	GetUserByID(context.Context, string) (store.User, error)
	InsertBoard(context.Context, store.Board) (store.Board, error)
	GetBoard(context.Context, string) (store.Board, error)
	GetBoardContents(context.Context, string) (store.BoardContents, error)
	ListBoardsForUser(context.Context, string) ([]store.Board, error)
	RenameBoard(context.Context, string, string) (store.Board, error)
	DeleteBoard(context.Context, string) error
	GetMemberRole(context.Context, string, string) (string, error)
	ListMembers(context.Context, string) ([]store.BoardMember, error)
	AddMember(context.Context, string, string, string) (store.BoardMember, error)
	UpdateMemberRole(context.Context, string, string, string) error
	RemoveMember(context.Context, string, string) error
	BoardIDForList(context.Context, string) (string, error)
	BoardIDForTask(context.Context, string) (string, error)
	CreateList(context.Context, string, string, string) (store.List, error)
	RenameList(context.Context, string, string) (store.List, error)
	DeleteList(context.Context, string) (string, error)
	ReorderLists(context.Context, string, int) (string, []store.List, error)
	CreateTask(context.Context, string, string, store.TaskDraft) (store.Task, error)
	GetTask(context.Context, string) (store.Task, error)
	UpdateTask(context.Context, string, store.TaskUpdate) (store.Task, error)
	DeleteTask(context.Context, string) (store.Task, error)
	MoveTask(context.Context, string, string, int) (store.TaskMove, error)
	ListTasks(context.Context, string) ([]store.Task, error)
	InsertActivity(context.Context, store.Activity) error
	ListActivities(context.Context, string, int, int) ([]store.Activity, int, error)
	InsertComment(context.Context, store.Comment) (store.Comment, error)
	ListComments(context.Context, string) ([]store.Comment, error)
	CreateLabel(context.Context, store.Label) (store.Label, error)
	ListLabels(context.Context, string) ([]store.Label, error)
	DeleteLabel(context.Context, string, string) error
	AttachLabel(context.Context, string, string) (store.Task, error)
	DetachLabel(context.Context, string, string) (store.Task, error)
	InsertAttachment(context.Context, store.Attachment) (store.Attachment, error)
	GetAttachment(context.Context, string) (store.Attachment, error)
	ListAttachments(context.Context, string) ([]store.Attachment, error)
	DeleteAttachment(context.Context, string) (store.Attachment, error)
}

type sessionStore interface {
	Save(context.Context, string, session.Record, time.Time) error
	Lookup(context.Context, string) (session.Record, error)
	Revoke(context.Context, string) error
	Ping(context.Context) error
}

type broadcaster interface {
	Broadcast(room string, event realtime.Event)
	BroadcastUser(userID string, event realtime.Event)
}

type objectStore interface {
	PresignUpload(ctx context.Context, objectKey string) (string, error)
	PresignDownload(ctx context.Context, objectKey, fileName string) (string, error)
	Remove(ctx context.Context, objectKey string) error
}

type Service struct {
	cfg      config.Config
	store    dataStore
	sessions sessionStore
	hub      broadcaster
	objects  objectStore
	logger   *log.Logger

	postCommit []commitHook
}

func New(cfg config.Config, st dataStore, sessions sessionStore, hub broadcaster, objects objectStore, logger *log.Logger) *Service {
	if logger == nil {
		logger = log.StandardLogger()
	}
	s := &Service{
		cfg:      cfg,
		store:    st,
		sessions: sessions,
		hub:      hub,
		objects:  objects,
		logger:   logger,
	}
	// One post-commit hook chain for every mutation: audit first, then
	// fan-out. Each hook is fault-isolated; a failing hook can neither
	// affect the others nor the already-committed mutation.
	s.postCommit = []commitHook{
		s.recordActivity,
		s.broadcastMutation,
		s.sendNotifications,
	}
	return s
}

func (s *Service) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}

func (s *Service) PingSessions(ctx context.Context) error {
	if s.sessions == nil {
		return nil
	}
	return s.sessions.Ping(ctx)
}

// --- post-commit hooks ---

type notification struct {
	userID string
	event  realtime.Event
}

// mutation describes a committed structural change for post-commit
// processing. Nothing here runs unless the store transaction succeeded.
type mutation struct {
	boardID  string
	event    *realtime.Event
	activity *store.Activity
	notify   []notification
}

type commitHook func(ctx context.Context, m mutation)

func (s *Service) afterCommit(ctx context.Context, m mutation) {
	for _, hook := range s.postCommit {
		s.runHook(ctx, hook, m)
	}
}

func (s *Service) runHook(ctx context.Context, hook commitHook, m mutation) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.WithField("board", m.boardID).Errorf("post-commit hook panicked: %v", r)
		}
	}()
	hook(ctx, m)
}

func (s *Service) recordActivity(ctx context.Context, m mutation) {
	if m.activity == nil {
		return
	}
	activity := *m.activity
	if activity.ID == "" {
		activity.ID = util.NewID("act")
	}
	activity.BoardID = m.boardID
	if err := s.store.InsertActivity(ctx, activity); err != nil {
		s.logger.WithError(err).WithField("board", m.boardID).Error("record activity")
	}
}

func (s *Service) broadcastMutation(_ context.Context, m mutation) {
	if m.event == nil || s.hub == nil {
		return
	}
	s.hub.Broadcast(realtime.BoardRoom(m.boardID), *m.event)
}

func (s *Service) sendNotifications(_ context.Context, m mutation) {
	if s.hub == nil {
		return
	}
	for _, n := range m.notify {
		s.hub.BroadcastUser(n.userID, n.event)
	}
}

// --- Access Guard ---

func (s *Service) roleFor(ctx context.Context, boardID, userID string) (rbac.Role, error) {
	role, err := s.store.GetMemberRole(ctx, boardID, userID)
	if errors.Is(err, store.ErrNotFound) {
		// Fails closed: non-members and unknown boards look the same.
		return "", errForbidden()
	}
	if err != nil {
		return "", fmt.Errorf("resolve role: %w", err)
	}
	return rbac.Normalize(role), nil
}

func (s *Service) requireAccess(ctx context.Context, boardID, userID string, action rbac.Action) error {
	role, err := s.roleFor(ctx, boardID, userID)
	if err != nil {
		return err
	}
	if !rbac.Can(role, action) {
		return errForbidden()
	}
	return nil
}

// VerifyAccess implements the Access Guard contract for any member read.
func (s *Service) VerifyAccess(ctx context.Context, boardID, userID string) error {
	return s.requireAccess(ctx, boardID, userID, rbac.ActionRead)
}

// VerifyAdmin implements the Access Guard contract for owner/admin ops.
func (s *Service) VerifyAdmin(ctx context.Context, boardID, userID string) error {
	return s.requireAccess(ctx, boardID, userID, rbac.ActionManage)
}

// --- boards ---

func (s *Service) CreateBoard(ctx context.Context, sess Session, title string) (BoardDTO, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return BoardDTO{}, errBadRequest("title is required")
	}
	board, err := s.store.InsertBoard(ctx, store.Board{
		ID:      util.NewID("board"),
		Title:   title,
		OwnerID: sess.UserID,
	})
	if err != nil {
		return BoardDTO{}, err
	}
	s.afterCommit(ctx, mutation{
		boardID:  board.ID,
		activity: &store.Activity{ActorID: sess.UserID, Type: "board:created", Description: fmt.Sprintf("%s created the board", sess.UserName)},
	})
	return boardDTO(board), nil
}

func (s *Service) ListBoards(ctx context.Context, sess Session) ([]BoardDTO, error) {
	boards, err := s.store.ListBoardsForUser(ctx, sess.UserID)
	if err != nil {
		return nil, err
	}
	out := make([]BoardDTO, 0, len(boards))
	for _, b := range boards {
		out = append(out, boardDTO(b))
	}
	return out, nil
}

// GetBoard returns the board with its lists and tasks in position order.
func (s *Service) GetBoard(ctx context.Context, sess Session, boardID string) (BoardContentsDTO, error) {
	if err := s.requireAccess(ctx, boardID, sess.UserID, rbac.ActionRead); err != nil {
		return BoardContentsDTO{}, err
	}
	contents, err := s.store.GetBoardContents(ctx, boardID)
	if err != nil {
		return BoardContentsDTO{}, err
	}
	out := BoardContentsDTO{Board: boardDTO(contents.Board), Lists: make([]ListDTO, 0, len(contents.Lists))}
	for _, l := range contents.Lists {
		dto := listDTO(l)
		tasks := contents.Tasks[l.ID]
		dto.Tasks = make([]TaskDTO, 0, len(tasks))
		for _, t := range tasks {
			dto.Tasks = append(dto.Tasks, taskDTO(t))
		}
		out.Lists = append(out.Lists, dto)
	}
	return out, nil
}

func (s *Service) RenameBoard(ctx context.Context, sess Session, boardID, title string) (BoardDTO, error) {
	if err := s.requireAccess(ctx, boardID, sess.UserID, rbac.ActionManage); err != nil {
		return BoardDTO{}, err
	}
	title = strings.TrimSpace(title)
	if title == "" {
		return BoardDTO{}, errBadRequest("title is required")
	}
	board, err := s.store.RenameBoard(ctx, boardID, title)
	if err != nil {
		return BoardDTO{}, err
	}
	dto := boardDTO(board)
	s.afterCommit(ctx, mutation{
		boardID:  boardID,
		event:    &realtime.Event{Name: realtime.EventBoardUpdated, Payload: dto},
		activity: &store.Activity{ActorID: sess.UserID, Type: "board:renamed", Description: fmt.Sprintf("%s renamed the board to %q", sess.UserName, title)},
	})
	return dto, nil
}

func (s *Service) DeleteBoard(ctx context.Context, sess Session, boardID string) error {
	if err := s.requireAccess(ctx, boardID, sess.UserID, rbac.ActionDelete); err != nil {
		return err
	}
	if err := s.store.DeleteBoard(ctx, boardID); err != nil {
		return err
	}
	// The audit log went down with the board; only the event survives.
	s.afterCommit(ctx, mutation{
		boardID: boardID,
		event:   &realtime.Event{Name: realtime.EventBoardDeleted, Payload: map[string]string{"boardId": boardID}},
	})
	return nil
}

// --- memberships ---

func (s *Service) ListMembers(ctx context.Context, sess Session, boardID string) ([]MemberDTO, error) {
	if err := s.requireAccess(ctx, boardID, sess.UserID, rbac.ActionRead); err != nil {
		return nil, err
	}
	members, err := s.store.ListMembers(ctx, boardID)
	if err != nil {
		return nil, err
	}
	out := make([]MemberDTO, 0, len(members))
	for _, m := range members {
		out = append(out, memberDTO(m))
	}
	return out, nil
}

func (s *Service) AddMember(ctx context.Context, sess Session, boardID, userID, role string) (MemberDTO, error) {
	if err := s.requireAccess(ctx, boardID, sess.UserID, rbac.ActionManage); err != nil {
		return MemberDTO{}, err
	}
	normalized := rbac.Normalize(role)
	if normalized == rbac.RoleOwner {
		return MemberDTO{}, errBadRequest("ownership is granted at board creation")
	}
	member, err := s.store.AddMember(ctx, boardID, userID, string(normalized))
	if err != nil {
		return MemberDTO{}, err
	}
	user, userErr := s.store.GetUserByID(ctx, userID)
	if userErr == nil {
		member.UserName = user.Name
	}
	dto := memberDTO(member)
	s.afterCommit(ctx, mutation{
		boardID:  boardID,
		event:    &realtime.Event{Name: realtime.EventMemberAdded, Payload: dto},
		activity: &store.Activity{ActorID: sess.UserID, Type: "member:added", Description: fmt.Sprintf("%s added %s as %s", sess.UserName, member.UserName, member.Role)},
		notify: []notification{{
			userID: userID,
			event: realtime.Event{Name: realtime.EventNotification, Payload: map[string]string{
				"kind":    "board:invited",
				"boardId": boardID,
			}},
		}},
	})
	return dto, nil
}

func (s *Service) UpdateMemberRole(ctx context.Context, sess Session, boardID, userID, role string) error {
	if err := s.requireAccess(ctx, boardID, sess.UserID, rbac.ActionManage); err != nil {
		return err
	}
	current, err := s.store.GetMemberRole(ctx, boardID, userID)
	if err != nil {
		return err
	}
	if rbac.Normalize(current) == rbac.RoleOwner {
		return errBadRequest("the owner role cannot be changed")
	}
	normalized := rbac.Normalize(role)
	if normalized == rbac.RoleOwner {
		return errBadRequest("ownership is granted at board creation")
	}
	if err := s.store.UpdateMemberRole(ctx, boardID, userID, string(normalized)); err != nil {
		return err
	}
	s.afterCommit(ctx, mutation{
		boardID:  boardID,
		event:    &realtime.Event{Name: realtime.EventMemberUpdated, Payload: map[string]string{"boardId": boardID, "userId": userID, "role": string(normalized)}},
		activity: &store.Activity{ActorID: sess.UserID, Type: "member:role", Description: fmt.Sprintf("%s changed a member role to %s", sess.UserName, normalized)},
	})
	return nil
}

// RemoveMember removes a member. Members may always remove themselves;
// removing anyone else takes the manage permission.
func (s *Service) RemoveMember(ctx context.Context, sess Session, boardID, userID string) error {
	if userID != sess.UserID {
		if err := s.requireAccess(ctx, boardID, sess.UserID, rbac.ActionManage); err != nil {
			return err
		}
	} else if err := s.requireAccess(ctx, boardID, sess.UserID, rbac.ActionRead); err != nil {
		return err
	}
	if err := s.store.RemoveMember(ctx, boardID, userID); err != nil {
		return err
	}
	s.afterCommit(ctx, mutation{
		boardID:  boardID,
		event:    &realtime.Event{Name: realtime.EventMemberRemoved, Payload: map[string]string{"boardId": boardID, "userId": userID}},
		activity: &store.Activity{ActorID: sess.UserID, Type: "member:removed", Description: fmt.Sprintf("%s removed a member", sess.UserName)},
	})
	return nil
}

// --- activity feed ---

func (s *Service) Activities(ctx context.Context, sess Session, boardID string, page, limit int) (ActivityFeed, error) {
	if err := s.requireAccess(ctx, boardID, sess.UserID, rbac.ActionRead); err != nil {
		return ActivityFeed{}, err
	}
	if page < 1 {
		page = 1
	}
	if limit < 1 || limit > 100 {
		limit = s.cfg.ActivityPage
		if limit < 1 {
			limit = 20
		}
	}
	activities, total, err := s.store.ListActivities(ctx, boardID, page, limit)
	if err != nil {
		return ActivityFeed{}, err
	}
	feed := ActivityFeed{
		Activities: make([]ActivityDTO, 0, len(activities)),
		Pagination: Pagination{
			Page:       page,
			Limit:      limit,
			Total:      total,
			TotalPages: (total + limit - 1) / limit,
		},
	}
	for _, a := range activities {
		feed.Activities = append(feed.Activities, activityDTO(a))
	}
	return feed, nil
}
