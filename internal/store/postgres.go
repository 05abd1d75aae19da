package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
)

type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) DB() *sql.DB {
	return s.db
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

func isForeignKeyViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23503"
}

// --- users ---

func (s *PostgresStore) InsertUser(ctx context.Context, user User) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (id, name, email, password_hash)
		VALUES ($1, $2, $3, $4)
	`, user.ID, user.Name, user.Email, user.PasswordHash)
	if isUniqueViolation(err) {
		return ErrDuplicate
	}
	if err != nil {
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetUserByEmail(ctx context.Context, email string) (User, error) {
	var user User
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, email, password_hash, created_at FROM users WHERE email=$1
	`, email).Scan(&user.ID, &user.Name, &user.Email, &user.PasswordHash, &user.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return User{}, ErrNotFound
	}
	if err != nil {
		return User{}, fmt.Errorf("get user by email: %w", err)
	}
	return user, nil
}

func (s *PostgresStore) GetUserByID(ctx context.Context, userID string) (User, error) {
	var user User
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, email, password_hash, created_at FROM users WHERE id=$1
	`, userID).Scan(&user.ID, &user.Name, &user.Email, &user.PasswordHash, &user.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return User{}, ErrNotFound
	}
	if err != nil {
		return User{}, fmt.Errorf("get user: %w", err)
	}
	return user, nil
}

// --- boards ---

// InsertBoard creates the board and its owner membership in one transaction.
func (s *PostgresStore) InsertBoard(ctx context.Context, board Board) (Board, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Board{}, fmt.Errorf("begin insert board: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	err = tx.QueryRowContext(ctx, `
		INSERT INTO boards (id, title, owner_id)
		VALUES ($1, $2, $3)
		RETURNING id, title, owner_id, created_at, updated_at
	`, board.ID, board.Title, board.OwnerID).Scan(
		&board.ID, &board.Title, &board.OwnerID, &board.CreatedAt, &board.UpdatedAt)
	if err != nil {
		return Board{}, fmt.Errorf("insert board: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO board_members (board_id, user_id, role) VALUES ($1, $2, 'owner')
	`, board.ID, board.OwnerID); err != nil {
		return Board{}, fmt.Errorf("insert owner membership: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return Board{}, fmt.Errorf("commit insert board: %w", err)
	}
	return board, nil
}

func (s *PostgresStore) GetBoard(ctx context.Context, boardID string) (Board, error) {
	var board Board
	err := s.db.QueryRowContext(ctx, `
		SELECT id, title, owner_id, created_at, updated_at FROM boards WHERE id=$1
	`, boardID).Scan(&board.ID, &board.Title, &board.OwnerID, &board.CreatedAt, &board.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Board{}, ErrNotFound
	}
	if err != nil {
		return Board{}, fmt.Errorf("get board: %w", err)
	}
	return board, nil
}

func (s *PostgresStore) ListBoardsForUser(ctx context.Context, userID string) ([]Board, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT b.id, b.title, b.owner_id, b.created_at, b.updated_at
		FROM boards b
		JOIN board_members m ON m.board_id = b.id
		WHERE m.user_id = $1
		ORDER BY b.updated_at DESC
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("list boards: %w", err)
	}
	defer rows.Close()

	boards := make([]Board, 0)
	for rows.Next() {
		var b Board
		if err := rows.Scan(&b.ID, &b.Title, &b.OwnerID, &b.CreatedAt, &b.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan board: %w", err)
		}
		boards = append(boards, b)
	}
	return boards, rows.Err()
}

func (s *PostgresStore) RenameBoard(ctx context.Context, boardID, title string) (Board, error) {
	var board Board
	err := s.db.QueryRowContext(ctx, `
		UPDATE boards SET title=$2, updated_at=NOW() WHERE id=$1
		RETURNING id, title, owner_id, created_at, updated_at
	`, boardID, title).Scan(&board.ID, &board.Title, &board.OwnerID, &board.CreatedAt, &board.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Board{}, ErrNotFound
	}
	if err != nil {
		return Board{}, fmt.Errorf("rename board: %w", err)
	}
	return board, nil
}

// DeleteBoard removes the board; lists, tasks, memberships and activities
// go with it through ON DELETE CASCADE.
func (s *PostgresStore) DeleteBoard(ctx context.Context, boardID string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM boards WHERE id=$1`, boardID)
	if err != nil {
		return fmt.Errorf("delete board: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// GetBoardContents loads a board with its lists and tasks in position order.
func (s *PostgresStore) GetBoardContents(ctx context.Context, boardID string) (BoardContents, error) {
	board, err := s.GetBoard(ctx, boardID)
	if err != nil {
		return BoardContents{}, err
	}

	contents := BoardContents{Board: board, Tasks: make(map[string][]Task)}

	listRows, err := s.db.QueryContext(ctx, `
		SELECT id, board_id, title, position, created_at, updated_at
		FROM lists WHERE board_id=$1 ORDER BY position
	`, boardID)
	if err != nil {
		return BoardContents{}, fmt.Errorf("load lists: %w", err)
	}
	defer listRows.Close()
	for listRows.Next() {
		var l List
		if err := listRows.Scan(&l.ID, &l.BoardID, &l.Title, &l.Position, &l.CreatedAt, &l.UpdatedAt); err != nil {
			return BoardContents{}, fmt.Errorf("scan list: %w", err)
		}
		contents.Lists = append(contents.Lists, l)
		contents.Tasks[l.ID] = []Task{}
	}
	if err := listRows.Err(); err != nil {
		return BoardContents{}, err
	}

	taskRows, err := s.db.QueryContext(ctx, `
		SELECT t.id, t.list_id, t.title, t.description, t.priority, t.due_date,
		       t.assignee_id, t.position, t.created_at, t.updated_at,
		       COALESCE(array_to_string(array_agg(tl.label_id) FILTER (WHERE tl.label_id IS NOT NULL), ','), '')
		FROM tasks t
		JOIN lists l ON l.id = t.list_id
		LEFT JOIN task_labels tl ON tl.task_id = t.id
		WHERE l.board_id = $1
		GROUP BY t.id
		ORDER BY t.list_id, t.position
	`, boardID)
	if err != nil {
		return BoardContents{}, fmt.Errorf("load tasks: %w", err)
	}
	defer taskRows.Close()
	for taskRows.Next() {
		var t Task
		var labels string
		if err := taskRows.Scan(&t.ID, &t.ListID, &t.Title, &t.Description, &t.Priority,
			&t.DueDate, &t.AssigneeID, &t.Position, &t.CreatedAt, &t.UpdatedAt, &labels); err != nil {
			return BoardContents{}, fmt.Errorf("scan task: %w", err)
		}
		t.LabelIDs = splitIDs(labels)
		contents.Tasks[t.ListID] = append(contents.Tasks[t.ListID], t)
	}
	return contents, taskRows.Err()
}

// --- memberships (Access Guard backing) ---

func (s *PostgresStore) GetMemberRole(ctx context.Context, boardID, userID string) (string, error) {
	var role string
	err := s.db.QueryRowContext(ctx, `
		SELECT role FROM board_members WHERE board_id=$1 AND user_id=$2
	`, boardID, userID).Scan(&role)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("get member role: %w", err)
	}
	return role, nil
}

func (s *PostgresStore) ListMembers(ctx context.Context, boardID string) ([]BoardMember, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT m.board_id, m.user_id, u.name, m.role, m.added_at
		FROM board_members m
		JOIN users u ON u.id = m.user_id
		WHERE m.board_id=$1
		ORDER BY m.added_at
	`, boardID)
	if err != nil {
		return nil, fmt.Errorf("list members: %w", err)
	}
	defer rows.Close()

	members := make([]BoardMember, 0)
	for rows.Next() {
		var m BoardMember
		if err := rows.Scan(&m.BoardID, &m.UserID, &m.UserName, &m.Role, &m.AddedAt); err != nil {
			return nil, fmt.Errorf("scan member: %w", err)
		}
		members = append(members, m)
	}
	return members, rows.Err()
}

func (s *PostgresStore) AddMember(ctx context.Context, boardID, userID, role string) (BoardMember, error) {
	var m BoardMember
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO board_members (board_id, user_id, role)
		VALUES ($1, $2, $3)
		RETURNING board_id, user_id, role, added_at
	`, boardID, userID, role).Scan(&m.BoardID, &m.UserID, &m.Role, &m.AddedAt)
	if isUniqueViolation(err) {
		return BoardMember{}, ErrDuplicate
	}
	if isForeignKeyViolation(err) {
		return BoardMember{}, ErrNotFound
	}
	if err != nil {
		return BoardMember{}, fmt.Errorf("add member: %w", err)
	}
	return m, nil
}

func (s *PostgresStore) UpdateMemberRole(ctx context.Context, boardID, userID, role string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE board_members SET role=$3 WHERE board_id=$1 AND user_id=$2
	`, boardID, userID, role)
	if err != nil {
		return fmt.Errorf("update member role: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// RemoveMember deletes a membership. Removing the last remaining owner is
// refused so a board can never become ownerless.
func (s *PostgresStore) RemoveMember(ctx context.Context, boardID, userID string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin remove member: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var role string
	err = tx.QueryRowContext(ctx, `
		SELECT role FROM board_members WHERE board_id=$1 AND user_id=$2 FOR UPDATE
	`, boardID, userID).Scan(&role)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("lookup membership: %w", err)
	}

	if role == "owner" {
		var owners int
		if err := tx.QueryRowContext(ctx, `
			SELECT COUNT(*) FROM board_members WHERE board_id=$1 AND role='owner'
		`, boardID).Scan(&owners); err != nil {
			return fmt.Errorf("count owners: %w", err)
		}
		if owners <= 1 {
			return ErrLastOwner
		}
	}

	if _, err := tx.ExecContext(ctx, `
		DELETE FROM board_members WHERE board_id=$1 AND user_id=$2
	`, boardID, userID); err != nil {
		return fmt.Errorf("remove member: %w", err)
	}
	return tx.Commit()
}

// BoardIDForList resolves the owning board of a list.
func (s *PostgresStore) BoardIDForList(ctx context.Context, listID string) (string, error) {
	var boardID string
	err := s.db.QueryRowContext(ctx, `SELECT board_id FROM lists WHERE id=$1`, listID).Scan(&boardID)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("board for list: %w", err)
	}
	return boardID, nil
}

// BoardIDForTask resolves the owning board of a task.
func (s *PostgresStore) BoardIDForTask(ctx context.Context, taskID string) (string, error) {
	var boardID string
	err := s.db.QueryRowContext(ctx, `
		SELECT l.board_id FROM tasks t JOIN lists l ON l.id = t.list_id WHERE t.id=$1
	`, taskID).Scan(&boardID)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("board for task: %w", err)
	}
	return boardID, nil
}
