package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"flowboard/api/internal/order"
)

// Structural mutations of the Board→List→Task hierarchy live here. Every
// operation is one transaction; positions are only ever written through
// renumberTx with a layout computed by the order package before any write.
// Serialization of concurrent mutations on the same parent comes from a
// row lock on that parent (board row for list mutations, list row for task
// mutations). Cross-list moves lock both list rows in lexicographic id
// order so two opposite moves cannot deadlock.

// TaskDraft carries the caller-supplied fields of a new task.
type TaskDraft struct {
	Title       string
	Description string
	Priority    string
	DueDate     *time.Time
	AssigneeID  *string
}

// TaskUpdate carries field edits; nil means "leave unchanged". SetDueDate
// and SetAssignee distinguish clearing a value from leaving it alone.
type TaskUpdate struct {
	Title       *string
	Description *string
	Priority    *string
	SetDueDate  bool
	DueDate     *string
	SetAssignee bool
	AssigneeID  *string
}

func splitIDs(joined string) []string {
	if joined == "" {
		return []string{}
	}
	return strings.Split(joined, ",")
}

// renumberTx writes a position layout in a single batched statement. The
// deferred unique constraint on (parent, position) checks the contiguity
// claim at commit.
func renumberTx(ctx context.Context, tx *sql.Tx, table string, layout []order.Placement) error {
	if len(layout) == 0 {
		return nil
	}
	ids := make([]string, len(layout))
	positions := make([]int32, len(layout))
	for i, p := range layout {
		ids[i] = p.ID
		positions[i] = int32(p.Position)
	}
	query := fmt.Sprintf(`
		UPDATE %s AS t SET position = u.pos
		FROM (SELECT unnest($1::text[]) AS id, unnest($2::int[]) AS pos) AS u
		WHERE t.id = u.id
	`, table)
	if _, err := tx.ExecContext(ctx, query, ids, positions); err != nil {
		return fmt.Errorf("renumber %s: %w", table, err)
	}
	return nil
}

// lockBoardTx takes the per-board critical section for list mutations.
func lockBoardTx(ctx context.Context, tx *sql.Tx, boardID string) error {
	var one int
	err := tx.QueryRowContext(ctx, `SELECT 1 FROM boards WHERE id=$1 FOR UPDATE`, boardID).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("lock board: %w", err)
	}
	return nil
}

// lockListTx takes the per-list critical section for task mutations and
// returns the owning board.
func lockListTx(ctx context.Context, tx *sql.Tx, listID string) (string, error) {
	var boardID string
	err := tx.QueryRowContext(ctx, `SELECT board_id FROM lists WHERE id=$1 FOR UPDATE`, listID).Scan(&boardID)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("lock list: %w", err)
	}
	return boardID, nil
}

// siblingsTx reads the ordered child ids of a parent plus their current
// positions, for computing a layout and skipping unchanged rows.
func siblingsTx(ctx context.Context, tx *sql.Tx, table, parentColumn, parentID string) ([]string, map[string]int, error) {
	query := fmt.Sprintf(`SELECT id, position FROM %s WHERE %s=$1 ORDER BY position`, table, parentColumn)
	rows, err := tx.QueryContext(ctx, query, parentID)
	if err != nil {
		return nil, nil, fmt.Errorf("read siblings: %w", err)
	}
	defer rows.Close()

	var ids []string
	current := make(map[string]int)
	for rows.Next() {
		var id string
		var pos int
		if err := rows.Scan(&id, &pos); err != nil {
			return nil, nil, fmt.Errorf("scan sibling: %w", err)
		}
		ids = append(ids, id)
		current[id] = pos
	}
	return ids, current, rows.Err()
}

func scanList(row *sql.Row) (List, error) {
	var l List
	err := row.Scan(&l.ID, &l.BoardID, &l.Title, &l.Position, &l.CreatedAt, &l.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return List{}, ErrNotFound
	}
	if err != nil {
		return List{}, fmt.Errorf("scan list: %w", err)
	}
	return l, nil
}

const taskColumns = `t.id, t.list_id, t.title, t.description, t.priority, t.due_date,
	t.assignee_id, t.position, t.created_at, t.updated_at,
	COALESCE((SELECT array_to_string(array_agg(tl.label_id), ',') FROM task_labels tl WHERE tl.task_id = t.id), '')`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTask(row rowScanner) (Task, error) {
	var t Task
	var labels string
	err := row.Scan(&t.ID, &t.ListID, &t.Title, &t.Description, &t.Priority,
		&t.DueDate, &t.AssigneeID, &t.Position, &t.CreatedAt, &t.UpdatedAt, &labels)
	if errors.Is(err, sql.ErrNoRows) {
		return Task{}, ErrNotFound
	}
	if err != nil {
		return Task{}, fmt.Errorf("scan task: %w", err)
	}
	t.LabelIDs = splitIDs(labels)
	return t, nil
}

// --- lists ---

// CreateList appends a list at position n (current sibling count).
func (s *PostgresStore) CreateList(ctx context.Context, boardID, id, title string) (List, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return List{}, fmt.Errorf("begin create list: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := lockBoardTx(ctx, tx, boardID); err != nil {
		return List{}, err
	}

	var count int
	if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM lists WHERE board_id=$1`, boardID).Scan(&count); err != nil {
		return List{}, fmt.Errorf("count lists: %w", err)
	}

	list, err := scanList(tx.QueryRowContext(ctx, `
		INSERT INTO lists (id, board_id, title, position)
		VALUES ($1, $2, $3, $4)
		RETURNING id, board_id, title, position, created_at, updated_at
	`, id, boardID, title, count))
	if err != nil {
		return List{}, err
	}
	if err := tx.Commit(); err != nil {
		return List{}, fmt.Errorf("commit create list: %w", err)
	}
	return list, nil
}

func (s *PostgresStore) RenameList(ctx context.Context, listID, title string) (List, error) {
	list, err := scanList(s.db.QueryRowContext(ctx, `
		UPDATE lists SET title=$2, updated_at=NOW() WHERE id=$1
		RETURNING id, board_id, title, position, created_at, updated_at
	`, listID, title))
	if err != nil {
		return List{}, err
	}
	return list, nil
}

// DeleteList removes a list (cascading its tasks) and compacts the
// remaining sibling positions back to 0..n-2.
func (s *PostgresStore) DeleteList(ctx context.Context, listID string) (string, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("begin delete list: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var boardID string
	err = tx.QueryRowContext(ctx, `SELECT board_id FROM lists WHERE id=$1`, listID).Scan(&boardID)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("lookup list: %w", err)
	}

	if err := lockBoardTx(ctx, tx, boardID); err != nil {
		return "", err
	}

	ids, current, err := siblingsTx(ctx, tx, "lists", "board_id", boardID)
	if err != nil {
		return "", err
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM lists WHERE id=$1`, listID); err != nil {
		return "", fmt.Errorf("delete list: %w", err)
	}

	layout := order.Remove(ids, listID)
	if err := renumberTx(ctx, tx, "lists", order.Changed(layout, current)); err != nil {
		return "", err
	}
	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("commit delete list: %w", err)
	}
	return boardID, nil
}

// ReorderLists moves a list to position within its board and returns the
// board's lists in their final order. A move to the current position is a
// no-op apart from the list's revision stamp.
func (s *PostgresStore) ReorderLists(ctx context.Context, listID string, position int) (string, []List, error) {
	if position < 0 {
		return "", nil, ErrInvalidPosition
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", nil, fmt.Errorf("begin reorder lists: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var boardID string
	err = tx.QueryRowContext(ctx, `SELECT board_id FROM lists WHERE id=$1`, listID).Scan(&boardID)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil, ErrNotFound
	}
	if err != nil {
		return "", nil, fmt.Errorf("lookup list: %w", err)
	}

	if err := lockBoardTx(ctx, tx, boardID); err != nil {
		return "", nil, err
	}

	ids, current, err := siblingsTx(ctx, tx, "lists", "board_id", boardID)
	if err != nil {
		return "", nil, err
	}

	layout := order.MoveTo(ids, listID, position)
	if err := renumberTx(ctx, tx, "lists", order.Changed(layout, current)); err != nil {
		return "", nil, err
	}
	// Revision bump on the moved list, even when the layout is unchanged.
	if _, err := tx.ExecContext(ctx, `UPDATE lists SET updated_at=NOW() WHERE id=$1`, listID); err != nil {
		return "", nil, fmt.Errorf("touch list: %w", err)
	}

	rows, err := tx.QueryContext(ctx, `
		SELECT id, board_id, title, position, created_at, updated_at
		FROM lists WHERE board_id=$1 ORDER BY position
	`, boardID)
	if err != nil {
		return "", nil, fmt.Errorf("reload lists: %w", err)
	}
	defer rows.Close()
	var lists []List
	for rows.Next() {
		var l List
		if err := rows.Scan(&l.ID, &l.BoardID, &l.Title, &l.Position, &l.CreatedAt, &l.UpdatedAt); err != nil {
			return "", nil, fmt.Errorf("scan list: %w", err)
		}
		lists = append(lists, l)
	}
	if err := rows.Err(); err != nil {
		return "", nil, err
	}
	if err := tx.Commit(); err != nil {
		return "", nil, fmt.Errorf("commit reorder lists: %w", err)
	}
	return boardID, lists, nil
}

// --- tasks ---

// CreateTask appends a task to the tail of a list.
func (s *PostgresStore) CreateTask(ctx context.Context, listID, id string, draft TaskDraft) (Task, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Task{}, fmt.Errorf("begin create task: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := lockListTx(ctx, tx, listID); err != nil {
		return Task{}, err
	}

	var count int
	if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM tasks WHERE list_id=$1`, listID).Scan(&count); err != nil {
		return Task{}, fmt.Errorf("count tasks: %w", err)
	}

	priority := draft.Priority
	if priority == "" {
		priority = "medium"
	}
	var due any
	if draft.DueDate != nil {
		due = *draft.DueDate
	}
	task, err := scanTask(tx.QueryRowContext(ctx, `
		INSERT INTO tasks (id, list_id, title, description, priority, due_date, assignee_id, position)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING `+taskColumns+`
	`, id, listID, draft.Title, draft.Description, priority, due, draft.AssigneeID, count))
	if err != nil {
		// The list row is already locked, so the only FK that can trip
		// here is assignee_id.
		if isForeignKeyViolation(err) {
			return Task{}, ErrNotFound
		}
		return Task{}, err
	}
	if err := tx.Commit(); err != nil {
		return Task{}, fmt.Errorf("commit create task: %w", err)
	}
	return task, nil
}

func (s *PostgresStore) GetTask(ctx context.Context, taskID string) (Task, error) {
	return scanTask(s.db.QueryRowContext(ctx, `
		SELECT `+taskColumns+` FROM tasks t WHERE t.id=$1
	`, taskID))
}

// UpdateTask applies field edits. Ordering is untouched; the write still
// shares the task row's transaction boundary so the task:updated event
// carries a consistent snapshot.
func (s *PostgresStore) UpdateTask(ctx context.Context, taskID string, update TaskUpdate) (Task, error) {
	sets := []string{"updated_at=NOW()"}
	args := []any{taskID}
	next := 2
	add := func(expr string, value any) {
		sets = append(sets, fmt.Sprintf(expr, next))
		args = append(args, value)
		next++
	}
	if update.Title != nil {
		add("title=$%d", *update.Title)
	}
	if update.Description != nil {
		add("description=$%d", *update.Description)
	}
	if update.Priority != nil {
		add("priority=$%d", *update.Priority)
	}
	if update.SetDueDate {
		if update.DueDate == nil {
			sets = append(sets, "due_date=NULL")
		} else {
			add("due_date=$%d::timestamptz", *update.DueDate)
		}
	}
	if update.SetAssignee {
		if update.AssigneeID == nil {
			sets = append(sets, "assignee_id=NULL")
		} else {
			add("assignee_id=$%d", *update.AssigneeID)
		}
	}

	query := fmt.Sprintf(`
		UPDATE tasks AS t SET %s WHERE t.id=$1
		RETURNING `+taskColumns+`
	`, strings.Join(sets, ", "))
	task, err := scanTask(s.db.QueryRowContext(ctx, query, args...))
	if err != nil {
		if isForeignKeyViolation(err) {
			return Task{}, ErrNotFound
		}
		return Task{}, err
	}
	return task, nil
}

// DeleteTask removes a task and compacts its list. The deleted snapshot is
// returned for event fan-out.
func (s *PostgresStore) DeleteTask(ctx context.Context, taskID string) (Task, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Task{}, fmt.Errorf("begin delete task: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var listID string
	err = tx.QueryRowContext(ctx, `SELECT list_id FROM tasks WHERE id=$1`, taskID).Scan(&listID)
	if errors.Is(err, sql.ErrNoRows) {
		return Task{}, ErrNotFound
	}
	if err != nil {
		return Task{}, fmt.Errorf("lookup task: %w", err)
	}

	if _, err := lockListTx(ctx, tx, listID); err != nil {
		return Task{}, err
	}

	task, err := scanTask(tx.QueryRowContext(ctx, `SELECT `+taskColumns+` FROM tasks t WHERE t.id=$1`, taskID))
	if err != nil {
		return Task{}, err
	}

	ids, current, err := siblingsTx(ctx, tx, "tasks", "list_id", listID)
	if err != nil {
		return Task{}, err
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM tasks WHERE id=$1`, taskID); err != nil {
		return Task{}, fmt.Errorf("delete task: %w", err)
	}

	layout := order.Remove(ids, taskID)
	if err := renumberTx(ctx, tx, "tasks", order.Changed(layout, current)); err != nil {
		return Task{}, err
	}
	if err := tx.Commit(); err != nil {
		return Task{}, fmt.Errorf("commit delete task: %w", err)
	}
	return task, nil
}

// MoveTask moves a task to position inside toListID (or within its own
// list when toListID equals the current one). Ownership transfer, source
// compaction and destination insertion are one transaction.
func (s *PostgresStore) MoveTask(ctx context.Context, taskID, toListID string, position int) (TaskMove, error) {
	if position < 0 {
		return TaskMove{}, ErrInvalidPosition
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return TaskMove{}, fmt.Errorf("begin move task: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var fromListID string
	err = tx.QueryRowContext(ctx, `SELECT list_id FROM tasks WHERE id=$1`, taskID).Scan(&fromListID)
	if errors.Is(err, sql.ErrNoRows) {
		return TaskMove{}, ErrNotFound
	}
	if err != nil {
		return TaskMove{}, fmt.Errorf("lookup task: %w", err)
	}
	if toListID == "" {
		toListID = fromListID
	}

	if fromListID == toListID {
		if _, err := lockListTx(ctx, tx, fromListID); err != nil {
			return TaskMove{}, err
		}
		ids, current, err := siblingsTx(ctx, tx, "tasks", "list_id", fromListID)
		if err != nil {
			return TaskMove{}, err
		}
		layout := order.MoveTo(ids, taskID, position)
		if err := renumberTx(ctx, tx, "tasks", order.Changed(layout, current)); err != nil {
			return TaskMove{}, err
		}
		if _, err := tx.ExecContext(ctx, `UPDATE tasks SET updated_at=NOW() WHERE id=$1`, taskID); err != nil {
			return TaskMove{}, fmt.Errorf("touch task: %w", err)
		}
	} else {
		// Fixed global lock order prevents deadlock between two moves
		// crossing the same pair of lists in opposite directions.
		first, second := fromListID, toListID
		if second < first {
			first, second = second, first
		}
		boards := make(map[string]string, 2)
		for _, lid := range []string{first, second} {
			boardID, err := lockListTx(ctx, tx, lid)
			if err != nil {
				return TaskMove{}, err
			}
			boards[lid] = boardID
		}
		if boards[fromListID] != boards[toListID] {
			return TaskMove{}, ErrCrossBoardMove
		}

		srcIDs, srcCurrent, err := siblingsTx(ctx, tx, "tasks", "list_id", fromListID)
		if err != nil {
			return TaskMove{}, err
		}
		destIDs, destCurrent, err := siblingsTx(ctx, tx, "tasks", "list_id", toListID)
		if err != nil {
			return TaskMove{}, err
		}

		if _, err := tx.ExecContext(ctx, `
			UPDATE tasks SET list_id=$2, updated_at=NOW() WHERE id=$1
		`, taskID, toListID); err != nil {
			return TaskMove{}, fmt.Errorf("reparent task: %w", err)
		}

		srcLayout := order.Remove(srcIDs, taskID)
		if err := renumberTx(ctx, tx, "tasks", order.Changed(srcLayout, srcCurrent)); err != nil {
			return TaskMove{}, err
		}
		destLayout := order.InsertAt(destIDs, taskID, position)
		if err := renumberTx(ctx, tx, "tasks", order.Changed(destLayout, destCurrent)); err != nil {
			return TaskMove{}, err
		}
	}

	task, err := scanTask(tx.QueryRowContext(ctx, `SELECT `+taskColumns+` FROM tasks t WHERE t.id=$1`, taskID))
	if err != nil {
		return TaskMove{}, err
	}
	if err := tx.Commit(); err != nil {
		return TaskMove{}, fmt.Errorf("commit move task: %w", err)
	}
	return TaskMove{Task: task, FromListID: fromListID, ToListID: toListID}, nil
}

// ListTasks returns the tasks of a list in position order.
func (s *PostgresStore) ListTasks(ctx context.Context, listID string) ([]Task, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+taskColumns+` FROM tasks t WHERE t.list_id=$1 ORDER BY t.position
	`, listID)
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	defer rows.Close()

	tasks := make([]Task, 0)
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, task)
	}
	return tasks, rows.Err()
}
