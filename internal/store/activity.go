package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// --- activities (append-only audit log) ---

func (s *PostgresStore) InsertActivity(ctx context.Context, activity Activity) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO activities (id, board_id, task_id, actor_id, type, description)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, activity.ID, activity.BoardID, activity.TaskID, activity.ActorID, activity.Type, activity.Description)
	if err != nil {
		return fmt.Errorf("insert activity: %w", err)
	}
	return nil
}

// ListActivities pages the board's audit log, newest first, and returns
// the total count for pagination metadata.
func (s *PostgresStore) ListActivities(ctx context.Context, boardID string, page, limit int) ([]Activity, int, error) {
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = 20
	}

	var total int
	if err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM activities WHERE board_id=$1
	`, boardID).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count activities: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT a.id, a.board_id, a.task_id, a.actor_id, COALESCE(u.name, a.actor_id),
		       a.type, a.description, a.created_at
		FROM activities a
		LEFT JOIN users u ON u.id = a.actor_id
		WHERE a.board_id=$1
		ORDER BY a.created_at DESC, a.id DESC
		LIMIT $2 OFFSET $3
	`, boardID, limit, (page-1)*limit)
	if err != nil {
		return nil, 0, fmt.Errorf("list activities: %w", err)
	}
	defer rows.Close()

	activities := make([]Activity, 0)
	for rows.Next() {
		var a Activity
		if err := rows.Scan(&a.ID, &a.BoardID, &a.TaskID, &a.ActorID, &a.ActorName,
			&a.Type, &a.Description, &a.CreatedAt); err != nil {
			return nil, 0, fmt.Errorf("scan activity: %w", err)
		}
		activities = append(activities, a)
	}
	return activities, total, rows.Err()
}

// --- comments ---

func (s *PostgresStore) InsertComment(ctx context.Context, comment Comment) (Comment, error) {
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO comments (id, task_id, author_id, body)
		VALUES ($1, $2, $3, $4)
		RETURNING created_at
	`, comment.ID, comment.TaskID, comment.AuthorID, comment.Body).Scan(&comment.CreatedAt)
	if isForeignKeyViolation(err) {
		return Comment{}, ErrNotFound
	}
	if err != nil {
		return Comment{}, fmt.Errorf("insert comment: %w", err)
	}
	return comment, nil
}

func (s *PostgresStore) ListComments(ctx context.Context, taskID string) ([]Comment, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT c.id, c.task_id, c.author_id, COALESCE(u.name, c.author_id), c.body, c.created_at
		FROM comments c
		LEFT JOIN users u ON u.id = c.author_id
		WHERE c.task_id=$1
		ORDER BY c.created_at
	`, taskID)
	if err != nil {
		return nil, fmt.Errorf("list comments: %w", err)
	}
	defer rows.Close()

	comments := make([]Comment, 0)
	for rows.Next() {
		var c Comment
		if err := rows.Scan(&c.ID, &c.TaskID, &c.AuthorID, &c.AuthorName, &c.Body, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan comment: %w", err)
		}
		comments = append(comments, c)
	}
	return comments, rows.Err()
}

// --- labels ---

func (s *PostgresStore) CreateLabel(ctx context.Context, label Label) (Label, error) {
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO labels (id, board_id, name, color)
		VALUES ($1, $2, $3, $4)
		RETURNING id, board_id, name, color
	`, label.ID, label.BoardID, label.Name, label.Color).Scan(&label.ID, &label.BoardID, &label.Name, &label.Color)
	if isForeignKeyViolation(err) {
		return Label{}, ErrNotFound
	}
	if err != nil {
		return Label{}, fmt.Errorf("create label: %w", err)
	}
	return label, nil
}

func (s *PostgresStore) ListLabels(ctx context.Context, boardID string) ([]Label, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, board_id, name, color FROM labels WHERE board_id=$1 ORDER BY name
	`, boardID)
	if err != nil {
		return nil, fmt.Errorf("list labels: %w", err)
	}
	defer rows.Close()

	labels := make([]Label, 0)
	for rows.Next() {
		var l Label
		if err := rows.Scan(&l.ID, &l.BoardID, &l.Name, &l.Color); err != nil {
			return nil, fmt.Errorf("scan label: %w", err)
		}
		labels = append(labels, l)
	}
	return labels, rows.Err()
}

// DeleteLabel removes a label, scoped to the board the caller was
// authorized on. A label id belonging to another board is not found.
func (s *PostgresStore) DeleteLabel(ctx context.Context, labelID, boardID string) error {
	result, err := s.db.ExecContext(ctx, `
		DELETE FROM labels WHERE id=$1 AND board_id=$2
	`, labelID, boardID)
	if err != nil {
		return fmt.Errorf("delete label: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete label result: %w", err)
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

// AttachLabel links a board label to a task on the same board. Attaching
// an already-attached label is idempotent.
func (s *PostgresStore) AttachLabel(ctx context.Context, taskID, labelID string) (Task, error) {
	var sameBoard bool
	err := s.db.QueryRowContext(ctx, `
		SELECT EXISTS(
			SELECT 1 FROM tasks t
			JOIN lists l ON l.id = t.list_id
			JOIN labels lb ON lb.board_id = l.board_id
			WHERE t.id=$1 AND lb.id=$2
		)
	`, taskID, labelID).Scan(&sameBoard)
	if err != nil {
		return Task{}, fmt.Errorf("check label board: %w", err)
	}
	if !sameBoard {
		return Task{}, ErrNotFound
	}

	if _, err := s.db.ExecContext(ctx, `
		INSERT INTO task_labels (task_id, label_id) VALUES ($1, $2)
		ON CONFLICT DO NOTHING
	`, taskID, labelID); err != nil {
		return Task{}, fmt.Errorf("attach label: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, `UPDATE tasks SET updated_at=NOW() WHERE id=$1`, taskID); err != nil {
		return Task{}, fmt.Errorf("touch task: %w", err)
	}
	return s.GetTask(ctx, taskID)
}

func (s *PostgresStore) DetachLabel(ctx context.Context, taskID, labelID string) (Task, error) {
	if _, err := s.db.ExecContext(ctx, `
		DELETE FROM task_labels WHERE task_id=$1 AND label_id=$2
	`, taskID, labelID); err != nil {
		return Task{}, fmt.Errorf("detach label: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, `UPDATE tasks SET updated_at=NOW() WHERE id=$1`, taskID); err != nil {
		return Task{}, fmt.Errorf("touch task: %w", err)
	}
	return s.GetTask(ctx, taskID)
}

// --- attachments ---

func (s *PostgresStore) InsertAttachment(ctx context.Context, attachment Attachment) (Attachment, error) {
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO attachments (id, task_id, object_key, file_name, content_type, size_bytes)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at
	`, attachment.ID, attachment.TaskID, attachment.ObjectKey, attachment.FileName,
		attachment.ContentType, attachment.SizeBytes).Scan(&attachment.CreatedAt)
	if isForeignKeyViolation(err) {
		return Attachment{}, ErrNotFound
	}
	if err != nil {
		return Attachment{}, fmt.Errorf("insert attachment: %w", err)
	}
	return attachment, nil
}

func (s *PostgresStore) GetAttachment(ctx context.Context, attachmentID string) (Attachment, error) {
	var a Attachment
	err := s.db.QueryRowContext(ctx, `
		SELECT id, task_id, object_key, file_name, content_type, size_bytes, created_at
		FROM attachments WHERE id=$1
	`, attachmentID).Scan(&a.ID, &a.TaskID, &a.ObjectKey, &a.FileName, &a.ContentType, &a.SizeBytes, &a.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Attachment{}, ErrNotFound
	}
	if err != nil {
		return Attachment{}, fmt.Errorf("get attachment: %w", err)
	}
	return a, nil
}

func (s *PostgresStore) ListAttachments(ctx context.Context, taskID string) ([]Attachment, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, task_id, object_key, file_name, content_type, size_bytes, created_at
		FROM attachments WHERE task_id=$1 ORDER BY created_at
	`, taskID)
	if err != nil {
		return nil, fmt.Errorf("list attachments: %w", err)
	}
	defer rows.Close()

	attachments := make([]Attachment, 0)
	for rows.Next() {
		var a Attachment
		if err := rows.Scan(&a.ID, &a.TaskID, &a.ObjectKey, &a.FileName, &a.ContentType, &a.SizeBytes, &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan attachment: %w", err)
		}
		attachments = append(attachments, a)
	}
	return attachments, rows.Err()
}

func (s *PostgresStore) DeleteAttachment(ctx context.Context, attachmentID string) (Attachment, error) {
	var a Attachment
	err := s.db.QueryRowContext(ctx, `
		DELETE FROM attachments WHERE id=$1
		RETURNING id, task_id, object_key, file_name, content_type, size_bytes, created_at
	`, attachmentID).Scan(&a.ID, &a.TaskID, &a.ObjectKey, &a.FileName, &a.ContentType, &a.SizeBytes, &a.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Attachment{}, ErrNotFound
	}
	if err != nil {
		return Attachment{}, fmt.Errorf("delete attachment: %w", err)
	}
	return a, nil
}
