package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	projectdomain "github.com/crewboard/crewboard-backend/internal/projects/domain"
	"github.com/crewboard/crewboard-backend/internal/tasks/domain"
)

const taskColumns = `id, project_id, title, description, status, priority, assignee_id, reporter_id,
due_date, estimated_hours, actual_hours, attachments, labels, is_private, created_at, updated_at`

func scanTask(row pgx.Row) (*domain.Task, error) {
	var (
		t           domain.Task
		attachments []byte
	)
	err := row.Scan(&t.ID, &t.ProjectID, &t.Title, &t.Description, &t.Status, &t.Priority,
		&t.AssigneeID, &t.ReporterID, &t.DueDate, &t.EstimatedHours, &t.ActualHours,
		&attachments, &t.Labels, &t.IsPrivate, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(attachments, &t.Attachments); err != nil {
		return nil, fmt.Errorf("decode attachments: %w", err)
	}
	if t.Attachments == nil {
		t.Attachments = []domain.Attachment{}
	}
	if t.Labels == nil {
		t.Labels = []string{}
	}
	t.Comments = []domain.Comment{}
	return &t, nil
}

func encodeAttachments(a []domain.Attachment) (json.RawMessage, error) {
	if a == nil {
		a = []domain.Attachment{}
	}
	b, err := json.Marshal(a)
	if err != nil {
		return nil, fmt.Errorf("encode attachments: %w", err)
	}
	return b, nil
}

func labels(l []string) []string {
	if l == nil {
		return []string{}
	}
	return l
}

func (s *Store) CreateTask(ctx context.Context, t *domain.Task) error {
	attachments, err := encodeAttachments(t.Attachments)
	if err != nil {
		return err
	}

	const q = `
INSERT INTO tasks (id, project_id, title, description, status, priority, assignee_id, reporter_id,
                   due_date, estimated_hours, actual_hours, attachments, labels, is_private, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16);
`
	_, err = s.pool.Exec(ctx, q, t.ID, t.ProjectID, t.Title, t.Description, string(t.Status), string(t.Priority),
		t.AssigneeID, t.ReporterID, t.DueDate, t.EstimatedHours, t.ActualHours, attachments, labels(t.Labels),
		t.IsPrivate, t.CreatedAt, t.UpdatedAt)
	if err != nil {
		if code, constraint := pgCode(err); code == codeForeignKeyViolation && constraint == "tasks_project_id_fkey" {
			return projectdomain.ErrProjectNotFound
		}
		return fmt.Errorf("insert task: %w", err)
	}
	return nil
}

func (s *Store) GetTask(ctx context.Context, id string) (*domain.Task, error) {
	t, err := scanTask(s.pool.QueryRow(ctx, `SELECT `+taskColumns+` FROM tasks WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrTaskNotFound
		}
		return nil, fmt.Errorf("get task: %w", err)
	}
	if err := s.loadComments(ctx, []*domain.Task{t}); err != nil {
		return nil, err
	}
	return t, nil
}

// SaveTask overwrites the task's mutable columns. Comments live in their own
// table and are untouched.
func (s *Store) SaveTask(ctx context.Context, t *domain.Task) error {
	attachments, err := encodeAttachments(t.Attachments)
	if err != nil {
		return err
	}

	const q = `
UPDATE tasks
SET title = $2, description = $3, status = $4, priority = $5, assignee_id = $6, due_date = $7,
    estimated_hours = $8, actual_hours = $9, attachments = $10, labels = $11, is_private = $12, updated_at = $13
WHERE id = $1;
`
	tag, err := s.pool.Exec(ctx, q, t.ID, t.Title, t.Description, string(t.Status), string(t.Priority),
		t.AssigneeID, t.DueDate, t.EstimatedHours, t.ActualHours, attachments, labels(t.Labels), t.IsPrivate, t.UpdatedAt)
	if err != nil {
		return fmt.Errorf("update task: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrTaskNotFound
	}
	return nil
}

func (s *Store) DeleteTask(ctx context.Context, id string) error {
	// task_comments rows go with the task (ON DELETE CASCADE).
	tag, err := s.pool.Exec(ctx, `DELETE FROM tasks WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete task: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrTaskNotFound
	}
	return nil
}

func (s *Store) AppendComment(ctx context.Context, taskID string, c domain.Comment) error {
	const q = `
INSERT INTO task_comments (id, task_id, author_id, text, created_at)
VALUES ($1, $2, $3, $4, $5);
`
	_, err := s.pool.Exec(ctx, q, c.ID, taskID, c.AuthorID, c.Text, c.CreatedAt)
	if err != nil {
		if code, _ := pgCode(err); code == codeForeignKeyViolation {
			return domain.ErrTaskNotFound
		}
		return fmt.Errorf("insert comment: %w", err)
	}
	return nil
}

func (s *Store) ListTasks(ctx context.Context, projectID string) ([]*domain.Task, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+taskColumns+` FROM tasks WHERE project_id = $1 ORDER BY created_at DESC`, projectID)
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	defer rows.Close()

	out := make([]*domain.Task, 0, 16)
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("scan task: %w", err)
		}
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if err := s.loadComments(ctx, out); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Store) loadComments(ctx context.Context, tasks []*domain.Task) error {
	if len(tasks) == 0 {
		return nil
	}
	byID := make(map[string]*domain.Task, len(tasks))
	ids := make([]string, 0, len(tasks))
	for _, t := range tasks {
		byID[t.ID] = t
		ids = append(ids, t.ID)
	}

	rows, err := s.pool.Query(ctx, `
SELECT id, task_id, author_id, text, created_at
FROM task_comments
WHERE task_id = ANY($1)
ORDER BY created_at, id;
`, ids)
	if err != nil {
		return fmt.Errorf("list comments: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			c      domain.Comment
			taskID string
		)
		if err := rows.Scan(&c.ID, &taskID, &c.AuthorID, &c.Text, &c.CreatedAt); err != nil {
			return fmt.Errorf("scan comment: %w", err)
		}
		if t, ok := byID[taskID]; ok {
			t.Comments = append(t.Comments, c)
		}
	}
	return rows.Err()
}
