package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	authdomain "github.com/crewboard/crewboard-backend/internal/auth/domain"
	"github.com/crewboard/crewboard-backend/internal/projects/domain"
)

const projectColumns = `id, name, slug, description, deadline, owner_id, invite_code, status, created_at, updated_at`

func scanProject(row pgx.Row) (*domain.Project, error) {
	var p domain.Project
	err := row.Scan(&p.ID, &p.Name, &p.Slug, &p.Description, &p.Deadline, &p.OwnerID,
		&p.InviteCode, &p.Status, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, err
	}
	p.Members = []string{}
	return &p, nil
}

// CreateProject inserts the project and registers it on the owner's list in
// one transaction.
func (s *Store) CreateProject(ctx context.Context, p *domain.Project) error {
	return s.inTx(ctx, func(tx pgx.Tx) error {
		const insert = `
INSERT INTO projects (id, name, slug, description, deadline, owner_id, invite_code, status, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10);
`
		_, err := tx.Exec(ctx, insert, p.ID, p.Name, p.Slug, p.Description, p.Deadline, p.OwnerID,
			p.InviteCode, string(p.Status), p.CreatedAt, p.UpdatedAt)
		if err != nil {
			code, constraint := pgCode(err)
			switch {
			// unique violation on invite_code → caller regenerates
			case code == codeUniqueViolation && constraint == "projects_invite_code_key":
				return domain.ErrInviteCodeTaken
			case code == codeForeignKeyViolation:
				return authdomain.ErrPrincipalNotFound
			}
			return fmt.Errorf("insert project: %w", err)
		}

		if _, err := tx.Exec(ctx, `INSERT INTO principal_projects (principal_id, project_id) VALUES ($1, $2)`, p.OwnerID, p.ID); err != nil {
			return fmt.Errorf("register project on owner: %w", err)
		}
		return nil
	})
}

func (s *Store) GetProject(ctx context.Context, id string) (*domain.Project, error) {
	return s.getProject(ctx, s.pool, `SELECT `+projectColumns+` FROM projects WHERE id = $1`, id)
}

func (s *Store) GetProjectByInviteCode(ctx context.Context, code string) (*domain.Project, error) {
	return s.getProject(ctx, s.pool, `SELECT `+projectColumns+` FROM projects WHERE invite_code = $1`, code)
}

func (s *Store) getProject(ctx context.Context, q querier, sql string, arg string) (*domain.Project, error) {
	p, err := scanProject(q.QueryRow(ctx, sql, arg))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrProjectNotFound
		}
		return nil, fmt.Errorf("get project: %w", err)
	}
	if err := loadMembers(ctx, q, []*domain.Project{p}); err != nil {
		return nil, err
	}
	return p, nil
}

func (s *Store) ListProjectsForPrincipal(ctx context.Context, principalID string) ([]*domain.Project, error) {
	const q = `
SELECT ` + projectColumns + `
FROM projects p
WHERE p.owner_id = $1
   OR EXISTS (SELECT 1 FROM project_members m WHERE m.project_id = p.id AND m.principal_id = $1)
ORDER BY p.created_at DESC;
`
	rows, err := s.pool.Query(ctx, q, principalID)
	if err != nil {
		return nil, fmt.Errorf("list projects: %w", err)
	}
	defer rows.Close()

	out := make([]*domain.Project, 0, 16)
	for rows.Next() {
		p, err := scanProject(rows)
		if err != nil {
			return nil, fmt.Errorf("scan project: %w", err)
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if err := loadMembers(ctx, s.pool, out); err != nil {
		return nil, err
	}
	return out, nil
}

func loadMembers(ctx context.Context, q querier, projects []*domain.Project) error {
	if len(projects) == 0 {
		return nil
	}
	byID := make(map[string]*domain.Project, len(projects))
	ids := make([]string, 0, len(projects))
	for _, p := range projects {
		byID[p.ID] = p
		ids = append(ids, p.ID)
	}

	rows, err := q.Query(ctx, `
SELECT project_id, principal_id
FROM project_members
WHERE project_id = ANY($1)
ORDER BY joined_at;
`, ids)
	if err != nil {
		return fmt.Errorf("list members: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var projectID, principalID string
		if err := rows.Scan(&projectID, &principalID); err != nil {
			return fmt.Errorf("scan member: %w", err)
		}
		if p, ok := byID[projectID]; ok {
			p.Members = append(p.Members, principalID)
		}
	}
	return rows.Err()
}

func (s *Store) UpdateProject(ctx context.Context, p *domain.Project) error {
	const q = `
UPDATE projects
SET name = $2, slug = $3, description = $4, deadline = $5, status = $6, updated_at = $7
WHERE id = $1;
`
	tag, err := s.pool.Exec(ctx, q, p.ID, p.Name, p.Slug, p.Description, p.Deadline, string(p.Status), p.UpdatedAt)
	if err != nil {
		return fmt.Errorf("update project: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrProjectNotFound
	}
	return nil
}

// AddMember locks the project row so concurrent joins by the same principal
// serialize; the loser sees ErrAlreadyMember.
func (s *Store) AddMember(ctx context.Context, projectID, principalID string) (*domain.Project, error) {
	var out *domain.Project
	err := s.inTx(ctx, func(tx pgx.Tx) error {
		var ownerID string
		err := tx.QueryRow(ctx, `SELECT owner_id FROM projects WHERE id = $1 FOR UPDATE`, projectID).Scan(&ownerID)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return domain.ErrProjectNotFound
			}
			return fmt.Errorf("lock project: %w", err)
		}
		if ownerID == principalID {
			return domain.ErrAlreadyMember
		}

		tag, err := tx.Exec(ctx, `
INSERT INTO project_members (project_id, principal_id) VALUES ($1, $2)
ON CONFLICT (project_id, principal_id) DO NOTHING;
`, projectID, principalID)
		if err != nil {
			if code, _ := pgCode(err); code == codeForeignKeyViolation {
				return authdomain.ErrPrincipalNotFound
			}
			return fmt.Errorf("insert member: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return domain.ErrAlreadyMember
		}

		if _, err := tx.Exec(ctx, `
INSERT INTO principal_projects (principal_id, project_id) VALUES ($1, $2)
ON CONFLICT (principal_id, project_id) DO NOTHING;
`, principalID, projectID); err != nil {
			return fmt.Errorf("register project on member: %w", err)
		}

		if _, err := tx.Exec(ctx, `UPDATE projects SET updated_at = $2 WHERE id = $1`, projectID, time.Now().UTC()); err != nil {
			return fmt.Errorf("touch project: %w", err)
		}

		out, err = s.getProject(ctx, tx, `SELECT `+projectColumns+` FROM projects WHERE id = $1`, projectID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Store) RemoveMember(ctx context.Context, projectID, principalID string) (*domain.Project, error) {
	var out *domain.Project
	err := s.inTx(ctx, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `DELETE FROM project_members WHERE project_id = $1 AND principal_id = $2`, projectID, principalID)
		if err != nil {
			return fmt.Errorf("delete member: %w", err)
		}
		if tag.RowsAffected() == 0 {
			var exists bool
			if err := tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM projects WHERE id = $1)`, projectID).Scan(&exists); err != nil {
				return fmt.Errorf("check project: %w", err)
			}
			if !exists {
				return domain.ErrProjectNotFound
			}
			return domain.ErrNotMember
		}

		if _, err := tx.Exec(ctx, `DELETE FROM principal_projects WHERE principal_id = $1 AND project_id = $2`, principalID, projectID); err != nil {
			return fmt.Errorf("unregister project on member: %w", err)
		}
		if _, err := tx.Exec(ctx, `UPDATE projects SET updated_at = $2 WHERE id = $1`, projectID, time.Now().UTC()); err != nil {
			return fmt.Errorf("touch project: %w", err)
		}

		out, err = s.getProject(ctx, tx, `SELECT `+projectColumns+` FROM projects WHERE id = $1`, projectID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// DeleteProjectCascade removes comments, tasks, list entries, memberships
// and the project in one transaction.
func (s *Store) DeleteProjectCascade(ctx context.Context, projectID string) error {
	return s.inTx(ctx, func(tx pgx.Tx) error {
		steps := []struct {
			name string
			sql  string
		}{
			{"comments", `DELETE FROM task_comments WHERE task_id IN (SELECT id FROM tasks WHERE project_id = $1)`},
			{"tasks", `DELETE FROM tasks WHERE project_id = $1`},
			{"principal lists", `DELETE FROM principal_projects WHERE project_id = $1`},
			{"members", `DELETE FROM project_members WHERE project_id = $1`},
		}
		for _, step := range steps {
			if _, err := tx.Exec(ctx, step.sql, projectID); err != nil {
				return fmt.Errorf("delete project %s: %w", step.name, err)
			}
		}

		tag, err := tx.Exec(ctx, `DELETE FROM projects WHERE id = $1`, projectID)
		if err != nil {
			return fmt.Errorf("delete project: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return domain.ErrProjectNotFound
		}
		return nil
	})
}
