package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/crewboard/crewboard-backend/internal/storage"
)

// SweepOrphans deletes principal list entries and tasks whose project is
// gone.
func (s *Store) SweepOrphans(ctx context.Context) (storage.SweepResult, error) {
	var res storage.SweepResult
	err := s.inTx(ctx, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `
DELETE FROM tasks t
WHERE NOT EXISTS (SELECT 1 FROM projects p WHERE p.id = t.project_id);
`)
		if err != nil {
			return fmt.Errorf("sweep tasks: %w", err)
		}
		res.Tasks = int(tag.RowsAffected())

		tag, err = tx.Exec(ctx, `
DELETE FROM principal_projects pp
WHERE NOT EXISTS (SELECT 1 FROM projects p WHERE p.id = pp.project_id);
`)
		if err != nil {
			return fmt.Errorf("sweep principal lists: %w", err)
		}
		res.Memberships = int(tag.RowsAffected())
		return nil
	})
	return res, err
}
