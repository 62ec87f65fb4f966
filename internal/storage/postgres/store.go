// Package postgres is the pgx-backed entity store. Multi-record writes run
// in a single transaction.
package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	authdomain "github.com/crewboard/crewboard-backend/internal/auth/domain"
)

const (
	codeUniqueViolation     = "23505"
	codeForeignKeyViolation = "23503"
)

type Store struct {
	pool *pgxpool.Pool
}

func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// inTx runs fn in a transaction, rolling back on error.
func (s *Store) inTx(ctx context.Context, fn func(pgx.Tx) error) error {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func pgCode(err error) (code, constraint string) {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code, pgErr.ConstraintName
	}
	return "", ""
}

// querier is satisfied by the pool and by a transaction.
type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// ---- principals ----

func (s *Store) EnsurePrincipal(ctx context.Context, p *authdomain.Principal) (*authdomain.Principal, error) {
	const q = `
INSERT INTO principals (id, email, display_name, role)
VALUES ($1, $2, $3, $4)
ON CONFLICT (id) DO UPDATE
SET email = EXCLUDED.email, display_name = EXCLUDED.display_name, role = EXCLUDED.role, updated_at = now()
RETURNING id, email, display_name, role, created_at;
`
	var out authdomain.Principal
	err := s.pool.QueryRow(ctx, q, p.ID, p.Email, p.DisplayName, string(p.Role)).
		Scan(&out.ID, &out.Email, &out.DisplayName, &out.Role, &out.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("upsert principal: %w", err)
	}

	if out.ProjectIDs, err = principalProjects(ctx, s.pool, out.ID); err != nil {
		return nil, err
	}
	return &out, nil
}

func (s *Store) GetPrincipal(ctx context.Context, id string) (*authdomain.Principal, error) {
	const q = `
SELECT id, email, display_name, role, created_at
FROM principals
WHERE id = $1;
`
	var out authdomain.Principal
	err := s.pool.QueryRow(ctx, q, id).Scan(&out.ID, &out.Email, &out.DisplayName, &out.Role, &out.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, authdomain.ErrPrincipalNotFound
		}
		return nil, fmt.Errorf("get principal: %w", err)
	}

	if out.ProjectIDs, err = principalProjects(ctx, s.pool, out.ID); err != nil {
		return nil, err
	}
	return &out, nil
}

func principalProjects(ctx context.Context, q querier, principalID string) ([]string, error) {
	rows, err := q.Query(ctx, `SELECT project_id FROM principal_projects WHERE principal_id = $1 ORDER BY added_at`, principalID)
	if err != nil {
		return nil, fmt.Errorf("list principal projects: %w", err)
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("list principal projects: %w", err)
	}
	if ids == nil {
		ids = []string{}
	}
	return ids, nil
}
