package service

import (
	"context"

	"github.com/crewboard/crewboard-backend/internal/projects/domain"
)

// Store is the persistence the registry needs. Multi-record writes
// (create, member add/remove, cascade delete) are atomic: either every
// record changes or none does.
type Store interface {
	// CreateProject inserts p and appends p.ID to the owner's project list.
	// Returns domain.ErrInviteCodeTaken when the code collides.
	CreateProject(ctx context.Context, p *domain.Project) error
	GetProject(ctx context.Context, id string) (*domain.Project, error)
	GetProjectByInviteCode(ctx context.Context, code string) (*domain.Project, error)
	// ListProjectsForPrincipal returns projects owned by or shared with the
	// principal, newest first.
	ListProjectsForPrincipal(ctx context.Context, principalID string) ([]*domain.Project, error)
	// UpdateProject overwrites the mutable attributes of an existing project.
	UpdateProject(ctx context.Context, p *domain.Project) error
	// AddMember returns domain.ErrAlreadyMember when the principal is the
	// owner or already a member.
	AddMember(ctx context.Context, projectID, principalID string) (*domain.Project, error)
	// RemoveMember returns domain.ErrNotMember when the principal is not in
	// the member list.
	RemoveMember(ctx context.Context, projectID, principalID string) (*domain.Project, error)
	// DeleteProjectCascade removes the project, its tasks and comments and
	// the project id from every principal's list.
	DeleteProjectCascade(ctx context.Context, projectID string) error
}
