package service

import (
	"context"
	"errors"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/crewboard/crewboard-backend/internal/access"
	"github.com/crewboard/crewboard-backend/internal/apperr"
	authdomain "github.com/crewboard/crewboard-backend/internal/auth/domain"
	"github.com/crewboard/crewboard-backend/internal/logging"
	"github.com/crewboard/crewboard-backend/internal/projects/domain"
	"github.com/crewboard/crewboard-backend/internal/realtime"
)

// MaxInviteCodeAttempts bounds invite code regeneration on collision.
const MaxInviteCodeAttempts = 5

// Registry owns project lifecycle and membership.
type Registry struct {
	store   Store
	events  realtime.Broadcaster
	now     func() time.Time
	newCode func() (string, error)
}

func NewRegistry(store Store, events realtime.Broadcaster) *Registry {
	if events == nil {
		events = realtime.Nop{}
	}
	return &Registry{
		store:   store,
		events:  events,
		now:     func() time.Time { return time.Now().UTC() },
		newCode: domain.NewInviteCode,
	}
}

func (r *Registry) CreateProject(ctx context.Context, owner *authdomain.Principal, in domain.CreateProjectInput) (*domain.Project, error) {
	if owner == nil || owner.Role != authdomain.RoleOwner {
		return nil, apperr.Forbidden("only owners can create projects")
	}

	name := strings.TrimSpace(in.Name)
	if err := validateName(name); err != nil {
		return nil, err
	}
	description := strings.TrimSpace(in.Description)
	if err := validateDescription(description); err != nil {
		return nil, err
	}
	status := in.Status
	if status == "" {
		status = domain.StatusActive
	}
	if !status.Valid() {
		return nil, apperr.Validation("invalid project status %q", status)
	}

	now := r.now()
	p := &domain.Project{
		ID:          uuid.NewString(),
		Name:        name,
		Slug:        domain.Slugify(name),
		Description: description,
		Deadline:    in.Deadline,
		OwnerID:     owner.ID,
		Members:     []string{},
		Status:      status,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	for i := 0; i < MaxInviteCodeAttempts; i++ {
		code, err := r.newCode()
		if err != nil {
			return nil, apperr.Internal("generate invite code", err)
		}
		p.InviteCode = code

		err = r.store.CreateProject(ctx, p)
		if err == nil {
			logging.Op(ctx, "create_project").WithField("project_id", p.ID).Info("project created")
			return p, nil
		}

		// invite code collision → retry
		if errors.Is(err, domain.ErrInviteCodeTaken) {
			continue
		}
		return nil, apperr.Internal("create project", err)
	}

	return nil, apperr.ResourceExhausted("could not allocate a unique invite code")
}

func (r *Registry) JoinProject(ctx context.Context, member *authdomain.Principal, inviteCode string) (*domain.Project, error) {
	if member == nil || member.Role != authdomain.RoleMember {
		return nil, apperr.Forbidden("only members can join projects")
	}

	code := domain.NormalizeInviteCode(inviteCode)
	if code == "" {
		return nil, apperr.Validation("invite code is required")
	}

	p, err := r.store.GetProjectByInviteCode(ctx, code)
	if err != nil {
		return nil, r.mapLookup(err, "join project")
	}
	if p.OwnerID == member.ID || p.HasMember(member.ID) {
		return nil, apperr.Conflict("already a member of this project")
	}

	updated, err := r.store.AddMember(ctx, p.ID, member.ID)
	switch {
	case err == nil:
		return updated, nil
	case errors.Is(err, domain.ErrAlreadyMember):
		return nil, apperr.Conflict("already a member of this project")
	case errors.Is(err, domain.ErrProjectNotFound):
		return nil, apperr.NotFound("project not found")
	default:
		return nil, apperr.Internal("join project", err)
	}
}

func (r *Registry) ListProjects(ctx context.Context, p *authdomain.Principal) ([]*domain.Project, error) {
	if p == nil {
		return nil, apperr.Unauthorized("authentication required")
	}
	items, err := r.store.ListProjectsForPrincipal(ctx, p.ID)
	if err != nil {
		return nil, apperr.Internal("list projects", err)
	}
	return items, nil
}

func (r *Registry) GetProject(ctx context.Context, p *authdomain.Principal, id string) (*domain.Project, error) {
	project, err := r.load(ctx, id, "get project")
	if err != nil {
		return nil, err
	}
	if !access.CanReadProject(p, project) {
		return nil, apperr.Forbidden("you do not have access to this project")
	}
	return project, nil
}

func (r *Registry) UpdateProject(ctx context.Context, p *authdomain.Principal, id string, patch domain.ProjectPatch) (*domain.Project, error) {
	project, err := r.load(ctx, id, "update project")
	if err != nil {
		return nil, err
	}
	if !access.CanWriteProject(p, project) {
		return nil, apperr.Forbidden("only the project owner can update it")
	}

	next := project.Clone()
	if patch.Name != nil {
		name := strings.TrimSpace(*patch.Name)
		if err := validateName(name); err != nil {
			return nil, err
		}
		next.Name = name
		next.Slug = domain.Slugify(name)
	}
	if patch.Description != nil {
		description := strings.TrimSpace(*patch.Description)
		if err := validateDescription(description); err != nil {
			return nil, err
		}
		next.Description = description
	}
	if patch.ClearDeadline {
		next.Deadline = nil
	} else if patch.Deadline != nil {
		d := *patch.Deadline
		next.Deadline = &d
	}
	if patch.Status != nil {
		if !patch.Status.Valid() {
			return nil, apperr.Validation("invalid project status %q", *patch.Status)
		}
		next.Status = *patch.Status
	}
	next.UpdatedAt = r.now()

	if err := r.store.UpdateProject(ctx, next); err != nil {
		return nil, r.mapLookup(err, "update project")
	}
	return next, nil
}

// RemoveMember revokes a member's access and evicts their live connections
// from the project group.
func (r *Registry) RemoveMember(ctx context.Context, p *authdomain.Principal, projectID, memberID string) (*domain.Project, error) {
	project, err := r.load(ctx, projectID, "remove member")
	if err != nil {
		return nil, err
	}
	if !access.CanWriteProject(p, project) {
		return nil, apperr.Forbidden("only the project owner can remove members")
	}
	if !project.HasMember(memberID) {
		return nil, apperr.NotFound("member not found in project")
	}

	updated, err := r.store.RemoveMember(ctx, projectID, memberID)
	switch {
	case err == nil:
	case errors.Is(err, domain.ErrNotMember):
		return nil, apperr.NotFound("member not found in project")
	default:
		return nil, r.mapLookup(err, "remove member")
	}

	r.events.EvictPrincipal(projectID, memberID)
	return updated, nil
}

// DeleteProject cascades to tasks and membership records, then tells the
// project group and closes it.
func (r *Registry) DeleteProject(ctx context.Context, p *authdomain.Principal, id string) error {
	project, err := r.load(ctx, id, "delete project")
	if err != nil {
		return err
	}
	if !access.CanDeleteProject(p, project) {
		return apperr.Forbidden("only the project owner can delete it")
	}

	if err := r.store.DeleteProjectCascade(ctx, id); err != nil {
		return r.mapLookup(err, "delete project")
	}

	r.events.Publish(id, realtime.Event{Name: realtime.EventProjectDeleted, Data: id})
	r.events.CloseGroup(id)
	logging.Op(ctx, "delete_project").WithField("project_id", id).Info("project deleted")
	return nil
}

func (r *Registry) load(ctx context.Context, id, op string) (*domain.Project, error) {
	project, err := r.store.GetProject(ctx, id)
	if err != nil {
		return nil, r.mapLookup(err, op)
	}
	return project, nil
}

func (r *Registry) mapLookup(err error, op string) error {
	if errors.Is(err, domain.ErrProjectNotFound) {
		return apperr.NotFound("project not found")
	}
	return apperr.Internal(op, err)
}

func validateName(name string) error {
	if name == "" {
		return apperr.Validation("project name is required")
	}
	if utf8.RuneCountInString(name) > domain.MaxNameLen {
		return apperr.Validation("project name must be at most %d characters", domain.MaxNameLen)
	}
	return nil
}

func validateDescription(description string) error {
	if utf8.RuneCountInString(description) > domain.MaxDescriptionLen {
		return apperr.Validation("project description must be at most %d characters", domain.MaxDescriptionLen)
	}
	return nil
}
