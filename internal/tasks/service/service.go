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
	projectdomain "github.com/crewboard/crewboard-backend/internal/projects/domain"
	"github.com/crewboard/crewboard-backend/internal/realtime"
	"github.com/crewboard/crewboard-backend/internal/tasks/domain"
)

// Service runs task mutations: authorize, validate, persist, then publish.
// A failed mutation publishes nothing.
type Service struct {
	store      Store
	principals Principals
	events     realtime.Publisher
	now        func() time.Time
}

func NewService(store Store, principals Principals, events realtime.Publisher) *Service {
	if events == nil {
		events = realtime.Nop{}
	}
	return &Service{
		store:      store,
		principals: principals,
		events:     events,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

func (s *Service) CreateTask(ctx context.Context, p *authdomain.Principal, projectID string, in domain.CreateTaskInput) (*domain.Task, error) {
	project, err := s.project(ctx, projectID, "create task")
	if err != nil {
		return nil, err
	}
	if !access.CanReadProject(p, project) {
		return nil, apperr.Forbidden("you do not have access to this project")
	}

	now := s.now()
	t := &domain.Task{
		ID:          uuid.NewString(),
		Title:       strings.TrimSpace(in.Title),
		Description: strings.TrimSpace(in.Description),
		Status:      in.Status,
		Priority:    in.Priority,
		ProjectID:   project.ID,
		ReporterID:  p.ID,
		DueDate:     in.DueDate,
		Comments:    []domain.Comment{},
		Attachments: nonNil(in.Attachments),
		Labels:      nonNil(in.Labels),
		IsPrivate:   in.IsPrivate,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if t.Status == "" {
		t.Status = domain.StatusTodo
	}
	if t.Priority == "" {
		t.Priority = domain.PriorityMedium
	}
	if in.EstimatedHours != nil {
		h := *in.EstimatedHours
		t.EstimatedHours = &h
	}
	if in.ActualHours != nil {
		t.ActualHours = *in.ActualHours
	}
	if in.AssigneeID != nil && *in.AssigneeID != "" {
		id := *in.AssigneeID
		t.AssigneeID = &id
	}

	if err := validateTask(t); err != nil {
		return nil, err
	}
	assignee, err := s.checkAssignee(ctx, t.AssigneeID)
	if err != nil {
		return nil, err
	}

	if err := s.store.CreateTask(ctx, t); err != nil {
		if errors.Is(err, projectdomain.ErrProjectNotFound) {
			return nil, apperr.NotFound("project not found")
		}
		return nil, apperr.Internal("create task", err)
	}
	t.Assignee = assignee.Ref()

	s.events.Publish(t.ProjectID, realtime.Event{Name: realtime.EventTaskCreated, Data: t.Clone()})
	return t, nil
}

// UpdateTask merges patch into the stored task and saves it. Concurrent
// updates are not serialized; the last save wins.
func (s *Service) UpdateTask(ctx context.Context, p *authdomain.Principal, taskID string, patch domain.TaskPatch) (*domain.Task, error) {
	if patch.Empty() {
		return nil, apperr.Validation("no fields to update")
	}

	t, _, err := s.loadForMutation(ctx, p, taskID, "update task")
	if err != nil {
		return nil, err
	}

	applyPatch(t, patch)
	if err := validateTask(t); err != nil {
		return nil, err
	}
	var assignee *authdomain.Principal
	if patch.AssigneeID != nil && !patch.ClearAssignee {
		if assignee, err = s.checkAssignee(ctx, t.AssigneeID); err != nil {
			return nil, err
		}
	}
	t.UpdatedAt = s.now()

	if err := s.store.SaveTask(ctx, t); err != nil {
		return nil, s.mapTaskErr(err, "update task")
	}

	if assignee != nil {
		t.Assignee = assignee.Ref()
	} else {
		s.resolveAssignee(ctx, t)
	}

	s.events.Publish(t.ProjectID, realtime.Event{Name: realtime.EventTaskUpdated, Data: t.Clone()})
	return t, nil
}

func (s *Service) DeleteTask(ctx context.Context, p *authdomain.Principal, taskID string) error {
	t, _, err := s.loadForMutation(ctx, p, taskID, "delete task")
	if err != nil {
		return err
	}

	if err := s.store.DeleteTask(ctx, t.ID); err != nil {
		return s.mapTaskErr(err, "delete task")
	}

	s.events.Publish(t.ProjectID, realtime.Event{Name: realtime.EventTaskDeleted, Data: t.ID})
	return nil
}

func (s *Service) AddComment(ctx context.Context, p *authdomain.Principal, taskID, text string) (*domain.Comment, error) {
	t, err := s.task(ctx, taskID, "add comment")
	if err != nil {
		return nil, err
	}
	project, err := s.project(ctx, t.ProjectID, "add comment")
	if err != nil {
		return nil, err
	}
	if !access.CanCommentOnTask(p, t, project) {
		return nil, apperr.Forbidden("you do not have access to this task")
	}

	text = strings.TrimSpace(text)
	if text == "" {
		return nil, apperr.Validation("comment text is required")
	}
	if utf8.RuneCountInString(text) > domain.MaxCommentLen {
		return nil, apperr.Validation("comment must be at most %d characters", domain.MaxCommentLen)
	}

	c := domain.Comment{
		ID:        uuid.NewString(),
		AuthorID:  p.ID,
		Text:      text,
		CreatedAt: s.now(),
	}
	if err := s.store.AppendComment(ctx, t.ID, c); err != nil {
		return nil, s.mapTaskErr(err, "add comment")
	}

	s.events.Publish(t.ProjectID, realtime.Event{
		Name: realtime.EventCommentAdded,
		Data: realtime.CommentAddedPayload{TaskID: t.ID, Comment: c},
	})
	return &c, nil
}

func (s *Service) ListTasks(ctx context.Context, p *authdomain.Principal, projectID string) ([]*domain.Task, error) {
	project, err := s.project(ctx, projectID, "list tasks")
	if err != nil {
		return nil, err
	}
	if !access.CanReadProject(p, project) {
		return nil, apperr.Forbidden("you do not have access to this project")
	}

	items, err := s.store.ListTasks(ctx, projectID)
	if err != nil {
		return nil, apperr.Internal("list tasks", err)
	}
	cache := make(map[string]*authdomain.Ref)
	for _, t := range items {
		s.resolveAssigneeCached(ctx, t, cache)
	}
	return items, nil
}

func (s *Service) GetTask(ctx context.Context, p *authdomain.Principal, taskID string) (*domain.Task, error) {
	t, err := s.task(ctx, taskID, "get task")
	if err != nil {
		return nil, err
	}
	project, err := s.project(ctx, t.ProjectID, "get task")
	if err != nil {
		return nil, err
	}
	if !access.CanReadProject(p, project) {
		return nil, apperr.Forbidden("you do not have access to this task")
	}
	s.resolveAssignee(ctx, t)
	return t, nil
}

func (s *Service) loadForMutation(ctx context.Context, p *authdomain.Principal, taskID, op string) (*domain.Task, *projectdomain.Project, error) {
	t, err := s.task(ctx, taskID, op)
	if err != nil {
		return nil, nil, err
	}
	project, err := s.project(ctx, t.ProjectID, op)
	if err != nil {
		return nil, nil, err
	}
	if !access.CanMutateTask(p, t, project) {
		return nil, nil, apperr.Forbidden("only the assignee or the project owner can change this task")
	}
	return t, project, nil
}

func (s *Service) task(ctx context.Context, id, op string) (*domain.Task, error) {
	t, err := s.store.GetTask(ctx, id)
	if err != nil {
		return nil, s.mapTaskErr(err, op)
	}
	return t, nil
}

func (s *Service) project(ctx context.Context, id, op string) (*projectdomain.Project, error) {
	project, err := s.store.GetProject(ctx, id)
	if err != nil {
		if errors.Is(err, projectdomain.ErrProjectNotFound) {
			return nil, apperr.NotFound("project not found")
		}
		return nil, apperr.Internal(op, err)
	}
	return project, nil
}

func (s *Service) mapTaskErr(err error, op string) error {
	if errors.Is(err, domain.ErrTaskNotFound) {
		return apperr.NotFound("task not found")
	}
	return apperr.Internal(op, err)
}

// checkAssignee verifies that a newly set assignee exists.
func (s *Service) checkAssignee(ctx context.Context, id *string) (*authdomain.Principal, error) {
	if id == nil {
		return nil, nil
	}
	principal, err := s.principals.GetPrincipal(ctx, *id)
	if err != nil {
		if errors.Is(err, authdomain.ErrPrincipalNotFound) {
			return nil, apperr.Validation("assignee %q does not exist", *id)
		}
		return nil, apperr.Internal("resolve assignee", err)
	}
	return principal, nil
}

// resolveAssignee fills the read-side assignee view. A dangling id leaves it
// empty.
func (s *Service) resolveAssignee(ctx context.Context, t *domain.Task) {
	s.resolveAssigneeCached(ctx, t, nil)
}

func (s *Service) resolveAssigneeCached(ctx context.Context, t *domain.Task, cache map[string]*authdomain.Ref) {
	t.Assignee = nil
	if t.AssigneeID == nil {
		return
	}
	id := *t.AssigneeID
	if ref, ok := cache[id]; ok {
		t.Assignee = ref
		return
	}
	principal, err := s.principals.GetPrincipal(ctx, id)
	if err != nil {
		if !errors.Is(err, authdomain.ErrPrincipalNotFound) {
			logging.Op(ctx, "resolve_assignee").WithError(err).WithField("principal_id", id).Warn("assignee lookup failed")
		}
		return
	}
	t.Assignee = principal.Ref()
	if cache != nil {
		cache[id] = t.Assignee
	}
}

func applyPatch(t *domain.Task, patch domain.TaskPatch) {
	if patch.Title != nil {
		t.Title = strings.TrimSpace(*patch.Title)
	}
	if patch.Description != nil {
		t.Description = strings.TrimSpace(*patch.Description)
	}
	if patch.Status != nil {
		t.Status = *patch.Status
	}
	if patch.Priority != nil {
		t.Priority = *patch.Priority
	}
	if patch.ClearAssignee {
		t.AssigneeID = nil
	} else if patch.AssigneeID != nil {
		id := *patch.AssigneeID
		t.AssigneeID = &id
	}
	if patch.ClearDueDate {
		t.DueDate = nil
	} else if patch.DueDate != nil {
		d := *patch.DueDate
		t.DueDate = &d
	}
	if patch.EstimatedHours != nil {
		h := *patch.EstimatedHours
		t.EstimatedHours = &h
	}
	if patch.ActualHours != nil {
		t.ActualHours = *patch.ActualHours
	}
	if patch.Attachments != nil {
		t.Attachments = nonNil(*patch.Attachments)
	}
	if patch.Labels != nil {
		t.Labels = nonNil(*patch.Labels)
	}
	if patch.IsPrivate != nil {
		t.IsPrivate = *patch.IsPrivate
	}
}

func validateTask(t *domain.Task) error {
	if t.Title == "" {
		return apperr.Validation("task title is required")
	}
	if utf8.RuneCountInString(t.Title) > domain.MaxTitleLen {
		return apperr.Validation("task title must be at most %d characters", domain.MaxTitleLen)
	}
	if utf8.RuneCountInString(t.Description) > domain.MaxDescriptionLen {
		return apperr.Validation("task description must be at most %d characters", domain.MaxDescriptionLen)
	}
	if !t.Status.Valid() {
		return apperr.Validation("invalid task status %q", t.Status)
	}
	if !t.Priority.Valid() {
		return apperr.Validation("invalid task priority %q", t.Priority)
	}
	if t.EstimatedHours != nil && *t.EstimatedHours < 0 {
		return apperr.Validation("estimated hours must not be negative")
	}
	if t.ActualHours < 0 {
		return apperr.Validation("actual hours must not be negative")
	}
	if t.AssigneeID != nil && *t.AssigneeID == "" {
		return apperr.Validation("assignee id must not be empty")
	}
	return nil
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
