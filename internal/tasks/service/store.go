package service

import (
	"context"

	authdomain "github.com/crewboard/crewboard-backend/internal/auth/domain"
	projectdomain "github.com/crewboard/crewboard-backend/internal/projects/domain"
	"github.com/crewboard/crewboard-backend/internal/tasks/domain"
)

// Store is the task persistence the service needs. Comments live beside
// the task record: SaveTask never touches them and AppendComment is a
// single atomic append.
type Store interface {
	GetProject(ctx context.Context, id string) (*projectdomain.Project, error)
	// CreateTask returns projectdomain.ErrProjectNotFound if the project was
	// deleted concurrently.
	CreateTask(ctx context.Context, t *domain.Task) error
	GetTask(ctx context.Context, id string) (*domain.Task, error)
	// SaveTask overwrites every mutable field of an existing task. There is
	// no version check: the last save wins.
	SaveTask(ctx context.Context, t *domain.Task) error
	DeleteTask(ctx context.Context, id string) error
	AppendComment(ctx context.Context, taskID string, c domain.Comment) error
	// ListTasks returns the project's tasks, newest first.
	ListTasks(ctx context.Context, projectID string) ([]*domain.Task, error)
}

// Principals resolves assignee ids.
type Principals interface {
	GetPrincipal(ctx context.Context, id string) (*authdomain.Principal, error)
}
