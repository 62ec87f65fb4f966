package client

import (
	"context"
	"errors"
	"fmt"

	"github.com/crewboard/crewboard-backend/internal/logging"
	"github.com/crewboard/crewboard-backend/internal/realtime"
	"github.com/crewboard/crewboard-backend/internal/tasks/domain"
)

// Board is a live view of one project: REST calls for mutations and the
// push channel for everyone else's changes, both feeding one Reconciler.
type Board struct {
	api    *Client
	stream *Stream
	view   *Reconciler
}

// OpenBoard subscribes first and then fetches the task list, so nothing
// published in between is lost.
func OpenBoard(ctx context.Context, api *Client, projectID string) (*Board, error) {
	stream, err := Dial(ctx, api.BaseURL(), api.Token())
	if err != nil {
		return nil, err
	}

	early, err := stream.Join(ctx, projectID)
	if err != nil {
		_ = stream.Close()
		return nil, err
	}

	b := &Board{api: api, stream: stream, view: NewReconciler(projectID)}
	if err := b.Refresh(ctx); err != nil {
		_ = stream.Close()
		return nil, err
	}
	for _, env := range early {
		if err := b.view.Apply(env); err != nil {
			logging.FromContext(ctx).WithError(err).Warn("skipping undecodable event")
		}
	}
	return b, nil
}

func (b *Board) View() *Reconciler { return b.view }

// Refresh replaces the local view with the server's task list.
func (b *Board) Refresh(ctx context.Context) error {
	tasks, err := b.api.ListTasks(ctx, b.view.ProjectID())
	if err != nil {
		return fmt.Errorf("list tasks: %w", err)
	}
	b.view.Replace(tasks)
	return nil
}

// Run applies pushed events until ctx ends or the stream closes. onEvent,
// if set, is called after each applied envelope.
func (b *Board) Run(ctx context.Context, onEvent func(realtime.Envelope)) error {
	for {
		env, err := b.stream.Next(ctx)
		if err != nil {
			if errors.Is(err, ErrStreamClosed) || ctx.Err() != nil {
				return nil
			}
			return err
		}
		if err := b.view.Apply(env); err != nil {
			logging.FromContext(ctx).WithError(err).Warn("skipping undecodable event")
			continue
		}
		if onEvent != nil {
			onEvent(env)
		}
		if b.view.Closed() {
			return nil
		}
	}
}

func (b *Board) CreateTask(ctx context.Context, in NewTask) (*domain.Task, error) {
	t, err := b.api.CreateTask(ctx, b.view.ProjectID(), in)
	if err != nil {
		return nil, err
	}
	b.view.ApplyCreated(t)
	return t, nil
}

func (b *Board) UpdateTask(ctx context.Context, id string, patch Patch) (*domain.Task, error) {
	t, err := b.api.UpdateTask(ctx, id, patch)
	if err != nil {
		return nil, err
	}
	b.view.ApplyUpdated(t)
	return t, nil
}

func (b *Board) DeleteTask(ctx context.Context, id string) error {
	if err := b.api.DeleteTask(ctx, id); err != nil {
		return err
	}
	b.view.ApplyDeleted(id)
	return nil
}

func (b *Board) AddComment(ctx context.Context, taskID, text string) (*domain.Comment, error) {
	c, err := b.api.AddComment(ctx, taskID, text)
	if err != nil {
		return nil, err
	}
	b.view.ApplyCommentAdded(taskID, *c)
	return c, nil
}

// MoveTask shows the new status locally at once and rolls back if the
// server rejects the change.
func (b *Board) MoveTask(ctx context.Context, id string, status domain.Status) (*domain.Task, error) {
	pending, err := b.view.BeginOptimistic(id, func(t *domain.Task) { t.Status = status })
	if err != nil {
		return nil, err
	}

	t, err := b.api.UpdateTask(ctx, id, Patch{"status": status})
	if err != nil {
		pending.Rollback()
		return nil, err
	}
	pending.Confirm(t)
	return t, nil
}

func (b *Board) Close() error {
	return b.stream.Close()
}
