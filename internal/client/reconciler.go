// Package client keeps a local view of one project board in sync with the
// API: direct mutation responses and pushed events are applied to the same
// ordered task list, idempotently.
package client

import (
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/crewboard/crewboard-backend/internal/realtime"
	"github.com/crewboard/crewboard-backend/internal/tasks/domain"
)

var ErrUnknownTask = errors.New("task is not on the board")

// Reconciler holds one project's tasks in server order. It is safe for
// concurrent use by a stream reader and the goroutine issuing mutations.
type Reconciler struct {
	mu        sync.Mutex
	projectID string
	tasks     []*domain.Task
	closed    bool

	// touched records the generation of the last server-sourced change per
	// task. Rollback compares it with the generation a Pending started at.
	touched map[string]uint64
	gen     uint64

	// deleted holds ids the server reported deleted. A create or update
	// for one of them arriving late is stale and is dropped.
	deleted map[string]struct{}
}

func NewReconciler(projectID string) *Reconciler {
	return &Reconciler{
		projectID: projectID,
		touched:   make(map[string]uint64),
		deleted:   make(map[string]struct{}),
	}
}

func (r *Reconciler) ProjectID() string { return r.projectID }

// Closed reports whether the project was deleted while the view was open.
func (r *Reconciler) Closed() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.closed
}

// Replace installs a full re-fetch, e.g. after a reconnect. The fetch is
// authoritative: it reopens a closed view and forgets earlier deletions.
func (r *Reconciler) Replace(tasks []*domain.Task) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.closed = false
	clear(r.deleted)
	r.tasks = make([]*domain.Task, 0, len(tasks))
	for _, t := range tasks {
		r.tasks = append(r.tasks, t.Clone())
		r.touchLocked(t.ID)
	}
}

// ApplyCreated appends t unless a task with its id is already present. The
// creator sees the same task twice: once in the response, once as the echo.
func (r *Reconciler) ApplyCreated(t *domain.Task) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if t == nil || r.indexLocked(t.ID) >= 0 || r.isDeletedLocked(t.ID) {
		return false
	}
	r.tasks = append(r.tasks, t.Clone())
	r.touchLocked(t.ID)
	return true
}

// ApplyUpdated replaces the task with t's id. Unknown and deleted ids are
// ignored.
func (r *Reconciler) ApplyUpdated(t *domain.Task) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if t == nil || r.isDeletedLocked(t.ID) {
		return false
	}
	i := r.indexLocked(t.ID)
	if i < 0 {
		return false
	}
	r.tasks[i] = t.Clone()
	r.touchLocked(t.ID)
	return true
}

// ApplyDeleted removes the task and remembers the id, also when the delete
// overtakes the create.
func (r *Reconciler) ApplyDeleted(taskID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.deleted[taskID] = struct{}{}
	i := r.indexLocked(taskID)
	if i < 0 {
		return false
	}
	r.tasks = slices.Delete(r.tasks, i, i+1)
	r.touchLocked(taskID)
	return true
}

// ApplyCommentAdded appends c to the task's comments. A comment id already
// present is skipped.
func (r *Reconciler) ApplyCommentAdded(taskID string, c domain.Comment) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	i := r.indexLocked(taskID)
	if i < 0 {
		return false
	}
	t := r.tasks[i]
	if c.ID != "" && slices.ContainsFunc(t.Comments, func(have domain.Comment) bool { return have.ID == c.ID }) {
		return false
	}
	t.Comments = append(t.Comments, c)
	r.touchLocked(taskID)
	return true
}

type commentAdded struct {
	TaskID  string         `json:"taskId"`
	Comment domain.Comment `json:"comment"`
}

// Apply decodes a pushed envelope and applies it. Events for other projects
// and unknown event names are ignored.
func (r *Reconciler) Apply(env realtime.Envelope) error {
	if env.ProjectID != "" && env.ProjectID != r.projectID {
		return nil
	}

	switch env.Event {
	case realtime.EventTaskCreated, realtime.EventTaskUpdated:
		var t domain.Task
		if err := json.Unmarshal(env.Data, &t); err != nil {
			return fmt.Errorf("decode %s: %w", env.Event, err)
		}
		if env.Event == realtime.EventTaskCreated {
			r.ApplyCreated(&t)
		} else {
			r.ApplyUpdated(&t)
		}
	case realtime.EventTaskDeleted:
		var id string
		if err := json.Unmarshal(env.Data, &id); err != nil {
			return fmt.Errorf("decode %s: %w", env.Event, err)
		}
		r.ApplyDeleted(id)
	case realtime.EventCommentAdded:
		var p commentAdded
		if err := json.Unmarshal(env.Data, &p); err != nil {
			return fmt.Errorf("decode %s: %w", env.Event, err)
		}
		r.ApplyCommentAdded(p.TaskID, p.Comment)
	case realtime.EventProjectDeleted, realtime.EventRemovedFromProject:
		r.mu.Lock()
		r.tasks = nil
		r.closed = true
		r.mu.Unlock()
	}
	return nil
}

// Tasks returns a copy of the board in order.
func (r *Reconciler) Tasks() []*domain.Task {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]*domain.Task, len(r.tasks))
	for i, t := range r.tasks {
		out[i] = t.Clone()
	}
	return out
}

// Task returns a copy of one task.
func (r *Reconciler) Task(id string) (*domain.Task, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	i := r.indexLocked(id)
	if i < 0 {
		return nil, false
	}
	return r.tasks[i].Clone(), true
}

// Pending is an optimistic change awaiting the server's answer. Exactly one
// of Confirm or Rollback should be called.
type Pending struct {
	r      *Reconciler
	taskID string
	prev   *domain.Task
	mark   uint64
}

// BeginOptimistic applies mutate to the local copy of the task immediately.
func (r *Reconciler) BeginOptimistic(taskID string, mutate func(*domain.Task)) (*Pending, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	i := r.indexLocked(taskID)
	if i < 0 {
		return nil, ErrUnknownTask
	}
	prev := r.tasks[i].Clone()
	next := r.tasks[i].Clone()
	mutate(next)
	r.tasks[i] = next

	return &Pending{r: r, taskID: taskID, prev: prev, mark: r.gen}, nil
}

// Confirm installs the server's version of the task.
func (p *Pending) Confirm(server *domain.Task) {
	if server == nil {
		return
	}
	p.r.ApplyUpdated(server)
}

// Rollback restores the task as it was before the optimistic change, unless
// a server change for the task arrived in the meantime; server state wins.
func (p *Pending) Rollback() bool {
	r := p.r
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.touched[p.taskID] > p.mark {
		return false
	}
	i := r.indexLocked(p.taskID)
	if i < 0 {
		return false
	}
	r.tasks[i] = p.prev
	return true
}

func (r *Reconciler) indexLocked(id string) int {
	return slices.IndexFunc(r.tasks, func(t *domain.Task) bool { return t.ID == id })
}

func (r *Reconciler) isDeletedLocked(id string) bool {
	_, ok := r.deleted[id]
	return ok
}

func (r *Reconciler) touchLocked(id string) {
	r.gen++
	r.touched[id] = r.gen
}
