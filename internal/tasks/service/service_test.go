package service

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/crewboard/crewboard-backend/internal/apperr"
	authdomain "github.com/crewboard/crewboard-backend/internal/auth/domain"
	projectdomain "github.com/crewboard/crewboard-backend/internal/projects/domain"
	"github.com/crewboard/crewboard-backend/internal/realtime"
	"github.com/crewboard/crewboard-backend/internal/storage/memory"
	"github.com/crewboard/crewboard-backend/internal/tasks/domain"
)

type fixture struct {
	store    *memory.Store
	hub      *realtime.Hub
	svc      *Service
	project  *projectdomain.Project
	owner    *authdomain.Principal
	member   *authdomain.Principal
	outsider *authdomain.Principal
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	store := memory.New()
	hub := realtime.NewHub(16)

	ensure := func(id string, role authdomain.Role) *authdomain.Principal {
		p, err := store.EnsurePrincipal(ctx, &authdomain.Principal{ID: id, DisplayName: strings.ToUpper(id), Role: role})
		require.NoError(t, err)
		return p
	}
	f := &fixture{
		store:    store,
		hub:      hub,
		owner:    ensure("owner", authdomain.RoleOwner),
		member:   ensure("member", authdomain.RoleMember),
		outsider: ensure("outsider", authdomain.RoleMember),
	}

	f.project = &projectdomain.Project{ID: "launch", Name: "Launch", Slug: "launch", OwnerID: "owner", InviteCode: "LAUNCH", Status: projectdomain.StatusActive}
	require.NoError(t, store.CreateProject(ctx, f.project))
	_, err := store.AddMember(ctx, f.project.ID, "member")
	require.NoError(t, err)

	f.svc = NewService(store, store, hub)
	return f
}

func (f *fixture) subscribe(t *testing.T, principalID string) *realtime.Subscriber {
	t.Helper()
	s := f.hub.Register(principalID)
	require.NoError(t, f.hub.Join(s.ID, f.project.ID))
	return s
}

func next(t *testing.T, s *realtime.Subscriber) realtime.Envelope {
	t.Helper()
	select {
	case env := <-s.C():
		return env
	default:
		t.Fatalf("no event for %s", s.PrincipalID)
		return realtime.Envelope{}
	}
}

func none(t *testing.T, s *realtime.Subscriber) {
	t.Helper()
	select {
	case env := <-s.C():
		t.Fatalf("unexpected %s event", env.Event)
	default:
	}
}

func ptr[T any](v T) *T { return &v }

func TestLaunchScenario(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	ownerConn := f.subscribe(t, "owner")
	memberConn := f.subscribe(t, "member")

	task, err := f.svc.CreateTask(ctx, f.owner, f.project.ID, domain.CreateTaskInput{Title: "Draft spec"})
	require.NoError(t, err)
	assert.Equal(t, "owner", task.ReporterID)
	assert.Equal(t, domain.StatusTodo, task.Status)
	assert.Equal(t, domain.PriorityMedium, task.Priority)
	assert.Equal(t, 0.0, task.ActualHours)
	assert.Equal(t, realtime.EventTaskCreated, next(t, ownerConn).Event)
	assert.Equal(t, realtime.EventTaskCreated, next(t, memberConn).Event)

	_, err = f.svc.UpdateTask(ctx, f.member, task.ID, domain.TaskPatch{Status: ptr(domain.StatusDone)})
	assert.Equal(t, apperr.KindForbidden, apperr.KindOf(err))
	none(t, ownerConn)
	none(t, memberConn)

	stored, _ := f.store.GetTask(ctx, task.ID)
	assert.Equal(t, domain.StatusTodo, stored.Status)

	_, err = f.svc.UpdateTask(ctx, f.owner, task.ID, domain.TaskPatch{AssigneeID: ptr("member")})
	require.NoError(t, err)
	next(t, ownerConn)
	next(t, memberConn)

	updated, err := f.svc.UpdateTask(ctx, f.member, task.ID, domain.TaskPatch{Status: ptr(domain.StatusDone)})
	require.NoError(t, err)
	assert.Equal(t, domain.StatusDone, updated.Status)
	require.NotNil(t, updated.Assignee)
	assert.Equal(t, "MEMBER", updated.Assignee.DisplayName)

	for _, conn := range []*realtime.Subscriber{ownerConn, memberConn} {
		env := next(t, conn)
		assert.Equal(t, realtime.EventTaskUpdated, env.Event)
		assert.Equal(t, f.project.ID, env.ProjectID)

		var got domain.Task
		require.NoError(t, json.Unmarshal(env.Data, &got))
		assert.Equal(t, domain.StatusDone, got.Status)
		require.NotNil(t, got.Assignee)
		assert.Equal(t, "member", got.Assignee.ID)
	}
}

func TestCreateTask_Validation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	tests := []struct {
		name string
		who  *authdomain.Principal
		in   domain.CreateTaskInput
		kind apperr.Kind
	}{
		{"outsider", f.outsider, domain.CreateTaskInput{Title: "x"}, apperr.KindForbidden},
		{"missing title", f.member, domain.CreateTaskInput{Title: "  "}, apperr.KindValidation},
		{"long title", f.member, domain.CreateTaskInput{Title: strings.Repeat("t", 101)}, apperr.KindValidation},
		{"long description", f.member, domain.CreateTaskInput{Title: "x", Description: strings.Repeat("d", 501)}, apperr.KindValidation},
		{"bad status", f.member, domain.CreateTaskInput{Title: "x", Status: "doing"}, apperr.KindValidation},
		{"bad priority", f.member, domain.CreateTaskInput{Title: "x", Priority: "urgent"}, apperr.KindValidation},
		{"negative estimate", f.member, domain.CreateTaskInput{Title: "x", EstimatedHours: ptr(-1.0)}, apperr.KindValidation},
		{"negative actual", f.member, domain.CreateTaskInput{Title: "x", ActualHours: ptr(-0.5)}, apperr.KindValidation},
		{"unknown assignee", f.member, domain.CreateTaskInput{Title: "x", AssigneeID: ptr("ghost")}, apperr.KindValidation},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.CreateTask(ctx, tt.who, f.project.ID, tt.in)
			assert.Equal(t, tt.kind, apperr.KindOf(err))
		})
	}

	_, err := f.svc.CreateTask(ctx, f.owner, "missing", domain.CreateTaskInput{Title: "x"})
	assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))

	items, _ := f.store.ListTasks(ctx, f.project.ID)
	assert.Empty(t, items)
}

func TestCreateTask_MemberMayCreate(t *testing.T) {
	f := newFixture(t)
	task, err := f.svc.CreateTask(context.Background(), f.member, f.project.ID, domain.CreateTaskInput{
		Title:      "Write tests",
		Priority:   domain.PriorityHigh,
		AssigneeID: ptr("member"),
		Labels:     []string{"qa"},
	})
	require.NoError(t, err)
	assert.Equal(t, "member", task.ReporterID)
	assert.Equal(t, f.project.ID, task.ProjectID)
	require.NotNil(t, task.Assignee)
	assert.Equal(t, "member", task.Assignee.ID)
}

func TestUpdateTask_PartialMergeAndClear(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	task, err := f.svc.CreateTask(ctx, f.owner, f.project.ID, domain.CreateTaskInput{
		Title: "Draft", Description: "first", AssigneeID: ptr("member"), EstimatedHours: ptr(3.0),
	})
	require.NoError(t, err)

	updated, err := f.svc.UpdateTask(ctx, f.owner, task.ID, domain.TaskPatch{Priority: ptr(domain.PriorityCritical)})
	require.NoError(t, err)
	assert.Equal(t, "Draft", updated.Title)
	assert.Equal(t, "first", updated.Description)
	assert.Equal(t, domain.PriorityCritical, updated.Priority)
	assert.Equal(t, 3.0, *updated.EstimatedHours)

	updated, err = f.svc.UpdateTask(ctx, f.owner, task.ID, domain.TaskPatch{ClearAssignee: true})
	require.NoError(t, err)
	assert.Nil(t, updated.AssigneeID)
	assert.Nil(t, updated.Assignee)

	_, err = f.svc.UpdateTask(ctx, f.owner, task.ID, domain.TaskPatch{Title: ptr("")})
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))

	_, err = f.svc.UpdateTask(ctx, f.owner, task.ID, domain.TaskPatch{})
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))

	_, err = f.svc.UpdateTask(ctx, f.owner, "missing", domain.TaskPatch{Title: ptr("x")})
	assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))
}

func TestUpdateTask_PreservesComments(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	task, err := f.svc.CreateTask(ctx, f.owner, f.project.ID, domain.CreateTaskInput{Title: "Draft"})
	require.NoError(t, err)
	_, err = f.svc.AddComment(ctx, f.member, task.ID, "looks good")
	require.NoError(t, err)

	_, err = f.svc.UpdateTask(ctx, f.owner, task.ID, domain.TaskPatch{Status: ptr(domain.StatusBlocked)})
	require.NoError(t, err)

	stored, _ := f.store.GetTask(ctx, task.ID)
	require.Len(t, stored.Comments, 1)
	assert.Equal(t, "looks good", stored.Comments[0].Text)
}

func TestDeleteTask(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	conn := f.subscribe(t, "owner")

	task, err := f.svc.CreateTask(ctx, f.owner, f.project.ID, domain.CreateTaskInput{Title: "Draft"})
	require.NoError(t, err)
	next(t, conn)

	err = f.svc.DeleteTask(ctx, f.member, task.ID)
	assert.Equal(t, apperr.KindForbidden, apperr.KindOf(err))
	none(t, conn)

	require.NoError(t, f.svc.DeleteTask(ctx, f.owner, task.ID))
	env := next(t, conn)
	assert.Equal(t, realtime.EventTaskDeleted, env.Event)
	assert.JSONEq(t, `"`+task.ID+`"`, string(env.Data))

	err = f.svc.DeleteTask(ctx, f.owner, task.ID)
	assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))
}

func TestAddComment(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	conn := f.subscribe(t, "member")

	task, err := f.svc.CreateTask(ctx, f.owner, f.project.ID, domain.CreateTaskInput{Title: "Draft"})
	require.NoError(t, err)
	next(t, conn)

	c, err := f.svc.AddComment(ctx, f.member, task.ID, "  ship it ")
	require.NoError(t, err)
	assert.Equal(t, "ship it", c.Text)
	assert.Equal(t, "member", c.AuthorID)
	assert.NotEmpty(t, c.ID)

	env := next(t, conn)
	assert.Equal(t, realtime.EventCommentAdded, env.Event)
	var payload struct {
		TaskID  string         `json:"taskId"`
		Comment domain.Comment `json:"comment"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &payload))
	assert.Equal(t, task.ID, payload.TaskID)
	assert.Equal(t, c.ID, payload.Comment.ID)

	_, err = f.svc.AddComment(ctx, f.outsider, task.ID, "hi")
	assert.Equal(t, apperr.KindForbidden, apperr.KindOf(err))
	_, err = f.svc.AddComment(ctx, f.member, task.ID, "   ")
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))
	_, err = f.svc.AddComment(ctx, f.member, task.ID, strings.Repeat("c", 1001))
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))
	none(t, conn)
}

func TestListAndGetTasks(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	first, err := f.svc.CreateTask(ctx, f.owner, f.project.ID, domain.CreateTaskInput{Title: "First", AssigneeID: ptr("member")})
	require.NoError(t, err)
	second, err := f.svc.CreateTask(ctx, f.owner, f.project.ID, domain.CreateTaskInput{Title: "Second"})
	require.NoError(t, err)

	items, err := f.svc.ListTasks(ctx, f.member, f.project.ID)
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, second.ID, items[0].ID)
	assert.Equal(t, first.ID, items[1].ID)
	require.NotNil(t, items[1].Assignee)
	assert.Equal(t, "MEMBER", items[1].Assignee.DisplayName)

	_, err = f.svc.ListTasks(ctx, f.outsider, f.project.ID)
	assert.Equal(t, apperr.KindForbidden, apperr.KindOf(err))

	got, err := f.svc.GetTask(ctx, f.member, first.ID)
	require.NoError(t, err)
	assert.Equal(t, "First", got.Title)
	_, err = f.svc.GetTask(ctx, f.outsider, first.ID)
	assert.Equal(t, apperr.KindForbidden, apperr.KindOf(err))
}

// racingStore makes two updates read the same snapshot before either saves.
type racingStore struct {
	*memory.Store
	readers sync.WaitGroup

	mu        sync.Mutex
	lastSaved *domain.Task
}

func (s *racingStore) GetTask(ctx context.Context, id string) (*domain.Task, error) {
	t, err := s.Store.GetTask(ctx, id)
	s.readers.Done()
	s.readers.Wait()
	return t, err
}

func (s *racingStore) SaveTask(ctx context.Context, t *domain.Task) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.Store.SaveTask(ctx, t); err != nil {
		return err
	}
	s.lastSaved = t.Clone()
	return nil
}

func TestUpdateTask_LastCommitWins(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	task, err := f.svc.CreateTask(ctx, f.owner, f.project.ID, domain.CreateTaskInput{Title: "Draft", AssigneeID: ptr("member")})
	require.NoError(t, err)

	rs := &racingStore{Store: f.store}
	rs.readers.Add(2)
	svc := NewService(rs, f.store, f.hub)

	var wg sync.WaitGroup
	errs := make([]error, 2)
	wg.Add(2)
	go func() {
		defer wg.Done()
		_, errs[0] = svc.UpdateTask(ctx, f.owner, task.ID, domain.TaskPatch{Status: ptr(domain.StatusDone)})
	}()
	go func() {
		defer wg.Done()
		_, errs[1] = svc.UpdateTask(ctx, f.member, task.ID, domain.TaskPatch{Priority: ptr(domain.PriorityHigh)})
	}()
	wg.Wait()
	require.NoError(t, errs[0])
	require.NoError(t, errs[1])

	final, err := f.store.GetTask(ctx, task.ID)
	require.NoError(t, err)

	assert.Equal(t, rs.lastSaved.Status, final.Status)
	assert.Equal(t, rs.lastSaved.Priority, final.Priority)

	bothApplied := final.Status == domain.StatusDone && final.Priority == domain.PriorityHigh
	assert.False(t, bothApplied, "the earlier save is overwritten, not merged")
}
