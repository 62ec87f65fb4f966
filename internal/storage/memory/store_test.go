package memory

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	authdomain "github.com/crewboard/crewboard-backend/internal/auth/domain"
	projectdomain "github.com/crewboard/crewboard-backend/internal/projects/domain"
	taskdomain "github.com/crewboard/crewboard-backend/internal/tasks/domain"
)

func seed(t *testing.T) (*Store, *projectdomain.Project) {
	t.Helper()
	ctx := context.Background()
	s := New()
	_, err := s.EnsurePrincipal(ctx, &authdomain.Principal{ID: "owner", Role: authdomain.RoleOwner})
	require.NoError(t, err)
	_, err = s.EnsurePrincipal(ctx, &authdomain.Principal{ID: "member", Role: authdomain.RoleMember})
	require.NoError(t, err)

	p := &projectdomain.Project{
		ID: "p1", Name: "Launch", Slug: "launch", OwnerID: "owner",
		InviteCode: "ABC123", Status: projectdomain.StatusActive, CreatedAt: time.Now(),
	}
	require.NoError(t, s.CreateProject(ctx, p))
	return s, p
}

func TestCreateProject_RegistersOnOwnerAndIndexesInvite(t *testing.T) {
	ctx := context.Background()
	s, p := seed(t)

	owner, err := s.GetPrincipal(ctx, "owner")
	require.NoError(t, err)
	assert.Equal(t, []string{p.ID}, owner.ProjectIDs)

	byCode, err := s.GetProjectByInviteCode(ctx, "ABC123")
	require.NoError(t, err)
	assert.Equal(t, p.ID, byCode.ID)

	dup := &projectdomain.Project{ID: "p2", OwnerID: "owner", InviteCode: "ABC123"}
	assert.ErrorIs(t, s.CreateProject(ctx, dup), projectdomain.ErrInviteCodeTaken)

	owner, _ = s.GetPrincipal(ctx, "owner")
	assert.Len(t, owner.ProjectIDs, 1, "failed create must not touch the owner")
}

func TestAddMember_ConcurrentDuplicateJoin(t *testing.T) {
	ctx := context.Background()
	s, p := seed(t)

	var wg sync.WaitGroup
	errs := make([]error, 8)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = s.AddMember(ctx, p.ID, "member")
		}(i)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
			continue
		}
		assert.ErrorIs(t, err, projectdomain.ErrAlreadyMember)
	}
	assert.Equal(t, 1, succeeded)

	got, _ := s.GetProject(ctx, p.ID)
	assert.Equal(t, []string{"member"}, got.Members)
	member, _ := s.GetPrincipal(ctx, "member")
	assert.Equal(t, []string{p.ID}, member.ProjectIDs)
}

func TestAddMember_OwnerRejected(t *testing.T) {
	s, p := seed(t)
	_, err := s.AddMember(context.Background(), p.ID, "owner")
	assert.ErrorIs(t, err, projectdomain.ErrAlreadyMember)
}

func TestRemoveMember_BothSides(t *testing.T) {
	ctx := context.Background()
	s, p := seed(t)
	_, err := s.AddMember(ctx, p.ID, "member")
	require.NoError(t, err)

	got, err := s.RemoveMember(ctx, p.ID, "member")
	require.NoError(t, err)
	assert.Empty(t, got.Members)

	member, _ := s.GetPrincipal(ctx, "member")
	assert.Empty(t, member.ProjectIDs)

	_, err = s.RemoveMember(ctx, p.ID, "member")
	assert.ErrorIs(t, err, projectdomain.ErrNotMember)
}

func TestSaveTask_KeepsComments(t *testing.T) {
	ctx := context.Background()
	s, p := seed(t)

	task := &taskdomain.Task{ID: "t1", Title: "Draft", ProjectID: p.ID, ReporterID: "owner",
		Status: taskdomain.StatusTodo, Priority: taskdomain.PriorityMedium}
	require.NoError(t, s.CreateTask(ctx, task))
	require.NoError(t, s.AppendComment(ctx, "t1", taskdomain.Comment{ID: "c1", AuthorID: "owner", Text: "hi"}))

	stale := task.Clone()
	stale.Status = taskdomain.StatusDone
	stale.ProjectID = "elsewhere"
	require.NoError(t, s.SaveTask(ctx, stale))

	got, err := s.GetTask(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, taskdomain.StatusDone, got.Status)
	assert.Equal(t, p.ID, got.ProjectID)
	require.Len(t, got.Comments, 1)
	assert.Equal(t, "c1", got.Comments[0].ID)
}

func TestCreateTask_UnknownProject(t *testing.T) {
	s := New()
	err := s.CreateTask(context.Background(), &taskdomain.Task{ID: "t1", ProjectID: "gone"})
	assert.ErrorIs(t, err, projectdomain.ErrProjectNotFound)
}

func TestListTasks_NewestFirst(t *testing.T) {
	ctx := context.Background()
	s, p := seed(t)
	base := time.Now()
	for i, id := range []string{"a", "b", "c"} {
		require.NoError(t, s.CreateTask(ctx, &taskdomain.Task{ID: id, ProjectID: p.ID, CreatedAt: base.Add(time.Duration(i) * time.Minute)}))
	}

	items, err := s.ListTasks(ctx, p.ID)
	require.NoError(t, err)
	ids := make([]string, 0, len(items))
	for _, it := range items {
		ids = append(ids, it.ID)
	}
	assert.Equal(t, []string{"c", "b", "a"}, ids)
}

func TestDeleteProjectCascade(t *testing.T) {
	ctx := context.Background()
	s, p := seed(t)
	_, err := s.AddMember(ctx, p.ID, "member")
	require.NoError(t, err)
	require.NoError(t, s.CreateTask(ctx, &taskdomain.Task{ID: "t1", ProjectID: p.ID}))
	require.NoError(t, s.AppendComment(ctx, "t1", taskdomain.Comment{ID: "c1"}))

	require.NoError(t, s.DeleteProjectCascade(ctx, p.ID))

	_, err = s.GetProject(ctx, p.ID)
	assert.ErrorIs(t, err, projectdomain.ErrProjectNotFound)
	_, err = s.GetTask(ctx, "t1")
	assert.ErrorIs(t, err, taskdomain.ErrTaskNotFound)
	_, err = s.GetProjectByInviteCode(ctx, p.InviteCode)
	assert.ErrorIs(t, err, projectdomain.ErrProjectNotFound)

	for _, id := range []string{"owner", "member"} {
		pr, _ := s.GetPrincipal(ctx, id)
		assert.NotContains(t, pr.ProjectIDs, p.ID)
	}
	assert.Empty(t, s.comments)
}

func TestSweepOrphans(t *testing.T) {
	ctx := context.Background()
	s, p := seed(t)

	// Simulate records left by an out-of-band delete.
	s.tasks["orphan"] = &taskRecord{task: &taskdomain.Task{ID: "orphan", ProjectID: "gone"}}
	s.principals["member"].ProjectIDs = []string{"gone", p.ID}

	res, err := s.SweepOrphans(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Tasks)
	assert.Equal(t, 1, res.Memberships)

	member, _ := s.GetPrincipal(ctx, "member")
	assert.Equal(t, []string{p.ID}, member.ProjectIDs)
}
