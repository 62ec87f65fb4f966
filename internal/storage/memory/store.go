// Package memory is an in-process entity store. One mutex guards every
// record, so each multi-record write is atomic. It backs tests and
// single-instance development runs without DB_DSN.
package memory

import (
	"cmp"
	"context"
	"slices"
	"sync"
	"time"

	authdomain "github.com/crewboard/crewboard-backend/internal/auth/domain"
	projectdomain "github.com/crewboard/crewboard-backend/internal/projects/domain"
	"github.com/crewboard/crewboard-backend/internal/storage"
	taskdomain "github.com/crewboard/crewboard-backend/internal/tasks/domain"
)

type projectRecord struct {
	project *projectdomain.Project
	seq     uint64
}

type taskRecord struct {
	task *taskdomain.Task
	seq  uint64
}

type Store struct {
	mu         sync.RWMutex
	seq        uint64
	principals map[string]*authdomain.Principal
	projects   map[string]*projectRecord
	invites    map[string]string // invite code -> project id
	tasks      map[string]*taskRecord
	comments   map[string][]taskdomain.Comment // task id -> comments
}

func New() *Store {
	return &Store{
		principals: make(map[string]*authdomain.Principal),
		projects:   make(map[string]*projectRecord),
		invites:    make(map[string]string),
		tasks:      make(map[string]*taskRecord),
		comments:   make(map[string][]taskdomain.Comment),
	}
}

func (s *Store) next() uint64 {
	s.seq++
	return s.seq
}

// Ping satisfies the health check.
func (s *Store) Ping(context.Context) error { return nil }

// ---- principals ----

// EnsurePrincipal upserts identity fields and keeps the stored project list.
func (s *Store) EnsurePrincipal(_ context.Context, p *authdomain.Principal) (*authdomain.Principal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.principals[p.ID]
	if !ok {
		existing = &authdomain.Principal{ID: p.ID, ProjectIDs: []string{}, CreatedAt: time.Now().UTC()}
		s.principals[p.ID] = existing
	}
	existing.Email = p.Email
	existing.DisplayName = p.DisplayName
	existing.Role = p.Role
	return clonePrincipal(existing), nil
}

func (s *Store) GetPrincipal(_ context.Context, id string) (*authdomain.Principal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.principals[id]
	if !ok {
		return nil, authdomain.ErrPrincipalNotFound
	}
	return clonePrincipal(p), nil
}

func clonePrincipal(p *authdomain.Principal) *authdomain.Principal {
	cp := *p
	cp.ProjectIDs = slices.Clone(p.ProjectIDs)
	if cp.ProjectIDs == nil {
		cp.ProjectIDs = []string{}
	}
	return &cp
}

// ---- projects ----

func (s *Store) CreateProject(_ context.Context, p *projectdomain.Project) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, taken := s.invites[p.InviteCode]; taken {
		return projectdomain.ErrInviteCodeTaken
	}
	owner, ok := s.principals[p.OwnerID]
	if !ok {
		return authdomain.ErrPrincipalNotFound
	}

	s.projects[p.ID] = &projectRecord{project: p.Clone(), seq: s.next()}
	s.invites[p.InviteCode] = p.ID
	owner.ProjectIDs = append(owner.ProjectIDs, p.ID)
	return nil
}

func (s *Store) GetProject(_ context.Context, id string) (*projectdomain.Project, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.projects[id]
	if !ok {
		return nil, projectdomain.ErrProjectNotFound
	}
	return rec.project.Clone(), nil
}

func (s *Store) GetProjectByInviteCode(_ context.Context, code string) (*projectdomain.Project, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.invites[code]
	if !ok {
		return nil, projectdomain.ErrProjectNotFound
	}
	return s.projects[id].project.Clone(), nil
}

func (s *Store) ListProjectsForPrincipal(_ context.Context, principalID string) ([]*projectdomain.Project, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	recs := make([]*projectRecord, 0, 8)
	for _, rec := range s.projects {
		if rec.project.OwnerID == principalID || rec.project.HasMember(principalID) {
			recs = append(recs, rec)
		}
	}
	slices.SortFunc(recs, func(a, b *projectRecord) int {
		if c := b.project.CreatedAt.Compare(a.project.CreatedAt); c != 0 {
			return c
		}
		return cmp.Compare(b.seq, a.seq)
	})

	out := make([]*projectdomain.Project, 0, len(recs))
	for _, rec := range recs {
		out = append(out, rec.project.Clone())
	}
	return out, nil
}

func (s *Store) UpdateProject(_ context.Context, p *projectdomain.Project) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.projects[p.ID]
	if !ok {
		return projectdomain.ErrProjectNotFound
	}
	cur := rec.project
	cur.Name = p.Name
	cur.Slug = p.Slug
	cur.Description = p.Description
	cur.Status = p.Status
	cur.UpdatedAt = p.UpdatedAt
	cur.Deadline = nil
	if p.Deadline != nil {
		d := *p.Deadline
		cur.Deadline = &d
	}
	return nil
}

func (s *Store) AddMember(_ context.Context, projectID, principalID string) (*projectdomain.Project, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.projects[projectID]
	if !ok {
		return nil, projectdomain.ErrProjectNotFound
	}
	member, ok := s.principals[principalID]
	if !ok {
		return nil, authdomain.ErrPrincipalNotFound
	}
	p := rec.project
	if p.OwnerID == principalID || p.HasMember(principalID) {
		return nil, projectdomain.ErrAlreadyMember
	}

	p.Members = append(p.Members, principalID)
	p.UpdatedAt = time.Now().UTC()
	if !slices.Contains(member.ProjectIDs, projectID) {
		member.ProjectIDs = append(member.ProjectIDs, projectID)
	}
	return p.Clone(), nil
}

func (s *Store) RemoveMember(_ context.Context, projectID, principalID string) (*projectdomain.Project, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.projects[projectID]
	if !ok {
		return nil, projectdomain.ErrProjectNotFound
	}
	p := rec.project
	if !p.HasMember(principalID) {
		return nil, projectdomain.ErrNotMember
	}

	p.Members = slices.DeleteFunc(p.Members, func(id string) bool { return id == principalID })
	p.UpdatedAt = time.Now().UTC()
	if member, ok := s.principals[principalID]; ok {
		member.ProjectIDs = removeID(member.ProjectIDs, projectID)
	}
	return p.Clone(), nil
}

func (s *Store) DeleteProjectCascade(_ context.Context, projectID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.projects[projectID]
	if !ok {
		return projectdomain.ErrProjectNotFound
	}

	for id, t := range s.tasks {
		if t.task.ProjectID == projectID {
			delete(s.tasks, id)
			delete(s.comments, id)
		}
	}
	for _, p := range s.principals {
		p.ProjectIDs = removeID(p.ProjectIDs, projectID)
	}
	delete(s.invites, rec.project.InviteCode)
	delete(s.projects, projectID)
	return nil
}

func removeID(ids []string, id string) []string {
	return slices.DeleteFunc(ids, func(v string) bool { return v == id })
}

// ---- tasks ----

func (s *Store) CreateTask(_ context.Context, t *taskdomain.Task) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.projects[t.ProjectID]; !ok {
		return projectdomain.ErrProjectNotFound
	}
	s.tasks[t.ID] = &taskRecord{task: stripTask(t), seq: s.next()}
	s.comments[t.ID] = slices.Clone(t.Comments)
	return nil
}

func (s *Store) GetTask(_ context.Context, id string) (*taskdomain.Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.tasks[id]
	if !ok {
		return nil, taskdomain.ErrTaskNotFound
	}
	return s.hydrate(rec.task), nil
}

func (s *Store) SaveTask(_ context.Context, t *taskdomain.Task) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.tasks[t.ID]
	if !ok {
		return taskdomain.ErrTaskNotFound
	}
	saved := stripTask(t)
	saved.ProjectID = rec.task.ProjectID
	saved.ReporterID = rec.task.ReporterID
	saved.CreatedAt = rec.task.CreatedAt
	rec.task = saved
	return nil
}

func (s *Store) DeleteTask(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.tasks[id]; !ok {
		return taskdomain.ErrTaskNotFound
	}
	delete(s.tasks, id)
	delete(s.comments, id)
	return nil
}

func (s *Store) AppendComment(_ context.Context, taskID string, c taskdomain.Comment) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.tasks[taskID]; !ok {
		return taskdomain.ErrTaskNotFound
	}
	s.comments[taskID] = append(s.comments[taskID], c)
	return nil
}

func (s *Store) ListTasks(_ context.Context, projectID string) ([]*taskdomain.Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	recs := make([]*taskRecord, 0, 16)
	for _, rec := range s.tasks {
		if rec.task.ProjectID == projectID {
			recs = append(recs, rec)
		}
	}
	slices.SortFunc(recs, func(a, b *taskRecord) int {
		if c := b.task.CreatedAt.Compare(a.task.CreatedAt); c != 0 {
			return c
		}
		return cmp.Compare(b.seq, a.seq)
	})

	out := make([]*taskdomain.Task, 0, len(recs))
	for _, rec := range recs {
		out = append(out, s.hydrate(rec.task))
	}
	return out, nil
}

// stripTask copies t without the fields stored elsewhere or derived on read.
func stripTask(t *taskdomain.Task) *taskdomain.Task {
	cp := t.Clone()
	cp.Comments = nil
	cp.Assignee = nil
	return cp
}

func (s *Store) hydrate(t *taskdomain.Task) *taskdomain.Task {
	cp := t.Clone()
	cp.Comments = slices.Clone(s.comments[t.ID])
	if cp.Comments == nil {
		cp.Comments = []taskdomain.Comment{}
	}
	return cp
}

// ---- maintenance ----

// SweepOrphans removes tasks whose project no longer exists and project ids
// that point at deleted projects from principal lists.
func (s *Store) SweepOrphans(context.Context) (storage.SweepResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var res storage.SweepResult
	for id, rec := range s.tasks {
		if _, ok := s.projects[rec.task.ProjectID]; !ok {
			delete(s.tasks, id)
			delete(s.comments, id)
			res.Tasks++
		}
	}
	for _, p := range s.principals {
		before := len(p.ProjectIDs)
		p.ProjectIDs = slices.DeleteFunc(p.ProjectIDs, func(id string) bool {
			_, ok := s.projects[id]
			return !ok
		})
		res.Memberships += before - len(p.ProjectIDs)
	}
	return res, nil
}
