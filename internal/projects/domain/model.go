package domain

import (
	"errors"
	"slices"
	"time"
)

// Status is the lifecycle state of a project.
type Status string

const (
	StatusActive    Status = "active"
	StatusArchived  Status = "archived"
	StatusCompleted Status = "completed"
)

func (s Status) Valid() bool {
	return s == StatusActive || s == StatusArchived || s == StatusCompleted
}

const (
	MaxNameLen        = 100
	MaxDescriptionLen = 500
)

// Store-level sentinels. Services translate them into apperr kinds.
var (
	ErrProjectNotFound = errors.New("project not found")
	ErrInviteCodeTaken = errors.New("invite code already in use")
	ErrAlreadyMember   = errors.New("principal already belongs to project")
	ErrNotMember       = errors.New("principal is not a member of project")
)

// Project is a collaboration workspace owned by one principal. The owner is
// never listed in Members.
type Project struct {
	ID          string     `json:"id"`
	Name        string     `json:"name"`
	Slug        string     `json:"slug"`
	Description string     `json:"description,omitempty"`
	Deadline    *time.Time `json:"deadline,omitempty"`
	OwnerID     string     `json:"ownerId"`
	Members     []string   `json:"members"`
	InviteCode  string     `json:"inviteCode"`
	Status      Status     `json:"status"`
	CreatedAt   time.Time  `json:"createdAt"`
	UpdatedAt   time.Time  `json:"updatedAt"`
}

func (p *Project) HasMember(principalID string) bool {
	return slices.Contains(p.Members, principalID)
}

// Clone returns a deep copy so callers can mutate without touching shared
// state.
func (p *Project) Clone() *Project {
	if p == nil {
		return nil
	}
	cp := *p
	cp.Members = slices.Clone(p.Members)
	if p.Members == nil {
		cp.Members = []string{}
	}
	if p.Deadline != nil {
		d := *p.Deadline
		cp.Deadline = &d
	}
	return &cp
}

// CreateProjectInput carries caller-supplied attributes for a new project.
type CreateProjectInput struct {
	Name        string
	Description string
	Deadline    *time.Time
	Status      Status
}

// ProjectPatch is a partial update; nil fields are left unchanged.
// ClearDeadline removes an existing deadline.
type ProjectPatch struct {
	Name          *string
	Description   *string
	Deadline      *time.Time
	ClearDeadline bool
	Status        *Status
}
