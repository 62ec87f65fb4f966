package domain

import (
	"errors"
	"time"
)

// Role is the account-wide role carried by a principal's credential.
type Role string

const (
	RoleOwner  Role = "owner"
	RoleMember Role = "member"
)

func (r Role) Valid() bool {
	return r == RoleOwner || r == RoleMember
}

var ErrPrincipalNotFound = errors.New("principal not found")

// Principal is an authenticated actor. It is resolved from a verified
// credential and never mutated by the collaboration core, except for the
// ProjectIDs membership record the store maintains.
type Principal struct {
	ID          string    `json:"id"`
	Email       string    `json:"email,omitempty"`
	DisplayName string    `json:"displayName,omitempty"`
	Role        Role      `json:"role"`
	ProjectIDs  []string  `json:"projects"`
	CreatedAt   time.Time `json:"createdAt"`
}

// Ref is the public projection of a principal embedded in other entities,
// e.g. a task's resolved assignee.
type Ref struct {
	ID          string `json:"id"`
	Email       string `json:"email,omitempty"`
	DisplayName string `json:"displayName,omitempty"`
}

func (p *Principal) Ref() *Ref {
	if p == nil {
		return nil
	}
	return &Ref{ID: p.ID, Email: p.Email, DisplayName: p.DisplayName}
}

// Claims is what a verified bearer credential tells us about its holder.
type Claims struct {
	UID         string
	Email       string
	DisplayName string
	Role        Role
}
