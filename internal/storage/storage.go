// Package storage holds what the memory and postgres stores share.
package storage

import "context"

// SweepResult counts what an orphan sweep repaired.
type SweepResult struct {
	Tasks       int `json:"tasks"`
	Memberships int `json:"memberships"`
}

// Sweeper removes records left behind by partially applied external
// changes: tasks without a project and principal project ids that point at
// deleted projects.
type Sweeper interface {
	SweepOrphans(ctx context.Context) (SweepResult, error)
}

// Pinger reports store reachability for health checks.
type Pinger interface {
	Ping(ctx context.Context) error
}
