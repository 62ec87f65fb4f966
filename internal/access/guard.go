// Package access holds the authorization predicates for projects and tasks.
// They are pure: callers turn a false result into a Forbidden error.
package access

import (
	authdomain "github.com/crewboard/crewboard-backend/internal/auth/domain"
	projectdomain "github.com/crewboard/crewboard-backend/internal/projects/domain"
	taskdomain "github.com/crewboard/crewboard-backend/internal/tasks/domain"
)

func isOwner(p *authdomain.Principal, project *projectdomain.Project) bool {
	return p != nil && project != nil && p.ID != "" && p.ID == project.OwnerID
}

// CanReadProject: owner or member.
func CanReadProject(p *authdomain.Principal, project *projectdomain.Project) bool {
	if p == nil || project == nil || p.ID == "" {
		return false
	}
	return p.ID == project.OwnerID || project.HasMember(p.ID)
}

// CanWriteProject: owner only.
func CanWriteProject(p *authdomain.Principal, project *projectdomain.Project) bool {
	return isOwner(p, project)
}

func CanDeleteProject(p *authdomain.Principal, project *projectdomain.Project) bool {
	return isOwner(p, project)
}

// CanMutateTask: project owner or the task's assignee. Membership is not
// consulted, matching the update/delete rule.
func CanMutateTask(p *authdomain.Principal, task *taskdomain.Task, project *projectdomain.Project) bool {
	if p == nil || task == nil || p.ID == "" {
		return false
	}
	return isOwner(p, project) || task.IsAssignee(p.ID)
}

// CanCommentOnTask is read access to the owning project.
func CanCommentOnTask(p *authdomain.Principal, task *taskdomain.Task, project *projectdomain.Project) bool {
	if task == nil {
		return false
	}
	return CanReadProject(p, project)
}
