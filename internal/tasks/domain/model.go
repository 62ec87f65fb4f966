package domain

import (
	"errors"
	"slices"
	"time"

	authdomain "github.com/crewboard/crewboard-backend/internal/auth/domain"
)

type Status string

const (
	StatusTodo       Status = "todo"
	StatusInProgress Status = "in-progress"
	StatusDone       Status = "done"
	StatusBlocked    Status = "blocked"
)

// Statuses lists every status in board column order. Any value may be set
// directly; there is no transition graph.
var Statuses = []Status{StatusTodo, StatusInProgress, StatusDone, StatusBlocked}

func (s Status) Valid() bool { return slices.Contains(Statuses, s) }

type Priority string

const (
	PriorityLow      Priority = "low"
	PriorityMedium   Priority = "medium"
	PriorityHigh     Priority = "high"
	PriorityCritical Priority = "critical"
)

var Priorities = []Priority{PriorityLow, PriorityMedium, PriorityHigh, PriorityCritical}

func (p Priority) Valid() bool { return slices.Contains(Priorities, p) }

const (
	MaxTitleLen       = 100
	MaxDescriptionLen = 500
	MaxCommentLen     = 1000
)

var ErrTaskNotFound = errors.New("task not found")

// Comment is immutable once appended.
type Comment struct {
	ID        string    `json:"id"`
	AuthorID  string    `json:"authorId"`
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"createdAt"`
}

// Attachment is metadata about a file stored elsewhere.
type Attachment struct {
	URL        string    `json:"url"`
	Name       string    `json:"name"`
	Size       int64     `json:"size"`
	MimeType   string    `json:"mimeType"`
	UploadedAt time.Time `json:"uploadedAt"`
}

// Task is a unit of work owned by a project. Assignee is a read-side
// projection of AssigneeID and is never persisted.
type Task struct {
	ID             string          `json:"id"`
	Title          string          `json:"title"`
	Description    string          `json:"description,omitempty"`
	Status         Status          `json:"status"`
	Priority       Priority        `json:"priority"`
	ProjectID      string          `json:"projectId"`
	AssigneeID     *string         `json:"assigneeId,omitempty"`
	Assignee       *authdomain.Ref `json:"assignee,omitempty"`
	ReporterID     string          `json:"reporterId"`
	DueDate        *time.Time      `json:"dueDate,omitempty"`
	EstimatedHours *float64        `json:"estimatedHours,omitempty"`
	ActualHours    float64         `json:"actualHours"`
	Comments       []Comment       `json:"comments"`
	Attachments    []Attachment    `json:"attachments"`
	Labels         []string        `json:"labels"`
	IsPrivate      bool            `json:"isPrivate"`
	CreatedAt      time.Time       `json:"createdAt"`
	UpdatedAt      time.Time       `json:"updatedAt"`
}

// IsAssignee reports whether principalID is the task's assignee.
func (t *Task) IsAssignee(principalID string) bool {
	return t.AssigneeID != nil && *t.AssigneeID == principalID
}

// Clone returns a deep copy.
func (t *Task) Clone() *Task {
	if t == nil {
		return nil
	}
	cp := *t
	if t.AssigneeID != nil {
		v := *t.AssigneeID
		cp.AssigneeID = &v
	}
	if t.Assignee != nil {
		a := *t.Assignee
		cp.Assignee = &a
	}
	if t.DueDate != nil {
		d := *t.DueDate
		cp.DueDate = &d
	}
	if t.EstimatedHours != nil {
		h := *t.EstimatedHours
		cp.EstimatedHours = &h
	}
	cp.Comments = cloneOrEmpty(t.Comments)
	cp.Attachments = cloneOrEmpty(t.Attachments)
	cp.Labels = cloneOrEmpty(t.Labels)
	return &cp
}

func cloneOrEmpty[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return slices.Clone(s)
}

// CreateTaskInput carries caller-supplied attributes. Project and reporter
// are not part of it: they come from the route and the caller.
type CreateTaskInput struct {
	Title          string
	Description    string
	Status         Status
	Priority       Priority
	AssigneeID     *string
	DueDate        *time.Time
	EstimatedHours *float64
	ActualHours    *float64
	Attachments    []Attachment
	Labels         []string
	IsPrivate      bool
}

// TaskPatch is a partial update. Only non-nil fields change. ClearAssignee
// and ClearDueDate unset the optional references.
type TaskPatch struct {
	Title          *string
	Description    *string
	Status         *Status
	Priority       *Priority
	AssigneeID     *string
	ClearAssignee  bool
	DueDate        *time.Time
	ClearDueDate   bool
	EstimatedHours *float64
	ActualHours    *float64
	Attachments    *[]Attachment
	Labels         *[]string
	IsPrivate      *bool
}

// Empty reports whether the patch changes nothing.
func (p TaskPatch) Empty() bool {
	return p == (TaskPatch{})
}
