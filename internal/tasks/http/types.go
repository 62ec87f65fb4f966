package http

import (
	"time"

	"github.com/crewboard/crewboard-backend/internal/api/http/bind"
	"github.com/crewboard/crewboard-backend/internal/tasks/domain"
	"github.com/crewboard/crewboard-backend/internal/tasks/service"
)

type Handler struct {
	svc *service.Service
}

func New(svc *service.Service) *Handler {
	return &Handler{svc: svc}
}

type createTaskReq struct {
	Title          string              `json:"title"`
	Description    string              `json:"description"`
	Status         domain.Status       `json:"status"`
	Priority       domain.Priority     `json:"priority"`
	AssigneeID     *string             `json:"assigneeId"`
	DueDate        *time.Time          `json:"dueDate"`
	EstimatedHours *float64            `json:"estimatedHours"`
	ActualHours    *float64            `json:"actualHours"`
	Attachments    []domain.Attachment `json:"attachments"`
	Labels         []string            `json:"labels"`
	IsPrivate      bool                `json:"isPrivate"`
}

func (r createTaskReq) input() domain.CreateTaskInput {
	return domain.CreateTaskInput{
		Title:          r.Title,
		Description:    r.Description,
		Status:         r.Status,
		Priority:       r.Priority,
		AssigneeID:     r.AssigneeID,
		DueDate:        r.DueDate,
		EstimatedHours: r.EstimatedHours,
		ActualHours:    r.ActualHours,
		Attachments:    r.Attachments,
		Labels:         r.Labels,
		IsPrivate:      r.IsPrivate,
	}
}

// updateTaskReq: absent fields are left alone; "assigneeId": null and
// "dueDate": null clear the value.
type updateTaskReq struct {
	Title          *string                  `json:"title"`
	Description    *string                  `json:"description"`
	Status         *domain.Status           `json:"status"`
	Priority       *domain.Priority         `json:"priority"`
	AssigneeID     bind.Optional[string]    `json:"assigneeId"`
	DueDate        bind.Optional[time.Time] `json:"dueDate"`
	EstimatedHours *float64                 `json:"estimatedHours"`
	ActualHours    *float64                 `json:"actualHours"`
	Attachments    *[]domain.Attachment     `json:"attachments"`
	Labels         *[]string                `json:"labels"`
	IsPrivate      *bool                    `json:"isPrivate"`
}

func (r updateTaskReq) patch() domain.TaskPatch {
	return domain.TaskPatch{
		Title:          r.Title,
		Description:    r.Description,
		Status:         r.Status,
		Priority:       r.Priority,
		AssigneeID:     r.AssigneeID.Ptr(),
		ClearAssignee:  r.AssigneeID.Cleared(),
		DueDate:        r.DueDate.Ptr(),
		ClearDueDate:   r.DueDate.Cleared(),
		EstimatedHours: r.EstimatedHours,
		ActualHours:    r.ActualHours,
		Attachments:    r.Attachments,
		Labels:         r.Labels,
		IsPrivate:      r.IsPrivate,
	}
}

type commentReq struct {
	Text string `json:"text"`
}
