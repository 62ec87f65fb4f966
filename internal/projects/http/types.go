package http

import (
	"time"

	"github.com/crewboard/crewboard-backend/internal/api/http/bind"
	"github.com/crewboard/crewboard-backend/internal/projects/domain"
	"github.com/crewboard/crewboard-backend/internal/projects/service"
)

// Handler bundles the dependencies for projects HTTP endpoints.
type Handler struct {
	registry *service.Registry
}

func New(registry *service.Registry) *Handler {
	return &Handler{registry: registry}
}

type createReq struct {
	Name        string        `json:"name"`
	Description string        `json:"description"`
	Deadline    *time.Time    `json:"deadline"`
	Status      domain.Status `json:"status"`
}

func (r createReq) input() domain.CreateProjectInput {
	return domain.CreateProjectInput{
		Name:        r.Name,
		Description: r.Description,
		Deadline:    r.Deadline,
		Status:      r.Status,
	}
}

type updateReq struct {
	Name        *string                  `json:"name"`
	Description *string                  `json:"description"`
	Deadline    bind.Optional[time.Time] `json:"deadline"`
	Status      *domain.Status           `json:"status"`
}

func (r updateReq) patch() domain.ProjectPatch {
	return domain.ProjectPatch{
		Name:          r.Name,
		Description:   r.Description,
		Deadline:      r.Deadline.Ptr(),
		ClearDeadline: r.Deadline.Cleared(),
		Status:        r.Status,
	}
}
