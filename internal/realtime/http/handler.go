package http

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"github.com/crewboard/crewboard-backend/internal/access"
	"github.com/crewboard/crewboard-backend/internal/apperr"
	"github.com/crewboard/crewboard-backend/internal/auth/domain"
	"github.com/crewboard/crewboard-backend/internal/auth/middleware"
	projectdomain "github.com/crewboard/crewboard-backend/internal/projects/domain"
	"github.com/crewboard/crewboard-backend/internal/realtime"
)

// Projects loads the project a join request names.
type Projects interface {
	GetProject(ctx context.Context, id string) (*projectdomain.Project, error)
}

type Options struct {
	// AllowedOrigin is the browser origin permitted to open a websocket.
	// "*" allows any origin.
	AllowedOrigin string
	KeepAlive     time.Duration
	WriteTimeout  time.Duration
	// FrameRate and FrameBurst bound inbound websocket frames per connection.
	FrameRate  rate.Limit
	FrameBurst int
}

type Handler struct {
	hub      *realtime.Hub
	authn    middleware.Authenticator
	projects Projects
	opt      Options
	upgrader websocket.Upgrader
}

func New(hub *realtime.Hub, authn middleware.Authenticator, projects Projects, opt Options) *Handler {
	if opt.KeepAlive <= 0 {
		opt.KeepAlive = 15 * time.Second
	}
	if opt.WriteTimeout <= 0 {
		opt.WriteTimeout = 10 * time.Second
	}
	if opt.FrameRate <= 0 {
		opt.FrameRate = 5
	}
	if opt.FrameBurst <= 0 {
		opt.FrameBurst = 20
	}

	h := &Handler{hub: hub, authn: authn, projects: projects, opt: opt}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     h.checkOrigin,
	}
	return h
}

// RegisterWS attaches the websocket endpoint. It authenticates on its own
// because the credential is checked once, at the handshake.
func (h *Handler) RegisterWS(r gin.IRouter) {
	r.GET("/ws", h.ServeWS)
}

// RegisterProjectRoutes attaches the SSE stream under an authenticated
// /projects group.
func (h *Handler) RegisterProjectRoutes(rg *gin.RouterGroup) {
	rg.GET("/:id/events", h.StreamProjectEvents)
}

func (h *Handler) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" || h.opt.AllowedOrigin == "*" {
		return true
	}
	return origin == h.opt.AllowedOrigin
}

// authorizeJoin loads the project and checks read access for p.
func (h *Handler) authorizeJoin(ctx context.Context, p *domain.Principal, projectID string) error {
	if projectID == "" {
		return apperr.Validation("projectId is required")
	}
	project, err := h.projects.GetProject(ctx, projectID)
	if err != nil {
		if errors.Is(err, projectdomain.ErrProjectNotFound) {
			return apperr.NotFound("project not found")
		}
		return apperr.Internal("join project room", err)
	}
	if !access.CanReadProject(p, project) {
		return apperr.Forbidden("you do not have access to this project")
	}
	return nil
}

// join adds an already authorized connection to the group and checks access
// once more. A revocation committed between the first check and the join has
// already run its eviction, so only this second check can catch it.
func (h *Handler) join(ctx context.Context, p *domain.Principal, connID, projectID string) error {
	if err := h.hub.Join(connID, projectID); err != nil {
		return apperr.Internal("join project room", err)
	}
	if err := h.authorizeJoin(ctx, p, projectID); err != nil {
		h.hub.Leave(connID, projectID)
		return err
	}
	return nil
}
