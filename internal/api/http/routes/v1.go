package routes

import (
	"github.com/gin-gonic/gin"

	"github.com/crewboard/crewboard-backend/internal/api/http/middleware"
	authhttp "github.com/crewboard/crewboard-backend/internal/auth/http"
	authmw "github.com/crewboard/crewboard-backend/internal/auth/middleware"
	authservice "github.com/crewboard/crewboard-backend/internal/auth/service"
	projecthttp "github.com/crewboard/crewboard-backend/internal/projects/http"
	projectservice "github.com/crewboard/crewboard-backend/internal/projects/service"
	realtimehttp "github.com/crewboard/crewboard-backend/internal/realtime/http"
	taskhttp "github.com/crewboard/crewboard-backend/internal/tasks/http"
	taskservice "github.com/crewboard/crewboard-backend/internal/tasks/service"
)

type V1Deps struct {
	Auth     *authservice.AuthService
	Registry *projectservice.Registry
	Tasks    *taskservice.Service
	Realtime *realtimehttp.Handler
	// RateLimiter is optional.
	RateLimiter *middleware.RateLimiter
}

func RegisterV1(r gin.IRouter, dep V1Deps) {
	api := r.Group("/api/v1")
	if dep.RateLimiter != nil {
		api.Use(dep.RateLimiter.Middleware())
	}
	api.Use(authmw.BearerAuth(dep.Auth))

	authhttp.New(dep.Auth).Register(api)

	projectsGroup := api.Group("/projects")
	projecthttp.New(dep.Registry).Register(projectsGroup)

	tasksHandler := taskhttp.New(dep.Tasks)
	tasksHandler.RegisterProjectRoutes(projectsGroup)
	if dep.Realtime != nil {
		dep.Realtime.RegisterProjectRoutes(projectsGroup)
	}

	tasksHandler.Register(api.Group("/tasks"))
}
