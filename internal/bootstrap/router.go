package bootstrap

import (
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"

	httpapi "github.com/crewboard/crewboard-backend/internal/api/http"
	"github.com/crewboard/crewboard-backend/internal/api/http/middleware"
	"github.com/crewboard/crewboard-backend/internal/api/http/routes"
	authservice "github.com/crewboard/crewboard-backend/internal/auth/service"
	projectservice "github.com/crewboard/crewboard-backend/internal/projects/service"
	"github.com/crewboard/crewboard-backend/internal/realtime"
	realtimehttp "github.com/crewboard/crewboard-backend/internal/realtime/http"
	"github.com/crewboard/crewboard-backend/internal/storage"
	taskservice "github.com/crewboard/crewboard-backend/internal/tasks/service"
)

type RouterDeps struct {
	ServiceName   string
	Version       string
	AllowedOrigin string
	KeepAlive     time.Duration

	Store       storage.Pinger
	StoreKind   string
	Redis       *redis.Client
	Hub         *realtime.Hub
	Projects    realtimehttp.Projects
	Auth        *authservice.AuthService
	Registry    *projectservice.Registry
	Tasks       *taskservice.Service
	RateLimiter *middleware.RateLimiter
}

func BuildRouter(dep RouterDeps) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.RequestIDMiddleware())

	corsCfg := cors.DefaultConfig()
	if dep.AllowedOrigin == "*" {
		corsCfg.AllowAllOrigins = true
	} else {
		corsCfg.AllowOrigins = []string{dep.AllowedOrigin}
		corsCfg.AllowCredentials = true
	}
	corsCfg.AddAllowHeaders("Authorization", "X-Request-Id")
	corsCfg.AddExposeHeaders("X-Request-Id")
	r.Use(cors.New(corsCfg))

	healthHandler := httpapi.NewHealthHandler(dep.ServiceName, dep.Version, dep.Store, dep.StoreKind, dep.Redis, dep.Hub)
	healthHandler.RegisterRoutes(r)

	rt := realtimehttp.New(dep.Hub, dep.Auth, dep.Projects, realtimehttp.Options{
		AllowedOrigin: dep.AllowedOrigin,
		KeepAlive:     dep.KeepAlive,
	})
	rt.RegisterWS(r)

	routes.RegisterV1(r, routes.V1Deps{
		Auth:        dep.Auth,
		Registry:    dep.Registry,
		Tasks:       dep.Tasks,
		Realtime:    rt,
		RateLimiter: dep.RateLimiter,
	})

	return r
}
