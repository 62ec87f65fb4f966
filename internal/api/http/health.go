package http

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"

	"github.com/crewboard/crewboard-backend/internal/realtime"
	"github.com/crewboard/crewboard-backend/internal/storage"
)

type HealthResponse struct {
	Status      string                    `json:"status"`
	Timestamp   time.Time                 `json:"timestamp"`
	Service     string                    `json:"service"`
	Version     string                    `json:"version"`
	DB          string                    `json:"db,omitempty"`
	Redis       string                    `json:"redis,omitempty"`
	Connections int                       `json:"connections"`
	Realtime    *realtime.MetricsSnapshot `json:"realtime,omitempty"`
}

type HealthHandler struct {
	serviceName string
	version     string
	db          storage.Pinger
	dbKind      string
	redis       *redis.Client
	hub         *realtime.Hub
}

// NewHealthHandler: db is the active store; dbKind names it ("postgres",
// "memory"). redis and hub may be nil.
func NewHealthHandler(serviceName, version string, db storage.Pinger, dbKind string, rdb *redis.Client, hub *realtime.Hub) *HealthHandler {
	return &HealthHandler{
		serviceName: serviceName,
		version:     version,
		db:          db,
		dbKind:      dbKind,
		redis:       rdb,
		hub:         hub,
	}
}

func (h *HealthHandler) HealthCheck(c *gin.Context) {
	pingCtx, cancel := context.WithTimeout(c.Request.Context(), 1*time.Second)
	defer cancel()

	status := "healthy"

	dbStatus := "disabled"
	if h.db != nil {
		if err := h.db.Ping(pingCtx); err != nil {
			dbStatus = "down"
			status = "degraded"
		} else {
			dbStatus = "up"
			if h.dbKind != "" {
				dbStatus = "up (" + h.dbKind + ")"
			}
		}
	}

	redisStatus := "disabled"
	if h.redis != nil {
		if err := h.redis.Ping(pingCtx).Err(); err != nil {
			redisStatus = "down"
			status = "degraded"
		} else {
			redisStatus = "up"
		}
	}

	resp := HealthResponse{
		Status:    status,
		Timestamp: time.Now().UTC(),
		Service:   h.serviceName,
		Version:   h.version,
		DB:        dbStatus,
		Redis:     redisStatus,
	}
	if h.hub != nil {
		snap := h.hub.Metrics().Snapshot()
		resp.Realtime = &snap
		resp.Connections = h.hub.Connections()
	}

	c.JSON(http.StatusOK, resp)
}

func (h *HealthHandler) RegisterRoutes(r gin.IRouter) {
	r.GET("/health", h.HealthCheck)
	r.GET("/healthz", h.HealthCheck)
}
