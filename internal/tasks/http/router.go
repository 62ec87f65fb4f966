package http

import "github.com/gin-gonic/gin"

// RegisterProjectRoutes attaches the task collection routes under
// /projects/:id.
func (h *Handler) RegisterProjectRoutes(rg *gin.RouterGroup) {
	rg.GET("/:id/tasks", h.list)
	rg.POST("/:id/tasks", h.create)
}

// Register attaches single-task routes under /tasks.
func (h *Handler) Register(rg *gin.RouterGroup) {
	rg.GET("/:id", h.get)
	rg.PUT("/:id", h.update)
	rg.DELETE("/:id", h.delete)
	rg.POST("/:id/comments", h.addComment)
}
