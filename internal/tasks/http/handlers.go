package http

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/crewboard/crewboard-backend/internal/api/http/respond"
	"github.com/crewboard/crewboard-backend/internal/auth"
)

func (h *Handler) list(c *gin.Context) {
	items, err := h.svc.ListTasks(c.Request.Context(), auth.Current(c), c.Param("id"))
	if err != nil {
		respond.Error(c, err)
		return
	}
	respond.OK(c, http.StatusOK, gin.H{"tasks": items})
}

func (h *Handler) create(c *gin.Context) {
	var req createTaskReq
	if err := c.ShouldBindJSON(&req); err != nil {
		respond.BadRequest(c, "invalid body")
		return
	}

	t, err := h.svc.CreateTask(c.Request.Context(), auth.Current(c), c.Param("id"), req.input())
	if err != nil {
		respond.Error(c, err)
		return
	}
	respond.OK(c, http.StatusCreated, gin.H{"task": t})
}

func (h *Handler) get(c *gin.Context) {
	t, err := h.svc.GetTask(c.Request.Context(), auth.Current(c), c.Param("id"))
	if err != nil {
		respond.Error(c, err)
		return
	}
	respond.OK(c, http.StatusOK, gin.H{"task": t})
}

func (h *Handler) update(c *gin.Context) {
	var req updateTaskReq
	if err := c.ShouldBindJSON(&req); err != nil {
		respond.BadRequest(c, "invalid body")
		return
	}

	t, err := h.svc.UpdateTask(c.Request.Context(), auth.Current(c), c.Param("id"), req.patch())
	if err != nil {
		respond.Error(c, err)
		return
	}
	respond.OK(c, http.StatusOK, gin.H{"task": t})
}

func (h *Handler) delete(c *gin.Context) {
	if err := h.svc.DeleteTask(c.Request.Context(), auth.Current(c), c.Param("id")); err != nil {
		respond.Error(c, err)
		return
	}
	respond.OK(c, http.StatusOK, nil)
}

func (h *Handler) addComment(c *gin.Context) {
	var req commentReq
	if err := c.ShouldBindJSON(&req); err != nil {
		respond.BadRequest(c, "invalid body")
		return
	}

	comment, err := h.svc.AddComment(c.Request.Context(), auth.Current(c), c.Param("id"), req.Text)
	if err != nil {
		respond.Error(c, err)
		return
	}
	respond.OK(c, http.StatusCreated, gin.H{"comment": comment})
}
