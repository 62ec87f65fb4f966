package http

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/crewboard/crewboard-backend/internal/api/http/respond"
	"github.com/crewboard/crewboard-backend/internal/auth"
)

func (h *Handler) create(c *gin.Context) {
	var req createReq
	if err := c.ShouldBindJSON(&req); err != nil {
		respond.BadRequest(c, "invalid body")
		return
	}

	p, err := h.registry.CreateProject(c.Request.Context(), auth.Current(c), req.input())
	if err != nil {
		respond.Error(c, err)
		return
	}

	respond.OK(c, http.StatusCreated, gin.H{"project": p})
}

func (h *Handler) list(c *gin.Context) {
	items, err := h.registry.ListProjects(c.Request.Context(), auth.Current(c))
	if err != nil {
		respond.Error(c, err)
		return
	}
	respond.OK(c, http.StatusOK, gin.H{"projects": items})
}

func (h *Handler) get(c *gin.Context) {
	p, err := h.registry.GetProject(c.Request.Context(), auth.Current(c), c.Param("id"))
	if err != nil {
		respond.Error(c, err)
		return
	}
	respond.OK(c, http.StatusOK, gin.H{"project": p})
}

func (h *Handler) update(c *gin.Context) {
	var req updateReq
	if err := c.ShouldBindJSON(&req); err != nil {
		respond.BadRequest(c, "invalid body")
		return
	}

	p, err := h.registry.UpdateProject(c.Request.Context(), auth.Current(c), c.Param("id"), req.patch())
	if err != nil {
		respond.Error(c, err)
		return
	}
	respond.OK(c, http.StatusOK, gin.H{"project": p})
}

func (h *Handler) delete(c *gin.Context) {
	if err := h.registry.DeleteProject(c.Request.Context(), auth.Current(c), c.Param("id")); err != nil {
		respond.Error(c, err)
		return
	}
	respond.OK(c, http.StatusOK, nil)
}

func (h *Handler) join(c *gin.Context) {
	p, err := h.registry.JoinProject(c.Request.Context(), auth.Current(c), c.Param("inviteCode"))
	if err != nil {
		respond.Error(c, err)
		return
	}
	respond.OK(c, http.StatusOK, gin.H{"project": p})
}

func (h *Handler) removeMember(c *gin.Context) {
	p, err := h.registry.RemoveMember(c.Request.Context(), auth.Current(c), c.Param("id"), c.Param("memberId"))
	if err != nil {
		respond.Error(c, err)
		return
	}
	respond.OK(c, http.StatusOK, gin.H{"project": p})
}
