package http

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/crewboard/crewboard-backend/internal/api/http/respond"
	"github.com/crewboard/crewboard-backend/internal/apperr"
	"github.com/crewboard/crewboard-backend/internal/auth"
)

// GetProfile returns the caller's principal record, including the ids of the
// projects they own or belong to.
func (h *Handler) GetProfile(c *gin.Context) {
	current := auth.Current(c)
	if current == nil {
		respond.Error(c, apperr.Unauthorized("user not authenticated"))
		return
	}

	p, err := h.authService.GetPrincipal(c.Request.Context(), current.ID)
	if err != nil {
		respond.Error(c, err)
		return
	}

	respond.OK(c, http.StatusOK, gin.H{"user": p})
}
