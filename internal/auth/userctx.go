package auth

import (
	"github.com/gin-gonic/gin"

	"github.com/crewboard/crewboard-backend/internal/auth/domain"
)

const CtxPrincipal = "principal"

// Current returns the principal stored by the bearer middleware, or nil on
// unauthenticated routes.
func Current(c *gin.Context) *domain.Principal {
	v, ok := c.Get(CtxPrincipal)
	if !ok {
		return nil
	}
	p, _ := v.(*domain.Principal)
	return p
}

// SetCurrent stores p for downstream handlers.
func SetCurrent(c *gin.Context, p *domain.Principal) {
	c.Set(CtxPrincipal, p)
}
