package middleware

import (
	"context"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/crewboard/crewboard-backend/internal/api/http/respond"
	"github.com/crewboard/crewboard-backend/internal/auth"
	"github.com/crewboard/crewboard-backend/internal/auth/domain"
)

// Authenticator resolves a raw bearer token into a principal.
type Authenticator interface {
	Authenticate(ctx context.Context, token string) (*domain.Principal, error)
}

// BearerAuth validates the bearer credential once per request and stores the
// resolved principal in the gin context.
func BearerAuth(authn Authenticator) gin.HandlerFunc {
	return func(c *gin.Context) {
		p, err := authn.Authenticate(c.Request.Context(), ExtractToken(c))
		if err != nil {
			respond.Error(c, err)
			return
		}

		auth.SetCurrent(c, p)
		c.Next()
	}
}

// ExtractToken reads the Bearer token from the Authorization header. Browsers
// cannot set headers on websocket or EventSource requests, so the
// access_token query parameter is accepted as a fallback.
func ExtractToken(c *gin.Context) string {
	bearerToken := c.GetHeader("Authorization")
	if len(bearerToken) > 7 && strings.HasPrefix(bearerToken, "Bearer ") {
		return bearerToken[7:]
	}
	return c.Query("access_token")
}
