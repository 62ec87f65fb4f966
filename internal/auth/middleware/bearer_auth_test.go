package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"

	"github.com/crewboard/crewboard-backend/internal/apperr"
	"github.com/crewboard/crewboard-backend/internal/auth"
	"github.com/crewboard/crewboard-backend/internal/auth/domain"
)

type stubAuthn map[string]*domain.Principal

func (s stubAuthn) Authenticate(_ context.Context, token string) (*domain.Principal, error) {
	if p, ok := s[token]; ok {
		return p, nil
	}
	return nil, apperr.Unauthorized("invalid token")
}

func TestBearerAuth(t *testing.T) {
	gin.SetMode(gin.TestMode)

	authn := stubAuthn{"good": {ID: "olga", Role: domain.RoleOwner}}
	router := gin.New()
	router.GET("/me", BearerAuth(authn), func(c *gin.Context) {
		c.String(http.StatusOK, auth.Current(c).ID)
	})

	cases := []struct {
		name   string
		header string
		query  string
		status int
		body   string
	}{
		{name: "header", header: "Bearer good", status: http.StatusOK, body: "olga"},
		{name: "query fallback", query: "?access_token=good", status: http.StatusOK, body: "olga"},
		{name: "bad token", header: "Bearer nope", status: http.StatusUnauthorized},
		{name: "missing", status: http.StatusUnauthorized},
		{name: "not bearer", header: "Basic good", status: http.StatusUnauthorized},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/me"+tc.query, nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			rr := httptest.NewRecorder()
			router.ServeHTTP(rr, req)

			assert.Equal(t, tc.status, rr.Code)
			if tc.body != "" {
				assert.Equal(t, tc.body, rr.Body.String())
			}
		})
	}
}
