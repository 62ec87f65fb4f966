package auth

import (
	"context"
	"errors"

	"github.com/crewboard/crewboard-backend/internal/auth/domain"
)

var ErrInvalidToken = errors.New("invalid token")

// Verifier resolves a bearer credential into claims. Issuance is handled by
// the identity provider; we only verify.
type Verifier interface {
	Verify(ctx context.Context, token string) (*domain.Claims, error)
}

func claimsRole(v any) domain.Role {
	s, _ := v.(string)
	role := domain.Role(s)
	if !role.Valid() {
		return domain.RoleMember
	}
	return role
}
