package service

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/crewboard/crewboard-backend/internal/apperr"
	"github.com/crewboard/crewboard-backend/internal/auth/domain"
	"github.com/crewboard/crewboard-backend/internal/storage/memory"
)

type stubVerifier map[string]*domain.Claims

func (s stubVerifier) Verify(_ context.Context, token string) (*domain.Claims, error) {
	if c, ok := s[token]; ok {
		return c, nil
	}
	return nil, errors.New("bad signature")
}

func TestAuthenticate(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	svc := NewAuthService(stubVerifier{
		"olga-token": {UID: "olga", Email: "olga@example.com", Role: domain.RoleOwner},
	}, store)

	p, err := svc.Authenticate(ctx, " olga-token ")
	require.NoError(t, err)
	assert.Equal(t, "olga", p.ID)
	assert.Equal(t, domain.RoleOwner, p.Role)

	stored, err := svc.GetPrincipal(ctx, "olga")
	require.NoError(t, err)
	assert.Equal(t, "olga@example.com", stored.Email)

	_, err = svc.Authenticate(ctx, "")
	assert.True(t, apperr.Is(err, apperr.KindUnauthorized))

	_, err = svc.Authenticate(ctx, "forged")
	assert.True(t, apperr.Is(err, apperr.KindUnauthorized))

	_, err = svc.GetPrincipal(ctx, "nobody")
	assert.True(t, apperr.Is(err, apperr.KindNotFound))
}
