package service

import (
	"context"
	"errors"
	"strings"

	"github.com/crewboard/crewboard-backend/internal/apperr"
	"github.com/crewboard/crewboard-backend/internal/auth"
	"github.com/crewboard/crewboard-backend/internal/auth/domain"
)

// PrincipalStore is the slice of the entity store that principal resolution
// needs.
type PrincipalStore interface {
	EnsurePrincipal(ctx context.Context, p *domain.Principal) (*domain.Principal, error)
	GetPrincipal(ctx context.Context, id string) (*domain.Principal, error)
}

// AuthService turns bearer credentials into principals.
type AuthService struct {
	verifier auth.Verifier
	store    PrincipalStore
}

func NewAuthService(verifier auth.Verifier, store PrincipalStore) *AuthService {
	return &AuthService{
		verifier: verifier,
		store:    store,
	}
}

// Authenticate verifies token and upserts the principal it names. Identity
// fields come from the credential; the store keeps the membership record.
func (s *AuthService) Authenticate(ctx context.Context, token string) (*domain.Principal, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, apperr.Unauthorized("missing authorization token")
	}

	claims, err := s.verifier.Verify(ctx, token)
	if err != nil {
		return nil, apperr.Unauthorized("invalid token")
	}

	p, err := s.store.EnsurePrincipal(ctx, &domain.Principal{
		ID:          claims.UID,
		Email:       claims.Email,
		DisplayName: claims.DisplayName,
		Role:        claims.Role,
	})
	if err != nil {
		return nil, apperr.Internal("resolve principal", err)
	}
	return p, nil
}

// GetPrincipal loads a principal by id.
func (s *AuthService) GetPrincipal(ctx context.Context, id string) (*domain.Principal, error) {
	p, err := s.store.GetPrincipal(ctx, id)
	if errors.Is(err, domain.ErrPrincipalNotFound) {
		return nil, apperr.NotFound("principal not found")
	}
	if err != nil {
		return nil, apperr.Internal("get principal", err)
	}
	return p, nil
}
