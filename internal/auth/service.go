package auth

import (
	"context"

	"github.com/confidant-vault/confidant/internal/rbac"
)

// Authenticator validates a credential pair. Implemented by the identity
// registry.
type Authenticator interface {
	Authenticate(ctx context.Context, username, password string) (rbac.Role, error)
}

// Service wires credential checks to token issuance.
type Service struct {
	identities Authenticator
	tokens     *TokenManager
}

// NewService constructs a Service.
func NewService(identities Authenticator, tokens *TokenManager) *Service {
	return &Service{identities: identities, tokens: tokens}
}

// Login verifies the credentials and issues a bearer token.
func (s *Service) Login(ctx context.Context, username, password string) (string, rbac.Role, error) {
	role, err := s.identities.Authenticate(ctx, username, password)
	if err != nil {
		return "", 0, err
	}
	token, err := s.tokens.Issue(ctx, username, role)
	if err != nil {
		return "", 0, err
	}
	return token, role, nil
}

// Logout revokes the presented token.
func (s *Service) Logout(ctx context.Context, token string) error {
	return s.tokens.Revoke(ctx, token)
}
