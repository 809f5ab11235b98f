package access

import (
	"context"
	"log/slog"

	"github.com/confidant-vault/confidant/internal/identity"
	"github.com/confidant-vault/confidant/internal/rbac"
	"github.com/confidant-vault/confidant/internal/shared"
)

// RoleChecker answers whether a username currently holds a role. Implemented
// by the identity registry.
type RoleChecker interface {
	ExistsWithRole(ctx context.Context, username string, role rbac.Role) (bool, error)
}

// Service is the access-right oracle: it validates and records grants and
// revocations, and answers entitlement lookups for the secret store.
type Service struct {
	repo       Repository
	identities RoleChecker
	logger     *slog.Logger
}

// NewService constructs a Service.
func NewService(repo Repository, identities RoleChecker, logger *slog.Logger) *Service {
	return &Service{repo: repo, identities: identities, logger: logger}
}

// Exists reports whether the grantee currently holds a right to the namespace.
func (s *Service) Exists(ctx context.Context, grantee, namespace string) (bool, error) {
	return s.repo.Exists(ctx, grantee, namespace)
}

// Grant records a new access right. The grantee must be a live admin identity
// and the namespace a live app identity; the pair must not already exist.
func (s *Service) Grant(ctx context.Context, grantee, namespace string) error {
	isApp, err := s.identities.ExistsWithRole(ctx, namespace, rbac.RoleApp)
	if err != nil {
		return err
	}
	if !isApp {
		return shared.InvalidArgument("namespace", "given app namespace does not exist")
	}
	isAdmin, err := s.identities.ExistsWithRole(ctx, grantee, rbac.RoleAdmin)
	if err != nil {
		return err
	}
	if !isAdmin {
		return shared.InvalidArgument("grantee", "given grantee is not an admin identity")
	}
	exists, err := s.repo.Exists(ctx, grantee, namespace)
	if err != nil {
		return err
	}
	if exists {
		return shared.ErrDuplicate
	}
	s.logger.Info("access granted", slog.String("grantee", grantee), slog.String("namespace", namespace))
	return s.repo.Insert(ctx, grantee, namespace)
}

// Revoke removes an access right. Revoking a pair that is not recorded fails
// with ErrNotFound.
func (s *Service) Revoke(ctx context.Context, grantee, namespace string) error {
	if err := s.repo.Delete(ctx, grantee, namespace); err != nil {
		return err
	}
	s.logger.Info("access revoked", slog.String("grantee", grantee), slog.String("namespace", namespace))
	return nil
}

// ListNamespacesFor returns every namespace the grantee may read.
func (s *Service) ListNamespacesFor(ctx context.Context, grantee string) ([]string, error) {
	return s.repo.ListNamespacesFor(ctx, grantee)
}

// ListGranteesFor returns every admin holding a right to the namespace.
func (s *Service) ListGranteesFor(ctx context.Context, namespace string) ([]string, error) {
	return s.repo.ListGranteesFor(ctx, namespace)
}

// CascadeDeleteForIdentity removes every right where the identity appears on
// either side of the relation.
func (s *Service) CascadeDeleteForIdentity(ctx context.Context, username string) error {
	return s.repo.DeleteAllForIdentity(ctx, username)
}

var _ identity.AccessCascader = (*Service)(nil)
