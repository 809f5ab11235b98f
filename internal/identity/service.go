package identity

import (
	"context"
	"crypto/rsa"
	"errors"
	"log/slog"

	"github.com/confidant-vault/confidant/internal/keys"
	"github.com/confidant-vault/confidant/internal/rbac"
	"github.com/confidant-vault/confidant/internal/shared"
)

// AccessCascader removes access-right rows tied to an identity being deleted.
// Implemented by the access oracle; declared here so identity stays the
// orchestration layer without importing it.
type AccessCascader interface {
	CascadeDeleteForIdentity(ctx context.Context, username string) error
	ListGranteesFor(ctx context.Context, namespace string) ([]string, error)
}

// SecretCascader purges secret rows tied to an identity being deleted.
type SecretCascader interface {
	DeleteAllForNamespace(ctx context.Context, namespace string) error
	DeleteAllForRecipient(ctx context.Context, recipient string) error
}

// Service wraps identity directory business rules: creation, credential
// updates, deletion with cascades, and authentication.
type Service struct {
	repo       Repository
	keyStore   *keys.Store
	access     AccessCascader
	secrets    SecretCascader
	bcryptCost int
	logger     *slog.Logger
}

// NewService constructs a Service. The cascaders are bound afterwards via
// BindCascaders because the access and secret services themselves depend on
// the identity service.
func NewService(repo Repository, keyStore *keys.Store, bcryptCost int, logger *slog.Logger) *Service {
	return &Service{
		repo:       repo,
		keyStore:   keyStore,
		bcryptCost: bcryptCost,
		logger:     logger,
	}
}

// BindCascaders wires the deletion cascades. Must be called before Delete.
func (s *Service) BindCascaders(access AccessCascader, secrets SecretCascader) {
	s.access = access
	s.secrets = secrets
}

// Exists reports whether the username is taken.
func (s *Service) Exists(ctx context.Context, username string) (bool, error) {
	return s.repo.Exists(ctx, username)
}

// ExistsWithRole reports whether the username currently holds the given role.
func (s *Service) ExistsWithRole(ctx context.Context, username string, role rbac.Role) (bool, error) {
	return s.repo.ExistsWithRole(ctx, username, role)
}

// CreateRoot creates the singular root identity. Root carries no public-key
// blob here; its full key pair lives in the key store.
func (s *Service) CreateRoot(ctx context.Context, username, password string) error {
	if err := ValidateID("username", username); err != nil {
		return err
	}
	rootExists, err := s.repo.RootExists(ctx)
	if err != nil {
		return err
	}
	if rootExists {
		return shared.ErrDuplicate
	}
	cred, err := keys.NewCredential(password, s.bcryptCost)
	if err != nil {
		return shared.Serverf("hash root credential")
	}
	return s.repo.Create(ctx, &Identity{
		Username:     username,
		Role:         rbac.RoleRoot,
		PasswordHash: cred.Hash,
		PasswordSalt: cred.Salt,
	})
}

// Create provisions a new Admin or App identity with its public key. The
// key-blob write and the row insert are not covered by one transaction; on a
// row-insert failure the blob may remain, which a later create overwrites.
func (s *Service) Create(ctx context.Context, username string, role rbac.Role, password string, publicKeyPEM []byte) error {
	if role == rbac.RoleRoot {
		return shared.InvalidArgument("role", "wrong call to create a root identity")
	}
	if err := ValidateID("username", username); err != nil {
		return err
	}
	exists, err := s.repo.Exists(ctx, username)
	if err != nil {
		return err
	}
	if exists {
		return shared.ErrDuplicate
	}
	if len(publicKeyPEM) == 0 {
		return shared.InvalidArgument("public_key", "public key is required")
	}
	cred, err := keys.NewCredential(password, s.bcryptCost)
	if err != nil {
		return shared.Serverf("hash credential")
	}
	if err := s.keyStore.WritePublicKey(username, publicKeyPEM); err != nil {
		var invalid *shared.InvalidArgumentError
		if errors.As(err, &invalid) {
			return err
		}
		s.logger.Warn("write public key blob", slog.String("username", username), slog.Any("error", err))
		return shared.Serverf("store public key for %s", username)
	}
	return s.repo.Create(ctx, &Identity{
		Username:     username,
		Role:         role,
		PasswordHash: cred.Hash,
		PasswordSalt: cred.Salt,
	})
}

// UpdatePassword replaces an identity's credential. Role and public key are
// immutable after creation.
func (s *Service) UpdatePassword(ctx context.Context, username, newPassword string) error {
	cred, err := keys.NewCredential(newPassword, s.bcryptCost)
	if err != nil {
		return shared.Serverf("hash credential")
	}
	return s.repo.UpdatePassword(ctx, username, cred.Hash, cred.Salt)
}

// Delete removes an identity and everything hanging off it: access rights
// where it appears on either side, its namespace's secret rows (App), its
// recipient copies (Admin), and its public-key blob. Root is never deletable.
func (s *Service) Delete(ctx context.Context, username string) error {
	ident, err := s.repo.Get(ctx, username)
	if err != nil {
		return err
	}
	if ident.Role == rbac.RoleRoot {
		return shared.InvalidArgument("username", "the root identity cannot be deleted")
	}

	if err := s.access.CascadeDeleteForIdentity(ctx, username); err != nil {
		return err
	}
	switch ident.Role {
	case rbac.RoleApp:
		if err := s.secrets.DeleteAllForNamespace(ctx, username); err != nil {
			return err
		}
	case rbac.RoleAdmin:
		if err := s.secrets.DeleteAllForRecipient(ctx, username); err != nil {
			return err
		}
	}
	if err := s.repo.Delete(ctx, username); err != nil {
		return err
	}
	if err := s.keyStore.DeletePublicKey(username); err != nil {
		s.logger.Warn("delete public key blob", slog.String("username", username), slog.Any("error", err))
		return shared.Serverf("delete public key for %s", username)
	}
	return nil
}

// Authenticate validates a credential pair and returns the identity's role.
// A missing user and a bad password are indistinguishable to the caller.
func (s *Service) Authenticate(ctx context.Context, username, password string) (rbac.Role, error) {
	ident, err := s.repo.Get(ctx, username)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return 0, shared.ErrWrongCredentials
		}
		return 0, err
	}
	if !keys.VerifyPassword(password, ident.PasswordHash, ident.PasswordSalt) {
		s.logger.Warn("authentication failed", slog.String("username", username))
		return 0, shared.ErrWrongCredentials
	}
	return ident.Role, nil
}

// GetRole returns the identity's current role.
func (s *Service) GetRole(ctx context.Context, username string) (rbac.Role, error) {
	ident, err := s.repo.Get(ctx, username)
	if err != nil {
		return 0, err
	}
	return ident.Role, nil
}

// GetPublicKey loads the identity's public key from the key store.
func (s *Service) GetPublicKey(ctx context.Context, username string) (*rsa.PublicKey, error) {
	exists, err := s.repo.Exists(ctx, username)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, shared.ErrNotFound
	}
	key, err := s.keyStore.ReadPublicKey(username)
	if err != nil {
		s.logger.Warn("read public key blob", slog.String("username", username), slog.Any("error", err))
		return nil, shared.Serverf("load public key for %s", username)
	}
	return key, nil
}

// Challenge derives a fresh possession-proof challenge for the identity.
func (s *Service) Challenge(ctx context.Context, username string) (*keys.Challenge, error) {
	key, err := s.GetPublicKey(ctx, username)
	if err != nil {
		return nil, err
	}
	return keys.NewChallenge(key)
}

// ListByRole returns all identities currently holding the role.
func (s *Service) ListByRole(ctx context.Context, role rbac.Role) ([]Identity, error) {
	return s.repo.ListByRole(ctx, role)
}

// ListAdminsWithAccess returns the usernames of admins holding an access right
// to the namespace. The join lives in the access oracle.
func (s *Service) ListAdminsWithAccess(ctx context.Context, namespace string) ([]string, error) {
	return s.access.ListGranteesFor(ctx, namespace)
}
