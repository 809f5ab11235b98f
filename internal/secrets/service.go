package secrets

import (
	"context"
	"crypto/rsa"
	"errors"
	"log/slog"
	"sort"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/confidant-vault/confidant/internal/identity"
	"github.com/confidant-vault/confidant/internal/keys"
	"github.com/confidant-vault/confidant/internal/shared"
)

// GranteeLister answers which admins currently hold access to a namespace.
// Implemented by the access oracle.
type GranteeLister interface {
	ListGranteesFor(ctx context.Context, namespace string) ([]string, error)
}

// PublicKeyResolver loads a recipient's public key. Implemented by the
// identity registry.
type PublicKeyResolver interface {
	GetPublicKey(ctx context.Context, username string) (*rsa.PublicKey, error)
}

// Service keeps per-recipient ciphertext rows synchronized with the access
// relation. The recipient set is computed at write time; later grants and
// revokes only take effect on the next write.
type Service struct {
	repo       Repository
	access     GranteeLister
	identities PublicKeyResolver
	rootName   string
	rootKey    *keys.KeyPair
	logger     *slog.Logger

	// writeLocks serializes writers of the same (namespace, key) in-process,
	// on top of the repository's transaction boundary.
	writeLocks sync.Map
}

// NewService constructs a Service. rootName and rootKey identify the singular
// root identity, whose key pair is process-lifetime and read-only after load.
func NewService(repo Repository, access GranteeLister, identities PublicKeyResolver, rootName string, rootKey *keys.KeyPair, logger *slog.Logger) *Service {
	return &Service{
		repo:       repo,
		access:     access,
		identities: identities,
		rootName:   rootName,
		rootKey:    rootKey,
		logger:     logger,
	}
}

// Read returns the requester's own ciphertext row for (namespace, key). A
// requester without a row gets ErrNotFound, which doubles as an access denial:
// no row, no read, independent of the RBAC check performed by the controller.
// Decryption happens client-side; the server never holds non-root private keys.
func (s *Service) Read(ctx context.Context, requester, namespace, key string) (string, error) {
	return s.repo.GetCiphertext(ctx, namespace, key, requester)
}

// ReadAsRoot fetches root's row and decrypts it with the server-retained root
// private key.
func (s *Service) ReadAsRoot(ctx context.Context, namespace, key string) (string, error) {
	ciphertext, err := s.repo.GetCiphertext(ctx, namespace, key, s.rootName)
	if err != nil {
		return "", err
	}
	plaintext, err := keys.Decrypt(s.rootKey.Private, ciphertext)
	if err != nil {
		s.logger.Error("root decrypt failed", slog.String("namespace", namespace), slog.String("key", key), slog.Any("error", err))
		return "", err
	}
	return plaintext, nil
}

// Write stores a config value: it computes the current recipient set, encrypts
// the plaintext once per recipient, and swaps the full row set for
// (namespace, key) in one transaction. All-or-nothing: a single unresolvable
// recipient key fails the whole write with no state change.
func (s *Service) Write(ctx context.Context, namespace, key, plaintext string) error {
	if err := identity.ValidateID("key", key); err != nil {
		return err
	}

	recipients, err := s.recipientSet(ctx, namespace)
	if err != nil {
		return err
	}

	publicKeys, err := s.resolvePublicKeys(ctx, recipients)
	if err != nil {
		return err
	}

	rows := make([]Record, len(recipients))
	g, gctx := errgroup.WithContext(ctx)
	for i, recipient := range recipients {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			ciphertext, err := keys.Encrypt(publicKeys[recipient], plaintext)
			if err != nil {
				s.logger.Warn("encrypt for recipient failed", slog.String("recipient", recipient), slog.Any("error", err))
				return err
			}
			rows[i] = Record{Namespace: namespace, Key: key, Recipient: recipient, Ciphertext: ciphertext}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		var invalid *shared.InvalidArgumentError
		if errors.As(err, &invalid) {
			return err
		}
		return shared.Serverf("encrypt %s/%s", namespace, key)
	}

	unlock := s.lockKey(namespace, key)
	defer unlock()

	if err := s.repo.ReplaceForKey(ctx, namespace, key, rows); err != nil {
		s.logger.Error("replace rows failed", slog.String("namespace", namespace), slog.String("key", key), slog.Any("error", err))
		return shared.Serverf("store %s/%s", namespace, key)
	}
	s.logger.Info("secret written",
		slog.String("namespace", namespace),
		slog.String("key", key),
		slog.Int("recipients", len(recipients)))
	return nil
}

// Delete removes every recipient row for (namespace, key). Deleting a key that
// holds no rows fails with ErrNotFound; callers that need idempotence check
// existence first.
func (s *Service) Delete(ctx context.Context, namespace, key string) error {
	exists, err := s.repo.ExistsForKey(ctx, namespace, key)
	if err != nil {
		return err
	}
	if !exists {
		return shared.ErrNotFound
	}
	unlock := s.lockKey(namespace, key)
	defer unlock()
	return s.repo.DeleteForKey(ctx, namespace, key)
}

// ListKeys returns the distinct config keys stored for a namespace.
func (s *Service) ListKeys(ctx context.Context, namespace string) ([]string, error) {
	return s.repo.ListKeys(ctx, namespace)
}

// DeleteAllForNamespace purges a deleted app identity's entire namespace.
func (s *Service) DeleteAllForNamespace(ctx context.Context, namespace string) error {
	return s.repo.DeleteAllForNamespace(ctx, namespace)
}

// DeleteAllForRecipient purges the granted-copy rows of a deleted admin. Other
// recipients of the same keys keep their own rows.
func (s *Service) DeleteAllForRecipient(ctx context.Context, recipient string) error {
	return s.repo.DeleteAllForRecipient(ctx, recipient)
}

// recipientSet is {root} ∪ {namespace} ∪ current grantees. Root and the
// namespace owner are implicit members, never stored in the access relation,
// so they can never be revoked by accident.
func (s *Service) recipientSet(ctx context.Context, namespace string) ([]string, error) {
	grantees, err := s.access.ListGranteesFor(ctx, namespace)
	if err != nil {
		return nil, err
	}
	set := map[string]struct{}{
		s.rootName: {},
		namespace:  {},
	}
	for _, grantee := range grantees {
		set[grantee] = struct{}{}
	}
	recipients := make([]string, 0, len(set))
	for recipient := range set {
		recipients = append(recipients, recipient)
	}
	sort.Strings(recipients)
	return recipients, nil
}

func (s *Service) resolvePublicKeys(ctx context.Context, recipients []string) (map[string]*rsa.PublicKey, error) {
	out := make(map[string]*rsa.PublicKey, len(recipients))
	for _, recipient := range recipients {
		if recipient == s.rootName {
			out[recipient] = s.rootKey.Public
			continue
		}
		key, err := s.identities.GetPublicKey(ctx, recipient)
		if err != nil {
			s.logger.Warn("resolve public key failed", slog.String("recipient", recipient), slog.Any("error", err))
			return nil, shared.Serverf("resolve public key for %s", recipient)
		}
		out[recipient] = key
	}
	return out, nil
}

func (s *Service) lockKey(namespace, key string) func() {
	mu, _ := s.writeLocks.LoadOrStore(namespace+"\x00"+key, &sync.Mutex{})
	lock := mu.(*sync.Mutex)
	lock.Lock()
	return lock.Unlock
}

var _ identity.SecretCascader = (*Service)(nil)
