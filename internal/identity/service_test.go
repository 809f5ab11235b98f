package identity

import (
	"context"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/confidant-vault/confidant/internal/keys"
	"github.com/confidant-vault/confidant/internal/rbac"
	"github.com/confidant-vault/confidant/internal/shared"
)

type memoryIdentityRepo struct {
	idents map[string]Identity
}

func newMemoryIdentityRepo() *memoryIdentityRepo {
	return &memoryIdentityRepo{idents: make(map[string]Identity)}
}

func (r *memoryIdentityRepo) Get(ctx context.Context, username string) (*Identity, error) {
	ident, ok := r.idents[username]
	if !ok {
		return nil, shared.ErrNotFound
	}
	return &ident, nil
}

func (r *memoryIdentityRepo) Exists(ctx context.Context, username string) (bool, error) {
	_, ok := r.idents[username]
	return ok, nil
}

func (r *memoryIdentityRepo) ExistsWithRole(ctx context.Context, username string, role rbac.Role) (bool, error) {
	ident, ok := r.idents[username]
	return ok && ident.Role == role, nil
}

func (r *memoryIdentityRepo) RootExists(ctx context.Context) (bool, error) {
	for _, ident := range r.idents {
		if ident.Role == rbac.RoleRoot {
			return true, nil
		}
	}
	return false, nil
}

func (r *memoryIdentityRepo) Create(ctx context.Context, ident *Identity) error {
	if _, ok := r.idents[ident.Username]; ok {
		return shared.ErrDuplicate
	}
	r.idents[ident.Username] = *ident
	return nil
}

func (r *memoryIdentityRepo) UpdatePassword(ctx context.Context, username, hash, salt string) error {
	ident, ok := r.idents[username]
	if !ok {
		return shared.ErrNotFound
	}
	ident.PasswordHash = hash
	ident.PasswordSalt = salt
	r.idents[username] = ident
	return nil
}

func (r *memoryIdentityRepo) Delete(ctx context.Context, username string) error {
	if _, ok := r.idents[username]; !ok {
		return shared.ErrNotFound
	}
	delete(r.idents, username)
	return nil
}

func (r *memoryIdentityRepo) ListByRole(ctx context.Context, role rbac.Role) ([]Identity, error) {
	var out []Identity
	for _, ident := range r.idents {
		if ident.Role == role {
			out = append(out, ident)
		}
	}
	return out, nil
}

type recordingCascader struct {
	accessDeleted     []string
	namespacesDeleted []string
	recipientsDeleted []string
	grantees          map[string][]string
}

func (c *recordingCascader) CascadeDeleteForIdentity(ctx context.Context, username string) error {
	c.accessDeleted = append(c.accessDeleted, username)
	return nil
}

func (c *recordingCascader) ListGranteesFor(ctx context.Context, namespace string) ([]string, error) {
	return c.grantees[namespace], nil
}

func (c *recordingCascader) DeleteAllForNamespace(ctx context.Context, namespace string) error {
	c.namespacesDeleted = append(c.namespacesDeleted, namespace)
	return nil
}

func (c *recordingCascader) DeleteAllForRecipient(ctx context.Context, recipient string) error {
	c.recipientsDeleted = append(c.recipientsDeleted, recipient)
	return nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestService(t *testing.T) (*Service, *memoryIdentityRepo, *recordingCascader) {
	t.Helper()
	repo := newMemoryIdentityRepo()
	dir := t.TempDir()
	store := keys.NewStore(dir+"/certs", dir+"/root")
	require.NoError(t, store.EnsureDirs())
	svc := NewService(repo, store, 4, testLogger())
	cascader := &recordingCascader{grantees: make(map[string][]string)}
	svc.BindCascaders(cascader, cascader)
	return svc, repo, cascader
}

func pemFor(t *testing.T) []byte {
	t.Helper()
	pair, err := keys.Generate()
	require.NoError(t, err)
	pemData, err := keys.EncodePublicPEM(pair.Public)
	require.NoError(t, err)
	return pemData
}

func TestValidateID(t *testing.T) {
	require.NoError(t, ValidateID("username", "alice"))
	require.NoError(t, ValidateID("username", "a_1b"))
	require.NoError(t, ValidateID("username", "Billing_service_01"))

	for _, bad := range []string{"abc", "", "1abc", "_abc", "ab cd", "ab-cd", strings.Repeat("a", 31)} {
		err := ValidateID("username", bad)
		var invalid *shared.InvalidArgumentError
		require.ErrorAs(t, err, &invalid, bad)
	}
}

func TestCreateRoot(t *testing.T) {
	svc, repo, _ := newTestService(t)
	ctx := context.Background()

	require.NoError(t, svc.CreateRoot(ctx, "root_user", "supersecret"))
	ident := repo.idents["root_user"]
	require.Equal(t, rbac.RoleRoot, ident.Role)
	require.True(t, keys.VerifyPassword("supersecret", ident.PasswordHash, ident.PasswordSalt))

	// a second root is refused even under a different name
	err := svc.CreateRoot(ctx, "other_root", "supersecret")
	require.ErrorIs(t, err, shared.ErrDuplicate)
}

func TestCreateRootLongPassword(t *testing.T) {
	svc, repo, _ := newTestService(t)
	password := strings.Repeat("p", 40)

	require.NoError(t, svc.CreateRoot(context.Background(), "root_user", password))
	ident := repo.idents["root_user"]
	require.True(t, keys.VerifyPassword(password, ident.PasswordHash, ident.PasswordSalt))
}

func TestCreateIdentity(t *testing.T) {
	svc, repo, _ := newTestService(t)
	ctx := context.Background()

	require.NoError(t, svc.Create(ctx, "alice", rbac.RoleAdmin, "password1", pemFor(t)))
	require.Equal(t, rbac.RoleAdmin, repo.idents["alice"].Role)

	pub, err := svc.GetPublicKey(ctx, "alice")
	require.NoError(t, err)
	require.NotNil(t, pub)

	err = svc.Create(ctx, "alice", rbac.RoleAdmin, "password1", pemFor(t))
	require.ErrorIs(t, err, shared.ErrDuplicate)
}

func TestCreateRejectsRootRole(t *testing.T) {
	svc, _, _ := newTestService(t)
	err := svc.Create(context.Background(), "sneaky_root", rbac.RoleRoot, "password1", pemFor(t))
	var invalid *shared.InvalidArgumentError
	require.ErrorAs(t, err, &invalid)
}

func TestCreateRejectsMissingPublicKey(t *testing.T) {
	svc, _, _ := newTestService(t)
	err := svc.Create(context.Background(), "alice", rbac.RoleAdmin, "password1", nil)
	var invalid *shared.InvalidArgumentError
	require.ErrorAs(t, err, &invalid)
	require.Equal(t, "public_key", invalid.Field)
}

func TestCreateRejectsMalformedPublicKey(t *testing.T) {
	svc, repo, _ := newTestService(t)
	err := svc.Create(context.Background(), "alice", rbac.RoleAdmin, "password1", []byte("this is not a pem"))
	var invalid *shared.InvalidArgumentError
	require.ErrorAs(t, err, &invalid)
	require.Equal(t, "public_key", invalid.Field)
	require.NotErrorIs(t, err, shared.ErrServer)
	require.Empty(t, repo.idents)
}

func TestUpdatePassword(t *testing.T) {
	svc, repo, _ := newTestService(t)
	ctx := context.Background()

	require.NoError(t, svc.Create(ctx, "alice", rbac.RoleAdmin, "password1", pemFor(t)))
	oldHash := repo.idents["alice"].PasswordHash

	require.NoError(t, svc.UpdatePassword(ctx, "alice", "password2"))
	ident := repo.idents["alice"]
	require.NotEqual(t, oldHash, ident.PasswordHash)
	require.True(t, keys.VerifyPassword("password2", ident.PasswordHash, ident.PasswordSalt))

	err := svc.UpdatePassword(ctx, "nobody", "password2")
	require.ErrorIs(t, err, shared.ErrNotFound)
}

func TestDeleteCascades(t *testing.T) {
	svc, repo, cascader := newTestService(t)
	ctx := context.Background()

	require.NoError(t, svc.Create(ctx, "alice", rbac.RoleAdmin, "password1", pemFor(t)))
	require.NoError(t, svc.Create(ctx, "billing", rbac.RoleApp, "password1", pemFor(t)))

	require.NoError(t, svc.Delete(ctx, "billing"))
	require.Contains(t, cascader.accessDeleted, "billing")
	require.Contains(t, cascader.namespacesDeleted, "billing")
	require.NotContains(t, repo.idents, "billing")
	_, err := svc.GetPublicKey(ctx, "billing")
	require.Error(t, err)

	require.NoError(t, svc.Delete(ctx, "alice"))
	require.Contains(t, cascader.accessDeleted, "alice")
	require.Contains(t, cascader.recipientsDeleted, "alice")

	err = svc.Delete(ctx, "alice")
	require.ErrorIs(t, err, shared.ErrNotFound)
}

func TestDeleteRootRefused(t *testing.T) {
	svc, repo, _ := newTestService(t)
	ctx := context.Background()

	require.NoError(t, svc.CreateRoot(ctx, "root_user", "supersecret"))
	err := svc.Delete(ctx, "root_user")
	var invalid *shared.InvalidArgumentError
	require.ErrorAs(t, err, &invalid)
	require.Contains(t, repo.idents, "root_user")
}

func TestAuthenticate(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	require.NoError(t, svc.Create(ctx, "alice", rbac.RoleAdmin, "password1", pemFor(t)))

	role, err := svc.Authenticate(ctx, "alice", "password1")
	require.NoError(t, err)
	require.Equal(t, rbac.RoleAdmin, role)

	_, err = svc.Authenticate(ctx, "alice", "wrong")
	require.ErrorIs(t, err, shared.ErrWrongCredentials)

	// unknown user yields the same error as a bad password
	_, err = svc.Authenticate(ctx, "nobody", "password1")
	require.ErrorIs(t, err, shared.ErrWrongCredentials)
}

func TestChallenge(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	pair, err := keys.Generate()
	require.NoError(t, err)
	pemData, err := keys.EncodePublicPEM(pair.Public)
	require.NoError(t, err)
	require.NoError(t, svc.Create(ctx, "billing", rbac.RoleApp, "password1", pemData))

	challenge, err := svc.Challenge(ctx, "billing")
	require.NoError(t, err)

	plaintext, err := keys.Decrypt(pair.Private, challenge.Ciphertext)
	require.NoError(t, err)
	require.Equal(t, challenge.Plaintext, plaintext)
}
